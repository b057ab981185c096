package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
)

var _ repository.FacturaRepository = (*FacturaRepo)(nil)

// FacturaRepo implementación de FacturaRepository (usable con pool o tx).
type FacturaRepo struct {
	q Querier
}

// NewFacturaRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFacturaRepository(q Querier) *FacturaRepo {
	return &FacturaRepo{q: q}
}

// Create persiste la cabecera del CFDI en estado PENDIENTE.
func (r *FacturaRepo) Create(ctx context.Context, f *entity.Factura) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.EstadoTimbrado == "" {
		f.EstadoTimbrado = entity.EstadoPendiente
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now

	query := `
		INSERT INTO facturas (id, emisor_id, cliente_id, serie, folio, fecha_emision,
		       lugar_expedicion, moneda, tipo_cambio, forma_pago, metodo_pago, uso_cfdi,
		       exportacion, condiciones_pago, subtotal, descuento, impuesto, total,
		       periodicidad, meses, anio, estado_timbrado, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		       $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`
	_, err := r.q.Exec(ctx, query,
		f.ID, f.EmisorID, f.ClienteID, f.Serie, f.Folio, f.FechaEmision,
		f.LugarExpedicion, f.Moneda, f.TipoCambio, f.FormaPago, f.MetodoPago, f.UsoCFDI,
		f.Exportacion, nullIfEmpty(f.CondicionesPago), f.Subtotal, f.Descuento, f.Impuesto, f.Total,
		nullIfEmpty(f.Periodicidad), nullIfEmpty(f.Meses), f.Anio, f.EstadoTimbrado, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: el folio %s-%s ya existe", domain.ErrDuplicate, f.Serie, f.Folio)
		}
		return fmt.Errorf("insert factura: %w", err)
	}
	return nil
}

// CreateDetalle persiste un concepto de la factura.
func (r *FacturaRepo) CreateDetalle(ctx context.Context, d *entity.FacturaDetalle) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	query := `
		INSERT INTO factura_detalles (id, factura_id, clave_prod_serv, no_identificacion,
		       clave_unidad, unidad, descripcion, cantidad, valor_unitario, importe,
		       descuento, objeto_imp, tasa_iva)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.q.Exec(ctx, query,
		d.ID, d.FacturaID, d.ClaveProdServ, nullIfEmpty(d.NoIdentificacion),
		d.ClaveUnidad, nullIfEmpty(d.Unidad), d.Descripcion, d.Cantidad, d.ValorUnitario, d.Importe,
		d.Descuento, d.ObjetoImp, d.TasaIVA,
	)
	if err != nil {
		return fmt.Errorf("insert detalle: %w", err)
	}
	return nil
}

const facturaColumns = `id, emisor_id, cliente_id, serie, folio, fecha_emision,
	lugar_expedicion, moneda, tipo_cambio, forma_pago, metodo_pago, uso_cfdi,
	exportacion, condiciones_pago, subtotal, descuento, impuesto, total,
	periodicidad, meses, anio, estado_timbrado, uuid, fecha_timbrado,
	no_certificado_sat, sello_sat, sello_cfd, xml_original, xml_timbrado,
	errores_validacion, intentos_timbrado, ultimo_intento,
	fecha_cancelacion, motivo_cancelacion, acuse_cancelacion,
	created_at, updated_at`

// GetByID obtiene una factura completa por ID.
func (r *FacturaRepo) GetByID(ctx context.Context, id string) (*entity.Factura, error) {
	query := `SELECT ` + facturaColumns + ` FROM facturas WHERE id = $1`

	var f entity.Factura
	var condiciones, periodicidad, meses, uuidFiscal *string
	var noCertSAT, selloSAT, selloCFD, xmlOriginal, xmlTimbrado, erroresVal *string
	var motivoCanc, acuseCanc *string
	err := r.q.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.EmisorID, &f.ClienteID, &f.Serie, &f.Folio, &f.FechaEmision,
		&f.LugarExpedicion, &f.Moneda, &f.TipoCambio, &f.FormaPago, &f.MetodoPago, &f.UsoCFDI,
		&f.Exportacion, &condiciones, &f.Subtotal, &f.Descuento, &f.Impuesto, &f.Total,
		&periodicidad, &meses, &f.Anio, &f.EstadoTimbrado, &uuidFiscal, &f.FechaTimbrado,
		&noCertSAT, &selloSAT, &selloCFD, &xmlOriginal, &xmlTimbrado,
		&erroresVal, &f.IntentosTimbrado, &f.UltimoIntento,
		&f.FechaCancelacion, &motivoCanc, &acuseCanc,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: factura %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get factura: %w", err)
	}

	f.CondicionesPago = derefStr(condiciones)
	f.Periodicidad = derefStr(periodicidad)
	f.Meses = derefStr(meses)
	f.UUID = derefStr(uuidFiscal)
	f.NoCertificadoSAT = derefStr(noCertSAT)
	f.SelloSAT = derefStr(selloSAT)
	f.SelloCFD = derefStr(selloCFD)
	f.XMLOriginal = derefStr(xmlOriginal)
	f.XMLTimbrado = derefStr(xmlTimbrado)
	f.ErroresValidacion = derefStr(erroresVal)
	f.MotivoCancelacion = derefStr(motivoCanc)
	f.AcuseCancelacion = derefStr(acuseCanc)
	return &f, nil
}

// GetDetalles obtiene los conceptos de una factura en su orden de captura.
func (r *FacturaRepo) GetDetalles(ctx context.Context, facturaID string) ([]*entity.FacturaDetalle, error) {
	query := `
		SELECT id, factura_id, clave_prod_serv, no_identificacion, clave_unidad,
		       unidad, descripcion, cantidad, valor_unitario, importe, descuento,
		       objeto_imp, tasa_iva
		FROM factura_detalles WHERE factura_id = $1 ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, facturaID)
	if err != nil {
		return nil, fmt.Errorf("get detalles: %w", err)
	}
	defer rows.Close()

	var detalles []*entity.FacturaDetalle
	for rows.Next() {
		var d entity.FacturaDetalle
		var noIdent, unidad *string
		if err := rows.Scan(
			&d.ID, &d.FacturaID, &d.ClaveProdServ, &noIdent, &d.ClaveUnidad,
			&unidad, &d.Descripcion, &d.Cantidad, &d.ValorUnitario, &d.Importe, &d.Descuento,
			&d.ObjetoImp, &d.TasaIVA,
		); err != nil {
			return nil, fmt.Errorf("scan detalle: %w", err)
		}
		d.NoIdentificacion = derefStr(noIdent)
		d.Unidad = derefStr(unidad)
		detalles = append(detalles, &d)
	}
	return detalles, rows.Err()
}

// ActualizarTimbrado persiste el resultado del timbrado en una sola sentencia
// guardada por el estado previo (compare-and-set): si la fila ya no está en
// PENDIENTE ni ERROR, otra petición ganó la carrera y se devuelve ErrEstado.
func (r *FacturaRepo) ActualizarTimbrado(ctx context.Context, f *entity.Factura) error {
	query := `
		UPDATE facturas
		SET estado_timbrado    = $2,
		    uuid               = $3,
		    fecha_timbrado     = $4,
		    no_certificado_sat = $5,
		    sello_sat          = $6,
		    sello_cfd          = $7,
		    xml_original       = $8,
		    xml_timbrado       = $9,
		    errores_validacion = NULL,
		    intentos_timbrado  = intentos_timbrado + 1,
		    ultimo_intento     = NOW(),
		    updated_at         = NOW()
		WHERE id = $1 AND estado_timbrado IN ('PENDIENTE', 'ERROR')`
	tag, err := r.q.Exec(ctx, query,
		f.ID, f.EstadoTimbrado, nullIfEmpty(f.UUID), f.FechaTimbrado,
		nullIfEmpty(f.NoCertificadoSAT), nullIfEmpty(f.SelloSAT), nullIfEmpty(f.SelloCFD),
		nullIfEmpty(f.XMLOriginal), nullIfEmpty(f.XMLTimbrado),
	)
	if err != nil {
		return fmt.Errorf("update timbrado: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: la factura %s ya no está en un estado timbrable", domain.ErrEstado, f.ID)
	}
	return nil
}

// RegistrarFallo anota el detalle del fallo sin tocar estado ni contador.
func (r *FacturaRepo) RegistrarFallo(ctx context.Context, id, mensaje string) error {
	query := `
		UPDATE facturas
		SET errores_validacion = $2,
		    updated_at         = NOW()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, mensaje)
	if err != nil {
		return fmt.Errorf("registrar fallo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: factura %s", domain.ErrNotFound, id)
	}
	return nil
}

// MarcarError pasa la factura a ERROR. contarIntento incrementa el contador
// solo cuando el fallo fue de envío al PAC.
func (r *FacturaRepo) MarcarError(ctx context.Context, id, mensaje string, contarIntento bool) error {
	query := `
		UPDATE facturas
		SET estado_timbrado    = 'ERROR',
		    errores_validacion = $2,
		    intentos_timbrado  = intentos_timbrado + CASE WHEN $3 THEN 1 ELSE 0 END,
		    ultimo_intento     = CASE WHEN $3 THEN NOW() ELSE ultimo_intento END,
		    updated_at         = NOW()
		WHERE id = $1 AND estado_timbrado IN ('PENDIENTE', 'ERROR')`
	tag, err := r.q.Exec(ctx, query, id, mensaje, contarIntento)
	if err != nil {
		return fmt.Errorf("marcar error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: la factura %s no admite la transición a ERROR", domain.ErrEstado, id)
	}
	return nil
}

// Cancelar aplica la transición TIMBRADO → CANCELADO. Es definitiva.
func (r *FacturaRepo) Cancelar(ctx context.Context, id, motivo, acuse string) error {
	query := `
		UPDATE facturas
		SET estado_timbrado   = 'CANCELADO',
		    motivo_cancelacion = $2,
		    acuse_cancelacion  = $3,
		    fecha_cancelacion  = NOW(),
		    updated_at         = NOW()
		WHERE id = $1 AND estado_timbrado = 'TIMBRADO'`
	tag, err := r.q.Exec(ctx, query, id, motivo, nullIfEmpty(acuse))
	if err != nil {
		return fmt.Errorf("cancelar factura: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: solo una factura timbrada puede cancelarse", domain.ErrEstado)
	}
	return nil
}

// ExisteFolio detecta folios duplicados dentro de (emisor, serie).
func (r *FacturaRepo) ExisteFolio(ctx context.Context, emisorID, serie, folio, exceptoID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM facturas
			WHERE emisor_id = $1 AND serie = $2 AND folio = $3 AND id <> $4
		)`
	var existe bool
	if err := r.q.QueryRow(ctx, query, emisorID, serie, folio, exceptoID).Scan(&existe); err != nil {
		return false, fmt.Errorf("verificar folio: %w", err)
	}
	return existe, nil
}
