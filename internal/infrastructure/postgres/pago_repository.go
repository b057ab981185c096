package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
)

var _ repository.PagoFacturaRepository = (*PagoRepo)(nil)

// PagoRepo implementación de PagoFacturaRepository.
type PagoRepo struct {
	q Querier
}

// NewPagoRepository construye el adaptador.
func NewPagoRepository(q Querier) *PagoRepo {
	return &PagoRepo{q: q}
}

// Create persiste el pago en estado PENDIENTE (aún sin complemento timbrado).
func (r *PagoRepo) Create(ctx context.Context, p *entity.PagoFactura) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.EstadoTimbrado == "" {
		p.EstadoTimbrado = entity.EstadoPendiente
	}
	p.CreatedAt = time.Now()

	query := `
		INSERT INTO pagos_factura (id, factura_id, fecha_pago, monto_pago, forma_pago,
		       num_parcialidad, estado_timbrado, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query,
		p.ID, p.FacturaID, p.FechaPago, p.MontoPago, p.FormaPago,
		p.NumParcialidad, p.EstadoTimbrado, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pago: %w", err)
	}
	return nil
}

const pagoColumns = `id, factura_id, fecha_pago, monto_pago, forma_pago, num_parcialidad,
	estado_timbrado, uuid, fecha_timbrado, sello, sello_sat, no_certificado_sat,
	cadena_original_sat, xml_timbrado, created_at`

// GetByID obtiene un pago por ID.
func (r *PagoRepo) GetByID(ctx context.Context, id string) (*entity.PagoFactura, error) {
	query := `SELECT ` + pagoColumns + ` FROM pagos_factura WHERE id = $1`
	p, err := scanPago(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: pago %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get pago: %w", err)
	}
	return p, nil
}

// GetByFacturaID obtiene los pagos de una factura en orden de parcialidad.
func (r *PagoRepo) GetByFacturaID(ctx context.Context, facturaID string) ([]*entity.PagoFactura, error) {
	query := `SELECT ` + pagoColumns + ` FROM pagos_factura WHERE factura_id = $1 ORDER BY num_parcialidad`
	rows, err := r.q.Query(ctx, query, facturaID)
	if err != nil {
		return nil, fmt.Errorf("get pagos: %w", err)
	}
	defer rows.Close()

	var pagos []*entity.PagoFactura
	for rows.Next() {
		p, err := scanPago(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pago: %w", err)
		}
		pagos = append(pagos, p)
	}
	return pagos, rows.Err()
}

// TotalPagado suma los pagos con complemento timbrado (los pendientes no
// reducen el saldo).
func (r *PagoRepo) TotalPagado(ctx context.Context, facturaID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(monto_pago), 0)
		FROM pagos_factura
		WHERE factura_id = $1 AND estado_timbrado = 'TIMBRADO'`
	var total decimal.Decimal
	if err := r.q.QueryRow(ctx, query, facturaID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("total pagado: %w", err)
	}
	return total, nil
}

// ActualizarTimbrado persiste el complemento timbrado del pago.
func (r *PagoRepo) ActualizarTimbrado(ctx context.Context, p *entity.PagoFactura) error {
	query := `
		UPDATE pagos_factura
		SET estado_timbrado     = $2,
		    uuid                = $3,
		    fecha_timbrado      = $4,
		    sello               = $5,
		    sello_sat           = $6,
		    no_certificado_sat  = $7,
		    cadena_original_sat = $8,
		    xml_timbrado        = $9
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		p.ID, p.EstadoTimbrado, nullIfEmpty(p.UUID), p.FechaTimbrado,
		nullIfEmpty(p.Sello), nullIfEmpty(p.SelloSAT), nullIfEmpty(p.NoCertificadoSAT),
		nullIfEmpty(p.CadenaOriginalSAT), nullIfEmpty(p.XMLTimbrado),
	)
	if err != nil {
		return fmt.Errorf("update pago: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pago %s", domain.ErrNotFound, p.ID)
	}
	return nil
}

func scanPago(row pgx.Row) (*entity.PagoFactura, error) {
	var p entity.PagoFactura
	var uuidFiscal, sello, selloSAT, noCertSAT, cadena, xmlTimbrado *string
	err := row.Scan(
		&p.ID, &p.FacturaID, &p.FechaPago, &p.MontoPago, &p.FormaPago, &p.NumParcialidad,
		&p.EstadoTimbrado, &uuidFiscal, &p.FechaTimbrado, &sello, &selloSAT, &noCertSAT,
		&cadena, &xmlTimbrado, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.UUID = derefStr(uuidFiscal)
	p.Sello = derefStr(sello)
	p.SelloSAT = derefStr(selloSAT)
	p.NoCertificadoSAT = derefStr(noCertSAT)
	p.CadenaOriginalSAT = derefStr(cadena)
	p.XMLTimbrado = derefStr(xmlTimbrado)
	return &p, nil
}
