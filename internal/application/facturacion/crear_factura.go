package facturacion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
	pkgsat "github.com/directiva-agricola/facturacion-api/pkg/sat"
)

// CrearFacturaInput son los datos de captura de una factura nueva. Los campos
// opcionales (serie, folio, uso CFDI, tipo de cambio) se resuelven con los
// valores por defecto del emisor y del cliente.
type CrearFacturaInput struct {
	ClienteID       string
	Serie           string
	Folio           string
	Moneda          string
	TipoCambio      decimal.Decimal
	FormaPago       string
	MetodoPago      string
	UsoCFDI         string
	CondicionesPago string

	// Información global, solo para público en general.
	Periodicidad string
	Meses        string
	Anio         int

	Detalles []CrearDetalleInput
}

// CrearDetalleInput es una línea de concepto de la captura.
type CrearDetalleInput struct {
	ClaveProdServ    string
	NoIdentificacion string
	ClaveUnidad      string
	Unidad           string
	Descripcion      string
	Cantidad         decimal.Decimal
	ValorUnitario    decimal.Decimal
	Descuento        decimal.Decimal
	ObjetoImp        string
	TasaIVA          decimal.Decimal
}

// CrearFacturaUseCase captura una factura en PENDIENTE: valida catálogos,
// calcula importes y totales, y guarda cabecera y conceptos en una sola
// transacción. El timbrado es un paso posterior (TimbradoOrchestrator).
type CrearFacturaUseCase struct {
	txRunner TxRunner
	facturas repository.FacturaRepository
	emisores repository.EmisorRepository
	clientes repository.ClienteRepository
	log      zerolog.Logger
	ahora    func() time.Time
}

// NewCrearFacturaUseCase construye el caso de uso.
func NewCrearFacturaUseCase(
	txRunner TxRunner,
	facturas repository.FacturaRepository,
	emisores repository.EmisorRepository,
	clientes repository.ClienteRepository,
	log zerolog.Logger,
) *CrearFacturaUseCase {
	return &CrearFacturaUseCase{
		txRunner: txRunner,
		facturas: facturas,
		emisores: emisores,
		clientes: clientes,
		log:      log.With().Str("component", "crear_factura").Logger(),
		ahora:    time.Now,
	}
}

// Crear valida la captura y persiste la factura con sus conceptos. Devuelve
// la factura en estado PENDIENTE lista para timbrar.
func (uc *CrearFacturaUseCase) Crear(ctx context.Context, emisorID string, in *CrearFacturaInput) (*entity.Factura, error) {
	if in.ClienteID == "" || len(in.Detalles) == 0 {
		return nil, fmt.Errorf("%w: cliente y al menos un concepto son obligatorios", domain.ErrValidacion)
	}

	emisor, err := uc.emisores.GetByID(ctx, emisorID)
	if err != nil {
		return nil, err
	}
	if !emisor.Activo {
		return nil, fmt.Errorf("%w: el emisor %s no está activo", domain.ErrValidacion, emisor.RFC)
	}

	cliente, err := uc.clientes.GetByID(ctx, in.ClienteID)
	if err != nil {
		return nil, err
	}
	if cliente.EmisorID != emisorID {
		return nil, fmt.Errorf("%w: el cliente no pertenece al emisor", domain.ErrValidacion)
	}

	ahora := uc.ahora()

	// ── Resolución de valores por defecto ──
	serie := strings.TrimSpace(in.Serie)
	if serie == "" {
		serie = emisor.Serie
	}
	folio := strings.TrimSpace(in.Folio)
	if folio == "" {
		folio = fmt.Sprintf("%d", ahora.Unix())
	}
	moneda := in.Moneda
	if moneda == "" {
		moneda = "MXN"
	}
	usoCFDI := in.UsoCFDI
	if usoCFDI == "" {
		usoCFDI = cliente.UsoCFDI
	}

	// ── Catálogos SAT ──
	if !pkgsat.ValidMetodosPago[in.MetodoPago] {
		return nil, fmt.Errorf("%w: método de pago %q inválido", domain.ErrValidacion, in.MetodoPago)
	}
	if !pkgsat.ValidFormasPago[in.FormaPago] {
		return nil, fmt.Errorf("%w: forma de pago %q inválida", domain.ErrValidacion, in.FormaPago)
	}
	if in.MetodoPago == entity.MetodoPagoPPD && in.FormaPago != pkgsat.FormaPagoPorDefinir {
		return nil, fmt.Errorf("%w: una factura PPD lleva forma de pago 99 (por definir)", domain.ErrValidacion)
	}
	if !pkgsat.ValidMonedas[moneda] || moneda == pkgsat.MonedaSinValor {
		return nil, fmt.Errorf("%w: moneda %q inválida para un comprobante de ingreso", domain.ErrValidacion, moneda)
	}
	if !pkgsat.ValidUsosCFDI[usoCFDI] {
		return nil, fmt.Errorf("%w: uso CFDI %q inválido", domain.ErrValidacion, usoCFDI)
	}

	tipoCambio := in.TipoCambio
	if moneda == "MXN" {
		tipoCambio = decimal.NewFromInt(1)
	} else if !tipoCambio.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: moneda %s requiere tipo de cambio mayor a cero", domain.ErrValidacion, moneda)
	}

	existe, err := uc.facturas.ExisteFolio(ctx, emisorID, serie, folio, "")
	if err != nil {
		return nil, err
	}
	if existe {
		return nil, fmt.Errorf("%w: ya existe el folio %s-%s para el emisor", domain.ErrDuplicate, serie, folio)
	}

	// ── Conceptos: importes por línea y totales ──
	facturaID := uuid.New().String()
	var subtotal, descuento, impuesto decimal.Decimal
	detalles := make([]*entity.FacturaDetalle, 0, len(in.Detalles))
	for i, d := range in.Detalles {
		if d.ClaveProdServ == "" || d.ClaveUnidad == "" || d.Descripcion == "" {
			return nil, fmt.Errorf("%w: concepto %d incompleto (clave, unidad y descripción son obligatorios)", domain.ErrValidacion, i+1)
		}
		if !d.Cantidad.GreaterThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: concepto %d con cantidad no positiva", domain.ErrValidacion, i+1)
		}
		if d.ValorUnitario.LessThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: concepto %d con valor unitario negativo", domain.ErrValidacion, i+1)
		}
		objetoImp := d.ObjetoImp
		if objetoImp == "" {
			objetoImp = entity.ObjetoImpSi
		}
		if !pkgsat.ValidObjetoImp[objetoImp] {
			return nil, fmt.Errorf("%w: concepto %d con objeto de impuesto %q inválido", domain.ErrValidacion, i+1, objetoImp)
		}

		importe := d.Cantidad.Mul(d.ValorUnitario).Round(2)
		if d.Descuento.LessThan(decimal.Zero) || d.Descuento.GreaterThan(importe) {
			return nil, fmt.Errorf("%w: concepto %d con descuento fuera de rango", domain.ErrValidacion, i+1)
		}

		det := &entity.FacturaDetalle{
			ID:               uuid.New().String(),
			FacturaID:        facturaID,
			ClaveProdServ:    d.ClaveProdServ,
			NoIdentificacion: d.NoIdentificacion,
			ClaveUnidad:      d.ClaveUnidad,
			Unidad:           d.Unidad,
			Descripcion:      d.Descripcion,
			Cantidad:         d.Cantidad,
			ValorUnitario:    d.ValorUnitario,
			Importe:          importe,
			Descuento:        d.Descuento,
			ObjetoImp:        objetoImp,
			TasaIVA:          d.TasaIVA,
		}
		subtotal = subtotal.Add(importe)
		descuento = descuento.Add(d.Descuento)
		impuesto = impuesto.Add(det.IVATrasladado())
		detalles = append(detalles, det)
	}
	total := subtotal.Sub(descuento).Add(impuesto)

	factura := &entity.Factura{
		ID:              facturaID,
		EmisorID:        emisorID,
		ClienteID:       cliente.ID,
		Serie:           serie,
		Folio:           folio,
		FechaEmision:    ahora,
		LugarExpedicion: emisor.CodigoPostal,
		Moneda:          moneda,
		TipoCambio:      tipoCambio,
		FormaPago:       in.FormaPago,
		MetodoPago:      in.MetodoPago,
		UsoCFDI:         usoCFDI,
		Exportacion:     pkgsat.ExportacionNoAplica,
		CondicionesPago: in.CondicionesPago,
		Subtotal:        subtotal,
		Descuento:       descuento,
		Impuesto:        impuesto,
		Total:           total,
		Periodicidad:    in.Periodicidad,
		Meses:           in.Meses,
		Anio:            in.Anio,
		EstadoTimbrado:  entity.EstadoPendiente,
		CreatedAt:       ahora,
		UpdatedAt:       ahora,
	}

	// Cabecera y conceptos en una sola transacción: o se guarda todo o nada.
	err = uc.txRunner.RunFacturacion(ctx, func(
		facturaRepo repository.FacturaRepository,
		_ repository.PagoFacturaRepository,
	) error {
		if err := facturaRepo.Create(ctx, factura); err != nil {
			return err
		}
		for _, det := range detalles {
			if err := facturaRepo.CreateDetalle(ctx, det); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("factura_id", factura.ID).
		Str("folio", serie+"-"+folio).
		Str("total", total.StringFixed(2)).
		Msg("Factura capturada en PENDIENTE")
	return factura, nil
}
