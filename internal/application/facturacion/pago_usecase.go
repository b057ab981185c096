package facturacion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
	domsat "github.com/directiva-agricola/facturacion-api/internal/domain/sat"
	"github.com/directiva-agricola/facturacion-api/internal/infrastructure/pac"
	infsat "github.com/directiva-agricola/facturacion-api/internal/infrastructure/sat"
	pkgsat "github.com/directiva-agricola/facturacion-api/pkg/sat"
)

// factorIVA16 convierte un monto con IVA incluido a su base gravable.
var factorIVA16 = decimal.NewFromFloat(1.16)

// PagoUseCase registra pagos de facturas PPD y timbra su complemento
// Pagos 2.0 como CFDI de tipo P.
type PagoUseCase struct {
	facturas repository.FacturaRepository
	emisores repository.EmisorRepository
	clientes repository.ClienteRepository
	pagos    repository.PagoFacturaRepository

	cadenas      *domsat.CadenaService
	certificados *infsat.CertificadoService
	pagoBuilder  *infsat.PagoXMLBuilderService
	timbrador    pac.Timbrador

	log   zerolog.Logger
	ahora func() time.Time
}

// NewPagoUseCase construye el caso de uso con sus dependencias.
func NewPagoUseCase(
	facturas repository.FacturaRepository,
	emisores repository.EmisorRepository,
	clientes repository.ClienteRepository,
	pagos repository.PagoFacturaRepository,
	cadenas *domsat.CadenaService,
	certificados *infsat.CertificadoService,
	pagoBuilder *infsat.PagoXMLBuilderService,
	timbrador pac.Timbrador,
	log zerolog.Logger,
) *PagoUseCase {
	return &PagoUseCase{
		facturas:     facturas,
		emisores:     emisores,
		clientes:     clientes,
		pagos:        pagos,
		cadenas:      cadenas,
		certificados: certificados,
		pagoBuilder:  pagoBuilder,
		timbrador:    timbrador,
		log:          log.With().Str("component", "pago_usecase").Logger(),
		ahora:        time.Now,
	}
}

// Pagos devuelve los pagos registrados de una factura, ordenados por
// parcialidad.
func (u *PagoUseCase) Pagos(ctx context.Context, facturaID string) ([]*entity.PagoFactura, error) {
	if _, err := u.facturas.GetByID(ctx, facturaID); err != nil {
		return nil, fmt.Errorf("factura %s: %w", facturaID, err)
	}
	return u.pagos.GetByFacturaID(ctx, facturaID)
}

// RegistrarPago valida el pago contra el saldo de la factura, lo persiste y
// timbra el complemento. La factura debe ser PPD y estar timbrada.
func (u *PagoUseCase) RegistrarPago(ctx context.Context, facturaID string, fechaPago time.Time, monto decimal.Decimal, formaPago string) (*entity.PagoFactura, error) {
	// ═══════════════════════════════════════════════════════════════════════════
	// 1. La factura relacionada: PPD, timbrada y con saldo
	// ═══════════════════════════════════════════════════════════════════════════
	f, err := u.facturas.GetByID(ctx, facturaID)
	if err != nil {
		return nil, fmt.Errorf("factura %s: %w", facturaID, err)
	}
	if f.MetodoPago != entity.MetodoPagoPPD {
		return nil, fmt.Errorf("%w: solo las facturas PPD reciben complementos de pago (método %s)",
			domain.ErrValidacion, f.MetodoPago)
	}
	if f.EstadoTimbrado != entity.EstadoTimbrado || f.UUID == "" {
		return nil, fmt.Errorf("%w: la factura debe estar timbrada antes de recibir pagos (estado %s)",
			domain.ErrEstado, f.EstadoTimbrado)
	}

	if !monto.IsPositive() {
		return nil, fmt.Errorf("%w: el monto del pago debe ser mayor que cero", domain.ErrValidacion)
	}
	if _, ok := pkgsat.ValidFormasPago[formaPago]; !ok {
		return nil, fmt.Errorf("%w: forma de pago %q fuera de catálogo", domain.ErrValidacion, formaPago)
	}

	pagado, err := u.pagos.TotalPagado(ctx, facturaID)
	if err != nil {
		return nil, fmt.Errorf("total pagado de %s: %w", facturaID, err)
	}
	saldo := f.SaldoPendiente(pagado)
	if monto.GreaterThan(saldo) {
		return nil, fmt.Errorf("%w: el pago de %s excede el saldo pendiente de %s",
			domain.ErrValidacion, monto.StringFixed(2), saldo.StringFixed(2))
	}

	pagosPrevios, err := u.pagos.GetByFacturaID(ctx, facturaID)
	if err != nil {
		return nil, fmt.Errorf("pagos de %s: %w", facturaID, err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Registrar el pago
	// ═══════════════════════════════════════════════════════════════════════════
	pago := &entity.PagoFactura{
		FacturaID:      facturaID,
		FechaPago:      fechaPago,
		MontoPago:      monto.Round(2),
		FormaPago:      formaPago,
		NumParcialidad: len(pagosPrevios) + 1,
		EstadoTimbrado: entity.EstadoPendiente,
	}
	if err := u.pagos.Create(ctx, pago); err != nil {
		return nil, fmt.Errorf("crear pago: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. Timbrar el complemento
	// ═══════════════════════════════════════════════════════════════════════════
	if err := u.timbrarComplemento(ctx, f, pago, saldo); err != nil {
		u.log.Error().Str("pago_id", pago.ID).Err(err).Msg("complemento de pago no timbrado")
		return pago, err
	}
	return pago, nil
}

func (u *PagoUseCase) timbrarComplemento(ctx context.Context, f *entity.Factura, pago *entity.PagoFactura, saldoAnterior decimal.Decimal) error {
	emisor, err := u.emisores.GetByID(ctx, f.EmisorID)
	if err != nil {
		return fmt.Errorf("emisor %s: %w", f.EmisorID, err)
	}
	cliente, err := u.clientes.GetByID(ctx, f.ClienteID)
	if err != nil {
		return fmt.Errorf("cliente %s: %w", f.ClienteID, err)
	}

	ahora := u.ahora()
	monto := pago.MontoPago
	insoluto := saldoAnterior.Sub(monto)

	// El desglose de IVA del pago se deriva del monto con IVA incluido.
	var baseIVA, importeIVA, tasa decimal.Decimal
	if f.Impuesto.IsPositive() {
		baseIVA = monto.Div(factorIVA16).Round(2)
		importeIVA = monto.Sub(baseIVA)
		tasa = decimal.NewFromFloat(0.16)
	}

	params := &domsat.PagoCadenaParams{
		Pago:             pago,
		FechaEmision:     ahora,
		BaseIVA:          baseIVA,
		ImporteIVA:       importeIVA,
		TasaIVA:          tasa,
		ImpSaldoAnterior: saldoAnterior,
		ImpPagado:        monto,
		ImpSaldoInsoluto: insoluto,
	}
	cadena, err := u.cadenas.ComplementoPago(f, emisor, cliente, params)
	if err != nil {
		return err
	}

	material, err := u.certificados.CargarMaterial(emisor)
	if err != nil {
		return err
	}
	sello, err := u.certificados.Sellar(cadena, material.Llave)
	if err != nil {
		return err
	}

	xmlSellado, err := u.pagoBuilder.Build(&infsat.PagoBuildContext{
		Factura:          f,
		Emisor:           emisor,
		Cliente:          cliente,
		Pago:             pago,
		FechaEmision:     ahora,
		BaseIVA:          baseIVA,
		ImporteIVA:       importeIVA,
		TasaIVA:          tasa,
		ImpSaldoAnterior: saldoAnterior,
		ImpPagado:        monto,
		ImpSaldoInsoluto: insoluto,
		Sello:            sello,
		NoCertificado:    material.NoCertificado,
		CertificadoB64:   material.CertificadoB64,
	})
	if err != nil {
		return err
	}

	resultado, err := u.timbrador.Timbrar(ctx, &pac.TimbradoRequest{
		XMLCFDI: xmlSellado,
		Cert:    emisor.ArchivoCertificado,
		Key:     emisor.ArchivoLlave,
		KeyPass: emisor.PasswordLlave,
		Prueba:  emisor.TimbradoPrueba,
	})
	if err != nil {
		return err
	}
	if resultado.UUID == "" {
		return fmt.Errorf("%w: el PAC reportó éxito sin folio fiscal", domain.ErrAutoridad)
	}

	pago.EstadoTimbrado = entity.EstadoTimbrado
	pago.UUID = resultado.UUID
	pago.Sello = sello
	pago.SelloSAT = resultado.SelloSAT
	pago.NoCertificadoSAT = resultado.NoCertificadoSAT
	pago.CadenaOriginalSAT = cadena
	pago.XMLTimbrado = string(resultado.XMLTimbrado)
	if ft, perr := time.Parse(domsat.FormatoFechaCFDI, resultado.FechaTimbrado); perr == nil {
		pago.FechaTimbrado = &ft
	} else {
		pago.FechaTimbrado = &ahora
	}

	if err := u.pagos.ActualizarTimbrado(ctx, pago); err != nil {
		return fmt.Errorf("persistir complemento timbrado: %w", err)
	}

	u.log.Info().
		Str("pago_id", pago.ID).
		Str("uuid", pago.UUID).
		Int("parcialidad", pago.NumParcialidad).
		Msg("complemento de pago timbrado")
	return nil
}
