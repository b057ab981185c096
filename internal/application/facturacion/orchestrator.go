package facturacion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
	domsat "github.com/directiva-agricola/facturacion-api/internal/domain/sat"
	"github.com/directiva-agricola/facturacion-api/internal/infrastructure/pac"
	infsat "github.com/directiva-agricola/facturacion-api/internal/infrastructure/sat"
)

// TimbradoOrchestrator ejecuta el ciclo completo de timbrado de una factura.
// Cada factura se procesa bajo un candado propio: una segunda petición sobre
// el mismo ID no espera, falla de inmediato con ErrEstado.
type TimbradoOrchestrator struct {
	facturas repository.FacturaRepository
	emisores repository.EmisorRepository
	clientes repository.ClienteRepository

	cadenas      *domsat.CadenaService
	certificados *infsat.CertificadoService
	xmlBuilder   *infsat.XMLBuilderService
	timbrador    pac.Timbrador

	cfg Config
	log zerolog.Logger

	// locks guarda un *sync.Mutex por factura en proceso.
	locks sync.Map

	// ahora permite fijar el reloj en tests.
	ahora func() time.Time
}

// NewTimbradoOrchestrator construye el orquestador con todas sus dependencias.
func NewTimbradoOrchestrator(
	facturas repository.FacturaRepository,
	emisores repository.EmisorRepository,
	clientes repository.ClienteRepository,
	cadenas *domsat.CadenaService,
	certificados *infsat.CertificadoService,
	xmlBuilder *infsat.XMLBuilderService,
	timbrador pac.Timbrador,
	cfg Config,
	log zerolog.Logger,
) *TimbradoOrchestrator {
	return &TimbradoOrchestrator{
		facturas:     facturas,
		emisores:     emisores,
		clientes:     clientes,
		cadenas:      cadenas,
		certificados: certificados,
		xmlBuilder:   xmlBuilder,
		timbrador:    timbrador,
		cfg:          cfg,
		log:          log.With().Str("component", "timbrado_orchestrator").Logger(),
		ahora:        time.Now,
	}
}

// Timbrar procesa la factura de punta a punta y devuelve la factura ya
// timbrada. Los fallos de validación dejan la factura en ERROR sin contar
// intento; los fallos de envío al PAC sí cuentan.
func (o *TimbradoOrchestrator) Timbrar(ctx context.Context, facturaID string) (*entity.Factura, error) {
	logf := o.log.With().Str("factura_id", facturaID).Logger()

	// ═══════════════════════════════════════════════════════════════════════════
	// 0. Candado por factura: jamás dos timbrados concurrentes del mismo ID
	// ═══════════════════════════════════════════════════════════════════════════
	mu := o.candado(facturaID)
	if !mu.TryLock() {
		return nil, fmt.Errorf("%w: la factura %s ya tiene un timbrado en proceso", domain.ErrEstado, facturaID)
	}
	defer mu.Unlock()

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Configuración: fallar aquí antes de tocar certificados o red
	// ═══════════════════════════════════════════════════════════════════════════
	if o.cfg.Entorno == EntornoProduccion && o.cfg.Simulacion {
		return nil, fmt.Errorf("%w: la simulación de timbrado está prohibida en producción", domain.ErrConfiguracion)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Re-fetch datos frescos y verificación de estado
	// ═══════════════════════════════════════════════════════════════════════════
	f, err := o.facturas.GetByID(ctx, facturaID)
	if err != nil {
		return nil, fmt.Errorf("factura %s: %w", facturaID, err)
	}
	if !f.EsTimbrable() {
		return nil, fmt.Errorf("%w: la factura está en %s y no es timbrable", domain.ErrEstado, f.EstadoTimbrado)
	}

	emisor, err := o.emisores.GetByID(ctx, f.EmisorID)
	if err != nil {
		return nil, fmt.Errorf("emisor %s: %w", f.EmisorID, err)
	}
	cliente, err := o.clientes.GetByID(ctx, f.ClienteID)
	if err != nil {
		return nil, fmt.Errorf("cliente %s: %w", f.ClienteID, err)
	}
	detalles, err := o.facturas.GetDetalles(ctx, facturaID)
	if err != nil {
		return nil, fmt.Errorf("detalles de %s: %w", facturaID, err)
	}

	if emisor.ArchivoCertificado == "" || emisor.ArchivoLlave == "" {
		return nil, fmt.Errorf("%w: el emisor %s no tiene certificado o llave capturados", domain.ErrConfiguracion, emisor.RFC)
	}

	// Folio duplicado dentro de (emisor, serie): error duro, nunca se reasigna.
	duplicado, err := o.facturas.ExisteFolio(ctx, f.EmisorID, f.Serie, f.Folio, f.ID)
	if err != nil {
		return nil, fmt.Errorf("verificar folio: %w", err)
	}
	if duplicado {
		return nil, fmt.Errorf("%w: el folio %s-%s ya existe para el emisor", domain.ErrValidacion, f.Serie, f.Folio)
	}

	ahora := o.ahora()

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. Certificado del emisor (CSD vigente, no FIEL, RFC coincidente)
	// ═══════════════════════════════════════════════════════════════════════════
	advertencias, err := o.certificados.ValidarEmisor(emisor, ahora)
	if err != nil {
		return nil, o.registrarFallo(ctx, logf, f, "certificado", err)
	}
	for _, adv := range advertencias {
		logf.Warn().Str("emisor", emisor.RFC).Msg(adv)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Validación del comprobante (catálogos, totales, ventana de emisión)
	// ═══════════════════════════════════════════════════════════════════════════
	if err := domsat.ValidarComprobante(f, emisor, cliente, detalles, ahora); err != nil {
		return nil, o.marcarError(ctx, logf, f, "validacion", err, false)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 5. Cadena original y sello digital
	// ═══════════════════════════════════════════════════════════════════════════
	cadena, err := o.cadenas.Comprobante(f, emisor, cliente, detalles)
	if err != nil {
		return nil, o.registrarFallo(ctx, logf, f, "cadena", err)
	}
	material, err := o.certificados.CargarMaterial(emisor)
	if err != nil {
		return nil, o.registrarFallo(ctx, logf, f, "certificado", err)
	}
	sello, err := o.certificados.Sellar(cadena, material.Llave)
	if err != nil {
		return nil, o.registrarFallo(ctx, logf, f, "sello", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 6. XML CFDI 4.0 sellado
	// ═══════════════════════════════════════════════════════════════════════════
	xmlSellado, err := o.xmlBuilder.Build(&infsat.ComprobanteBuildContext{
		Factura:        f,
		Emisor:         emisor,
		Cliente:        cliente,
		Detalles:       detalles,
		Sello:          sello,
		NoCertificado:  material.NoCertificado,
		CertificadoB64: material.CertificadoB64,
	})
	if err != nil {
		return nil, o.registrarFallo(ctx, logf, f, "xml", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 7. Envío al PAC (con reintentos internos de transporte)
	// ═══════════════════════════════════════════════════════════════════════════
	resultado, err := o.timbrador.Timbrar(ctx, &pac.TimbradoRequest{
		XMLCFDI: xmlSellado,
		Cert:    emisor.ArchivoCertificado,
		Key:     emisor.ArchivoLlave,
		KeyPass: emisor.PasswordLlave,
		Prueba:  emisor.TimbradoPrueba,
	})
	if err != nil {
		return nil, o.marcarError(ctx, logf, f, "pac", err, true)
	}
	// Un éxito sin folio fiscal no es un éxito: jamás se persiste TIMBRADO
	// con UUID vacío.
	if resultado.UUID == "" {
		err := fmt.Errorf("%w: el PAC reportó éxito sin folio fiscal", domain.ErrAutoridad)
		return nil, o.marcarError(ctx, logf, f, "pac", err, true)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 8. Persistencia atómica del resultado (CAS sobre el estado previo)
	// ═══════════════════════════════════════════════════════════════════════════
	f.EstadoTimbrado = entity.EstadoTimbrado
	f.UUID = resultado.UUID
	f.SelloCFD = sello
	f.SelloSAT = resultado.SelloSAT
	f.NoCertificadoSAT = resultado.NoCertificadoSAT
	f.XMLOriginal = string(xmlSellado)
	f.XMLTimbrado = string(resultado.XMLTimbrado)
	f.ErroresValidacion = ""
	if ft, perr := time.Parse(domsat.FormatoFechaCFDI, resultado.FechaTimbrado); perr == nil {
		f.FechaTimbrado = &ft
	} else {
		f.FechaTimbrado = &ahora
	}

	if err := o.facturas.ActualizarTimbrado(ctx, f); err != nil {
		if errors.Is(err, domain.ErrEstado) {
			logf.Warn().Msg("otra petición timbró la factura primero")
		}
		return nil, err
	}

	logf.Info().Str("uuid", f.UUID).Msg("factura timbrada")
	return f, nil
}

// Cancelar solicita la cancelación del CFDI al PAC y persiste la transición
// TIMBRADO → CANCELADO. La cancelación es definitiva.
func (o *TimbradoOrchestrator) Cancelar(ctx context.Context, facturaID, motivo string) (*entity.Factura, error) {
	f, err := o.facturas.GetByID(ctx, facturaID)
	if err != nil {
		return nil, fmt.Errorf("factura %s: %w", facturaID, err)
	}
	if f.EstadoTimbrado != entity.EstadoTimbrado || f.UUID == "" {
		return nil, fmt.Errorf("%w: solo una factura timbrada puede cancelarse (estado actual %s)",
			domain.ErrEstado, f.EstadoTimbrado)
	}

	if err := o.timbrador.Cancelar(ctx, f.UUID, motivo); err != nil {
		return nil, err
	}

	acuse := fmt.Sprintf("cancelación aceptada %s", o.ahora().Format(domsat.FormatoFechaCFDI))
	if err := o.facturas.Cancelar(ctx, facturaID, motivo, acuse); err != nil {
		return nil, err
	}

	f.EstadoTimbrado = entity.EstadoCancelado
	f.MotivoCancelacion = motivo
	f.AcuseCancelacion = acuse
	o.log.Info().Str("factura_id", facturaID).Str("uuid", f.UUID).Msg("factura cancelada")
	return f, nil
}

// Factura devuelve la factura con su resultado de timbrado.
func (o *TimbradoOrchestrator) Factura(ctx context.Context, facturaID string) (*entity.Factura, error) {
	return o.facturas.GetByID(ctx, facturaID)
}

// Consultar pregunta al PAC el estatus del CFDI ante el SAT.
func (o *TimbradoOrchestrator) Consultar(ctx context.Context, facturaID string) (string, error) {
	f, err := o.facturas.GetByID(ctx, facturaID)
	if err != nil {
		return "", fmt.Errorf("factura %s: %w", facturaID, err)
	}
	if f.UUID == "" {
		return "", fmt.Errorf("%w: la factura no tiene UUID, no hay nada que consultar", domain.ErrEstado)
	}
	return o.timbrador.Consultar(ctx, f.UUID)
}

// ── helpers privados ──────────────────────────────────────────────────────────

func (o *TimbradoOrchestrator) candado(facturaID string) *sync.Mutex {
	mu, _ := o.locks.LoadOrStore(facturaID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// marcarError deja la factura en ERROR con el detalle y devuelve el error
// original para el caller. Se persiste sin la cancelación del request: si el
// caller abortó a mitad del envío, el resultado del intento debe quedar
// registrado de todos modos.
func (o *TimbradoOrchestrator) marcarError(ctx context.Context, logf zerolog.Logger, f *entity.Factura, paso string, err error, contarIntento bool) error {
	logf.Error().Str("paso", paso).Err(err).Msg("timbrado fallido")
	if dberr := o.facturas.MarcarError(context.WithoutCancel(ctx), f.ID, err.Error(), contarIntento); dberr != nil {
		logf.Error().Err(dberr).Msg("no se pudo persistir el estado ERROR")
	}
	return err
}

// registrarFallo anota el detalle de un fallo local de certificado o sellado.
// A diferencia de marcarError no mueve el estado ni consume intento: la
// factura sigue tal como estaba, solo con el error a la vista.
func (o *TimbradoOrchestrator) registrarFallo(ctx context.Context, logf zerolog.Logger, f *entity.Factura, paso string, err error) error {
	logf.Error().Str("paso", paso).Err(err).Msg("timbrado fallido")
	if dberr := o.facturas.RegistrarFallo(context.WithoutCancel(ctx), f.ID, err.Error()); dberr != nil {
		logf.Error().Err(dberr).Msg("no se pudo persistir el detalle del fallo")
	}
	return err
}
