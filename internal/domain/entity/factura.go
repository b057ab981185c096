package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de timbrado del CFDI.
// PENDIENTE y ERROR son timbrables (ERROR es reintentable); TIMBRADO solo
// admite la transición a CANCELADO, que es definitiva.
const (
	EstadoPendiente = "PENDIENTE"
	EstadoTimbrado  = "TIMBRADO"
	EstadoError     = "ERROR"
	EstadoCancelado = "CANCELADO"
)

// Métodos de pago CFDI 4.0.
const (
	MetodoPagoPUE = "PUE" // Pago en una sola exhibición
	MetodoPagoPPD = "PPD" // Pago en parcialidades o diferido
)

// Factura representa la cabecera de un CFDI de ingreso (TipoDeComprobante I).
type Factura struct {
	ID        string
	EmisorID  string
	ClienteID string

	Serie           string
	Folio           string
	FechaEmision    time.Time
	LugarExpedicion string // Código postal del emisor
	Moneda          string
	TipoCambio      decimal.Decimal // 1.0000 obligatorio para MXN
	FormaPago       string          // Catálogo c_FormaPago (01, 03, 99...)
	MetodoPago      string          // PUE | PPD
	UsoCFDI         string          // Catálogo c_UsoCFDI del receptor
	Exportacion     string          // 01 = no aplica
	CondicionesPago string

	Subtotal  decimal.Decimal
	Descuento decimal.Decimal
	Impuesto  decimal.Decimal // Total IVA trasladado
	Total     decimal.Decimal

	// Información global: solo para público en general (XAXX010101000).
	Periodicidad string
	Meses        string
	Anio         int

	// Resultado del timbrado. UUID no vacío si y solo si el estado es TIMBRADO.
	EstadoTimbrado    string
	UUID              string
	FechaTimbrado     *time.Time
	NoCertificadoSAT  string
	SelloSAT          string
	SelloCFD          string
	XMLOriginal       string // CFDI sellado tal como se envió al PAC
	XMLTimbrado       string // CFDI con TimbreFiscalDigital devuelto por el PAC
	ErroresValidacion string
	IntentosTimbrado  int
	UltimoIntento     *time.Time

	// Cancelación (solo desde TIMBRADO).
	FechaCancelacion  *time.Time
	MotivoCancelacion string
	AcuseCancelacion  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EsTimbrable indica si la factura puede entrar al pipeline de timbrado.
func (f *Factura) EsTimbrable() bool {
	return f.EstadoTimbrado == EstadoPendiente || f.EstadoTimbrado == EstadoError
}

// SaldoPendiente devuelve el total menos los pagos aplicados.
func (f *Factura) SaldoPendiente(pagosAplicados decimal.Decimal) decimal.Decimal {
	return f.Total.Sub(pagosAplicados)
}
