package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PagoFactura es un pago aplicado a una factura PPD. Genera su propio CFDI
// de tipo P (complemento Pagos 2.0) con UUID y sellos independientes.
type PagoFactura struct {
	ID        string
	FacturaID string

	FechaPago      time.Time
	MontoPago      decimal.Decimal
	FormaPago      string // Catálogo c_FormaPago (03 = transferencia)
	NumParcialidad int

	// Resultado del timbrado del complemento.
	EstadoTimbrado    string
	UUID              string
	FechaTimbrado     *time.Time
	Sello             string
	SelloSAT          string
	NoCertificadoSAT  string
	CadenaOriginalSAT string
	XMLTimbrado       string

	CreatedAt time.Time
}
