// Package sat implementa la generación del XML CFDI 4.0 (Anexo 20), el
// manejo del CSD y la extracción del timbre fiscal.
package sat

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// ComprobanteBuildContext agrupa todo lo necesario para construir el XML del
// comprobante ya sellado: modelos más los tres valores que produce el sellado.
type ComprobanteBuildContext struct {
	Factura  *entity.Factura
	Emisor   *entity.Emisor
	Cliente  *entity.Cliente
	Detalles []*entity.FacturaDetalle

	Sello          string
	NoCertificado  string
	CertificadoB64 string
}

// PagoBuildContext agrupa los datos para el XML del complemento de pago.
type PagoBuildContext struct {
	Factura *entity.Factura
	Emisor  *entity.Emisor
	Cliente *entity.Cliente
	Pago    *entity.PagoFactura

	FechaEmision time.Time

	BaseIVA          decimal.Decimal
	ImporteIVA       decimal.Decimal
	TasaIVA          decimal.Decimal
	ImpSaldoAnterior decimal.Decimal
	ImpPagado        decimal.Decimal
	ImpSaldoInsoluto decimal.Decimal

	Sello          string
	NoCertificado  string
	CertificadoB64 string
}

// TimbreFiscal son los datos del TimbreFiscalDigital que el PAC agrega al
// CFDI. FechaTimbrado se conserva como viene en el atributo porque la cadena
// del timbre la usa textual.
type TimbreFiscal struct {
	UUID             string
	FechaTimbrado    string
	SelloCFD         string
	NoCertificadoSAT string
	SelloSAT         string
}

// FechaTimbradoTime interpreta la fecha del timbre como hora local del SAT.
func (t *TimbreFiscal) FechaTimbradoTime() (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05", t.FechaTimbrado)
}
