package entity

import "github.com/shopspring/decimal"

// Objeto de impuesto por concepto (catálogo c_ObjetoImp).
const (
	ObjetoImpNoObjeto = "01" // No objeto de impuesto
	ObjetoImpSi       = "02" // Sí objeto de impuesto (lleva Traslado por línea)
	ObjetoImpSinDesg  = "03" // Sí objeto, no obligado al desglose
)

// FacturaDetalle es una línea (Concepto) del CFDI.
type FacturaDetalle struct {
	ID        string
	FacturaID string

	ClaveProdServ    string // Catálogo c_ClaveProdServ (8 dígitos)
	NoIdentificacion string
	ClaveUnidad      string // Catálogo c_ClaveUnidad (H87, KGM, ACT...)
	Unidad           string
	Descripcion      string

	Cantidad      decimal.Decimal
	ValorUnitario decimal.Decimal
	Importe       decimal.Decimal
	Descuento     decimal.Decimal

	ObjetoImp string
	TasaIVA   decimal.Decimal // 0.160000 para IVA 16%
}

// IVATrasladado calcula el IVA de la línea (base = importe, redondeo a 2).
func (d *FacturaDetalle) IVATrasladado() decimal.Decimal {
	if d.ObjetoImp != ObjetoImpSi {
		return decimal.Zero
	}
	return d.Importe.Mul(d.TasaIVA).Round(2)
}
