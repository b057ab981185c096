// Package sat: generación de la cadena original del CFDI 4.0 (Anexo 20).
// La cadena es la secuencia canónica de campos delimitados por pipe que se
// sella con RSA-SHA256; el mismo input produce siempre la misma cadena byte
// a byte.
package sat

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// Constantes fijas del traslado IVA 16% en la cadena.
const (
	ImpuestoIVA   = "002"
	TipoFactorIVA = "Tasa"
	TasaIVA16     = "0.160000"
)

// FormatoFechaCFDI es el formato de fecha del Anexo 20 (sin zona horaria).
const FormatoFechaCFDI = "2006-01-02T15:04:05"

// CadenaService genera cadenas originales de comprobantes y complementos de pago.
type CadenaService struct{}

// NewCadenaService crea el servicio.
func NewCadenaService() *CadenaService {
	return &CadenaService{}
}

// Comprobante genera la cadena original de un CFDI de ingreso.
// Secuencia: comprobante, emisor, receptor, un bloque por concepto y, si hay
// impuesto, el bloque de traslado IVA 16%.
func (s *CadenaService) Comprobante(f *entity.Factura, e *entity.Emisor, c *entity.Cliente, detalles []*entity.FacturaDetalle) (string, error) {
	if f == nil || e == nil || c == nil {
		return "", fmt.Errorf("sat: faltan factura, emisor o cliente para la cadena original")
	}
	if len(detalles) == 0 {
		return "", fmt.Errorf("sat: la factura no tiene conceptos")
	}

	var sb strings.Builder

	// Datos del comprobante
	sb.WriteString("||4.0")
	sb.WriteString("|" + texto(f.Serie))
	sb.WriteString("|" + texto(f.Folio))
	sb.WriteString("|" + f.FechaEmision.Format(FormatoFechaCFDI))
	sb.WriteString("|" + f.Exportacion)
	sb.WriteString("|" + f.Moneda)
	sb.WriteString("|" + f.TipoCambio.StringFixed(4))
	sb.WriteString("|" + monto(f.Total))
	sb.WriteString("|I")
	sb.WriteString("|" + f.MetodoPago)
	sb.WriteString("|" + f.LugarExpedicion)
	sb.WriteString("|")

	// Datos del emisor
	sb.WriteString("|" + e.RFC)
	sb.WriteString("|" + texto(e.RazonSocial))
	sb.WriteString("|" + e.RegimenFiscal)
	sb.WriteString("|")

	// Datos del receptor
	sb.WriteString("|" + c.RFC)
	sb.WriteString("|" + texto(c.RazonSocial))
	sb.WriteString("|" + c.CodigoPostal)
	sb.WriteString("|" + c.RegimenFiscal)
	sb.WriteString("|" + f.UsoCFDI)
	sb.WriteString("|")

	// Conceptos
	for _, d := range detalles {
		sb.WriteString("|" + d.ClaveProdServ)
		sb.WriteString("|" + texto(d.NoIdentificacion))
		sb.WriteString("|" + monto(d.Cantidad))
		sb.WriteString("|" + texto(d.Unidad))
		sb.WriteString("|" + texto(d.Descripcion))
		sb.WriteString("|" + monto(d.ValorUnitario))
		sb.WriteString("|" + monto(d.Importe))
		sb.WriteString("|" + d.ObjetoImp)
		sb.WriteString("|")
	}

	// Impuestos: un solo traslado IVA 16% sobre la base de los conceptos
	// con objeto de impuesto 02.
	if f.Impuesto.IsPositive() {
		base := decimal.Zero
		for _, d := range detalles {
			if d.ObjetoImp == entity.ObjetoImpSi {
				base = base.Add(d.Importe)
			}
		}
		sb.WriteString("|" + monto(base))
		sb.WriteString("|" + ImpuestoIVA)
		sb.WriteString("|" + TipoFactorIVA)
		sb.WriteString("|" + TasaIVA16)
		sb.WriteString("|" + monto(f.Impuesto))
		sb.WriteString("|")
	}

	return sb.String(), nil
}

// monto formatea importes para la cadena: sin separador de miles, punto
// decimal, 2 decimales (ej: 1500.00).
func monto(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// texto normaliza a NFC y recorta espacios para que la misma cadena lógica
// siempre produzca los mismos bytes, independientemente de cómo se capturó.
func texto(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// FechaCFDI formatea un time.Time en el formato del Anexo 20.
func FechaCFDI(t time.Time) string {
	return t.Format(FormatoFechaCFDI)
}
