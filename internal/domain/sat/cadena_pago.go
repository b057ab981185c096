package sat

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// PagoCadenaParams agrupa los datos del complemento de pago que no viven en
// los modelos: fecha de emisión del comprobante P y desglose de IVA y saldos
// calculados por el caso de uso.
type PagoCadenaParams struct {
	Pago         *entity.PagoFactura
	FechaEmision time.Time

	BaseIVA    decimal.Decimal
	ImporteIVA decimal.Decimal
	TasaIVA    decimal.Decimal // 0.16; 0 para tasa cero

	ImpSaldoAnterior decimal.Decimal
	ImpPagado        decimal.Decimal
	ImpSaldoInsoluto decimal.Decimal
}

// ComplementoPago genera la cadena original de un CFDI de tipo P (Pagos 2.0).
// El comprobante P es un cascarón fijo (Total 0, Moneda XXX, concepto
// 84111506 "Pago"); la sustancia va en los nodos pago20.
func (s *CadenaService) ComplementoPago(f *entity.Factura, e *entity.Emisor, c *entity.Cliente, p *PagoCadenaParams) (string, error) {
	if f == nil || e == nil || c == nil || p == nil || p.Pago == nil {
		return "", fmt.Errorf("sat: faltan datos para la cadena del complemento de pago")
	}
	if f.UUID == "" {
		return "", fmt.Errorf("sat: la factura relacionada no tiene UUID (debe estar timbrada)")
	}

	campos := []string{
		// Comprobante P (cascarón fijo)
		"|4.0",
		texto(f.Serie),
		texto(f.Folio),
		p.FechaEmision.Format(FormatoFechaCFDI),
		"P",
		"01", // Exportacion
		"0",  // Total
		MonedaPago,
		"0", // SubTotal
		f.LugarExpedicion,
		"", // Sello
		"", // NoCertificado
		"", // Certificado

		// Emisor
		e.RFC,
		texto(e.RazonSocial),
		e.RegimenFiscal,

		// Receptor
		c.RFC,
		texto(c.RazonSocial),
		c.CodigoPostal,
		c.RegimenFiscal,
		UsoCFDIComplemento,

		// Concepto fijo
		ClaveProdServPago,
		"", // NoIdentificacion
		"1",
		ClaveUnidadPago,
		"", // Unidad
		"Pago",
		"0",
		"0",
		entity.ObjetoImpNoObjeto,

		// pago20:Pagos
		VersionPagos,
		monto(p.Pago.MontoPago), // MontoTotalPagos
	}

	// Totales por tasa: base e impuesto del bucket que corresponda a la tasa;
	// sin base, el bucket IVA 16 va en ceros para pasar la validación del PAC.
	if p.BaseIVA.IsPositive() {
		campos = append(campos, monto(p.BaseIVA), monto(p.ImporteIVA))
	} else {
		campos = append(campos, "0.00", "0.00")
	}

	campos = append(campos,
		// Pago individual
		p.Pago.FechaPago.Format(FormatoFechaCFDI),
		p.Pago.FormaPago,
		f.Moneda,
		"1", // TipoCambioP
		monto(p.Pago.MontoPago),

		// Documento relacionado
		f.UUID,
		texto(f.Serie),
		texto(f.Folio),
		f.Moneda,
		"1", // EquivalenciaDR
		strconv.Itoa(p.Pago.NumParcialidad),
		monto(p.ImpSaldoAnterior),
		monto(p.ImpPagado),
		monto(p.ImpSaldoInsoluto),
		entity.ObjetoImpSi,
	)

	if p.BaseIVA.IsPositive() {
		tasa := p.TasaIVA.StringFixed(6)
		// ImpuestosDR
		campos = append(campos, monto(p.BaseIVA), ImpuestoIVA, TipoFactorIVA, tasa, monto(p.ImporteIVA))
		// ImpuestosP
		campos = append(campos, monto(p.BaseIVA), ImpuestoIVA, TipoFactorIVA, tasa, monto(p.ImporteIVA))
	}

	var sb []byte
	for _, campo := range campos {
		sb = append(sb, '|')
		sb = append(sb, campo...)
	}
	return string(sb), nil
}

// Constantes fijas del comprobante P (Pagos 2.0).
const (
	VersionPagos       = "2.0"
	MonedaPago         = "XXX"
	UsoCFDIComplemento = "CP01"
	ClaveProdServPago  = "84111506"
	ClaveUnidadPago    = "ACT"
)
