package sat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	domsat "github.com/directiva-agricola/facturacion-api/internal/domain/sat"
)

// PagoXMLBuilderService construye el CFDI de tipo P con el complemento
// Pagos 2.0. El comprobante es un cascarón fijo; el detalle del pago va en
// pago20:Pagos.
type PagoXMLBuilderService struct{}

// NewPagoXMLBuilderService crea el servicio.
func NewPagoXMLBuilderService() *PagoXMLBuilderService {
	return &PagoXMLBuilderService{}
}

// Build genera el []byte del comprobante P sellado.
func (s *PagoXMLBuilderService) Build(ctx *PagoBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Factura == nil || ctx.Emisor == nil || ctx.Cliente == nil || ctx.Pago == nil {
		return nil, fmt.Errorf("sat: faltan datos para el complemento de pago")
	}
	if ctx.Factura.UUID == "" {
		return nil, fmt.Errorf("sat: la factura relacionada no tiene UUID")
	}
	f := ctx.Factura

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	attrs := []xml.Attr{
		{Name: xml.Name{Local: "xmlns:cfdi"}, Value: NsCFDI},
		{Name: xml.Name{Local: "xmlns:pago20"}, Value: NsPago20},
		{Name: xml.Name{Local: "xmlns:xsi"}, Value: nsXsi},
		{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: schemaLocationCFDI + " " + schemaLocationPago20},
		{Name: xml.Name{Local: "Version"}, Value: "4.0"},
	}
	attrs = appendAttr(attrs, "Serie", f.Serie)
	attrs = appendAttr(attrs, "Folio", f.Folio)
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "Fecha"}, Value: domsat.FechaCFDI(ctx.FechaEmision)})
	attrs = appendAttr(attrs, "Sello", ctx.Sello)
	attrs = appendAttr(attrs, "NoCertificado", ctx.NoCertificado)
	attrs = appendAttr(attrs, "Certificado", ctx.CertificadoB64)
	attrs = append(attrs,
		xml.Attr{Name: xml.Name{Local: "SubTotal"}, Value: "0"},
		xml.Attr{Name: xml.Name{Local: "Moneda"}, Value: domsat.MonedaPago},
		xml.Attr{Name: xml.Name{Local: "Total"}, Value: "0"},
		xml.Attr{Name: xml.Name{Local: "TipoDeComprobante"}, Value: "P"},
		xml.Attr{Name: xml.Name{Local: "Exportacion"}, Value: "01"},
		xml.Attr{Name: xml.Name{Local: "LugarExpedicion"}, Value: f.LugarExpedicion},
	)

	root := xml.StartElement{Name: xml.Name{Local: "cfdi:Comprobante"}, Attr: attrs}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	writeEmpty(enc, "cfdi:Emisor", []xml.Attr{
		{Name: xml.Name{Local: "Rfc"}, Value: ctx.Emisor.RFC},
		{Name: xml.Name{Local: "Nombre"}, Value: ctx.Emisor.RazonSocial},
		{Name: xml.Name{Local: "RegimenFiscal"}, Value: ctx.Emisor.RegimenFiscal},
	})
	writeEmpty(enc, "cfdi:Receptor", []xml.Attr{
		{Name: xml.Name{Local: "Rfc"}, Value: ctx.Cliente.RFC},
		{Name: xml.Name{Local: "Nombre"}, Value: ctx.Cliente.RazonSocial},
		{Name: xml.Name{Local: "DomicilioFiscalReceptor"}, Value: ctx.Cliente.CodigoPostal},
		{Name: xml.Name{Local: "RegimenFiscalReceptor"}, Value: ctx.Cliente.RegimenFiscal},
		{Name: xml.Name{Local: "UsoCFDI"}, Value: domsat.UsoCFDIComplemento},
	})

	// Concepto fijo del comprobante P.
	open(enc, "cfdi:Conceptos", nil)
	writeEmpty(enc, "cfdi:Concepto", []xml.Attr{
		{Name: xml.Name{Local: "ClaveProdServ"}, Value: domsat.ClaveProdServPago},
		{Name: xml.Name{Local: "Cantidad"}, Value: "1"},
		{Name: xml.Name{Local: "ClaveUnidad"}, Value: domsat.ClaveUnidadPago},
		{Name: xml.Name{Local: "Descripcion"}, Value: "Pago"},
		{Name: xml.Name{Local: "ValorUnitario"}, Value: "0"},
		{Name: xml.Name{Local: "Importe"}, Value: "0"},
		{Name: xml.Name{Local: "ObjetoImp"}, Value: entity.ObjetoImpNoObjeto},
	})
	closeEl(enc, "cfdi:Conceptos")

	open(enc, "cfdi:Complemento", nil)
	open(enc, "pago20:Pagos", []xml.Attr{
		{Name: xml.Name{Local: "Version"}, Value: domsat.VersionPagos},
	})

	s.writeTotales(enc, ctx)
	s.writePago(enc, ctx)

	closeEl(enc, "pago20:Pagos")
	closeEl(enc, "cfdi:Complemento")

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeTotales emite pago20:Totales con el bucket de IVA que corresponda a
// la tasa; sin base, el bucket IVA 16 va en ceros.
func (s *PagoXMLBuilderService) writeTotales(enc *xml.Encoder, ctx *PagoBuildContext) {
	attrs := []xml.Attr{}
	tasa8 := decimal.NewFromFloat(0.08)
	switch {
	case !ctx.BaseIVA.IsPositive():
		attrs = append(attrs,
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosBaseIVA16"}, Value: "0.00"},
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosImpuestoIVA16"}, Value: "0.00"},
		)
	case ctx.TasaIVA.IsZero():
		attrs = append(attrs,
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosBaseIVA0"}, Value: dec2(ctx.BaseIVA)},
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosImpuestoIVA0"}, Value: dec2(ctx.ImporteIVA)},
		)
	case ctx.TasaIVA.Equal(tasa8):
		attrs = append(attrs,
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosBaseIVA8"}, Value: dec2(ctx.BaseIVA)},
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosImpuestoIVA8"}, Value: dec2(ctx.ImporteIVA)},
		)
	default:
		attrs = append(attrs,
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosBaseIVA16"}, Value: dec2(ctx.BaseIVA)},
			xml.Attr{Name: xml.Name{Local: "TotalTrasladosImpuestoIVA16"}, Value: dec2(ctx.ImporteIVA)},
		)
	}
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "MontoTotalPagos"}, Value: dec2(ctx.Pago.MontoPago)})
	writeEmpty(enc, "pago20:Totales", attrs)
}

func (s *PagoXMLBuilderService) writePago(enc *xml.Encoder, ctx *PagoBuildContext) {
	f := ctx.Factura
	p := ctx.Pago

	open(enc, "pago20:Pago", []xml.Attr{
		{Name: xml.Name{Local: "FechaPago"}, Value: domsat.FechaCFDI(p.FechaPago)},
		{Name: xml.Name{Local: "FormaDePagoP"}, Value: p.FormaPago},
		{Name: xml.Name{Local: "MonedaP"}, Value: f.Moneda},
		{Name: xml.Name{Local: "TipoCambioP"}, Value: "1"},
		{Name: xml.Name{Local: "Monto"}, Value: dec2(p.MontoPago)},
	})

	open(enc, "pago20:DoctoRelacionado", []xml.Attr{
		{Name: xml.Name{Local: "IdDocumento"}, Value: f.UUID},
		{Name: xml.Name{Local: "Serie"}, Value: f.Serie},
		{Name: xml.Name{Local: "Folio"}, Value: f.Folio},
		{Name: xml.Name{Local: "MonedaDR"}, Value: f.Moneda},
		{Name: xml.Name{Local: "EquivalenciaDR"}, Value: "1"},
		{Name: xml.Name{Local: "NumParcialidad"}, Value: strconv.Itoa(p.NumParcialidad)},
		{Name: xml.Name{Local: "ImpSaldoAnt"}, Value: dec2(ctx.ImpSaldoAnterior)},
		{Name: xml.Name{Local: "ImpPagado"}, Value: dec2(ctx.ImpPagado)},
		{Name: xml.Name{Local: "ImpSaldoInsoluto"}, Value: dec2(ctx.ImpSaldoInsoluto)},
		{Name: xml.Name{Local: "ObjetoImpDR"}, Value: entity.ObjetoImpSi},
	})
	if ctx.BaseIVA.IsPositive() {
		open(enc, "pago20:ImpuestosDR", nil)
		open(enc, "pago20:TrasladosDR", nil)
		writeEmpty(enc, "pago20:TrasladoDR", []xml.Attr{
			{Name: xml.Name{Local: "BaseDR"}, Value: dec2(ctx.BaseIVA)},
			{Name: xml.Name{Local: "ImpuestoDR"}, Value: domsat.ImpuestoIVA},
			{Name: xml.Name{Local: "TipoFactorDR"}, Value: domsat.TipoFactorIVA},
			{Name: xml.Name{Local: "TasaOCuotaDR"}, Value: ctx.TasaIVA.StringFixed(6)},
			{Name: xml.Name{Local: "ImporteDR"}, Value: dec2(ctx.ImporteIVA)},
		})
		closeEl(enc, "pago20:TrasladosDR")
		closeEl(enc, "pago20:ImpuestosDR")
	}
	closeEl(enc, "pago20:DoctoRelacionado")

	if ctx.BaseIVA.IsPositive() {
		open(enc, "pago20:ImpuestosP", nil)
		open(enc, "pago20:TrasladosP", nil)
		writeEmpty(enc, "pago20:TrasladoP", []xml.Attr{
			{Name: xml.Name{Local: "BaseP"}, Value: dec2(ctx.BaseIVA)},
			{Name: xml.Name{Local: "ImpuestoP"}, Value: domsat.ImpuestoIVA},
			{Name: xml.Name{Local: "TipoFactorP"}, Value: domsat.TipoFactorIVA},
			{Name: xml.Name{Local: "TasaOCuotaP"}, Value: ctx.TasaIVA.StringFixed(6)},
			{Name: xml.Name{Local: "ImporteP"}, Value: dec2(ctx.ImporteIVA)},
		})
		closeEl(enc, "pago20:TrasladosP")
		closeEl(enc, "pago20:ImpuestosP")
	}

	closeEl(enc, "pago20:Pago")
}
