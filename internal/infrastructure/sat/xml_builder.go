package sat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	domsat "github.com/directiva-agricola/facturacion-api/internal/domain/sat"
	pkgsat "github.com/directiva-agricola/facturacion-api/pkg/sat"
)

// Namespaces oficiales del CFDI 4.0 (Anexo 20).
const (
	NsCFDI   = "http://www.sat.gob.mx/cfd/4"
	NsPago20 = "http://www.sat.gob.mx/Pagos20"
	NsTimbre = "http://www.sat.gob.mx/TimbreFiscalDigital"
	nsXsi    = "http://www.w3.org/2001/XMLSchema-instance"

	schemaLocationCFDI   = NsCFDI + " http://www.sat.gob.mx/sitio_internet/cfd/4/cfdv40.xsd"
	schemaLocationPago20 = NsPago20 + " http://www.sat.gob.mx/sitio_internet/cfd/Pagos/Pagos20.xsd"
)

// XMLBuilderService construye el XML del comprobante CFDI 4.0.
// Los prefijos (cfdi:, pago20:) se emiten directamente en los tokens para
// que el documento salga con los nombres calificados que exige el XSD, sin
// reescrituras posteriores.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el []byte del cfdi:Comprobante sellado.
// El orden de atributos sigue la secuencia del XSD; TipoCambio se omite para
// MXN y los atributos opcionales vacíos no se emiten.
func (s *XMLBuilderService) Build(ctx *ComprobanteBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Factura == nil || ctx.Emisor == nil || ctx.Cliente == nil {
		return nil, fmt.Errorf("sat: faltan factura, emisor o cliente en el contexto")
	}
	if len(ctx.Detalles) == 0 {
		return nil, fmt.Errorf("sat: el comprobante no tiene conceptos")
	}
	f := ctx.Factura

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	attrs := []xml.Attr{
		{Name: xml.Name{Local: "xmlns:cfdi"}, Value: NsCFDI},
		{Name: xml.Name{Local: "xmlns:xsi"}, Value: nsXsi},
		{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: schemaLocationCFDI},
		{Name: xml.Name{Local: "Version"}, Value: "4.0"},
	}
	attrs = appendAttr(attrs, "Serie", f.Serie)
	attrs = appendAttr(attrs, "Folio", f.Folio)
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "Fecha"}, Value: domsat.FechaCFDI(f.FechaEmision)})
	attrs = appendAttr(attrs, "Sello", ctx.Sello)
	attrs = appendAttr(attrs, "FormaPago", f.FormaPago)
	attrs = appendAttr(attrs, "NoCertificado", ctx.NoCertificado)
	attrs = appendAttr(attrs, "Certificado", ctx.CertificadoB64)
	attrs = appendAttr(attrs, "CondicionesDePago", f.CondicionesPago)
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "SubTotal"}, Value: dec2(f.Subtotal)})
	if f.Descuento.IsPositive() {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "Descuento"}, Value: dec2(f.Descuento)})
	}
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "Moneda"}, Value: f.Moneda})
	if f.Moneda != "MXN" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "TipoCambio"}, Value: f.TipoCambio.StringFixed(4)})
	}
	attrs = append(attrs,
		xml.Attr{Name: xml.Name{Local: "Total"}, Value: dec2(f.Total)},
		xml.Attr{Name: xml.Name{Local: "TipoDeComprobante"}, Value: "I"},
		xml.Attr{Name: xml.Name{Local: "Exportacion"}, Value: f.Exportacion},
		xml.Attr{Name: xml.Name{Local: "MetodoPago"}, Value: f.MetodoPago},
		xml.Attr{Name: xml.Name{Local: "LugarExpedicion"}, Value: f.LugarExpedicion},
	)

	root := xml.StartElement{Name: xml.Name{Local: "cfdi:Comprobante"}, Attr: attrs}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	// InformacionGlobal: solo público en general con tipo I.
	if ctx.Cliente.RFC == pkgsat.RFCGenericoNacional && f.Periodicidad != "" {
		writeEmpty(enc, "cfdi:InformacionGlobal", []xml.Attr{
			{Name: xml.Name{Local: "Periodicidad"}, Value: f.Periodicidad},
			{Name: xml.Name{Local: "Meses"}, Value: f.Meses},
			{Name: xml.Name{Local: "Año"}, Value: strconv.Itoa(f.Anio)},
		})
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
		{Name: xml.Name{Local: "UsoCFDI"}, Value: f.UsoCFDI},
	})

	if err := s.writeConceptos(enc, ctx.Detalles); err != nil {
		return nil, err
	}
	s.writeImpuestos(enc, f, ctx.Detalles)

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *XMLBuilderService) writeConceptos(enc *xml.Encoder, detalles []*entity.FacturaDetalle) error {
	open(enc, "cfdi:Conceptos", nil)
	for _, d := range detalles {
		attrs := []xml.Attr{
			{Name: xml.Name{Local: "ClaveProdServ"}, Value: d.ClaveProdServ},
		}
		attrs = appendAttr(attrs, "NoIdentificacion", d.NoIdentificacion)
		attrs = append(attrs,
			xml.Attr{Name: xml.Name{Local: "Cantidad"}, Value: dec6(d.Cantidad)},
			xml.Attr{Name: xml.Name{Local: "ClaveUnidad"}, Value: d.ClaveUnidad},
		)
		attrs = appendAttr(attrs, "Unidad", d.Unidad)
		attrs = append(attrs,
			xml.Attr{Name: xml.Name{Local: "Descripcion"}, Value: d.Descripcion},
			xml.Attr{Name: xml.Name{Local: "ValorUnitario"}, Value: dec6(d.ValorUnitario)},
			xml.Attr{Name: xml.Name{Local: "Importe"}, Value: dec2(d.Importe)},
		)
		if d.Descuento.IsPositive() {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "Descuento"}, Value: dec2(d.Descuento)})
		}
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "ObjetoImp"}, Value: d.ObjetoImp})

		if d.ObjetoImp != entity.ObjetoImpSi {
			writeEmpty(enc, "cfdi:Concepto", attrs)
			continue
		}

		// Concepto gravado: lleva su Traslado por línea.
		open(enc, "cfdi:Concepto", attrs)
		open(enc, "cfdi:Impuestos", nil)
		open(enc, "cfdi:Traslados", nil)
		writeEmpty(enc, "cfdi:Traslado", []xml.Attr{
			{Name: xml.Name{Local: "Base"}, Value: dec2(d.Importe)},
			{Name: xml.Name{Local: "Impuesto"}, Value: domsat.ImpuestoIVA},
			{Name: xml.Name{Local: "TipoFactor"}, Value: domsat.TipoFactorIVA},
			{Name: xml.Name{Local: "TasaOCuota"}, Value: d.TasaIVA.StringFixed(6)},
			{Name: xml.Name{Local: "Importe"}, Value: dec2(d.IVATrasladado())},
		})
		closeEl(enc, "cfdi:Traslados")
		closeEl(enc, "cfdi:Impuestos")
		closeEl(enc, "cfdi:Concepto")
	}
	closeEl(enc, "cfdi:Conceptos")
	return nil
}

// writeImpuestos emite el nodo de impuestos a nivel comprobante con los
// traslados agrupados por tasa.
func (s *XMLBuilderService) writeImpuestos(enc *xml.Encoder, f *entity.Factura, detalles []*entity.FacturaDetalle) {
	type acumulado struct {
		base    decimal.Decimal
		importe decimal.Decimal
	}
	grupos := map[string]*acumulado{}
	var orden []string
	for _, d := range detalles {
		if d.ObjetoImp != entity.ObjetoImpSi {
			continue
		}
		tasa := d.TasaIVA.StringFixed(6)
		g, ok := grupos[tasa]
		if !ok {
			g = &acumulado{}
			grupos[tasa] = g
			orden = append(orden, tasa)
		}
		g.base = g.base.Add(d.Importe)
		g.importe = g.importe.Add(d.IVATrasladado())
	}
	if len(orden) == 0 {
		return
	}

	open(enc, "cfdi:Impuestos", []xml.Attr{
		{Name: xml.Name{Local: "TotalImpuestosTrasladados"}, Value: dec2(f.Impuesto)},
	})
	open(enc, "cfdi:Traslados", nil)
	for _, tasa := range orden {
		g := grupos[tasa]
		writeEmpty(enc, "cfdi:Traslado", []xml.Attr{
			{Name: xml.Name{Local: "Base"}, Value: dec2(g.base)},
			{Name: xml.Name{Local: "Impuesto"}, Value: domsat.ImpuestoIVA},
			{Name: xml.Name{Local: "TipoFactor"}, Value: domsat.TipoFactorIVA},
			{Name: xml.Name{Local: "TasaOCuota"}, Value: tasa},
			{Name: xml.Name{Local: "Importe"}, Value: dec2(g.importe)},
		})
	}
	closeEl(enc, "cfdi:Traslados")
	closeEl(enc, "cfdi:Impuestos")
}

// ── helpers de emisión ────────────────────────────────────────────────────────

func open(enc *xml.Encoder, local string, attrs []xml.Attr) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs})
}

func closeEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeEmpty(enc *xml.Encoder, local string, attrs []xml.Attr) {
	open(enc, local, attrs)
	closeEl(enc, local)
}

// appendAttr agrega el atributo solo si el valor no es vacío (los opcionales
// vacíos no se emiten).
func appendAttr(attrs []xml.Attr, local, value string) []xml.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}

func dec2(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func dec6(d decimal.Decimal) string {
	return d.StringFixed(6)
}
