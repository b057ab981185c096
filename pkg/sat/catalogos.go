// Package sat contiene catálogos y validaciones alineados al Anexo 20 del
// CFDI 4.0 (SAT, México), RMF 2022.
package sat

import "regexp"

// =============================================================================
// c_RegimenFiscal - Regímenes fiscales vigentes (Anexo 20 - catálogo SAT)
// =============================================================================

// ValidRegimenesFiscales códigos de régimen fiscal válidos para emisor y receptor.
var ValidRegimenesFiscales = map[string]bool{
	"601": true, // General de Ley Personas Morales
	"603": true, // Personas Morales con Fines no Lucrativos
	"605": true, // Sueldos y Salarios
	"606": true, // Arrendamiento
	"608": true, // Demás ingresos
	"610": true, // Residentes en el Extranjero sin Establecimiento Permanente
	"611": true, // Ingresos por Dividendos
	"612": true, // Personas Físicas con Actividades Empresariales y Profesionales
	"614": true, // Ingresos por intereses
	"615": true, // Ingresos por obtención de premios
	"616": true, // Sin obligaciones fiscales
	"620": true, // Sociedades Cooperativas de Producción
	"621": true, // Incorporación Fiscal
	"622": true, // Actividades Agrícolas, Ganaderas, Silvícolas y Pesqueras
	"623": true, // Opcional para Grupos de Sociedades
	"624": true, // Coordinados
	"625": true, // Actividades Empresariales a través de Plataformas Tecnológicas
	"626": true, // Régimen Simplificado de Confianza (RESICO)
	"628": true, // Hidrocarburos
	"629": true, // Regímenes Fiscales Preferentes
	"630": true, // Enajenación de acciones en bolsa de valores
}

// =============================================================================
// c_UsoCFDI - Uso del comprobante declarado por el receptor (Anexo 20)
// =============================================================================

// UsoCFDIPagos es el único uso válido para comprobantes de tipo P.
const UsoCFDIPagos = "CP01"

// ValidUsosCFDI usos de CFDI válidos para comprobantes de ingreso.
var ValidUsosCFDI = map[string]bool{
	"G01": true, "G02": true, "G03": true,
	"I01": true, "I02": true, "I03": true, "I04": true,
	"I05": true, "I06": true, "I07": true, "I08": true,
	"D01": true, "D02": true, "D03": true, "D04": true, "D05": true,
	"D06": true, "D07": true, "D08": true, "D09": true, "D10": true,
	"P01": true,
	"S01": true,
	UsoCFDIPagos: true,
}

// =============================================================================
// c_FormaPago - Forma de pago (Anexo 20)
// =============================================================================

const (
	FormaPagoEfectivo      = "01"
	FormaPagoCheque        = "02"
	FormaPagoTransferencia = "03"
	FormaPagoPorDefinir    = "99"
)

// ValidFormasPago códigos de forma de pago válidos.
var ValidFormasPago = map[string]bool{
	"01": true, "02": true, "03": true, "04": true, "05": true,
	"06": true, "08": true, "12": true, "13": true, "14": true,
	"15": true, "17": true, "23": true, "24": true, "25": true,
	"26": true, "27": true, "28": true, "29": true, "30": true,
	"31": true, "99": true,
}

// =============================================================================
// c_MetodoPago - Método de pago (Anexo 20)
// =============================================================================

// ValidMetodosPago métodos de pago válidos.
var ValidMetodosPago = map[string]bool{
	"PUE": true, // Pago en una sola exhibición
	"PPD": true, // Pago en parcialidades o diferido
}

// =============================================================================
// c_Moneda - Monedas aceptadas (subconjunto operativo del catálogo ISO 4217)
// =============================================================================

// MonedaSinValor se usa en comprobantes de pago (Pagos 2.0).
const MonedaSinValor = "XXX"

// ValidMonedas monedas aceptadas para facturación.
var ValidMonedas = map[string]bool{
	"MXN": true, "USD": true, "EUR": true, "CAD": true, "GBP": true,
	MonedaSinValor: true,
}

// =============================================================================
// c_Exportacion y c_ObjetoImp (Anexo 20)
// =============================================================================

// ExportacionNoAplica es el valor por defecto de operaciones nacionales.
const ExportacionNoAplica = "01"

// ValidExportacion códigos de exportación válidos.
var ValidExportacion = map[string]bool{
	ExportacionNoAplica: true, // No aplica
	"02":                true, // Definitiva
	"03":                true, // Temporal
}

// ValidObjetoImp códigos de objeto de impuesto válidos por concepto.
var ValidObjetoImp = map[string]bool{
	"01": true, // No objeto de impuesto
	"02": true, // Sí objeto de impuesto
	"03": true, // Sí objeto, no obligado al desglose
}

// ValidTiposComprobante tipos de comprobante del Anexo 20.
var ValidTiposComprobante = map[string]bool{
	"I": true, // Ingreso
	"E": true, // Egreso
	"T": true, // Traslado
	"N": true, // Nómina
	"P": true, // Pago
}

// =============================================================================
// RFC - estructura y genéricos
// =============================================================================

// RFC genéricos del SAT: público en general y residentes en el extranjero.
const (
	RFCGenericoNacional   = "XAXX010101000"
	RFCGenericoExtranjero = "XEXE010101000"
)

var (
	// Persona física: 4 letras + fecha AAMMDD + homoclave (13 caracteres).
	rfcPersonaFisica = regexp.MustCompile(`^[A-ZÑ&]{4}\d{6}[A-Z0-9]{3}$`)
	// Persona moral: 3 letras + fecha AAMMDD + homoclave (12 caracteres).
	rfcPersonaMoral = regexp.MustCompile(`^[A-ZÑ&]{3}\d{6}[A-Z0-9]{3}$`)
)

// EsRFCValido valida la estructura del RFC (física o moral). Los RFC
// genéricos se aceptan siempre.
func EsRFCValido(rfc string) bool {
	if EsRFCGenerico(rfc) {
		return true
	}
	switch len(rfc) {
	case 13:
		return rfcPersonaFisica.MatchString(rfc)
	case 12:
		return rfcPersonaMoral.MatchString(rfc)
	}
	return false
}

// EsRFCGenerico indica si el RFC es uno de los genéricos del SAT.
func EsRFCGenerico(rfc string) bool {
	return rfc == RFCGenericoNacional || rfc == RFCGenericoExtranjero
}

// EsPersonaMoral indica si el RFC corresponde a una persona moral (12 caracteres).
func EsPersonaMoral(rfc string) bool {
	return len(rfc) == 12 && rfcPersonaMoral.MatchString(rfc)
}
