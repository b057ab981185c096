package sat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/sat"
)

// ──────────────────────────────────────────────────────────────────────────────
// La cadena original es el insumo del sello RSA-SHA256: cualquier cambio
// inadvertido en el orden de campos, el formato de montos o la normalización
// de texto invalida todos los sellos. Estos tests fijan el contrato.
// ──────────────────────────────────────────────────────────────────────────────

func buildFacturaPrueba() (*entity.Factura, *entity.Emisor, *entity.Cliente, []*entity.FacturaDetalle) {
	fecha := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	f := &entity.Factura{
		Serie:           "A",
		Folio:           "1234",
		FechaEmision:    fecha,
		LugarExpedicion: "80000",
		Moneda:          "MXN",
		TipoCambio:      decimal.NewFromInt(1),
		FormaPago:       "03",
		MetodoPago:      entity.MetodoPagoPUE,
		UsoCFDI:         "G03",
		Exportacion:     "01",
		Subtotal:        decimal.NewFromInt(100),
		Impuesto:        decimal.NewFromInt(16),
		Total:           decimal.NewFromInt(116),
	}
	e := &entity.Emisor{
		RazonSocial:   "Agricola del Valle SA de CV",
		RFC:           "AVA120508AB1",
		CodigoPostal:  "80000",
		RegimenFiscal: "601",
	}
	c := &entity.Cliente{
		RazonSocial:   "Comercializadora del Norte",
		RFC:           "CNO980512XY2",
		CodigoPostal:  "64000",
		RegimenFiscal: "601",
	}
	detalles := []*entity.FacturaDetalle{{
		ClaveProdServ: "01010101",
		ClaveUnidad:   "H87",
		Unidad:        "Pieza",
		Descripcion:   "Caja de tomate saladette",
		Cantidad:      decimal.NewFromInt(1),
		ValorUnitario: decimal.NewFromInt(100),
		Importe:       decimal.NewFromInt(100),
		ObjetoImp:     entity.ObjetoImpSi,
		TasaIVA:       decimal.NewFromFloat(0.16),
	}}
	return f, e, c, detalles
}

func TestCadenaComprobante_Determinista(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, dets := buildFacturaPrueba()

	cadena1, err1 := svc.Comprobante(f, e, c, dets)
	cadena2, err2 := svc.Comprobante(f, e, c, dets)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, cadena1, cadena2, "El mismo input siempre debe producir la misma cadena")
}

func TestCadenaComprobante_EstructuraYMontos(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, dets := buildFacturaPrueba()

	cadena, err := svc.Comprobante(f, e, c, dets)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cadena, "||4.0|"), "La cadena inicia con ||4.0|")
	// Subtotal 100 con IVA 16%: base y impuesto formateados a 2 decimales.
	assert.Contains(t, cadena, "|100.00|", "La base gravable debe aparecer con 2 decimales")
	assert.Contains(t, cadena, "|16.00|", "El IVA trasladado debe aparecer con 2 decimales")
	assert.Contains(t, cadena, "|002|Tasa|0.160000|", "El bloque de traslado lleva impuesto 002, Tasa y 0.160000")
	assert.Contains(t, cadena, "|AVA120508AB1|", "El RFC del emisor forma parte de la cadena")
	assert.Contains(t, cadena, "|2026-03-15T10:30:00|", "La fecha usa el formato del Anexo 20 sin zona horaria")
}

func TestCadenaComprobante_TipoCambioCuatroDecimales(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, dets := buildFacturaPrueba()

	cadena, err := svc.Comprobante(f, e, c, dets)
	require.NoError(t, err)
	assert.Contains(t, cadena, "|1.0000|", "El tipo de cambio se formatea a 4 decimales")
}

func TestCadenaComprobante_SensibleAlFolio(t *testing.T) {
	svc := sat.NewCadenaService()
	f1, e, c, dets := buildFacturaPrueba()
	f2 := *f1
	f2.Folio = "1235" // solo cambia el folio

	cadena1, _ := svc.Comprobante(f1, e, c, dets)
	cadena2, _ := svc.Comprobante(&f2, e, c, dets)

	assert.NotEqual(t, cadena1, cadena2, "Folios distintos deben producir cadenas distintas")
}

func TestCadenaComprobante_NormalizaEspacios(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, dets := buildFacturaPrueba()

	base, err := svc.Comprobante(f, e, c, dets)
	require.NoError(t, err)

	e2 := *e
	e2.RazonSocial = "  " + e.RazonSocial + "  "
	conEspacios, err := svc.Comprobante(f, &e2, c, dets)
	require.NoError(t, err)

	assert.Equal(t, base, conEspacios, "Los espacios de orilla no deben alterar la cadena")
}

func TestCadenaComprobante_SinImpuestoOmiteBloqueTraslado(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, dets := buildFacturaPrueba()
	f.Impuesto = decimal.Zero
	f.Total = decimal.NewFromInt(100)
	dets[0].ObjetoImp = entity.ObjetoImpNoObjeto
	dets[0].TasaIVA = decimal.Zero

	cadena, err := svc.Comprobante(f, e, c, dets)
	require.NoError(t, err)
	assert.NotContains(t, cadena, "|002|Tasa|", "Sin impuesto no debe aparecer el bloque de traslado")
}

func TestCadenaComprobante_ErrorSinConceptos(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, _ := buildFacturaPrueba()
	_, err := svc.Comprobante(f, e, c, nil)
	assert.Error(t, err, "Una factura sin conceptos no tiene cadena original")
}

// ── Complemento de pago ───────────────────────────────────────────────────────

func TestCadenaComplementoPago_CamposFijos(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, _ := buildFacturaPrueba()
	f.UUID = "AAAA1111-2222-3333-4444-555566667777"

	pago := &entity.PagoFactura{
		FechaPago:      time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		MontoPago:      decimal.NewFromInt(116),
		FormaPago:      "03",
		NumParcialidad: 1,
	}
	cadena, err := svc.ComplementoPago(f, e, c, &sat.PagoCadenaParams{
		Pago:             pago,
		FechaEmision:     time.Date(2026, 4, 1, 12, 5, 0, 0, time.UTC),
		BaseIVA:          decimal.NewFromInt(100),
		ImporteIVA:       decimal.NewFromInt(16),
		TasaIVA:          decimal.NewFromFloat(0.16),
		ImpSaldoAnterior: decimal.NewFromInt(116),
		ImpPagado:        decimal.NewFromInt(116),
		ImpSaldoInsoluto: decimal.Zero,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cadena, "||4.0|"))
	assert.Contains(t, cadena, "|P|01|0|XXX|0|", "El cascarón del comprobante P es fijo")
	assert.Contains(t, cadena, "|CP01|", "El receptor de un complemento usa CP01")
	assert.Contains(t, cadena, "|84111506|", "El concepto fijo es 84111506")
	assert.Contains(t, cadena, "|2.0|", "La versión de Pagos es 2.0")
	assert.Contains(t, cadena, "|"+f.UUID+"|", "El UUID de la factura va en DoctoRelacionado")
}

func TestCadenaComplementoPago_ErrorSinUUID(t *testing.T) {
	svc := sat.NewCadenaService()
	f, e, c, _ := buildFacturaPrueba()
	// f.UUID vacío: la factura relacionada no está timbrada.
	_, err := svc.ComplementoPago(f, e, c, &sat.PagoCadenaParams{
		Pago:         &entity.PagoFactura{MontoPago: decimal.NewFromInt(100)},
		FechaEmision: time.Now(),
	})
	assert.Error(t, err)
}
