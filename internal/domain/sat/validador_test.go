package sat_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/sat"
)

func ahoraPrueba() time.Time {
	// Una hora después de la fecha de emisión de buildFacturaPrueba.
	return time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC)
}

func TestValidarComprobante_FacturaValida(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	assert.NoError(t, err)
}

func TestValidarComprobante_TotalIncoherente(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	// Subtotal 100 + IVA 16 pero total declarado 120.
	f.Total = decimal.NewFromInt(120)

	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidacion))
	assert.Contains(t, err.Error(), "116.00", "El error debe nombrar el total esperado")
}

func TestValidarComprobante_TipoCambioMXN(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	f.TipoCambio = decimal.NewFromFloat(17.5)

	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tipo de cambio")
}

func TestValidarComprobante_TipoCambioMonedaExtranjera(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	f.Moneda = "USD"
	f.TipoCambio = decimal.Zero

	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidacion))
	assert.Contains(t, err.Error(), "mayor que cero")

	f.TipoCambio = decimal.NewFromFloat(17.5)
	assert.NoError(t, sat.ValidarComprobante(f, e, c, dets, ahoraPrueba()))
}

func TestValidarComprobante_RFCReceptorInvalido(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	c.RFC = "NOESUNRFC"

	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidacion))
	assert.Contains(t, err.Error(), "RFC del receptor")
}

func TestValidarComprobante_RFCGenericoAceptado(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	c.RFC = "XAXX010101000"

	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	assert.NoError(t, err, "El RFC genérico de público en general es válido")
}

func TestValidarComprobante_AcumulaErrores(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	c.RFC = "MAL"
	f.UsoCFDI = "Z99"
	f.FormaPago = "00"

	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	require.Error(t, err)
	// errors.Join conserva cada problema; deben aparecer los tres.
	assert.Contains(t, err.Error(), "RFC del receptor")
	assert.Contains(t, err.Error(), "uso CFDI")
	assert.Contains(t, err.Error(), "forma de pago")
}

func TestValidarComprobante_FechaFueraDeVentana(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	err := sat.ValidarComprobante(f, e, c, dets, f.FechaEmision.Add(80*time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "72 horas")
}

func TestValidarComprobante_FechaFutura(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	err := sat.ValidarComprobante(f, e, c, dets, f.FechaEmision.Add(-time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "futuro")
}

func TestValidarComprobante_CantidadCero(t *testing.T) {
	f, e, c, dets := buildFacturaPrueba()
	dets[0].Cantidad = decimal.Zero

	err := sat.ValidarComprobante(f, e, c, dets, ahoraPrueba())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cantidad")
}

func TestValidarComprobante_SinConceptos(t *testing.T) {
	f, e, c, _ := buildFacturaPrueba()
	err := sat.ValidarComprobante(f, e, c, nil, ahoraPrueba())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "al menos un concepto")
}
