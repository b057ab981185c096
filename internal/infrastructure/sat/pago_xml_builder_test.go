package sat_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	infsat "github.com/directiva-agricola/facturacion-api/internal/infrastructure/sat"
)

func contextoPago() *infsat.PagoBuildContext {
	base := contextoComprobante()
	f := base.Factura
	f.MetodoPago = entity.MetodoPagoPPD
	f.EstadoTimbrado = entity.EstadoTimbrado
	f.UUID = "AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"

	return &infsat.PagoBuildContext{
		Factura: f,
		Emisor:  base.Emisor,
		Cliente: base.Cliente,
		Pago: &entity.PagoFactura{
			FechaPago:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
			MontoPago:      decimal.NewFromInt(58),
			FormaPago:      "03",
			NumParcialidad: 1,
		},
		FechaEmision:     time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		BaseIVA:          decimal.NewFromInt(50),
		ImporteIVA:       decimal.NewFromInt(8),
		TasaIVA:          decimal.NewFromFloat(0.16),
		ImpSaldoAnterior: decimal.NewFromInt(116),
		ImpPagado:        decimal.NewFromInt(58),
		ImpSaldoInsoluto: decimal.NewFromInt(58),
		Sello:            "SELLO-PAGO",
		NoCertificado:    "30001000000400002434",
		CertificadoB64:   "Q0VSVElGSUNBRE8=",
	}
}

func TestPagoXMLBuilder_ComprobanteP(t *testing.T) {
	out, err := infsat.NewPagoXMLBuilderService().Build(contextoPago())
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `xmlns:pago20="http://www.sat.gob.mx/Pagos20"`)
	assert.Contains(t, s, `TipoDeComprobante="P"`)
	assert.Contains(t, s, `Moneda="XXX"`)
	assert.Contains(t, s, `SubTotal="0"`)
	assert.Contains(t, s, `Total="0"`)
	assert.Contains(t, s, `UsoCFDI="CP01"`)
	assert.Contains(t, s, `ClaveProdServ="84111506"`)
	assert.Contains(t, s, `Descripcion="Pago"`)
	assert.Contains(t, s, `<pago20:Pagos Version="2.0"`)
	assert.Contains(t, s, `MontoTotalPagos="58.00"`)
	assert.Contains(t, s, `TotalTrasladosBaseIVA16="50.00"`)
	assert.Contains(t, s, `TotalTrasladosImpuestoIVA16="8.00"`)
	assert.Contains(t, s, `FechaPago="2026-04-01T09:00:00"`)
	assert.Contains(t, s, `IdDocumento="AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"`)
	assert.Contains(t, s, `NumParcialidad="1"`)
	assert.Contains(t, s, `ImpSaldoAnt="116.00"`)
	assert.Contains(t, s, `ImpSaldoInsoluto="58.00"`)
	assert.Contains(t, s, `ObjetoImpDR="02"`)
	assert.Contains(t, s, `TasaOCuotaDR="0.160000"`)
	assert.Contains(t, s, `<pago20:ImpuestosP>`)
}

func TestPagoXMLBuilder_SinBaseIVAEmiteCeros(t *testing.T) {
	ctx := contextoPago()
	ctx.BaseIVA = decimal.Zero
	ctx.ImporteIVA = decimal.Zero

	out, err := infsat.NewPagoXMLBuilderService().Build(ctx)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `TotalTrasladosBaseIVA16="0.00"`)
	assert.Contains(t, s, `TotalTrasladosImpuestoIVA16="0.00"`)
	assert.NotContains(t, s, "ImpuestosDR")
	assert.NotContains(t, s, "ImpuestosP")
}

func TestPagoXMLBuilder_RequiereUUID(t *testing.T) {
	ctx := contextoPago()
	ctx.Factura.UUID = ""
	_, err := infsat.NewPagoXMLBuilderService().Build(ctx)
	assert.Error(t, err)
}
