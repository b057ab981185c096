package facturacion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directiva-agricola/facturacion-api/internal/application/facturacion"
	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

type entornoCaptura struct {
	uc       *facturacion.CrearFacturaUseCase
	facturas *facturaRepoMem
	runner   *txRunnerMem
}

func nuevoEntornoCaptura(t *testing.T) *entornoCaptura {
	t.Helper()

	facturas := newFacturaRepoMem()
	pagos := newPagoRepoMem()
	runner := &txRunnerMem{facturas: facturas, pagos: pagos}
	emisores := &emisorRepoMem{emisores: map[string]*entity.Emisor{"emisor-1": emisorPrueba(t)}}
	clientes := &clienteRepoMem{clientes: map[string]*entity.Cliente{"cliente-1": clientePrueba()}}

	uc := facturacion.NewCrearFacturaUseCase(runner, facturas, emisores, clientes, zerolog.Nop())
	return &entornoCaptura{uc: uc, facturas: facturas, runner: runner}
}

func capturaPrueba() *facturacion.CrearFacturaInput {
	return &facturacion.CrearFacturaInput{
		ClienteID:  "cliente-1",
		Folio:      "2001",
		FormaPago:  "03",
		MetodoPago: entity.MetodoPagoPUE,
		Detalles: []facturacion.CrearDetalleInput{
			{
				ClaveProdServ: "01010101",
				ClaveUnidad:   "H87",
				Descripcion:   "Caja de tomate saladette",
				Cantidad:      decimal.NewFromInt(2),
				ValorUnitario: decimal.NewFromInt(150),
				ObjetoImp:     entity.ObjetoImpSi,
				TasaIVA:       decimal.NewFromFloat(0.16),
			},
			{
				ClaveProdServ: "78101800",
				ClaveUnidad:   "E48",
				Descripcion:   "Flete local",
				Cantidad:      decimal.NewFromInt(1),
				ValorUnitario: decimal.NewFromInt(50),
				ObjetoImp:     "01",
			},
		},
	}
}

func TestCrear_FacturaValida(t *testing.T) {
	env := nuevoEntornoCaptura(t)

	f, err := env.uc.Crear(context.Background(), "emisor-1", capturaPrueba())
	require.NoError(t, err)

	assert.Equal(t, entity.EstadoPendiente, f.EstadoTimbrado)
	// La serie sale del emisor cuando no se captura.
	assert.Equal(t, "A", f.Serie)
	assert.Equal(t, "2001", f.Folio)
	assert.Equal(t, "MXN", f.Moneda)
	assert.True(t, f.TipoCambio.Equal(decimal.NewFromInt(1)))
	// El uso CFDI por defecto viene del cliente.
	assert.Equal(t, "G03", f.UsoCFDI)
	assert.Equal(t, "80000", f.LugarExpedicion)

	// 2 × 150 gravado + 1 × 50 no objeto: 350.00 de subtotal, 48.00 de IVA.
	assert.Equal(t, "350.00", f.Subtotal.StringFixed(2))
	assert.Equal(t, "48.00", f.Impuesto.StringFixed(2))
	assert.Equal(t, "398.00", f.Total.StringFixed(2))

	guardada, err := env.facturas.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Total.StringFixed(2), guardada.Total.StringFixed(2))

	detalles, err := env.facturas.GetDetalles(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, detalles, 2)
	assert.Equal(t, "300.00", detalles[0].Importe.StringFixed(2))
}

func TestCrear_DescuentoPorConcepto(t *testing.T) {
	env := nuevoEntornoCaptura(t)

	in := capturaPrueba()
	in.Detalles[0].Descuento = decimal.NewFromInt(30)

	f, err := env.uc.Crear(context.Background(), "emisor-1", in)
	require.NoError(t, err)
	assert.Equal(t, "30.00", f.Descuento.StringFixed(2))
	assert.Equal(t, "368.00", f.Total.StringFixed(2))
}

func TestCrear_ClienteDeOtroEmisor(t *testing.T) {
	env := nuevoEntornoCaptura(t)

	in := capturaPrueba()
	in.ClienteID = "cliente-ajeno"
	_, err := env.uc.Crear(context.Background(), "emisor-1", in)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCrear_FolioDuplicado(t *testing.T) {
	env := nuevoEntornoCaptura(t)

	_, err := env.uc.Crear(context.Background(), "emisor-1", capturaPrueba())
	require.NoError(t, err)

	_, err = env.uc.Crear(context.Background(), "emisor-1", capturaPrueba())
	require.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestCrear_PPDExigeFormaPagoPorDefinir(t *testing.T) {
	env := nuevoEntornoCaptura(t)

	in := capturaPrueba()
	in.MetodoPago = entity.MetodoPagoPPD
	in.FormaPago = "03"
	_, err := env.uc.Crear(context.Background(), "emisor-1", in)
	require.ErrorIs(t, err, domain.ErrValidacion)
	assert.Contains(t, err.Error(), "99")

	in.FormaPago = "99"
	f, err := env.uc.Crear(context.Background(), "emisor-1", in)
	require.NoError(t, err)
	assert.Equal(t, entity.MetodoPagoPPD, f.MetodoPago)
}

func TestCrear_MonedaExtranjera(t *testing.T) {
	env := nuevoEntornoCaptura(t)

	in := capturaPrueba()
	in.Moneda = "USD"
	_, err := env.uc.Crear(context.Background(), "emisor-1", in)
	require.ErrorIs(t, err, domain.ErrValidacion)

	in.TipoCambio = decimal.NewFromFloat(17.5)
	f, err := env.uc.Crear(context.Background(), "emisor-1", in)
	require.NoError(t, err)
	assert.Equal(t, "USD", f.Moneda)
	assert.True(t, f.TipoCambio.Equal(decimal.NewFromFloat(17.5)))
}

func TestCrear_ConceptosInvalidos(t *testing.T) {
	env := nuevoEntornoCaptura(t)

	t.Run("sin conceptos", func(t *testing.T) {
		in := capturaPrueba()
		in.Detalles = nil
		_, err := env.uc.Crear(context.Background(), "emisor-1", in)
		require.ErrorIs(t, err, domain.ErrValidacion)
	})

	t.Run("cantidad cero", func(t *testing.T) {
		in := capturaPrueba()
		in.Detalles[0].Cantidad = decimal.Zero
		_, err := env.uc.Crear(context.Background(), "emisor-1", in)
		require.ErrorIs(t, err, domain.ErrValidacion)
		assert.Contains(t, err.Error(), "cantidad")
	})

	t.Run("descuento mayor al importe", func(t *testing.T) {
		in := capturaPrueba()
		in.Detalles[0].Descuento = decimal.NewFromInt(500)
		_, err := env.uc.Crear(context.Background(), "emisor-1", in)
		require.ErrorIs(t, err, domain.ErrValidacion)
		assert.Contains(t, err.Error(), "descuento")
	})
}

func TestCrear_FalloDeTransaccionNoPersiste(t *testing.T) {
	env := nuevoEntornoCaptura(t)
	env.runner.err = errors.New("conexión perdida")

	_, err := env.uc.Crear(context.Background(), "emisor-1", capturaPrueba())
	require.Error(t, err)

	existe, err := env.facturas.ExisteFolio(context.Background(), "emisor-1", "A", "2001", "")
	require.NoError(t, err)
	assert.False(t, existe)
}
