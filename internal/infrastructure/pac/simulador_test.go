package pac_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/infrastructure/pac"
)

func TestSimulador_GeneraTimbre(t *testing.T) {
	sim := pac.NewSimulador(zerolog.Nop())

	resultado, err := sim.Timbrar(context.Background(), requestPrueba())
	require.NoError(t, err)

	_, err = uuid.Parse(resultado.UUID)
	assert.NoError(t, err)
	assert.NotEmpty(t, resultado.FechaTimbrado)
	assert.Contains(t, string(resultado.XMLTimbrado), "TimbreFiscalDigital")
	assert.Contains(t, string(resultado.XMLTimbrado), resultado.UUID)
	// El sello del comprobante se refleja como SelloCFD.
	assert.Equal(t, "SELLO", resultado.SelloCFD)
}

func TestSimulador_UUIDDistintoPorTimbrado(t *testing.T) {
	sim := pac.NewSimulador(zerolog.Nop())

	a, err := sim.Timbrar(context.Background(), requestPrueba())
	require.NoError(t, err)
	b, err := sim.Timbrar(context.Background(), requestPrueba())
	require.NoError(t, err)

	assert.NotEqual(t, a.UUID, b.UUID)
}

func TestSimulador_XMLVacio(t *testing.T) {
	sim := pac.NewSimulador(zerolog.Nop())
	_, err := sim.Timbrar(context.Background(), &pac.TimbradoRequest{})
	assert.ErrorIs(t, err, domain.ErrValidacion)
}

func TestSimulador_CancelacionYConsulta(t *testing.T) {
	sim := pac.NewSimulador(zerolog.Nop())

	assert.NoError(t, sim.Cancelar(context.Background(), "UUID", "02"))

	estatus, err := sim.Consultar(context.Background(), "UUID")
	require.NoError(t, err)
	assert.Equal(t, "Vigente", estatus)
}
