package sat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	infsat "github.com/directiva-agricola/facturacion-api/internal/infrastructure/sat"
)

const xmlTimbradoPrueba = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0" Total="116.00">
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
      Version="1.1"
      UUID="AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"
      FechaTimbrado="2026-03-15T10:31:05"
      SelloCFD="selloCFD"
      NoCertificadoSAT="30001000000500003416"
      SelloSAT="selloSAT"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`

func TestExtraerTimbre(t *testing.T) {
	timbre, err := infsat.ExtraerTimbre([]byte(xmlTimbradoPrueba))
	require.NoError(t, err)

	assert.Equal(t, "AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE", timbre.UUID)
	assert.Equal(t, "2026-03-15T10:31:05", timbre.FechaTimbrado)
	assert.Equal(t, "selloCFD", timbre.SelloCFD)
	assert.Equal(t, "30001000000500003416", timbre.NoCertificadoSAT)
	assert.Equal(t, "selloSAT", timbre.SelloSAT)

	fecha, err := timbre.FechaTimbradoTime()
	require.NoError(t, err)
	assert.Equal(t, 2026, fecha.Year())
}

func TestExtraerTimbre_SinComplemento(t *testing.T) {
	xml := `<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0"/>`
	_, err := infsat.ExtraerTimbre([]byte(xml))
	assert.ErrorIs(t, err, domain.ErrAutoridad)
}

func TestExtraerTimbre_XMLIlegible(t *testing.T) {
	_, err := infsat.ExtraerTimbre([]byte("<esto no es xml"))
	assert.ErrorIs(t, err, domain.ErrAutoridad)
}

func TestCadenaOriginalTimbre(t *testing.T) {
	timbre, err := infsat.ExtraerTimbre([]byte(xmlTimbradoPrueba))
	require.NoError(t, err)

	cadena := infsat.CadenaOriginalTimbre(timbre)
	assert.Equal(t,
		"||1.1|AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE|2026-03-15T10:31:05|selloCFD|30001000000500003416||",
		cadena)
}
