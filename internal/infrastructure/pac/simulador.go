package pac

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
)

// Simulador implementa Timbrador sin salir a la red: genera un UUID y agrega
// un TimbreFiscalDigital ficticio al comprobante. Solo para desarrollo y
// pruebas locales; el orquestador lo prohíbe en producción.
type Simulador struct {
	log zerolog.Logger

	// ahora permite fijar el reloj en tests.
	ahora func() time.Time
}

// NewSimulador crea el simulador.
func NewSimulador(log zerolog.Logger) *Simulador {
	return &Simulador{
		log:   log.With().Str("component", "pac_simulador").Logger(),
		ahora: time.Now,
	}
}

// Timbrar genera un timbre ficticio e inyecta el complemento en el XML.
func (s *Simulador) Timbrar(ctx context.Context, req *TimbradoRequest) (*TimbradoResult, error) {
	if len(req.XMLCFDI) == 0 {
		return nil, fmt.Errorf("%w: el XML a timbrar está vacío", domain.ErrValidacion)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(req.XMLCFDI); err != nil {
		return nil, fmt.Errorf("%w: XML a timbrar ilegible: %v", domain.ErrValidacion, err)
	}
	raiz := doc.Root()
	if raiz == nil {
		return nil, fmt.Errorf("%w: el documento no tiene elemento raíz", domain.ErrValidacion)
	}

	folioFiscal := uuid.New().String()
	fecha := s.ahora().Format("2006-01-02T15:04:05")
	sello := raiz.SelectAttrValue("Sello", "SELLO-SIMULADO")

	var complemento *etree.Element
	for _, hijo := range raiz.ChildElements() {
		if hijo.Tag == "Complemento" {
			complemento = hijo
			break
		}
	}
	if complemento == nil {
		complemento = raiz.CreateElement("cfdi:Complemento")
	}

	timbre := complemento.CreateElement("tfd:TimbreFiscalDigital")
	timbre.CreateAttr("xmlns:tfd", "http://www.sat.gob.mx/TimbreFiscalDigital")
	timbre.CreateAttr("xsi:schemaLocation",
		"http://www.sat.gob.mx/TimbreFiscalDigital http://www.sat.gob.mx/sitio_internet/cfd/TimbreFiscalDigital/TimbreFiscalDigitalv11.xsd")
	timbre.CreateAttr("Version", "1.1")
	timbre.CreateAttr("UUID", folioFiscal)
	timbre.CreateAttr("FechaTimbrado", fecha)
	timbre.CreateAttr("RfcProvCertif", "SIM010101AAA")
	timbre.CreateAttr("SelloCFD", sello)
	timbre.CreateAttr("NoCertificadoSAT", "30001000000500003416")
	timbre.CreateAttr("SelloSAT", "SELLO-SAT-SIMULADO")

	xmlTimbrado, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: serializar XML simulado: %v", domain.ErrTransporte, err)
	}

	s.log.Info().Str("uuid", folioFiscal).Msg("timbrado simulado")
	return &TimbradoResult{
		UUID:             folioFiscal,
		FechaTimbrado:    fecha,
		SelloCFD:         sello,
		NoCertificadoSAT: "30001000000500003416",
		SelloSAT:         "SELLO-SAT-SIMULADO",
		XMLTimbrado:      xmlTimbrado,
		ID:               "SIM-" + folioFiscal[:8],
	}, nil
}

// Cancelar marca la cancelación como aceptada sin contactar a nadie.
func (s *Simulador) Cancelar(ctx context.Context, uuid, motivo string) error {
	s.log.Info().Str("uuid", uuid).Str("motivo", motivo).Msg("cancelación simulada")
	return nil
}

// Consultar siempre reporta el CFDI como vigente.
func (s *Simulador) Consultar(ctx context.Context, uuid string) (string, error) {
	return "Vigente", nil
}
