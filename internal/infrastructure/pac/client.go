package pac

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	infsat "github.com/directiva-agricola/facturacion-api/internal/infrastructure/sat"
)

// ── Constantes del servicio Prodigia ──────────────────────────────────────────

const (
	// URLProdigia es la base del servicio de timbrado PADE.
	URLProdigia = "https://timbrado.pade.mx"

	rutaTimbrado = "/servicio/Timbrado4.0"

	nsSoap     = "http://schemas.xmlsoap.org/soap/envelope/"
	nsTimbrado = "timbrado.ws.pade.mx"

	opcionCalcularSello = "CALCULAR_SELLO"
)

// Tamaño máximo de respuesta que se lee del PAC.
const maxRespuesta = 4 << 20

// ── Implementación SOAP ────────────────────────────────────────────────────────

// ProdigiaClient implementa Timbrador contra el WS SOAP de Prodigia (PADE).
type ProdigiaClient struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// NewProdigiaClient construye el cliente con los defaults de reintento. El
// timeout aplica a cada intento HTTP, no al ciclo completo.
func NewProdigiaClient(cfg Config, log zerolog.Logger) *ProdigiaClient {
	cfg.aplicarDefaults()
	if cfg.URL == "" {
		cfg.URL = URLProdigia
	}
	return &ProdigiaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With().Str("component", "pac_prodigia").Logger(),
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type cdataXML struct {
	Value string `xml:",cdata"`
}

// timbradoCfdiBody cuerpo de la operación timbradoCfdi.
type timbradoCfdiBody struct {
	XMLName  xml.Name `xml:"tim:timbradoCfdi"`
	Contrato string   `xml:"contrato"`
	Usuario  string   `xml:"usuario"`
	Passwd   string   `xml:"passwd"`
	CfdiXML  cdataXML `xml:"cfdiXml"`
	Cert     string   `xml:"cert,omitempty"`
	Key      string   `xml:"key,omitempty"`
	KeyPass  string   `xml:"keyPass,omitempty"`
	Prueba   string   `xml:"prueba"`
	Opciones string   `xml:"opciones"`
}

type soapEnvelope struct {
	XMLName  xml.Name `xml:"soapenv:Envelope"`
	XmlnsEnv string   `xml:"xmlns:soapenv,attr"`
	XmlnsTim string   `xml:"xmlns:tim,attr"`
	Header   struct{} `xml:"soapenv:Header"`
	Body     soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// ── Estructuras de respuesta ──────────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	TimbradoResponse *timbradoCfdiResponse `xml:"timbradoCfdiResponse"`
	Fault            *soapFault            `xml:"Fault"`
}

type timbradoCfdiResponse struct {
	Return string `xml:"return"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// respuestaTimbrado es el XML interno que viaja dentro del elemento return.
type respuestaTimbrado struct {
	TimbradoOk       bool   `xml:"timbradoOk"`
	Codigo           string `xml:"codigo"`
	Mensaje          string `xml:"mensaje"`
	ID               string `xml:"id"`
	XMLBase64        string `xml:"xmlBase64"`
	UUID             string `xml:"UUID"`
	FechaTimbrado    string `xml:"FechaTimbrado"`
	SelloCFD         string `xml:"selloCFD"`
	NoCertificadoSAT string `xml:"noCertificadoSAT"`
	SelloSAT         string `xml:"selloSAT"`
}

// ── Timbrar ───────────────────────────────────────────────────────────────────

// Timbrar envía el CFDI a Prodigia con reintentos exponenciales. Solo los
// errores de transporte se reintentan: un rechazo del PAC es definitivo y se
// devuelve de inmediato.
func (c *ProdigiaClient) Timbrar(ctx context.Context, req *TimbradoRequest) (*TimbradoResult, error) {
	payload, err := c.construirEnvelope(req)
	if err != nil {
		return nil, err
	}

	var ultimoErr error
	for intento := 0; intento <= c.cfg.MaxReintentos; intento++ {
		if intento > 0 {
			retraso := c.retrasoIntento(intento - 1)
			c.log.Warn().
				Int("intento", intento).
				Dur("retraso", retraso).
				Err(ultimoErr).
				Msg("reintentando timbrado")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrTransporte, ctx.Err())
			case <-time.After(retraso):
			}
		}

		resultado, err := c.enviar(ctx, payload)
		if err == nil {
			return resultado, nil
		}
		// Los rechazos del PAC no se reintentan.
		if !isErrTransporte(err) {
			return nil, err
		}
		ultimoErr = err
	}

	return nil, fmt.Errorf("%w: se agotaron %d reintentos contra el PAC: %v",
		domain.ErrMaxReintentos, c.cfg.MaxReintentos, ultimoErr)
}

// retrasoIntento calcula el retraso exponencial del reintento n (base 0).
// El factor puede ser fraccionario, por eso el cálculo va en float.
func (c *ProdigiaClient) retrasoIntento(n int) time.Duration {
	retraso := float64(c.cfg.RetrasoReintento)
	for i := 0; i < n; i++ {
		retraso *= c.cfg.FactorBackoff
	}
	return time.Duration(retraso)
}

func isErrTransporte(err error) bool {
	return errors.Is(err, domain.ErrTransporte)
}

// enviar hace un intento HTTP completo: POST del envelope y parseo de la
// respuesta en sus tres capas (SOAP, return, XML interno).
func (c *ProdigiaClient) enviar(ctx context.Context, payload []byte) (*TimbradoResult, error) {
	endpoint := strings.TrimRight(c.cfg.URL, "/") + rutaTimbrado

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: crear request: %v", domain.ErrTransporte, err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", "timbradoCfdi")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: llamada al PAC fallida: %v", domain.ErrTransporte, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRespuesta))
	if err != nil {
		return nil, fmt.Errorf("%w: leer respuesta del PAC: %v", domain.ErrTransporte, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: el PAC respondió HTTP %d", domain.ErrTransporte, resp.StatusCode)
	}
	if len(bytes.TrimSpace(rawBody)) == 0 {
		return nil, fmt.Errorf("%w: el PAC devolvió una respuesta vacía", domain.ErrTransporte)
	}
	// Una página HTML indica un error del servidor intermedio, no del servicio.
	if esHTML(rawBody) {
		return nil, fmt.Errorf("%w: el PAC devolvió HTML en lugar de XML", domain.ErrTransporte)
	}

	return c.parsearRespuesta(rawBody)
}

func (c *ProdigiaClient) construirEnvelope(req *TimbradoRequest) ([]byte, error) {
	if c.cfg.Contrato == "" || c.cfg.Usuario == "" || c.cfg.Password == "" {
		return nil, fmt.Errorf("%w: faltan credenciales del PAC (contrato, usuario o contraseña)", domain.ErrConfiguracion)
	}
	if len(req.XMLCFDI) == 0 {
		return nil, fmt.Errorf("%w: el XML a timbrar está vacío", domain.ErrValidacion)
	}

	envelope := soapEnvelope{
		XmlnsEnv: nsSoap,
		XmlnsTim: nsTimbrado,
		Body: soapBody{Content: &timbradoCfdiBody{
			Contrato: c.cfg.Contrato,
			Usuario:  c.cfg.Usuario,
			Passwd:   c.cfg.Password,
			CfdiXML:  cdataXML{Value: sinDeclaracionXML(req.XMLCFDI)},
			Cert:     req.Cert,
			Key:      req.Key,
			KeyPass:  req.KeyPass,
			Prueba:   fmt.Sprintf("%t", req.Prueba),
			Opciones: opcionCalcularSello,
		}},
	}

	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: serializar envelope SOAP: %v", domain.ErrTransporte, err)
	}
	return append([]byte(xml.Header), payload...), nil
}

// parsearRespuesta desempaqueta las tres capas de la respuesta de Prodigia.
func (c *ProdigiaClient) parsearRespuesta(rawBody []byte) (*TimbradoResult, error) {
	var envResp soapResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, fmt.Errorf("%w: respuesta SOAP ilegible: %v", domain.ErrTransporte, err)
	}

	if envResp.Body.Fault != nil {
		return nil, fmt.Errorf("%w: SOAP Fault [%s]: %s",
			domain.ErrAutoridad, envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString)
	}
	if envResp.Body.TimbradoResponse == nil || strings.TrimSpace(envResp.Body.TimbradoResponse.Return) == "" {
		return nil, fmt.Errorf("%w: la respuesta no contiene el elemento return", domain.ErrTransporte)
	}

	var r respuestaTimbrado
	if err := xml.Unmarshal([]byte(envResp.Body.TimbradoResponse.Return), &r); err != nil {
		return nil, fmt.Errorf("%w: respuesta interna del PAC ilegible: %v", domain.ErrTransporte, err)
	}

	if !r.TimbradoOk {
		mensaje := r.Mensaje
		if mensaje == "" {
			mensaje = "error desconocido del PAC"
		}
		return nil, fmt.Errorf("%w: el PAC rechazó el timbrado [%s]: %s",
			domain.ErrAutoridad, r.Codigo, mensaje)
	}
	if r.XMLBase64 == "" {
		return nil, fmt.Errorf("%w: timbrado aceptado pero sin XML timbrado en la respuesta", domain.ErrAutoridad)
	}
	xmlTimbrado, err := base64.StdEncoding.DecodeString(r.XMLBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: el XML timbrado no es base64 válido: %v", domain.ErrAutoridad, err)
	}

	resultado := &TimbradoResult{
		UUID:             r.UUID,
		FechaTimbrado:    r.FechaTimbrado,
		SelloCFD:         r.SelloCFD,
		NoCertificadoSAT: r.NoCertificadoSAT,
		SelloSAT:         r.SelloSAT,
		XMLTimbrado:      xmlTimbrado,
		ID:               r.ID,
	}

	// El TimbreFiscalDigital dentro del XML es la fuente primaria del folio
	// fiscal; los elementos directos de la respuesta son el respaldo cuando
	// el PAC no incluye el complemento.
	if timbre, terr := infsat.ExtraerTimbre(xmlTimbrado); terr == nil {
		resultado.UUID = timbre.UUID
		resultado.FechaTimbrado = timbre.FechaTimbrado
		resultado.SelloCFD = timbre.SelloCFD
		resultado.NoCertificadoSAT = timbre.NoCertificadoSAT
		resultado.SelloSAT = timbre.SelloSAT
		c.log.Debug().
			Str("cadena_timbre", infsat.CadenaOriginalTimbre(timbre)).
			Msg("timbre extraído del XML")
	}
	if resultado.UUID == "" {
		return nil, fmt.Errorf("%w: timbrado aceptado pero sin UUID en el timbre ni en la respuesta", domain.ErrAutoridad)
	}

	c.log.Info().Str("uuid", resultado.UUID).Str("id_pac", r.ID).Msg("CFDI timbrado")
	return resultado, nil
}

// Cancelar: el servicio Cancelacion4.0 del contrato actual responde
// NOT_IMPLEMENTED; se refleja tal cual al consumidor.
func (c *ProdigiaClient) Cancelar(ctx context.Context, uuid, motivo string) error {
	return fmt.Errorf("%w: NOT_IMPLEMENTED: la cancelación no está habilitada en el contrato", domain.ErrAutoridad)
}

// Consultar: igual que Cancelar, Consulta4.0 responde NOT_IMPLEMENTED.
func (c *ProdigiaClient) Consultar(ctx context.Context, uuid string) (string, error) {
	return "", fmt.Errorf("%w: NOT_IMPLEMENTED: la consulta no está habilitada en el contrato", domain.ErrAutoridad)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// sinDeclaracionXML quita la declaración <?xml ...?> porque el CFDI viaja
// embebido dentro del envelope.
func sinDeclaracionXML(xmlCFDI []byte) string {
	s := strings.TrimSpace(string(xmlCFDI))
	if strings.HasPrefix(s, "<?xml") {
		if i := strings.Index(s, "?>"); i >= 0 {
			s = strings.TrimSpace(s[i+2:])
		}
	}
	return s
}

func esHTML(raw []byte) bool {
	s := strings.ToLower(string(bytes.TrimSpace(raw)))
	return strings.HasPrefix(s, "<html") || strings.HasPrefix(s, "<!doctype")
}
