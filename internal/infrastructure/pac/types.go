// Package pac implementa la comunicación con el proveedor autorizado de
// certificación (PAC) para el timbrado de CFDI.
package pac

import (
	"context"
	"time"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// TimbradoRequest es el paquete que se entrega al PAC: el XML sellado más el
// material criptográfico del emisor tal como se captura (base64).
type TimbradoRequest struct {
	XMLCFDI []byte
	Cert    string
	Key     string
	KeyPass string
	Prueba  bool
}

// TimbradoResult es el resultado de un timbrado exitoso.
type TimbradoResult struct {
	UUID             string
	FechaTimbrado    string
	SelloCFD         string
	NoCertificadoSAT string
	SelloSAT         string
	XMLTimbrado      []byte
	ID               string
}

// Timbrador define el puerto de salida hacia el PAC. La implementación
// concreta usa SOAP; para tests y ambientes locales se inyecta el simulador.
type Timbrador interface {
	// Timbrar envía el CFDI sellado al PAC y devuelve el timbre fiscal.
	Timbrar(ctx context.Context, req *TimbradoRequest) (*TimbradoResult, error)
	// Cancelar solicita la cancelación de un CFDI timbrado.
	Cancelar(ctx context.Context, uuid, motivo string) error
	// Consultar pregunta el estatus de un CFDI ante el SAT.
	Consultar(ctx context.Context, uuid string) (string, error)
}

// ── Configuración ──────────────────────────────────────────────────────────────

// Config son los parámetros de conexión y reintentos contra el PAC.
type Config struct {
	URL              string
	Contrato         string
	Usuario          string
	Password         string
	Timeout          time.Duration
	MaxReintentos    int
	RetrasoReintento time.Duration
	FactorBackoff    float64
}

// aplicarDefaults completa los valores no configurados.
func (c *Config) aplicarDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxReintentos <= 0 {
		c.MaxReintentos = 3
	}
	if c.RetrasoReintento <= 0 {
		c.RetrasoReintento = time.Second
	}
	if c.FactorBackoff <= 0 {
		c.FactorBackoff = 2
	}
}
