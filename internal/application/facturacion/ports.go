// Package facturacion orquesta el ciclo de timbrado CFDI:
//
//	Validación → Cadena original → Sello RSA → XML 4.0 → PAC → Update DB
package facturacion

import (
	"context"

	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción con los repositorios
// de facturación atados a ella.
type TxRunner interface {
	RunFacturacion(ctx context.Context, fn func(
		facturaRepo repository.FacturaRepository,
		pagoRepo repository.PagoFacturaRepository,
	) error) error
}

// ── Entornos de timbrado ───────────────────────────────────────────────────────

const (
	// EntornoPruebas timbra contra el ambiente de pruebas del PAC.
	EntornoPruebas = "pruebas"
	// EntornoProduccion timbra CFDI con validez fiscal.
	EntornoProduccion = "produccion"
)

// Config controla el comportamiento del pipeline de timbrado.
type Config struct {
	// Entorno es "pruebas" o "produccion".
	Entorno string
	// Simulacion sustituye al PAC por el simulador local. Prohibido en
	// producción: el orquestador lo rechaza antes de tocar la red.
	Simulacion bool
}
