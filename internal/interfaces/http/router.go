package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/directiva-agricola/facturacion-api/internal/application/facturacion"
)

// Roles de la API. Un token de consulta puede leer pero nunca timbrar,
// cancelar ni registrar pagos.
const (
	RoleAdmin      = "admin"
	RoleFacturista = "facturista"
	RoleConsulta   = "consulta"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CrearFactura *facturacion.CrearFacturaUseCase
	Orquestador  *facturacion.TimbradoOrchestrator
	Pagos        *facturacion.PagoUseCase
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	facturaHandler := NewFacturaHandler(deps.CrearFactura, deps.Orquestador)
	pagoHandler := NewPagoHandler(deps.Pagos)

	escritura := RequireRole(RoleAdmin, RoleFacturista)
	lectura := RequireRole(RoleAdmin, RoleFacturista, RoleConsulta)

	facturas := protected.Group("/facturas")
	facturas.Post("/", escritura, facturaHandler.Create)
	facturas.Get("/:id", lectura, facturaHandler.GetByID)
	facturas.Get("/:id/estatus", lectura, facturaHandler.Estatus)
	facturas.Post("/:id/timbrar", escritura, facturaHandler.Timbrar)
	facturas.Post("/:id/cancelar", escritura, facturaHandler.Cancelar)

	facturas.Post("/:id/pagos", escritura, pagoHandler.Create)
	facturas.Get("/:id/pagos", lectura, pagoHandler.List)
}
