package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/directiva-agricola/facturacion-api/internal/application/facturacion"
)

// PagoHandler maneja los pagos de facturas PPD (protegido).
type PagoHandler struct {
	uc *facturacion.PagoUseCase
}

// NewPagoHandler construye el handler.
func NewPagoHandler(uc *facturacion.PagoUseCase) *PagoHandler {
	return &PagoHandler{uc: uc}
}

// Create registra un pago y timbra su complemento Pagos 2.0.
// POST /api/facturas/:id/pagos
func (h *PagoHandler) Create(c *fiber.Ctx) error {
	facturaID := c.Params("id")
	if facturaID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	var in RegistrarPagoRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := validate.Struct(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	pago, err := h.uc.RegistrarPago(c.Context(), facturaID, in.FechaPago, in.Monto, in.FormaPago)
	if err != nil {
		// El pago puede quedar persistido en PENDIENTE aunque el timbrado falle;
		// el error manda para que el cliente sepa que debe reintentar.
		return responderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toPagoResponse(pago))
}

// List devuelve los pagos registrados sobre la factura.
// GET /api/facturas/:id/pagos
func (h *PagoHandler) List(c *fiber.Ctx) error {
	facturaID := c.Params("id")
	if facturaID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	pagos, err := h.uc.Pagos(c.Context(), facturaID)
	if err != nil {
		return responderError(c, err)
	}
	out := make([]PagoResponse, 0, len(pagos))
	for _, p := range pagos {
		out = append(out, toPagoResponse(p))
	}
	return c.JSON(out)
}
