package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/directiva-agricola/facturacion-api/internal/application/facturacion"
	"github.com/directiva-agricola/facturacion-api/internal/domain"
)

var validate = validator.New()

// FacturaHandler maneja captura, timbrado, cancelación y estatus (protegido).
type FacturaHandler struct {
	crear *facturacion.CrearFacturaUseCase
	orq   *facturacion.TimbradoOrchestrator
}

// NewFacturaHandler construye el handler.
func NewFacturaHandler(crear *facturacion.CrearFacturaUseCase, orq *facturacion.TimbradoOrchestrator) *FacturaHandler {
	return &FacturaHandler{crear: crear, orq: orq}
}

// responderError traduce los errores de dominio a códigos HTTP.
func responderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	case errors.Is(err, domain.ErrEstado):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Code: "INVALID_STATE", Message: err.Error()})
	case errors.Is(err, domain.ErrValidacion), errors.Is(err, domain.ErrCertificado), errors.Is(err, domain.ErrSello):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrConfiguracion):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "CONFIG", Message: err.Error()})
	case errors.Is(err, domain.ErrMaxReintentos), errors.Is(err, domain.ErrTransporte):
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Code: "PAC_UNAVAILABLE", Message: err.Error()})
	case errors.Is(err, domain.ErrAutoridad):
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "PAC_REJECTED", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

// Create captura una factura en PENDIENTE.
// POST /api/facturas
func (h *FacturaHandler) Create(c *fiber.Ctx) error {
	emisorID := GetEmisorID(c)
	if emisorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in CrearFacturaRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := validate.Struct(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	f, err := h.crear.Crear(c.Context(), emisorID, toCrearFacturaInput(&in))
	if err != nil {
		return responderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toFacturaResponse(f))
}

// Timbrar ejecuta el pipeline de timbrado sobre una factura PENDIENTE o ERROR.
// POST /api/facturas/:id/timbrar
func (h *FacturaHandler) Timbrar(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	f, err := h.orq.Timbrar(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(toFacturaResponse(f))
}

// Cancelar cancela una factura timbrada ante el PAC.
// POST /api/facturas/:id/cancelar
func (h *FacturaHandler) Cancelar(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	var in CancelarRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := validate.Struct(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	f, err := h.orq.Cancelar(c.Context(), id, in.Motivo)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(toFacturaResponse(f))
}

// GetByID devuelve la factura con su resultado de timbrado.
// GET /api/facturas/:id
func (h *FacturaHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	f, err := h.orq.Factura(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(toFacturaResponse(f))
}

// Estatus consulta el estatus del CFDI ante el PAC.
// GET /api/facturas/:id/estatus
func (h *FacturaHandler) Estatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	estatus, err := h.orq.Consultar(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	f, err := h.orq.Factura(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(EstatusResponse{ID: id, UUID: f.UUID, Estatus: estatus})
}
