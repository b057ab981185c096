package repository

import (
	"context"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// FacturaRepository define el puerto de persistencia para Factura y sus conceptos.
type FacturaRepository interface {
	Create(ctx context.Context, f *entity.Factura) error
	CreateDetalle(ctx context.Context, d *entity.FacturaDetalle) error
	GetByID(ctx context.Context, id string) (*entity.Factura, error)
	GetDetalles(ctx context.Context, facturaID string) ([]*entity.FacturaDetalle, error)

	// ActualizarTimbrado persiste en una sola sentencia el resultado de un
	// timbrado exitoso (uuid, sellos, xml, fecha, estado TIMBRADO) guardado
	// por el estado previo: solo aplica si la fila sigue en PENDIENTE o
	// ERROR. Devuelve domain.ErrEstado si otra petición ganó la carrera.
	ActualizarTimbrado(ctx context.Context, f *entity.Factura) error

	// RegistrarFallo guarda el detalle de un fallo local (certificado,
	// cadena, sello) sin mover el estado ni contar intento: la factura
	// sigue timbrable tal como estaba.
	RegistrarFallo(ctx context.Context, id, mensaje string) error

	// MarcarError pasa la factura a ERROR con el detalle del problema.
	// contarIntento incrementa intentos_timbrado en 1 y sella ultimo_intento
	// (solo para fallos de envío al PAC; los fallos de validación no cuentan
	// como intento).
	MarcarError(ctx context.Context, id, mensaje string, contarIntento bool) error

	// Cancelar aplica TIMBRADO → CANCELADO; domain.ErrEstado si la factura
	// no está timbrada.
	Cancelar(ctx context.Context, id, motivo, acuse string) error

	// ExisteFolio detecta folios duplicados dentro de (emisor, serie).
	ExisteFolio(ctx context.Context, emisorID, serie, folio, exceptoID string) (bool, error)
}
