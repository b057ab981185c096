package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// PagoFacturaRepository define el puerto de persistencia para pagos de
// facturas PPD y sus complementos timbrados.
type PagoFacturaRepository interface {
	Create(ctx context.Context, p *entity.PagoFactura) error
	GetByID(ctx context.Context, id string) (*entity.PagoFactura, error)
	GetByFacturaID(ctx context.Context, facturaID string) ([]*entity.PagoFactura, error)
	// TotalPagado suma los pagos timbrados de la factura (para saldo pendiente).
	TotalPagado(ctx context.Context, facturaID string) (decimal.Decimal, error)
	// ActualizarTimbrado persiste uuid, sellos y xml del complemento.
	ActualizarTimbrado(ctx context.Context, p *entity.PagoFactura) error
}
