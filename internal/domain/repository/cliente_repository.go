package repository

import (
	"context"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// ClienteRepository define el puerto de persistencia para receptores.
type ClienteRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Cliente, error)
}
