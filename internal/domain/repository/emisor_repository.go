package repository

import (
	"context"

	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// EmisorRepository define el puerto de persistencia para el perfil del emisor.
type EmisorRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Emisor, error)
	// GetActivo devuelve el emisor activo (perfil fiscal en uso).
	GetActivo(ctx context.Context) (*entity.Emisor, error)
}
