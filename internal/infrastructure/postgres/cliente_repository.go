package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
)

var _ repository.ClienteRepository = (*ClienteRepo)(nil)

// ClienteRepo implementación de ClienteRepository.
type ClienteRepo struct {
	q Querier
}

// NewClienteRepository construye el adaptador.
func NewClienteRepository(q Querier) *ClienteRepo {
	return &ClienteRepo{q: q}
}

// GetByID obtiene un receptor por ID.
func (r *ClienteRepo) GetByID(ctx context.Context, id string) (*entity.Cliente, error) {
	query := `
		SELECT id, emisor_id, razon_social, rfc, codigo_postal, regimen_fiscal,
		       uso_cfdi, email, created_at, updated_at
		FROM clientes WHERE id = $1`
	var c entity.Cliente
	var email *string
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.EmisorID, &c.RazonSocial, &c.RFC, &c.CodigoPostal, &c.RegimenFiscal,
		&c.UsoCFDI, &email, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: cliente %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get cliente: %w", err)
	}
	c.Email = derefStr(email)
	return &c, nil
}
