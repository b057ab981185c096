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

var _ repository.EmisorRepository = (*EmisorRepo)(nil)

// EmisorRepo implementación de EmisorRepository.
type EmisorRepo struct {
	q Querier
}

// NewEmisorRepository construye el adaptador.
func NewEmisorRepository(q Querier) *EmisorRepo {
	return &EmisorRepo{q: q}
}

const emisorColumns = `id, razon_social, rfc, codigo_postal, regimen_fiscal, serie,
	archivo_certificado, archivo_llave, password_llave,
	nombre_pac, contrato, usuario_pac, password_pac, timbrado_prueba, activo,
	created_at, updated_at`

// GetByID obtiene el perfil fiscal del emisor.
func (r *EmisorRepo) GetByID(ctx context.Context, id string) (*entity.Emisor, error) {
	query := `SELECT ` + emisorColumns + ` FROM emisores WHERE id = $1`
	return r.scanEmisor(r.q.QueryRow(ctx, query, id), id)
}

// GetActivo devuelve el emisor activo (el perfil fiscal en uso).
func (r *EmisorRepo) GetActivo(ctx context.Context) (*entity.Emisor, error) {
	query := `SELECT ` + emisorColumns + ` FROM emisores WHERE activo ORDER BY created_at DESC LIMIT 1`
	return r.scanEmisor(r.q.QueryRow(ctx, query), "activo")
}

func (r *EmisorRepo) scanEmisor(row pgx.Row, ref string) (*entity.Emisor, error) {
	var e entity.Emisor
	var cert, llave, passLlave, contrato, usuarioPAC, passwordPAC *string
	err := row.Scan(
		&e.ID, &e.RazonSocial, &e.RFC, &e.CodigoPostal, &e.RegimenFiscal, &e.Serie,
		&cert, &llave, &passLlave,
		&e.NombrePAC, &contrato, &usuarioPAC, &passwordPAC, &e.TimbradoPrueba, &e.Activo,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: emisor %s", domain.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("get emisor: %w", err)
	}
	e.ArchivoCertificado = derefStr(cert)
	e.ArchivoLlave = derefStr(llave)
	e.PasswordLlave = derefStr(passLlave)
	e.Contrato = derefStr(contrato)
	e.UsuarioPAC = derefStr(usuarioPAC)
	e.PasswordPAC = derefStr(passwordPAC)
	return &e, nil
}
