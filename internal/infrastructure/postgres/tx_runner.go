package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/directiva-agricola/facturacion-api/internal/application/facturacion"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
)

// Ensure TxRunner implements facturacion.TxRunner.
var _ facturacion.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunFacturacion inicia una transacción, ejecuta fn con repos atados a la tx
// y hace Commit o Rollback. Se usa para capturar factura y conceptos como una
// unidad: o entra todo o no entra nada.
func (r *TxRunner) RunFacturacion(ctx context.Context, fn func(
	facturaRepo repository.FacturaRepository,
	pagoRepo repository.PagoFacturaRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	facturaRepo := NewFacturaRepository(tx)
	pagoRepo := NewPagoRepository(tx)

	if err := fn(facturaRepo, pagoRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
