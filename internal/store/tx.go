package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TxStores bundles the tx-bound repositories handed to a transactional
// closure. All writes through them commit or roll back together.
type TxStores struct {
	Tickets   *TicketRepository
	Directory *DirectoryRepository
}

// TransactionCoordinator scopes all local mutations for one ticket
// closure (and its companion, if matched) to a single transaction.
type TransactionCoordinator struct {
	pool *pgxpool.Pool
}

func NewTransactionCoordinator(db *DB) *TransactionCoordinator {
	return &TransactionCoordinator{
		pool: db.Pool,
	}
}

// WithTransaction executes fn within a database transaction. The
// repositories passed to fn run on the transaction; any error rolls
// everything back, so no partial local state survives a failed closure.
func (tc *TransactionCoordinator) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, s TxStores) error,
) error {
	tx, err := tc.pool.Begin(ctx)
	if err != nil {
		return ClassifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	s := TxStores{
		Tickets:   &TicketRepository{q: tx},
		Directory: &DirectoryRepository{q: tx},
	}

	if err := fn(ctx, s); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return ClassifyError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}
