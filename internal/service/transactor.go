package service

import (
	"context"

	"github.com/tier2-ops/safesync/internal/store"
)

// PgTransactor adapts the store transaction coordinator to the service
// ports, handing the tx-bound repositories to the closure as Stores.
type PgTransactor struct {
	tc *store.TransactionCoordinator
}

func NewPgTransactor(tc *store.TransactionCoordinator) *PgTransactor {
	return &PgTransactor{tc: tc}
}

func (t *PgTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	return t.tc.WithTransaction(ctx, func(ctx context.Context, s store.TxStores) error {
		return fn(ctx, Stores{Tickets: s.Tickets, Directory: s.Directory})
	})
}
