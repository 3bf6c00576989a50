package service

import (
	"context"
	"log/slog"

	"github.com/tier2-ops/safesync/internal/domain"
)

// RefreshService mirrors the open SAFE tickets into the local database
// and reports what is still pending.
type RefreshService struct {
	gateway SourceGateway
	tickets TicketStore
	tx      Transactor
	debug   bool
	logger  *slog.Logger
}

func NewRefreshService(
	gateway SourceGateway,
	tickets TicketStore,
	tx Transactor,
	debug bool,
	logger *slog.Logger,
) *RefreshService {
	return &RefreshService{
		gateway: gateway,
		tickets: tickets,
		tx:      tx,
		debug:   debug,
		logger:  logger,
	}
}

// Refresh fetches the open tickets, upserts them into the mirror in one
// transaction, and returns the pending set. The upsert is idempotent:
// re-running with the same feed changes no row counts. In debug mode
// nothing is committed; the fetched tickets are returned for display.
func (s *RefreshService) Refresh(ctx context.Context) ([]domain.LocalTicket, error) {
	tickets, err := s.gateway.FetchOpenTickets(ctx)
	if err != nil {
		return nil, err
	}

	if s.debug {
		s.logger.Info("debug: refresh suppressed", "fetched", len(tickets))
		pending := make([]domain.LocalTicket, len(tickets))
		for i, t := range tickets {
			pending[i] = domain.LocalTicket{Ticket: t, LocalStatus: domain.LocalPending}
		}
		return pending, nil
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context, st Stores) error {
		return st.Tickets.UpsertTickets(ctx, tickets)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tickets refreshed", "fetched", len(tickets))
	return s.tickets.ListPending(ctx)
}
