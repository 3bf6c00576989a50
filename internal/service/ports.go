// Package service holds the ticket dispatch and closure-consistency
// engine: type dispatch, companion matching and the closure coordinator
// that keeps SAFE and the local mirror consistent.
package service

import (
	"context"

	"github.com/tier2-ops/safesync/internal/domain"
)

// SourceGateway is the port for the remote SAFE service.
type SourceGateway interface {
	FetchOpenTickets(ctx context.Context) ([]domain.Ticket, error)
	CloseTicket(ctx context.Context, params domain.CloseParams) (*domain.CloseResult, error)
}

// TicketStore is the port for the safetickets mirror.
type TicketStore interface {
	UpsertTickets(ctx context.Context, tickets []domain.Ticket) error
	FindByID(ctx context.Context, id string) (*domain.LocalTicket, error)
	FindCandidateCompanions(ctx context.Context, username, excludeID string) ([]domain.LocalTicket, error)
	ListPending(ctx context.Context) ([]domain.LocalTicket, error)
	SetLocalStatus(ctx context.Context, id string, status domain.LocalStatus) error
}

// DirectoryStore is the port for the locally-tracked entities the
// handlers mutate.
type DirectoryStore interface {
	CreateBudget(ctx context.Context, code, institute, pocEmail string) error
	AddProjectUser(ctx context.Context, username, budgetCode string) error
	UpsertAccount(ctx context.Context, username, email string) error
	SetPublicKey(ctx context.Context, username, publicKey string) error
	FindUsernameByEmail(ctx context.Context, email string) (string, error)
}

// Stores bundles the store ports. The coordinator receives one pool-bound
// set for reads and a tx-bound set inside WithTransaction for writes.
type Stores struct {
	Tickets   TicketStore
	Directory DirectoryStore
}

// Transactor scopes local mutations to one ambient transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Provisioner is the port for the side-effecting site commands.
type Provisioner interface {
	AllocateUsername(ctx context.Context, t domain.Ticket) (string, error)
	TransferGold(ctx context.Context, tr domain.GoldTransfer, project string) error
	PushGoldBalances(ctx context.Context) error
}
