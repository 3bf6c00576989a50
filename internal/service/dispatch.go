package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tier2-ops/safesync/internal/domain"
)

// publicKeyDirective is the one Update account instruction we know how
// to carry out. Anything else in ExtraText is left for manual triage.
const publicKeyDirective = "public key added"

// outcome is what a handler produces before anything is written
// anywhere: the completion parameters for SAFE, the local mutations to
// run inside the post-confirmation transaction, and an optional
// post-commit action.
type outcome struct {
	params domain.CloseParams
	// username is the resolved account name, set by the New User handler
	// for companion matching.
	username string
	// commit runs inside the closure transaction, only after SAFE has
	// confirmed the close.
	commit func(ctx context.Context, s Stores) error
	// after runs once the transaction has committed.
	after func(ctx context.Context) error
}

type handler func(ctx context.Context, t domain.LocalTicket) (*outcome, error)

// handlerFor maps a ticket's declared type to its handler. Unrecognized
// types fail here, before any side effect.
func (c *Coordinator) handlerFor(t domain.LocalTicket) (handler, error) {
	switch t.Type {
	case domain.TypeNewUser:
		return c.handleNewUser, nil
	case domain.TypeNewBudget:
		return c.handleNewBudget, nil
	case domain.TypeAddToBudget:
		return c.handleAddToBudget, nil
	case domain.TypeUpdateAccount:
		return c.handleUpdateAccount, nil
	case domain.TypeMoveGold:
		return c.handleMoveGold, nil
	}
	return nil, &domain.UnhandledTicketError{TicketID: t.ID, Type: t.Type}
}

// handleNewUser finds or allocates the username for the requested
// account and reports it back to SAFE on completion.
func (c *Coordinator) handleNewUser(ctx context.Context, t domain.LocalTicket) (*outcome, error) {
	email := t.Account.Person.Email

	username, err := c.stores.Directory.FindUsernameByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: locate username: %w", t.ID, err)
	}
	if username == "" {
		username, err = c.prov.AllocateUsername(ctx, t.Ticket)
		if err != nil {
			return nil, fmt.Errorf("ticket %s: %w", t.ID, err)
		}
		c.logger.Info("allocated username", "ticket_id", t.ID, "username", username)
	}

	return &outcome{
		params:   domain.CompleteNewUser(t.ID, username),
		username: username,
		commit: func(ctx context.Context, s Stores) error {
			return s.Directory.UpsertAccount(ctx, username, email)
		},
	}, nil
}

// handleNewBudget derives the owning institute from the project naming
// scheme and records the budget.
func (c *Coordinator) handleNewBudget(ctx context.Context, t domain.LocalTicket) (*outcome, error) {
	code := t.ProjectGroup.Code
	institute := instituteFor(code)
	pocEmail := t.Approver.Email

	return &outcome{
		params: domain.CompleteBudget(t.ID, code),
		commit: func(ctx context.Context, s Stores) error {
			return s.Directory.CreateBudget(ctx, code, institute, pocEmail)
		},
	}, nil
}

// handleAddToBudget pairs the account with an existing budget.
func (c *Coordinator) handleAddToBudget(ctx context.Context, t domain.LocalTicket) (*outcome, error) {
	username := t.Account.Name
	code := t.ProjectGroup.Code

	return &outcome{
		params: domain.CompleteGeneric(t.ID),
		commit: func(ctx context.Context, s Stores) error {
			return s.Directory.AddProjectUser(ctx, username, code)
		},
	}, nil
}

// handleUpdateAccount branches on the ExtraText directive. Only
// recognized directives are carried out; the rest abort untouched.
func (c *Coordinator) handleUpdateAccount(ctx context.Context, t domain.LocalTicket) (*outcome, error) {
	if !strings.Contains(strings.ToLower(t.ExtraText), publicKeyDirective) {
		return nil, &domain.UnhandledTicketError{TicketID: t.ID, Type: t.Type, Directive: t.ExtraText}
	}

	username := t.Account.Name
	key := t.Account.Person.NormalisedPublicKey

	return &outcome{
		params: domain.CompleteGeneric(t.ID),
		commit: func(ctx context.Context, s Stores) error {
			return s.Directory.SetPublicKey(ctx, username, key)
		},
	}, nil
}

// handleMoveGold executes the local transfer command. The transfer is
// not idempotent, so it runs exactly once here; if the remote close
// fails afterwards the divergence is reported, never re-run blindly.
// After a committed closure the updated balances are pushed back to SAFE.
func (c *Coordinator) handleMoveGold(ctx context.Context, t domain.LocalTicket) (*outcome, error) {
	if err := c.prov.TransferGold(ctx, t.GoldTransfer, t.ProjectGroup.Code); err != nil {
		return nil, fmt.Errorf("ticket %s: %w", t.ID, err)
	}

	return &outcome{
		params: domain.CompleteGeneric(t.ID),
		after:  c.prov.PushGoldBalances,
	}, nil
}

// instituteFor derives the owning institute from the project code
// naming scheme: the segment before the first dash.
func instituteFor(code string) string {
	if i := strings.Index(code, "-"); i > 0 {
		return code[:i]
	}
	return code
}
