package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tier2-ops/safesync/internal/domain"
)

// Coordinator drives one ticket closure end to end: dispatch by type,
// run the type-specific action, close the ticket at SAFE, and only after
// SAFE has confirmed, commit all local mutations in one transaction.
// A New User closure also completes its Add to budget companion inside
// the same operation.
type Coordinator struct {
	gateway SourceGateway
	stores  Stores
	tx      Transactor
	prov    Provisioner
	logger  *slog.Logger
}

func NewCoordinator(
	gateway SourceGateway,
	stores Stores,
	tx Transactor,
	prov Provisioner,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		gateway: gateway,
		stores:  stores,
		tx:      tx,
		prov:    prov,
		logger:  logger,
	}
}

// Close carries out and closes one ticket. The remote close must be
// confirmed before any local row is marked done: reversing that order
// would let a crash between the two writes leave a ticket locally done
// but still open at SAFE, invisible and never retried.
func (c *Coordinator) Close(ctx context.Context, ticketID string) error {
	log := c.logger.With("op_id", uuid.New().String(), "ticket_id", ticketID)

	row, err := c.stores.Tickets.FindByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("ticket %s: %w", ticketID, err)
	}
	if row.LocalStatus == domain.LocalDone {
		log.Info("ticket already closed locally, nothing to do")
		return nil
	}

	h, err := c.handlerFor(*row)
	if err != nil {
		return err
	}
	log.Info("ticket dispatched", "type", string(row.Type))

	out, err := h(ctx, *row)
	if err != nil {
		return err
	}

	// Companion resolution happens before any remote write, so an
	// ambiguous pairing aborts with nothing half-done.
	var companion *domain.LocalTicket
	var companionOut *outcome
	if row.Type == domain.TypeNewUser {
		companion, err = c.findCompanion(ctx, ticketID, out.username)
		if err != nil {
			return err
		}
		if companion != nil {
			ch, err := c.handlerFor(*companion)
			if err != nil {
				return err
			}
			companionOut, err = ch(ctx, *companion)
			if err != nil {
				return err
			}
			log.Info("matching add-to-budget ticket found",
				"companion_id", companion.ID, "username", out.username)
		}
	}

	res, err := c.gateway.CloseTicket(ctx, out.params)
	if err != nil {
		return fmt.Errorf("ticket %s: remote close: %w", ticketID, err)
	}
	if res.DryRun {
		if companionOut != nil {
			if _, err := c.gateway.CloseTicket(ctx, companionOut.params); err != nil {
				return fmt.Errorf("ticket %s: companion %s close: %w", ticketID, companion.ID, err)
			}
		}
		log.Info("debug: dry run complete, local state untouched")
		return nil
	}

	if companionOut != nil {
		if _, err := c.gateway.CloseTicket(ctx, companionOut.params); err != nil {
			return fmt.Errorf(
				"ticket %s: closed at safe, but companion %s close failed; no local state committed, resolve manually before rerun: %w",
				ticketID, companion.ID, err)
		}
	}

	err = c.tx.WithTransaction(ctx, func(ctx context.Context, s Stores) error {
		if out.commit != nil {
			if err := out.commit(ctx, s); err != nil {
				return err
			}
		}
		if err := s.Tickets.SetLocalStatus(ctx, ticketID, domain.LocalDone); err != nil {
			return err
		}
		if companionOut != nil {
			if companionOut.commit != nil {
				if err := companionOut.commit(ctx, s); err != nil {
					return err
				}
			}
			if err := s.Tickets.SetLocalStatus(ctx, companion.ID, domain.LocalDone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.markFailed(ctx, log, ticketID)
		if companion != nil {
			c.markFailed(ctx, log, companion.ID)
		}
		return fmt.Errorf("ticket %s: closed at safe but local commit failed: %w", ticketID, err)
	}

	log.Info("ticket closed", "mode", string(out.params.Mode))

	c.runAfter(ctx, log, out)
	if companionOut != nil {
		c.runAfter(ctx, log, companionOut)
	}
	return nil
}

// Reject rejects one ticket at SAFE, with reason "error" for tickets
// that would cause an error and "other" for everything else. Rejection
// never completes companions.
func (c *Coordinator) Reject(ctx context.Context, ticketID, reason string) error {
	log := c.logger.With("op_id", uuid.New().String(), "ticket_id", ticketID)

	row, err := c.stores.Tickets.FindByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("ticket %s: %w", ticketID, err)
	}
	if row.LocalStatus == domain.LocalDone {
		log.Info("ticket already closed locally, nothing to do")
		return nil
	}

	var params domain.CloseParams
	switch reason {
	case "error":
		params = domain.RejectError(ticketID)
	case "", "other":
		params = domain.RejectOther(ticketID)
	default:
		return fmt.Errorf("ticket %s: unknown rejection reason %q (want error or other)", ticketID, reason)
	}

	res, err := c.gateway.CloseTicket(ctx, params)
	if err != nil {
		return fmt.Errorf("ticket %s: remote reject: %w", ticketID, err)
	}
	if res.DryRun {
		log.Info("debug: dry run complete, local state untouched")
		return nil
	}

	err = c.tx.WithTransaction(ctx, func(ctx context.Context, s Stores) error {
		return s.Tickets.SetLocalStatus(ctx, ticketID, domain.LocalDone)
	})
	if err != nil {
		c.markFailed(ctx, log, ticketID)
		return fmt.Errorf("ticket %s: rejected at safe but local commit failed: %w", ticketID, err)
	}

	log.Info("ticket rejected", "mode", string(params.Mode))
	return nil
}

// CloseAll closes every locally pending ticket. A failure aborts only
// that ticket's closure; the batch keeps going and the joined error
// reports every casualty.
func (c *Coordinator) CloseAll(ctx context.Context) error {
	pending, err := c.stores.Tickets.ListPending(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		// A ticket may have been completed earlier in the batch as a
		// companion; Close re-checks its status and no-ops.
		if err := c.Close(ctx, t.ID); err != nil {
			c.logger.Error("ticket closure failed", "ticket_id", t.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// markFailed records, best effort, that a ticket is closed at SAFE but
// not committed locally. The write is outside any transaction; if the
// store is the thing that is broken, the log line is all we get.
func (c *Coordinator) markFailed(ctx context.Context, log *slog.Logger, ticketID string) {
	if err := c.stores.Tickets.SetLocalStatus(ctx, ticketID, domain.LocalFailed); err != nil {
		log.Error("could not record failed closure", "ticket_id", ticketID, "error", err)
	}
}

func (c *Coordinator) runAfter(ctx context.Context, log *slog.Logger, out *outcome) {
	if out.after == nil {
		return
	}
	if err := out.after(ctx); err != nil {
		log.Error("post-closure action failed", "ticket_id", out.params.TicketID, "error", err)
	}
}
