package service

import (
	"context"
	"fmt"

	"github.com/tier2-ops/safesync/internal/domain"
)

// findCompanion looks for the Add to budget ticket paired with a New
// User ticket. The pair is linked only by the target username; there is
// no foreign key in the source data.
//
// Zero matches is not an error: the companion may not have arrived yet
// and a later refresh/close cycle picks it up. More than one match is
// ambiguous and is never auto-resolved.
func (c *Coordinator) findCompanion(ctx context.Context, ticketID, username string) (*domain.LocalTicket, error) {
	candidates, err := c.stores.Tickets.FindCandidateCompanions(ctx, username, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: companion lookup: %w", ticketID, err)
	}

	switch len(candidates) {
	case 0:
		c.logger.Info("no matching add-to-budget ticket yet", "ticket_id", ticketID, "username", username)
		return nil, nil
	case 1:
		return &candidates[0], nil
	}

	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.ID
	}
	return nil, &domain.AmbiguousCompanionError{
		TicketID:     ticketID,
		Username:     username,
		CandidateIDs: ids,
	}
}
