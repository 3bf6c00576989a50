package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tier2-ops/safesync/internal/domain"
)

const ticketColumns = `
	id, type, status, account_name, machine, project,
	firstname, lastname, email, publickey,
	poc_firstname, poc_lastname, poc_email,
	source_account_id, source_allocation, gold_amount,
	extratext, startdate, enddate, local_status`

type TicketRepository struct {
	q Executor
}

func NewTicketRepository(q Executor) *TicketRepository {
	return &TicketRepository{q: q}
}

// UpsertTickets refreshes the mirror from a fetched ticket set. Re-running
// with the same input changes no row counts; the remote status and detail
// fields are updated in place and local_status is left alone.
func (r *TicketRepository) UpsertTickets(ctx context.Context, tickets []domain.Ticket) error {
	query := `
		INSERT INTO safetickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			account_name = EXCLUDED.account_name,
			machine = EXCLUDED.machine,
			project = EXCLUDED.project,
			firstname = EXCLUDED.firstname,
			lastname = EXCLUDED.lastname,
			email = EXCLUDED.email,
			publickey = EXCLUDED.publickey,
			poc_firstname = EXCLUDED.poc_firstname,
			poc_lastname = EXCLUDED.poc_lastname,
			poc_email = EXCLUDED.poc_email,
			source_account_id = EXCLUDED.source_account_id,
			source_allocation = EXCLUDED.source_allocation,
			gold_amount = EXCLUDED.gold_amount,
			extratext = EXCLUDED.extratext,
			startdate = EXCLUDED.startdate,
			enddate = EXCLUDED.enddate
	`

	for _, t := range tickets {
		row := toRow(t)
		_, err := r.q.Exec(ctx, query,
			row.ID, row.Type, row.Status, row.AccountName, row.Machine, row.Project,
			row.FirstName, row.LastName, row.Email, row.PublicKey,
			row.PocFirstName, row.PocLastName, row.PocEmail,
			row.SourceAccountID, row.SourceAllocation, row.GoldAmount,
			row.ExtraText, row.StartDate, row.EndDate, string(domain.LocalPending),
		)
		if err != nil {
			return ClassifyError(fmt.Errorf("refresh ticket %s: %w", t.ID, err))
		}
	}
	return nil
}

// FindByID retrieves one mirrored ticket.
func (r *TicketRepository) FindByID(ctx context.Context, id string) (*domain.LocalTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM safetickets WHERE id = $1`
	row := r.q.QueryRow(ctx, query, id)
	return scanTicket(row)
}

// FindCandidateCompanions returns pending Add to budget tickets for the
// given username, excluding the ticket being closed. Only still-pending
// rows are candidates.
func (r *TicketRepository) FindCandidateCompanions(ctx context.Context, username, excludeID string) ([]domain.LocalTicket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM safetickets
		WHERE type = $1
		  AND account_name = $2
		  AND id <> $3
		  AND local_status = $4
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query,
		string(domain.TypeAddToBudget), username, excludeID, string(domain.LocalPending))
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("query candidate companions for %q: %w", username, err))
	}

	results, err := pgx.CollectRows(rows, collectTicket)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("scan candidate companions: %w", err))
	}
	return results, nil
}

// ListPending returns all tickets not yet closed locally.
func (r *TicketRepository) ListPending(ctx context.Context) ([]domain.LocalTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM safetickets WHERE local_status = $1 ORDER BY id`

	rows, err := r.q.Query(ctx, query, string(domain.LocalPending))
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("query pending tickets: %w", err))
	}

	results, err := pgx.CollectRows(rows, collectTicket)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("scan pending tickets: %w", err))
	}
	return results, nil
}

// SetLocalStatus records closure progress for one ticket.
func (r *TicketRepository) SetLocalStatus(ctx context.Context, id string, status domain.LocalStatus) error {
	query := `UPDATE safetickets SET local_status = $1 WHERE id = $2`

	tag, err := r.q.Exec(ctx, query, string(status), id)
	if err != nil {
		return ClassifyError(fmt.Errorf("set local status of ticket %s: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.LocalTicket, error) {
	var m TicketRow
	err := row.Scan(
		&m.ID, &m.Type, &m.Status, &m.AccountName, &m.Machine, &m.Project,
		&m.FirstName, &m.LastName, &m.Email, &m.PublicKey,
		&m.PocFirstName, &m.PocLastName, &m.PocEmail,
		&m.SourceAccountID, &m.SourceAllocation, &m.GoldAmount,
		&m.ExtraText, &m.StartDate, &m.EndDate, &m.LocalStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, ClassifyError(fmt.Errorf("scan ticket: %w", err))
	}
	t := toLocalTicket(m)
	return &t, nil
}

func collectTicket(row pgx.CollectableRow) (domain.LocalTicket, error) {
	var m TicketRow
	err := row.Scan(
		&m.ID, &m.Type, &m.Status, &m.AccountName, &m.Machine, &m.Project,
		&m.FirstName, &m.LastName, &m.Email, &m.PublicKey,
		&m.PocFirstName, &m.PocLastName, &m.PocEmail,
		&m.SourceAccountID, &m.SourceAllocation, &m.GoldAmount,
		&m.ExtraText, &m.StartDate, &m.EndDate, &m.LocalStatus,
	)
	return toLocalTicket(m), err
}
