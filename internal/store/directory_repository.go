package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DirectoryRepository mutates the locally-tracked entities the handlers
// maintain: budgets, project-user pairings and account records.
type DirectoryRepository struct {
	q Executor
}

func NewDirectoryRepository(q Executor) *DirectoryRepository {
	return &DirectoryRepository{q: q}
}

// CreateBudget records a new budget with its institute, derived from the
// project naming scheme. Creating the same budget twice is a no-op.
func (r *DirectoryRepository) CreateBudget(ctx context.Context, code, institute, pocEmail string) error {
	query := `
		INSERT INTO budgets (code, institute, poc_email)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING
	`
	_, err := r.q.Exec(ctx, query, code, institute, pocEmail)
	if err != nil {
		return ClassifyError(fmt.Errorf("create budget %s: %w", code, err))
	}
	return nil
}

// AddProjectUser pairs a username with an existing budget.
func (r *DirectoryRepository) AddProjectUser(ctx context.Context, username, budgetCode string) error {
	query := `
		INSERT INTO project_users (username, budget_code)
		VALUES ($1, $2)
		ON CONFLICT (username, budget_code) DO NOTHING
	`
	_, err := r.q.Exec(ctx, query, username, budgetCode)
	if err != nil {
		return ClassifyError(fmt.Errorf("add project user %s to %s: %w", username, budgetCode, err))
	}
	return nil
}

// UpsertAccount records a provisioned account.
func (r *DirectoryRepository) UpsertAccount(ctx context.Context, username, email string) error {
	query := `
		INSERT INTO accounts (username, email)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET email = EXCLUDED.email
	`
	_, err := r.q.Exec(ctx, query, username, email)
	if err != nil {
		return ClassifyError(fmt.Errorf("upsert account %s: %w", username, err))
	}
	return nil
}

// SetPublicKey stores the normalised public key for an account.
func (r *DirectoryRepository) SetPublicKey(ctx context.Context, username, publicKey string) error {
	query := `UPDATE accounts SET public_key = $1 WHERE username = $2`

	tag, err := r.q.Exec(ctx, query, publicKey, username)
	if err != nil {
		return ClassifyError(fmt.Errorf("set public key for %s: %w", username, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", username)
	}
	return nil
}

// FindUsernameByEmail locates an existing account holder. Returns an
// empty string when no account matches.
func (r *DirectoryRepository) FindUsernameByEmail(ctx context.Context, email string) (string, error) {
	query := `SELECT username FROM accounts WHERE email = $1`

	var username string
	err := r.q.QueryRow(ctx, query, email).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", ClassifyError(fmt.Errorf("find username by email: %w", err))
	}
	return username, nil
}
