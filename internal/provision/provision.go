// Package provision runs the site-local commands behind account and
// allocation actions. The commands themselves are external collaborators;
// this package only owns their invocation contract.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tier2-ops/safesync/internal/config"
	"github.com/tier2-ops/safesync/internal/domain"
)

// CommandRunner shells out to the configured site commands. In debug
// mode nothing is executed; the intended command line is logged instead,
// since a gold transfer is not an action to dry-run by performing it.
type CommandRunner struct {
	cfg    config.ProvisionConfig
	debug  bool
	logger *slog.Logger
}

func NewCommandRunner(cfg config.ProvisionConfig, debug bool, logger *slog.Logger) *CommandRunner {
	return &CommandRunner{cfg: cfg, debug: debug, logger: logger}
}

// AllocateUsername runs the allocation command for a new account holder
// and returns the username it prints.
func (r *CommandRunner) AllocateUsername(ctx context.Context, t domain.Ticket) (string, error) {
	args := []string{t.Account.Person.Email, t.Account.Person.FirstName, t.Account.Person.LastName}
	if r.debug {
		r.logger.Info("debug: allocate command suppressed",
			"cmd", r.cfg.AllocateUserCmd, "args", strings.Join(args, " "))
		return "dry-run-user", nil
	}

	out, err := exec.CommandContext(ctx, r.cfg.AllocateUserCmd, args...).Output()
	if err != nil {
		return "", fmt.Errorf("allocate username for %s: %w", t.Account.Person.Email, err)
	}

	username := strings.TrimSpace(string(out))
	if username == "" {
		return "", fmt.Errorf("allocate command returned no username for %s", t.Account.Person.Email)
	}
	return username, nil
}

// TransferGold executes the local transfer command for a Move gold
// ticket. Not idempotent; the caller must run it at most once per ticket.
func (r *CommandRunner) TransferGold(ctx context.Context, tr domain.GoldTransfer, project string) error {
	args := []string{tr.SourceAccountID, tr.SourceAllocation, strconv.FormatInt(tr.Amount, 10), project}
	if r.debug {
		r.logger.Info("debug: transfer command suppressed",
			"cmd", r.cfg.TransferGoldCmd, "args", strings.Join(args, " "))
		return nil
	}

	if out, err := exec.CommandContext(ctx, r.cfg.TransferGoldCmd, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("transfer gold from %s/%s: %w: %s",
			tr.SourceAccountID, tr.SourceAllocation, err, out)
	}
	return nil
}

// PushGoldBalances pushes the updated local balances back to SAFE after
// a transfer has been carried out.
func (r *CommandRunner) PushGoldBalances(ctx context.Context) error {
	if r.debug {
		r.logger.Info("debug: push balances command suppressed", "cmd", r.cfg.PushGoldCmd)
		return nil
	}

	if out, err := exec.CommandContext(ctx, r.cfg.PushGoldCmd).CombinedOutput(); err != nil {
		return fmt.Errorf("push gold balances: %w: %s", err, out)
	}
	return nil
}
