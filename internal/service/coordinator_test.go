package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tier2-ops/safesync/internal/domain"
	"github.com/tier2-ops/safesync/internal/safe"
	"github.com/tier2-ops/safesync/internal/service"
)

type CoordinatorTestSuite struct {
	suite.Suite
	tickets     *service.MockTicketStore
	directory   *service.MockDirectoryStore
	gateway     *service.MockGateway
	transactor  *service.MockTransactor
	provisioner *service.MockProvisioner
	coordinator *service.Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.tickets = service.NewMockTicketStore()
	s.directory = service.NewMockDirectoryStore()
	s.gateway = service.NewMockGateway()
	s.provisioner = service.NewMockProvisioner()

	stores := service.Stores{Tickets: s.tickets, Directory: s.directory}
	s.transactor = &service.MockTransactor{Stores: stores}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.coordinator = service.NewCoordinator(s.gateway, stores, s.transactor, s.provisioner, logger)
}

func newUserTicket(id, username string) domain.Ticket {
	return domain.Ticket{
		ID:     id,
		Type:   domain.TypeNewUser,
		Status: domain.RemotePending,
		Account: domain.Account{
			Name:   username,
			Person: domain.Person{Email: username + "@example.ac.uk"},
		},
		Approver: domain.Person{Email: "pat@example.ac.uk"},
	}
}

func addToBudgetTicket(id, username string) domain.Ticket {
	return domain.Ticket{
		ID:           id,
		Type:         domain.TypeAddToBudget,
		Status:       domain.RemotePending,
		Account:      domain.Account{Name: username},
		ProjectGroup: domain.ProjectGroup{Code: "t01-astro"},
	}
}

func moveGoldTicket(id string) domain.Ticket {
	return domain.Ticket{
		ID:     id,
		Type:   domain.TypeMoveGold,
		Status: domain.RemotePending,
		GoldTransfer: domain.GoldTransfer{
			SourceAccountID:  "A1",
			SourceAllocation: "alloc1",
			Amount:           500,
		},
		ProjectGroup: domain.ProjectGroup{Code: "t01-astro"},
	}
}

// ============================================================================
// DISPATCH
// ============================================================================

func (s *CoordinatorTestSuite) Test_Close_UnrecognizedType_NoSideEffects() {
	t := s.T()
	s.tickets.Seed(domain.Ticket{ID: "9001", Type: "Decommission", Status: domain.RemotePending})

	err := s.coordinator.Close(context.Background(), "9001")

	uerr, ok := domain.IsUnhandledTicket(err)
	require.True(t, ok, "want UnhandledTicketError, got %v", err)
	assert.Equal(t, "9001", uerr.TicketID)
	assert.Zero(t, s.gateway.PostCount(), "gateway must never be called")
	assert.Equal(t, domain.LocalPending, s.tickets.Status("9001"))
	assert.Zero(t, s.transactor.CommitCount)
}

func (s *CoordinatorTestSuite) Test_Close_UnrecognizedDirective_NoSideEffects() {
	t := s.T()
	s.tickets.Seed(domain.Ticket{
		ID:        "9002",
		Type:      domain.TypeUpdateAccount,
		Status:    domain.RemotePending,
		Account:   domain.Account{Name: "alice"},
		ExtraText: "please do something unusual",
	})

	err := s.coordinator.Close(context.Background(), "9002")

	uerr, ok := domain.IsUnhandledTicket(err)
	require.True(t, ok)
	assert.Equal(t, "please do something unusual", uerr.Directive)
	assert.Zero(t, s.gateway.PostCount())
	assert.Equal(t, domain.LocalPending, s.tickets.Status("9002"))
}

func (s *CoordinatorTestSuite) Test_Close_UnknownTicketID() {
	err := s.coordinator.Close(context.Background(), "nope")
	assert.ErrorIs(s.T(), err, domain.ErrTicketNotFound)
}

// ============================================================================
// ORDERING INVARIANT
// ============================================================================

// A gateway answer without the success marker must leave the local row
// untouched.
func (s *CoordinatorTestSuite) Test_Close_RemoteNotConfirmed_LocalUnchanged() {
	t := s.T()
	s.tickets.Seed(moveGoldTicket("1001"))
	s.gateway.CloseTicketFn = func(ctx context.Context, p domain.CloseParams) (*domain.CloseResult, error) {
		return nil, &safe.RemoteRejectedError{TicketID: p.TicketID}
	}

	err := s.coordinator.Close(context.Background(), "1001")

	require.Error(t, err)
	_, ok := safe.IsRemoteRejected(err)
	assert.True(t, ok, "rejection must stay distinguishable, got %v", err)
	assert.Equal(t, domain.LocalPending, s.tickets.Status("1001"))
	assert.Zero(t, s.transactor.CommitCount, "no local commit without remote confirmation")
}

func (s *CoordinatorTestSuite) Test_Close_LocalCommitFails_ReportedWithContext() {
	t := s.T()
	s.tickets.Seed(moveGoldTicket("1001"))
	s.transactor.FailWith = errors.New("connection reset")

	err := s.coordinator.Close(context.Background(), "1001")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1001")
	assert.Contains(t, err.Error(), "local commit failed")
	// The divergence is recorded so a rerun operator can see it.
	assert.Equal(t, domain.LocalFailed, s.tickets.Status("1001"))
}

// ============================================================================
// MOVE GOLD END TO END
// ============================================================================

func (s *CoordinatorTestSuite) Test_Close_MoveGold_EndToEnd() {
	t := s.T()
	s.tickets.Seed(moveGoldTicket("1001"))

	err := s.coordinator.Close(context.Background(), "1001")

	require.NoError(t, err)
	require.Equal(t, 1, s.gateway.PostCount())
	posted := s.gateway.Posted[0]
	assert.Equal(t, "1001", posted.TicketID)
	assert.Equal(t, domain.ModeCompleted, posted.Mode)
	assert.Empty(t, posted.NewUsername)

	assert.Equal(t, domain.LocalDone, s.tickets.Status("1001"))
	require.Len(t, s.provisioner.Transfers, 1)
	assert.Equal(t, int64(500), s.provisioner.Transfers[0].Amount)
	assert.True(t, s.provisioner.BalancePushed, "balances must be pushed back after closure")
	assert.Zero(t, s.tickets.CompanionLookups, "only New User triggers companion matching")
}

func (s *CoordinatorTestSuite) Test_Close_MoveGold_TransferFailureAbortsBeforeRemote() {
	t := s.T()
	s.tickets.Seed(moveGoldTicket("1001"))
	s.provisioner.TransferGoldFn = func(ctx context.Context, tr domain.GoldTransfer, project string) error {
		return errors.New("transfergold: insufficient funds")
	}

	err := s.coordinator.Close(context.Background(), "1001")

	require.Error(t, err)
	assert.Zero(t, s.gateway.PostCount())
	assert.Equal(t, domain.LocalPending, s.tickets.Status("1001"))
}

// ============================================================================
// COMPANION MATCHING
// ============================================================================

func (s *CoordinatorTestSuite) Test_Close_NewUser_NoCompanion_StillCloses() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))

	err := s.coordinator.Close(context.Background(), "2001")

	require.NoError(t, err)
	assert.Equal(t, 1, s.gateway.PostCount())
	assert.Equal(t, domain.LocalDone, s.tickets.Status("2001"))
	assert.Equal(t, "alice@example.ac.uk", s.directory.Accounts["alice"])
}

func (s *CoordinatorTestSuite) Test_Close_NewUser_OneCompanion_BothClose() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))
	s.tickets.Seed(addToBudgetTicket("2002", "alice"))

	err := s.coordinator.Close(context.Background(), "2001")

	require.NoError(t, err)
	require.Equal(t, 2, s.gateway.PostCount())
	assert.Equal(t, "2001", s.gateway.Posted[0].TicketID)
	assert.Equal(t, "alice", s.gateway.Posted[0].NewUsername)
	assert.Equal(t, "2002", s.gateway.Posted[1].TicketID)

	assert.Equal(t, domain.LocalDone, s.tickets.Status("2001"))
	assert.Equal(t, domain.LocalDone, s.tickets.Status("2002"))
	assert.Contains(t, s.directory.ProjectUsers, "alice:t01-astro")
	// One operation, one transaction.
	assert.Equal(t, 1, s.transactor.CommitCount)
}

func (s *CoordinatorTestSuite) Test_Close_NewUser_TwoCompanions_Ambiguous() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))
	s.tickets.Seed(addToBudgetTicket("2002", "alice"))
	s.tickets.Seed(addToBudgetTicket("2003", "alice"))

	err := s.coordinator.Close(context.Background(), "2001")

	aerr, ok := domain.IsAmbiguousCompanion(err)
	require.True(t, ok, "want AmbiguousCompanionError, got %v", err)
	assert.ElementsMatch(t, []string{"2002", "2003"}, aerr.CandidateIDs)

	// Nothing happened anywhere: ambiguity is detected before any
	// remote write.
	assert.Zero(t, s.gateway.PostCount())
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2001"))
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2002"))
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2003"))
}

func (s *CoordinatorTestSuite) Test_Close_NewUser_ReuseExistingUsername() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))
	s.directory.Accounts["aride"] = "alice@example.ac.uk"

	err := s.coordinator.Close(context.Background(), "2001")

	require.NoError(t, err)
	assert.Equal(t, "aride", s.gateway.Posted[0].NewUsername)
	assert.Empty(t, s.provisioner.Allocated, "no allocation when the account exists")
}

// ============================================================================
// DEBUG MODE
// ============================================================================

func (s *CoordinatorTestSuite) Test_Close_Debug_NoPostsNoCommits() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))
	s.tickets.Seed(addToBudgetTicket("2002", "alice"))
	s.gateway.CloseTicketFn = func(ctx context.Context, p domain.CloseParams) (*domain.CloseResult, error) {
		return &domain.CloseResult{DryRun: true}, nil
	}

	err := s.coordinator.Close(context.Background(), "2001")

	require.NoError(t, err, "a dry run is a success, not an error")
	assert.Zero(t, s.transactor.CommitCount)
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2001"))
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2002"))
	assert.Empty(t, s.directory.ProjectUsers)
	assert.Empty(t, s.directory.Accounts)
}

func (s *CoordinatorTestSuite) Test_Close_Debug_CompanionFailureNamesBothTickets() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))
	s.tickets.Seed(addToBudgetTicket("2002", "alice"))
	var calls int
	s.gateway.CloseTicketFn = func(ctx context.Context, p domain.CloseParams) (*domain.CloseResult, error) {
		calls++
		if calls == 1 {
			return &domain.CloseResult{DryRun: true}, nil
		}
		return nil, errors.New("connection refused")
	}

	err := s.coordinator.Close(context.Background(), "2001")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2001")
	assert.Contains(t, err.Error(), "2002")
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2001"))
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2002"))
}

// ============================================================================
// NEW BUDGET / UPDATE ACCOUNT
// ============================================================================

func (s *CoordinatorTestSuite) Test_Close_NewBudget() {
	t := s.T()
	s.tickets.Seed(domain.Ticket{
		ID:           "3001",
		Type:         domain.TypeNewBudget,
		Status:       domain.RemotePending,
		ProjectGroup: domain.ProjectGroup{Code: "t01-astro"},
		Approver:     domain.Person{Email: "pat@example.ac.uk"},
	})

	err := s.coordinator.Close(context.Background(), "3001")

	require.NoError(t, err)
	assert.Equal(t, "t01-astro", s.gateway.Posted[0].NewUsername)
	assert.Contains(t, s.directory.Budgets, "t01-astro")
	assert.Equal(t, domain.LocalDone, s.tickets.Status("3001"))
}

func (s *CoordinatorTestSuite) Test_Close_UpdateAccount_PublicKeyAdded() {
	t := s.T()
	s.tickets.Seed(domain.Ticket{
		ID:     "4001",
		Type:   domain.TypeUpdateAccount,
		Status: domain.RemotePending,
		Account: domain.Account{
			Name:   "alice",
			Person: domain.Person{NormalisedPublicKey: "ssh-ed25519 AAAA"},
		},
		ExtraText: "Public key added by user",
	})

	err := s.coordinator.Close(context.Background(), "4001")

	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAA", s.directory.PublicKeys["alice"])
	assert.Equal(t, domain.LocalDone, s.tickets.Status("4001"))
}

// ============================================================================
// IDEMPOTENT RE-CLOSE
// ============================================================================

func (s *CoordinatorTestSuite) Test_Close_AlreadyDone_NoOp() {
	t := s.T()
	s.tickets.Seed(moveGoldTicket("1001"))
	require.NoError(t, s.tickets.SetLocalStatus(context.Background(), "1001", domain.LocalDone))

	err := s.coordinator.Close(context.Background(), "1001")

	require.NoError(t, err)
	assert.Zero(t, s.gateway.PostCount())
	assert.Empty(t, s.provisioner.Transfers)
}

// ============================================================================
// REJECTION
// ============================================================================

func (s *CoordinatorTestSuite) Test_Reject_ErrorReason() {
	t := s.T()
	s.tickets.Seed(moveGoldTicket("1001"))

	err := s.coordinator.Reject(context.Background(), "1001", "error")

	require.NoError(t, err)
	require.Equal(t, 1, s.gateway.PostCount())
	assert.Equal(t, domain.ModeError, s.gateway.Posted[0].Mode)
	assert.Equal(t, domain.LocalDone, s.tickets.Status("1001"))
	assert.Empty(t, s.provisioner.Transfers, "rejection runs no actions")
}

func (s *CoordinatorTestSuite) Test_Reject_OtherReason() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))
	s.tickets.Seed(addToBudgetTicket("2002", "alice"))

	err := s.coordinator.Reject(context.Background(), "2001", "other")

	require.NoError(t, err)
	assert.Equal(t, domain.ModeRefused, s.gateway.Posted[0].Mode)
	assert.Zero(t, s.tickets.CompanionLookups, "rejection never matches companions")
	assert.Equal(t, domain.LocalPending, s.tickets.Status("2002"))
}

func (s *CoordinatorTestSuite) Test_Reject_UnknownReason() {
	s.tickets.Seed(moveGoldTicket("1001"))

	err := s.coordinator.Reject(context.Background(), "1001", "whatever")

	require.Error(s.T(), err)
	assert.Zero(s.T(), s.gateway.PostCount())
}

// ============================================================================
// BATCH
// ============================================================================

func (s *CoordinatorTestSuite) Test_CloseAll_ContinuesPastFailures() {
	t := s.T()
	s.tickets.Seed(domain.Ticket{ID: "9001", Type: "Decommission", Status: domain.RemotePending})
	s.tickets.Seed(moveGoldTicket("1001"))
	s.tickets.Seed(newUserTicket("2001", "alice"))

	err := s.coordinator.CloseAll(context.Background())

	require.Error(t, err, "the unrecognized type must be reported")
	_, ok := domain.IsUnhandledTicket(err)
	assert.True(t, ok)
	// The failure did not abort the unrelated tickets.
	assert.Equal(t, domain.LocalDone, s.tickets.Status("1001"))
	assert.Equal(t, domain.LocalDone, s.tickets.Status("2001"))
	assert.Equal(t, domain.LocalPending, s.tickets.Status("9001"))
}

func (s *CoordinatorTestSuite) Test_CloseAll_CompanionNotClosedTwice() {
	t := s.T()
	s.tickets.Seed(newUserTicket("2001", "alice"))
	s.tickets.Seed(addToBudgetTicket("2002", "alice"))

	err := s.coordinator.CloseAll(context.Background())

	require.NoError(t, err)
	// 2002 was completed as 2001's companion; the batch pass must not
	// post a second close for it.
	assert.Equal(t, 2, s.gateway.PostCount())
}
