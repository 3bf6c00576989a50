package service

import (
	"context"
	"sort"
	"sync"

	"github.com/tier2-ops/safesync/internal/domain"
)

// In-memory fakes for the service ports. Default behavior mirrors the
// real stores closely enough for coordinator tests; individual calls can
// be overridden per test through the Fn fields.

// MockTicketStore
type MockTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]*domain.LocalTicket

	UpsertTicketsFn           func(ctx context.Context, tickets []domain.Ticket) error
	FindByIDFn                func(ctx context.Context, id string) (*domain.LocalTicket, error)
	FindCandidateCompanionsFn func(ctx context.Context, username, excludeID string) ([]domain.LocalTicket, error)
	ListPendingFn             func(ctx context.Context) ([]domain.LocalTicket, error)
	SetLocalStatusFn          func(ctx context.Context, id string, status domain.LocalStatus) error

	CompanionLookups int
}

func NewMockTicketStore() *MockTicketStore {
	return &MockTicketStore{tickets: make(map[string]*domain.LocalTicket)}
}

// Seed loads a ticket into the store as locally pending.
func (m *MockTicketStore) Seed(t domain.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = &domain.LocalTicket{Ticket: t, LocalStatus: domain.LocalPending}
}

// Status returns the current local status of a seeded ticket.
func (m *MockTicketStore) Status(id string) domain.LocalStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tickets[id]; ok {
		return t.LocalStatus
	}
	return ""
}

func (m *MockTicketStore) UpsertTickets(ctx context.Context, tickets []domain.Ticket) error {
	if m.UpsertTicketsFn != nil {
		return m.UpsertTicketsFn(ctx, tickets)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickets {
		if existing, ok := m.tickets[t.ID]; ok {
			existing.Ticket = t
			continue
		}
		m.tickets[t.ID] = &domain.LocalTicket{Ticket: t, LocalStatus: domain.LocalPending}
	}
	return nil
}

func (m *MockTicketStore) FindByID(ctx context.Context, id string) (*domain.LocalTicket, error) {
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tickets[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, domain.ErrTicketNotFound
}

func (m *MockTicketStore) FindCandidateCompanions(ctx context.Context, username, excludeID string) ([]domain.LocalTicket, error) {
	m.mu.Lock()
	m.CompanionLookups++
	m.mu.Unlock()
	if m.FindCandidateCompanionsFn != nil {
		return m.FindCandidateCompanionsFn(ctx, username, excludeID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.LocalTicket
	for _, t := range m.tickets {
		if t.Type == domain.TypeAddToBudget &&
			t.Account.Name == username &&
			t.ID != excludeID &&
			t.LocalStatus == domain.LocalPending {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockTicketStore) ListPending(ctx context.Context) ([]domain.LocalTicket, error) {
	if m.ListPendingFn != nil {
		return m.ListPendingFn(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.LocalTicket
	for _, t := range m.tickets {
		if t.LocalStatus == domain.LocalPending {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockTicketStore) SetLocalStatus(ctx context.Context, id string, status domain.LocalStatus) error {
	if m.SetLocalStatusFn != nil {
		return m.SetLocalStatusFn(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	t.LocalStatus = status
	return nil
}

// MockDirectoryStore
type MockDirectoryStore struct {
	mu sync.Mutex

	Budgets      []string
	ProjectUsers []string
	Accounts     map[string]string // username -> email
	PublicKeys   map[string]string // username -> key

	FindUsernameByEmailFn func(ctx context.Context, email string) (string, error)
}

func NewMockDirectoryStore() *MockDirectoryStore {
	return &MockDirectoryStore{
		Accounts:   make(map[string]string),
		PublicKeys: make(map[string]string),
	}
}

func (m *MockDirectoryStore) CreateBudget(ctx context.Context, code, institute, pocEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Budgets = append(m.Budgets, code)
	return nil
}

func (m *MockDirectoryStore) AddProjectUser(ctx context.Context, username, budgetCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProjectUsers = append(m.ProjectUsers, username+":"+budgetCode)
	return nil
}

func (m *MockDirectoryStore) UpsertAccount(ctx context.Context, username, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts[username] = email
	return nil
}

func (m *MockDirectoryStore) SetPublicKey(ctx context.Context, username, publicKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublicKeys[username] = publicKey
	return nil
}

func (m *MockDirectoryStore) FindUsernameByEmail(ctx context.Context, email string) (string, error) {
	if m.FindUsernameByEmailFn != nil {
		return m.FindUsernameByEmailFn(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for username, e := range m.Accounts {
		if e == email {
			return username, nil
		}
	}
	return "", nil
}

// MockGateway
type MockGateway struct {
	mu sync.Mutex

	Posted []domain.CloseParams

	FetchOpenTicketsFn func(ctx context.Context) ([]domain.Ticket, error)
	CloseTicketFn      func(ctx context.Context, params domain.CloseParams) (*domain.CloseResult, error)
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) FetchOpenTickets(ctx context.Context) ([]domain.Ticket, error) {
	if m.FetchOpenTicketsFn != nil {
		return m.FetchOpenTicketsFn(ctx)
	}
	return nil, nil
}

func (m *MockGateway) CloseTicket(ctx context.Context, params domain.CloseParams) (*domain.CloseResult, error) {
	if m.CloseTicketFn != nil {
		res, err := m.CloseTicketFn(ctx, params)
		if err == nil {
			m.mu.Lock()
			m.Posted = append(m.Posted, params)
			m.mu.Unlock()
		}
		return res, err
	}
	m.mu.Lock()
	m.Posted = append(m.Posted, params)
	m.mu.Unlock()
	return &domain.CloseResult{}, nil
}

// PostCount returns how many close/reject POSTs reached the gateway.
func (m *MockGateway) PostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Posted)
}

// MockTransactor applies the closure against the given stores and counts
// commits. FailWith simulates a commit failure after the closure ran.
type MockTransactor struct {
	Stores      Stores
	FailWith    error
	CommitCount int
}

func (m *MockTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	if err := fn(ctx, m.Stores); err != nil {
		return err
	}
	if m.FailWith != nil {
		return m.FailWith
	}
	m.CommitCount++
	return nil
}

// MockProvisioner
type MockProvisioner struct {
	mu sync.Mutex

	Allocated     []string
	Transfers     []domain.GoldTransfer
	BalancePushed bool

	AllocateUsernameFn func(ctx context.Context, t domain.Ticket) (string, error)
	TransferGoldFn     func(ctx context.Context, tr domain.GoldTransfer, project string) error
}

func NewMockProvisioner() *MockProvisioner {
	return &MockProvisioner{}
}

func (m *MockProvisioner) AllocateUsername(ctx context.Context, t domain.Ticket) (string, error) {
	if m.AllocateUsernameFn != nil {
		return m.AllocateUsernameFn(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	username := t.Account.Name
	if username == "" {
		username = "user1"
	}
	m.Allocated = append(m.Allocated, username)
	return username, nil
}

func (m *MockProvisioner) TransferGold(ctx context.Context, tr domain.GoldTransfer, project string) error {
	if m.TransferGoldFn != nil {
		return m.TransferGoldFn(ctx, tr, project)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transfers = append(m.Transfers, tr)
	return nil
}

func (m *MockProvisioner) PushGoldBalances(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BalancePushed = true
	return nil
}
