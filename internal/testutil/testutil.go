// Package testutil provides shared fixtures for service and handler tests:
// an in-memory tenant directory, an inline transaction manager, a pinned
// clock and event recorders.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Now is the instant every fixture clock returns
var Now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// NewTestUUID generates a deterministic UUID for testing.
// Uses the provided seed string to create a reproducible UUID.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// FixedClock returns a clock pinned to at
func FixedClock(at time.Time) shared.Clock {
	return func() time.Time { return at }
}

// Directory is an in-memory agency.Directory
type Directory struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*agency.Account
	agencies     map[uuid.UUID]*agency.Agency
	offerLetters map[uuid.UUID]*agency.OfferLetter
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		accounts:     map[uuid.UUID]*agency.Account{},
		agencies:     map[uuid.UUID]*agency.Agency{},
		offerLetters: map[uuid.UUID]*agency.OfferLetter{},
	}
}

// FindAccount implements agency.Directory
func (d *Directory) FindAccount(_ context.Context, id uuid.UUID) (*agency.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if a, ok := d.accounts[id]; ok {
		return a, nil
	}
	return nil, shared.ErrNotFound
}

// FindAgency implements agency.Directory
func (d *Directory) FindAgency(_ context.Context, id uuid.UUID) (*agency.Agency, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if a, ok := d.agencies[id]; ok {
		return a, nil
	}
	return nil, shared.ErrNotFound
}

// FindOfferLetter implements agency.Directory
func (d *Directory) FindOfferLetter(_ context.Context, id uuid.UUID) (*agency.OfferLetter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if o, ok := d.offerLetters[id]; ok {
		return o, nil
	}
	return nil, shared.ErrNotFound
}

// CreateAgency stores a
func (d *Directory) CreateAgency(_ context.Context, a *agency.Agency) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.agencies[a.ID]; ok {
		return shared.ErrAlreadyExists
	}
	d.agencies[a.ID] = a
	return nil
}

// CountAgenciesForAccount counts the agencies of an account
func (d *Directory) CountAgenciesForAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var n int64
	for _, a := range d.agencies {
		if a.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

// AddAccount registers an account
func (d *Directory) AddAccount(id uuid.UUID, active bool) *agency.Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := &agency.Account{ID: id, Name: "Account " + id.String()[:8], IsActive: active}
	d.accounts[id] = a
	return a
}

// AddAgency registers an active agency under accountID
func (d *Directory) AddAgency(t *testing.T, accountID uuid.UUID, parent *uuid.UUID) *agency.Agency {
	t.Helper()
	a, err := agency.NewAgency(accountID, parent, "Agency "+uuid.NewString()[:8], nil, Now)
	require.NoError(t, err)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agencies[a.ID] = a
	return a
}

// AddOfferLetter registers an active offer letter for a new student
func (d *Directory) AddOfferLetter(accountID, agencyID uuid.UUID) *agency.OfferLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	o := &agency.OfferLetter{
		ID:        uuid.New(),
		AccountID: accountID,
		AgencyID:  agencyID,
		StudentID: uuid.New(),
		IsActive:  true,
	}
	d.offerLetters[o.ID] = o
	return o
}

var _ agency.AgencyRepository = (*Directory)(nil)

// Tenant is an active account with one agency and one offer letter
type Tenant struct {
	Directory *Directory
	Guard     *agency.ScopeGuard
	AccountID uuid.UUID
	Agency    *agency.Agency
	Offer     *agency.OfferLetter
	ActorID   uuid.UUID
}

// NewTenant seeds a fresh directory with one tenant
func NewTenant(t *testing.T) *Tenant {
	t.Helper()
	dir := NewDirectory()
	accountID := uuid.New()
	dir.AddAccount(accountID, true)
	ag := dir.AddAgency(t, accountID, nil)
	return &Tenant{
		Directory: dir,
		Guard:     agency.NewScopeGuard(dir),
		AccountID: accountID,
		Agency:    ag,
		Offer:     dir.AddOfferLetter(accountID, ag.ID),
		ActorID:   uuid.New(),
	}
}

// Caller returns an account-wide caller acting as the tenant's actor
func (tn *Tenant) Caller() agency.Caller {
	return agency.Caller{Scope: agency.NewScope(tn.AccountID, nil), ActorID: tn.ActorID}
}

// AgencyCaller returns a caller bound to agencyID
func (tn *Tenant) AgencyCaller(agencyID uuid.UUID) agency.Caller {
	return agency.Caller{Scope: agency.NewScope(tn.AccountID, &agencyID), ActorID: tn.ActorID}
}

// InlineTransactionManager runs fn directly and counts invocations
type InlineTransactionManager struct {
	mu    sync.Mutex
	calls int
}

// WithinTransaction implements shared.TransactionManager
func (m *InlineTransactionManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx)
}

// Calls returns how many units of work were started
func (m *InlineTransactionManager) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ shared.TransactionManager = (*InlineTransactionManager)(nil)
