package agency

import (
	"context"
	"errors"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// maxAgencyDepth bounds parent-chain walks
const maxAgencyDepth = 32

// Scope is the tenant context an operation is invoked under
type Scope struct {
	AccountID uuid.UUID
	AgencyID  *uuid.UUID
}

// NewScope builds a scope from an account id and an optional agency id
func NewScope(accountID uuid.UUID, agencyID *uuid.UUID) Scope {
	if agencyID != nil && *agencyID == uuid.Nil {
		agencyID = nil
	}
	return Scope{AccountID: accountID, AgencyID: agencyID}
}

// Validate checks the scope carries an account
func (s Scope) Validate() error {
	if s.AccountID == uuid.Nil {
		return shared.NewValidationError("accountId", "tenant context is required")
	}
	return nil
}

// Caller is the scope an operation runs under together with the acting user.
// The actor id is supplied by the calling layer and trusted as-is.
type Caller struct {
	Scope
	ActorID    uuid.UUID
	Privileged bool
}

// Validate checks the caller carries an account and an actor
func (c Caller) Validate() error {
	if err := c.Scope.Validate(); err != nil {
		return err
	}
	if c.ActorID == uuid.Nil {
		return shared.NewValidationError("actorId", "is required")
	}
	return nil
}

// SystemActorID attributes changes made by scheduled billing jobs
var SystemActorID = uuid.MustParse("00000000-0000-7000-8000-00000000b111")

// SystemCaller is the account-wide, privileged caller scheduled jobs run as
func SystemCaller(accountID uuid.UUID) Caller {
	return Caller{Scope: Scope{AccountID: accountID}, ActorID: SystemActorID, Privileged: true}
}

// Scoped is any loaded entity that carries its own account and agency
type Scoped interface {
	GetAccountID() uuid.UUID
	GetAgencyID() uuid.UUID
}

// ScopeGuard checks that every reference a write touches belongs to the
// caller's account and agency chain. Write paths call it before mutating state.
type ScopeGuard struct {
	dir Directory
}

// NewScopeGuard creates a scope guard backed by dir
func NewScopeGuard(dir Directory) *ScopeGuard {
	return &ScopeGuard{dir: dir}
}

// CheckAccount verifies the scope's account exists and is active
func (g *ScopeGuard) CheckAccount(ctx context.Context, scope Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	account, err := g.dir.FindAccount(ctx, scope.AccountID)
	if err != nil {
		return resolveErr(err, "account", scope.AccountID, "account does not exist")
	}
	if !account.IsActive {
		return shared.NewScopeViolation("account", scope.AccountID.String(), "account is not active")
	}
	return nil
}

// CheckAgency verifies agencyID belongs to the scope's account and, when the
// scope is agency-bound, to that agency's chain. It returns the resolved agency.
func (g *ScopeGuard) CheckAgency(ctx context.Context, scope Scope, agencyID uuid.UUID) (*Agency, error) {
	if agencyID == uuid.Nil {
		return nil, shared.NewValidationError("agencyId", "is required")
	}
	a, err := g.dir.FindAgency(ctx, agencyID)
	if err != nil {
		return nil, resolveErr(err, "agency", agencyID, "agency does not exist")
	}
	if a.AccountID != scope.AccountID {
		return nil, shared.NewScopeViolation("agency", agencyID.String(), "agency belongs to a different account")
	}
	if !a.IsActive {
		return nil, shared.NewScopeViolation("agency", agencyID.String(), "agency is not active")
	}
	if scope.AgencyID != nil && *scope.AgencyID != agencyID {
		within, err := g.isDescendant(ctx, a, *scope.AgencyID)
		if err != nil {
			return nil, err
		}
		if !within {
			return nil, shared.NewScopeViolation("agency", agencyID.String(), "agency is outside the caller's agency chain")
		}
	}
	return a, nil
}

// CheckAgencyParent verifies a new or changed agency's parent lives in the
// same account and does not close a cycle.
func (g *ScopeGuard) CheckAgencyParent(ctx context.Context, a *Agency) error {
	if a.ParentAgencyID == nil {
		return nil
	}
	if *a.ParentAgencyID == a.ID {
		return shared.NewScopeViolation("agency", a.ID.String(), "agency cannot be its own parent")
	}
	parent, err := g.dir.FindAgency(ctx, *a.ParentAgencyID)
	if err != nil {
		return resolveErr(err, "agency", *a.ParentAgencyID, "parent agency does not exist")
	}
	if parent.AccountID != a.AccountID {
		return shared.NewScopeViolation("agency", parent.ID.String(), "parent agency belongs to a different account")
	}
	cyclic, err := g.isDescendant(ctx, parent, a.ID)
	if err != nil {
		return err
	}
	if cyclic {
		return shared.NewScopeViolation("agency", a.ID.String(), "parent agency chain contains a cycle")
	}
	return nil
}

// CheckOfferLetter verifies the offer letter belongs to the account and agency
func (g *ScopeGuard) CheckOfferLetter(ctx context.Context, scope Scope, agencyID, offerLetterID uuid.UUID) (*OfferLetter, error) {
	if offerLetterID == uuid.Nil {
		return nil, shared.NewValidationError("offerLetterId", "is required")
	}
	ol, err := g.dir.FindOfferLetter(ctx, offerLetterID)
	if err != nil {
		return nil, resolveErr(err, "offer letter", offerLetterID, "offer letter does not exist")
	}
	if ol.AccountID != scope.AccountID {
		return nil, shared.NewScopeViolation("offer letter", offerLetterID.String(), "offer letter belongs to a different account")
	}
	if ol.AgencyID != agencyID {
		return nil, shared.NewScopeViolation("offer letter", offerLetterID.String(), "offer letter belongs to a different agency")
	}
	return ol, nil
}

// CheckOwnership verifies a loaded entity belongs to the scope
func (g *ScopeGuard) CheckOwnership(ctx context.Context, scope Scope, entity string, id uuid.UUID, ref Scoped) error {
	if ref.GetAccountID() != scope.AccountID {
		return shared.NewScopeViolation(entity, id.String(), "record belongs to a different account")
	}
	if scope.AgencyID == nil || *scope.AgencyID == ref.GetAgencyID() {
		return nil
	}
	a, err := g.dir.FindAgency(ctx, ref.GetAgencyID())
	if err != nil {
		return resolveErr(err, "agency", ref.GetAgencyID(), "owning agency does not exist")
	}
	within, err := g.isDescendant(ctx, a, *scope.AgencyID)
	if err != nil {
		return err
	}
	if !within {
		return shared.NewScopeViolation(entity, id.String(), "record is outside the caller's agency chain")
	}
	return nil
}

// CheckLinkedItem verifies that a schedule item linked from a transaction
// carries the transaction's own account and agency.
func (g *ScopeGuard) CheckLinkedItem(accountID, agencyID uuid.UUID, itemID uuid.UUID, item Scoped) error {
	if item.GetAccountID() != accountID {
		return shared.NewScopeViolation("payment schedule item", itemID.String(), "schedule item belongs to a different account")
	}
	if item.GetAgencyID() != agencyID {
		return shared.NewScopeViolation("payment schedule item", itemID.String(), "schedule item belongs to a different agency")
	}
	return nil
}

// isDescendant reports whether a is ancestorID or sits below it
func (g *ScopeGuard) isDescendant(ctx context.Context, a *Agency, ancestorID uuid.UUID) (bool, error) {
	current := a
	for depth := 0; depth < maxAgencyDepth; depth++ {
		if current.ID == ancestorID {
			return true, nil
		}
		if current.ParentAgencyID == nil {
			return false, nil
		}
		next, err := g.dir.FindAgency(ctx, *current.ParentAgencyID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		current = next
	}
	return false, shared.NewScopeViolation("agency", a.ID.String(), "agency chain is too deep")
}

func resolveErr(err error, entity string, id uuid.UUID, rule string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewScopeViolation(entity, id.String(), rule)
	}
	return err
}
