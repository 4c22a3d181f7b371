// Package agency holds the tenant hierarchy the billing core is scoped by:
// accounts, the agencies inside them and the offer letters agencies manage.
package agency

import (
	"strings"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Account is the tenant root
type Account struct {
	ID       uuid.UUID
	Name     string
	IsActive bool
}

// Agency is a sub-organization of an account
type Agency struct {
	shared.BaseEntity
	AccountID      uuid.UUID
	ParentAgencyID *uuid.UUID
	Name           string
	IsActive       bool
	// CommissionStructure is consumed by downstream billing but never computed here.
	CommissionStructure map[string]any
}

// NewAgency creates an active agency. Parent ownership is checked by ScopeGuard.CheckAgencyParent.
func NewAgency(accountID uuid.UUID, parentID *uuid.UUID, name string, commission map[string]any, now time.Time) (*Agency, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewValidationError("accountId", "is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("name", "is required")
	}
	if len(name) > 200 {
		return nil, shared.NewValidationError("name", "must be at most 200 characters")
	}
	return &Agency{
		BaseEntity:          shared.NewBaseEntity(now),
		AccountID:           accountID,
		ParentAgencyID:      parentID,
		Name:                name,
		IsActive:            true,
		CommissionStructure: commission,
	}, nil
}

// OfferLetter is the collaborator record a schedule item is drawn from
type OfferLetter struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	AgencyID  uuid.UUID
	StudentID uuid.UUID
	IsActive  bool
}
