package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseAggregateRoot is a versioned entity that buffers the domain events its
// transitions raise until the service publishes them after commit
type BaseAggregateRoot struct {
	BaseEntity
	Version      int
	domainEvents []DomainEvent
}

// Touch bumps the version and the update timestamp. Transitions call it on
// the copy they return, so the persisted version acts as a compare-and-swap token.
func (a *BaseAggregateRoot) Touch(now time.Time) {
	a.Version++
	a.UpdatedAt = now.UTC()
}

// AddDomainEvent buffers an event for publication
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns the buffered events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents drops the buffered events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot starts a root at version 1
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(now),
		Version:    1,
	}
}

// AgencyAggregateRoot is an aggregate owned by an agency inside an account
type AgencyAggregateRoot struct {
	BaseAggregateRoot
	AccountID uuid.UUID
	AgencyID  uuid.UUID
	CreatedBy *uuid.UUID
	UpdatedBy *uuid.UUID
}

// NewAgencyAggregateRoot creates a new agency-scoped aggregate root
func NewAgencyAggregateRoot(accountID, agencyID, createdBy uuid.UUID, now time.Time) AgencyAggregateRoot {
	return AgencyAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(now),
		AccountID:         accountID,
		AgencyID:          agencyID,
		CreatedBy:         &createdBy,
	}
}

// GetAccountID returns the owning account
func (a *AgencyAggregateRoot) GetAccountID() uuid.UUID {
	return a.AccountID
}

// GetAgencyID returns the owning agency
func (a *AgencyAggregateRoot) GetAgencyID() uuid.UUID {
	return a.AgencyID
}

// MarkUpdatedBy records the actor of the latest change
func (a *AgencyAggregateRoot) MarkUpdatedBy(actorID uuid.UUID) {
	a.UpdatedBy = &actorID
}
