package history

import (
	"context"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ScopeQuery narrows reads to an account, optionally an agency, and a window
type ScopeQuery struct {
	AccountID uuid.UUID
	AgencyID  *uuid.UUID
	Window    shared.TimeWindow
}

// UserActivityQuery selects events triggered by one actor
type UserActivityQuery struct {
	ScopeQuery
	UserID uuid.UUID
	Limit  int
}

// Store is the append-only audit store. Amend rewrites only the fields
// Revise allows; nothing else on a stored record is writable.
type Store interface {
	// Append writes a new record. It never overwrites.
	Append(ctx context.Context, e *Event) error

	FindByID(ctx context.Context, accountID, id uuid.UUID) (*Event, error)

	// Timeline returns a transaction's events ordered by event date ascending
	Timeline(ctx context.Context, accountID, transactionID uuid.UUID, includeHidden bool) ([]Event, error)

	// ActivitySummary counts visible events per type
	ActivitySummary(ctx context.Context, q ScopeQuery) (map[EventType]int64, error)

	// UserActivity returns events triggered by an actor, newest first
	UserActivity(ctx context.Context, q UserActivityQuery) ([]Event, error)

	// Amend applies a permitted patch (visibility or notification tracking)
	Amend(ctx context.Context, accountID, id uuid.UUID, p Patch) (*Event, error)

	// Delete always fails with DeleteForbidden
	Delete(ctx context.Context, accountID, id uuid.UUID) error
}
