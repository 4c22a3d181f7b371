// Package agency implements agency registration inside a tenant account
package agency

import (
	"context"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterAgencyRequest represents a request to register an agency
type RegisterAgencyRequest struct {
	Name                string         `json:"name" binding:"required,min=1,max=200"`
	ParentAgencyID      *uuid.UUID     `json:"parent_agency_id"`
	CommissionStructure map[string]any `json:"commission_structure"`
}

// AgencyResponse represents an agency in API responses
type AgencyResponse struct {
	ID                  uuid.UUID      `json:"id"`
	AccountID           uuid.UUID      `json:"account_id"`
	ParentAgencyID      *uuid.UUID     `json:"parent_agency_id,omitempty"`
	Name                string         `json:"name"`
	IsActive            bool           `json:"is_active"`
	CommissionStructure map[string]any `json:"commission_structure,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// AgencyCountResponse is the number of agencies in the caller's account
type AgencyCountResponse struct {
	Count int64 `json:"count"`
}

// Service handles agency operations
type Service struct {
	repo  agency.AgencyRepository
	guard *agency.ScopeGuard
	clock shared.Clock
}

// NewService creates a new agency Service
func NewService(repo agency.AgencyRepository, guard *agency.ScopeGuard) *Service {
	return &Service{repo: repo, guard: guard, clock: shared.SystemClock}
}

// SetClock replaces the wall clock
func (s *Service) SetClock(clock shared.Clock) {
	s.clock = clock
}

// Register creates an agency in the caller's account. An agency-bound
// caller may only register agencies below its own agency.
func (s *Service) Register(ctx context.Context, caller agency.Caller, req RegisterAgencyRequest) (*AgencyResponse, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccount(ctx, caller.Scope); err != nil {
		return nil, err
	}
	if caller.AgencyID != nil {
		if req.ParentAgencyID == nil {
			return nil, shared.NewScopeViolation("agency", caller.AgencyID.String(), "agency-bound callers may only register sub-agencies")
		}
		if _, err := s.guard.CheckAgency(ctx, caller.Scope, *req.ParentAgencyID); err != nil {
			return nil, err
		}
	}

	a, err := agency.NewAgency(caller.AccountID, req.ParentAgencyID, req.Name, req.CommissionStructure, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAgencyParent(ctx, a); err != nil {
		return nil, err
	}
	if err := s.repo.CreateAgency(ctx, a); err != nil {
		return nil, err
	}

	logger.L(ctx).Info("agency registered",
		zap.String("agency_id", a.ID.String()),
		zap.String("name", a.Name),
	)
	resp := toAgencyResponse(a)
	return &resp, nil
}

// Get returns an agency visible to the caller
func (s *Service) Get(ctx context.Context, caller agency.Caller, id uuid.UUID) (*AgencyResponse, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccount(ctx, caller.Scope); err != nil {
		return nil, err
	}
	a, err := s.guard.CheckAgency(ctx, caller.Scope, id)
	if err != nil {
		return nil, err
	}
	resp := toAgencyResponse(a)
	return &resp, nil
}

// Count returns how many agencies the caller's account holds
func (s *Service) Count(ctx context.Context, caller agency.Caller) (*AgencyCountResponse, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccount(ctx, caller.Scope); err != nil {
		return nil, err
	}
	n, err := s.repo.CountAgenciesForAccount(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}
	return &AgencyCountResponse{Count: n}, nil
}

func toAgencyResponse(a *agency.Agency) AgencyResponse {
	return AgencyResponse{
		ID:                  a.ID,
		AccountID:           a.AccountID,
		ParentAgencyID:      a.ParentAgencyID,
		Name:                a.Name,
		IsActive:            a.IsActive,
		CommissionStructure: a.CommissionStructure,
		CreatedAt:           a.CreatedAt,
	}
}
