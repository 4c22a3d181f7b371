package agency

import (
	"context"
	"testing"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *testutil.Tenant) {
	t.Helper()
	tenant := testutil.NewTenant(t)
	svc := NewService(tenant.Directory, tenant.Guard)
	svc.SetClock(testutil.FixedClock(testutil.Now))
	return svc, tenant
}

func TestService_Register(t *testing.T) {
	t.Run("account-wide caller registers a root agency", func(t *testing.T) {
		svc, tenant := newService(t)

		resp, err := svc.Register(context.Background(), tenant.Caller(), RegisterAgencyRequest{Name: "Melbourne Branch"})

		require.NoError(t, err)
		assert.Equal(t, tenant.AccountID, resp.AccountID)
		assert.True(t, resp.IsActive)
		count, err := svc.Count(context.Background(), tenant.Caller())
		require.NoError(t, err)
		assert.Equal(t, int64(2), count.Count)
	})

	t.Run("agency-bound caller registers below its agency", func(t *testing.T) {
		svc, tenant := newService(t)
		caller := tenant.AgencyCaller(tenant.Agency.ID)

		resp, err := svc.Register(context.Background(), caller, RegisterAgencyRequest{
			Name:           "Melbourne Desk",
			ParentAgencyID: &tenant.Agency.ID,
		})

		require.NoError(t, err)
		assert.Equal(t, &tenant.Agency.ID, resp.ParentAgencyID)
	})

	t.Run("agency-bound caller cannot register a root agency", func(t *testing.T) {
		svc, tenant := newService(t)

		_, err := svc.Register(context.Background(), tenant.AgencyCaller(tenant.Agency.ID), RegisterAgencyRequest{Name: "Rogue"})

		assert.ErrorIs(t, err, shared.ErrScopeViolation)
	})

	t.Run("parent in another account is rejected", func(t *testing.T) {
		svc, tenant := newService(t)
		otherAccount := uuid.New()
		tenant.Directory.AddAccount(otherAccount, true)
		foreign := tenant.Directory.AddAgency(t, otherAccount, nil)

		_, err := svc.Register(context.Background(), tenant.Caller(), RegisterAgencyRequest{
			Name:           "Cross-tenant",
			ParentAgencyID: &foreign.ID,
		})

		assert.ErrorIs(t, err, shared.ErrScopeViolation)
	})

	t.Run("unknown parent is rejected", func(t *testing.T) {
		svc, tenant := newService(t)
		missing := uuid.New()

		_, err := svc.Register(context.Background(), tenant.Caller(), RegisterAgencyRequest{Name: "Orphan", ParentAgencyID: &missing})

		assert.ErrorIs(t, err, shared.ErrScopeViolation)
	})

	t.Run("inactive account is rejected", func(t *testing.T) {
		svc, tenant := newService(t)
		tenant.Directory.AddAccount(tenant.AccountID, false)

		_, err := svc.Register(context.Background(), tenant.Caller(), RegisterAgencyRequest{Name: "Late"})

		assert.ErrorIs(t, err, shared.ErrScopeViolation)
	})

	t.Run("blank name is a validation error", func(t *testing.T) {
		svc, tenant := newService(t)

		_, err := svc.Register(context.Background(), tenant.Caller(), RegisterAgencyRequest{Name: "  "})

		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestService_Get(t *testing.T) {
	svc, tenant := newService(t)
	sibling := tenant.Directory.AddAgency(t, tenant.AccountID, nil)

	_, err := svc.Get(context.Background(), tenant.AgencyCaller(tenant.Agency.ID), sibling.ID)
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	resp, err := svc.Get(context.Background(), tenant.Caller(), sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, sibling.Name, resp.Name)

	_, err = svc.Get(context.Background(), agency.Caller{Scope: tenant.Caller().Scope}, sibling.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
