package members

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dstarsfitness/dstars-backend/internal/plans"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
)

func newAdminHarness(t *testing.T) (*memberHarness, AdminService) {
	t.Helper()
	h := newMemberHarness(t)
	svc, err := NewAdminService(AdminServiceParams{
		DB:    db.NewWithConn(h.conn),
		Repo:  h.repo,
		Plans: plans.NewRepository(h.conn),
		Now:   h.clock.Now,
	})
	require.NoError(t, err)
	return h, svc
}

func TestListMembersPaginatesWithCursor(t *testing.T) {
	h, admin := newAdminHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)

	for i := 0; i < 5; i++ {
		_, err := h.svc.Register(ctx, RegisterRequest{
			FullName: fmt.Sprintf("Member %02d", i),
			Email:    fmt.Sprintf("member%02d@example.com", i),
			PlanSlug: "monthly-unlimited",
		}, "")
		require.NoError(t, err)
	}

	first, err := admin.ListMembers(ctx, "", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Members, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := admin.ListMembers(ctx, "", pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Members, 2)

	seen := map[int64]bool{}
	for _, m := range append(first.Members, second.Members...) {
		require.False(t, seen[m.ID])
		seen[m.ID] = true
	}
}

func TestListMembersSearch(t *testing.T) {
	h, admin := newAdminHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)

	_, err := h.svc.Register(ctx, RegisterRequest{
		FullName: "Maria Santos", Email: "maria@example.com", PlanSlug: "monthly-unlimited",
	}, "")
	require.NoError(t, err)
	_, err = h.svc.Register(ctx, RegisterRequest{
		FullName: "Juan Dela Cruz", Email: "juan@example.com", PlanSlug: "monthly-unlimited",
	}, "")
	require.NoError(t, err)

	page, err := admin.ListMembers(ctx, "maria", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Members, 1)
	require.Equal(t, "Maria Santos", page.Members[0].FullName)

	page, err = admin.ListMembers(ctx, "DSTARS-0000", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Members, 2)
}

func TestUpdateMember(t *testing.T) {
	h, admin := newAdminHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)
	seedPlan(t, h.conn, "Annual", "annual", enums.PlanStatusActive)

	_, err := h.svc.Register(ctx, RegisterRequest{
		FullName: "Maria Santos", Email: "maria@example.com", PlanSlug: "monthly-unlimited",
	}, "")
	require.NoError(t, err)
	stored, err := h.repo.FindByEmail(ctx, "maria@example.com")
	require.NoError(t, err)

	name := "Maria Santos-Reyes"
	status := enums.MemberStatusSuspended
	planSlug := "annual"
	updated, err := admin.UpdateMember(ctx, stored.ID, UpdateMemberInput{
		FullName: &name,
		Status:   &status,
		PlanSlug: &planSlug,
	})
	require.NoError(t, err)
	require.Equal(t, name, updated.FullName)
	require.Equal(t, enums.MemberStatusSuspended, updated.Status)
	require.Equal(t, "Annual", updated.MembershipPlan.Name)

	bad := enums.MemberStatus("frozen")
	_, err = admin.UpdateMember(ctx, stored.ID, UpdateMemberInput{Status: &bad})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestDeleteMemberSoftDeletes(t *testing.T) {
	h, admin := newAdminHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)

	_, err := h.svc.Register(ctx, RegisterRequest{
		FullName: "Maria Santos", Email: "maria@example.com", PlanSlug: "monthly-unlimited",
	}, "")
	require.NoError(t, err)
	stored, err := h.repo.FindByEmail(ctx, "maria@example.com")
	require.NoError(t, err)

	require.NoError(t, admin.DeleteMember(ctx, stored.ID))

	_, err = admin.GetMember(ctx, stored.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	// Row survives under soft delete.
	var count int64
	require.NoError(t, h.conn.Table("members").Where("id = ?", stored.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	require.ErrorContains(t, admin.DeleteMember(ctx, stored.ID), "not found")
}

func TestGetMemberNotFound(t *testing.T) {
	_, admin := newAdminHarness(t)
	_, err := admin.GetMember(context.Background(), 404)
	requireCode(t, err, pkgerrors.CodeNotFound)
}
