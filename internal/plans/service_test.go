package plans

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
)

func setupPlansTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Shared cache keeps every pooled connection on the same in-memory
	// database; the test name keeps databases isolated between tests.
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS membership_plans (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  description TEXT,
  price NUMERIC NOT NULL,
  duration TEXT NOT NULL,
  duration_count INTEGER NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'active',
  features TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

type stubMemberCounter struct {
	count int64
	err   error
}

func (s *stubMemberCounter) CountByPlan(ctx context.Context, planID int64) (int64, error) {
	return s.count, s.err
}

func newPlansService(t *testing.T, db *gorm.DB, counter *stubMemberCounter) Service {
	t.Helper()
	if counter == nil {
		counter = &stubMemberCounter{}
	}
	svc, err := NewService(ServiceParams{Repo: NewRepository(db), Members: counter})
	require.NoError(t, err)
	return svc
}

func TestCreatePlanGeneratesSlug(t *testing.T) {
	db := setupPlansTestDB(t)
	svc := newPlansService(t, db, nil)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanInput{
		Name:          "Monthly Unlimited",
		Price:         decimal.RequireFromString("1500.00"),
		Duration:      enums.PlanDurationMonth,
		DurationCount: 1,
		Features:      []string{"unlimited gym access", "free towel"},
	})
	require.NoError(t, err)
	require.Equal(t, "monthly-unlimited", plan.Slug)
	require.Equal(t, enums.PlanStatusActive, plan.Status)
	require.True(t, plan.Price.Equal(decimal.RequireFromString("1500.00")))
}

func TestCreatePlanDisambiguatesSlugCollisions(t *testing.T) {
	db := setupPlansTestDB(t)
	svc := newPlansService(t, db, nil)
	ctx := context.Background()

	input := CreatePlanInput{
		Name:          "Day Pass",
		Price:         decimal.RequireFromString("150.00"),
		Duration:      enums.PlanDurationDay,
		DurationCount: 1,
	}

	first, err := svc.CreatePlan(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "day-pass", first.Slug)

	second, err := svc.CreatePlan(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "day-pass-2", second.Slug)

	third, err := svc.CreatePlan(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "day-pass-3", third.Slug)
}

func TestCreatePlanValidation(t *testing.T) {
	db := setupPlansTestDB(t)
	svc := newPlansService(t, db, nil)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, CreatePlanInput{
		Price: decimal.Zero, Duration: enums.PlanDurationMonth, DurationCount: 1,
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreatePlan(ctx, CreatePlanInput{
		Name: "Bad", Price: decimal.RequireFromString("-1"), Duration: enums.PlanDurationMonth, DurationCount: 1,
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreatePlan(ctx, CreatePlanInput{
		Name: "Bad", Price: decimal.Zero, Duration: enums.PlanDuration("fortnight"), DurationCount: 1,
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "feature"
	}
	_, err = svc.CreatePlan(ctx, CreatePlanInput{
		Name: "Bad", Price: decimal.Zero, Duration: enums.PlanDurationMonth, DurationCount: 1, Features: tooMany,
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdatePlanRegeneratesSlugOnlyOnRename(t *testing.T) {
	db := setupPlansTestDB(t)
	svc := newPlansService(t, db, nil)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanInput{
		Name: "Quarterly", Price: decimal.RequireFromString("4000.00"), Duration: enums.PlanDurationMonth, DurationCount: 3,
	})
	require.NoError(t, err)

	newPrice := decimal.RequireFromString("4200.00")
	updated, err := svc.UpdatePlan(ctx, plan.ID, UpdatePlanInput{Price: &newPrice})
	require.NoError(t, err)
	require.Equal(t, "quarterly", updated.Slug)
	require.True(t, updated.Price.Equal(newPrice))

	newName := "Quarterly Plus"
	updated, err = svc.UpdatePlan(ctx, plan.ID, UpdatePlanInput{Name: &newName})
	require.NoError(t, err)
	require.Equal(t, "quarterly-plus", updated.Slug)
}

func TestDeletePlanGuardsEnrolledMembers(t *testing.T) {
	db := setupPlansTestDB(t)
	counter := &stubMemberCounter{count: 3}
	svc := newPlansService(t, db, counter)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanInput{
		Name: "Annual", Price: decimal.RequireFromString("12000.00"), Duration: enums.PlanDurationYear, DurationCount: 1,
	})
	require.NoError(t, err)

	err = svc.DeletePlan(ctx, plan.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	counter.count = 0
	require.NoError(t, svc.DeletePlan(ctx, plan.ID))

	_, err = svc.GetPlan(ctx, plan.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestListPlansFiltersInactive(t *testing.T) {
	db := setupPlansTestDB(t)
	svc := newPlansService(t, db, nil)
	ctx := context.Background()

	active, err := svc.CreatePlan(ctx, CreatePlanInput{
		Name: "Active Plan", Price: decimal.RequireFromString("100.00"), Duration: enums.PlanDurationMonth, DurationCount: 1,
	})
	require.NoError(t, err)

	retired, err := svc.CreatePlan(ctx, CreatePlanInput{
		Name: "Retired Plan", Price: decimal.RequireFromString("200.00"), Duration: enums.PlanDurationMonth, DurationCount: 1,
	})
	require.NoError(t, err)

	inactive := enums.PlanStatusInactive
	_, err = svc.UpdatePlan(ctx, retired.ID, UpdatePlanInput{Status: &inactive})
	require.NoError(t, err)

	visible, err := svc.ListPlans(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, active.ID, visible[0].ID)

	all, err := svc.ListPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected app error, got %v", err)
	require.Equal(t, code, appErr.Code())
}
