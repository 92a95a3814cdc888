package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
)

const maxFeatures = 10

type memberCounter interface {
	CountByPlan(ctx context.Context, planID int64) (int64, error)
}

// CreatePlanInput holds the fields accepted when creating a plan.
type CreatePlanInput struct {
	Name          string
	Description   *string
	Price         decimal.Decimal
	Duration      enums.PlanDuration
	DurationCount int
	Features      []string
}

// UpdatePlanInput holds the optional fields accepted when editing a plan.
// Nil fields are left unchanged.
type UpdatePlanInput struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	Duration      *enums.PlanDuration
	DurationCount *int
	Status        *enums.PlanStatus
	Features      []string
}

// Service exposes plan catalog management.
type Service interface {
	CreatePlan(ctx context.Context, input CreatePlanInput) (*models.MembershipPlan, error)
	UpdatePlan(ctx context.Context, id int64, input UpdatePlanInput) (*models.MembershipPlan, error)
	DeletePlan(ctx context.Context, id int64) error
	GetPlan(ctx context.Context, id int64) (*models.MembershipPlan, error)
	GetPlanBySlug(ctx context.Context, slugValue string) (*models.MembershipPlan, error)
	ListPlans(ctx context.Context, includeInactive bool) ([]models.MembershipPlan, error)
}

// ServiceParams packages the dependencies for the plans service.
type ServiceParams struct {
	Repo    Repository
	Members memberCounter
}

type service struct {
	repo    Repository
	members memberCounter
}

// NewService builds the plans service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("plans repository required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("member counter required")
	}
	return &service{repo: params.Repo, members: params.Members}, nil
}

func (s *service) CreatePlan(ctx context.Context, input CreatePlanInput) (*models.MembershipPlan, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if !input.Duration.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid duration unit")
	}
	if input.DurationCount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration_count must be positive")
	}
	if len(input.Features) > maxFeatures {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d features allowed", maxFeatures))
	}

	planSlug, err := s.uniqueSlug(ctx, name, 0)
	if err != nil {
		return nil, err
	}

	plan := &models.MembershipPlan{
		Name:          name,
		Slug:          planSlug,
		Description:   input.Description,
		Price:         input.Price.Round(2),
		Duration:      input.Duration,
		DurationCount: input.DurationCount,
		Status:        enums.PlanStatusActive,
		Features:      pq.StringArray(input.Features),
	}

	created, err := s.repo.Create(ctx, plan)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create plan")
	}
	return created, nil
}

func (s *service) UpdatePlan(ctx context.Context, id int64, input UpdatePlanInput) (*models.MembershipPlan, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}

	plan, err := s.findPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be empty")
		}
		// The slug only changes when the display name does.
		if name != plan.Name {
			newSlug, err := s.uniqueSlug(ctx, name, plan.ID)
			if err != nil {
				return nil, err
			}
			plan.Slug = newSlug
		}
		plan.Name = name
	}
	if input.Description != nil {
		plan.Description = input.Description
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		plan.Price = input.Price.Round(2)
	}
	if input.Duration != nil {
		if !input.Duration.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid duration unit")
		}
		plan.Duration = *input.Duration
	}
	if input.DurationCount != nil {
		if *input.DurationCount <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration_count must be positive")
		}
		plan.DurationCount = *input.DurationCount
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan status")
		}
		plan.Status = *input.Status
	}
	if input.Features != nil {
		if len(input.Features) > maxFeatures {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d features allowed", maxFeatures))
		}
		plan.Features = pq.StringArray(input.Features)
	}

	if err := s.repo.Update(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update plan")
	}
	return plan, nil
}

func (s *service) DeletePlan(ctx context.Context, id int64) error {
	if id <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}

	if _, err := s.findPlan(ctx, id); err != nil {
		return err
	}

	count, err := s.members.CountByPlan(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count plan members")
	}
	if count > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "plan has enrolled members")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete plan")
	}
	return nil
}

func (s *service) GetPlan(ctx context.Context, id int64) (*models.MembershipPlan, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	return s.findPlan(ctx, id)
}

func (s *service) GetPlanBySlug(ctx context.Context, slugValue string) (*models.MembershipPlan, error) {
	slugValue = strings.TrimSpace(slugValue)
	if slugValue == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan slug is required")
	}

	plan, err := s.repo.FindBySlug(ctx, slugValue)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
	}
	return plan, nil
}

func (s *service) ListPlans(ctx context.Context, includeInactive bool) ([]models.MembershipPlan, error) {
	rows, err := s.repo.List(ctx, !includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}
	return rows, nil
}

func (s *service) findPlan(ctx context.Context, id int64) (*models.MembershipPlan, error) {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
	}
	return plan, nil
}

// uniqueSlug slugifies the name and appends -2, -3, ... until no other plan
// claims the result.
func (s *service) uniqueSlug(ctx context.Context, name string, excludeID int64) (string, error) {
	base := slug.Make(name)
	if base == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name produces an empty slug")
	}

	candidate := base
	for n := 2; ; n++ {
		exists, err := s.repo.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check slug")
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
