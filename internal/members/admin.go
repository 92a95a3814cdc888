package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
)

// UpdateMemberInput carries the back-office member edit payload. Nil fields
// are left unchanged.
type UpdateMemberInput struct {
	FullName *string             `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone    *string             `json:"phone,omitempty" validate:"omitempty,max=32"`
	Status   *enums.MemberStatus `json:"status,omitempty"`
	PlanSlug *string             `json:"plan_slug,omitempty"`
}

// MemberPage is one page of the admin member listing.
type MemberPage struct {
	Members    []models.Member
	NextCursor string
}

// AdminService exposes the back-office member operations.
type AdminService interface {
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	ListMembers(ctx context.Context, search string, page pagination.Params) (*MemberPage, error)
	UpdateMember(ctx context.Context, id int64, input UpdateMemberInput) (*models.Member, error)
	DeleteMember(ctx context.Context, id int64) error
}

// AdminServiceParams packages the back-office service dependencies.
type AdminServiceParams struct {
	DB    *db.Client
	Repo  Repository
	Plans planReader
	Now   func() time.Time
}

type adminService struct {
	db    *db.Client
	repo  Repository
	plans planReader
	now   func() time.Time
}

// NewAdminService builds the back-office member service.
func NewAdminService(params AdminServiceParams) (AdminService, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plans reader required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &adminService{db: params.DB, repo: params.Repo, plans: params.Plans, now: now}, nil
}

func (s *adminService) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member")
	}
	return member, nil
}

func (s *adminService) ListMembers(ctx context.Context, search string, page pagination.Params) (*MemberPage, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(page.Limit)
	rows, err := s.repo.List(ctx, ListQuery{
		Search: strings.TrimSpace(search),
		Limit:  pagination.LimitWithBuffer(page.Limit),
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list members")
	}

	result := &MemberPage{Members: rows}
	if len(rows) > limit {
		result.Members = rows[:limit]
		last := result.Members[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

func (s *adminService) UpdateMember(ctx context.Context, id int64, input UpdateMemberInput) (*models.Member, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member status").
			WithDetails(map[string]any{"status": string(*input.Status)})
	}
	if input.FullName != nil && strings.TrimSpace(*input.FullName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name cannot be empty")
	}

	var plan *models.MembershipPlan
	if input.PlanSlug != nil {
		found, err := s.plans.FindBySlug(ctx, strings.TrimSpace(*input.PlanSlug))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan does not exist")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
		}
		plan = found
	}

	var member *models.Member
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock member")
		}

		if input.FullName != nil {
			found.FullName = strings.TrimSpace(*input.FullName)
		}
		if input.Phone != nil {
			found.Phone = input.Phone
		}
		if input.Status != nil {
			found.Status = *input.Status
		}
		if plan != nil {
			found.MembershipPlanID = &plan.ID
			found.MembershipPlan = plan
		}

		if err := repo.Update(ctx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update member")
		}
		member = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *adminService) DeleteMember(ctx context.Context, id int64) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member")
		}
		if err := repo.SoftDelete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete member")
		}
		return nil
	})
}
