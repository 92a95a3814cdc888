package members

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
)

// Repository defines persistence operations for members. Soft-deleted rows
// are excluded from every lookup through the gorm.DeletedAt default scope.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, member *models.Member) (*models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	FindByID(ctx context.Context, id int64) (*models.Member, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*models.Member, error)
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
	FindByMembershipID(ctx context.Context, membershipID string) (*models.Member, error)
	List(ctx context.Context, opts ListQuery) ([]models.Member, error)
	CountByPlan(ctx context.Context, planID int64) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	SoftDelete(ctx context.Context, id int64) error
}

// ListQuery carries admin listing filters.
type ListQuery struct {
	Search string
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a members repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, member *models.Member) (*models.Member, error) {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, err
	}
	return member, nil
}

func (r *repository) Update(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Save(member).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).Preload("MembershipPlan").Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// FindByIDForUpdate locks the member row for the rest of the transaction.
// SQLite used in tests has no FOR UPDATE, its writes serialize anyway.
func (r *repository) FindByIDForUpdate(ctx context.Context, id int64) (*models.Member, error) {
	query := r.db.WithContext(ctx).Preload("MembershipPlan")
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var member models.Member
	if err := query.Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Preload("MembershipPlan").
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindByMembershipID(ctx context.Context, membershipID string) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Preload("MembershipPlan").
		Where("membership_id = ?", membershipID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) List(ctx context.Context, opts ListQuery) ([]models.Member, error) {
	query := r.db.WithContext(ctx).Model(&models.Member{}).Preload("MembershipPlan")

	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"lower(full_name) LIKE ? OR lower(email) LIKE ? OR membership_id LIKE ?",
			pattern, pattern, "%"+search+"%",
		)
	}
	if opts.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID,
		)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.Limit)

	var rows []models.Member
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByPlan(ctx context.Context, planID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("membership_plan_id = ?", planID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("is_verified = ?", true).
		Count(&count).Error
	return count, err
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Member{}, id).Error
}
