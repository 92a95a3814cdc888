package plans

import (
	"context"

	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository defines persistence operations for membership plans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.MembershipPlan) (*models.MembershipPlan, error)
	Update(ctx context.Context, plan *models.MembershipPlan) error
	FindByID(ctx context.Context, id int64) (*models.MembershipPlan, error)
	FindBySlug(ctx context.Context, slug string) (*models.MembershipPlan, error)
	List(ctx context.Context, onlyActive bool) ([]models.MembershipPlan, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a plans repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, plan *models.MembershipPlan) (*models.MembershipPlan, error) {
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *repository) Update(ctx context.Context, plan *models.MembershipPlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) List(ctx context.Context, onlyActive bool) ([]models.MembershipPlan, error) {
	query := r.db.WithContext(ctx).Model(&models.MembershipPlan{})
	if onlyActive {
		query = query.Where("status = ?", enums.PlanStatusActive)
	}

	var rows []models.MembershipPlan
	if err := query.Order("price ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.MembershipPlan{}).Where("slug = ?", slug)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.MembershipPlan{}, id).Error
}
