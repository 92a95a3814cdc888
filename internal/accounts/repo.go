package accounts

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
)

// Repository defines persistence for staff accounts and their email
// verification challenges.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	FindAccountByID(ctx context.Context, id int64) (*models.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)

	SaveVerification(ctx context.Context, verification *models.EmailVerification) error
	FindVerificationForUpdate(ctx context.Context, accountID int64) (*models.EmailVerification, error)
	DeleteVerification(ctx context.Context, accountID int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an accounts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (r *repository) UpdateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *repository) FindAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) SaveVerification(ctx context.Context, verification *models.EmailVerification) error {
	return r.db.WithContext(ctx).Save(verification).Error
}

func (r *repository) FindVerificationForUpdate(ctx context.Context, accountID int64) (*models.EmailVerification, error) {
	query := r.db.WithContext(ctx)
	// SQLite used in tests has no FOR UPDATE, its writes serialize anyway.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var verification models.EmailVerification
	if err := query.First(&verification, "account_id = ?", accountID).Error; err != nil {
		return nil, err
	}
	return &verification, nil
}

func (r *repository) DeleteVerification(ctx context.Context, accountID int64) error {
	return r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&models.EmailVerification{}).Error
}
