package billing

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
)

// InvoiceListQuery carries admin invoice listing filters.
type InvoiceListQuery struct {
	Status   *enums.InvoiceStatus
	MemberID *int64
	Limit    int
	Cursor   *pagination.Cursor
}

// PaymentListQuery carries admin payment listing filters.
type PaymentListQuery struct {
	Method   *enums.PaymentMethod
	MemberID *int64
	Limit    int
	Cursor   *pagination.Cursor
}

// SumRow carries a payment aggregate.
type SumRow struct {
	Total string
	Count int64
}

// Repository defines persistence for invoices and payments. Both live in one
// repository because recording a payment touches both tables atomically.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error)
	UpdateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindInvoiceByID(ctx context.Context, id int64) (*models.Invoice, error)
	FindInvoiceByIDForUpdate(ctx context.Context, id int64) (*models.Invoice, error)
	LatestInvoiceForMember(ctx context.Context, memberID int64) (*models.Invoice, error)
	ListInvoices(ctx context.Context, opts InvoiceListQuery) ([]models.Invoice, error)

	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	FindPaymentByInvoice(ctx context.Context, invoiceID int64) (*models.Payment, error)
	ListPayments(ctx context.Context, opts PaymentListQuery) ([]models.Payment, error)

	SumPayments(ctx context.Context) (SumRow, error)
	SumPaymentsSince(ctx context.Context, since time.Time) (SumRow, error)
	CountInvoicesByStatus(ctx context.Context, status enums.InvoiceStatus) (int64, error)
	RecentPayments(ctx context.Context, limit int) ([]models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a billing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *repository) UpdateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *repository) FindInvoiceByID(ctx context.Context, id int64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Member").
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindInvoiceByIDForUpdate(ctx context.Context, id int64) (*models.Invoice, error) {
	query := r.db.WithContext(ctx)
	// SQLite used in tests has no FOR UPDATE, its writes serialize anyway.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var invoice models.Invoice
	if err := query.First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) LatestInvoiceForMember(ctx context.Context, memberID int64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("id DESC").
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListInvoices(ctx context.Context, opts InvoiceListQuery) ([]models.Invoice, error) {
	query := r.db.WithContext(ctx).Model(&models.Invoice{}).Preload("Member")
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}
	if opts.MemberID != nil {
		query = query.Where("member_id = ?", *opts.MemberID)
	}
	if opts.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID,
		)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var invoices []models.Invoice
	if err := query.Order("created_at DESC, id DESC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) FindPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Invoice").
		First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPaymentByInvoice(ctx context.Context, invoiceID int64) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		First(&payment, "invoice_id = ?", invoiceID).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListPayments(ctx context.Context, opts PaymentListQuery) ([]models.Payment, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{}).Preload("Invoice")
	if opts.Method != nil {
		query = query.Where("method = ?", *opts.Method)
	}
	if opts.MemberID != nil {
		query = query.Where("member_id = ?", *opts.MemberID)
	}
	if opts.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID,
		)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var payments []models.Payment
	if err := query.Order("created_at DESC, id DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) SumPayments(ctx context.Context) (SumRow, error) {
	var row SumRow
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Select("COALESCE(SUM(amount_paid), 0) AS total, COUNT(*) AS count").
		Scan(&row).Error
	return row, err
}

func (r *repository) SumPaymentsSince(ctx context.Context, since time.Time) (SumRow, error) {
	var row SumRow
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Select("COALESCE(SUM(amount_paid), 0) AS total, COUNT(*) AS count").
		Where("paid_at >= ?", since).
		Scan(&row).Error
	return row, err
}

func (r *repository) CountInvoicesByStatus(ctx context.Context, status enums.InvoiceStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *repository) RecentPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 10
	}
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Preload("Invoice").
		Order("paid_at DESC, id DESC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
