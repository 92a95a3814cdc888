package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/metrics"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
	"github.com/dstarsfitness/dstars-backend/pkg/refs"
)

// RecordPaymentInput is the back-office payment capture payload.
type RecordPaymentInput struct {
	InvoiceID int64               `json:"invoice_id" validate:"required"`
	Method    enums.PaymentMethod `json:"method" validate:"required"`
	Notes     *string             `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// PaymentPage is one page of the admin payment listing.
type PaymentPage struct {
	Payments   []models.Payment
	NextCursor string
}

// PaymentFilter narrows the admin payment listing.
type PaymentFilter struct {
	Method   *enums.PaymentMethod
	MemberID *int64
}

// PaymentService records settlements against pending invoices.
type PaymentService interface {
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error)
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter, page pagination.Params) (*PaymentPage, error)
}

// PaymentServiceParams packages the payment service dependencies.
type PaymentServiceParams struct {
	DB      *db.Client
	Repo    Repository
	Metrics *metrics.MembershipMetrics
	Billing config.BillingConfig
	Now     func() time.Time
}

type paymentService struct {
	db      *db.Client
	repo    Repository
	metrics *metrics.MembershipMetrics
	billing config.BillingConfig
	now     func() time.Time
}

// NewPaymentService builds the payment service.
func NewPaymentService(params PaymentServiceParams) (PaymentService, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &paymentService{
		db:      params.DB,
		repo:    params.Repo,
		metrics: params.Metrics,
		billing: params.Billing,
		now:     now,
	}, nil
}

// RecordPayment settles a pending invoice. The invoice row lock plus the
// unique index on payments.invoice_id make double capture impossible: the
// second caller either sees the paid status or trips the index.
func (s *paymentService) RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"method": string(input.Method)})
	}
	if input.Notes != nil && len(strings.TrimSpace(*input.Notes)) > 500 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes too long")
	}

	var payment *models.Payment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		invoice, err := repo.FindInvoiceByIDForUpdate(ctx, input.InvoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock invoice")
		}

		switch invoice.Status {
		case enums.InvoiceStatusPaid:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is already paid")
		case enums.InvoiceStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is cancelled")
		}

		created, err := repo.CreatePayment(ctx, &models.Payment{
			InvoiceID:  invoice.ID,
			MemberID:   invoice.MemberID,
			AmountPaid: invoice.TotalAmount,
			Method:     input.Method,
			Status:     enums.PaymentStatusConfirmed,
			Notes:      input.Notes,
			PaidAt:     s.now().UTC(),
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already has a payment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
		}

		reference := refs.Format(s.billing.PaymentPrefix, created.ID)
		created.PaymentReference = &reference
		if err := repo.UpdatePayment(ctx, created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign payment reference")
		}

		invoice.Status = enums.InvoiceStatusPaid
		if err := repo.UpdateInvoice(ctx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark invoice paid")
		}

		created.Invoice = invoice
		payment = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayment(string(payment.Method))
	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment")
	}
	return payment, nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter PaymentFilter, page pagination.Params) (*PaymentPage, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	if filter.Method != nil && !filter.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	limit := pagination.NormalizeLimit(page.Limit)
	rows, err := s.repo.ListPayments(ctx, PaymentListQuery{
		Method:   filter.Method,
		MemberID: filter.MemberID,
		Limit:    pagination.LimitWithBuffer(page.Limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}

	result := &PaymentPage{Payments: rows}
	if len(rows) > limit {
		result.Payments = rows[:limit]
		last := result.Payments[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}
