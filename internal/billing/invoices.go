package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/internal/members"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
	"github.com/dstarsfitness/dstars-backend/pkg/refs"
)

// InvoicePage is one page of the admin invoice listing.
type InvoicePage struct {
	Invoices   []models.Invoice
	NextCursor string
}

// InvoiceService issues and manages registration invoices.
type InvoiceService interface {
	CreateForMember(ctx context.Context, memberID int64) (*models.Invoice, error)
	LatestForMember(ctx context.Context, memberID int64) (*models.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	CancelInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter, page pagination.Params) (*InvoicePage, error)
}

// InvoiceFilter narrows the admin invoice listing.
type InvoiceFilter struct {
	Status   *enums.InvoiceStatus
	MemberID *int64
}

// InvoiceServiceParams packages the invoice service dependencies.
type InvoiceServiceParams struct {
	DB      *db.Client
	Repo    Repository
	Members members.Repository
	Billing config.BillingConfig
	Now     func() time.Time
}

type invoiceService struct {
	db      *db.Client
	repo    Repository
	members members.Repository
	billing config.BillingConfig
	now     func() time.Time
}

// NewInvoiceService builds the invoice service.
func NewInvoiceService(params InvoiceServiceParams) (InvoiceService, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("members repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &invoiceService{
		db:      params.DB,
		repo:    params.Repo,
		members: params.Members,
		billing: params.Billing,
		now:     now,
	}, nil
}

// CreateForMember issues the registration invoice for a member. Idempotent:
// if the member already has an invoice, the most recent one is returned
// unchanged regardless of its status, so client retries never mint a
// duplicate. The member row lock serializes concurrent calls.
func (s *invoiceService) CreateForMember(ctx context.Context, memberID int64) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		members := s.members.WithTx(tx)

		member, err := members.FindByIDForUpdate(ctx, memberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock member")
		}
		if member.MembershipPlan == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "member has no membership plan")
		}

		latest, err := repo.LatestInvoiceForMember(ctx, memberID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup latest invoice")
		}
		if latest != nil {
			invoice = latest
			return nil
		}

		plan := member.MembershipPlan
		fee := registrationFee(plan.Price, s.billing.FeeRateDecimal(), s.billing.FixedFeeDecimal())
		created, err := repo.CreateInvoice(ctx, &models.Invoice{
			MemberID:        member.ID,
			PlanName:        plan.Name,
			PlanPrice:       plan.Price,
			RegistrationFee: fee,
			TotalAmount:     plan.Price.Add(fee),
			Status:          enums.InvoiceStatusPending,
			IssuedAt:        s.now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
		}

		number := refs.Format(s.billing.InvoicePrefix, created.ID)
		created.InvoiceNumber = &number
		if err := repo.UpdateInvoice(ctx, created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign invoice number")
		}

		invoice = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) LatestForMember(ctx context.Context, memberID int64) (*models.Invoice, error) {
	invoice, err := s.repo.LatestInvoiceForMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup invoice")
	}
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	invoice, err := s.repo.FindInvoiceByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup invoice")
	}
	return invoice, nil
}

// CancelInvoice voids a pending invoice. Cancelling twice is a no-op, a paid
// invoice cannot be cancelled.
func (s *invoiceService) CancelInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindInvoiceByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock invoice")
		}

		switch locked.Status {
		case enums.InvoiceStatusPaid:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is already paid")
		case enums.InvoiceStatusCancelled:
			invoice = locked
			return nil
		}

		locked.Status = enums.InvoiceStatusCancelled
		if err := repo.UpdateInvoice(ctx, locked); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel invoice")
		}
		invoice = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter, page pagination.Params) (*InvoicePage, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice status")
	}

	limit := pagination.NormalizeLimit(page.Limit)
	rows, err := s.repo.ListInvoices(ctx, InvoiceListQuery{
		Status:   filter.Status,
		MemberID: filter.MemberID,
		Limit:    pagination.LimitWithBuffer(page.Limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}

	result := &InvoicePage{Invoices: rows}
	if len(rows) > limit {
		result.Invoices = rows[:limit]
		last := result.Invoices[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

// registrationFee is round(price * rate + fixed, 2), never negative.
func registrationFee(price, rate, fixed decimal.Decimal) decimal.Decimal {
	fee := price.Mul(rate).Add(fixed).Round(2)
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}
