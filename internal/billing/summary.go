package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
)

const recentPaymentsLimit = 10

type activeMemberCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// Summary is the back-office finance dashboard payload.
type Summary struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	MonthRevenue    decimal.Decimal `json:"month_revenue"`
	PaidInvoices    int64           `json:"paid_invoices"`
	PendingInvoices int64           `json:"pending_invoices"`
	ActiveMembers   int64           `json:"active_members"`
	RecentPayments  []*PaymentDTO   `json:"recent_payments"`
}

// SummaryService aggregates revenue and membership figures.
type SummaryService interface {
	Summary(ctx context.Context) (*Summary, error)
}

// SummaryServiceParams packages the summary service dependencies.
type SummaryServiceParams struct {
	Repo    Repository
	Members activeMemberCounter
	Now     func() time.Time
}

type summaryService struct {
	repo    Repository
	members activeMemberCounter
	now     func() time.Time
}

// NewSummaryService builds the finance summary service.
func NewSummaryService(params SummaryServiceParams) (SummaryService, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("member counter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &summaryService{repo: params.Repo, members: params.Members, now: now}, nil
}

func (s *summaryService) Summary(ctx context.Context) (*Summary, error) {
	total, err := s.repo.SumPayments(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum payments")
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	month, err := s.repo.SumPaymentsSince(ctx, monthStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum month payments")
	}

	paid, err := s.repo.CountInvoicesByStatus(ctx, enums.InvoiceStatusPaid)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count paid invoices")
	}
	pending, err := s.repo.CountInvoicesByStatus(ctx, enums.InvoiceStatusPending)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count pending invoices")
	}

	active, err := s.members.CountActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active members")
	}

	recent, err := s.repo.RecentPayments(ctx, recentPaymentsLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list recent payments")
	}

	return &Summary{
		TotalRevenue:    parseSum(total),
		MonthRevenue:    parseSum(month),
		PaidInvoices:    paid,
		PendingInvoices: pending,
		ActiveMembers:   active,
		RecentPayments:  PaymentsFromModels(recent),
	}, nil
}

// parseSum tolerates driver-dependent numeric formatting of SUM results.
func parseSum(row SumRow) decimal.Decimal {
	if row.Total == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(row.Total)
	if err != nil {
		return decimal.Zero
	}
	return d
}
