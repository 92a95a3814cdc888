package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dstarsfitness/dstars-backend/internal/members"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
)

// InvoiceDTO is the transport shape for an invoice.
type InvoiceDTO struct {
	ID              int64               `json:"id"`
	InvoiceNumber   *string             `json:"invoice_number,omitempty"`
	MemberID        int64               `json:"member_id"`
	Member          *members.MemberDTO  `json:"member,omitempty"`
	PlanName        string              `json:"plan_name"`
	PlanPrice       decimal.Decimal     `json:"plan_price"`
	RegistrationFee decimal.Decimal     `json:"registration_fee"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Status          enums.InvoiceStatus `json:"status"`
	IssuedAt        time.Time           `json:"issued_at"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func InvoiceFromModel(inv *models.Invoice) *InvoiceDTO {
	if inv == nil {
		return nil
	}
	return &InvoiceDTO{
		ID:              inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		MemberID:        inv.MemberID,
		Member:          members.FromModel(inv.Member),
		PlanName:        inv.PlanName,
		PlanPrice:       inv.PlanPrice,
		RegistrationFee: inv.RegistrationFee,
		TotalAmount:     inv.TotalAmount,
		Status:          inv.Status,
		IssuedAt:        inv.IssuedAt,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
}

func InvoicesFromModels(invoices []models.Invoice) []*InvoiceDTO {
	out := make([]*InvoiceDTO, 0, len(invoices))
	for i := range invoices {
		out = append(out, InvoiceFromModel(&invoices[i]))
	}
	return out
}

// PaymentDTO is the transport shape for a recorded payment.
type PaymentDTO struct {
	ID               int64               `json:"id"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	InvoiceID        int64               `json:"invoice_id"`
	Invoice          *InvoiceDTO         `json:"invoice,omitempty"`
	MemberID         int64               `json:"member_id"`
	AmountPaid       decimal.Decimal     `json:"amount_paid"`
	Method           enums.PaymentMethod `json:"method"`
	Status           enums.PaymentStatus `json:"status"`
	Notes            *string             `json:"notes,omitempty"`
	PaidAt           time.Time           `json:"paid_at"`
	CreatedAt        time.Time           `json:"created_at"`
}

func PaymentFromModel(p *models.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:               p.ID,
		PaymentReference: p.PaymentReference,
		InvoiceID:        p.InvoiceID,
		Invoice:          InvoiceFromModel(p.Invoice),
		MemberID:         p.MemberID,
		AmountPaid:       p.AmountPaid,
		Method:           p.Method,
		Status:           p.Status,
		Notes:            p.Notes,
		PaidAt:           p.PaidAt,
		CreatedAt:        p.CreatedAt,
	}
}

func PaymentsFromModels(payments []models.Payment) []*PaymentDTO {
	out := make([]*PaymentDTO, 0, len(payments))
	for i := range payments {
		out = append(out, PaymentFromModel(&payments[i]))
	}
	return out
}
