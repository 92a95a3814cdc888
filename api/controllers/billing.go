package controllers

import (
	"net/http"

	"github.com/dstarsfitness/dstars-backend/api/responses"
	"github.com/dstarsfitness/dstars-backend/api/validators"
	"github.com/dstarsfitness/dstars-backend/internal/billing"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
)

type createInvoiceBody struct {
	MemberID int64 `json:"member_id" validate:"required,gt=0"`
}

// CreateInvoice issues the registration invoice from the front desk.
// Re-posting while a pending invoice exists returns that invoice.
func CreateInvoice(svc billing.InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var body createInvoiceBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.CreateForMember(r.Context(), body.MemberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]*billing.InvoiceDTO{
			"invoice": billing.InvoiceFromModel(invoice),
		})
	}
}

// LatestInvoice returns the member's most recent invoice, 404 when the
// member was never invoiced.
func LatestInvoice(svc billing.InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		memberID, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.LatestForMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*billing.InvoiceDTO{"invoice": billing.InvoiceFromModel(invoice)})
	}
}

// RecordPayment captures a front-desk settlement against an invoice.
func RecordPayment(svc billing.PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var body billing.RecordPaymentInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.RecordPayment(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]*billing.PaymentDTO{
			"payment": billing.PaymentFromModel(payment),
		})
	}
}
