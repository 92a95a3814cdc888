package controllers

import (
	"net/http"
	"strconv"

	"github.com/dstarsfitness/dstars-backend/api/responses"
	"github.com/dstarsfitness/dstars-backend/api/validators"
	"github.com/dstarsfitness/dstars-backend/internal/billing"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
)

// AdminCreateInvoice issues the registration invoice for a verified member.
// Re-posting while a pending invoice exists returns that invoice unchanged.
func AdminCreateInvoice(svc billing.InvoiceService, logg *logger.Logger) http.HandlerFunc {
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

		invoice, err := svc.CreateForMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]*billing.InvoiceDTO{
			"invoice": billing.InvoiceFromModel(invoice),
		})
	}
}

func AdminGetInvoice(svc billing.InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.GetInvoice(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*billing.InvoiceDTO{"invoice": billing.InvoiceFromModel(invoice)})
	}
}

// AdminCancelInvoice voids a pending invoice so the member can be
// re-invoiced later.
func AdminCancelInvoice(svc billing.InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.CancelInvoice(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*billing.InvoiceDTO{"invoice": billing.InvoiceFromModel(invoice)})
	}
}

func AdminListInvoices(svc billing.InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var filter billing.InvoiceFilter
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := enums.InvoiceStatus(raw)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice status"))
				return
			}
			filter.Status = &status
		}
		memberID, err := queryID(r, "member_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.MemberID = memberID

		limit, err := validators.ParseQueryInt(r, "limit", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListInvoices(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"invoices":    billing.InvoicesFromModels(page.Invoices),
			"next_cursor": page.NextCursor,
		})
	}
}

func AdminGetPayment(svc billing.PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.GetPayment(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*billing.PaymentDTO{"payment": billing.PaymentFromModel(payment)})
	}
}

func AdminListPayments(svc billing.PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var filter billing.PaymentFilter
		if raw := r.URL.Query().Get("method"); raw != "" {
			method := enums.PaymentMethod(raw)
			if !method.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method"))
				return
			}
			filter.Method = &method
		}
		memberID, err := queryID(r, "member_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.MemberID = memberID

		limit, err := validators.ParseQueryInt(r, "limit", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPayments(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"payments":    billing.PaymentsFromModels(page.Payments),
			"next_cursor": page.NextCursor,
		})
	}
}

// AdminFinanceSummary serves the revenue dashboard.
func AdminFinanceSummary(svc billing.SummaryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		summary, err := svc.Summary(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*billing.Summary{"summary": summary})
	}
}

// queryID parses an optional numeric query parameter.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name)
	}
	return &id, nil
}
