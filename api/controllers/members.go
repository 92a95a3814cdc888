package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dstarsfitness/dstars-backend/api/middleware"
	"github.com/dstarsfitness/dstars-backend/api/responses"
	"github.com/dstarsfitness/dstars-backend/api/validators"
	"github.com/dstarsfitness/dstars-backend/internal/members"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
)

type verifyEmailBody struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

type resendCodeBody struct {
	Email string `json:"email" validate:"required,email"`
}

// cooldownKey scopes resend cooldowns to the email and caller address pair,
// so one client cannot burn another email's budget and vice versa.
func cooldownKey(email string, r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + middleware.ClientIP(r)
}

// Register starts the enrollment pipeline for a new gym member.
func Register(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "members service unavailable"))
			return
		}

		var body members.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.Register(r.Context(), body, cooldownKey(body.Email, r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]*members.MemberDTO{
			"member": members.FromModel(member),
		})
	}
}

// VerifyEmail consumes a verification code and hands back a card download
// token on success.
func VerifyEmail(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "members service unavailable"))
			return
		}

		var body verifyEmailBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyEmail(r.Context(), body.Email, body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"member":         members.FromModel(result.Member),
			"download_token": result.DownloadToken,
		})
	}
}

// ResendCode re-sends the verification email. The response is identical for
// unknown and already verified emails.
func ResendCode(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "members service unavailable"))
			return
		}

		var body resendCodeBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ResendCode(r.Context(), body.Email, cooldownKey(body.Email, r)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}

// GetVirtualCard streams the member's PDF card. The download token arrives
// as a query parameter so the link works from an email client.
func GetVirtualCard(svc members.CardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		memberID, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pdfBytes, err := svc.GetVirtualCard(r.Context(), memberID, r.URL.Query().Get("token"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="membership-card.pdf"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
		w.WriteHeader(http.StatusOK)
		w.Write(pdfBytes)
	}
}

// ValidateCard answers QR scans against a signed card token.
func ValidateCard(svc members.CardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		result, err := svc.Validate(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*members.ValidationResult{"member": result})
	}
}

// pathID parses a numeric chi URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name)
	}
	return id, nil
}
