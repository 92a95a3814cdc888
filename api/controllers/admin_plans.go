package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dstarsfitness/dstars-backend/api/responses"
	"github.com/dstarsfitness/dstars-backend/api/validators"
	"github.com/dstarsfitness/dstars-backend/internal/plans"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
)

type createPlanBody struct {
	Name          string             `json:"name" validate:"required,max=120"`
	Description   *string            `json:"description,omitempty" validate:"omitempty,max=1000"`
	Price         decimal.Decimal    `json:"price" validate:"required"`
	Duration      enums.PlanDuration `json:"duration" validate:"required"`
	DurationCount int                `json:"duration_count"`
	Features      []string           `json:"features,omitempty" validate:"omitempty,max=10,dive,max=200"`
}

type updatePlanBody struct {
	Name          *string             `json:"name,omitempty" validate:"omitempty,max=120"`
	Description   *string             `json:"description,omitempty" validate:"omitempty,max=1000"`
	Price         *decimal.Decimal    `json:"price,omitempty"`
	Duration      *enums.PlanDuration `json:"duration,omitempty"`
	DurationCount *int                `json:"duration_count,omitempty"`
	Status        *enums.PlanStatus   `json:"status,omitempty"`
	Features      []string            `json:"features,omitempty" validate:"omitempty,max=10,dive,max=200"`
}

// AdminListPlans lists the catalog including inactive plans when requested.
func AdminListPlans(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}

		includeInactive := r.URL.Query().Get("include_inactive") == "true"
		result, err := svc.ListPlans(r.Context(), includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"plans": plans.FromModels(result)})
	}
}

func AdminGetPlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.GetPlan(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*plans.PlanDTO{"plan": plans.FromModel(plan)})
	}
}

func AdminCreatePlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}

		var body createPlanBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.CreatePlan(r.Context(), plans.CreatePlanInput{
			Name:          body.Name,
			Description:   body.Description,
			Price:         body.Price,
			Duration:      body.Duration,
			DurationCount: body.DurationCount,
			Features:      body.Features,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]*plans.PlanDTO{"plan": plans.FromModel(plan)})
	}
}

func AdminUpdatePlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updatePlanBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.UpdatePlan(r.Context(), id, plans.UpdatePlanInput{
			Name:          body.Name,
			Description:   body.Description,
			Price:         body.Price,
			Duration:      body.Duration,
			DurationCount: body.DurationCount,
			Status:        body.Status,
			Features:      body.Features,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*plans.PlanDTO{"plan": plans.FromModel(plan)})
	}
}

func AdminDeletePlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeletePlan(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
