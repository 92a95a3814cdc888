package plans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
)

// PlanDTO is the transport shape for a membership plan.
type PlanDTO struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name"`
	Slug          string             `json:"slug"`
	Description   *string            `json:"description,omitempty"`
	Price         decimal.Decimal    `json:"price"`
	Duration      enums.PlanDuration `json:"duration"`
	DurationCount int                `json:"duration_count"`
	Status        enums.PlanStatus   `json:"status"`
	Features      []string           `json:"features"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func FromModel(p *models.MembershipPlan) *PlanDTO {
	if p == nil {
		return nil
	}
	features := make([]string, len(p.Features))
	copy(features, p.Features)
	return &PlanDTO{
		ID:            p.ID,
		Name:          p.Name,
		Slug:          p.Slug,
		Description:   p.Description,
		Price:         p.Price,
		Duration:      p.Duration,
		DurationCount: p.DurationCount,
		Status:        p.Status,
		Features:      features,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func FromModels(plans []models.MembershipPlan) []*PlanDTO {
	out := make([]*PlanDTO, 0, len(plans))
	for i := range plans {
		out = append(out, FromModel(&plans[i]))
	}
	return out
}
