package members

import (
	"time"

	"github.com/dstarsfitness/dstars-backend/internal/plans"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
)

// MemberDTO is the transport shape that omits the verification challenge
// and download token hashes.
type MemberDTO struct {
	ID           int64              `json:"id"`
	MembershipID *string            `json:"membership_id,omitempty"`
	FullName     string             `json:"full_name"`
	Email        string             `json:"email"`
	Phone        *string            `json:"phone,omitempty"`
	Status       enums.MemberStatus `json:"status"`
	Plan         *plans.PlanDTO     `json:"plan,omitempty"`
	IsVerified   bool               `json:"is_verified"`
	VerifiedAt   *time.Time         `json:"verified_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func FromModel(m *models.Member) *MemberDTO {
	if m == nil {
		return nil
	}
	return &MemberDTO{
		ID:           m.ID,
		MembershipID: m.MembershipID,
		FullName:     m.FullName,
		Email:        m.Email,
		Phone:        m.Phone,
		Status:       m.Status,
		Plan:         plans.FromModel(m.MembershipPlan),
		IsVerified:   m.IsVerified,
		VerifiedAt:   m.VerifiedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func FromModels(membersList []models.Member) []*MemberDTO {
	out := make([]*MemberDTO, 0, len(membersList))
	for i := range membersList {
		out = append(out, FromModel(&membersList[i]))
	}
	return out
}
