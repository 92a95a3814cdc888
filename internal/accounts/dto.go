package accounts

import (
	"time"

	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
)

// AccountDTO is the transport shape that omits the password hash.
type AccountDTO struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	IsVerified  bool       `json:"is_verified"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func FromModel(a *models.Account) *AccountDTO {
	if a == nil {
		return nil
	}
	return &AccountDTO{
		ID:          a.ID,
		Email:       a.Email,
		FullName:    a.FullName,
		IsVerified:  a.IsVerified,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}
