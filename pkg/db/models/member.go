package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/enums"
)

// Member is the canonical gym member record. The verification challenge and
// the card download token live inline so a single row lock covers the whole
// verification flow.
type Member struct {
	ID               int64              `gorm:"column:id;primaryKey;autoIncrement"`
	MembershipID     *string            `gorm:"column:membership_id;uniqueIndex"`
	FullName         string             `gorm:"column:full_name;not null"`
	Email            string             `gorm:"column:email;not null;index"`
	Phone            *string            `gorm:"column:phone"`
	Status           enums.MemberStatus `gorm:"column:status;type:member_status;not null;default:'active'"`
	MembershipPlanID *int64             `gorm:"column:membership_plan_id;index"`
	MembershipPlan   *MembershipPlan    `gorm:"foreignKey:MembershipPlanID"`
	IsVerified       bool               `gorm:"column:is_verified;not null;default:false"`
	VerifiedAt       *time.Time         `gorm:"column:verified_at"`

	// Email verification challenge. Only the hash of the code is stored.
	VerificationCodeHash  *string    `gorm:"column:verification_code_hash"`
	VerificationExpiresAt *time.Time `gorm:"column:verification_expires_at"`
	VerificationAttempts  int        `gorm:"column:verification_attempts;not null;default:0"`
	ResendAvailableAt     *time.Time `gorm:"column:resend_available_at"`

	// Card download token, single active token per member.
	DownloadTokenHash      *string    `gorm:"column:download_token_hash"`
	DownloadTokenExpiresAt *time.Time `gorm:"column:download_token_expires_at"`
	VirtualCardPath        *string    `gorm:"column:virtual_card_path"`

	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
