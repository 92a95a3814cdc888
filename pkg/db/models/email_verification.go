package models

import "time"

// EmailVerification holds the active challenge for a back-office account.
// One row per account, replaced on every resend.
type EmailVerification struct {
	ID                int64      `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID         int64      `gorm:"column:account_id;not null;uniqueIndex"`
	Account           *Account   `gorm:"foreignKey:AccountID"`
	CodeHash          string     `gorm:"column:code_hash;not null"`
	ExpiresAt         time.Time  `gorm:"column:expires_at;not null"`
	ResendAvailableAt *time.Time `gorm:"column:resend_available_at"`
	Attempts          int        `gorm:"column:attempts;not null;default:0"`
	LastSentAt        *time.Time `gorm:"column:last_sent_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
