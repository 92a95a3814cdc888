package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dstarsfitness/dstars-backend/pkg/enums"
)

// Invoice snapshots the plan name and price at issuance so later plan edits
// never change what the member owes.
type Invoice struct {
	ID              int64               `gorm:"column:id;primaryKey;autoIncrement"`
	InvoiceNumber   *string             `gorm:"column:invoice_number;uniqueIndex"`
	MemberID        int64               `gorm:"column:member_id;not null;index"`
	Member          *Member             `gorm:"foreignKey:MemberID"`
	PlanName        string              `gorm:"column:plan_name;not null"`
	PlanPrice       decimal.Decimal     `gorm:"column:plan_price;type:numeric(10,2);not null"`
	RegistrationFee decimal.Decimal     `gorm:"column:registration_fee;type:numeric(10,2);not null"`
	TotalAmount     decimal.Decimal     `gorm:"column:total_amount;type:numeric(10,2);not null"`
	Status          enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'pending'"`
	IssuedAt        time.Time           `gorm:"column:issued_at;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
