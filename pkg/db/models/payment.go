package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dstarsfitness/dstars-backend/pkg/enums"
)

// Payment records a settled invoice. The unique index on InvoiceID enforces
// at most one payment per invoice at the database level.
type Payment struct {
	ID               int64               `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentReference *string             `gorm:"column:payment_reference;uniqueIndex"`
	InvoiceID        int64               `gorm:"column:invoice_id;not null;uniqueIndex"`
	Invoice          *Invoice            `gorm:"foreignKey:InvoiceID"`
	MemberID         int64               `gorm:"column:member_id;not null;index"`
	AmountPaid       decimal.Decimal     `gorm:"column:amount_paid;type:numeric(10,2);not null"`
	Method           enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'recorded'"`
	Notes            *string             `gorm:"column:notes"`
	PaidAt           time.Time           `gorm:"column:paid_at;not null"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
