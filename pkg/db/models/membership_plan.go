package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dstarsfitness/dstars-backend/pkg/enums"
)

// MembershipPlan captures a purchasable gym plan.
type MembershipPlan struct {
	ID            int64              `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string             `gorm:"column:name;not null"`
	Slug          string             `gorm:"column:slug;not null;uniqueIndex"`
	Description   *string            `gorm:"column:description"`
	Price         decimal.Decimal    `gorm:"column:price;type:numeric(10,2);not null"`
	Duration      enums.PlanDuration `gorm:"column:duration;type:plan_duration;not null"`
	DurationCount int                `gorm:"column:duration_count;not null;default:1"`
	Status        enums.PlanStatus   `gorm:"column:status;type:plan_status;not null;default:'active'"`
	Features      pq.StringArray     `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
