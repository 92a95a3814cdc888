package enums

import "fmt"

// PlanDuration is the unit a plan's duration count is expressed in.
type PlanDuration string

const (
	PlanDurationDay   PlanDuration = "day"
	PlanDurationWeek  PlanDuration = "week"
	PlanDurationMonth PlanDuration = "month"
	PlanDurationYear  PlanDuration = "year"
)

var validPlanDurations = []PlanDuration{
	PlanDurationDay,
	PlanDurationWeek,
	PlanDurationMonth,
	PlanDurationYear,
}

// String implements fmt.Stringer.
func (p PlanDuration) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanDuration.
func (p PlanDuration) IsValid() bool {
	for _, candidate := range validPlanDurations {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanDuration converts raw input into a PlanDuration.
func ParsePlanDuration(value string) (PlanDuration, error) {
	for _, candidate := range validPlanDurations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan duration %q", value)
}
