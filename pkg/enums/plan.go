package enums

import "fmt"

// PlanName identifies a subscription tier.
type PlanName string

const (
	PlanFree  PlanName = "free"
	PlanPayg  PlanName = "payg"
	PlanPro   PlanName = "pro"
	PlanUltra PlanName = "ultra"
)

var validPlanNames = []PlanName{
	PlanFree,
	PlanPayg,
	PlanPro,
	PlanUltra,
}

func (p PlanName) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanName.
func (p PlanName) IsValid() bool {
	for _, candidate := range validPlanNames {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaid reports whether the plan requires a payment.
func (p PlanName) IsPaid() bool {
	return p.IsValid() && p != PlanFree
}

// ExpiryTracked lists the tiers the lifecycle jobs remind and downgrade.
func ExpiryTracked() []PlanName {
	return []PlanName{PlanPro, PlanUltra}
}

// ParsePlanName converts raw input into a PlanName.
func ParsePlanName(value string) (PlanName, error) {
	for _, candidate := range validPlanNames {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan %q", value)
}
