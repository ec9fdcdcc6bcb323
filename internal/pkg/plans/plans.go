package plans

import (
	"errors"
	"strings"
)

// Plan identifiers. The set is closed; unknown identifiers are an error and
// are never defaulted so a typo can't grant entitlements.
const (
	PlanFree   = "free"
	PlanPro    = "pro"
	PlanAgency = "agency"
)

// PlanDurationDays is the length of one paid plan period.
const PlanDurationDays = 30

var ErrUnknownPlan = errors.New("unknown plan")

// Policy describes the entitlements of one plan. Pure data, no side effects.
type Policy struct {
	ID                   string
	Name                 string
	MonthlyQuota         int
	MaxVariantsPerJob    int
	MaxFaceswapsPerMonth int
	WatermarkRemoval     bool
	PriceUSD             float64
	DurationDays         int
}

// IsPaid reports whether the plan has a nonzero price.
func (p Policy) IsPaid() bool {
	return p.PriceUSD > 0
}

var policies = map[string]Policy{
	PlanFree: {
		ID:                   PlanFree,
		Name:                 "Free",
		MonthlyQuota:         5,
		MaxVariantsPerJob:    10,
		MaxFaceswapsPerMonth: 2,
		WatermarkRemoval:     false,
		PriceUSD:             0,
		DurationDays:         PlanDurationDays,
	},
	PlanPro: {
		ID:                   PlanPro,
		Name:                 "Pro",
		MonthlyQuota:         100,
		MaxVariantsPerJob:    10000,
		MaxFaceswapsPerMonth: 50,
		WatermarkRemoval:     true,
		PriceUSD:             89,
		DurationDays:         PlanDurationDays,
	},
	PlanAgency: {
		ID:                   PlanAgency,
		Name:                 "Agency",
		MonthlyQuota:         10000,
		MaxVariantsPerJob:    10000,
		MaxFaceswapsPerMonth: 10000,
		WatermarkRemoval:     true,
		PriceUSD:             169,
		DurationDays:         PlanDurationDays,
	},
}

// ByID resolves a plan identifier to its policy. Matching is
// case-insensitive; unknown plans return ErrUnknownPlan.
func ByID(id string) (Policy, error) {
	p, ok := policies[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Policy{}, ErrUnknownPlan
	}
	return p, nil
}

// Free returns the free plan policy.
func Free() Policy {
	return policies[PlanFree]
}

// IsKnown reports whether id names a configured plan.
func IsKnown(id string) bool {
	_, ok := policies[strings.ToLower(strings.TrimSpace(id))]
	return ok
}
