package core

import "fmt"

// PlanTier is the subscription level that gates record limits.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanPremium PlanTier = "premium"
)

// ParsePlanTier never guesses: anything other than free or premium is an error.
func ParsePlanTier(s string) (PlanTier, error) {
	switch PlanTier(s) {
	case PlanFree, PlanPremium:
		return PlanTier(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlanTier, s)
}

func (t PlanTier) Valid() bool {
	return t == PlanFree || t == PlanPremium
}

type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPastDue  SubscriptionStatus = "past_due"
)

func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch SubscriptionStatus(s) {
	case StatusNone, StatusTrialing, StatusActive, StatusCanceled, StatusPastDue:
		return SubscriptionStatus(s), nil
	case "":
		return StatusNone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}
