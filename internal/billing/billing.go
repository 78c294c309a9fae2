// Package billing turns normalized subscription events into profile plan
// changes and decides which tier a profile is entitled to right now.
package billing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"finny/internal/core"
)

type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.completed"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventPaymentFailed       EventType = "payment.failed"
)

var ErrUnknownEvent = errors.New("unknown billing event")

// Event is a provider-neutral subscription change for one user. Status is
// the provider subscription status where the event carries one.
type Event struct {
	Type             EventType
	UserID           string
	Status           string
	TrialEnd         *time.Time
	CurrentPeriodEnd *time.Time
}

func (e Event) Validate() error {
	if e.UserID == "" {
		return errors.New("billing event without user")
	}
	switch e.Type {
	case EventCheckoutCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted, EventPaymentFailed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
}

// Apply returns p after the event. p is not modified.
func Apply(p core.Profile, e Event) (core.Profile, error) {
	if err := e.Validate(); err != nil {
		return p, err
	}
	switch e.Type {
	case EventCheckoutCompleted:
		p.Plan = core.PlanPremium
		p.SubscriptionStatus = core.StatusActive
		if e.Status == string(core.StatusTrialing) {
			p.SubscriptionStatus = core.StatusTrialing
		}
		p.TrialEndsAt = copyTime(e.TrialEnd)
		p.PlanExpiresAt = copyTime(e.CurrentPeriodEnd)
	case EventSubscriptionUpdated:
		p.SubscriptionStatus = mapStatus(e.Status)
		p.Plan = core.PlanFree
		if p.SubscriptionStatus == core.StatusActive || p.SubscriptionStatus == core.StatusTrialing {
			p.Plan = core.PlanPremium
		}
		p.TrialEndsAt = copyTime(e.TrialEnd)
		p.PlanExpiresAt = copyTime(e.CurrentPeriodEnd)
	case EventSubscriptionDeleted:
		p.SubscriptionStatus = core.StatusCanceled
		p.Plan = core.PlanFree
	case EventPaymentFailed:
		p.SubscriptionStatus = core.StatusPastDue
	}
	return p, nil
}

// mapStatus folds provider statuses we do not track into none.
func mapStatus(s string) core.SubscriptionStatus {
	switch core.SubscriptionStatus(s) {
	case core.StatusTrialing, core.StatusActive, core.StatusCanceled, core.StatusPastDue:
		return core.SubscriptionStatus(s)
	}
	return core.StatusNone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := t.UTC()
	return &c
}

// EffectiveTier is the tier limits should use at now. A stored premium plan
// only counts while the subscription is active, or trialing with a trial
// end in the future, and the paid period has not expired.
func EffectiveTier(p core.Profile, now time.Time) (core.PlanTier, error) {
	tier, err := p.Tier()
	if err != nil {
		return "", err
	}
	if tier != core.PlanPremium {
		return core.PlanFree, nil
	}
	if !subscriptionActive(p, now) {
		return core.PlanFree, nil
	}
	if p.PlanExpiresAt != nil && !p.PlanExpiresAt.After(now) {
		return core.PlanFree, nil
	}
	return core.PlanPremium, nil
}

func subscriptionActive(p core.Profile, now time.Time) bool {
	switch p.SubscriptionStatus {
	case core.StatusActive:
		return true
	case core.StatusTrialing:
		return p.TrialEndsAt != nil && p.TrialEndsAt.After(now)
	}
	return false
}

// Subscription is the read model shown on the account page.
type Subscription struct {
	Plan               core.PlanTier           `json:"plan"`
	EffectivePlan      core.PlanTier           `json:"effectivePlan"`
	SubscriptionStatus core.SubscriptionStatus `json:"subscriptionStatus"`
	TrialEndsAt        *time.Time              `json:"trialEndsAt"`
	PlanExpiresAt      *time.Time              `json:"planExpiresAt"`
	IsActive           bool                    `json:"isActive"`
	DaysRemaining      *int                    `json:"daysRemaining"`
}

// View summarizes p at now. DaysRemaining is only set while trialing and
// rounds partial days up.
func View(p core.Profile, now time.Time) Subscription {
	plan, err := p.Tier()
	if err != nil {
		plan = p.Plan
	}
	effective, err := EffectiveTier(p, now)
	if err != nil {
		effective = core.PlanFree
	}
	status := p.SubscriptionStatus
	if status == "" {
		status = core.StatusNone
	}
	v := Subscription{
		Plan:               plan,
		EffectivePlan:      effective,
		SubscriptionStatus: status,
		TrialEndsAt:        p.TrialEndsAt,
		PlanExpiresAt:      p.PlanExpiresAt,
		IsActive:           subscriptionActive(p, now),
	}
	if status == core.StatusTrialing && p.TrialEndsAt != nil {
		days := int(math.Ceil(p.TrialEndsAt.Sub(now).Hours() / 24))
		v.DaysRemaining = &days
	}
	return v
}
