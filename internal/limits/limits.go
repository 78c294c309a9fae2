// Package limits holds the per-plan record limits and usage arithmetic.
package limits

import (
	"encoding/json"
	"fmt"

	"finny/internal/core"
)

// NearLimitPercentage is the usage percentage from which a limit counts as near.
const NearLimitPercentage = 80

// Limit is either Bounded(n) or Unbounded.
type Limit struct {
	n         int
	unbounded bool
}

func Bounded(n int) Limit { return Limit{n: n} }
func Unbounded() Limit    { return Limit{unbounded: true} }

func (l Limit) IsUnbounded() bool { return l.unbounded }

// Value returns the bound; ok is false for an unbounded limit.
func (l Limit) Value() (n int, ok bool) {
	if l.unbounded {
		return 0, false
	}
	return l.n, true
}

func (l Limit) String() string {
	if l.unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%d", l.n)
}

// MarshalJSON writes null for unbounded limits.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unbounded {
		return []byte("null"), nil
	}
	return json.Marshal(l.n)
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Unbounded()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = Bounded(n)
	return nil
}

// Kind names a limited resource.
type Kind string

const (
	KindTransaction      Kind = "transaction"
	KindFixedExpense     Kind = "fixedExpense"
	KindTemporaryExpense Kind = "temporaryExpense"
	KindHistory          Kind = "history"
)

// Limits is the row of the plan table for one tier.
type Limits struct {
	TransactionsPerMonth Limit `json:"transactionsPerMonth"`
	FixedExpenses        Limit `json:"fixedExpenses"`
	TemporaryExpenses    Limit `json:"temporaryExpenses"`
	HistoryMonths        Limit `json:"historyMonths"`
}

var table = map[core.PlanTier]Limits{
	core.PlanFree: {
		TransactionsPerMonth: Bounded(30),
		FixedExpenses:        Bounded(5),
		TemporaryExpenses:    Bounded(3),
		HistoryMonths:        Bounded(3),
	},
	core.PlanPremium: {
		TransactionsPerMonth: Unbounded(),
		FixedExpenses:        Unbounded(),
		TemporaryExpenses:    Unbounded(),
		HistoryMonths:        Unbounded(),
	},
}

// For returns the limits of tier. Unknown tiers fail with core.ErrInvalidPlanTier.
func For(tier core.PlanTier) (Limits, error) {
	l, ok := table[tier]
	if !ok {
		return Limits{}, fmt.Errorf("%w: %q", core.ErrInvalidPlanTier, tier)
	}
	return l, nil
}

func (l Limits) Of(kind Kind) (Limit, error) {
	switch kind {
	case KindTransaction:
		return l.TransactionsPerMonth, nil
	case KindFixedExpense:
		return l.FixedExpenses, nil
	case KindTemporaryExpense:
		return l.TemporaryExpenses, nil
	case KindHistory:
		return l.HistoryMonths, nil
	}
	return Limit{}, fmt.Errorf("unknown limit kind %q", kind)
}

func LimitFor(tier core.PlanTier, kind Kind) (Limit, error) {
	l, err := For(tier)
	if err != nil {
		return Limit{}, err
	}
	return l.Of(kind)
}

// CanAdd reports whether one more record of kind fits under the tier limit
// given currentCount existing records.
func CanAdd(kind Kind, tier core.PlanTier, currentCount int) (bool, error) {
	limit, err := LimitFor(tier, kind)
	if err != nil {
		return false, err
	}
	n, ok := limit.Value()
	if !ok {
		return true, nil
	}
	return currentCount < n, nil
}

// UsagePercentage is round(used/limit*100) clamped to [0, 100]. Unbounded
// limits report 0 and a bounded zero limit reports 100.
func UsagePercentage(used int, limit Limit) int {
	n, ok := limit.Value()
	if !ok {
		return 0
	}
	if used <= 0 {
		if n <= 0 {
			return 100
		}
		return 0
	}
	if n <= 0 {
		return 100
	}
	pct := (used*200 + n) / (2 * n)
	return min(pct, 100)
}

func IsNearLimit(used int, limit Limit) bool {
	if limit.IsUnbounded() {
		return false
	}
	return UsagePercentage(used, limit) >= NearLimitPercentage
}

func HasReachedLimit(used int, limit Limit) bool {
	n, ok := limit.Value()
	if !ok {
		return false
	}
	return used >= n
}

// CanExport reports whether tier may download its records.
func CanExport(tier core.PlanTier) (bool, error) {
	if _, err := For(tier); err != nil {
		return false, err
	}
	return tier == core.PlanPremium, nil
}
