package limits

import "finny/internal/core"

// Usage describes one limited resource for display and upgrade prompts.
type Usage struct {
	Used         int   `json:"used"`
	Limit        Limit `json:"limit"`
	Percentage   int   `json:"percentage"`
	NearLimit    bool  `json:"isNearLimit"`
	ReachedLimit bool  `json:"hasReachedLimit"`
}

func NewUsage(used int, limit Limit) Usage {
	return Usage{
		Used:         used,
		Limit:        limit,
		Percentage:   UsagePercentage(used, limit),
		NearLimit:    IsNearLimit(used, limit),
		ReachedLimit: HasReachedLimit(used, limit),
	}
}

type UsageReport struct {
	Plan              core.PlanTier `json:"plan"`
	IsPremium         bool          `json:"isPremium"`
	Transactions      Usage         `json:"transactions"`
	FixedExpenses     Usage         `json:"fixedExpenses"`
	TemporaryExpenses Usage         `json:"temporaryExpenses"`
	HistoryMonths     Limit         `json:"historyMonths"`
	AnyNearLimit      bool          `json:"anyLimitNear"`
	AnyReachedLimit   bool          `json:"anyLimitReached"`
	CanExport         bool          `json:"canExport"`
}

// Report counts the snapshot against the tier limits. Transactions are
// counted for period, fixed expenses only while active, temporary expenses
// regardless of their range.
func Report(tier core.PlanTier, s core.Snapshot, period core.Period) (UsageReport, error) {
	l, err := For(tier)
	if err != nil {
		return UsageReport{}, err
	}
	r := UsageReport{
		Plan:              tier,
		IsPremium:         tier == core.PlanPremium,
		Transactions:      NewUsage(s.TransactionCount(period), l.TransactionsPerMonth),
		FixedExpenses:     NewUsage(s.ActiveFixedCount(), l.FixedExpenses),
		TemporaryExpenses: NewUsage(len(s.TemporaryExpenses), l.TemporaryExpenses),
		HistoryMonths:     l.HistoryMonths,
	}
	r.AnyNearLimit = r.Transactions.NearLimit || r.FixedExpenses.NearLimit || r.TemporaryExpenses.NearLimit
	r.AnyReachedLimit = r.Transactions.ReachedLimit || r.FixedExpenses.ReachedLimit || r.TemporaryExpenses.ReachedLimit
	r.CanExport = r.IsPremium
	return r, nil
}

// CountFor returns the current count that CanAdd compares for kind.
func CountFor(kind Kind, s core.Snapshot, period core.Period) int {
	switch kind {
	case KindTransaction:
		return s.TransactionCount(period)
	case KindFixedExpense:
		return s.ActiveFixedCount()
	case KindTemporaryExpense:
		return len(s.TemporaryExpenses)
	}
	return 0
}

// HistoryCutoff returns the oldest period tier may view from now. ok is
// false when history is unbounded.
func HistoryCutoff(tier core.PlanTier, now core.Period) (core.Period, bool, error) {
	limit, err := LimitFor(tier, KindHistory)
	if err != nil {
		return core.Period{}, false, err
	}
	n, ok := limit.Value()
	if !ok {
		return core.Period{}, false, nil
	}
	return now.AddMonths(-n), true, nil
}
