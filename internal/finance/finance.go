// Package finance derives balances, budgets and summaries from a snapshot.
//
// Every function here is pure. Period filters compare linearized month
// indexes, so amounts never leak between equal months of different years.
// Inputs are not validated; negative or zero amounts are summed as given.
package finance

import "finny/internal/core"

// TotalIncome is salary plus other income, or zero without a profile.
func TotalIncome(p *core.Profile) core.Money {
	if p == nil {
		return core.Money{}
	}
	return p.TotalIncome()
}

// TotalFixedExpenses sums active fixed expenses.
func TotalFixedExpenses(fixed []core.FixedExpense) core.Money {
	var total core.Money
	for _, e := range fixed {
		if e.IsActive {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// TemporaryExpensesForMonth sums the installments active in period.
func TemporaryExpensesForMonth(temporary []core.TemporaryExpense, period core.Period) core.Money {
	var total core.Money
	for _, e := range temporary {
		if e.ActiveIn(period) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// VariableExpensesForMonth sums the transactions recorded in period.
func VariableExpensesForMonth(txs []core.Transaction, period core.Period) core.Money {
	var total core.Money
	for _, t := range txs {
		if t.Period().Equal(period) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// LeisureExpensesForMonth sums leisure transactions recorded in period.
func LeisureExpensesForMonth(txs []core.Transaction, period core.Period) core.Money {
	var total core.Money
	for _, t := range txs {
		if t.Category == core.CategoryLeisure && t.Period().Equal(period) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// ExpensesByCategory groups the transactions of period. Every category
// present in the period has an entry, even if it sums to zero.
func ExpensesByCategory(txs []core.Transaction, period core.Period) map[core.Category]core.Money {
	out := make(map[core.Category]core.Money)
	for _, t := range txs {
		if t.Period().Equal(period) {
			out[t.Category] = out[t.Category].Add(t.Amount)
		}
	}
	return out
}

// EffectiveGoal is the explicit goal for period, else the profile savings
// goal, else zero.
func EffectiveGoal(p *core.Profile, goals []core.MonthlyGoal, period core.Period) core.Money {
	for _, g := range goals {
		if g.Period().Equal(period) {
			return g.TargetAmount
		}
	}
	if p == nil {
		return core.Money{}
	}
	return p.SavingsGoal
}

// AnnualProjection is twelve months of the default savings goal.
func AnnualProjection(p *core.Profile) core.Money {
	if p == nil {
		return core.Money{}
	}
	return p.SavingsGoal.MulInt(12)
}

// LeisureBudget returns the profile leisure budget, or zero without a profile.
func LeisureBudget(p *core.Profile) core.Money {
	if p == nil {
		return core.Money{}
	}
	return p.LeisureBudget
}

// Percentage returns part/whole*100 clamped to [0, 100]. A non-positive
// whole yields 0.
func Percentage(part, whole core.Money) float64 {
	if whole.Cents <= 0 {
		return 0
	}
	pct := float64(part.Cents) / float64(whole.Cents) * 100
	return max(0, min(pct, 100))
}
