package finance

import (
	"cmp"
	"slices"

	"finny/internal/core"
)

// Calculator answers period questions about one snapshot. It never
// modifies the snapshot and is safe for concurrent use.
type Calculator struct {
	snap   core.Snapshot
	income core.Money
	fixed  core.Money
}

func New(s core.Snapshot) *Calculator {
	return &Calculator{
		snap:   s,
		income: TotalIncome(s.Profile),
		fixed:  TotalFixedExpenses(s.FixedExpenses),
	}
}

func (c *Calculator) Snapshot() core.Snapshot { return c.snap }

func (c *Calculator) TotalIncome() core.Money        { return c.income }
func (c *Calculator) TotalFixedExpenses() core.Money { return c.fixed }

func (c *Calculator) TemporaryExpenses(p core.Period) core.Money {
	return TemporaryExpensesForMonth(c.snap.TemporaryExpenses, p)
}

func (c *Calculator) VariableExpenses(p core.Period) core.Money {
	return VariableExpensesForMonth(c.snap.Transactions, p)
}

func (c *Calculator) LeisureExpenses(p core.Period) core.Money {
	return LeisureExpensesForMonth(c.snap.Transactions, p)
}

func (c *Calculator) ExpensesByCategory(p core.Period) map[core.Category]core.Money {
	return ExpensesByCategory(c.snap.Transactions, p)
}

// AvailableForMonth is income minus fixed and temporary expenses, before
// any variable spending.
func (c *Calculator) AvailableForMonth(p core.Period) core.Money {
	return c.income.Sub(c.fixed).Sub(c.TemporaryExpenses(p))
}

// MonthlyBalance is what is left after every expense of the month.
func (c *Calculator) MonthlyBalance(p core.Period) core.Money {
	return c.AvailableForMonth(p).Sub(c.VariableExpenses(p))
}

func (c *Calculator) EffectiveGoal(p core.Period) core.Money {
	return EffectiveGoal(c.snap.Profile, c.snap.MonthlyGoals, p)
}

func (c *Calculator) AfterSavingsGoal(p core.Period) core.Money {
	return c.AvailableForMonth(p).Sub(c.EffectiveGoal(p))
}

// RemainingLeisureBudget is negative when the month is over budget.
func (c *Calculator) RemainingLeisureBudget(p core.Period) core.Money {
	return LeisureBudget(c.snap.Profile).Sub(c.LeisureExpenses(p))
}

// LeisureBudgetPercentage is always within [0, 100].
func (c *Calculator) LeisureBudgetPercentage(p core.Period) float64 {
	return Percentage(c.LeisureExpenses(p), LeisureBudget(c.snap.Profile))
}

func (c *Calculator) AnnualProjection() core.Money {
	return AnnualProjection(c.snap.Profile)
}

type MonthStats struct {
	Period            core.Period `json:"-"`
	Month             int         `json:"month"`
	Year              int         `json:"year"`
	Income            core.Money  `json:"income"`
	FixedExpenses     core.Money  `json:"fixedExpenses"`
	TemporaryExpenses core.Money  `json:"temporaryExpenses"`
	VariableExpenses  core.Money  `json:"variableExpenses"`
	LeisureExpenses   core.Money  `json:"leisureExpenses"`
	Balance           core.Money  `json:"balance"`
	Available         core.Money  `json:"available"`
	AfterSavingsGoal  core.Money  `json:"afterSavingsGoal"`
	SavingsGoal       core.Money  `json:"savingsGoal"`
	LeisureBudget     core.Money  `json:"leisureBudget"`
	LeisureRemaining  core.Money  `json:"leisureRemaining"`
	LeisurePercentage float64     `json:"leisurePercentage"`
}

// MonthStats gathers the dashboard figures for p.
func (c *Calculator) MonthStats(p core.Period) MonthStats {
	return MonthStats{
		Period:            p,
		Month:             p.Month,
		Year:              p.Year,
		Income:            c.income,
		FixedExpenses:     c.fixed,
		TemporaryExpenses: c.TemporaryExpenses(p),
		VariableExpenses:  c.VariableExpenses(p),
		LeisureExpenses:   c.LeisureExpenses(p),
		Balance:           c.MonthlyBalance(p),
		Available:         c.AvailableForMonth(p),
		AfterSavingsGoal:  c.AfterSavingsGoal(p),
		SavingsGoal:       c.EffectiveGoal(p),
		LeisureBudget:     LeisureBudget(c.snap.Profile),
		LeisureRemaining:  c.RemainingLeisureBudget(p),
		LeisurePercentage: c.LeisureBudgetPercentage(p),
	}
}

type MonthSummary struct {
	Month    int        `json:"month"`
	Income   core.Money `json:"income"`
	Expenses core.Money `json:"expenses"`
	Balance  core.Money `json:"balance"`
	Goal     core.Money `json:"goal"`
}

type AnnualSummary struct {
	Year                   int            `json:"year"`
	TotalIncome            core.Money     `json:"totalIncome"`
	TotalExpenses          core.Money     `json:"totalExpenses"`
	TotalSaved             core.Money     `json:"totalSaved"`
	AverageMonthlyExpenses core.Money     `json:"averageMonthlyExpenses"`
	AverageMonthlySaved    core.Money     `json:"averageMonthlySaved"`
	Months                 []MonthSummary `json:"monthlyData"`
}

// AnnualSummary rolls up the twelve months of year in order. Income is the
// same every month; averages truncate toward zero to the cent.
func (c *Calculator) AnnualSummary(year int) AnnualSummary {
	out := AnnualSummary{Year: year, Months: make([]MonthSummary, 0, 12)}
	for m := 1; m <= 12; m++ {
		p := core.NewPeriod(m, year)
		expenses := c.fixed.Add(c.TemporaryExpenses(p)).Add(c.VariableExpenses(p))
		balance := c.income.Sub(expenses)

		out.TotalIncome = out.TotalIncome.Add(c.income)
		out.TotalExpenses = out.TotalExpenses.Add(expenses)
		out.TotalSaved = out.TotalSaved.Add(balance)
		out.Months = append(out.Months, MonthSummary{
			Month:    m,
			Income:   c.income,
			Expenses: expenses,
			Balance:  balance,
			Goal:     c.EffectiveGoal(p),
		})
	}
	out.AverageMonthlyExpenses = out.TotalExpenses.DivInt(12)
	out.AverageMonthlySaved = out.TotalSaved.DivInt(12)
	return out
}

type CategoryShare struct {
	Category   core.Category `json:"category"`
	Name       string        `json:"name"`
	Icon       string        `json:"icon"`
	Color      string        `json:"color"`
	Amount     core.Money    `json:"amount"`
	Percentage float64       `json:"percentage"`
}

// CategoryBreakdown lists the categories with positive spending in p,
// largest first, with their share of the month total.
func (c *Calculator) CategoryBreakdown(p core.Period) []CategoryShare {
	byCategory := c.ExpensesByCategory(p)
	var total core.Money
	for _, amount := range byCategory {
		total = total.Add(amount)
	}

	shares := make([]CategoryShare, 0, len(byCategory))
	for category, amount := range byCategory {
		if amount.Cents <= 0 {
			continue
		}
		info := category.Info()
		shares = append(shares, CategoryShare{
			Category:   category,
			Name:       info.Name,
			Icon:       info.Icon,
			Color:      info.Color,
			Amount:     amount,
			Percentage: Percentage(amount, total),
		})
	}
	slices.SortFunc(shares, func(a, b CategoryShare) int {
		if a.Amount.Cents != b.Amount.Cents {
			return cmp.Compare(b.Amount.Cents, a.Amount.Cents)
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return shares
}
