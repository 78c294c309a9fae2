package storage

import (
	"database/sql"
	"fmt"
	"time"

	"finny/internal/core"
)

// Row types mirror the snake_case tables. Conversions to and from core
// records live only here.

type profileRow struct {
	ID                     string
	Name                   string
	CreatedAt              string
	HasCompletedOnboarding bool
	SalaryCents            int64
	OtherIncomeCents       int64
	PayDay                 int
	HasAdvance             bool
	AdvanceDay             int
	SavingsGoalCents       int64
	LeisureBudgetCents     int64
	Plan                   string
	SubscriptionStatus     string
	TrialEndsAt            sql.NullString
	PlanExpiresAt          sql.NullString
}

type fixedExpenseRow struct {
	ID          string
	Name        string
	AmountCents int64
	Category    string
	IsActive    bool
}

type temporaryExpenseRow struct {
	ID          string
	Name        string
	AmountCents int64
	Category    string
	StartMonth  int
	StartYear   int
	EndMonth    int
	EndYear     int
}

type transactionRow struct {
	ID          string
	Description string
	AmountCents int64
	Category    string
	Date        string
	Month       int
	Year        int
	CreatedAt   string
}

type monthlyGoalRow struct {
	Month             int
	Year              int
	TargetAmountCents int64
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toProfileRow(p core.Profile) profileRow {
	plan := string(p.Plan)
	if plan == "" {
		plan = string(core.PlanFree)
	}
	status := string(p.SubscriptionStatus)
	if status == "" {
		status = string(core.StatusNone)
	}
	return profileRow{
		ID:                     p.ID,
		Name:                   p.Name,
		CreatedAt:              formatTime(p.CreatedAt),
		HasCompletedOnboarding: p.HasCompletedOnboarding,
		SalaryCents:            p.Salary.Cents,
		OtherIncomeCents:       p.OtherIncome.Cents,
		PayDay:                 p.PayDay,
		HasAdvance:             p.HasAdvance,
		AdvanceDay:             p.AdvanceDay,
		SavingsGoalCents:       p.SavingsGoal.Cents,
		LeisureBudgetCents:     p.LeisureBudget.Cents,
		Plan:                   plan,
		SubscriptionStatus:     status,
		TrialEndsAt:            nullTime(p.TrialEndsAt),
		PlanExpiresAt:          nullTime(p.PlanExpiresAt),
	}
}

func (r profileRow) toCore() (core.Profile, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return core.Profile{}, err
	}
	trial, err := parseNullTime(r.TrialEndsAt)
	if err != nil {
		return core.Profile{}, err
	}
	expires, err := parseNullTime(r.PlanExpiresAt)
	if err != nil {
		return core.Profile{}, err
	}
	return core.Profile{
		ID:                     r.ID,
		Name:                   r.Name,
		CreatedAt:              created,
		HasCompletedOnboarding: r.HasCompletedOnboarding,
		Salary:                 core.Money{Cents: r.SalaryCents},
		OtherIncome:            core.Money{Cents: r.OtherIncomeCents},
		PayDay:                 r.PayDay,
		HasAdvance:             r.HasAdvance,
		AdvanceDay:             r.AdvanceDay,
		SavingsGoal:            core.Money{Cents: r.SavingsGoalCents},
		LeisureBudget:          core.Money{Cents: r.LeisureBudgetCents},
		Plan:                   core.PlanTier(r.Plan),
		SubscriptionStatus:     core.SubscriptionStatus(r.SubscriptionStatus),
		TrialEndsAt:            trial,
		PlanExpiresAt:          expires,
	}, nil
}

func toFixedExpenseRow(e core.FixedExpense) fixedExpenseRow {
	return fixedExpenseRow{ID: e.ID, Name: e.Name, AmountCents: e.Amount.Cents, Category: string(e.Category), IsActive: e.IsActive}
}

func (r fixedExpenseRow) toCore() core.FixedExpense {
	return core.FixedExpense{
		ID:       r.ID,
		Name:     r.Name,
		Amount:   core.Money{Cents: r.AmountCents},
		Category: core.Category(r.Category),
		IsActive: r.IsActive,
	}
}

func toTemporaryExpenseRow(e core.TemporaryExpense) temporaryExpenseRow {
	return temporaryExpenseRow{
		ID:          e.ID,
		Name:        e.Name,
		AmountCents: e.Amount.Cents,
		Category:    string(e.Category),
		StartMonth:  e.StartMonth,
		StartYear:   e.StartYear,
		EndMonth:    e.EndMonth,
		EndYear:     e.EndYear,
	}
}

func (r temporaryExpenseRow) toCore() core.TemporaryExpense {
	return core.TemporaryExpense{
		ID:         r.ID,
		Name:       r.Name,
		Amount:     core.Money{Cents: r.AmountCents},
		Category:   core.Category(r.Category),
		StartMonth: r.StartMonth,
		StartYear:  r.StartYear,
		EndMonth:   r.EndMonth,
		EndYear:    r.EndYear,
	}
}

func toTransactionRow(t core.Transaction) transactionRow {
	return transactionRow{
		ID:          t.ID,
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Category:    string(t.Category),
		Date:        t.Date.String(),
		Month:       t.Month,
		Year:        t.Year,
		CreatedAt:   formatTime(t.CreatedAt),
	}
}

func (r transactionRow) toCore() (core.Transaction, error) {
	var date core.Date
	if r.Date != "" {
		d, err := core.ParseDate(r.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		date = d
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          r.ID,
		Description: r.Description,
		Amount:      core.Money{Cents: r.AmountCents},
		Category:    core.Category(r.Category),
		Date:        date,
		Month:       r.Month,
		Year:        r.Year,
		CreatedAt:   created,
	}, nil
}

func toMonthlyGoalRow(g core.MonthlyGoal) monthlyGoalRow {
	return monthlyGoalRow{Month: g.Month, Year: g.Year, TargetAmountCents: g.TargetAmount.Cents}
}

func (r monthlyGoalRow) toCore() core.MonthlyGoal {
	return core.MonthlyGoal{Month: r.Month, Year: r.Year, TargetAmount: core.Money{Cents: r.TargetAmountCents}}
}
