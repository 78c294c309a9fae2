package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxDescriptionLength = 200
	dateLayout           = "2006-01-02"
)

type (
	// Date is a calendar day in UTC, encoded as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	Profile struct {
		ID                     string             `json:"id"`
		Name                   string             `json:"name"`
		CreatedAt              time.Time          `json:"createdAt"`
		HasCompletedOnboarding bool               `json:"hasCompletedOnboarding"`
		Salary                 Money              `json:"salary"`
		OtherIncome            Money              `json:"otherIncome"`
		PayDay                 int                `json:"payDay"`
		HasAdvance             bool               `json:"hasAdvance"`
		AdvanceDay             int                `json:"advanceDay"`
		SavingsGoal            Money              `json:"savingsGoal"`
		LeisureBudget          Money              `json:"leisureBudget"`
		Plan                   PlanTier           `json:"plan,omitempty"`
		SubscriptionStatus     SubscriptionStatus `json:"subscriptionStatus,omitempty"`
		TrialEndsAt            *time.Time         `json:"trialEndsAt,omitempty"`
		PlanExpiresAt          *time.Time         `json:"planExpiresAt,omitempty"`
	}

	// FixedExpense recurs every month while active.
	FixedExpense struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Amount   Money    `json:"amount"`
		Category Category `json:"category"`
		IsActive bool     `json:"isActive"`
	}

	// TemporaryExpense charges Amount every month of the inclusive range
	// from the start period to the end period.
	TemporaryExpense struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		Amount     Money    `json:"amount"`
		Category   Category `json:"category"`
		StartMonth int      `json:"startMonth"`
		StartYear  int      `json:"startYear"`
		EndMonth   int      `json:"endMonth"`
		EndYear    int      `json:"endYear"`
	}

	// Transaction is a single variable expense. Month and Year repeat the
	// period of Date.
	Transaction struct {
		ID          string    `json:"id"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Category    Category  `json:"category"`
		Date        Date      `json:"date"`
		Month       int       `json:"month"`
		Year        int       `json:"year"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// MonthlyGoal overrides the profile savings goal for one period.
	MonthlyGoal struct {
		Month        int   `json:"month"`
		Year         int   `json:"year"`
		TargetAmount Money `json:"targetAmount"`
	}
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidYear         = errors.New("invalid year")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNegativeAmount      = errors.New("amount cannot be negative")
	ErrEmptyDescription    = errors.New("empty description")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
	ErrEmptyName           = errors.New("empty name")
	ErrInvalidCategory     = errors.New("invalid category")
	ErrInvalidDate         = errors.New("invalid date")
	ErrDatePeriodMismatch  = errors.New("month/year do not match date")
	ErrInvalidPeriodRange  = errors.New("end period before start period")
	ErrInvalidInstallments = errors.New("installment count must be at least 1")
	ErrInvalidPlanTier     = errors.New("invalid plan tier")
	ErrInvalidStatus       = errors.New("invalid subscription status")
	ErrDuplicateGoal       = errors.New("more than one goal for the same month")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp, keeping the day.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) Period() Period {
	return PeriodOf(d.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TotalIncome is salary plus other income.
func (p Profile) TotalIncome() Money {
	return p.Salary.Add(p.OtherIncome)
}

// Tier returns the stored plan, treating an unset plan as free.
func (p Profile) Tier() (PlanTier, error) {
	if p.Plan == "" {
		return PlanFree, nil
	}
	return ParsePlanTier(string(p.Plan))
}

func (p Profile) Validate() error {
	for _, m := range []Money{p.Salary, p.OtherIncome, p.SavingsGoal, p.LeisureBudget} {
		if m.IsNegative() {
			return ErrNegativeAmount
		}
	}
	if p.PayDay < 1 || p.PayDay > 31 {
		return fmt.Errorf("pay day: %w", ErrInvalidDay)
	}
	if p.HasAdvance && (p.AdvanceDay < 1 || p.AdvanceDay > 31) {
		return fmt.Errorf("advance day: %w", ErrInvalidDay)
	}
	if p.Plan != "" && !p.Plan.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPlanTier, p.Plan)
	}
	if p.SubscriptionStatus != "" {
		if _, err := ParseSubscriptionStatus(string(p.SubscriptionStatus)); err != nil {
			return err
		}
	}
	return nil
}

func (p Profile) clone() *Profile {
	c := p
	if p.TrialEndsAt != nil {
		t := *p.TrialEndsAt
		c.TrialEndsAt = &t
	}
	if p.PlanExpiresAt != nil {
		t := *p.PlanExpiresAt
		c.PlanExpiresAt = &t
	}
	return &c
}

func (e FixedExpense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if e.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	}
	return nil
}

// NewInstallments creates an expense of count monthly installments starting at start.
func NewInstallments(name string, amount Money, category Category, start Period, count int) (TemporaryExpense, error) {
	if count < 1 {
		return TemporaryExpense{}, ErrInvalidInstallments
	}
	end := start.AddMonths(count - 1)
	return TemporaryExpense{
		Name:       name,
		Amount:     amount,
		Category:   category,
		StartMonth: start.Month,
		StartYear:  start.Year,
		EndMonth:   end.Month,
		EndYear:    end.Year,
	}, nil
}

func (e TemporaryExpense) Start() Period { return Period{Month: e.StartMonth, Year: e.StartYear} }
func (e TemporaryExpense) End() Period   { return Period{Month: e.EndMonth, Year: e.EndYear} }

// ActiveIn reports whether p falls within the inclusive installment range.
func (e TemporaryExpense) ActiveIn(p Period) bool {
	return p.Contains(e.Start(), e.End())
}

// Installments returns the number of months in the range.
func (e TemporaryExpense) Installments() int {
	return e.Start().MonthsUntil(e.End()) + 1
}

func (e TemporaryExpense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if e.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	}
	if err := e.Start().Validate(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := e.End().Validate(); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if e.End().Before(e.Start()) {
		return ErrInvalidPeriodRange
	}
	return nil
}

// NewTransaction derives Month and Year from date.
func NewTransaction(description string, amount Money, category Category, date Date, createdAt time.Time) Transaction {
	p := date.Period()
	return Transaction{
		Description: description,
		Amount:      amount,
		Category:    category,
		Date:        date,
		Month:       p.Month,
		Year:        p.Year,
		CreatedAt:   createdAt,
	}
}

func (t Transaction) Period() Period {
	return Period{Month: t.Month, Year: t.Year}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len([]rune(t.Description)) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if t.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, t.Category)
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Date.Period().Equal(t.Period()) {
		return ErrDatePeriodMismatch
	}
	return nil
}

func (g MonthlyGoal) Period() Period {
	return Period{Month: g.Month, Year: g.Year}
}

func (g MonthlyGoal) Validate() error {
	if err := g.Period().Validate(); err != nil {
		return err
	}
	if g.TargetAmount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}
