package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"finny/internal/core"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return f.Interface().(core.Money).Cents
	}, core.Money{})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return string(f.Interface().(core.Category))
	}, core.Category(""))
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, err := core.ParseCategory(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validationError flattens validator errors into one message per field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// decodeJSON reads a single JSON value into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// parsePeriod reads month and year from the query, defaulting to now.
func parsePeriod(r *http.Request, now core.Period) (core.Period, error) {
	p := now
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("month: %w", core.ErrInvalidMonth)
		}
		p.Month = m
	}
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("year: %w", core.ErrInvalidYear)
		}
		p.Year = y
	}
	return p, p.Validate()
}

type profileRequest struct {
	Name          string     `json:"name" validate:"max=100"`
	Salary        core.Money `json:"salary" validate:"gte=0"`
	OtherIncome   core.Money `json:"otherIncome" validate:"gte=0"`
	PayDay        int        `json:"payDay" validate:"min=1,max=31"`
	HasAdvance    bool       `json:"hasAdvance"`
	AdvanceDay    int        `json:"advanceDay" validate:"required_if=HasAdvance true,min=0,max=31"`
	SavingsGoal   core.Money `json:"savingsGoal" validate:"gte=0"`
	LeisureBudget core.Money `json:"leisureBudget" validate:"gte=0"`
}

func (p profileRequest) toProfile() core.Profile {
	return core.Profile{
		Name:          strings.TrimSpace(p.Name),
		Salary:        p.Salary,
		OtherIncome:   p.OtherIncome,
		PayDay:        p.PayDay,
		HasAdvance:    p.HasAdvance,
		AdvanceDay:    p.AdvanceDay,
		SavingsGoal:   p.SavingsGoal,
		LeisureBudget: p.LeisureBudget,
	}
}

type fixedExpenseRequest struct {
	Name     string        `json:"name" validate:"notblank,max=100"`
	Amount   core.Money    `json:"amount" validate:"gt=0"`
	Category core.Category `json:"category" validate:"category"`
	IsActive *bool         `json:"isActive"`
}

func (f fixedExpenseRequest) toFixedExpense() core.FixedExpense {
	active := true
	if f.IsActive != nil {
		active = *f.IsActive
	}
	return core.FixedExpense{
		Name:     strings.TrimSpace(f.Name),
		Amount:   f.Amount,
		Category: f.Category,
		IsActive: active,
	}
}

type onboardingRequest struct {
	Profile       profileRequest        `json:"profile"`
	FixedExpenses []fixedExpenseRequest `json:"fixedExpenses" validate:"dive"`
}

// fixedExpensePatch edits a fixed expense. Toggle flips the active flag
// and ignores the other fields.
type fixedExpensePatch struct {
	Toggle   bool           `json:"toggle"`
	Name     *string        `json:"name" validate:"omitempty,notblank,max=100"`
	Amount   *core.Money    `json:"amount" validate:"omitempty,gt=0"`
	Category *core.Category `json:"category" validate:"omitempty,category"`
	IsActive *bool          `json:"isActive"`
}

func (p fixedExpensePatch) apply(cur core.FixedExpense) core.FixedExpense {
	if p.Name != nil {
		cur.Name = strings.TrimSpace(*p.Name)
	}
	if p.Amount != nil {
		cur.Amount = *p.Amount
	}
	if p.Category != nil {
		cur.Category = *p.Category
	}
	if p.IsActive != nil {
		cur.IsActive = *p.IsActive
	}
	return cur
}

// temporaryExpenseRequest describes an installment purchase starting in
// the given month.
type temporaryExpenseRequest struct {
	Name         string        `json:"name" validate:"notblank,max=100"`
	Amount       core.Money    `json:"amount" validate:"gt=0"`
	Category     core.Category `json:"category" validate:"category"`
	StartMonth   int           `json:"startMonth" validate:"min=1,max=12"`
	StartYear    int           `json:"startYear" validate:"min=1900,max=9999"`
	Installments int           `json:"installments" validate:"min=1,max=120"`
}

func (t temporaryExpenseRequest) toTemporaryExpense() (core.TemporaryExpense, error) {
	return core.NewInstallments(strings.TrimSpace(t.Name), t.Amount, t.Category,
		core.NewPeriod(t.StartMonth, t.StartYear), t.Installments)
}

type transactionRequest struct {
	Description string        `json:"description" validate:"notblank,max=200"`
	Amount      core.Money    `json:"amount" validate:"gt=0"`
	Category    core.Category `json:"category" validate:"category"`
	Date        string        `json:"date" validate:"required"`
}

func (t transactionRequest) toTransaction(now time.Time) (core.Transaction, error) {
	date, err := core.ParseDate(t.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.NewTransaction(strings.TrimSpace(t.Description), t.Amount, t.Category, date, now.UTC()), nil
}

type goalRequest struct {
	Month        int        `json:"month" validate:"min=1,max=12"`
	Year         int        `json:"year" validate:"min=1900,max=9999"`
	TargetAmount core.Money `json:"targetAmount" validate:"gte=0"`
}
