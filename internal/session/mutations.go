package session

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"finny/internal/core"
)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func SetProfile(p core.Profile) Mutation {
	return func(s *core.Snapshot) error {
		p.ID = newID(p.ID)
		s.Profile = &p
		return nil
	}
}

// UpdateProfile edits the existing profile in the working copy.
func UpdateProfile(fn func(*core.Profile)) Mutation {
	return func(s *core.Snapshot) error {
		if s.Profile == nil {
			return fmt.Errorf("profile: %w", ErrNotFound)
		}
		fn(s.Profile)
		return nil
	}
}

func AddFixedExpense(e core.FixedExpense) Mutation {
	return func(s *core.Snapshot) error {
		e.ID = newID(e.ID)
		s.FixedExpenses = append(s.FixedExpenses, e)
		return nil
	}
}

// UpdateFixedExpense edits the fixed expense id in place. An error from fn
// aborts the mutation. The ID cannot be changed.
func UpdateFixedExpense(id string, fn func(*core.FixedExpense) error) Mutation {
	return func(s *core.Snapshot) error {
		i := slices.IndexFunc(s.FixedExpenses, func(e core.FixedExpense) bool { return e.ID == id })
		if i < 0 {
			return fmt.Errorf("fixed expense %s: %w", id, ErrNotFound)
		}
		if err := fn(&s.FixedExpenses[i]); err != nil {
			return err
		}
		s.FixedExpenses[i].ID = id
		return nil
	}
}

func ToggleFixedExpense(id string) Mutation {
	return UpdateFixedExpense(id, func(e *core.FixedExpense) error {
		e.IsActive = !e.IsActive
		return nil
	})
}

func RemoveFixedExpense(id string) Mutation {
	return func(s *core.Snapshot) error {
		n := len(s.FixedExpenses)
		s.FixedExpenses = slices.DeleteFunc(s.FixedExpenses, func(e core.FixedExpense) bool { return e.ID == id })
		if len(s.FixedExpenses) == n {
			return fmt.Errorf("fixed expense %s: %w", id, ErrNotFound)
		}
		return nil
	}
}

func AddTemporaryExpense(e core.TemporaryExpense) Mutation {
	return func(s *core.Snapshot) error {
		e.ID = newID(e.ID)
		s.TemporaryExpenses = append(s.TemporaryExpenses, e)
		return nil
	}
}

func RemoveTemporaryExpense(id string) Mutation {
	return func(s *core.Snapshot) error {
		n := len(s.TemporaryExpenses)
		s.TemporaryExpenses = slices.DeleteFunc(s.TemporaryExpenses, func(e core.TemporaryExpense) bool { return e.ID == id })
		if len(s.TemporaryExpenses) == n {
			return fmt.Errorf("temporary expense %s: %w", id, ErrNotFound)
		}
		return nil
	}
}

func AddTransaction(t core.Transaction) Mutation {
	return func(s *core.Snapshot) error {
		t.ID = newID(t.ID)
		s.Transactions = append(s.Transactions, t)
		return nil
	}
}

func RemoveTransaction(id string) Mutation {
	return func(s *core.Snapshot) error {
		n := len(s.Transactions)
		s.Transactions = slices.DeleteFunc(s.Transactions, func(t core.Transaction) bool { return t.ID == id })
		if len(s.Transactions) == n {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil
	}
}

// SetMonthlyGoal upserts the goal for its period.
func SetMonthlyGoal(g core.MonthlyGoal) Mutation {
	return func(s *core.Snapshot) error {
		*s = s.WithMonthlyGoal(g)
		return nil
	}
}

// Replace swaps in a whole snapshot, as done by import.
func Replace(next core.Snapshot) Mutation {
	return func(s *core.Snapshot) error {
		*s = next.Clone()
		return nil
	}
}

func Reset() Mutation {
	return Replace(core.EmptySnapshot())
}

// Check runs fn against the working copy without changing it, so guards see
// the same version the following mutations will edit.
func Check(fn func(core.Snapshot) error) Mutation {
	return func(s *core.Snapshot) error {
		return fn(*s)
	}
}
