package core

// Snapshot is the full, immutable set of records for one user. Hosts swap
// snapshots wholesale; nothing mutates the slices of a published snapshot.
type Snapshot struct {
	Profile           *Profile           `json:"profile"`
	FixedExpenses     []FixedExpense     `json:"fixedExpenses"`
	TemporaryExpenses []TemporaryExpense `json:"temporaryExpenses"`
	Transactions      []Transaction      `json:"transactions"`
	MonthlyGoals      []MonthlyGoal      `json:"monthlyGoals"`
}

// EmptySnapshot has no profile and empty collections.
func EmptySnapshot() Snapshot {
	return Snapshot{}.Normalize()
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{
		FixedExpenses:     append([]FixedExpense{}, s.FixedExpenses...),
		TemporaryExpenses: append([]TemporaryExpense{}, s.TemporaryExpenses...),
		Transactions:      append([]Transaction{}, s.Transactions...),
		MonthlyGoals:      append([]MonthlyGoal{}, s.MonthlyGoals...),
	}
	if s.Profile != nil {
		c.Profile = s.Profile.clone()
	}
	return c
}

// Normalize replaces nil collections with empty ones.
func (s Snapshot) Normalize() Snapshot {
	if s.FixedExpenses == nil {
		s.FixedExpenses = []FixedExpense{}
	}
	if s.TemporaryExpenses == nil {
		s.TemporaryExpenses = []TemporaryExpense{}
	}
	if s.Transactions == nil {
		s.Transactions = []Transaction{}
	}
	if s.MonthlyGoals == nil {
		s.MonthlyGoals = []MonthlyGoal{}
	}
	return s
}

// WithMonthlyGoal returns a copy where goal replaces any goal for the same
// period in place, or is appended when none exists.
func (s Snapshot) WithMonthlyGoal(goal MonthlyGoal) Snapshot {
	c := s.Clone()
	for i, g := range c.MonthlyGoals {
		if g.Period().Equal(goal.Period()) {
			c.MonthlyGoals[i] = goal
			return c
		}
	}
	c.MonthlyGoals = append(c.MonthlyGoals, goal)
	return c
}

// GoalFor returns the explicit goal for p, if any.
func (s Snapshot) GoalFor(p Period) (MonthlyGoal, bool) {
	for _, g := range s.MonthlyGoals {
		if g.Period().Equal(p) {
			return g, true
		}
	}
	return MonthlyGoal{}, false
}

// ActiveFixedCount counts fixed expenses currently included in totals.
func (s Snapshot) ActiveFixedCount() int {
	n := 0
	for _, e := range s.FixedExpenses {
		if e.IsActive {
			n++
		}
	}
	return n
}

// TransactionCount counts transactions recorded in p.
func (s Snapshot) TransactionCount(p Period) int {
	n := 0
	for _, t := range s.Transactions {
		if t.Period().Equal(p) {
			n++
		}
	}
	return n
}

// Validate checks every record and returns the first problem found.
func (s Snapshot) Validate() error {
	if s.Profile != nil {
		if err := s.Profile.Validate(); err != nil {
			return err
		}
	}
	for _, e := range s.FixedExpenses {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, e := range s.TemporaryExpenses {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, t := range s.Transactions {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[int]bool, len(s.MonthlyGoals))
	for _, g := range s.MonthlyGoals {
		if err := g.Validate(); err != nil {
			return err
		}
		if seen[g.Period().Index()] {
			return ErrDuplicateGoal
		}
		seen[g.Period().Index()] = true
	}
	return nil
}
