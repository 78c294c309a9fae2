// Package services orchestrates the user-facing operations: it applies
// limit gating and validation, edits the session snapshot, persists it and
// announces the change.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finny/internal/billing"
	"finny/internal/cache"
	"finny/internal/core"
	"finny/internal/finance"
	"finny/internal/limits"
	"finny/internal/session"
	"finny/internal/snapshot"
	"finny/internal/storage"
)

var (
	ErrNoProfile        = errors.New("profile not set up")
	ErrLimitReached     = errors.New("plan limit reached")
	ErrExportNotAllowed = errors.New("export requires a premium plan")
	ErrHistoryLimited   = errors.New("period is outside the plan history")
	ErrInvalidInput     = errors.New("invalid input")
)

// LimitError reports the resource whose plan limit blocked a write. It
// matches ErrLimitReached.
type LimitError struct {
	Kind limits.Kind
}

func (e *LimitError) Error() string { return ErrLimitReached.Error() + ": " + string(e.Kind) }
func (e *LimitError) Unwrap() error { return ErrLimitReached }

// Publisher announces committed snapshot versions.
type Publisher interface {
	PublishSnapshotChanged(ctx context.Context, userID string, version uint64) error
}

// BudgetService is safe for concurrent use. Writes for one user are
// serialized by that user's session store.
type BudgetService struct {
	repo      storage.Repository
	registry  *session.Registry
	publisher Publisher
	annual    *cache.LRUCache[finance.AnnualSummary]
	now       func() time.Time
}

// NewBudgetService wires the registry to repo. publisher and annual may be
// nil.
func NewBudgetService(repo storage.Repository, publisher Publisher, annual *cache.LRUCache[finance.AnnualSummary]) *BudgetService {
	s := &BudgetService{
		repo:      repo,
		publisher: publisher,
		annual:    annual,
		now:       time.Now,
	}
	s.registry = session.NewRegistry(NewProfileLoader(repo).Load, s.commit)
	return s
}

// WithClock replaces the wall clock used for plan and period decisions.
func (s *BudgetService) WithClock(now func() time.Time) *BudgetService {
	s.now = now
	return s
}

func (s *BudgetService) commit(ctx context.Context, userID string, next session.State) error {
	return Retry(ctx, 5*time.Second, func() error {
		return s.repo.SaveSnapshot(ctx, userID, next.Version, next.Snapshot)
	})
}

// apply runs mutations on the user's store and, once committed, drops
// cached summaries and publishes the new version.
func (s *BudgetService) apply(ctx context.Context, userID string, mutations ...session.Mutation) (session.State, error) {
	store, err := s.registry.Get(ctx, userID)
	if err != nil {
		return session.State{}, err
	}
	st, err := store.Apply(ctx, mutations...)
	if err != nil {
		return st, err
	}
	if s.annual != nil {
		s.annual.DeletePrefix(userID + ":")
	}
	s.publish(ctx, userID, st.Version)
	return st, nil
}

func (s *BudgetService) publish(ctx context.Context, userID string, version uint64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSnapshotChanged(ctx, userID, version); err != nil {
		// the snapshot is already stored; the sync worker catches up on its next full pass
		slog.ErrorContext(ctx, "Failed to publish snapshot change",
			"user_id", userID, "version", version, "error", err)
	}
}

// State returns the current version of userID's records.
func (s *BudgetService) State(ctx context.Context, userID string) (session.State, error) {
	store, err := s.registry.Get(ctx, userID)
	if err != nil {
		return session.State{}, err
	}
	return store.Current(), nil
}

func (s *BudgetService) CurrentPeriod() core.Period {
	return core.PeriodOf(s.now())
}

// Tier is the plan userID is entitled to now.
func (s *BudgetService) Tier(ctx context.Context, userID string) (core.PlanTier, error) {
	st, err := s.State(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.tierOf(st.Snapshot)
}

func (s *BudgetService) tierOf(snap core.Snapshot) (core.PlanTier, error) {
	if snap.Profile == nil {
		return core.PlanFree, nil
	}
	return billing.EffectiveTier(*snap.Profile, s.now())
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// requireProfile fails when records are added before the profile exists.
func requireProfile() session.Mutation {
	return session.Check(func(snap core.Snapshot) error {
		if snap.Profile == nil {
			return ErrNoProfile
		}
		return nil
	})
}

// gate rejects adding one more record of kind when the count for period
// already reached the tier limit.
func (s *BudgetService) gate(kind limits.Kind, period core.Period) session.Mutation {
	return session.Check(func(snap core.Snapshot) error {
		tier, err := s.tierOf(snap)
		if err != nil {
			return err
		}
		ok, err := limits.CanAdd(kind, tier, limits.CountFor(kind, snap, period))
		if err != nil {
			return err
		}
		if !ok {
			return &LimitError{Kind: kind}
		}
		return nil
	})
}

// bounded runs m and rejects the result when it grew the count of kind
// past the tier limit. Edits that keep or lower the count always pass, so
// a downgraded user can still tidy records above the limit.
func (s *BudgetService) bounded(kind limits.Kind, period core.Period, m session.Mutation) session.Mutation {
	return func(snap *core.Snapshot) error {
		before := limits.CountFor(kind, *snap, period)
		if err := m(snap); err != nil {
			return err
		}
		after := limits.CountFor(kind, *snap, period)
		if after <= before {
			return nil
		}
		tier, err := s.tierOf(*snap)
		if err != nil {
			return err
		}
		limit, err := limits.LimitFor(tier, kind)
		if err != nil {
			return err
		}
		if n, ok := limit.Value(); ok && after > n {
			return &LimitError{Kind: kind}
		}
		return nil
	}
}

// Profile returns the stored profile.
func (s *BudgetService) Profile(ctx context.Context, userID string) (core.Profile, error) {
	st, err := s.State(ctx, userID)
	if err != nil {
		return core.Profile{}, err
	}
	if st.Snapshot.Profile == nil {
		return core.Profile{}, ErrNoProfile
	}
	return *st.Snapshot.Profile, nil
}

// keepBilling copies the plan fields of the stored profile onto p. Only
// billing events change them.
func keepBilling(p core.Profile, stored *core.Profile) core.Profile {
	p.Plan, p.SubscriptionStatus, p.TrialEndsAt, p.PlanExpiresAt = "", "", nil, nil
	if stored != nil {
		p.Plan = stored.Plan
		p.SubscriptionStatus = stored.SubscriptionStatus
		p.TrialEndsAt = stored.TrialEndsAt
		p.PlanExpiresAt = stored.PlanExpiresAt
	}
	return p
}

// SaveProfile creates or replaces the editable profile fields.
func (s *BudgetService) SaveProfile(ctx context.Context, userID string, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, invalid(err)
	}
	var saved core.Profile
	_, err := s.apply(ctx, userID, func(snap *core.Snapshot) error {
		next := keepBilling(p, snap.Profile)
		if snap.Profile != nil {
			next.ID = snap.Profile.ID
			next.HasCompletedOnboarding = next.HasCompletedOnboarding || snap.Profile.HasCompletedOnboarding
		}
		if err := session.SetProfile(next)(snap); err != nil {
			return err
		}
		saved = *snap.Profile
		return nil
	})
	return saved, err
}

// CompleteOnboarding stores the profile, marks onboarding done and seeds
// the given fixed expenses as active. The seeded expenses must fit the
// plan limit.
func (s *BudgetService) CompleteOnboarding(ctx context.Context, userID string, p core.Profile, fixed []core.FixedExpense) (session.State, error) {
	if err := p.Validate(); err != nil {
		return session.State{}, invalid(err)
	}
	for i := range fixed {
		fixed[i].IsActive = true
		if err := fixed[i].Validate(); err != nil {
			return session.State{}, invalid(fmt.Errorf("fixed expense %d: %w", i+1, err))
		}
	}

	onboard := func(snap *core.Snapshot) error {
		next := keepBilling(p, snap.Profile)
		next.HasCompletedOnboarding = true
		if snap.Profile != nil {
			next.ID = snap.Profile.ID
		}
		if err := session.SetProfile(next)(snap); err != nil {
			return err
		}
		for _, e := range fixed {
			if err := session.AddFixedExpense(e)(snap); err != nil {
				return err
			}
		}
		return nil
	}
	return s.apply(ctx, userID, s.bounded(limits.KindFixedExpense, s.CurrentPeriod(), onboard))
}

func (s *BudgetService) AddTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	if t.Month == 0 && t.Year == 0 && !t.Date.IsZero() {
		p := t.Date.Period()
		t.Month, t.Year = p.Month, p.Year
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, invalid(err)
	}
	st, err := s.apply(ctx, userID,
		requireProfile(),
		s.gate(limits.KindTransaction, t.Period()),
		session.AddTransaction(t),
	)
	if err != nil {
		return core.Transaction{}, err
	}
	return st.Snapshot.Transactions[len(st.Snapshot.Transactions)-1], nil
}

func (s *BudgetService) RemoveTransaction(ctx context.Context, userID, id string) error {
	_, err := s.apply(ctx, userID, session.RemoveTransaction(id))
	return err
}

// Transactions lists the transactions of period, refusing periods older
// than the plan history allows.
func (s *BudgetService) Transactions(ctx context.Context, userID string, period core.Period) ([]core.Transaction, error) {
	if err := period.Validate(); err != nil {
		return nil, invalid(err)
	}
	st, err := s.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier, err := s.tierOf(st.Snapshot)
	if err != nil {
		return nil, err
	}
	cutoff, bounded, err := limits.HistoryCutoff(tier, s.CurrentPeriod())
	if err != nil {
		return nil, err
	}
	if bounded && period.Before(cutoff) {
		return nil, fmt.Errorf("%w: oldest is %s", ErrHistoryLimited, cutoff)
	}
	out := []core.Transaction{}
	for _, t := range st.Snapshot.Transactions {
		if t.Period().Equal(period) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *BudgetService) AddFixedExpense(ctx context.Context, userID string, e core.FixedExpense) (core.FixedExpense, error) {
	if err := e.Validate(); err != nil {
		return core.FixedExpense{}, invalid(err)
	}
	mutations := []session.Mutation{requireProfile()}
	if e.IsActive {
		mutations = append(mutations, s.gate(limits.KindFixedExpense, s.CurrentPeriod()))
	}
	st, err := s.apply(ctx, userID, append(mutations, session.AddFixedExpense(e))...)
	if err != nil {
		return core.FixedExpense{}, err
	}
	return st.Snapshot.FixedExpenses[len(st.Snapshot.FixedExpenses)-1], nil
}

// UpdateFixedExpense replaces the editable fields of expense id.
// Reactivating an expense counts against the fixed expense limit.
// UpdateFixedExpense applies edit to the current version of the record
// while the user's store is locked, so concurrent changes are not lost.
func (s *BudgetService) UpdateFixedExpense(ctx context.Context, userID, id string, edit func(core.FixedExpense) core.FixedExpense) (core.FixedExpense, error) {
	st, err := s.apply(ctx, userID, s.bounded(limits.KindFixedExpense, s.CurrentPeriod(),
		session.UpdateFixedExpense(id, func(cur *core.FixedExpense) error {
			next := edit(*cur)
			next.ID = id
			if err := next.Validate(); err != nil {
				return invalid(err)
			}
			*cur = next
			return nil
		})))
	if err != nil {
		return core.FixedExpense{}, err
	}
	return findFixed(st.Snapshot, id), nil
}

func (s *BudgetService) ToggleFixedExpense(ctx context.Context, userID, id string) (core.FixedExpense, error) {
	st, err := s.apply(ctx, userID, s.bounded(limits.KindFixedExpense, s.CurrentPeriod(),
		session.ToggleFixedExpense(id)))
	if err != nil {
		return core.FixedExpense{}, err
	}
	return findFixed(st.Snapshot, id), nil
}

func findFixed(snap core.Snapshot, id string) core.FixedExpense {
	for _, e := range snap.FixedExpenses {
		if e.ID == id {
			return e
		}
	}
	return core.FixedExpense{}
}

func (s *BudgetService) RemoveFixedExpense(ctx context.Context, userID, id string) error {
	_, err := s.apply(ctx, userID, session.RemoveFixedExpense(id))
	return err
}

func (s *BudgetService) AddTemporaryExpense(ctx context.Context, userID string, e core.TemporaryExpense) (core.TemporaryExpense, error) {
	if err := e.Validate(); err != nil {
		return core.TemporaryExpense{}, invalid(err)
	}
	st, err := s.apply(ctx, userID,
		requireProfile(),
		s.gate(limits.KindTemporaryExpense, s.CurrentPeriod()),
		session.AddTemporaryExpense(e),
	)
	if err != nil {
		return core.TemporaryExpense{}, err
	}
	return st.Snapshot.TemporaryExpenses[len(st.Snapshot.TemporaryExpenses)-1], nil
}

func (s *BudgetService) RemoveTemporaryExpense(ctx context.Context, userID, id string) error {
	_, err := s.apply(ctx, userID, session.RemoveTemporaryExpense(id))
	return err
}

// SetMonthlyGoal upserts the savings goal override of a month.
func (s *BudgetService) SetMonthlyGoal(ctx context.Context, userID string, g core.MonthlyGoal) error {
	if err := g.Validate(); err != nil {
		return invalid(err)
	}
	_, err := s.apply(ctx, userID, requireProfile(), session.SetMonthlyGoal(g))
	return err
}

// Dashboard is everything the month view shows.
type Dashboard struct {
	Stats        finance.MonthStats      `json:"stats"`
	Categories   []finance.CategoryShare `json:"categories"`
	Usage        limits.UsageReport      `json:"usage"`
	Subscription billing.Subscription    `json:"subscription"`
	Version      uint64                  `json:"version"`
}

func (s *BudgetService) Dashboard(ctx context.Context, userID string, period core.Period) (Dashboard, error) {
	if err := period.Validate(); err != nil {
		return Dashboard{}, invalid(err)
	}
	st, err := s.State(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	if st.Snapshot.Profile == nil {
		return Dashboard{}, ErrNoProfile
	}
	tier, err := s.tierOf(st.Snapshot)
	if err != nil {
		return Dashboard{}, err
	}
	usage, err := limits.Report(tier, st.Snapshot, period)
	if err != nil {
		return Dashboard{}, err
	}
	calc := finance.New(st.Snapshot)
	return Dashboard{
		Stats:        calc.MonthStats(period),
		Categories:   calc.CategoryBreakdown(period),
		Usage:        usage,
		Subscription: billing.View(*st.Snapshot.Profile, s.now()),
		Version:      st.Version,
	}, nil
}

// Usage reports plan usage for the current month.
func (s *BudgetService) Usage(ctx context.Context, userID string) (limits.UsageReport, error) {
	st, err := s.State(ctx, userID)
	if err != nil {
		return limits.UsageReport{}, err
	}
	tier, err := s.tierOf(st.Snapshot)
	if err != nil {
		return limits.UsageReport{}, err
	}
	return limits.Report(tier, st.Snapshot, s.CurrentPeriod())
}

func (s *BudgetService) Subscription(ctx context.Context, userID string) (billing.Subscription, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return billing.Subscription{}, err
	}
	return billing.View(p, s.now()), nil
}

func annualKey(userID string, version uint64, year int) string {
	return fmt.Sprintf("%s:%d:%d", userID, version, year)
}

// Annual returns the year summary, cached per snapshot version.
func (s *BudgetService) Annual(ctx context.Context, userID string, year int) (finance.AnnualSummary, error) {
	if err := core.NewPeriod(1, year).Validate(); err != nil {
		return finance.AnnualSummary{}, invalid(err)
	}
	st, err := s.State(ctx, userID)
	if err != nil {
		return finance.AnnualSummary{}, err
	}
	key := annualKey(userID, st.Version, year)
	if s.annual != nil {
		if sum, ok := s.annual.Get(key); ok {
			return sum, nil
		}
	}
	sum := finance.New(st.Snapshot).AnnualSummary(year)
	if s.annual != nil {
		s.annual.Set(key, sum)
	}
	return sum, nil
}

// Export encodes the records for download. Only premium users may export.
func (s *BudgetService) Export(ctx context.Context, userID string) ([]byte, error) {
	st, err := s.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier, err := s.tierOf(st.Snapshot)
	if err != nil {
		return nil, err
	}
	ok, err := limits.CanExport(tier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrExportNotAllowed
	}
	return snapshot.EncodeIndent(st.Snapshot)
}

// Import replaces every record with the decoded data. The plan fields of
// the stored profile are kept.
func (s *BudgetService) Import(ctx context.Context, userID string, data []byte) (session.State, error) {
	imported, err := snapshot.Decode(data)
	if err != nil {
		return session.State{}, invalid(err)
	}
	if err := imported.Validate(); err != nil {
		return session.State{}, invalid(err)
	}
	return s.apply(ctx, userID, func(snap *core.Snapshot) error {
		next := imported.Clone()
		if next.Profile != nil {
			p := keepBilling(*next.Profile, snap.Profile)
			next.Profile = &p
		} else if snap.Profile != nil {
			p := *snap.Profile
			next.Profile = &p
		}
		return session.Replace(next)(snap)
	})
}

// Reset clears every record except the plan fields.
func (s *BudgetService) Reset(ctx context.Context, userID string) (session.State, error) {
	return s.apply(ctx, userID, func(snap *core.Snapshot) error {
		stored := snap.Profile
		if err := session.Reset()(snap); err != nil {
			return err
		}
		if stored != nil && stored.Plan != "" {
			p := keepBilling(core.Profile{ID: stored.ID, PayDay: 1}, stored)
			snap.Profile = &p
		}
		return nil
	})
}

// ApplyBillingEvent records a subscription change on the user's profile.
func (s *BudgetService) ApplyBillingEvent(ctx context.Context, e billing.Event) (core.Profile, error) {
	if err := e.Validate(); err != nil {
		return core.Profile{}, invalid(err)
	}
	var updated core.Profile
	_, err := s.apply(ctx, e.UserID, func(snap *core.Snapshot) error {
		if snap.Profile == nil {
			return ErrNoProfile
		}
		next, err := billing.Apply(*snap.Profile, e)
		if err != nil {
			return err
		}
		snap.Profile = &next
		updated = next
		return nil
	})
	if err != nil {
		return core.Profile{}, err
	}
	slog.InfoContext(ctx, "Applied billing event",
		"user_id", e.UserID,
		"type", e.Type,
		"plan", updated.Plan,
		"status", updated.SubscriptionStatus)
	return updated, nil
}

// Evict drops the in-memory session of userID.
func (s *BudgetService) Evict(userID string) {
	s.registry.Evict(userID)
	if s.annual != nil {
		s.annual.DeletePrefix(userID + ":")
	}
}

// Sessions reports how many users have a loaded session.
func (s *BudgetService) Sessions() int {
	return s.registry.Len()
}

func (s *BudgetService) Ping(ctx context.Context) error {
	if p, ok := s.repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *BudgetService) Close() error {
	if err := s.repo.Close(); err != nil {
		return fmt.Errorf("close repository: %w", err)
	}
	return nil
}
