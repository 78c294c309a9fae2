package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finny/internal/amqp"
	"finny/internal/billing"
	"finny/internal/cache"
	"finny/internal/core"
	"finny/internal/finance"
	"finny/internal/limits"
	"finny/internal/snapshot"
	"finny/internal/storage"
)

var fixedNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu       sync.Mutex
	versions []uint64
	err      error
}

func (p *recordingPublisher) PublishSnapshotChanged(_ context.Context, _ string, version uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions = append(p.versions, version)
	return p.err
}

type failingRepo struct {
	*storage.MemoryRepository
	saveErr error
}

func (r *failingRepo) SaveSnapshot(ctx context.Context, userID string, version uint64, s core.Snapshot) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.MemoryRepository.SaveSnapshot(ctx, userID, version, s)
}

func newTestService(t *testing.T) (*BudgetService, *storage.MemoryRepository, *recordingPublisher) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := NewBudgetService(repo, pub, cache.NewLRUCache[finance.AnnualSummary](10, time.Minute)).
		WithClock(func() time.Time { return fixedNow })
	return svc, repo, pub
}

func testProfile() core.Profile {
	return core.Profile{
		Name:          "Ana",
		Salary:        core.FromMajor(5000),
		OtherIncome:   core.FromMajor(500),
		PayDay:        5,
		SavingsGoal:   core.FromMajor(1000),
		LeisureBudget: core.FromMajor(600),
	}
}

func onboard(t *testing.T, svc *BudgetService, userID string) {
	t.Helper()
	_, err := svc.CompleteOnboarding(context.Background(), userID, testProfile(), nil)
	require.NoError(t, err)
}

func tx(desc string, cents int64, date core.Date) core.Transaction {
	return core.NewTransaction(desc, core.Money{Cents: cents}, core.CategoryFood, date, time.Time{})
}

func TestRecordsRequireProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddTransaction(ctx, "u1", tx("Lunch", 2500, core.NewDate(2024, 5, 2)))
	assert.ErrorIs(t, err, ErrNoProfile)

	_, err = svc.Dashboard(ctx, "u1", core.NewPeriod(5, 2024))
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestOnboardingPersistsAndPublishes(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()

	fixed := []core.FixedExpense{
		{Name: "Rent", Amount: core.FromMajor(1500), Category: core.CategoryHousing},
		{Name: "Internet", Amount: core.FromMajor(100), Category: core.CategoryOther},
	}
	st, err := svc.CompleteOnboarding(ctx, "u1", testProfile(), fixed)
	require.NoError(t, err)

	require.NotNil(t, st.Snapshot.Profile)
	assert.True(t, st.Snapshot.Profile.HasCompletedOnboarding)
	assert.NotEmpty(t, st.Snapshot.Profile.ID)
	require.Len(t, st.Snapshot.FixedExpenses, 2)
	assert.True(t, st.Snapshot.FixedExpenses[0].IsActive)
	assert.NotEmpty(t, st.Snapshot.FixedExpenses[0].ID)

	stored, version, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, st.Version, version)
	assert.Len(t, stored.FixedExpenses, 2)
	assert.Equal(t, []uint64{1}, pub.versions)
}

func TestOnboardingRejectsTooManyFixedExpenses(t *testing.T) {
	svc, _, pub := newTestService(t)
	fixed := make([]core.FixedExpense, 6)
	for i := range fixed {
		fixed[i] = core.FixedExpense{Name: "Bill", Amount: core.FromMajor(10), Category: core.CategoryOther}
	}
	_, err := svc.CompleteOnboarding(context.Background(), "u1", testProfile(), fixed)
	assert.ErrorIs(t, err, ErrLimitReached)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, limits.KindFixedExpense, limitErr.Kind)
	assert.Empty(t, pub.versions)

	_, err = svc.Profile(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestTransactionLimitIsPerPeriod(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")

	for i := 0; i < 30; i++ {
		_, err := svc.AddTransaction(ctx, "u1", tx("Coffee", 500, core.NewDate(2024, 5, 1+i%28)))
		require.NoError(t, err)
	}
	_, err := svc.AddTransaction(ctx, "u1", tx("Coffee", 500, core.NewDate(2024, 5, 20)))
	assert.ErrorIs(t, err, ErrLimitReached)

	// another month has its own count
	_, err = svc.AddTransaction(ctx, "u1", tx("Coffee", 500, core.NewDate(2024, 6, 1)))
	assert.NoError(t, err)

	usage, err := svc.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, usage.Transactions.Used)
	assert.True(t, usage.Transactions.ReachedLimit)
	assert.False(t, usage.CanExport)
}

func TestPremiumIsUnbounded(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")

	end := fixedNow.Add(30 * 24 * time.Hour)
	_, err := svc.ApplyBillingEvent(ctx, billing.Event{Type: billing.EventCheckoutCompleted, UserID: "u1", Status: "active", CurrentPeriodEnd: &end})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := svc.AddTemporaryExpense(ctx, "u1", core.TemporaryExpense{
			Name: "Phone", Amount: core.FromMajor(100), Category: core.CategoryShopping,
			StartMonth: 5, StartYear: 2024, EndMonth: 8, EndYear: 2024,
		})
		require.NoError(t, err)
	}

	tier, err := svc.Tier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.PlanPremium, tier)

	data, err := svc.Export(ctx, "u1")
	require.NoError(t, err)
	decoded, err := snapshot.Decode(data)
	require.NoError(t, err)
	assert.Len(t, decoded.TemporaryExpenses, 4)
}

func TestExportRequiresPremium(t *testing.T) {
	svc, _, _ := newTestService(t)
	onboard(t, svc, "u1")
	_, err := svc.Export(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrExportNotAllowed)
}

func TestToggleRespectsLimitOnlyWhenGrowing(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")

	var ids []string
	for i := 0; i < 5; i++ {
		e, err := svc.AddFixedExpense(ctx, "u1", core.FixedExpense{Name: "Bill", Amount: core.FromMajor(10), Category: core.CategoryOther, IsActive: true})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	inactive, err := svc.AddFixedExpense(ctx, "u1", core.FixedExpense{Name: "Gym", Amount: core.FromMajor(90), Category: core.CategoryHealth})
	require.NoError(t, err)

	_, err = svc.ToggleFixedExpense(ctx, "u1", inactive.ID)
	assert.ErrorIs(t, err, ErrLimitReached)

	off, err := svc.ToggleFixedExpense(ctx, "u1", ids[0])
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	on, err := svc.ToggleFixedExpense(ctx, "u1", inactive.ID)
	require.NoError(t, err)
	assert.True(t, on.IsActive)

	renamed, err := svc.UpdateFixedExpense(ctx, "u1", ids[1], func(e core.FixedExpense) core.FixedExpense {
		e.Name = "Power"
		return e
	})
	require.NoError(t, err)
	assert.Equal(t, ids[1], renamed.ID)
	assert.Equal(t, "Power", renamed.Name)

	_, err = svc.UpdateFixedExpense(ctx, "u1", ids[1], func(e core.FixedExpense) core.FixedExpense {
		e.Name = ""
		return e
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateFixedExpenseKeepsConcurrentToggle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")

	added, err := svc.AddFixedExpense(ctx, "u1", core.FixedExpense{Name: "Gym", Amount: core.FromMajor(90), Category: core.CategoryHealth, IsActive: true})
	require.NoError(t, err)

	// The edit sees the record as it is when the store applies it, so a
	// toggle that lands first is preserved.
	_, err = svc.ToggleFixedExpense(ctx, "u1", added.ID)
	require.NoError(t, err)
	updated, err := svc.UpdateFixedExpense(ctx, "u1", added.ID, func(e core.FixedExpense) core.FixedExpense {
		e.Amount = core.FromMajor(95)
		return e
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, core.FromMajor(95), updated.Amount)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.ToggleFixedExpense(ctx, "u1", added.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.UpdateFixedExpense(ctx, "u1", added.ID, func(e core.FixedExpense) core.FixedExpense {
				e.Name = "Gym plus"
				return e
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	for _, e := range st.Snapshot.FixedExpenses {
		if e.ID == added.ID {
			assert.False(t, e.IsActive, "ten toggles after an inactive start end inactive")
			assert.Equal(t, "Gym plus", e.Name)
		}
	}
}

func TestHistoryCutoffForFreePlan(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")

	_, err := svc.AddTransaction(ctx, "u1", tx("Old", 1000, core.NewDate(2024, 2, 10)))
	require.NoError(t, err)

	got, err := svc.Transactions(ctx, "u1", core.NewPeriod(2, 2024))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.Transactions(ctx, "u1", core.NewPeriod(1, 2024))
	assert.ErrorIs(t, err, ErrHistoryLimited)
}

func TestDashboard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")

	_, err := svc.AddTransaction(ctx, "u1", tx("Market", 30000, core.NewDate(2024, 5, 3)))
	require.NoError(t, err)
	require.NoError(t, svc.SetMonthlyGoal(ctx, "u1", core.MonthlyGoal{Month: 5, Year: 2024, TargetAmount: core.FromMajor(800)}))

	d, err := svc.Dashboard(ctx, "u1", core.NewPeriod(5, 2024))
	require.NoError(t, err)
	assert.Equal(t, core.FromMajor(5500), d.Stats.Income)
	assert.Equal(t, core.FromMajor(300), d.Stats.VariableExpenses)
	assert.Equal(t, core.FromMajor(800), d.Stats.SavingsGoal)
	require.Len(t, d.Categories, 1)
	assert.Equal(t, core.CategoryFood, d.Categories[0].Category)
	assert.Equal(t, 1, d.Usage.Transactions.Used)
	assert.Equal(t, core.PlanFree, d.Subscription.EffectivePlan)

	_, err = svc.Dashboard(ctx, "u1", core.NewPeriod(13, 2024))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAnnualCachedPerVersion(t *testing.T) {
	repo := storage.NewMemoryRepository()
	annual := cache.NewLRUCache[finance.AnnualSummary](10, time.Minute)
	svc := NewBudgetService(repo, nil, annual).WithClock(func() time.Time { return fixedNow })
	ctx := context.Background()
	onboard(t, svc, "u1")

	first, err := svc.Annual(ctx, "u1", 2024)
	require.NoError(t, err)
	_, err = svc.Annual(ctx, "u1", 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(1), annual.Stats().Hits)

	_, err = svc.AddTransaction(ctx, "u1", tx("Market", 1200, core.NewDate(2024, 3, 3)))
	require.NoError(t, err)
	assert.Equal(t, 0, annual.Size())

	second, err := svc.Annual(ctx, "u1", 2024)
	require.NoError(t, err)
	assert.Equal(t, first.TotalExpenses.Add(core.Money{Cents: 1200}), second.TotalExpenses)
}

func TestImportKeepsBillingFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")
	end := fixedNow.Add(24 * time.Hour)
	_, err := svc.ApplyBillingEvent(ctx, billing.Event{Type: billing.EventCheckoutCompleted, UserID: "u1", Status: "active", CurrentPeriodEnd: &end})
	require.NoError(t, err)

	data := []byte(`{
		"profile": {"name": "Imported", "salary": 100, "payDay": 10, "plan": "free", "hasCompletedOnboarding": true},
		"transactions": [{"id": "t1", "description": "Book", "amount": 45.5, "category": "education", "date": "2024-05-01", "month": 5, "year": 2024}]
	}`)
	st, err := svc.Import(ctx, "u1", data)
	require.NoError(t, err)
	require.NotNil(t, st.Snapshot.Profile)
	assert.Equal(t, "Imported", st.Snapshot.Profile.Name)
	assert.Equal(t, core.PlanPremium, st.Snapshot.Profile.Plan)
	assert.Equal(t, core.Money{Cents: 4550}, st.Snapshot.Transactions[0].Amount)

	_, err = svc.Import(ctx, "u1", []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	legacy := []byte(`{"expenses": [{"id": "e1", "description": "Rent", "amount": 900, "category": "moradia", "date": "2024-04-01", "month": 3, "year": 2024}]}`)
	st, err = svc.Import(ctx, "u1", legacy)
	require.NoError(t, err)
	require.Len(t, st.Snapshot.Transactions, 1)
	assert.Equal(t, 4, st.Snapshot.Transactions[0].Month)
}

func TestSaveProfileIgnoresPlanFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := testProfile()
	p.Plan = core.PlanPremium
	p.SubscriptionStatus = core.StatusActive

	saved, err := svc.SaveProfile(context.Background(), "u1", p)
	require.NoError(t, err)
	assert.Empty(t, saved.Plan)
	assert.Empty(t, saved.SubscriptionStatus)

	p.PayDay = 0
	_, err = svc.SaveProfile(context.Background(), "u1", p)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, core.ErrInvalidDay)
}

func TestBillingEventWithoutProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ApplyBillingEvent(context.Background(), billing.Event{Type: billing.EventPaymentFailed, UserID: "ghost"})
	assert.ErrorIs(t, err, ErrNoProfile)

	_, err = svc.ApplyBillingEvent(context.Background(), billing.Event{Type: "refund", UserID: "u1"})
	assert.ErrorIs(t, err, billing.ErrUnknownEvent)
}

func TestFailedCommitKeepsState(t *testing.T) {
	repo := &failingRepo{MemoryRepository: storage.NewMemoryRepository()}
	pub := &recordingPublisher{}
	svc := NewBudgetService(repo, pub, nil).WithClock(func() time.Time { return fixedNow })
	ctx := context.Background()
	onboard(t, svc, "u1")

	repo.saveErr = errors.New("disk full")
	_, err := svc.AddTransaction(ctx, "u1", tx("Lunch", 2500, core.NewDate(2024, 5, 2)))
	require.Error(t, err)

	st, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Version)
	assert.Empty(t, st.Snapshot.Transactions)
	assert.Equal(t, []uint64{1}, pub.versions)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	svc, repo, pub := newTestService(t)
	pub.err = errors.New("broker down")
	onboard(t, svc, "u1")

	_, version, err := repo.LoadSnapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestStateSurvivesEviction(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")
	_, err := svc.AddTransaction(ctx, "u1", tx("Lunch", 2500, core.NewDate(2024, 5, 2)))
	require.NoError(t, err)

	svc.Evict("u1")
	st, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Version)
	assert.Len(t, st.Snapshot.Transactions, 1)
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	onboard(t, svc, "u1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	limited := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddTransaction(ctx, "u1", tx("Snack", 300, core.NewDate(2024, 5, 9)))
			if errors.Is(err, ErrLimitReached) {
				mu.Lock()
				limited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	st, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, st.Snapshot.Transactions, 30)
	assert.Equal(t, 10, limited)
}

func TestHandleBillingMessage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleBillingMessage(ctx, &amqp.BillingEventMessage{
		Type: "checkout.completed", UserID: "nobody", Status: "active",
	}), "events for unknown users are dropped")

	onboard(t, svc, "u1")
	require.NoError(t, svc.HandleBillingMessage(ctx, &amqp.BillingEventMessage{
		Type: "invoice.created", UserID: "u1",
	}), "unknown events are dropped")
	require.NoError(t, svc.HandleBillingMessage(ctx, &amqp.BillingEventMessage{
		Type: "checkout.completed", UserID: "", Status: "active",
	}), "events without a user are dropped")

	require.NoError(t, svc.HandleBillingMessage(ctx, &amqp.BillingEventMessage{
		Type: "checkout.completed", UserID: "u1", Status: "trialing",
	}))
	p, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.PlanPremium, p.Plan)
	assert.Equal(t, core.StatusTrialing, p.SubscriptionStatus)
}

func TestHandleBillingMessageRequeuesStorageFailures(t *testing.T) {
	repo := &failingRepo{MemoryRepository: storage.NewMemoryRepository()}
	svc := NewBudgetService(repo, nil, nil).WithClock(func() time.Time { return fixedNow })
	ctx := context.Background()
	onboard(t, svc, "u1")

	repo.saveErr = errors.New("disk full")
	err := svc.HandleBillingMessage(ctx, &amqp.BillingEventMessage{
		Type: "payment.failed", UserID: "u1",
	})
	assert.Error(t, err)
}
