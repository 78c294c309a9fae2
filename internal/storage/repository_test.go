package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finny/internal/core"
)

func sampleSnapshot() core.Snapshot {
	created := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	trial := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return core.Snapshot{
		Profile: &core.Profile{
			ID:                     "p1",
			Name:                   "Ana",
			CreatedAt:              created,
			HasCompletedOnboarding: true,
			Salary:                 core.Money{Cents: 500012},
			PayDay:                 5,
			HasAdvance:             true,
			AdvanceDay:             20,
			SavingsGoal:            core.FromMajor(500),
			LeisureBudget:          core.FromMajor(300),
			Plan:                   core.PlanPremium,
			SubscriptionStatus:     core.StatusTrialing,
			TrialEndsAt:            &trial,
		},
		FixedExpenses: []core.FixedExpense{
			{ID: "f2", Name: "Rent", Amount: core.FromMajor(1500), Category: core.CategoryHousing, IsActive: true},
			{ID: "f1", Name: "Gym", Amount: core.Money{Cents: 9990}, Category: core.CategoryHealth},
		},
		TemporaryExpenses: []core.TemporaryExpense{
			{ID: "t1", Name: "TV", Amount: core.FromMajor(100), Category: core.CategoryShopping, StartMonth: 11, StartYear: 2024, EndMonth: 2, EndYear: 2025},
		},
		Transactions: []core.Transaction{
			core.NewTransaction("Lunch", core.Money{Cents: 2550}, core.CategoryFood, core.NewDate(2024, 3, 15), created),
		},
		MonthlyGoals: []core.MonthlyGoal{{Month: 3, Year: 2024, TargetAmount: core.FromMajor(800)}},
	}
}

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "finny.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)
	in := sampleSnapshot()
	in.Transactions[0].ID = "x1"

	require.NoError(t, repo.SaveSnapshot(ctx, "u1", 3, in))

	out, version, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), version)
	assert.Equal(t, in, out)
}

func TestSQLiteUnknownUser(t *testing.T) {
	repo := newTestSQLite(t)
	s, version, err := repo.LoadSnapshot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.Equal(t, core.EmptySnapshot(), s)
}

func TestSQLiteSaveReplacesAll(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)
	require.NoError(t, repo.SaveSnapshot(ctx, "u1", 1, sampleSnapshot()))
	require.NoError(t, repo.SaveSnapshot(ctx, "u2", 1, sampleSnapshot()))

	next := core.EmptySnapshot()
	next.Profile = &core.Profile{ID: "p1", Name: "Ana", PayDay: 1}
	require.NoError(t, repo.SaveSnapshot(ctx, "u1", 2, next))

	out, version, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Empty(t, out.FixedExpenses)
	assert.Empty(t, out.Transactions)
	require.NotNil(t, out.Profile)
	assert.Equal(t, core.PlanFree, out.Profile.Plan)
	assert.Equal(t, core.StatusNone, out.Profile.SubscriptionStatus)

	other, _, err := repo.LoadSnapshot(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, other.FixedExpenses, 2)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestMemoryRepositoryIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	in := sampleSnapshot()
	require.NoError(t, repo.SaveSnapshot(ctx, "u1", 1, in))

	in.Profile.Name = "changed"
	out, version, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, "Ana", out.Profile.Name)

	out.FixedExpenses[0].Name = "mutated"
	again, _, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Rent", again.FixedExpenses[0].Name)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestMigrationsVersionAndRollback(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "finny.db")
	repo, err := NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	version, dirty, err := SchemaVersion(dbPath)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, RunMigrations(dbPath))
	require.NoError(t, RollbackMigrations(dbPath))

	version, _, err = SchemaVersion(dbPath)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
