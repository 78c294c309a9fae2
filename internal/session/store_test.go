package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finny/internal/core"
)

func newTestStore(commit CommitFunc) *Store {
	return NewStore("u1", State{Snapshot: core.EmptySnapshot()}, commit)
}

func TestApplyPublishesNewVersion(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(nil)
	before := st.Current()

	next, err := st.Apply(ctx,
		SetProfile(core.Profile{Name: "Ana", Salary: core.FromMajor(5000), PayDay: 5}),
		AddFixedExpense(core.FixedExpense{Name: "Rent", Amount: core.FromMajor(1500), Category: core.CategoryHousing, IsActive: true}),
	)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), next.Version)
	assert.Equal(t, next, st.Current())
	require.Len(t, next.Snapshot.FixedExpenses, 1)
	assert.NotEmpty(t, next.Snapshot.FixedExpenses[0].ID)
	assert.NotEmpty(t, next.Snapshot.Profile.ID)

	assert.Nil(t, before.Snapshot.Profile)
	assert.Empty(t, before.Snapshot.FixedExpenses)
}

func TestApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(nil)
	_, err := st.Apply(ctx, AddTransaction(core.Transaction{ID: "t1", Month: 1, Year: 2024}))
	require.NoError(t, err)

	_, err = st.Apply(ctx,
		AddTransaction(core.Transaction{ID: "t2", Month: 1, Year: 2024}),
		RemoveTransaction("missing"),
	)
	require.ErrorIs(t, err, ErrNotFound)

	cur := st.Current()
	assert.Equal(t, uint64(1), cur.Version)
	require.Len(t, cur.Snapshot.Transactions, 1)
	assert.Equal(t, "t1", cur.Snapshot.Transactions[0].ID)
}

func TestFailedCommitKeepsState(t *testing.T) {
	boom := errors.New("disk full")
	var committed []uint64
	fail := false
	st := newTestStore(func(_ context.Context, userID string, next State) error {
		assert.Equal(t, "u1", userID)
		if fail {
			return boom
		}
		committed = append(committed, next.Version)
		return nil
	})

	_, err := st.Apply(context.Background(), SetMonthlyGoal(core.MonthlyGoal{Month: 1, Year: 2024, TargetAmount: core.FromMajor(10)}))
	require.NoError(t, err)

	fail = true
	_, err = st.Apply(context.Background(), Reset())
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []uint64{1}, committed)
	assert.Len(t, st.Current().Snapshot.MonthlyGoals, 1)
}

func TestRecordMutations(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(nil)

	_, err := st.Apply(ctx,
		AddFixedExpense(core.FixedExpense{ID: "f1", Name: "Rent", IsActive: true}),
		AddTemporaryExpense(core.TemporaryExpense{ID: "t1", Name: "TV"}),
		SetMonthlyGoal(core.MonthlyGoal{Month: 2, Year: 2024, TargetAmount: core.FromMajor(100)}),
		SetMonthlyGoal(core.MonthlyGoal{Month: 2, Year: 2024, TargetAmount: core.FromMajor(200)}),
	)
	require.NoError(t, err)

	state, err := st.Apply(ctx, ToggleFixedExpense("f1"))
	require.NoError(t, err)
	assert.False(t, state.Snapshot.FixedExpenses[0].IsActive)
	require.Len(t, state.Snapshot.MonthlyGoals, 1)
	assert.Equal(t, core.FromMajor(200), state.Snapshot.MonthlyGoals[0].TargetAmount)

	state, err = st.Apply(ctx, UpdateFixedExpense("f1", func(e *core.FixedExpense) error {
		e.Name = "Rent + fees"
		e.ID = "hijack"
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "f1", state.Snapshot.FixedExpenses[0].ID)
	assert.Equal(t, "Rent + fees", state.Snapshot.FixedExpenses[0].Name)

	state, err = st.Apply(ctx, RemoveFixedExpense("f1"), RemoveTemporaryExpense("t1"))
	require.NoError(t, err)
	assert.Empty(t, state.Snapshot.FixedExpenses)
	assert.Empty(t, state.Snapshot.TemporaryExpenses)

	_, err = st.Apply(ctx, UpdateProfile(func(p *core.Profile) { p.Name = "x" }))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckSeesWorkingCopy(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(nil)
	limitErr := errors.New("limit")
	maxTwo := Check(func(s core.Snapshot) error {
		if len(s.Transactions) >= 2 {
			return limitErr
		}
		return nil
	})

	for i := 0; i < 2; i++ {
		_, err := st.Apply(ctx, maxTwo, AddTransaction(core.Transaction{}))
		require.NoError(t, err)
	}
	_, err := st.Apply(ctx, maxTwo, AddTransaction(core.Transaction{}))
	require.ErrorIs(t, err, limitErr)
}

func TestConcurrentWritersSerialize(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Apply(ctx, AddTransaction(core.Transaction{Month: 1, Year: 2024}))
			assert.NoError(t, err)
			_ = st.Current()
		}()
	}
	wg.Wait()

	cur := st.Current()
	assert.Equal(t, uint64(50), cur.Version)
	assert.Len(t, cur.Snapshot.Transactions, 50)
}

func TestRegistryLoadsOnce(t *testing.T) {
	loads := 0
	reg := NewRegistry(func(_ context.Context, userID string) (State, error) {
		loads++
		s := core.EmptySnapshot()
		s.Profile = &core.Profile{ID: userID}
		return State{Version: 7, Snapshot: s}, nil
	}, nil)

	a, err := reg.Get(context.Background(), "u1")
	require.NoError(t, err)
	b, err := reg.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, loads)
	assert.Equal(t, "u1", a.Current().Snapshot.Profile.ID)
	assert.Equal(t, uint64(7), a.Current().Version)

	reg.Evict("u1")
	_, err = reg.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestRegistryLoadError(t *testing.T) {
	boom := errors.New("db down")
	reg := NewRegistry(func(context.Context, string) (State, error) {
		return State{}, boom
	}, nil)
	_, err := reg.Get(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryLoadsUsersIndependently(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	reg := NewRegistry(func(_ context.Context, userID string) (State, error) {
		if userID == "slow" {
			close(entered)
			<-release
		}
		return State{Snapshot: core.EmptySnapshot()}, nil
	}, nil)

	slowDone := make(chan error, 1)
	go func() {
		_, err := reg.Get(context.Background(), "slow")
		slowDone <- err
	}()
	<-entered

	fastDone := make(chan error, 1)
	go func() {
		_, err := reg.Get(context.Background(), "fast")
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loading one user blocked another")
	}

	close(release)
	require.NoError(t, <-slowDone)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistrySharesConcurrentLoads(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	reg := NewRegistry(func(context.Context, string) (State, error) {
		loads.Add(1)
		<-release
		return State{Snapshot: core.EmptySnapshot()}, nil
	}, nil)

	const callers = 8
	stores := make([]*Store, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := reg.Get(context.Background(), "u1")
			assert.NoError(t, err)
			stores[i] = st
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, st := range stores {
		assert.Same(t, stores[0], st)
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, reg.Len())
}
