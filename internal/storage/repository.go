// Package storage persists user snapshots.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"finny/internal/core"

	_ "modernc.org/sqlite"
)

// Repository loads and saves whole snapshots. Unknown users load as an
// empty snapshot at version 0.
type Repository interface {
	LoadSnapshot(ctx context.Context, userID string) (core.Snapshot, uint64, error)
	SaveSnapshot(ctx context.Context, userID string, version uint64, s core.Snapshot) error
	ListUserIDs(ctx context.Context) ([]string, error)
	Close() error
}

type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, userID string) (core.Snapshot, uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Snapshot{}, 0, fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	var version uint64
	err = tx.QueryRowContext(ctx, `SELECT version FROM users WHERE user_id = ?`, userID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EmptySnapshot(), 0, nil
	}
	if err != nil {
		return core.Snapshot{}, 0, fmt.Errorf("read version: %w", err)
	}

	s := core.EmptySnapshot()
	if s.Profile, err = loadProfile(ctx, tx, userID); err != nil {
		return core.Snapshot{}, 0, err
	}
	if s.FixedExpenses, err = loadFixedExpenses(ctx, tx, userID); err != nil {
		return core.Snapshot{}, 0, err
	}
	if s.TemporaryExpenses, err = loadTemporaryExpenses(ctx, tx, userID); err != nil {
		return core.Snapshot{}, 0, err
	}
	if s.Transactions, err = loadTransactions(ctx, tx, userID); err != nil {
		return core.Snapshot{}, 0, err
	}
	if s.MonthlyGoals, err = loadMonthlyGoals(ctx, tx, userID); err != nil {
		return core.Snapshot{}, 0, err
	}
	return s, version, nil
}

// SaveSnapshot replaces every stored record of userID in one transaction.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, userID string, version uint64, s core.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"profiles", "fixed_expenses", "temporary_expenses", "transactions", "monthly_goals"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if s.Profile != nil {
		p := toProfileRow(*s.Profile)
		_, err := tx.ExecContext(ctx, `INSERT INTO profiles (
			user_id, id, name, created_at, has_completed_onboarding, salary_cents, other_income_cents,
			pay_day, has_advance, advance_day, savings_goal_cents, leisure_budget_cents,
			plan, subscription_status, trial_ends_at, plan_expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, p.ID, p.Name, p.CreatedAt, p.HasCompletedOnboarding, p.SalaryCents, p.OtherIncomeCents,
			p.PayDay, p.HasAdvance, p.AdvanceDay, p.SavingsGoalCents, p.LeisureBudgetCents,
			p.Plan, p.SubscriptionStatus, p.TrialEndsAt, p.PlanExpiresAt)
		if err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
	}

	for i, e := range s.FixedExpenses {
		row := toFixedExpenseRow(e)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fixed_expenses (id, user_id, position, name, amount_cents, category, is_active) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.ID, userID, i, row.Name, row.AmountCents, row.Category, row.IsActive); err != nil {
			return fmt.Errorf("insert fixed expense %s: %w", row.ID, err)
		}
	}

	for i, e := range s.TemporaryExpenses {
		row := toTemporaryExpenseRow(e)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO temporary_expenses (id, user_id, position, name, amount_cents, category, start_month, start_year, end_month, end_year)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, userID, i, row.Name, row.AmountCents, row.Category, row.StartMonth, row.StartYear, row.EndMonth, row.EndYear); err != nil {
			return fmt.Errorf("insert temporary expense %s: %w", row.ID, err)
		}
	}

	for i, t := range s.Transactions {
		row := toTransactionRow(t)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, user_id, position, description, amount_cents, category, date, month, year, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, userID, i, row.Description, row.AmountCents, row.Category, row.Date, row.Month, row.Year, row.CreatedAt); err != nil {
			return fmt.Errorf("insert transaction %s: %w", row.ID, err)
		}
	}

	for i, g := range s.MonthlyGoals {
		row := toMonthlyGoalRow(g)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO monthly_goals (user_id, position, month, year, target_amount_cents) VALUES (?, ?, ?, ?, ?)`,
			userID, i, row.Month, row.Year, row.TargetAmountCents); err != nil {
			return fmt.Errorf("insert monthly goal %d/%d: %w", row.Month, row.Year, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (user_id, version, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		userID, version); err != nil {
		return fmt.Errorf("update version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot saved to SQLite",
		"user_id", userID,
		"version", version,
		"fixed_expenses", len(s.FixedExpenses),
		"temporary_expenses", len(s.TemporaryExpenses),
		"transactions", len(s.Transactions))
	return nil
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadProfile(ctx context.Context, tx *sql.Tx, userID string) (*core.Profile, error) {
	var row profileRow
	err := tx.QueryRowContext(ctx, `SELECT id, name, created_at, has_completed_onboarding, salary_cents,
		other_income_cents, pay_day, has_advance, advance_day, savings_goal_cents, leisure_budget_cents,
		plan, subscription_status, trial_ends_at, plan_expires_at
		FROM profiles WHERE user_id = ?`, userID).Scan(
		&row.ID, &row.Name, &row.CreatedAt, &row.HasCompletedOnboarding, &row.SalaryCents,
		&row.OtherIncomeCents, &row.PayDay, &row.HasAdvance, &row.AdvanceDay, &row.SavingsGoalCents,
		&row.LeisureBudgetCents, &row.Plan, &row.SubscriptionStatus, &row.TrialEndsAt, &row.PlanExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := row.toCore()
	if err != nil {
		return nil, fmt.Errorf("map profile: %w", err)
	}
	return &p, nil
}

func loadFixedExpenses(ctx context.Context, tx *sql.Tx, userID string) ([]core.FixedExpense, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, amount_cents, category, is_active FROM fixed_expenses WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("read fixed expenses: %w", err)
	}
	defer rows.Close()

	out := []core.FixedExpense{}
	for rows.Next() {
		var row fixedExpenseRow
		if err := rows.Scan(&row.ID, &row.Name, &row.AmountCents, &row.Category, &row.IsActive); err != nil {
			return nil, fmt.Errorf("scan fixed expense: %w", err)
		}
		out = append(out, row.toCore())
	}
	return out, rows.Err()
}

func loadTemporaryExpenses(ctx context.Context, tx *sql.Tx, userID string) ([]core.TemporaryExpense, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, amount_cents, category, start_month, start_year, end_month, end_year
		 FROM temporary_expenses WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("read temporary expenses: %w", err)
	}
	defer rows.Close()

	out := []core.TemporaryExpense{}
	for rows.Next() {
		var row temporaryExpenseRow
		if err := rows.Scan(&row.ID, &row.Name, &row.AmountCents, &row.Category,
			&row.StartMonth, &row.StartYear, &row.EndMonth, &row.EndYear); err != nil {
			return nil, fmt.Errorf("scan temporary expense: %w", err)
		}
		out = append(out, row.toCore())
	}
	return out, rows.Err()
}

func loadTransactions(ctx context.Context, tx *sql.Tx, userID string) ([]core.Transaction, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, description, amount_cents, category, date, month, year, created_at
		 FROM transactions WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var row transactionRow
		if err := rows.Scan(&row.ID, &row.Description, &row.AmountCents, &row.Category,
			&row.Date, &row.Month, &row.Year, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t, err := row.toCore()
		if err != nil {
			return nil, fmt.Errorf("map transaction %s: %w", row.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadMonthlyGoals(ctx context.Context, tx *sql.Tx, userID string) ([]core.MonthlyGoal, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT month, year, target_amount_cents FROM monthly_goals WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("read monthly goals: %w", err)
	}
	defer rows.Close()

	out := []core.MonthlyGoal{}
	for rows.Next() {
		var row monthlyGoalRow
		if err := rows.Scan(&row.Month, &row.Year, &row.TargetAmountCents); err != nil {
			return nil, fmt.Errorf("scan monthly goal: %w", err)
		}
		out = append(out, row.toCore())
	}
	return out, rows.Err()
}
