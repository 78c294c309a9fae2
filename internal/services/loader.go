package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"finny/internal/session"
	"finny/internal/storage"
)

// TransientError marks a failure worth retrying, such as a locked database.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is marked transient or is a SQLite
// busy/locked error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

// ProfileLoader loads snapshots from a repository, retrying transient
// failures with exponential backoff until MaxElapsed.
type ProfileLoader struct {
	repo       storage.Repository
	MaxElapsed time.Duration
}

func NewProfileLoader(repo storage.Repository) *ProfileLoader {
	return &ProfileLoader{repo: repo, MaxElapsed: 10 * time.Second}
}

// Load fetches the stored state of userID.
func (l *ProfileLoader) Load(ctx context.Context, userID string) (session.State, error) {
	var st session.State
	err := Retry(ctx, l.MaxElapsed, func() error {
		snap, version, err := l.repo.LoadSnapshot(ctx, userID)
		if err != nil {
			return err
		}
		st = session.State{Version: version, Snapshot: snap}
		return nil
	})
	return st, err
}

// Retry runs op until it succeeds, fails with a non-transient error, ctx
// ends or maxElapsed passes.
func Retry(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "Transient failure, retrying", "error", err, "retry_in", wait)
	})
}
