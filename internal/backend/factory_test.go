package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"finny/internal/config"
	"finny/internal/storage"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	_, err := FromAppConfig(&config.Config{DataBackend: "sheets"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "sqlite, memory") {
		t.Errorf("error should list the valid backends: %v", err)
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db"})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}
}

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	mem, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := mem.Repository.(*storage.MemoryRepository); !ok {
		t.Errorf("memory backend returned %T", mem.Repository)
	}

	sq, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "finny.db")})
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	defer sq.Cleanup()
	if _, ok := sq.Repository.(*storage.SQLiteRepository); !ok {
		t.Errorf("sqlite backend returned %T", sq.Repository)
	}

	if _, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend}); err == nil {
		t.Error("expected error without a database path")
	}
}
