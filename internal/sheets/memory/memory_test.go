package memory

import (
	"context"
	"errors"
	"testing"

	"finny/internal/core"
	"finny/internal/finance"
)

func TestStoreKeepsLatestPerUserAndYear(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.ExportAnnual(ctx, "b", finance.AnnualSummary{Year: 2024}); err != nil {
		t.Fatalf("ExportAnnual: %v", err)
	}
	_ = s.ExportAnnual(ctx, "a", finance.AnnualSummary{Year: 2024})
	_ = s.ExportAnnual(ctx, "a", finance.AnnualSummary{Year: 2024, TotalIncome: core.FromMajor(10)})
	_ = s.ExportAnnual(ctx, "a", finance.AnnualSummary{Year: 2023})

	if got := s.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}
	if got := s.Users(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Users() = %v", got)
	}
	if sum, _ := s.Get("a", 2024); sum.TotalIncome != core.FromMajor(10) {
		t.Errorf("Get(a, 2024) kept %v, want the latest export", sum.TotalIncome)
	}
	if _, ok := s.Get("a", 2023); !ok {
		t.Error("missing 2023 export")
	}
	if _, ok := s.Get("b", 2023); ok {
		t.Error("unexpected export for b/2023")
	}
}

func TestStoreFailWith(t *testing.T) {
	s := New()
	boom := errors.New("quota exceeded")
	s.FailWith(boom)
	if err := s.ExportAnnual(context.Background(), "a", finance.AnnualSummary{Year: 2024}); !errors.Is(err, boom) {
		t.Fatalf("ExportAnnual() error = %v, want %v", err, boom)
	}
	s.FailWith(nil)
	if err := s.ExportAnnual(context.Background(), "a", finance.AnnualSummary{Year: 2024}); err != nil {
		t.Fatalf("ExportAnnual() after clearing = %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}
