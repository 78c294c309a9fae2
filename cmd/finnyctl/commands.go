package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"finny/internal/billing"
	"finny/internal/config"
	"finny/internal/core"
	"finny/internal/finance"
	"finny/internal/limits"
	gsheet "finny/internal/sheets/google"
	"finny/internal/snapshot"
	"finny/internal/storage"
)

var errNoProfile = errors.New("snapshot has no profile")

// SnapshotFlags selects the snapshot file. "-" reads standard input.
type SnapshotFlags struct {
	File string `short:"f" required:"" help:"Snapshot JSON file, or - for stdin."`
}

func (s SnapshotFlags) load() (core.Snapshot, error) {
	var (
		data []byte
		err  error
	)
	if s.File == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(s.File)
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return snapshot.Decode(data)
}

// PeriodFlags defaults to the current month.
type PeriodFlags struct {
	Month int `help:"Month 1-12, defaults to the current month."`
	Year  int `help:"Year, defaults to the current year."`
}

func (p PeriodFlags) resolve(now time.Time) (core.Period, error) {
	period := core.PeriodOf(now)
	if p.Month != 0 {
		period.Month = p.Month
	}
	if p.Year != 0 {
		period.Year = p.Year
	}
	return period, period.Validate()
}

type summaryCmd struct {
	SnapshotFlags
	Year int `help:"Year, defaults to the current year."`
}

func (c *summaryCmd) Run(g *Globals) error {
	snap, err := c.load()
	if err != nil {
		return err
	}
	f, err := g.formatter()
	if err != nil {
		return err
	}
	year := c.Year
	if year == 0 {
		year = g.now().Year()
	}
	sum := finance.New(snap).AnnualSummary(year)

	w := g.writer()
	bold.Fprintf(w, "Annual summary %d\n", sum.Year)
	tw := newTable(w)
	fmt.Fprintln(tw, "Month\tIncome\tExpenses\tBalance\tGoal\t")
	for _, m := range sum.Months {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			time.Month(m.Month).String()[:3],
			f.Money(m.Income), f.Money(m.Expenses), f.Signed(m.Balance), f.Money(m.Goal))
	}
	fmt.Fprintf(tw, "Total\t%s\t%s\t%s\t\t\n", f.Money(sum.TotalIncome), f.Money(sum.TotalExpenses), f.Signed(sum.TotalSaved))
	fmt.Fprintf(tw, "Average\t\t%s\t%s\t\t\n", f.Money(sum.AverageMonthlyExpenses), f.Signed(sum.AverageMonthlySaved))
	return tw.Flush()
}

type monthCmd struct {
	SnapshotFlags
	PeriodFlags
}

func (c *monthCmd) Run(g *Globals) error {
	snap, err := c.load()
	if err != nil {
		return err
	}
	if snap.Profile == nil {
		return errNoProfile
	}
	f, err := g.formatter()
	if err != nil {
		return err
	}
	period, err := c.resolve(g.now())
	if err != nil {
		return err
	}
	calc := finance.New(snap)
	st := calc.MonthStats(period)

	w := g.writer()
	bold.Fprintf(w, "Month %s\n", period)
	tw := newTable(w)
	rows := []struct {
		label string
		value string
	}{
		{"Income", f.Money(st.Income)},
		{"Fixed expenses", f.Money(st.FixedExpenses)},
		{"Temporary expenses", f.Money(st.TemporaryExpenses)},
		{"Variable expenses", f.Money(st.VariableExpenses)},
		{"Balance", f.Signed(st.Balance)},
		{"Savings goal", f.Money(st.SavingsGoal)},
		{"After savings goal", f.Signed(st.AfterSavingsGoal)},
		{"Leisure budget", f.Money(st.LeisureBudget)},
		{"Leisure spent", f.Money(st.LeisureExpenses) + " (" + f.Percent(st.LeisurePercentage) + ")"},
		{"Leisure remaining", f.Signed(st.LeisureRemaining)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t\n", r.label, r.value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	breakdown := calc.CategoryBreakdown(period)
	if len(breakdown) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	bold.Fprintln(w, "By category")
	tw = newTable(w)
	for _, share := range breakdown {
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t\n", share.Icon, share.Name, f.Money(share.Amount), f.Percent(share.Percentage))
	}
	return tw.Flush()
}

type usageCmd struct {
	SnapshotFlags
	PeriodFlags
}

func (c *usageCmd) Run(g *Globals) error {
	snap, err := c.load()
	if err != nil {
		return err
	}
	if snap.Profile == nil {
		return errNoProfile
	}
	if _, err := g.formatter(); err != nil {
		return err
	}
	period, err := c.resolve(g.now())
	if err != nil {
		return err
	}
	tier, err := billing.EffectiveTier(*snap.Profile, g.now())
	if err != nil {
		return err
	}
	report, err := limits.Report(tier, snap, period)
	if err != nil {
		return err
	}

	w := g.writer()
	bold.Fprintf(w, "Plan %s, %s\n", report.Plan, period)
	tw := newTable(w)
	for _, u := range []struct {
		label string
		usage limits.Usage
	}{
		{"Transactions", report.Transactions},
		{"Fixed expenses", report.FixedExpenses},
		{"Temporary expenses", report.TemporaryExpenses},
	} {
		line := fmt.Sprintf("%d / %s (%d%%)", u.usage.Used, u.usage.Limit, u.usage.Percentage)
		switch {
		case u.usage.ReachedLimit:
			line = red.Sprint(line + " limit reached")
		case u.usage.NearLimit:
			line = yellow.Sprint(line + " near limit")
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", u.label, line)
	}
	fmt.Fprintf(tw, "History months\t%s\t\n", report.HistoryMonths)
	fmt.Fprintf(tw, "Export\t%t\t\n", report.CanExport)
	return tw.Flush()
}

type validateCmd struct {
	SnapshotFlags
}

func (c *validateCmd) Run(g *Globals) error {
	snap, err := c.load()
	if err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	green.Fprintf(g.writer(), "ok: %d fixed, %d temporary, %d transactions, %d goals\n",
		len(snap.FixedExpenses), len(snap.TemporaryExpenses), len(snap.Transactions), len(snap.MonthlyGoals))
	return nil
}

type normalizeCmd struct {
	SnapshotFlags
	Out string `short:"o" help:"Output file, defaults to stdout." type:"path"`
}

func (c *normalizeCmd) Run(g *Globals) error {
	snap, err := c.load()
	if err != nil {
		return err
	}
	data, err := snapshot.EncodeIndent(snap)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if c.Out == "" {
		_, err = g.writer().Write(data)
		return err
	}
	return os.WriteFile(c.Out, data, 0o600)
}

type exportSheetsCmd struct {
	SnapshotFlags
	Year   int  `help:"Year, defaults to the current year."`
	DryRun bool `name:"dry-run" help:"Print the rows instead of writing them."`
}

func (c *exportSheetsCmd) Run(g *Globals) error {
	snap, err := c.load()
	if err != nil {
		return err
	}
	year := c.Year
	if year == 0 {
		year = g.now().Year()
	}
	sum := finance.New(snap).AnnualSummary(year)

	if c.DryRun {
		tw := newTable(g.writer())
		for _, row := range gsheet.AnnualRows(sum) {
			for _, cell := range row {
				fmt.Fprintf(tw, "%v\t", cell)
			}
			fmt.Fprintln(tw)
		}
		return tw.Flush()
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	exporter, err := gsheet.NewFromConfig(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		return err
	}
	if err := exporter.ExportAnnual(ctx, "", sum); err != nil {
		return err
	}
	green.Fprintf(g.writer(), "exported %s\n", gsheet.SheetTitle(cfg.GoogleSheetName, year, ""))
	return nil
}

type migrateCmd struct {
	Up      migrateUpCmd      `cmd:"" help:"Apply all pending migrations."`
	Down    migrateDownCmd    `cmd:"" help:"Roll back every migration."`
	Version migrateVersionCmd `cmd:"" help:"Print the schema version."`
}

type DBFlags struct {
	DB string `help:"SQLite database path." default:"./data/finny.db" env:"SQLITE_DB_PATH" type:"path"`
}

type migrateUpCmd struct{ DBFlags }

func (c *migrateUpCmd) Run(g *Globals) error {
	if err := storage.RunMigrations(c.DB); err != nil {
		return err
	}
	green.Fprintln(g.writer(), "migrations applied")
	return nil
}

type migrateDownCmd struct{ DBFlags }

func (c *migrateDownCmd) Run(g *Globals) error {
	if err := storage.RollbackMigrations(c.DB); err != nil {
		return err
	}
	yellow.Fprintln(g.writer(), "migrations rolled back")
	return nil
}

type migrateVersionCmd struct{ DBFlags }

func (c *migrateVersionCmd) Run(g *Globals) error {
	version, dirty, err := storage.SchemaVersion(c.DB)
	if err != nil {
		return err
	}
	if dirty {
		red.Fprintf(g.writer(), "version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(g.writer(), "version %d\n", version)
	return nil
}
