package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"finny/internal/billing"
	"finny/internal/core"
	"finny/internal/limits"
	"finny/internal/session"
	"finny/internal/snapshot"
)

type addCmd struct {
	SnapshotFlags
	Description string `arg:"" help:"What was bought."`
	Amount      string `arg:"" help:"Amount such as 12.34 or 12,34."`
	Category    string `short:"c" default:"other" help:"Category id; legacy ids are accepted."`
	Date        string `help:"Date as YYYY-MM-DD, defaults to today."`
	Out         string `short:"o" help:"Output file, defaults to rewriting --file."`
	Force       bool   `help:"Add even when the plan limit is reached."`
}

// Run appends one transaction to the snapshot and writes it back.
func (c *addCmd) Run(g *Globals) error {
	snap, err := c.load()
	if err != nil {
		return err
	}
	cents, err := core.ParseDecimalToCents(c.Amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", c.Amount, err)
	}
	category, err := core.ParseCategory(c.Category)
	if err != nil {
		return err
	}
	now := g.now()
	date := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if c.Date != "" {
		if date, err = core.ParseDate(c.Date); err != nil {
			return err
		}
	}
	t := core.NewTransaction(strings.TrimSpace(c.Description), core.Money{Cents: cents}, category, date, now)
	if err := t.Validate(); err != nil {
		return err
	}

	if !c.Force && snap.Profile != nil {
		tier, err := billing.EffectiveTier(*snap.Profile, now)
		if err != nil {
			return err
		}
		ok, err := limits.CanAdd(limits.KindTransaction, tier, limits.CountFor(limits.KindTransaction, snap, t.Period()))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s plan allows no more transactions in %s (use --force)", tier, t.Period())
		}
	}

	st, err := session.NewStore("", session.State{Snapshot: snap}, nil).Apply(context.Background(), session.AddTransaction(t))
	if err != nil {
		return err
	}
	data, err := snapshot.EncodeIndent(st.Snapshot)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	out := c.Out
	if out == "" && c.File != "-" {
		out = c.File
	}
	if out == "" {
		_, err = g.writer().Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return err
	}
	green.Fprintf(g.writer(), "added %s %s on %s\n", t.Description, core.Money{Cents: cents}, date)
	return nil
}
