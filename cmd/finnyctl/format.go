package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"finny/internal/core"
)

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow, color.Bold)
	green  = color.New(color.FgGreen)
	bold   = color.New(color.Bold)
)

// formatter renders amounts for one locale and currency.
type formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

func (g *Globals) formatter() (*formatter, error) {
	tag, err := language.Parse(g.Locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", g.Locale, err)
	}
	unit, err := currency.ParseISO(g.Currency)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", g.Currency, err)
	}
	if g.NoColor {
		color.NoColor = true
	}
	return &formatter{printer: message.NewPrinter(tag), unit: unit}, nil
}

// Money formats m with grouping for the locale, e.g. "BRL 1.500,00".
func (f *formatter) Money(m core.Money) string {
	return f.printer.Sprintf("%s %.2f", f.unit, m.Major())
}

// Signed colors negative amounts red.
func (f *formatter) Signed(m core.Money) string {
	s := f.Money(m)
	if m.IsNegative() {
		return red.Sprint(s)
	}
	return s
}

func (f *formatter) Percent(p float64) string {
	return f.printer.Sprintf("%.1f%%", p)
}

func (g *Globals) writer() io.Writer {
	if g.out == nil {
		return os.Stdout
	}
	return g.out
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
