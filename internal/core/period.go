package core

import (
	"fmt"
	"time"
)

// Period is a calendar month.
type Period struct {
	Month int
	Year  int
}

func NewPeriod(month, year int) Period {
	return Period{Month: month, Year: year}
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// Index is the linearized month index year*12 + month. Period comparisons
// always go through it so that equal months of different years never alias.
func (p Period) Index() int {
	return p.Year*12 + p.Month
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < 1 {
		return ErrInvalidYear
	}
	return nil
}

func (p Period) Before(o Period) bool { return p.Index() < o.Index() }
func (p Period) After(o Period) bool  { return p.Index() > o.Index() }
func (p Period) Equal(o Period) bool  { return p.Index() == o.Index() }

// Contains reports whether p lies in the inclusive range [start, end].
func (p Period) Contains(start, end Period) bool {
	i := p.Index()
	return start.Index() <= i && i <= end.Index()
}

// AddMonths moves n months forward (or backward when n < 0).
func (p Period) AddMonths(n int) Period {
	zero := p.Year*12 + (p.Month - 1) + n
	year := zero / 12
	month := zero % 12
	if month < 0 {
		month += 12
		year--
	}
	return Period{Month: month + 1, Year: year}
}

func (p Period) Next() Period { return p.AddMonths(1) }
func (p Period) Prev() Period { return p.AddMonths(-1) }

// MonthsUntil returns the number of months from p to o (negative if o is earlier).
func (p Period) MonthsUntil(o Period) int {
	return o.Index() - p.Index()
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
