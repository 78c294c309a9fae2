// Package snapshot encodes and decodes the JSON exchange format used for
// backup export, import and initial load.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"finny/internal/core"
)

// ErrMalformedSnapshot is returned when the input is not a JSON object.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

const (
	keyProfile           = "profile"
	keyFixedExpenses     = "fixedExpenses"
	keyTemporaryExpenses = "temporaryExpenses"
	keyTransactions      = "transactions"
	keyMonthlyGoals      = "monthlyGoals"
	// local edition name for transactions
	keyLegacyExpenses = "expenses"
)

// Encode writes the snapshot with a fixed key order. Nil collections are
// written as empty arrays and a missing profile as null.
func Encode(s core.Snapshot) ([]byte, error) {
	b, err := json.Marshal(s.Normalize())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// EncodeIndent is Encode with two-space indentation for files meant to be read.
func EncodeIndent(s core.Snapshot) ([]byte, error) {
	b, err := json.MarshalIndent(s.Normalize(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses data. Only input that is not a JSON object fails; every
// member is decoded on its own, and a missing, null or ill-typed member
// falls back to its empty value.
func Decode(data []byte) (core.Snapshot, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if members == nil {
		return core.Snapshot{}, fmt.Errorf("%w: not an object", ErrMalformedSnapshot)
	}

	out := core.EmptySnapshot()
	if raw, ok := members[keyProfile]; ok && !isNull(raw) {
		var p core.Profile
		if json.Unmarshal(raw, &p) == nil {
			out.Profile = &p
		}
	}
	decodeList(members[keyFixedExpenses], &out.FixedExpenses)
	decodeList(members[keyTemporaryExpenses], &out.TemporaryExpenses)
	if raw, ok := members[keyTransactions]; ok {
		decodeList(raw, &out.Transactions)
	} else {
		decodeList(members[keyLegacyExpenses], &out.Transactions)
		rederivePeriods(out.Transactions)
	}
	decodeList(members[keyMonthlyGoals], &out.MonthlyGoals)
	return out, nil
}

// rederivePeriods sets month and year from the date. Local edition backups
// computed them in the browser's time zone, so a transaction dated the 1st
// can carry the previous month.
func rederivePeriods(ts []core.Transaction) {
	for i := range ts {
		if ts[i].Date.IsZero() {
			continue
		}
		p := ts[i].Date.Period()
		ts[i].Month, ts[i].Year = p.Month, p.Year
	}
}

// decodeList leaves dst untouched unless raw is a well-formed list.
func decodeList[T any](raw json.RawMessage, dst *[]T) {
	if len(raw) == 0 || isNull(raw) {
		return
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return
	}
	if items == nil {
		items = []T{}
	}
	*dst = items
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
