package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{",5", 50, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1e3", 0, false},
		{"0", 0, false},
		{"0.001", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Money{Cents: 1050}
	b := Money{Cents: 250}
	if got := a.Add(b); got.Cents != 1300 {
		t.Fatalf("add: got %d", got.Cents)
	}
	if got := b.Sub(a); got.Cents != -800 || !got.IsNegative() {
		t.Fatalf("sub: got %d", got.Cents)
	}
	if got := a.Neg(); got.Cents != -1050 {
		t.Fatalf("neg: got %d", got.Cents)
	}
	if got := a.MulInt(12); got.Cents != 12600 {
		t.Fatalf("mul: got %d", got.Cents)
	}
	if got := (Money{Cents: -1001}).DivInt(12); got.Cents != -83 {
		t.Fatalf("div truncates toward zero: got %d", got.Cents)
	}
	if got := a.DivInt(0); !got.IsZero() {
		t.Fatalf("div by zero: got %d", got.Cents)
	}
	if FromMajor(15).Cents != 1500 {
		t.Fatalf("from major")
	}
	if s := (Money{Cents: 123456}).String(); s != "1234.56" {
		t.Fatalf("string: got %s", s)
	}
}

func TestMoneyJSON(t *testing.T) {
	cases := []struct {
		cents int64
		json  string
	}{
		{150000, "1500"},
		{1234, "12.34"},
		{50, "0.5"},
		{-2500, "-25"},
		{0, "0"},
	}
	for _, tc := range cases {
		b, err := json.Marshal(Money{Cents: tc.cents})
		if err != nil {
			t.Fatalf("marshal %d: %v", tc.cents, err)
		}
		if string(b) != tc.json {
			t.Fatalf("marshal %d: expected %s, got %s", tc.cents, tc.json, b)
		}
	}

	decode := []struct {
		in    string
		cents int64
	}{
		{"1500", 150000},
		{"12.345", 1235},
		{"-12.345", -1235},
		{`"99.99"`, 9999},
		{"null", 0},
		{"0.1", 10},
	}
	for _, tc := range decode {
		var m Money
		if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if m.Cents != tc.cents {
			t.Fatalf("unmarshal %s: expected %d, got %d", tc.in, tc.cents, m.Cents)
		}
	}

	var m Money
	if err := json.Unmarshal([]byte(`"abc"`), &m); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}

	for _, in := range []string{"100000000000000000000", "-1e20", `"92233720368547758.08"`, "1e300"} {
		m := Money{Cents: 7}
		if err := json.Unmarshal([]byte(in), &m); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("unmarshal %s: expected ErrInvalidAmount, got %v (cents=%d)", in, err, m.Cents)
		}
		if m.Cents != 7 {
			t.Fatalf("unmarshal %s: amount changed to %d on error", in, m.Cents)
		}
	}

	var edge Money
	if err := json.Unmarshal([]byte("92233720368547758.07"), &edge); err != nil || edge.Cents != math.MaxInt64 {
		t.Fatalf("largest amount: got %d (err=%v)", edge.Cents, err)
	}
}
