package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"$1,234.50", 123450, true},
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"1.005", 101, true}, // half away from zero
		{"12.345", 1235, true},
		{"-1.5", -150, true},
		{"-$2.004", -200, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"$", 0, false},
		{"--1", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestCoerceAmountFallsBackToZero(t *testing.T) {
	for _, in := range []string{"", "n/a", "12abc", "TBD"} {
		if got := CoerceAmount(in); !got.IsZero() {
			t.Fatalf("CoerceAmount(%q) = %d, want 0", in, got.Cents)
		}
	}
	if got := CoerceAmount("$80"); got.Cents != 8000 {
		t.Fatalf("CoerceAmount($80) = %d", got.Cents)
	}
}

func TestMoneyFormatting(t *testing.T) {
	cases := []struct {
		cents int64
		plain string
		usd   string
	}{
		{0, "0.00", "$0.00"},
		{5, "0.05", "$0.05"},
		{10000, "100.00", "$100.00"},
		{123456, "1234.56", "$1,234.56"},
		{100000000, "1000000.00", "$1,000,000.00"},
		{-100000, "-1000.00", "-$1,000.00"},
	}
	for _, tc := range cases {
		m := Money{Cents: tc.cents}
		if got := m.String(); got != tc.plain {
			t.Errorf("String(%d) = %q, want %q", tc.cents, got, tc.plain)
		}
		if got := m.USD(); got != tc.usd {
			t.Errorf("USD(%d) = %q, want %q", tc.cents, got, tc.usd)
		}
	}
}
