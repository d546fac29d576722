package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
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
		{"0", 0, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}

	if _, err := ParseAmount("-0.50"); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestFromFloat(t *testing.T) {
	m, err := FromFloat(10.5)
	if err != nil || m.Cents != 1050 {
		t.Fatalf("expected 1050, got %d (err=%v)", m.Cents, err)
	}
	if _, err := FromFloat(-3); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestMoneyFormatting(t *testing.T) {
	m := Money{Cents: 1234}
	if m.String() != "12.34" {
		t.Fatalf("unexpected string %s", m.String())
	}
	if m.Float() != 12.34 {
		t.Fatalf("unexpected float %v", m.Float())
	}
	if got := m.Add(Money{Cents: 66}); got.Cents != 1300 {
		t.Fatalf("unexpected sum %d", got.Cents)
	}
	if (Money{Cents: 5}).String() != "0.05" {
		t.Fatalf("unexpected small string %s", (Money{Cents: 5}).String())
	}
}
