package money

import (
	"errors"
	"math"
	"testing"
)

func TestToPaise(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{1, 100},
		{99.99, 9999},
		{0.005, 1},
		{123.456, 12346},
	}
	for _, c := range cases {
		got, err := ToPaise(c.in)
		if err != nil {
			t.Fatalf("ToPaise(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ToPaise(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestToPaiseRejectsBadInput(t *testing.T) {
	for _, in := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := ToPaise(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ToPaise(%v) err = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestToRupees(t *testing.T) {
	if got := ToRupees(42000); got != 420 {
		t.Fatalf("ToRupees(42000) = %v, want 420", got)
	}
	if got := ToRupees(1); got != 0.01 {
		t.Fatalf("ToRupees(1) = %v, want 0.01", got)
	}
}

func TestGSTAmount(t *testing.T) {
	got, err := GSTAmount(40000, 5)
	if err != nil {
		t.Fatalf("GSTAmount: %v", err)
	}
	if got != 2000 {
		t.Fatalf("GSTAmount(40000, 5) = %d, want 2000", got)
	}

	// 10050 * 18% = 1809, no rounding loss
	got, err = GSTAmount(10050, 18)
	if err != nil {
		t.Fatalf("GSTAmount: %v", err)
	}
	if got != 1809 {
		t.Fatalf("GSTAmount(10050, 18) = %d, want 1809", got)
	}

	// half-up: 150 * 5% = 7.5 -> 8
	got, err = GSTAmount(150, 5)
	if err != nil {
		t.Fatalf("GSTAmount: %v", err)
	}
	if got != 8 {
		t.Fatalf("GSTAmount(150, 5) = %d, want 8", got)
	}
}

func TestGSTAmountRejectsInvalidRate(t *testing.T) {
	for _, rate := range []int{-5, 3, 10, 15, 100} {
		if _, err := GSTAmount(1000, rate); !errors.Is(err, ErrInvalidGSTRate) {
			t.Fatalf("GSTAmount(1000, %d) err = %v, want ErrInvalidGSTRate", rate, err)
		}
	}
}

func TestSplitCGSTSGST(t *testing.T) {
	cases := []struct {
		total, cgst, sgst int64
	}{
		{2000, 1000, 1000},
		{2001, 1001, 1000},
		{0, 0, 0},
		{1, 1, 0},
	}
	for _, c := range cases {
		cgst, sgst := SplitCGSTSGST(c.total)
		if cgst != c.cgst || sgst != c.sgst {
			t.Fatalf("SplitCGSTSGST(%d) = %d, %d, want %d, %d", c.total, cgst, sgst, c.cgst, c.sgst)
		}
		if cgst+sgst != c.total {
			t.Fatalf("SplitCGSTSGST(%d): halves sum to %d", c.total, cgst+sgst)
		}
	}
}
