// Package money holds the integer-paise arithmetic used across pricing,
// invoicing and reporting. Amounts are int64 paise everywhere; rupee floats
// exist only at the API edges.
package money

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidGSTRate = errors.New("invalid gst rate")
)

// GSTRates is the set of rates accepted on products and invoice lines.
var GSTRates = []int{0, 5, 12, 18, 28}

// ToPaise converts a rupee amount to integer paise, rounding half away from
// zero. Negative and non-finite inputs are rejected.
func ToPaise(rupees float64) (int64, error) {
	if math.IsNaN(rupees) || math.IsInf(rupees, 0) || rupees < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, rupees)
	}
	return int64(math.Round(rupees * 100)), nil
}

// ToRupees converts integer paise back to a rupee float for display.
func ToRupees(paise int64) float64 {
	return float64(paise) / 100
}

// ValidGSTRate reports whether rate is one of the accepted GST slabs.
func ValidGSTRate(rate int) bool {
	for _, r := range GSTRates {
		if r == rate {
			return true
		}
	}
	return false
}

// GSTAmount computes the GST on a taxable base in paise, rounded half up.
func GSTAmount(basePaise int64, rate int) (int64, error) {
	if !ValidGSTRate(rate) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidGSTRate, rate)
	}
	if basePaise < 0 {
		return 0, fmt.Errorf("%w: negative base %d", ErrInvalidAmount, basePaise)
	}
	return int64(math.Round(float64(basePaise) * float64(rate) / 100)), nil
}

// SplitCGSTSGST splits a total GST amount into equal central and state halves.
// The CGST half is rounded half up and SGST takes the remainder, so the two
// always sum back to the input.
func SplitCGSTSGST(totalPaise int64) (cgst, sgst int64) {
	cgst = int64(math.Round(float64(totalPaise) / 2))
	sgst = totalPaise - cgst
	return cgst, sgst
}
