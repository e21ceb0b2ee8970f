// Package pricing computes per-line and cart-level amounts for sale and
// return invoices. It is pure: no storage access, paise in, paise out.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/aishwaryam567/Retail-management-system/internal/money"
)

var ErrInvalidCart = errors.New("invalid cart")

// LineInput is one cart line with the product's price data already resolved.
type LineInput struct {
	ProductID      string
	Qty            float64
	UnitPricePaise int64
	GSTRate        int
	DiscountPaise  int64
}

// PricedLine is a LineInput with its computed amounts.
type PricedLine struct {
	LineInput
	SubtotalPaise  int64
	TaxablePaise   int64
	GSTAmountPaise int64
	TotalPaise     int64
}

// Totals aggregates a priced cart. Total = Subtotal - Discount + Tax, with
// any invoice-level discount applied after tax and folded into Discount.
type Totals struct {
	SubtotalPaise int64
	TaxPaise      int64
	DiscountPaise int64
	TotalPaise    int64
}

// PriceLine computes a single line. The line discount applies before GST.
func PriceLine(in LineInput) (PricedLine, error) {
	if in.Qty <= 0 || math.IsNaN(in.Qty) || math.IsInf(in.Qty, 0) {
		return PricedLine{}, fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidCart, in.Qty)
	}
	if in.UnitPricePaise < 0 {
		return PricedLine{}, fmt.Errorf("%w: negative unit price for product %s", ErrInvalidCart, in.ProductID)
	}
	if in.DiscountPaise < 0 {
		return PricedLine{}, fmt.Errorf("%w: negative discount for product %s", ErrInvalidCart, in.ProductID)
	}
	subtotal := int64(math.Round(in.Qty * float64(in.UnitPricePaise)))
	if in.DiscountPaise > subtotal {
		return PricedLine{}, fmt.Errorf("%w: discount %d exceeds line subtotal %d for product %s",
			ErrInvalidCart, in.DiscountPaise, subtotal, in.ProductID)
	}
	taxable := subtotal - in.DiscountPaise
	gst, err := money.GSTAmount(taxable, in.GSTRate)
	if err != nil {
		return PricedLine{}, fmt.Errorf("%w: product %s: %v", ErrInvalidCart, in.ProductID, err)
	}
	return PricedLine{
		LineInput:      in,
		SubtotalPaise:  subtotal,
		TaxablePaise:   taxable,
		GSTAmountPaise: gst,
		TotalPaise:     taxable + gst,
	}, nil
}

// PriceCart prices every line and aggregates the invoice totals.
func PriceCart(lines []LineInput, invoiceDiscountPaise int64) (Totals, []PricedLine, error) {
	if len(lines) == 0 {
		return Totals{}, nil, fmt.Errorf("%w: no lines", ErrInvalidCart)
	}
	if invoiceDiscountPaise < 0 {
		return Totals{}, nil, fmt.Errorf("%w: negative invoice discount", ErrInvalidCart)
	}
	var totals Totals
	priced := make([]PricedLine, 0, len(lines))
	for _, in := range lines {
		line, err := PriceLine(in)
		if err != nil {
			return Totals{}, nil, err
		}
		priced = append(priced, line)
		totals.SubtotalPaise += line.SubtotalPaise
		totals.TaxPaise += line.GSTAmountPaise
		totals.DiscountPaise += line.DiscountPaise
	}
	totals.TotalPaise = totals.SubtotalPaise - totals.DiscountPaise + totals.TaxPaise
	if invoiceDiscountPaise > totals.TotalPaise {
		return Totals{}, nil, fmt.Errorf("%w: invoice discount %d exceeds total %d",
			ErrInvalidCart, invoiceDiscountPaise, totals.TotalPaise)
	}
	totals.TotalPaise -= invoiceDiscountPaise
	totals.DiscountPaise += invoiceDiscountPaise
	return totals, priced, nil
}
