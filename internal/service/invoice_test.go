package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/store"
)

func TestSaleInvoiceTotalsAndLoyalty(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	rice := productBySKU(t, svc, ctx, "SKU-RICE-01")
	rahul := customerByName(t, svc, actorCtx(domain.RoleAdmin), "Rahul Verma")

	inv, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		CustomerID: rahul.ID,
		Lines:      []domain.CartLine{{ProductID: rice.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	if inv.SubtotalPaise != 90000 || inv.TaxPaise != 4500 || inv.TotalPaise != 94500 {
		t.Fatalf("unexpected totals: subtotal=%d tax=%d total=%d", inv.SubtotalPaise, inv.TaxPaise, inv.TotalPaise)
	}
	if inv.Type != domain.InvoiceTypeSale {
		t.Fatalf("expected sale invoice, got %s", inv.Type)
	}
	wantPrefix := fmt.Sprintf("INV-%s-", time.Now().UTC().Format("20060102"))
	if !strings.HasPrefix(inv.Number, wantPrefix) {
		t.Fatalf("unexpected invoice number %s", inv.Number)
	}
	if len(inv.Lines) != 1 || inv.Lines[0].Qty != 2 || inv.Lines[0].UnitPricePaise != 45000 {
		t.Fatalf("unexpected line data %+v", inv.Lines)
	}

	after := productBySKU(t, svc, ctx, "SKU-RICE-01")
	if after.CurrentStock != rice.CurrentStock-2 {
		t.Fatalf("expected stock %v, got %v", rice.CurrentStock-2, after.CurrentStock)
	}

	// 94500 paise is 945 rupees, which floors to 9 loyalty points.
	customer, err := svc.GetCustomer(ctx, rahul.ID)
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.LoyaltyPoints != 9 {
		t.Fatalf("expected 9 loyalty points, got %d", customer.LoyaltyPoints)
	}
}

func TestSaleInvoiceAppliesPostTaxDiscount(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	rice := productBySKU(t, svc, ctx, "SKU-RICE-01")

	inv, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines:                []domain.CartLine{{ProductID: rice.ID, Qty: 2}},
		InvoiceDiscountPaise: 1000,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if inv.TotalPaise != 93500 {
		t.Fatalf("expected discounted total 93500, got %d", inv.TotalPaise)
	}
	if inv.DiscountPaise != 1000 {
		t.Fatalf("expected discount 1000, got %d", inv.DiscountPaise)
	}
}

func TestQuickSaleHasNoCustomer(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	biscuits := productBySKU(t, svc, ctx, "SKU-BISC-01")

	inv, err := svc.CreateQuickSale(ctx, domain.QuickSaleRequest{
		Lines:          []domain.CartLine{{ProductID: biscuits.ID, Qty: 3}},
		DiscountRupees: 5,
	})
	if err != nil {
		t.Fatalf("quick sale failed: %v", err)
	}
	if inv.CustomerID != "" {
		t.Fatalf("quick sale must not attach a customer, got %s", inv.CustomerID)
	}
	// 3 x 1000 at 18% is 3540 paise, minus the 500 paise discount.
	if inv.TotalPaise != 3040 {
		t.Fatalf("expected total 3040, got %d", inv.TotalPaise)
	}
}

func TestSaleRejectsEmptyCart(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)

	_, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty cart, got %v", err)
	}
}

func TestSaleRejectsOversellWithoutPartialWrites(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	rice := productBySKU(t, svc, ctx, "SKU-RICE-01")
	ghee := productBySKU(t, svc, ctx, "SKU-GHEE-01")

	_, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{
			{ProductID: rice.ID, Qty: 1},
			{ProductID: ghee.ID, Qty: ghee.CurrentStock + 1},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	riceAfter := productBySKU(t, svc, ctx, "SKU-RICE-01")
	if riceAfter.CurrentStock != rice.CurrentStock {
		t.Fatalf("stock mutated on failed sale: %v", riceAfter.CurrentStock)
	}
	invoices, err := svc.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("expected no invoices after failed sale, got %d", len(invoices))
	}
}

func TestReturnInvoiceRestocksAndReversesLoyalty(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	rice := productBySKU(t, svc, ctx, "SKU-RICE-01")
	rahul := customerByName(t, svc, actorCtx(domain.RoleAdmin), "Rahul Verma")

	sale, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		CustomerID: rahul.ID,
		Lines:      []domain.CartLine{{ProductID: rice.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	ret, err := svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines:             []domain.ReturnLine{{ProductID: rice.ID, Qty: 2}},
		Reason:            "customer changed mind",
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if ret.Type != domain.InvoiceTypeReturn || ret.OriginalInvoiceID != sale.ID {
		t.Fatalf("unexpected return invoice %+v", ret)
	}
	if ret.TotalPaise != sale.TotalPaise {
		t.Fatalf("full return should refund full total: got %d want %d", ret.TotalPaise, sale.TotalPaise)
	}

	after := productBySKU(t, svc, ctx, "SKU-RICE-01")
	if after.CurrentStock != rice.CurrentStock {
		t.Fatalf("expected stock restored to %v, got %v", rice.CurrentStock, after.CurrentStock)
	}

	customer, err := svc.GetCustomer(ctx, rahul.ID)
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.LoyaltyPoints != 0 {
		t.Fatalf("expected loyalty back to 0, got %d", customer.LoyaltyPoints)
	}

	movements, err := svc.ListStockMovements(actorCtx(domain.RoleAdmin), store.MovementFilter{ProductID: rice.ID, Reason: domain.MovementReasonReturn})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 || movements[0].ChangeQty != 2 {
		t.Fatalf("expected +2 return movement, got %+v", movements)
	}
}

func TestReturnQuantityCappedAcrossMultipleReturns(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	tea := productBySKU(t, svc, ctx, "SKU-TEA-01")

	sale, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: tea.ID, Qty: 3}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	if _, err := svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines:             []domain.ReturnLine{{ProductID: tea.ID, Qty: 2}},
	}); err != nil {
		t.Fatalf("first return failed: %v", err)
	}

	_, err = svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines:             []domain.ReturnLine{{ProductID: tea.ID, Qty: 2}},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict when returning more than sold, got %v", err)
	}

	if _, err := svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines:             []domain.ReturnLine{{ProductID: tea.ID, Qty: 1}},
	}); err != nil {
		t.Fatalf("returning the final unit failed: %v", err)
	}
}

func TestReturnAgainstReturnInvoiceRejected(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	soap := productBySKU(t, svc, ctx, "SKU-SOAP-01")

	sale, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: soap.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	ret, err := svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines:             []domain.ReturnLine{{ProductID: soap.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}

	_, err = svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: ret.ID,
		Lines:             []domain.ReturnLine{{ProductID: soap.ID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for return-of-return, got %v", err)
	}
}

func TestReturnRejectsProductNotOnInvoice(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	milk := productBySKU(t, svc, ctx, "SKU-MILK-01")
	salt := productBySKU(t, svc, ctx, "SKU-SALT-01")

	sale, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: milk.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	_, err = svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines:             []domain.ReturnLine{{ProductID: salt.ID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for product not on invoice, got %v", err)
	}
}

func TestInvoiceNumbersAreSequentialPerDay(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	biscuits := productBySKU(t, svc, ctx, "SKU-BISC-01")

	first, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: biscuits.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	second, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: biscuits.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("second sale failed: %v", err)
	}

	if !strings.HasSuffix(first.Number, "-0001") || !strings.HasSuffix(second.Number, "-0002") {
		t.Fatalf("expected sequential numbers, got %s then %s", first.Number, second.Number)
	}
}

func TestSaleDeniedWithoutCheckoutRole(t *testing.T) {
	svc := newTestService()
	rice := productBySKU(t, svc, actorCtx(domain.RoleOwner), "SKU-RICE-01")
	req := domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: rice.ID, Qty: 1}},
	}

	if _, err := svc.CreateSaleInvoice(actorCtx(domain.RoleStockManager), req); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected stock manager to be denied, got %v", err)
	}
	if _, err := svc.CreateSaleInvoice(context.Background(), req); err == nil {
		t.Fatalf("expected anonymous sale to be denied")
	}
}

func TestSaleSumsDuplicateLinesAgainstStock(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	ghee := productBySKU(t, svc, ctx, "SKU-GHEE-01")

	// Two lines of 30 against stock 45 jointly overdraw even though each
	// line alone would fit.
	_, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{
			{ProductID: ghee.ID, Qty: 30},
			{ProductID: ghee.ID, Qty: 30},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for joint overdraw, got %v", err)
	}

	after := productBySKU(t, svc, ctx, "SKU-GHEE-01")
	if after.CurrentStock != ghee.CurrentStock {
		t.Fatalf("stock mutated on rejected sale: %v", after.CurrentStock)
	}
	invoices, err := svc.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("expected no invoices after rejected sale, got %d", len(invoices))
	}

	// Duplicate lines that fit together still sell normally.
	inv, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{
			{ProductID: ghee.ID, Qty: 20},
			{ProductID: ghee.ID, Qty: 20},
		},
	})
	if err != nil {
		t.Fatalf("sale with duplicate lines failed: %v", err)
	}
	if len(inv.Lines) != 2 {
		t.Fatalf("expected both lines on the invoice, got %d", len(inv.Lines))
	}
	sold := productBySKU(t, svc, ctx, "SKU-GHEE-01")
	if sold.CurrentStock != ghee.CurrentStock-40 {
		t.Fatalf("expected stock %v, got %v", ghee.CurrentStock-40, sold.CurrentStock)
	}
}

func TestReturnCapHoldsWithinOneRequest(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)
	oil := productBySKU(t, svc, ctx, "SKU-OIL-01")
	rahul := customerByName(t, svc, actorCtx(domain.RoleAdmin), "Rahul Verma")

	sale, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		CustomerID: rahul.ID,
		Lines:      []domain.CartLine{{ProductID: oil.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	stockAfterSale := productBySKU(t, svc, ctx, "SKU-OIL-01").CurrentStock
	pointsAfterSale, err := svc.GetCustomer(ctx, rahul.ID)
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}

	// A single request repeating the product must not slip past the cap.
	_, err = svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines: []domain.ReturnLine{
			{ProductID: oil.ID, Qty: 2},
			{ProductID: oil.ID, Qty: 2},
		},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for over-returning in one request, got %v", err)
	}

	after := productBySKU(t, svc, ctx, "SKU-OIL-01")
	if after.CurrentStock != stockAfterSale {
		t.Fatalf("stock mutated on rejected return: %v", after.CurrentStock)
	}
	customer, err := svc.GetCustomer(ctx, rahul.ID)
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.LoyaltyPoints != pointsAfterSale.LoyaltyPoints {
		t.Fatalf("loyalty mutated on rejected return: %d", customer.LoyaltyPoints)
	}

	// Splitting the sold quantity across duplicate lines is fine.
	ret, err := svc.CreateReturnInvoice(ctx, domain.ReturnInvoiceRequest{
		OriginalInvoiceID: sale.ID,
		Lines: []domain.ReturnLine{
			{ProductID: oil.ID, Qty: 1},
			{ProductID: oil.ID, Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("split return failed: %v", err)
	}
	if ret.TotalPaise != sale.TotalPaise {
		t.Fatalf("full return should refund full total: got %d want %d", ret.TotalPaise, sale.TotalPaise)
	}
}
