package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aishwaryam567/Retail-management-system/internal/cache"
	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/reports"
	"github.com/aishwaryam567/Retail-management-system/internal/store"
	"github.com/aishwaryam567/Retail-management-system/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	engine := reports.NewEngine(cache.NoopReportCache{}, 5*time.Second)
	return New(repo, engine)
}

func actorCtx(role string) context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:    "user-" + role,
		Email: role + "@store.local",
		Role:  role,
	})
}

func productBySKU(t *testing.T, svc *Service, ctx context.Context, sku string) domain.Product {
	t.Helper()
	products, err := svc.ListProducts(ctx, "", "")
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range products {
		if p.SKU == sku {
			return p
		}
	}
	t.Fatalf("seed product %s not found", sku)
	return domain.Product{}
}

func customerByName(t *testing.T, svc *Service, ctx context.Context, name string) domain.Customer {
	t.Helper()
	customers, err := svc.ListCustomers(ctx, name)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	for _, c := range customers {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("seed customer %s not found", name)
	return domain.Customer{}
}

func TestCreateProductRecordsInitialStockMovement(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleStockManager)

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU:                "sku-jam-01",
		Name:               "Mixed Fruit Jam 500g",
		Category:           "grocery",
		GSTRate:            12,
		SellingPricePaise:  18500,
		PurchasePricePaise: 15000,
		InitialStock:       24,
		ReorderLevel:       5,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if created.SKU != "SKU-JAM-01" {
		t.Fatalf("expected SKU to be upper-cased, got %s", created.SKU)
	}
	if created.CurrentStock != 24 {
		t.Fatalf("expected current stock 24, got %v", created.CurrentStock)
	}

	movements, err := svc.ListStockMovements(ctx, store.MovementFilter{ProductID: created.ID})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected 1 initial stock movement, got %d", len(movements))
	}
	if movements[0].Reason != domain.MovementReasonAdjustment || movements[0].ChangeQty != 24 {
		t.Fatalf("unexpected initial movement %+v", movements[0])
	}

	balance, err := svc.StockBalance(ctx, created.ID)
	if err != nil {
		t.Fatalf("stock balance failed: %v", err)
	}
	if !balance.Consistent {
		t.Fatalf("expected ledger to match stock, got %+v", balance)
	}
}

func TestCreateProductRejectsInvalidGSTRate(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleAdmin)

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU:               "SKU-BAD-01",
		Name:              "Bad Rate",
		GSTRate:           7,
		SellingPricePaise: 1000,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for gst rate 7, got %v", err)
	}
}

func TestCreateProductDeniedForCashier(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleCashier)

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU:               "SKU-DENY-01",
		Name:              "Denied",
		GSTRate:           5,
		SellingPricePaise: 1000,
	})
	if err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role denial, got %v", err)
	}
}

func TestUpdateProductMergesOnlyProvidedFields(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleAdmin)
	rice := productBySKU(t, svc, ctx, "SKU-RICE-01")

	newName := "Premium Basmati Rice 5kg"
	updated, err := svc.UpdateProduct(ctx, rice.ID, domain.ProductUpdateRequest{Name: &newName})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	if updated.Name != newName {
		t.Fatalf("expected renamed product, got %s", updated.Name)
	}
	if updated.SellingPricePaise != rice.SellingPricePaise || updated.GSTRate != rice.GSTRate {
		t.Fatalf("unrelated fields changed: %+v", updated)
	}
	if updated.CurrentStock != rice.CurrentStock {
		t.Fatalf("stock must not change on update, got %v", updated.CurrentStock)
	}
}

func TestAdjustStockWritesLedgerEntry(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleStockManager)
	soap := productBySKU(t, svc, ctx, "SKU-SOAP-01")

	updated, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID: soap.ID,
		ChangeQty: -10,
		Note:      "damaged in transit",
	})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if updated.CurrentStock != soap.CurrentStock-10 {
		t.Fatalf("expected stock %v, got %v", soap.CurrentStock-10, updated.CurrentStock)
	}

	movements, err := svc.ListStockMovements(ctx, store.MovementFilter{ProductID: soap.ID, Reason: domain.MovementReasonAdjustment})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 || movements[0].ChangeQty != -10 {
		t.Fatalf("expected one -10 adjustment movement, got %+v", movements)
	}
}

func TestAdjustStockCannotGoNegative(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleStockManager)
	ghee := productBySKU(t, svc, ctx, "SKU-GHEE-01")

	_, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID: ghee.ID,
		ChangeQty: -(ghee.CurrentStock + 1),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	unchanged := productBySKU(t, svc, ctx, "SKU-GHEE-01")
	if unchanged.CurrentStock != ghee.CurrentStock {
		t.Fatalf("stock changed despite rejection: %v", unchanged.CurrentStock)
	}
}

func TestAdjustCustomerLoyalty(t *testing.T) {
	svc := newTestService()
	admin := actorCtx(domain.RoleAdmin)
	rahul := customerByName(t, svc, admin, "Rahul Verma")

	_, err := svc.AdjustCustomerLoyalty(actorCtx(domain.RoleCashier), rahul.ID, domain.LoyaltyAdjustRequest{Points: 5})
	if err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected cashier to be denied loyalty adjust, got %v", err)
	}

	_, err = svc.AdjustCustomerLoyalty(admin, rahul.ID, domain.LoyaltyAdjustRequest{Points: 0})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected zero-point adjustment to be rejected, got %v", err)
	}

	updated, err := svc.AdjustCustomerLoyalty(admin, rahul.ID, domain.LoyaltyAdjustRequest{Points: -20, Reason: "goodwill reversal"})
	if err != nil {
		t.Fatalf("loyalty adjust failed: %v", err)
	}
	if updated.LoyaltyPoints != rahul.LoyaltyPoints-20 {
		t.Fatalf("expected %d points, got %d", rahul.LoyaltyPoints-20, updated.LoyaltyPoints)
	}
}

func TestCreatePurchaseIncreasesStock(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleStockManager)

	supplier, err := svc.CreateSupplier(ctx, domain.Supplier{Name: "Agro Traders", Phone: "9811111111"})
	if err != nil {
		t.Fatalf("create supplier failed: %v", err)
	}

	rice := productBySKU(t, svc, ctx, "SKU-RICE-01")
	oil := productBySKU(t, svc, ctx, "SKU-OIL-01")

	purchase, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: supplier.ID,
		InvoiceNo:  "AGRO-2041",
		Items: []domain.PurchaseItemRequest{
			{ProductID: rice.ID, Qty: 50, UnitCostPaise: 38000},
			{ProductID: oil.ID, Qty: 30, UnitCostPaise: 13200},
		},
	})
	if err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}

	wantTotal := int64(50*38000 + 30*13200)
	if purchase.TotalPaise != wantTotal {
		t.Fatalf("expected purchase total %d, got %d", wantTotal, purchase.TotalPaise)
	}
	if len(purchase.Items) != 2 {
		t.Fatalf("expected 2 purchase items, got %d", len(purchase.Items))
	}

	restocked := productBySKU(t, svc, ctx, "SKU-RICE-01")
	if restocked.CurrentStock != rice.CurrentStock+50 {
		t.Fatalf("expected stock %v, got %v", rice.CurrentStock+50, restocked.CurrentStock)
	}

	movements, err := svc.ListStockMovements(ctx, store.MovementFilter{ProductID: rice.ID, Reason: domain.MovementReasonPurchase})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 || movements[0].ChangeQty != 50 {
		t.Fatalf("expected +50 purchase movement, got %+v", movements)
	}

	fetched, err := svc.GetPurchase(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("get purchase failed: %v", err)
	}
	if fetched.InvoiceNo != "AGRO-2041" {
		t.Fatalf("unexpected purchase invoice no %s", fetched.InvoiceNo)
	}
}

func TestDeleteSupplierRequiresOwner(t *testing.T) {
	svc := newTestService()
	admin := actorCtx(domain.RoleAdmin)

	supplier, err := svc.CreateSupplier(admin, domain.Supplier{Name: "Shortlived Traders"})
	if err != nil {
		t.Fatalf("create supplier failed: %v", err)
	}

	if err := svc.DeleteSupplier(admin, supplier.ID); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected admin delete to be denied, got %v", err)
	}
	if err := svc.DeleteSupplier(actorCtx(domain.RoleOwner), supplier.ID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
}

func TestSalesAndGSTReports(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleAdmin)
	rice := productBySKU(t, svc, ctx, "SKU-RICE-01")

	inv, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: rice.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)

	totals, err := svc.SalesReport(ctx, from, to)
	if err != nil {
		t.Fatalf("sales report failed: %v", err)
	}
	if totals.SaleCount != 1 || totals.GrossPaise != inv.TotalPaise {
		t.Fatalf("unexpected sales totals %+v", totals)
	}
	if totals.NetPaise != inv.TotalPaise {
		t.Fatalf("expected net %d, got %d", inv.TotalPaise, totals.NetPaise)
	}

	rates, err := svc.GSTReport(ctx, from, to)
	if err != nil {
		t.Fatalf("gst report failed: %v", err)
	}
	var found bool
	for _, row := range rates {
		if row.Rate == 5 {
			found = true
			if row.GSTPaise != 4500 {
				t.Fatalf("expected 4500 paise GST at 5%%, got %d", row.GSTPaise)
			}
			if row.CGSTPaise+row.SGSTPaise != row.GSTPaise {
				t.Fatalf("CGST+SGST must equal GST: %+v", row)
			}
		}
	}
	if !found {
		t.Fatalf("expected a 5%% rate row, got %+v", rates)
	}
}

func TestDashboardStats(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleOwner)
	biscuits := productBySKU(t, svc, ctx, "SKU-BISC-01")

	if _, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: biscuits.ID, Qty: 5}},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	stats, err := svc.DashboardStats(ctx, reports.PeriodToday)
	if err != nil {
		t.Fatalf("dashboard stats failed: %v", err)
	}
	if stats.Sales.SaleCount != 1 {
		t.Fatalf("expected 1 sale today, got %d", stats.Sales.SaleCount)
	}
	if stats.CustomerCount != 3 {
		t.Fatalf("expected 3 seeded customers, got %d", stats.CustomerCount)
	}

	if _, err := svc.DashboardStats(ctx, "quarter"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown period to be rejected, got %v", err)
	}
}

func TestInventoryReportCountsLowStock(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleAdmin)
	ghee := productBySKU(t, svc, ctx, "SKU-GHEE-01")

	// Drain ghee down to its reorder level.
	drain := ghee.CurrentStock - ghee.ReorderLevel
	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: ghee.ID, ChangeQty: -drain, Note: "test drain"}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	report, err := svc.InventoryReport(ctx)
	if err != nil {
		t.Fatalf("inventory report failed: %v", err)
	}
	if report.ProductCount == 0 {
		t.Fatalf("expected seeded products in report")
	}
	if report.LowStockCount < 1 {
		t.Fatalf("expected at least one low stock product, got %d", report.LowStockCount)
	}
}

func TestAuditTrailRecordsActions(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx(domain.RoleAdmin)
	tea := productBySKU(t, svc, ctx, "SKU-TEA-01")

	if _, err := svc.CreateSaleInvoice(ctx, domain.SaleInvoiceRequest{
		Lines: []domain.CartLine{{ProductID: tea.ID, Qty: 1}},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	entries, err := svc.ListAuditEntries(ctx, "INVOICE_CREATED", 10)
	if err != nil {
		t.Fatalf("list audit entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 INVOICE_CREATED entry, got %d", len(entries))
	}
	if entries[0].ActorID != "user-admin" {
		t.Fatalf("expected acting user on audit entry, got %s", entries[0].ActorID)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	svc := newTestService()
	admin := actorCtx(domain.RoleAdmin)

	seeded, err := svc.ListCategories(admin)
	if err != nil {
		t.Fatalf("list categories failed: %v", err)
	}
	if len(seeded) == 0 {
		t.Fatalf("expected seeded categories")
	}

	_, err = svc.CreateCategory(actorCtx(domain.RoleCashier), domain.Category{Name: "bakery"})
	if err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected cashier to be denied category create, got %v", err)
	}

	created, err := svc.CreateCategory(admin, domain.Category{Name: " bakery ", Description: "breads and cakes"})
	if err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	if created.Name != "bakery" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}

	// Names are unique, case-insensitively.
	if _, err := svc.CreateCategory(admin, domain.Category{Name: "Bakery"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate category, got %v", err)
	}

	newDesc := "fresh breads"
	updated, err := svc.UpdateCategory(admin, created.ID, domain.CategoryUpdateRequest{Description: &newDesc})
	if err != nil {
		t.Fatalf("update category failed: %v", err)
	}
	if updated.Name != "bakery" || updated.Description != newDesc {
		t.Fatalf("unexpected category after update: %+v", updated)
	}

	if err := svc.DeleteCategory(admin, created.ID); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected admin to be denied category delete, got %v", err)
	}
	if err := svc.DeleteCategory(actorCtx(domain.RoleOwner), created.ID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
	if _, err := svc.GetCategory(admin, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted category to be gone, got %v", err)
	}

	entries, err := svc.ListAuditEntries(admin, "CATEGORY_CREATED", 10)
	if err != nil {
		t.Fatalf("list audit entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 CATEGORY_CREATED entry, got %d", len(entries))
	}
}
