package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/money"
	"github.com/aishwaryam567/Retail-management-system/internal/reports"
	"github.com/aishwaryam567/Retail-management-system/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	reports *reports.Engine
}

func New(repo store.Repository, reportEngine *reports.Engine) *Service {
	if reportEngine == nil {
		reportEngine = reports.NewEngine(nil, 0)
	}

	return &Service{
		repo:    repo,
		reports: reportEngine,
	}
}

// requireRole resolves the actor from ctx and checks it against the allowed
// roles. The returned error text is matched by the HTTP layer to produce 403.
func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%s role required", strings.Join(roles, " or "))
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%s role required", strings.Join(roles, " or "))
}

func (s *Service) ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, search, category)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager)
	if err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.SellingPricePaise < 1 || req.PurchasePricePaise < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if !money.ValidGSTRate(req.GSTRate) {
		return domain.Product{}, fmt.Errorf("%w: gst rate %d", store.ErrInvalidInput, req.GSTRate)
	}
	if req.InitialStock < 0 || req.ReorderLevel < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		SKU:                req.SKU,
		Name:               req.Name,
		Category:           req.Category,
		GSTRate:            req.GSTRate,
		SellingPricePaise:  req.SellingPricePaise,
		PurchasePricePaise: req.PurchasePricePaise,
		CurrentStock:       req.InitialStock,
		ReorderLevel:       req.ReorderLevel,
		Active:             true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock > 0 {
		err := s.repo.AppendStockMovements(ctx, []domain.StockMovement{{
			ProductID: created.ID,
			ChangeQty: req.InitialStock,
			Reason:    domain.MovementReasonAdjustment,
			Note:      "initial stock",
			CreatedBy: actor.ID,
		}})
		if err != nil {
			log.Printf("[service] WARN: failed to record initial stock movement product=%s: %v", created.ID, err)
		}
	}

	s.logAudit(ctx, "PRODUCT_CREATED", "product", created.ID, fmt.Sprintf("sku=%s,name=%s,price=%d", created.SKU, created.Name, created.SellingPricePaise))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.GSTRate != nil {
		if !money.ValidGSTRate(*req.GSTRate) {
			return domain.Product{}, fmt.Errorf("%w: gst rate %d", store.ErrInvalidInput, *req.GSTRate)
		}
		updated.GSTRate = *req.GSTRate
	}
	if req.SellingPricePaise != nil {
		if *req.SellingPricePaise < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellingPricePaise = *req.SellingPricePaise
	}
	if req.PurchasePricePaise != nil {
		if *req.PurchasePricePaise < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PurchasePricePaise = *req.PurchasePricePaise
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "PRODUCT_UPDATED", "product", saved.ID, fmt.Sprintf("sku=%s,active=%t,price=%d", saved.SKU, saved.Active, saved.SellingPricePaise))
	return *saved, nil
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager)
	if err != nil {
		return domain.Product{}, err
	}
	if req.ProductID == "" || req.ChangeQty == 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.AdjustProductStock(ctx, req.ProductID, req.ChangeQty)
	if err != nil {
		return domain.Product{}, err
	}

	err = s.repo.AppendStockMovements(ctx, []domain.StockMovement{{
		ProductID: req.ProductID,
		ChangeQty: req.ChangeQty,
		Reason:    domain.MovementReasonAdjustment,
		Note:      req.Note,
		CreatedBy: actor.ID,
	}})
	if err != nil {
		log.Printf("[service] WARN: stock adjusted but movement write failed product=%s: %v", req.ProductID, err)
	}

	s.logAudit(ctx, "STOCK_ADJUSTED", "product", req.ProductID, fmt.Sprintf("change=%v,note=%s", req.ChangeQty, req.Note))
	return *updated, nil
}

func (s *Service) ListStockMovements(ctx context.Context, filter store.MovementFilter) ([]domain.StockMovement, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager); err != nil {
		return nil, err
	}
	return s.repo.ListStockMovements(ctx, filter)
}

// StockBalance reports the recorded stock alongside the movement-ledger sum
// so drift between the two is visible.
func (s *Service) StockBalance(ctx context.Context, productID string) (domain.StockBalance, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.StockBalance{}, err
	}
	ledger, err := s.repo.StockLedgerBalance(ctx, productID)
	if err != nil {
		return domain.StockBalance{}, err
	}
	return domain.StockBalance{
		ProductID:     productID,
		CurrentStock:  product.CurrentStock,
		LedgerBalance: ledger,
		Consistent:    math.Abs(product.CurrentStock-ledger) < 1e-9,
	}, nil
}

func (s *Service) ListCustomers(ctx context.Context, search string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, search)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Customer{}, err
	}
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	customer.ID = ""
	customer.LoyaltyPoints = 0

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "CUSTOMER_CREATED", "customer", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleOwner); err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "CUSTOMER_DELETED", "customer", id, "")
	return nil
}

func (s *Service) AdjustCustomerLoyalty(ctx context.Context, customerID string, req domain.LoyaltyAdjustRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return domain.Customer{}, err
	}
	if req.Points == 0 {
		return domain.Customer{}, store.ErrInvalidInput
	}

	updated, err := s.repo.AdjustCustomerLoyalty(ctx, customerID, req.Points)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "LOYALTY_ADJUSTED", "customer", customerID, fmt.Sprintf("points=%d,reason=%s", req.Points, req.Reason))
	return *updated, nil
}

func (s *Service) ListCustomerInvoices(ctx context.Context, customerID string, limit int) ([]domain.Invoice, error) {
	if _, err := s.repo.GetCustomerByID(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListCustomerInvoices(ctx, customerID, limit)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	category, err := s.repo.GetCategoryByID(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	return *category, nil
}

func (s *Service) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}
	category.Name = strings.TrimSpace(category.Name)
	category.Description = strings.TrimSpace(category.Description)
	if category.Name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}
	category.ID = ""

	created, err := s.repo.CreateCategory(ctx, category)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "CATEGORY_CREATED", "category", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategoryByID(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Category{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "CATEGORY_UPDATED", "category", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

// DeleteCategory removes the managed category entry. Products keep their
// category label; the label simply loses its managed counterpart.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleOwner); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "CATEGORY_DELETED", "category", id, "")
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplierByID(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager); err != nil {
		return domain.Supplier{}, err
	}
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}
	supplier.ID = ""

	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "SUPPLIER_CREATED", "supplier", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager); err != nil {
		return domain.Supplier{}, err
	}

	existing, err := s.repo.GetSupplierByID(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Supplier{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateSupplier(ctx, updated)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleOwner); err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "SUPPLIER_DELETED", "supplier", id, "")
	return nil
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.Purchase, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager)
	if err != nil {
		return domain.Purchase{}, err
	}
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.Purchase{}, store.ErrInvalidInput
	}

	total := int64(0)
	items := make([]domain.PurchaseItem, 0, len(req.Items))
	movements := make([]domain.StockMovement, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" || item.Qty <= 0 || item.UnitCostPaise < 0 {
			return domain.Purchase{}, fmt.Errorf("%w: bad purchase item for product %s", store.ErrInvalidInput, item.ProductID)
		}
		lineTotal := int64(math.Round(item.Qty * float64(item.UnitCostPaise)))
		total += lineTotal
		items = append(items, domain.PurchaseItem{
			ProductID:     item.ProductID,
			Qty:           item.Qty,
			UnitCostPaise: item.UnitCostPaise,
			TotalPaise:    lineTotal,
		})
		movements = append(movements, domain.StockMovement{
			ProductID: item.ProductID,
			ChangeQty: item.Qty,
			Reason:    domain.MovementReasonPurchase,
			CreatedBy: actor.ID,
		})
	}

	purchase := domain.Purchase{
		SupplierID: req.SupplierID,
		InvoiceNo:  strings.TrimSpace(req.InvoiceNo),
		TotalPaise: total,
		CreatedBy:  actor.ID,
		Items:      items,
	}

	created, err := s.repo.CreatePurchase(ctx, purchase, movements)
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, "PURCHASE_CREATED", "purchase", created.ID, fmt.Sprintf("supplier=%s,total=%d,items=%d", created.SupplierID, created.TotalPaise, len(created.Items)))
	return *created, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager); err != nil {
		return domain.Purchase{}, err
	}
	purchase, err := s.repo.GetPurchaseByID(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, supplierID string, limit int) ([]domain.Purchase, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleStockManager); err != nil {
		return nil, err
	}
	return s.repo.ListPurchases(ctx, supplierID, limit)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) SalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return domain.SalesTotals{}, err
	}
	return s.repo.SalesTotals(ctx, from, to)
}

func (s *Service) GSTReport(ctx context.Context, from time.Time, to time.Time) ([]domain.GSTRateTotals, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return nil, err
	}
	rows, err := s.repo.GSTBreakdown(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return reports.SplitGST(rows), nil
}

func (s *Service) InventoryReport(ctx context.Context) (domain.InventoryReport, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return domain.InventoryReport{}, err
	}
	return s.repo.InventoryReport(ctx)
}

func (s *Service) TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.TopProducts(ctx, from, to, limit)
}

func (s *Service) DashboardStats(ctx context.Context, period string) (domain.DashboardStats, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return domain.DashboardStats{}, err
	}

	from, to, err := reports.PeriodBounds(period, time.Now())
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	// The engine checks its cache before calling back into storage.
	return s.reports.Dashboard(ctx, period, func(ctx context.Context) (reports.DashboardInputs, error) {
		sales, err := s.repo.SalesTotals(ctx, from, to)
		if err != nil {
			return reports.DashboardInputs{}, err
		}
		customerCount, err := s.repo.CountCustomers(ctx)
		if err != nil {
			return reports.DashboardInputs{}, err
		}
		lowStock, err := s.repo.ListLowStockProducts(ctx)
		if err != nil {
			return reports.DashboardInputs{}, err
		}
		return reports.DashboardInputs{
			Sales:         sales,
			CustomerCount: customerCount,
			LowStockCount: len(lowStock),
		}, nil
	})
}

func (s *Service) ListAuditEntries(ctx context.Context, action string, limit int) ([]domain.AuditEntry, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListAuditEntries(ctx, action, limit)
}

// logAudit records an audit entry on a best-effort basis. Audit failures are
// logged and never fail the calling operation.
func (s *Service) logAudit(ctx context.Context, action string, objectType string, objectID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{ID: "system", Role: "system"}
	}

	if err := s.repo.AppendAuditEntry(ctx, domain.AuditEntry{
		ID:         domain.NewID(),
		ActorID:    actor.ID,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: audit write failed action=%s object=%s: %v", action, objectID, err)
	}
}
