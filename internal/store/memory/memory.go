package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	productsByID   map[string]domain.Product
	skuIndex       map[string]string
	customersByID  map[string]domain.Customer
	suppliersByID  map[string]domain.Supplier
	categoriesByID map[string]domain.Category
	invoicesByID   map[string]*domain.Invoice
	purchasesByID  map[string]*domain.Purchase
	stockMovements []domain.StockMovement
	auditEntries   []domain.AuditEntry
	usersByEmail   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_OWNER_PASSWORD, SEED_CASHIER_PASSWORD and
// SEED_STOCK_PASSWORD environment variables. If unset, hardcoded dev defaults
// are used with a warning printed to stdout. These credentials are never used
// in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	stockPwd := envOr("SEED_STOCK_PASSWORD", "stock123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" || os.Getenv("SEED_STOCK_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD, SEED_CASHIER_PASSWORD and SEED_STOCK_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		name     string
		password string
		role     string
	}{
		{"owner@store.local", "Store Owner", ownerPwd, domain.RoleOwner},
		{"cashier@store.local", "Front Cashier", cashierPwd, domain.RoleCashier},
		{"stock@store.local", "Stock Manager", stockPwd, domain.RoleStockManager},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.email] = domain.UserAccount{
			ID:        domain.NewID(),
			Email:     u.email,
			FullName:  u.name,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{SKU: "SKU-RICE-01", Name: "Basmati Rice 5kg", Category: "grocery", GSTRate: 5, SellingPricePaise: 45000, PurchasePricePaise: 38000, CurrentStock: 120, ReorderLevel: 20},
		{SKU: "SKU-ATTA-01", Name: "Whole Wheat Atta 10kg", Category: "grocery", GSTRate: 5, SellingPricePaise: 42000, PurchasePricePaise: 35500, CurrentStock: 80, ReorderLevel: 15},
		{SKU: "SKU-MILK-01", Name: "Toned Milk 1L", Category: "dairy", GSTRate: 0, SellingPricePaise: 5600, PurchasePricePaise: 5000, CurrentStock: 200, ReorderLevel: 40},
		{SKU: "SKU-GHEE-01", Name: "Pure Ghee 500ml", Category: "dairy", GSTRate: 12, SellingPricePaise: 32500, PurchasePricePaise: 27000, CurrentStock: 45, ReorderLevel: 10},
		{SKU: "SKU-TEA-01", Name: "Assam Tea 250g", Category: "beverage", GSTRate: 5, SellingPricePaise: 14500, PurchasePricePaise: 11800, CurrentStock: 90, ReorderLevel: 20},
		{SKU: "SKU-BISC-01", Name: "Glucose Biscuits", Category: "snack", GSTRate: 18, SellingPricePaise: 1000, PurchasePricePaise: 780, CurrentStock: 300, ReorderLevel: 60},
		{SKU: "SKU-SOAP-01", Name: "Bath Soap 100g", Category: "household", GSTRate: 18, SellingPricePaise: 4000, PurchasePricePaise: 3100, CurrentStock: 150, ReorderLevel: 30},
		{SKU: "SKU-SHMP-01", Name: "Shampoo 180ml", Category: "household", GSTRate: 28, SellingPricePaise: 12000, PurchasePricePaise: 9400, CurrentStock: 60, ReorderLevel: 12},
		{SKU: "SKU-OIL-01", Name: "Sunflower Oil 1L", Category: "grocery", GSTRate: 5, SellingPricePaise: 15500, PurchasePricePaise: 13200, CurrentStock: 110, ReorderLevel: 25},
		{SKU: "SKU-SALT-01", Name: "Iodised Salt 1kg", Category: "grocery", GSTRate: 0, SellingPricePaise: 2400, PurchasePricePaise: 1800, CurrentStock: 140, ReorderLevel: 30},
	}

	productMap := make(map[string]domain.Product, len(products))
	skuIndex := make(map[string]string, len(products))
	for _, p := range products {
		p.ID = domain.NewID()
		p.Active = true
		p.CreatedAt = now
		productMap[p.ID] = p
		skuIndex[p.SKU] = p.ID
	}

	customers := []domain.Customer{
		{Name: "Asha Nair", Phone: "9800000001", Email: "asha@example.com", LoyaltyPoints: 12},
		{Name: "Rahul Verma", Phone: "9800000002", LoyaltyPoints: 0},
		{Name: "Meera Iyer", Phone: "9800000003", Email: "meera@example.com", LoyaltyPoints: 45},
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		c.ID = domain.NewID()
		c.CreatedAt = now
		customerMap[c.ID] = c
	}

	categoryMap := make(map[string]domain.Category)
	for _, name := range []string{"grocery", "dairy", "beverage", "snack", "household"} {
		id := domain.NewID()
		categoryMap[id] = domain.Category{ID: id, Name: name, CreatedAt: now}
	}

	return &Store{
		productsByID:   productMap,
		skuIndex:       skuIndex,
		customersByID:  customerMap,
		suppliersByID:  make(map[string]domain.Supplier),
		categoriesByID: categoryMap,
		invoicesByID:   make(map[string]*domain.Invoice),
		purchasesByID:  make(map[string]*domain.Purchase),
		stockMovements: make([]domain.StockMovement, 0, 256),
		auditEntries:   make([]domain.AuditEntry, 0, 128),
		usersByEmail:   seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, search string, category string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !p.Active {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.skuIndex[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := s.productsByID[id]
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.SellingPricePaise < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.skuIndex[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
	}

	if product.ID == "" {
		product.ID = domain.NewID()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.productsByID[product.ID] = product
	s.skuIndex[product.SKU] = product.ID
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.SellingPricePaise < 1 {
		return nil, store.ErrInvalidInput
	}

	// SKU and created-at are immutable.
	product.SKU = current.SKU
	product.CreatedAt = current.CreatedAt
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0)
	for _, p := range s.productsByID {
		if !p.Active {
			continue
		}
		if p.CurrentStock <= p.ReorderLevel {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CurrentStock == b.CurrentStock {
			return cmpString(a.Name, b.Name)
		}
		if a.CurrentStock < b.CurrentStock {
			return -1
		}
		return 1
	})
	return products, nil
}

func (s *Store) AdjustProductStock(_ context.Context, productID string, delta float64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	next := product.CurrentStock + delta
	if next < 0 {
		return nil, fmt.Errorf("%w: insufficient stock for %s. Available: %v, Requested: %v",
			store.ErrInsufficientStock, product.Name, product.CurrentStock, -delta)
	}
	product.CurrentStock = next
	s.productsByID[productID] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListCustomers(_ context.Context, search string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(c.Phone, search) {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = domain.NewID()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.customersByID[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	customer.LoyaltyPoints = current.LoyaltyPoints
	customer.CreatedAt = current.CreatedAt
	s.customersByID[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.customersByID, id)
	return nil
}

func (s *Store) AdjustCustomerLoyalty(_ context.Context, customerID string, delta int64) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustLoyaltyLocked(customerID, delta)
}

func (s *Store) adjustLoyaltyLocked(customerID string, delta int64) (*domain.Customer, error) {
	customer, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer.LoyaltyPoints += delta
	s.customersByID[customerID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) GetCategoryByID(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categoriesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCategory := category
	return &copyCategory, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categoriesByID {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, existing.Name)
		}
	}
	if category.ID == "" {
		category.ID = domain.NewID()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categoriesByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.categoriesByID[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for id, existing := range s.categoriesByID {
		if id != category.ID && strings.EqualFold(existing.Name, category.Name) {
			return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, existing.Name)
		}
	}
	category.CreatedAt = current.CreatedAt
	s.categoriesByID[category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categoriesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.categoriesByID, id)
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sup := range s.suppliersByID {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = domain.NewID()
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.suppliersByID[supplier.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	supplier.CreatedAt = current.CreatedAt
	s.suppliersByID[supplier.ID] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.suppliersByID, id)
	return nil
}

func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice, movements []domain.StockMovement, loyalty domain.LoyaltyAdjustment) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(inv.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if inv.Type != domain.InvoiceTypeSale && inv.Type != domain.InvoiceTypeReturn {
		return nil, store.ErrInvalidInput
	}
	if loyalty.CustomerID != "" {
		if _, exists := s.customersByID[loyalty.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}
	}

	// Validate the summed delta per product before touching anything so a
	// failed line leaves no partial writes. A product can appear on more
	// than one movement; the net change is what must keep stock at zero
	// or above.
	deltas := make(map[string]float64, len(movements))
	for _, m := range movements {
		if _, exists := s.productsByID[m.ProductID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, m.ProductID)
		}
		deltas[m.ProductID] += m.ChangeQty
	}
	for productID, delta := range deltas {
		product := s.productsByID[productID]
		if product.CurrentStock+delta < 0 {
			return nil, fmt.Errorf("%w: insufficient stock for %s. Available: %v, Requested: %v",
				store.ErrInsufficientStock, product.Name, product.CurrentStock, -delta)
		}
	}

	now := time.Now().UTC()
	if inv.ID == "" {
		inv.ID = domain.NewID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.Number == "" {
		seq := s.nextInvoiceSeqLocked(inv.CreatedAt)
		inv.Number = domain.InvoiceNumber(inv.CreatedAt, seq)
	}
	for i := range inv.Lines {
		if inv.Lines[i].ID == "" {
			inv.Lines[i].ID = domain.NewID()
		}
		inv.Lines[i].InvoiceID = inv.ID
	}

	for _, m := range movements {
		product := s.productsByID[m.ProductID]
		product.CurrentStock += m.ChangeQty
		s.productsByID[m.ProductID] = product
	}
	for _, m := range movements {
		if m.ID == "" {
			m.ID = domain.NewID()
		}
		if m.RefID == "" {
			m.RefID = inv.ID
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		s.stockMovements = append(s.stockMovements, m)
	}
	if loyalty.CustomerID != "" && loyalty.Points != 0 {
		if _, err := s.adjustLoyaltyLocked(loyalty.CustomerID, loyalty.Points); err != nil {
			return nil, err
		}
	}

	stored := cloneInvoice(&inv)
	s.invoicesByID[inv.ID] = stored
	return cloneInvoice(stored), nil
}

func (s *Store) GetInvoiceByID(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *Store) ListInvoices(_ context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Invoice, 0, limit)
	for _, inv := range s.invoicesByID {
		if filter.Type != "" && inv.Type != filter.Type {
			continue
		}
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			continue
		}
		if !filter.From.IsZero() && inv.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !inv.CreatedAt.Before(filter.To) {
			continue
		}
		summary := *inv
		summary.Lines = nil
		result = append(result, summary)
	}
	sortInvoicesNewestFirst(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListCustomerInvoices(ctx context.Context, customerID string, limit int) ([]domain.Invoice, error) {
	return s.ListInvoices(ctx, store.InvoiceFilter{CustomerID: customerID, Limit: limit})
}

func (s *Store) ReturnedQtyByInvoice(_ context.Context, invoiceID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]float64)
	for _, inv := range s.invoicesByID {
		if inv.Type != domain.InvoiceTypeReturn || inv.OriginalInvoiceID != invoiceID {
			continue
		}
		for _, line := range inv.Lines {
			result[line.ProductID] += line.Qty
		}
	}
	return result, nil
}

func (s *Store) NextInvoiceSequence(_ context.Context, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.nextInvoiceSeqLocked(day), nil
}

// nextInvoiceSeqLocked scans today's invoice numbers for the highest daily
// sequence. Callers must hold at least the read lock.
func (s *Store) nextInvoiceSeqLocked(day time.Time) int {
	prefix := "INV-" + day.UTC().Format("20060102") + "-"
	highest := 0
	for _, inv := range s.invoicesByID {
		if !strings.HasPrefix(inv.Number, prefix) {
			continue
		}
		var seq int
		if _, err := fmt.Sscanf(strings.TrimPrefix(inv.Number, prefix), "%d", &seq); err != nil {
			continue
		}
		if seq > highest {
			highest = seq
		}
	}
	return highest + 1
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase, movements []domain.StockMovement) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.suppliersByID[purchase.SupplierID]; !exists {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, purchase.SupplierID)
	}
	for _, item := range purchase.Items {
		if item.Qty <= 0 || item.UnitCostPaise < 0 {
			return nil, store.ErrInvalidInput
		}
		if _, exists := s.productsByID[item.ProductID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}

	now := time.Now().UTC()
	if purchase.ID == "" {
		purchase.ID = domain.NewID()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}
	for i := range purchase.Items {
		if purchase.Items[i].ID == "" {
			purchase.Items[i].ID = domain.NewID()
		}
		purchase.Items[i].PurchaseID = purchase.ID
	}

	for _, item := range purchase.Items {
		product := s.productsByID[item.ProductID]
		product.CurrentStock += item.Qty
		s.productsByID[item.ProductID] = product
	}
	for _, m := range movements {
		if m.ID == "" {
			m.ID = domain.NewID()
		}
		if m.RefID == "" {
			m.RefID = purchase.ID
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		s.stockMovements = append(s.stockMovements, m)
	}

	stored := clonePurchase(&purchase)
	s.purchasesByID[purchase.ID] = stored
	return clonePurchase(stored), nil
}

func (s *Store) GetPurchaseByID(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, exists := s.purchasesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return clonePurchase(purchase), nil
}

func (s *Store) ListPurchases(_ context.Context, supplierID string, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Purchase, 0, limit)
	for _, p := range s.purchasesByID {
		if supplierID != "" && p.SupplierID != supplierID {
			continue
		}
		result = append(result, *clonePurchase(p))
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListStockMovements(_ context.Context, filter store.MovementFilter) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}
	result := make([]domain.StockMovement, 0, limit)
	for _, m := range s.stockMovements {
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Reason != "" && m.Reason != filter.Reason {
			continue
		}
		result = append(result, m)
	}
	slices.SortFunc(result, func(a, b domain.StockMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AppendStockMovements(_ context.Context, movements []domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, m := range movements {
		if m.ProductID == "" || m.Reason == "" {
			return store.ErrInvalidInput
		}
		if m.ID == "" {
			m.ID = domain.NewID()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		s.stockMovements = append(s.stockMovements, m)
	}
	return nil
}

func (s *Store) StockLedgerBalance(_ context.Context, productID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.productsByID[productID]; !exists {
		return 0, store.ErrNotFound
	}
	balance := 0.0
	for _, m := range s.stockMovements {
		if m.ProductID == productID {
			balance += m.ChangeQty
		}
	}
	return balance, nil
}

func (s *Store) AppendAuditEntry(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = domain.NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditEntries = append(s.auditEntries, entry)
	return nil
}

func (s *Store) ListAuditEntries(_ context.Context, action string, limit int) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditEntry, 0, limit)
	for _, entry := range s.auditEntries {
		if action != "" && entry.Action != action {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByEmail[email]; exists {
		return fmt.Errorf("%w: email %s already registered", store.ErrConflict, email)
	}
	user.Email = email
	if user.ID == "" {
		user.ID = domain.NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, u := range s.usersByEmail {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	user, exists := s.usersByEmail[email]
	if !exists {
		return store.ErrNotFound
	}
	if password == "" {
		return store.ErrInvalidInput
	}
	user.Password = password
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) SalesTotals(_ context.Context, from time.Time, to time.Time) (domain.SalesTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.SalesTotals
	for _, inv := range s.invoicesByID {
		if !inRange(inv.CreatedAt, from, to) {
			continue
		}
		switch inv.Type {
		case domain.InvoiceTypeSale:
			totals.SaleCount++
			totals.SubtotalPaise += inv.SubtotalPaise
			totals.TaxPaise += inv.TaxPaise
			totals.DiscountPaise += inv.DiscountPaise
			totals.GrossPaise += inv.TotalPaise
		case domain.InvoiceTypeReturn:
			totals.ReturnCount++
			totals.ReturnedPaise += inv.TotalPaise
		}
	}
	totals.NetPaise = totals.GrossPaise - totals.ReturnedPaise
	return totals, nil
}

func (s *Store) GSTBreakdown(_ context.Context, from time.Time, to time.Time) ([]domain.GSTRateTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byRate := make(map[int]*domain.GSTRateTotals)
	for _, inv := range s.invoicesByID {
		if !inRange(inv.CreatedAt, from, to) {
			continue
		}
		sign := int64(1)
		if inv.Type == domain.InvoiceTypeReturn {
			sign = -1
		}
		for _, line := range inv.Lines {
			row, ok := byRate[line.GSTRate]
			if !ok {
				row = &domain.GSTRateTotals{Rate: line.GSTRate}
				byRate[line.GSTRate] = row
			}
			row.TaxablePaise += sign * (line.TotalPaise - line.GSTAmountPaise)
			row.GSTPaise += sign * line.GSTAmountPaise
		}
	}

	result := make([]domain.GSTRateTotals, 0, len(byRate))
	for _, row := range byRate {
		result = append(result, *row)
	}
	slices.SortFunc(result, func(a, b domain.GSTRateTotals) int {
		return a.Rate - b.Rate
	})
	return result, nil
}

func (s *Store) InventoryReport(_ context.Context) (domain.InventoryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var report domain.InventoryReport
	for _, p := range s.productsByID {
		if !p.Active {
			continue
		}
		report.ProductCount++
		report.StockValuePaise += int64(math.Round(p.CurrentStock * float64(p.PurchasePricePaise)))
		if p.CurrentStock <= 0 {
			report.OutOfStockCount++
		} else if p.CurrentStock <= p.ReorderLevel {
			report.LowStockCount++
		}
	}
	return report, nil
}

func (s *Store) TopProducts(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}
	byProduct := make(map[string]*domain.ProductSales)
	for _, inv := range s.invoicesByID {
		if inv.Type != domain.InvoiceTypeSale || !inRange(inv.CreatedAt, from, to) {
			continue
		}
		for _, line := range inv.Lines {
			row, ok := byProduct[line.ProductID]
			if !ok {
				row = &domain.ProductSales{ProductID: line.ProductID, ProductName: line.ProductName}
				byProduct[line.ProductID] = row
			}
			row.QtySold += line.Qty
			row.RevenuePaise += line.TotalPaise
		}
	}

	result := make([]domain.ProductSales, 0, len(byProduct))
	for _, row := range byProduct {
		result = append(result, *row)
	}
	slices.SortFunc(result, func(a, b domain.ProductSales) int {
		if a.RevenuePaise == b.RevenuePaise {
			return cmpString(a.ProductName, b.ProductName)
		}
		if a.RevenuePaise > b.RevenuePaise {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CountCustomers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.customersByID), nil
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func sortInvoicesNewestFirst(invoices []domain.Invoice) {
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.Number, a.Number)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneInvoice(src *domain.Invoice) *domain.Invoice {
	if src == nil {
		return nil
	}
	copyInv := *src
	if src.Lines != nil {
		copyInv.Lines = make([]domain.InvoiceLine, len(src.Lines))
		copy(copyInv.Lines, src.Lines)
	}
	return &copyInv
}

func clonePurchase(src *domain.Purchase) *domain.Purchase {
	if src == nil {
		return nil
	}
	copyPurchase := *src
	if src.Items != nil {
		copyPurchase.Items = make([]domain.PurchaseItem, len(src.Items))
		copy(copyPurchase.Items, src.Items)
	}
	return &copyPurchase
}
