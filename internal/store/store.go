package store

import (
	"context"
	"errors"
	"time"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
)

// InvoiceFilter narrows ListInvoices. Zero values mean no filter.
type InvoiceFilter struct {
	Type       string
	CustomerID string
	From       time.Time
	To         time.Time
	Limit      int
}

// MovementFilter narrows ListStockMovements. Zero values mean no filter.
type MovementFilter struct {
	ProductID string
	Reason    string
	Limit     int
}

type Repository interface {
	ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)
	// AdjustProductStock applies a signed quantity delta. Negative deltas
	// that would take stock below zero fail with ErrInsufficientStock.
	AdjustProductStock(ctx context.Context, productID string, delta float64) (*domain.Product, error)

	ListCustomers(ctx context.Context, search string) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	// AdjustCustomerLoyalty applies a signed points delta and returns the
	// updated customer. Balances may go negative.
	AdjustCustomerLoyalty(ctx context.Context, customerID string, delta int64) (*domain.Customer, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	// CreateInvoice persists an invoice atomically: it assigns the daily
	// invoice number, inserts the invoice and its lines, appends the stock
	// movements, applies the stock deltas with availability enforcement and
	// applies the loyalty delta. Either everything commits or nothing does.
	CreateInvoice(ctx context.Context, inv domain.Invoice, movements []domain.StockMovement, loyalty domain.LoyaltyAdjustment) (*domain.Invoice, error)
	GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]domain.Invoice, error)
	ListCustomerInvoices(ctx context.Context, customerID string, limit int) ([]domain.Invoice, error)
	// ReturnedQtyByInvoice sums quantities already returned against the
	// given sale invoice, keyed by product ID.
	ReturnedQtyByInvoice(ctx context.Context, invoiceID string) (map[string]float64, error)
	// NextInvoiceSequence returns the next daily sequence number for day.
	// CreateInvoice consumes the sequence inside its own transaction; this
	// method exists for previews and diagnostics.
	NextInvoiceSequence(ctx context.Context, day time.Time) (int, error)

	// CreatePurchase persists a purchase atomically together with its stock
	// movements and stock increases.
	CreatePurchase(ctx context.Context, purchase domain.Purchase, movements []domain.StockMovement) (*domain.Purchase, error)
	GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, supplierID string, limit int) ([]domain.Purchase, error)

	ListStockMovements(ctx context.Context, filter MovementFilter) ([]domain.StockMovement, error)
	AppendStockMovements(ctx context.Context, movements []domain.StockMovement) error
	// StockLedgerBalance sums the movement ledger for one product.
	StockLedgerBalance(ctx context.Context, productID string) (float64, error)

	AppendAuditEntry(ctx context.Context, entry domain.AuditEntry) error
	ListAuditEntries(ctx context.Context, action string, limit int) ([]domain.AuditEntry, error)

	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error

	SalesTotals(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error)
	GSTBreakdown(ctx context.Context, from time.Time, to time.Time) ([]domain.GSTRateTotals, error)
	InventoryReport(ctx context.Context) (domain.InventoryReport, error)
	TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error)
	CountCustomers(ctx context.Context) (int, error)
}
