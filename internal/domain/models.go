// Package domain holds the shared types of the retail backend.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Invoice types.
const (
	InvoiceTypeSale   = "sale"
	InvoiceTypeReturn = "return"
)

// Stock movement reasons.
const (
	MovementReasonSale       = "sale"
	MovementReasonReturn     = "return"
	MovementReasonPurchase   = "purchase"
	MovementReasonAdjustment = "adjustment"
)

// User roles.
const (
	RoleOwner        = "owner"
	RoleAdmin        = "admin"
	RoleCashier      = "cashier"
	RoleStockManager = "stock_manager"
)

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// InvoiceNumber formats the human-facing invoice number for the given day
// and daily sequence, e.g. INV-20260831-0042.
func InvoiceNumber(day time.Time, seq int) string {
	return fmt.Sprintf("INV-%s-%04d", day.UTC().Format("20060102"), seq)
}

type Product struct {
	ID                 string    `json:"id"`
	SKU                string    `json:"sku"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	GSTRate            int       `json:"gst_rate"`
	SellingPricePaise  int64     `json:"selling_price_paise"`
	PurchasePricePaise int64     `json:"purchase_price_paise"`
	CurrentStock       float64   `json:"current_stock"`
	ReorderLevel       float64   `json:"reorder_level"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU                string  `json:"sku"`
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	GSTRate            int     `json:"gst_rate"`
	SellingPricePaise  int64   `json:"selling_price_paise"`
	PurchasePricePaise int64   `json:"purchase_price_paise"`
	InitialStock       float64 `json:"initial_stock"`
	ReorderLevel       float64 `json:"reorder_level"`
}

type ProductUpdateRequest struct {
	Name               *string  `json:"name,omitempty"`
	Category           *string  `json:"category,omitempty"`
	GSTRate            *int     `json:"gst_rate,omitempty"`
	SellingPricePaise  *int64   `json:"selling_price_paise,omitempty"`
	PurchasePricePaise *int64   `json:"purchase_price_paise,omitempty"`
	ReorderLevel       *float64 `json:"reorder_level,omitempty"`
	Active             *bool    `json:"active,omitempty"`
}

type Customer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	LoyaltyPoints int64     `json:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
}

type SaleInvoiceRequest struct {
	CustomerID           string     `json:"customer_id,omitempty"`
	Lines                []CartLine `json:"lines"`
	InvoiceDiscountPaise int64      `json:"invoice_discount_paise"`
}

type ReturnInvoiceRequest struct {
	OriginalInvoiceID string       `json:"original_invoice_id"`
	Lines             []ReturnLine `json:"lines"`
	Reason            string       `json:"reason"`
}

// QuickSaleRequest is an anonymous walk-in sale. The discount arrives in
// rupees from the till UI and is converted to paise at the boundary.
type QuickSaleRequest struct {
	Lines          []CartLine `json:"lines"`
	DiscountRupees float64    `json:"discount_rupees"`
}

type PurchaseItemRequest struct {
	ProductID     string  `json:"product_id"`
	Qty           float64 `json:"qty"`
	UnitCostPaise int64   `json:"unit_cost_paise"`
}

type PurchaseRequest struct {
	SupplierID string                `json:"supplier_id"`
	InvoiceNo  string                `json:"invoice_no,omitempty"`
	Items      []PurchaseItemRequest `json:"items"`
}

type StockAdjustRequest struct {
	ProductID string  `json:"product_id"`
	ChangeQty float64 `json:"change_qty"`
	Note      string  `json:"note,omitempty"`
}

type LoyaltyAdjustRequest struct {
	Points int64  `json:"points"`
	Reason string `json:"reason,omitempty"`
}

// CartLine is one requested sale line before catalog enrichment.
type CartLine struct {
	ProductID     string  `json:"product_id"`
	Qty           float64 `json:"qty"`
	DiscountPaise int64   `json:"discount_paise"`
}

// ReturnLine is one requested return line; prices come from the original
// invoice, never from the request.
type ReturnLine struct {
	ProductID string  `json:"product_id"`
	Qty       float64 `json:"qty"`
}

type InvoiceLine struct {
	ID             string  `json:"id"`
	InvoiceID      string  `json:"invoice_id"`
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	ProductSKU     string  `json:"product_sku"`
	Qty            float64 `json:"qty"`
	UnitPricePaise int64   `json:"unit_price_paise"`
	GSTRate        int     `json:"gst_rate"`
	DiscountPaise  int64   `json:"discount_paise"`
	GSTAmountPaise int64   `json:"gst_amount_paise"`
	TotalPaise     int64   `json:"total_paise"`
}

type Invoice struct {
	ID                string        `json:"id"`
	Number            string        `json:"number"`
	Type              string        `json:"type"`
	OriginalInvoiceID string        `json:"original_invoice_id,omitempty"`
	CustomerID        string        `json:"customer_id,omitempty"`
	CustomerName      string        `json:"customer_name,omitempty"`
	CreatedBy         string        `json:"created_by"`
	SubtotalPaise     int64         `json:"subtotal_paise"`
	TaxPaise          int64         `json:"tax_paise"`
	DiscountPaise     int64         `json:"discount_paise"`
	TotalPaise        int64         `json:"total_paise"`
	Reason            string        `json:"reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	Lines             []InvoiceLine `json:"lines,omitempty"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	ChangeQty float64   `json:"change_qty"`
	Reason    string    `json:"reason"`
	RefID     string    `json:"ref_id,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LoyaltyAdjustment is the loyalty delta applied atomically with an invoice.
// An empty CustomerID means no adjustment.
type LoyaltyAdjustment struct {
	CustomerID string
	Points     int64
}

type PurchaseItem struct {
	ID            string  `json:"id"`
	PurchaseID    string  `json:"purchase_id"`
	ProductID     string  `json:"product_id"`
	Qty           float64 `json:"qty"`
	UnitCostPaise int64   `json:"unit_cost_paise"`
	TotalPaise    int64   `json:"total_paise"`
}

type Purchase struct {
	ID         string         `json:"id"`
	SupplierID string         `json:"supplier_id"`
	InvoiceNo  string         `json:"invoice_no,omitempty"`
	TotalPaise int64          `json:"total_paise"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	Items      []PurchaseItem `json:"items,omitempty"`
}

type AuditEntry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	ObjectType string    `json:"object_type"`
	ObjectID   string    `json:"object_id"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Actor is the authenticated principal carried through request contexts.
type Actor struct {
	ID    string
	Email string
	Role  string
}

type UserAccount struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// StockBalance compares the recorded product stock against the movement
// ledger. Consistent is false when the two disagree.
type StockBalance struct {
	ProductID     string  `json:"product_id"`
	CurrentStock  float64 `json:"current_stock"`
	LedgerBalance float64 `json:"ledger_balance"`
	Consistent    bool    `json:"consistent"`
}

// SalesTotals aggregates sale and return invoices over a date range.
type SalesTotals struct {
	SaleCount     int   `json:"sale_count"`
	ReturnCount   int   `json:"return_count"`
	SubtotalPaise int64 `json:"subtotal_paise"`
	TaxPaise      int64 `json:"tax_paise"`
	DiscountPaise int64 `json:"discount_paise"`
	GrossPaise    int64 `json:"gross_paise"`
	ReturnedPaise int64 `json:"returned_paise"`
	NetPaise      int64 `json:"net_paise"`
}

// GSTRateTotals is the tax collected at one GST rate over a date range.
type GSTRateTotals struct {
	Rate         int   `json:"rate"`
	TaxablePaise int64 `json:"taxable_paise"`
	GSTPaise     int64 `json:"gst_paise"`
	CGSTPaise    int64 `json:"cgst_paise"`
	SGSTPaise    int64 `json:"sgst_paise"`
}

type InventoryReport struct {
	ProductCount    int   `json:"product_count"`
	StockValuePaise int64 `json:"stock_value_paise"`
	LowStockCount   int   `json:"low_stock_count"`
	OutOfStockCount int   `json:"out_of_stock_count"`
}

type ProductSales struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	QtySold      float64 `json:"qty_sold"`
	RevenuePaise int64   `json:"revenue_paise"`
}

type DashboardStats struct {
	Period        string      `json:"period"`
	Sales         SalesTotals `json:"sales"`
	InvoiceCount  int         `json:"invoice_count"`
	CustomerCount int         `json:"customer_count"`
	LowStockCount int         `json:"low_stock_count"`
	GeneratedAt   time.Time   `json:"generated_at"`
}
