package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, sku, name, category, gst_rate, selling_price_paise, purchase_price_paise, current_stock, reorder_level, active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.GSTRate, &p.SellingPricePaise,
		&p.PurchasePricePaise, &p.CurrentStock, &p.ReorderLevel, &p.Active, &p.CreatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR category = $2)
		ORDER BY category, name
	`, search, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.SellingPricePaise < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = domain.NewID()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, gst_rate, selling_price_paise, purchase_price_paise, current_stock, reorder_level, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
	`, product.ID, product.SKU, product.Name, product.Category, product.GSTRate, product.SellingPricePaise,
		product.PurchasePricePaise, product.CurrentStock, product.ReorderLevel, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.SellingPricePaise < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, gst_rate = $4, selling_price_paise = $5,
		    purchase_price_paise = $6, reorder_level = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.GSTRate, product.SellingPricePaise,
		product.PurchasePricePaise, product.ReorderLevel, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND current_stock <= reorder_level
		ORDER BY current_stock, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) AdjustProductStock(ctx context.Context, productID string, delta float64) (*domain.Product, error) {
	// Conditional update so a concurrent decrement can never drive stock
	// negative.
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET current_stock = current_stock + $2, updated_at = now()
		WHERE id = $1 AND current_stock + $2 >= 0
		RETURNING `+productColumns+`
	`, productID, delta)
	product, err := scanProduct(row)
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	existing, getErr := s.GetProductByID(ctx, productID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: insufficient stock for %s. Available: %v, Requested: %v",
		store.ErrInsufficientStock, existing.Name, existing.CurrentStock, -delta)
}

const customerColumns = `id, name, COALESCE(phone,''), COALESCE(email,''), loyalty_points, created_at`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.LoyaltyPoints, &c.CreatedAt)
	return c, err
}

func (s *Store) ListCustomers(ctx context.Context, search string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		ORDER BY name
	`, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = domain.NewID()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, loyalty_points, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		customer.LoyaltyPoints, customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, updated_at = now()
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetCustomerByID(ctx, customer.ID)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustCustomerLoyalty(ctx context.Context, customerID string, delta int64) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET loyalty_points = loyalty_points + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns+`
	`, customerID, delta)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

const supplierColumns = `id, name, COALESCE(phone,''), COALESCE(email,''), COALESCE(address,''), created_at`

func scanSupplier(row interface{ Scan(...any) error }) (domain.Supplier, error) {
	var sup domain.Supplier
	err := row.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Email, &sup.Address, &sup.CreatedAt)
	return sup, err
}

const categoryColumns = `id, name, COALESCE(description,''), created_at`

func scanCategory(row interface{ Scan(...any) error }) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	return c, err
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = domain.NewID()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now())
	`, category.ID, category.Name, nullIfEmpty(category.Description), category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, category.Name)
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
	`, category.ID, category.Name, nullIfEmpty(category.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, category.Name)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetCategoryByID(ctx, category.ID)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return suppliers, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id)
	supplier, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = domain.NewID()
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email),
		nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers
		SET name = $2, phone = $3, email = $4, address = $5, updated_at = now()
		WHERE id = $1
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email), nullIfEmpty(supplier.Address))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetSupplierByID(ctx, supplier.ID)
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice, movements []domain.StockMovement, loyalty domain.LoyaltyAdjustment) (*domain.Invoice, error) {
	if len(inv.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if inv.Type != domain.InvoiceTypeSale && inv.Type != domain.InvoiceTypeReturn {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(movements)
	if len(productIDs) > 0 {
		// Lock the product rows up front so the availability check and the
		// decrement see the same stock.
		lockRows, err := pgTx.QueryContext(ctx, `
			SELECT id, name, current_stock
			FROM products
			WHERE id = ANY($1)
			FOR UPDATE
		`, productIDs)
		if err != nil {
			return nil, err
		}
		type productState struct {
			name  string
			stock float64
		}
		locked := make(map[string]productState, len(productIDs))
		for lockRows.Next() {
			var id string
			var state productState
			if err := lockRows.Scan(&id, &state.name, &state.stock); err != nil {
				_ = lockRows.Close()
				return nil, err
			}
			locked[id] = state
		}
		if err := lockRows.Err(); err != nil {
			_ = lockRows.Close()
			return nil, err
		}
		_ = lockRows.Close()

		// A product can appear on more than one movement, so validate the
		// summed delta per product against the locked stock.
		deltas := make(map[string]float64, len(movements))
		for _, m := range movements {
			if _, exists := locked[m.ProductID]; !exists {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, m.ProductID)
			}
			deltas[m.ProductID] += m.ChangeQty
		}
		for productID, delta := range deltas {
			state := locked[productID]
			if state.stock+delta < 0 {
				return nil, fmt.Errorf("%w: insufficient stock for %s. Available: %v, Requested: %v",
					store.ErrInsufficientStock, state.name, state.stock, -delta)
			}
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
		seq, err := nextInvoiceSeqTx(ctx, pgTx, inv.CreatedAt)
		if err != nil {
			return nil, err
		}
		inv.Number = domain.InvoiceNumber(inv.CreatedAt, seq)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, number, type, original_invoice_id, customer_id, customer_name,
			created_by, subtotal_paise, tax_paise, discount_paise, total_paise,
			reason, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, inv.ID, inv.Number, inv.Type, nullIfEmpty(inv.OriginalInvoiceID), nullIfEmpty(inv.CustomerID),
		nullIfEmpty(inv.CustomerName), inv.CreatedBy, inv.SubtotalPaise, inv.TaxPaise,
		inv.DiscountPaise, inv.TotalPaise, nullIfEmpty(inv.Reason), inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: invoice number %s already taken", store.ErrConflict, inv.Number)
		}
		return nil, err
	}

	for i := range inv.Lines {
		line := &inv.Lines[i]
		if line.ID == "" {
			line.ID = domain.NewID()
		}
		line.InvoiceID = inv.ID
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO invoice_lines (
				id, invoice_id, product_id, product_name, product_sku, qty,
				unit_price_paise, gst_rate, discount_paise, gst_amount_paise, total_paise
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, line.ID, line.InvoiceID, line.ProductID, line.ProductName, line.ProductSKU, line.Qty,
			line.UnitPricePaise, line.GSTRate, line.DiscountPaise, line.GSTAmountPaise, line.TotalPaise)
		if err != nil {
			return nil, err
		}
	}

	for _, m := range movements {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET current_stock = current_stock + $2, updated_at = now()
			WHERE id = $1
		`, m.ProductID, m.ChangeQty)
		if err != nil {
			return nil, err
		}

		if m.ID == "" {
			m.ID = domain.NewID()
		}
		if m.RefID == "" {
			m.RefID = inv.ID
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, change_qty, reason, ref_id, note, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, m.ID, m.ProductID, m.ChangeQty, m.Reason, nullIfEmpty(m.RefID), nullIfEmpty(m.Note),
			nullIfEmpty(m.CreatedBy), m.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if loyalty.CustomerID != "" && loyalty.Points != 0 {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = loyalty_points + $2, updated_at = now()
			WHERE id = $1
		`, loyalty.CustomerID, loyalty.Points)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, loyalty.CustomerID)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := inv
	return &created, nil
}

// nextInvoiceSeqTx reads the highest sequence issued today inside the
// caller's transaction. The suffix is compared numerically, not as text, so
// the sequence keeps counting past 9999. The serializable isolation level
// plus the unique constraint on invoices.number keep concurrent issuers from
// colliding.
func nextInvoiceSeqTx(ctx context.Context, pgTx *sql.Tx, day time.Time) (int, error) {
	prefix := "INV-" + day.UTC().Format("20060102") + "-"
	var latest int
	err := pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM char_length($1) + 1) AS INTEGER)), 0)
		FROM invoices
		WHERE number LIKE $1 || '%'
	`, prefix).Scan(&latest)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

const invoiceColumns = `id, number, type, COALESCE(original_invoice_id,''), COALESCE(customer_id,''), COALESCE(customer_name,''), created_by, subtotal_paise, tax_paise, discount_paise, total_paise, COALESCE(reason,''), created_at`

func scanInvoice(row interface{ Scan(...any) error }) (domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Type, &inv.OriginalInvoiceID, &inv.CustomerID,
		&inv.CustomerName, &inv.CreatedBy, &inv.SubtotalPaise, &inv.TaxPaise, &inv.DiscountPaise,
		&inv.TotalPaise, &inv.Reason, &inv.CreatedAt)
	return inv, err
}

func (s *Store) GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, product_id, product_name, product_sku, qty,
		       unit_price_paise, gst_rate, discount_paise, gst_amount_paise, total_paise
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line domain.InvoiceLine
		if err := lineRows.Scan(&line.ID, &line.InvoiceID, &line.ProductID, &line.ProductName,
			&line.ProductSKU, &line.Qty, &line.UnitPricePaise, &line.GSTRate, &line.DiscountPaise,
			&line.GSTAmountPaise, &line.TotalPaise); err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE ($1 = '' OR type = $1)
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, number DESC
		LIMIT $5
	`, filter.Type, filter.CustomerID, nullTimeZero(filter.From), nullTimeZero(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return invoices, nil
}

func (s *Store) ListCustomerInvoices(ctx context.Context, customerID string, limit int) ([]domain.Invoice, error) {
	return s.ListInvoices(ctx, store.InvoiceFilter{CustomerID: customerID, Limit: limit})
}

func (s *Store) ReturnedQtyByInvoice(ctx context.Context, invoiceID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.product_id, SUM(l.qty)
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE i.type = $1 AND i.original_invoice_id = $2
		GROUP BY l.product_id
	`, domain.InvoiceTypeReturn, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]float64)
	for rows.Next() {
		var productID string
		var qty float64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		result[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) NextInvoiceSequence(ctx context.Context, day time.Time) (int, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()
	return nextInvoiceSeqTx(ctx, pgTx, day)
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase, movements []domain.StockMovement) (*domain.Purchase, error) {
	if purchase.SupplierID == "" || len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var supplierExists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, purchase.SupplierID).Scan(&supplierExists); err != nil {
		return nil, err
	}
	if !supplierExists {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, purchase.SupplierID)
	}

	now := time.Now().UTC()
	if purchase.ID == "" {
		purchase.ID = domain.NewID()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, invoice_no, total_paise, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, purchase.ID, purchase.SupplierID, nullIfEmpty(purchase.InvoiceNo), purchase.TotalPaise,
		purchase.CreatedBy, purchase.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range purchase.Items {
		item := &purchase.Items[i]
		if item.Qty <= 0 || item.UnitCostPaise < 0 {
			return nil, store.ErrInvalidInput
		}
		if item.ID == "" {
			item.ID = domain.NewID()
		}
		item.PurchaseID = purchase.ID

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO purchase_items (id, purchase_id, product_id, qty, unit_cost_paise, total_paise)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, item.PurchaseID, item.ProductID, item.Qty, item.UnitCostPaise, item.TotalPaise)
		if err != nil {
			return nil, err
		}

		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET current_stock = current_stock + $2, updated_at = now()
			WHERE id = $1
		`, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
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
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, change_qty, reason, ref_id, note, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, m.ID, m.ProductID, m.ChangeQty, m.Reason, nullIfEmpty(m.RefID), nullIfEmpty(m.Note),
			nullIfEmpty(m.CreatedBy), m.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := purchase
	return &created, nil
}

func (s *Store) GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error) {
	var purchase domain.Purchase
	err := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, COALESCE(invoice_no,''), total_paise, created_by, created_at
		FROM purchases
		WHERE id = $1
	`, id).Scan(&purchase.ID, &purchase.SupplierID, &purchase.InvoiceNo, &purchase.TotalPaise,
		&purchase.CreatedBy, &purchase.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_id, product_id, qty, unit_cost_paise, total_paise
		FROM purchase_items
		WHERE purchase_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Qty,
			&item.UnitCostPaise, &item.TotalPaise); err != nil {
			return nil, err
		}
		purchase.Items = append(purchase.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, supplierID string, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, COALESCE(invoice_no,''), total_paise, created_by, created_at
		FROM purchases
		WHERE $1 = '' OR supplier_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, supplierID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.InvoiceNo, &p.TotalPaise, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return purchases, nil
}

func (s *Store) ListStockMovements(ctx context.Context, filter store.MovementFilter) ([]domain.StockMovement, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, change_qty, reason, COALESCE(ref_id,''), COALESCE(note,''), COALESCE(created_by,''), created_at
		FROM stock_movements
		WHERE ($1 = '' OR product_id = $1)
		  AND ($2 = '' OR reason = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, filter.ProductID, filter.Reason, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ChangeQty, &m.Reason, &m.RefID, &m.Note,
			&m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return movements, nil
}

func (s *Store) AppendStockMovements(ctx context.Context, movements []domain.StockMovement) error {
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
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, change_qty, reason, ref_id, note, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, m.ID, m.ProductID, m.ChangeQty, m.Reason, nullIfEmpty(m.RefID), nullIfEmpty(m.Note),
			nullIfEmpty(m.CreatedBy), m.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) StockLedgerBalance(ctx context.Context, productID string) (float64, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	var balance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(change_qty), 0)
		FROM stock_movements
		WHERE product_id = $1
	`, productID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) AppendAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = domain.NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, object_type, object_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ActorID, entry.Action, entry.ObjectType, nullIfEmpty(entry.ObjectID),
		nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditEntries(ctx context.Context, action string, limit int) ([]domain.AuditEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, object_type, COALESCE(object_id,''), COALESCE(detail,''), created_at
		FROM audit_log
		WHERE $1 = '' OR action = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ObjectType, &e.ObjectID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(full_name,''), password_hash, role, active, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&user.ID, &user.Email, &user.FullName, &user.Password,
		&user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = domain.NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Email, nullIfEmpty(user.FullName), user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s already registered", store.ErrConflict, user.Email)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, COALESCE(full_name,''), password_hash, role, active, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	if password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE email = $1
	`, strings.ToLower(email), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SalesTotals(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error) {
	var totals domain.SalesTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE type = 'sale'),
			COUNT(*) FILTER (WHERE type = 'return'),
			COALESCE(SUM(subtotal_paise) FILTER (WHERE type = 'sale'), 0),
			COALESCE(SUM(tax_paise) FILTER (WHERE type = 'sale'), 0),
			COALESCE(SUM(discount_paise) FILTER (WHERE type = 'sale'), 0),
			COALESCE(SUM(total_paise) FILTER (WHERE type = 'sale'), 0),
			COALESCE(SUM(total_paise) FILTER (WHERE type = 'return'), 0)
		FROM invoices
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
	`, nullTimeZero(from), nullTimeZero(to)).Scan(&totals.SaleCount, &totals.ReturnCount,
		&totals.SubtotalPaise, &totals.TaxPaise, &totals.DiscountPaise, &totals.GrossPaise, &totals.ReturnedPaise)
	if err != nil {
		return domain.SalesTotals{}, err
	}
	totals.NetPaise = totals.GrossPaise - totals.ReturnedPaise
	return totals, nil
}

func (s *Store) GSTBreakdown(ctx context.Context, from time.Time, to time.Time) ([]domain.GSTRateTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.gst_rate,
		       COALESCE(SUM(CASE WHEN i.type = 'return' THEN -(l.total_paise - l.gst_amount_paise) ELSE l.total_paise - l.gst_amount_paise END), 0),
		       COALESCE(SUM(CASE WHEN i.type = 'return' THEN -l.gst_amount_paise ELSE l.gst_amount_paise END), 0)
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE ($1::timestamptz IS NULL OR i.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR i.created_at < $2)
		GROUP BY l.gst_rate
		ORDER BY l.gst_rate
	`, nullTimeZero(from), nullTimeZero(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.GSTRateTotals, 0, 6)
	for rows.Next() {
		var row domain.GSTRateTotals
		if err := rows.Scan(&row.Rate, &row.TaxablePaise, &row.GSTPaise); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) InventoryReport(ctx context.Context) (domain.InventoryReport, error) {
	var report domain.InventoryReport
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(ROUND(current_stock * purchase_price_paise)), 0),
			COUNT(*) FILTER (WHERE current_stock > 0 AND current_stock <= reorder_level),
			COUNT(*) FILTER (WHERE current_stock <= 0)
		FROM products
		WHERE active = true
	`).Scan(&report.ProductCount, &report.StockValuePaise, &report.LowStockCount, &report.OutOfStockCount)
	if err != nil {
		return domain.InventoryReport{}, err
	}
	return report, nil
}

func (s *Store) TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.product_id, MAX(l.product_name), SUM(l.qty), SUM(l.total_paise)
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE i.type = 'sale'
		  AND ($1::timestamptz IS NULL OR i.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR i.created_at < $2)
		GROUP BY l.product_id
		ORDER BY SUM(l.total_paise) DESC
		LIMIT $3
	`, nullTimeZero(from), nullTimeZero(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductSales, 0, limit)
	for rows.Next() {
		var row domain.ProductSales
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.QtySold, &row.RevenuePaise); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CountCustomers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func uniqueProductIDs(movements []domain.StockMovement) []string {
	seen := make(map[string]struct{}, len(movements))
	ids := make([]string, 0, len(movements))
	for _, m := range movements {
		if _, ok := seen[m.ProductID]; ok {
			continue
		}
		seen[m.ProductID] = struct{}{}
		ids = append(ids, m.ProductID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTimeZero(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
