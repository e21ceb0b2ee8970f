package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/money"
	"github.com/aishwaryam567/Retail-management-system/internal/pricing"
	"github.com/aishwaryam567/Retail-management-system/internal/store"
)

// loyaltyPaisePerPoint: one point per Rs 100 of invoice total.
const loyaltyPaisePerPoint = 10000

func loyaltyPointsFor(totalPaise int64) int64 {
	if totalPaise <= 0 {
		return 0
	}
	return totalPaise / loyaltyPaisePerPoint
}

// CreateSaleInvoice builds and persists a sale invoice for an optional
// registered customer. Stock decrements, the movement ledger, the invoice
// number and the loyalty accrual all commit in one storage transaction.
func (s *Service) CreateSaleInvoice(ctx context.Context, req domain.SaleInvoiceRequest) (domain.Invoice, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Invoice{}, err
	}
	return s.createSale(ctx, req.CustomerID, req.Lines, req.InvoiceDiscountPaise)
}

// CreateQuickSale is an anonymous walk-in sale. No customer record and no
// loyalty accrual; the till discount arrives in rupees.
func (s *Service) CreateQuickSale(ctx context.Context, req domain.QuickSaleRequest) (domain.Invoice, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Invoice{}, err
	}

	discountPaise, err := money.ToPaise(req.DiscountRupees)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("%w: discount: %v", store.ErrInvalidInput, err)
	}
	return s.createSale(ctx, "", req.Lines, discountPaise)
}

func (s *Service) createSale(ctx context.Context, customerID string, lines []domain.CartLine, invoiceDiscountPaise int64) (domain.Invoice, error) {
	actor, _ := ActorFromContext(ctx)

	if len(lines) == 0 {
		return domain.Invoice{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidInput)
	}

	var customer *domain.Customer
	if customerID != "" {
		found, err := s.repo.GetCustomerByID(ctx, customerID)
		if err != nil {
			return domain.Invoice{}, fmt.Errorf("customer %s: %w", customerID, err)
		}
		customer = found
	}

	inputs := make([]pricing.LineInput, 0, len(lines))
	products := make(map[string]domain.Product, len(lines))
	requested := make(map[string]float64, len(lines))
	for _, line := range lines {
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return domain.Invoice{}, fmt.Errorf("product %s: %w", line.ProductID, err)
		}
		if !product.Active {
			return domain.Invoice{}, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		// Early feedback only, over the cart's summed quantity per product.
		// The authoritative check runs inside the storage transaction when
		// the decrement is applied.
		requested[product.ID] += line.Qty
		if product.CurrentStock < requested[product.ID] {
			return domain.Invoice{}, fmt.Errorf("%w: insufficient stock for %s. Available: %v, Requested: %v",
				store.ErrInsufficientStock, product.Name, product.CurrentStock, requested[product.ID])
		}
		products[product.ID] = *product
		inputs = append(inputs, pricing.LineInput{
			ProductID:      product.ID,
			Qty:            line.Qty,
			UnitPricePaise: product.SellingPricePaise,
			GSTRate:        product.GSTRate,
			DiscountPaise:  line.DiscountPaise,
		})
	}

	totals, priced, err := pricing.PriceCart(inputs, invoiceDiscountPaise)
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice := domain.Invoice{
		Type:          domain.InvoiceTypeSale,
		CreatedBy:     actor.ID,
		SubtotalPaise: totals.SubtotalPaise,
		TaxPaise:      totals.TaxPaise,
		DiscountPaise: totals.DiscountPaise,
		TotalPaise:    totals.TotalPaise,
		Lines:         invoiceLines(priced, products),
	}
	var loyalty domain.LoyaltyAdjustment
	if customer != nil {
		invoice.CustomerID = customer.ID
		invoice.CustomerName = customer.Name
		loyalty = domain.LoyaltyAdjustment{
			CustomerID: customer.ID,
			Points:     loyaltyPointsFor(totals.TotalPaise),
		}
	}

	created, err := s.repo.CreateInvoice(ctx, invoice, saleMovements(priced, actor.ID), loyalty)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "INVOICE_CREATED", "invoice", created.ID,
		fmt.Sprintf("number=%s,total=%d,lines=%d", created.Number, created.TotalPaise, len(created.Lines)))
	return *created, nil
}

// CreateReturnInvoice reverses part or all of a sale. Prices and GST rates
// come from the original invoice lines; the cumulative quantity returned
// against a line can never exceed what was sold.
func (s *Service) CreateReturnInvoice(ctx context.Context, req domain.ReturnInvoiceRequest) (domain.Invoice, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier)
	if err != nil {
		return domain.Invoice{}, err
	}

	if req.OriginalInvoiceID == "" || len(req.Lines) == 0 {
		return domain.Invoice{}, fmt.Errorf("%w: original invoice and lines are required", store.ErrInvalidInput)
	}

	original, err := s.repo.GetInvoiceByID(ctx, req.OriginalInvoiceID)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("invoice %s: %w", req.OriginalInvoiceID, err)
	}
	if original.Type != domain.InvoiceTypeSale {
		return domain.Invoice{}, fmt.Errorf("%w: invoice %s is not a sale invoice", store.ErrConflict, original.Number)
	}

	alreadyReturned, err := s.repo.ReturnedQtyByInvoice(ctx, original.ID)
	if err != nil {
		return domain.Invoice{}, err
	}

	originalByProduct := make(map[string]domain.InvoiceLine, len(original.Lines))
	for _, line := range original.Lines {
		originalByProduct[line.ProductID] = line
	}

	inputs := make([]pricing.LineInput, 0, len(req.Lines))
	products := make(map[string]domain.Product, len(req.Lines))
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return domain.Invoice{}, fmt.Errorf("%w: return quantity must be positive for product %s", store.ErrInvalidInput, line.ProductID)
		}
		origLine, ok := originalByProduct[line.ProductID]
		if !ok {
			return domain.Invoice{}, fmt.Errorf("%w: product %s is not on invoice %s", store.ErrInvalidInput, line.ProductID, original.Number)
		}
		if alreadyReturned[line.ProductID]+line.Qty > origLine.Qty {
			return domain.Invoice{}, fmt.Errorf("%w: return of %v exceeds sold quantity %v for %s (already returned %v)",
				store.ErrConflict, line.Qty, origLine.Qty, origLine.ProductName, alreadyReturned[line.ProductID])
		}
		// Count this line toward the cap so repeating a product within one
		// request cannot pass it.
		alreadyReturned[line.ProductID] += line.Qty
		products[line.ProductID] = domain.Product{
			ID:   line.ProductID,
			Name: origLine.ProductName,
			SKU:  origLine.ProductSKU,
		}
		inputs = append(inputs, pricing.LineInput{
			ProductID:      line.ProductID,
			Qty:            line.Qty,
			UnitPricePaise: origLine.UnitPricePaise,
			GSTRate:        origLine.GSTRate,
		})
	}

	totals, priced, err := pricing.PriceCart(inputs, 0)
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice := domain.Invoice{
		Type:              domain.InvoiceTypeReturn,
		OriginalInvoiceID: original.ID,
		CustomerID:        original.CustomerID,
		CustomerName:      original.CustomerName,
		CreatedBy:         actor.ID,
		SubtotalPaise:     totals.SubtotalPaise,
		TaxPaise:          totals.TaxPaise,
		DiscountPaise:     totals.DiscountPaise,
		TotalPaise:        totals.TotalPaise,
		Reason:            strings.TrimSpace(req.Reason),
		Lines:             invoiceLines(priced, products),
	}

	movements := make([]domain.StockMovement, 0, len(priced))
	for _, line := range priced {
		movements = append(movements, domain.StockMovement{
			ProductID: line.ProductID,
			ChangeQty: line.Qty,
			Reason:    domain.MovementReasonReturn,
			CreatedBy: actor.ID,
		})
	}

	var loyalty domain.LoyaltyAdjustment
	if original.CustomerID != "" {
		// Reversal mirrors accrual and may drive the balance negative.
		loyalty = domain.LoyaltyAdjustment{
			CustomerID: original.CustomerID,
			Points:     -loyaltyPointsFor(totals.TotalPaise),
		}
	}

	created, err := s.repo.CreateInvoice(ctx, invoice, movements, loyalty)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "RETURN_INVOICE_CREATED", "invoice", created.ID,
		fmt.Sprintf("number=%s,original=%s,total=%d,reason=%s", created.Number, original.Number, created.TotalPaise, invoice.Reason))
	return *created, nil
}

func invoiceLines(priced []pricing.PricedLine, products map[string]domain.Product) []domain.InvoiceLine {
	lines := make([]domain.InvoiceLine, 0, len(priced))
	for _, p := range priced {
		product := products[p.ProductID]
		lines = append(lines, domain.InvoiceLine{
			ProductID:      p.ProductID,
			ProductName:    product.Name,
			ProductSKU:     product.SKU,
			Qty:            p.Qty,
			UnitPricePaise: p.UnitPricePaise,
			GSTRate:        p.GSTRate,
			DiscountPaise:  p.DiscountPaise,
			GSTAmountPaise: p.GSTAmountPaise,
			TotalPaise:     p.TotalPaise,
		})
	}
	return lines
}

func saleMovements(priced []pricing.PricedLine, actorID string) []domain.StockMovement {
	movements := make([]domain.StockMovement, 0, len(priced))
	for _, line := range priced {
		movements = append(movements, domain.StockMovement{
			ProductID: line.ProductID,
			ChangeQty: -line.Qty,
			Reason:    domain.MovementReasonSale,
			CreatedBy: actorID,
		})
	}
	return movements
}
