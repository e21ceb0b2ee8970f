// Package reports assembles dashboard and tax reports from storage
// aggregates. Dashboard snapshots are cached because the till UI polls them.
package reports

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aishwaryam567/Retail-management-system/internal/cache"
	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/money"
)

// Dashboard periods.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// PeriodBounds resolves a dashboard period to a [from, to) UTC interval
// anchored at now. The week starts on Monday.
func PeriodBounds(period string, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case "", PeriodToday:
		return midnight, midnight.AddDate(0, 0, 1), nil
	case PeriodWeek:
		offset := (int(midnight.Weekday()) + 6) % 7
		start := midnight.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case PeriodYear:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}

// DashboardInputs are the storage aggregates a snapshot is built from.
type DashboardInputs struct {
	Sales         domain.SalesTotals
	CustomerCount int
	LowStockCount int
}

// Dashboard serves the stats snapshot for a period. The loader runs only on
// a cache miss, so a hit costs no storage work.
func (e *Engine) Dashboard(ctx context.Context, period string, load func(context.Context) (DashboardInputs, error)) (domain.DashboardStats, error) {
	if period == "" {
		period = PeriodToday
	}

	cacheKey := buildCacheKey(period, time.Now().UTC())
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	in, err := load(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{
		Period:        period,
		Sales:         in.Sales,
		InvoiceCount:  in.Sales.SaleCount + in.Sales.ReturnCount,
		CustomerCount: in.CustomerCount,
		LowStockCount: in.LowStockCount,
		GeneratedAt:   time.Now().UTC(),
	}

	_ = e.cache.Set(ctx, cacheKey, &stats, e.cacheTTL)
	return stats, nil
}

// SplitGST fills the CGST/SGST halves on raw per-rate totals.
func SplitGST(rows []domain.GSTRateTotals) []domain.GSTRateTotals {
	result := make([]domain.GSTRateTotals, len(rows))
	for i, row := range rows {
		row.CGSTPaise, row.SGSTPaise = money.SplitCGSTSGST(row.GSTPaise)
		result[i] = row
	}
	return result
}

func buildCacheKey(period string, now time.Time) string {
	parts := []string{period, now.Format("20060102"), fmt.Sprintf("m:%d", now.Minute())}
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "retail:dashboard:" + hex.EncodeToString(hash[:])
}
