package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
)

func TestPeriodBounds(t *testing.T) {
	// A Wednesday.
	now := time.Date(2026, time.March, 11, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		period string
		from   time.Time
		to     time.Time
	}{
		{PeriodToday, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"", time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		{PeriodWeek, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)},
		{PeriodMonth, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodYear, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		from, to, err := PeriodBounds(tc.period, now)
		if err != nil {
			t.Fatalf("PeriodBounds(%q): %v", tc.period, err)
		}
		if !from.Equal(tc.from) || !to.Equal(tc.to) {
			t.Fatalf("PeriodBounds(%q) = [%v, %v), want [%v, %v)", tc.period, from, to, tc.from, tc.to)
		}
	}

	if _, _, err := PeriodBounds("quarter", now); err == nil {
		t.Fatalf("expected error for unknown period")
	}
}

func TestPeriodBoundsWeekStartsMonday(t *testing.T) {
	// A Sunday still belongs to the week that started the previous Monday.
	sunday := time.Date(2026, time.March, 15, 8, 0, 0, 0, time.UTC)
	from, _, err := PeriodBounds(PeriodWeek, sunday)
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	if want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Fatalf("week start = %v, want %v", from, want)
	}
}

type recordingCache struct {
	stored map[string]*domain.DashboardStats
	gets   int
	sets   int
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.DashboardStats, bool, error) {
	c.gets++
	stats, ok := c.stored[key]
	return stats, ok, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value *domain.DashboardStats, _ time.Duration) error {
	c.sets++
	if c.stored == nil {
		c.stored = map[string]*domain.DashboardStats{}
	}
	c.stored[key] = value
	return nil
}

func TestDashboardCachesSnapshot(t *testing.T) {
	rec := &recordingCache{}
	engine := NewEngine(rec, time.Minute)
	loads := 0
	load := func(context.Context) (DashboardInputs, error) {
		loads++
		return DashboardInputs{
			Sales:         domain.SalesTotals{SaleCount: 4, ReturnCount: 1, NetPaise: 120000},
			CustomerCount: 7,
			LowStockCount: 2,
		}, nil
	}

	first, err := engine.Dashboard(context.Background(), PeriodToday, load)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if first.InvoiceCount != 5 || first.CustomerCount != 7 || first.LowStockCount != 2 {
		t.Fatalf("unexpected snapshot %+v", first)
	}
	if loads != 1 || rec.sets != 1 {
		t.Fatalf("expected one load and one cache write, loads=%d sets=%d", loads, rec.sets)
	}

	// Second call within the same minute serves the cached snapshot and
	// must not touch storage again.
	second, err := engine.Dashboard(context.Background(), PeriodToday, load)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if second.Sales.SaleCount != 4 || !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("expected cached snapshot, got %+v", second)
	}
	if loads != 1 || rec.sets != 1 {
		t.Fatalf("cache hit ran the loader, loads=%d sets=%d", loads, rec.sets)
	}
}

func TestDashboardSurfacesLoaderError(t *testing.T) {
	engine := NewEngine(nil, 0)
	wantErr := errors.New("storage down")
	_, err := engine.Dashboard(context.Background(), PeriodToday, func(context.Context) (DashboardInputs, error) {
		return DashboardInputs{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestDashboardDefaultsToToday(t *testing.T) {
	engine := NewEngine(nil, 0)
	stats, err := engine.Dashboard(context.Background(), "", func(context.Context) (DashboardInputs, error) {
		return DashboardInputs{}, nil
	})
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if stats.Period != PeriodToday {
		t.Fatalf("expected default period %q, got %q", PeriodToday, stats.Period)
	}
}

func TestSplitGSTHalvesEveryRow(t *testing.T) {
	rows := SplitGST([]domain.GSTRateTotals{
		{Rate: 5, GSTPaise: 4500},
		{Rate: 18, GSTPaise: 541},
	})
	if rows[0].CGSTPaise != 2250 || rows[0].SGSTPaise != 2250 {
		t.Fatalf("even split wrong: %+v", rows[0])
	}
	if rows[1].CGSTPaise+rows[1].SGSTPaise != 541 {
		t.Fatalf("odd paise must not be lost: %+v", rows[1])
	}
}
