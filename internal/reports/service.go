package reports

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Repository exposes the settled totals reports are built from.
type Repository interface {
	CategoryTotals(ctx context.Context, filter DREFilter) ([]CategoryTotal, error)
	CostCenterTotals(ctx context.Context, filter DREFilter) ([]CostCenterTotal, error)
}

// CacheRecorder counts report cache lookups.
type CacheRecorder interface {
	ObserveReportCache(report string, hit bool)
}

// Service coordinates report queries with the cache layer.
type Service struct {
	repo    Repository
	cache   *Cache
	metrics CacheRecorder
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService wires a Repository with a Cache helper. cache and metrics may be nil.
func NewService(repo Repository, cache *Cache, metrics CacheRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

func (f DREFilter) validate() error {
	verr := &shared.ValidationError{}
	if f.OwnerID <= 0 {
		verr.Addf("owner is required")
	}
	if f.From.IsZero() || f.To.IsZero() {
		verr.Addf("from and to are required")
	} else if f.To.Before(f.From) {
		verr.Addf("to must not be before from")
	}
	return verr.Err()
}

// DRE returns the income statement of the period. Concurrent requests for
// the same key share one build.
func (s *Service) DRE(ctx context.Context, filter DREFilter) (DRE, error) {
	if err := filter.validate(); err != nil {
		return DRE{}, err
	}
	filter.From = shared.DateOf(filter.From)
	filter.To = shared.DateOf(filter.To)

	key, err := s.cache.BuildKey(ctx, keyDRE(filter))
	if err != nil {
		s.logger.Warn("report cache key", slog.Any("error", err))
		key = keyDRE(filter)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var report DRE
		hit, err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			return s.build(ctx, filter)
		})
		if err != nil {
			return DRE{}, err
		}
		if s.metrics != nil {
			s.metrics.ObserveReportCache("dre", hit)
		}
		return report, nil
	})
	select {
	case <-ctx.Done():
		return DRE{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return DRE{}, res.Err
		}
		return res.Val.(DRE), nil
	}
}

func (s *Service) build(ctx context.Context, filter DREFilter) (DRE, error) {
	categories, err := s.repo.CategoryTotals(ctx, filter)
	if err != nil {
		return DRE{}, err
	}
	centers, err := s.repo.CostCenterTotals(ctx, filter)
	if err != nil {
		return DRE{}, err
	}
	return BuildDRE(filter, categories, centers), nil
}

// BuildDRE assembles a report from settled totals. Receivables are revenue,
// payables are expenses.
func BuildDRE(filter DREFilter, categories []CategoryTotal, centers []CostCenterTotal) DRE {
	report := DRE{
		OwnerID:     filter.OwnerID,
		From:        filter.From,
		To:          filter.To,
		Revenue:     decimal.Zero,
		Expenses:    decimal.Zero,
		Revenues:    []CategoryLine{},
		Costs:       []CategoryLine{},
		CostCenters: []CostCenterLine{},
	}
	for _, c := range categories {
		line := CategoryLine{CategoryID: c.CategoryID, Amount: shared.RoundMoney(c.Amount)}
		switch c.Kind {
		case shared.KindReceivable:
			report.Revenue = report.Revenue.Add(line.Amount)
			report.Revenues = append(report.Revenues, line)
		case shared.KindPayable:
			report.Expenses = report.Expenses.Add(line.Amount)
			report.Costs = append(report.Costs, line)
		}
	}
	report.Net = report.Revenue.Sub(report.Expenses)
	sortCategories(report.Revenues)
	sortCategories(report.Costs)

	byCenter := map[string]*CostCenterLine{}
	for _, c := range centers {
		line, ok := byCenter[c.CostCenterID]
		if !ok {
			line = &CostCenterLine{CostCenterID: c.CostCenterID, Revenue: decimal.Zero, Expenses: decimal.Zero}
			byCenter[c.CostCenterID] = line
		}
		amount := shared.RoundMoney(c.Amount)
		switch c.Kind {
		case shared.KindReceivable:
			line.Revenue = line.Revenue.Add(amount)
		case shared.KindPayable:
			line.Expenses = line.Expenses.Add(amount)
		}
	}
	for _, line := range byCenter {
		line.Net = line.Revenue.Sub(line.Expenses)
		report.CostCenters = append(report.CostCenters, *line)
	}
	sort.Slice(report.CostCenters, func(i, j int) bool {
		return report.CostCenters[i].CostCenterID < report.CostCenters[j].CostCenterID
	})
	return report
}

// sortCategories orders lines by amount descending, uncategorised last.
func sortCategories(lines []CategoryLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if (a.CategoryID == nil) != (b.CategoryID == nil) {
			return b.CategoryID == nil
		}
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		if a.CategoryID != nil && b.CategoryID != nil {
			return *a.CategoryID < *b.CategoryID
		}
		return false
	})
}
