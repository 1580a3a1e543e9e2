package schedule

import (
	"context"
	"slices"
	"sync"

	obsmetrics "github.com/smallbiznis/gavel/internal/observability/metrics"
	"github.com/smallbiznis/gavel/internal/pricetier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Schedule is the in-memory price tier table. Tiers are kept ordered by
// StartPrice and never overlap.
type Schedule struct {
	mu      sync.RWMutex
	tiers   []domain.PriceTier
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func New(p Params) *Schedule {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Schedule{
		log:     log.Named("pricetier.schedule"),
		metrics: p.Metrics,
	}
}

func (s *Schedule) Insert(ctx context.Context, tier domain.PriceTier) error {
	if err := tier.Validate(); err != nil {
		s.metrics.RecordPriceTierWrite(ctx, "insert", "invalid")
		return err
	}

	s.mu.Lock()
	for _, existing := range s.tiers {
		if existing.Overlaps(tier) {
			s.mu.Unlock()
			s.metrics.RecordPriceTierWrite(ctx, "insert", "overlap")
			s.log.Info("price tier rejected",
				zap.Stringer("candidate", tier),
				zap.Stringer("existing", existing),
			)
			return &domain.OverlapError{Existing: existing, Candidate: tier}
		}
	}
	idx, _ := slices.BinarySearchFunc(s.tiers, tier, compareStart)
	s.tiers = slices.Insert(s.tiers, idx, tier)
	s.mu.Unlock()

	s.metrics.RecordPriceTierWrite(ctx, "insert", "ok")
	s.log.Info("price tier created", zap.Stringer("tier", tier))
	return nil
}

func (s *Schedule) Remove(ctx context.Context, startPrice, endPrice float64) error {
	s.mu.Lock()
	idx := slices.IndexFunc(s.tiers, func(t domain.PriceTier) bool {
		return t.HasBounds(startPrice, endPrice)
	})
	if idx < 0 {
		s.mu.Unlock()
		s.metrics.RecordPriceTierWrite(ctx, "remove", "not_found")
		return domain.ErrNotFound
	}
	removed := s.tiers[idx]
	s.tiers = slices.Delete(s.tiers, idx, idx+1)
	s.mu.Unlock()

	s.metrics.RecordPriceTierWrite(ctx, "remove", "ok")
	s.log.Info("price tier deleted", zap.Stringer("tier", removed))
	return nil
}

func (s *Schedule) Lookup(price float64) (domain.PriceTier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Snapshot(s.tiers).Lookup(price)
}

func (s *Schedule) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(domain.Snapshot(s.tiers))
}

func (s *Schedule) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiers)
}

// Seed inserts tiers in order and stops at the first rejection.
func (s *Schedule) Seed(ctx context.Context, tiers []domain.PriceTier) error {
	for _, tier := range tiers {
		if err := s.Insert(ctx, tier); err != nil {
			return err
		}
	}
	return nil
}

func compareStart(a, b domain.PriceTier) int {
	switch {
	case a.StartPrice < b.StartPrice:
		return -1
	case a.StartPrice > b.StartPrice:
		return 1
	default:
		return 0
	}
}
