package pricetier

import (
	"context"
	"fmt"

	"github.com/smallbiznis/gavel/internal/config"
	"github.com/smallbiznis/gavel/internal/pricetier/domain"
	"github.com/smallbiznis/gavel/internal/pricetier/schedule"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pricetier.schedule",
	fx.Provide(schedule.New),
	fx.Provide(func(s *schedule.Schedule) domain.Schedule { return s }),
	fx.Invoke(seedFromConfig),
)

func seedFromConfig(cfg config.Config, s *schedule.Schedule, log *zap.Logger) error {
	pricing, err := config.LoadPricing(cfg.PricingConfigPath)
	if err != nil {
		return fmt.Errorf("load pricing config: %w", err)
	}
	if len(pricing.Tiers) == 0 {
		return nil
	}

	tiers := make([]domain.PriceTier, 0, len(pricing.Tiers))
	for _, t := range pricing.Tiers {
		tiers = append(tiers, domain.PriceTier{
			StartPrice:         t.StartPrice,
			EndPrice:           t.EndPrice,
			FixedFee:           t.FixedFee,
			VariableFeePercent: t.VariableFeePercent,
		})
	}
	if err := s.Seed(context.Background(), tiers); err != nil {
		return fmt.Errorf("seed price schedule: %w", err)
	}

	log.Info("price schedule seeded", zap.Int("tiers", s.Len()))
	return nil
}
