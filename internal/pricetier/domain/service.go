package domain

import "context"

type Schedule interface {
	Insert(ctx context.Context, tier PriceTier) error
	Remove(ctx context.Context, startPrice, endPrice float64) error
	Lookup(price float64) (PriceTier, bool)
	Snapshot() Snapshot
}
