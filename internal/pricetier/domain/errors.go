package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTier = errors.New("invalid_price_tier")
	ErrOverlap     = errors.New("price_tier_overlap")
	ErrNotFound    = errors.New("price_tier_not_found")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid price tier: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidTier }

// OverlapError carries both tiers of a rejected insertion.
type OverlapError struct {
	Existing  PriceTier
	Candidate PriceTier
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("price tiers are overlapping: %s and %s", e.Existing, e.Candidate)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }
