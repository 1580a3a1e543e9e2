package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// PriceTier charges FixedFee plus VariableFeePercent times the price for
// every auction whose final price falls in [StartPrice, EndPrice).
// VariableFeePercent is a rate, so 0.05 charges five percent. An EndPrice of
// zero leaves the tier unbounded above.
type PriceTier struct {
	StartPrice         float64 `json:"start_price"`
	EndPrice           float64 `json:"end_price"`
	FixedFee           float64 `json:"fixed_fee"`
	VariableFeePercent float64 `json:"variable_fee_percent"`
}

func (t PriceTier) Unbounded() bool {
	return t.EndPrice == 0
}

func (t PriceTier) upper() float64 {
	if t.Unbounded() {
		return math.Inf(1)
	}
	return t.EndPrice
}

func (t PriceTier) Contains(price float64) bool {
	return price >= t.StartPrice && price < t.upper()
}

func (t PriceTier) Overlaps(other PriceTier) bool {
	return t.StartPrice < other.upper() && other.StartPrice < t.upper()
}

// HasBounds compares with ==. Bounds produced by arithmetic rather than taken
// verbatim from the stored tier will not match.
func (t PriceTier) HasBounds(start, end float64) bool {
	return t.StartPrice == start && t.EndPrice == end
}

// Fee splits the charge for price into its fixed and variable parts.
func (t PriceTier) Fee(price float64) (fixed, variable float64) {
	return t.FixedFee, t.VariableFeePercent * price
}

func (t PriceTier) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"start_price", t.StartPrice},
		{"end_price", t.EndPrice},
		{"fixed_fee", t.FixedFee},
		{"variable_fee_percent", t.VariableFeePercent},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Field: f.name, Message: "must be a finite number"}
		}
		if f.value < 0 {
			return &ValidationError{Field: f.name, Message: "must not be negative"}
		}
	}
	if !t.Unbounded() && t.EndPrice <= t.StartPrice {
		return &ValidationError{Field: "end_price", Message: "must be greater than start_price, or 0 for unbounded"}
	}
	return nil
}

func (t PriceTier) String() string {
	end := "INFINITY"
	if !t.Unbounded() {
		end = strconv.FormatFloat(t.EndPrice, 'f', 2, 64)
	}
	return fmt.Sprintf("[%.2f, %s) fixed %.2f variable %.1f%%", t.StartPrice, end, t.FixedFee, t.VariableFeePercent*100)
}

// Snapshot is an immutable view of a schedule ordered by StartPrice.
type Snapshot []PriceTier

func (s Snapshot) Lookup(price float64) (PriceTier, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].StartPrice > price })
	if i == 0 {
		return PriceTier{}, false
	}
	if tier := s[i-1]; tier.Contains(price) {
		return tier, true
	}
	return PriceTier{}, false
}
