package domain

import (
	"time"

	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
)

// Rate prices every charge against one schedule snapshot. Charges whose price
// falls in no tier cost nothing.
func Rate(user string, charges []ChargeRecord, schedule pricetierdomain.Snapshot, now time.Time) *BillReport {
	if schedule == nil {
		schedule = pricetierdomain.Snapshot{}
	}
	report := &BillReport{
		User:        user,
		Lines:       make([]BillLine, 0, len(charges)),
		Schedule:    schedule,
		GeneratedAt: now,
	}

	for _, charge := range charges {
		line := BillLine{Charge: charge}
		if tier, ok := schedule.Lookup(charge.Price); ok {
			line.Tier = &tier
			line.FixedFee, line.VariableFee = tier.Fee(charge.Price)
			line.Fee = line.FixedFee + line.VariableFee
		}
		report.Lines = append(report.Lines, line)
		report.TotalPrice += charge.Price
		report.TotalFee += line.Fee
	}

	return report
}
