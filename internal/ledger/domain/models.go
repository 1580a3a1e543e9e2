package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
)

// ChargeRecord is one billed auction. The fee is not stored; it is derived
// from the price schedule when a bill is requested.
type ChargeRecord struct {
	ID        snowflake.ID `json:"id,string"`
	AuctionID int64        `json:"auction_id"`
	Price     float64      `json:"price"`
	CreatedAt time.Time    `json:"created_at"`
}

type ChargeRequest struct {
	User      string
	AuctionID int64
	Price     float64
}

type BillLine struct {
	Charge      ChargeRecord               `json:"charge"`
	Tier        *pricetierdomain.PriceTier `json:"tier,omitempty"`
	FixedFee    float64                    `json:"fixed_fee"`
	VariableFee float64                    `json:"variable_fee"`
	Fee         float64                    `json:"fee"`
}

type BillReport struct {
	User        string                   `json:"user"`
	Lines       []BillLine               `json:"lines"`
	Schedule    pricetierdomain.Snapshot `json:"price_schedule"`
	TotalPrice  float64                  `json:"total_price"`
	TotalFee    float64                  `json:"total_fee"`
	GeneratedAt time.Time                `json:"generated_at"`
}
