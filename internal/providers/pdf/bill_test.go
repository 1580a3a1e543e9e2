package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	ledgerdomain "github.com/smallbiznis/gavel/internal/ledger/domain"
	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBillProducesPDF(t *testing.T) {
	schedule := pricetierdomain.Snapshot{
		{StartPrice: 0, EndPrice: 100, FixedFee: 1, VariableFeePercent: 0.05},
		{StartPrice: 100, FixedFee: 2, VariableFeePercent: 0.025},
	}
	report := ledgerdomain.Rate("alice", []ledgerdomain.ChargeRecord{
		{ID: 1, AuctionID: 42, Price: 80},
		{ID: 2, AuctionID: 43, Price: 400},
	}, schedule, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	r, err := New().GenerateBill(context.Background(), report)
	require.NoError(t, err)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestGenerateBillEmptyReport(t *testing.T) {
	report := ledgerdomain.Rate("bob", nil, nil, time.Now())

	r, err := New().GenerateBill(context.Background(), report)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGenerateBillNilReport(t *testing.T) {
	_, err := New().GenerateBill(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilReport)
}

func TestTierRange(t *testing.T) {
	assert.Equal(t, "10.00 - 20.00", tierRange(pricetierdomain.PriceTier{StartPrice: 10, EndPrice: 20}))
	assert.Equal(t, "10.00 and up", tierRange(pricetierdomain.PriceTier{StartPrice: 10}))
}
