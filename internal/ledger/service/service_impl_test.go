package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gavel/internal/clock"
	"github.com/smallbiznis/gavel/internal/ledger/domain"
	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
	"github.com/smallbiznis/gavel/internal/pricetier/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *schedule.Schedule, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	sched := schedule.New(schedule.Params{Log: zap.NewNop()})
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Schedule: sched,
	})
	return svc, sched, clk
}

func TestRecordChargeRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordCharge(ctx, domain.ChargeRequest{User: " ", Price: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = svc.RecordCharge(ctx, domain.ChargeRequest{User: "alice", Price: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	assert.Empty(t, svc.Users(ctx))
}

func TestRateUsesScheduleAtBillTime(t *testing.T) {
	svc, sched, clk := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordCharge(ctx, domain.ChargeRequest{User: "alice", AuctionID: 1, Price: 100})
	require.NoError(t, err)

	report, err := svc.Rate(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Zero(t, report.TotalFee)

	require.NoError(t, sched.Insert(ctx, pricetierdomain.PriceTier{StartPrice: 0, EndPrice: 200, FixedFee: 5, VariableFeePercent: 0.1}))
	clk.Advance(time.Minute)

	report, err = svc.Rate(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, report.TotalFee, 1e-9)
	assert.Equal(t, clk.Now(), report.GeneratedAt)
	assert.Len(t, report.Schedule, 1)
}

func TestSameAuctionChargedTwiceIsBilledTwice(t *testing.T) {
	svc, sched, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, sched.Insert(ctx, pricetierdomain.PriceTier{StartPrice: 0, FixedFee: 1}))

	first, err := svc.RecordCharge(ctx, domain.ChargeRequest{User: "alice", AuctionID: 7, Price: 50})
	require.NoError(t, err)
	second, err := svc.RecordCharge(ctx, domain.ChargeRequest{User: "alice", AuctionID: 7, Price: 50})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	report, err := svc.Rate(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, report.Lines, 2)
	assert.InDelta(t, 2.0, report.TotalFee, 1e-9)
}

func TestRateUnknownUserIsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)

	report, err := svc.Rate(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", report.User)
	assert.Empty(t, report.Lines)
	assert.Zero(t, report.TotalFee)
	assert.Empty(t, svc.Users(context.Background()))
}

func TestConcurrentChargesAreAllRecorded(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := svc.RecordCharge(ctx, domain.ChargeRequest{User: "alice", AuctionID: int64(i*perWorker + j), Price: 1})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	report, err := svc.Rate(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, report.Lines, workers*perWorker)
	assert.Equal(t, []string{"alice"}, svc.Users(ctx))
}
