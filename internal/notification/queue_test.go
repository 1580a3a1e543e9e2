package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	obsmetrics "github.com/smallbiznis/gavel/internal/observability/metrics"
	sessiondomain "github.com/smallbiznis/gavel/internal/session/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testConn string

func (c testConn) ID() string { return string(c) }

type collector struct {
	texts  []string
	failAt int
	calls  int
}

func (c *collector) deliver(_ context.Context, _ sessiondomain.Conn, text string) error {
	c.calls++
	if c.failAt > 0 && c.calls == c.failAt {
		return errors.New("write failed")
	}
	c.texts = append(c.texts, text)
	return nil
}

func offline() (sessiondomain.Conn, bool) { return nil, false }

func online() (sessiondomain.Conn, bool) { return testConn("c1"), true }

func TestPostQueuesWhileOffline(t *testing.T) {
	q := New(Params{Log: zap.NewNop()})
	c := &collector{}
	ctx := context.Background()

	delivered, err := q.Post(ctx, "alice", "a", offline, c.deliver)
	require.NoError(t, err)
	assert.False(t, delivered)
	delivered, err = q.Post(ctx, "alice", "b", offline, c.deliver)
	require.NoError(t, err)
	assert.False(t, delivered)

	assert.Equal(t, 2, q.Pending("alice"))
	assert.Empty(t, c.texts)
	assert.Equal(t, Stats{Identities: 1, Pending: 2}, q.Stats())
}

func TestPostOnlineDrainsPendingFirst(t *testing.T) {
	q := New(Params{Log: zap.NewNop()})
	c := &collector{}
	ctx := context.Background()

	_, err := q.Post(ctx, "alice", "a", offline, c.deliver)
	require.NoError(t, err)

	delivered, err := q.Post(ctx, "alice", "b", online, c.deliver)
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, []string{"a", "b"}, c.texts)
	assert.Zero(t, q.Pending("alice"))

	n, err := q.Flush(ctx, "alice", online, c.deliver)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostQueuesBehindStalledBacklog(t *testing.T) {
	q := New(Params{Log: zap.NewNop()})
	ctx := context.Background()
	_, err := q.Post(ctx, "alice", "a", offline, nil)
	require.NoError(t, err)

	c := &collector{failAt: 1}
	delivered, err := q.Post(ctx, "alice", "b", online, c.deliver)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, 2, q.Pending("alice"))

	c = &collector{}
	n, err := q.Flush(ctx, "alice", online, c.deliver)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, c.texts)
}

func TestFlushStopsAtFailure(t *testing.T) {
	q := New(Params{Log: zap.NewNop()})
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		_, err := q.Post(ctx, "alice", text, offline, nil)
		require.NoError(t, err)
	}

	c := &collector{failAt: 2}
	n, err := q.Flush(ctx, "alice", online, c.deliver)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, c.texts)
	assert.Equal(t, 2, q.Pending("alice"))

	c = &collector{}
	n, err = q.Flush(ctx, "alice", online, c.deliver)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b", "c"}, c.texts)
}

func TestFlushWithoutConnectionKeepsQueue(t *testing.T) {
	q := New(Params{Log: zap.NewNop()})
	ctx := context.Background()

	n, err := q.Flush(ctx, "nobody", online, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = q.Post(ctx, "alice", "a", offline, nil)
	require.NoError(t, err)
	n, err = q.Flush(ctx, "alice", offline, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, q.Pending("alice"))
}

func TestPendingGaugeTracksQueue(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauges, err := obsmetrics.NewSessionGauges(registry, obsmetrics.Config{ServiceName: "gavel"})
	require.NoError(t, err)

	q := New(Params{Log: zap.NewNop(), Gauges: gauges})
	ctx := context.Background()
	_, err = q.Post(ctx, "alice", "a", offline, nil)
	require.NoError(t, err)
	_, err = q.Post(ctx, "bob", "b", offline, nil)
	require.NoError(t, err)

	assert.Equal(t, 2.0, pendingGauge(t, registry))

	c := &collector{}
	_, err = q.Flush(ctx, "alice", online, c.deliver)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pendingGauge(t, registry))
}

func pendingGauge(t *testing.T, registry *prometheus.Registry) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "gavel_notifications_pending" {
			require.Len(t, family.GetMetric(), 1)
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("gavel_notifications_pending not registered")
	return 0
}
