package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/gavel/internal/clock"
	"github.com/smallbiznis/gavel/internal/config"
	"github.com/smallbiznis/gavel/internal/events"
	"github.com/smallbiznis/gavel/internal/notification"
	"github.com/smallbiznis/gavel/internal/session/domain"
	"github.com/smallbiznis/gavel/internal/transport/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubConn string

func (c stubConn) ID() string { return string(c) }

type delivery struct {
	connID string
	text   string
}

type stubTransport struct {
	mu         sync.Mutex
	deliveries []delivery
	torndown   []string
	failConn   string
}

func (t *stubTransport) Deliver(_ context.Context, conn domain.Conn, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn.ID() == t.failConn {
		return errors.New("connection reset")
	}
	t.deliveries = append(t.deliveries, delivery{connID: conn.ID(), text: text})
	return nil
}

func (t *stubTransport) Teardown(_ context.Context, conn domain.Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.torndown = append(t.torndown, conn.ID())
	return nil
}

func (t *stubTransport) texts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.deliveries))
	for _, d := range t.deliveries {
		out = append(out, d.text)
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Notify(_ context.Context, event events.Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) kinds() []events.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Kind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	registry  *Registry
	transport *stubTransport
	sink      *recordingSink
	queue     *notification.Queue
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	transport := &stubTransport{}
	sink := &recordingSink{}
	queue := notification.New(notification.Params{Log: zap.NewNop()})
	registry := New(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
		Transport: transport,
		Queue:     queue,
		Sink:      sink,
	})
	return fixture{registry: registry, transport: transport, sink: sink, queue: queue}
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Login(ctx, "  ", stubConn("c1"))
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

	_, err = f.registry.Login(ctx, "alice", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConn)

	assert.Empty(t, f.registry.Users())
	assert.Empty(t, f.sink.kinds())
}

func TestSecondLoginIsRejectedAndFirstKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.registry.Login(ctx, "alice", stubConn("c1"))
	require.NoError(t, err)
	assert.True(t, session.Online())
	assert.Equal(t, "c1", session.ConnID)

	_, err = f.registry.Login(ctx, "alice", stubConn("c2"))
	assert.ErrorIs(t, err, domain.ErrSessionConflict)

	got, ok := f.registry.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ConnID)
	assert.Equal(t, []events.Kind{events.KindUserLogin}, f.sink.kinds())
}

func TestConcurrentLoginsExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 64
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.registry.Login(ctx, "alice", stubConn(fmt.Sprintf("c%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrSessionConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
	assert.True(t, f.registry.IsReachable("alice"))
}

func TestQueuedMessagesFlushInOrderOnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.registry.PostMessage(ctx, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeQueued, outcome)
	outcome, err = f.registry.PostMessage(ctx, "alice", "b")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeQueued, outcome)
	assert.Equal(t, 2, f.queue.Pending("alice"))

	_, err = f.registry.Login(ctx, "alice", stubConn("c1"))
	require.NoError(t, err)

	outcome, err = f.registry.PostMessage(ctx, "alice", "c")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDelivered, outcome)

	assert.Equal(t, []string{"a", "b", "c"}, f.transport.texts())
	assert.Zero(t, f.queue.Pending("alice"))
}

func TestLoginFlushesBeforeLoginEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, text := range []string{"a", "b"} {
		_, err := f.registry.PostMessage(ctx, "alice", text)
		require.NoError(t, err)
	}

	var deliveredAtLogin []string
	f.registry.sink = events.SinkFunc(func(_ context.Context, event events.Event) {
		if event.Kind == events.KindUserLogin {
			deliveredAtLogin = f.transport.texts()
		}
	})

	_, err := f.registry.Login(ctx, "alice", stubConn("c1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deliveredAtLogin)
}

func TestFailedFlushKeepsMessagesQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.failConn = "broken"

	_, err := f.registry.PostMessage(ctx, "alice", "a")
	require.NoError(t, err)

	_, err = f.registry.Login(ctx, "alice", stubConn("broken"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.queue.Pending("alice"))

	outcome, err := f.registry.PostMessage(ctx, "alice", "b")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeQueued, outcome)

	require.NoError(t, f.registry.Logout(ctx, "alice"))
	_, err = f.registry.Login(ctx, "alice", stubConn("c2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.transport.texts())
}

func newStreamFixture(bufferSize int) (*Registry, *stream.Hub, *notification.Queue) {
	hub := stream.NewHub(config.Config{StreamBufferSize: bufferSize}, zap.NewNop())
	queue := notification.New(notification.Params{Log: zap.NewNop()})
	registry := New(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
		Transport: hub,
		Queue:     queue,
	})
	return registry, hub, queue
}

func readOutbox(conn *stream.Conn) []string {
	var out []string
	for {
		select {
		case text := <-conn.Messages():
			out = append(out, text)
		default:
			return out
		}
	}
}

func TestOverflowingFlushDrainsBeforeNextPost(t *testing.T) {
	registry, hub, queue := newStreamFixture(4)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		_, err := registry.PostMessage(ctx, "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	conn := hub.Open("alice")
	_, err := registry.Login(ctx, "alice", conn)
	require.NoError(t, err)
	assert.Equal(t, 2, queue.Pending("alice"))

	got := readOutbox(conn)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, got)

	outcome, err := registry.PostMessage(ctx, "alice", "live")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDelivered, outcome)
	assert.Zero(t, queue.Pending("alice"))
	assert.Equal(t, []string{"m5", "m6", "live"}, readOutbox(conn))

	session, ok := registry.Get("alice")
	require.True(t, ok)
	assert.Equal(t, domain.StatusOnline, session.Status)
	assert.Zero(t, session.Pending)
}

func TestRedeliverResumesBacklogForBoundConnection(t *testing.T) {
	registry, hub, queue := newStreamFixture(2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := registry.PostMessage(ctx, "alice", text)
		require.NoError(t, err)
	}
	conn := hub.Open("alice")
	_, err := registry.Login(ctx, "alice", conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, readOutbox(conn))

	stale := hub.Open("alice")
	n, err := registry.Redeliver(ctx, "alice", stale)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, queue.Pending("alice"))

	n, err = registry.Redeliver(ctx, "alice", conn)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"c"}, readOutbox(conn))
	assert.Zero(t, queue.Pending("alice"))
}

func TestLoginRejectsNilStreamConn(t *testing.T) {
	registry, _, _ := newStreamFixture(4)

	var conn *stream.Conn
	_, err := registry.Login(context.Background(), "alice", conn)
	assert.ErrorIs(t, err, domain.ErrInvalidConn)
	assert.False(t, registry.IsReachable("alice"))
}

func TestDeliveryFailureOnLiveConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.failConn = "broken"

	_, err := f.registry.Login(ctx, "alice", stubConn("broken"))
	require.NoError(t, err)

	_, err = f.registry.PostMessage(ctx, "alice", "hello")
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	assert.Zero(t, f.queue.Pending("alice"))

	_, err = f.registry.SendMessage(ctx, "alice", "hello")
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
}

func TestSendMessageDropsWhenOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.registry.SendMessage(ctx, "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDropped, outcome)
	assert.Zero(t, f.queue.Pending("bob"))

	_, err = f.registry.Login(ctx, "bob", stubConn("c1"))
	require.NoError(t, err)
	outcome, err = f.registry.SendMessage(ctx, "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDelivered, outcome)
	assert.Equal(t, []string{"hi"}, f.transport.texts())

	_, err = f.registry.SendMessage(ctx, "bob", "")
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestLogoutAndDisconnectOfUnknownAreNoops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.registry.Logout(ctx, "ghost"))
	require.NoError(t, f.registry.Disconnect(ctx, "ghost"))
	assert.Empty(t, f.sink.kinds())
	assert.Empty(t, f.transport.torndown)

	_, err := f.registry.Login(ctx, "alice", stubConn("c1"))
	require.NoError(t, err)
	require.NoError(t, f.registry.Logout(ctx, "alice"))
	require.NoError(t, f.registry.Logout(ctx, "alice"))
	require.NoError(t, f.registry.Disconnect(ctx, "alice"))

	assert.Equal(t, []events.Kind{events.KindUserLogin, events.KindUserLogout}, f.sink.kinds())
	assert.Empty(t, f.transport.torndown)
}

func TestDisconnectTearsDownAndAllowsRelogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Login(ctx, "alice", stubConn("c1"))
	require.NoError(t, err)
	require.NoError(t, f.registry.Disconnect(ctx, "alice"))

	assert.Equal(t, []string{"c1"}, f.transport.torndown)
	assert.False(t, f.registry.IsReachable("alice"))

	session, ok := f.registry.Get("alice")
	require.True(t, ok)
	assert.Equal(t, domain.StatusOffline, session.Status)

	_, err = f.registry.Login(ctx, "alice", stubConn("c2"))
	require.NoError(t, err)
	assert.Equal(t, []events.Kind{
		events.KindUserLogin,
		events.KindUserDisconnected,
		events.KindUserLogin,
	}, f.sink.kinds())
}

func TestReleaseIgnoresStaleConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Login(ctx, "alice", stubConn("c1"))
	require.NoError(t, err)
	require.NoError(t, f.registry.Logout(ctx, "alice"))
	_, err = f.registry.Login(ctx, "alice", stubConn("c2"))
	require.NoError(t, err)

	assert.False(t, f.registry.Release(ctx, "alice", stubConn("c1")))
	assert.True(t, f.registry.IsReachable("alice"))

	assert.True(t, f.registry.Release(ctx, "alice", stubConn("c2")))
	assert.False(t, f.registry.IsReachable("alice"))
	assert.False(t, f.registry.Release(ctx, "alice", stubConn("c2")))
}

func TestUsersSnapshotIsSorted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := f.registry.Login(ctx, name, stubConn(name+"-conn"))
		require.NoError(t, err)
	}
	require.NoError(t, f.registry.Logout(ctx, "bob"))

	users := f.registry.Users()
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Identity)
	assert.Equal(t, "bob", users[1].Identity)
	assert.False(t, users[1].Online())
	assert.Equal(t, "carol", users[2].Identity)
}

func TestConcurrentPostsDuringLoginAreNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const posts = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < posts; i++ {
			_, err := f.registry.PostMessage(ctx, "alice", fmt.Sprintf("m%03d", i))
			assert.NoError(t, err)
		}
	}()

	_, err := f.registry.Login(ctx, "alice", stubConn("c1"))
	require.NoError(t, err)
	wg.Wait()

	texts := f.transport.texts()
	require.Len(t, texts, posts)
	for i, text := range texts {
		assert.Equal(t, fmt.Sprintf("m%03d", i), text)
	}
	assert.Zero(t, f.queue.Pending("alice"))
}
