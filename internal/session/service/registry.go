package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/gavel/internal/clock"
	"github.com/smallbiznis/gavel/internal/events"
	"github.com/smallbiznis/gavel/internal/notification"
	obsmetrics "github.com/smallbiznis/gavel/internal/observability/metrics"
	"github.com/smallbiznis/gavel/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Transport domain.Transport
	Queue     *notification.Queue
	Sink      events.Sink               `optional:"true"`
	Metrics   *obsmetrics.Metrics       `optional:"true"`
	Gauges    *obsmetrics.SessionGauges `optional:"true"`
}

var errNoTransport = errors.New("transport_unavailable")

type binding struct {
	conn       domain.Conn
	loggedInAt time.Time
}

// entry is created on first login and never removed. mu serializes
// check-and-bind; bound is read without it.
type entry struct {
	mu    sync.Mutex
	bound atomic.Pointer[binding]
}

type Registry struct {
	log       *zap.Logger
	clock     clock.Clock
	transport domain.Transport
	queue     *notification.Queue
	sink      events.Sink
	metrics   *obsmetrics.Metrics
	gauges    *obsmetrics.SessionGauges

	mu      sync.RWMutex
	entries map[string]*entry
}

func New(p Params) *Registry {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	sink := p.Sink
	if sink == nil {
		sink = events.Nop{}
	}
	queue := p.Queue
	if queue == nil {
		queue = notification.New(notification.Params{Log: log, Gauges: p.Gauges})
	}
	return &Registry{
		log:       log.Named("session.registry"),
		clock:     clk,
		transport: p.Transport,
		queue:     queue,
		sink:      sink,
		metrics:   p.Metrics,
		gauges:    p.Gauges,
		entries:   make(map[string]*entry),
	}
}

// Login binds conn to identity unless the identity already holds a live
// connection, in which case ErrSessionConflict is returned and the existing
// binding is left alone. A successful login drains queued notifications to
// the new connection before the login event fires.
func (r *Registry) Login(ctx context.Context, identity string, conn domain.Conn) (*domain.Session, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		r.metrics.RecordLogin(ctx, obsmetrics.LoginInvalid)
		return nil, domain.ErrInvalidIdentity
	}
	if conn == nil || strings.TrimSpace(conn.ID()) == "" {
		r.metrics.RecordLogin(ctx, obsmetrics.LoginInvalid)
		return nil, domain.ErrInvalidConn
	}

	e := r.entryFor(identity)
	e.mu.Lock()
	if current := e.bound.Load(); current != nil {
		e.mu.Unlock()
		r.metrics.RecordLogin(ctx, obsmetrics.LoginConflict)
		r.log.Info("login rejected, already connected",
			zap.String("user", identity),
			zap.String("conn_id", conn.ID()),
			zap.String("active_conn_id", current.conn.ID()),
		)
		return nil, domain.ErrSessionConflict
	}
	b := &binding{conn: conn, loggedInAt: r.clock.Now()}
	e.bound.Store(b)
	e.mu.Unlock()

	r.gauges.SessionOpened()
	r.metrics.RecordLogin(ctx, obsmetrics.LoginOK)

	flushed, err := r.queue.Flush(ctx, identity, r.resolver(identity), r.deliver)
	if err != nil {
		r.log.Warn("pending notifications not fully delivered",
			zap.String("user", identity),
			zap.Int("delivered", flushed),
			zap.Error(err),
		)
	}

	r.log.Info("user logged in",
		zap.String("user", identity),
		zap.String("conn_id", conn.ID()),
		zap.Int("flushed", flushed),
	)
	r.emit(ctx, events.KindUserLogin, identity)

	return r.snapshot(identity, b), nil
}

// Logout clears the binding. It is a no-op when the identity is not online.
func (r *Registry) Logout(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.ErrInvalidIdentity
	}
	b := r.unbind(identity)
	if b == nil {
		return nil
	}

	r.log.Info("user logged out", zap.String("user", identity), zap.String("conn_id", b.conn.ID()))
	r.emit(ctx, events.KindUserLogout, identity)
	return nil
}

// Disconnect clears the binding and tears the connection down. It is a no-op
// when the identity is not online.
func (r *Registry) Disconnect(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.ErrInvalidIdentity
	}
	b := r.unbind(identity)
	if b == nil {
		return nil
	}

	r.teardown(ctx, identity, b.conn)
	r.log.Info("user disconnected", zap.String("user", identity), zap.String("conn_id", b.conn.ID()))
	r.emit(ctx, events.KindUserDisconnected, identity)
	return nil
}

// Release disconnects identity only if conn is still its bound connection.
// Transports call it when a connection goes away on its own.
func (r *Registry) Release(ctx context.Context, identity string, conn domain.Conn) bool {
	identity = strings.TrimSpace(identity)
	if identity == "" || conn == nil {
		return false
	}
	e := r.lookup(identity)
	if e == nil {
		return false
	}

	e.mu.Lock()
	current := e.bound.Load()
	if current == nil || current.conn.ID() != conn.ID() {
		e.mu.Unlock()
		return false
	}
	e.bound.Store(nil)
	e.mu.Unlock()

	r.gauges.SessionClosed()
	r.log.Info("connection released", zap.String("user", identity), zap.String("conn_id", conn.ID()))
	r.emit(ctx, events.KindUserDisconnected, identity)
	return true
}

// Redeliver resumes a backlog left behind by an interrupted flush. It only
// acts while conn is still the identity's bound connection. Transports call
// it once they can accept more messages.
func (r *Registry) Redeliver(ctx context.Context, identity string, conn domain.Conn) (int, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || conn == nil {
		return 0, nil
	}
	resolve := r.resolver(identity)
	bound := func() (domain.Conn, bool) {
		current, ok := resolve()
		if !ok || current.ID() != conn.ID() {
			return nil, false
		}
		return current, true
	}

	delivered, err := r.queue.Flush(ctx, identity, bound, r.deliver)
	if delivered > 0 {
		r.log.Debug("pending notifications redelivered",
			zap.String("user", identity),
			zap.String("conn_id", conn.ID()),
			zap.Int("delivered", delivered),
		)
	}
	return delivered, err
}

func (r *Registry) IsReachable(identity string) bool {
	_, ok := r.connFor(strings.TrimSpace(identity))
	return ok
}

func (r *Registry) Get(identity string) (domain.Session, bool) {
	identity = strings.TrimSpace(identity)
	e := r.lookup(identity)
	if e == nil {
		return domain.Session{}, false
	}
	return *r.snapshot(identity, e.bound.Load()), true
}

// Users returns a point-in-time view of every known identity, sorted.
func (r *Registry) Users() []domain.Session {
	r.mu.RLock()
	identities := make([]string, 0, len(r.entries))
	bindings := make(map[string]*binding, len(r.entries))
	for identity, e := range r.entries {
		identities = append(identities, identity)
		bindings[identity] = e.bound.Load()
	}
	r.mu.RUnlock()

	slices.Sort(identities)
	sessions := make([]domain.Session, 0, len(identities))
	for _, identity := range identities {
		sessions = append(sessions, *r.snapshot(identity, bindings[identity]))
	}
	return sessions
}

// PostMessage delivers text now if the identity is online with nothing
// queued, otherwise queues it for the next login. Unknown identities get a
// queue lazily.
func (r *Registry) PostMessage(ctx context.Context, identity, text string) (domain.Outcome, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", domain.ErrInvalidIdentity
	}
	if text == "" {
		return "", domain.ErrInvalidMessage
	}

	delivered, err := r.queue.Post(ctx, identity, text, r.resolver(identity), r.deliver)
	if err != nil {
		r.metrics.RecordMessage(ctx, "post", "failed")
		r.log.Warn("post delivery failed", zap.String("user", identity), zap.Error(err))
		return "", fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	if delivered {
		r.metrics.RecordMessage(ctx, "post", string(domain.OutcomeDelivered))
		return domain.OutcomeDelivered, nil
	}
	r.metrics.RecordMessage(ctx, "post", string(domain.OutcomeQueued))
	return domain.OutcomeQueued, nil
}

// SendMessage is best effort: delivered when online, dropped otherwise.
func (r *Registry) SendMessage(ctx context.Context, identity, text string) (domain.Outcome, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", domain.ErrInvalidIdentity
	}
	if text == "" {
		return "", domain.ErrInvalidMessage
	}

	conn, ok := r.connFor(identity)
	if !ok {
		r.metrics.RecordMessage(ctx, "send", string(domain.OutcomeDropped))
		return domain.OutcomeDropped, nil
	}
	if err := r.deliver(ctx, conn, text); err != nil {
		r.metrics.RecordMessage(ctx, "send", "failed")
		r.log.Warn("send delivery failed", zap.String("user", identity), zap.String("conn_id", conn.ID()), zap.Error(err))
		return "", fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	r.metrics.RecordMessage(ctx, "send", string(domain.OutcomeDelivered))
	return domain.OutcomeDelivered, nil
}

func (r *Registry) unbind(identity string) *binding {
	e := r.lookup(identity)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	b := e.bound.Swap(nil)
	e.mu.Unlock()
	if b != nil {
		r.gauges.SessionClosed()
	}
	return b
}

func (r *Registry) teardown(ctx context.Context, identity string, conn domain.Conn) {
	if r.transport == nil {
		return
	}
	if err := r.transport.Teardown(ctx, conn); err != nil {
		r.log.Warn("connection teardown failed",
			zap.String("user", identity),
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
	}
}

func (r *Registry) deliver(ctx context.Context, conn domain.Conn, text string) error {
	if r.transport == nil {
		return errNoTransport
	}
	return r.transport.Deliver(ctx, conn, text)
}

// resolver looks the entry up on every call so a post racing the identity's
// first login sees the new binding.
func (r *Registry) resolver(identity string) notification.ResolveFunc {
	return func() (domain.Conn, bool) {
		e := r.lookup(identity)
		if e == nil {
			return nil, false
		}
		b := e.bound.Load()
		if b == nil {
			return nil, false
		}
		return b.conn, true
	}
}

func (r *Registry) connFor(identity string) (domain.Conn, bool) {
	return r.resolver(identity)()
}

func (r *Registry) emit(ctx context.Context, kind events.Kind, identity string) {
	r.sink.Notify(ctx, events.UserEvent(kind, r.clock.Now(), identity))
}

func (r *Registry) snapshot(identity string, b *binding) *domain.Session {
	session := &domain.Session{
		Identity: identity,
		Status:   domain.StatusOffline,
		Pending:  r.queue.Pending(identity),
	}
	if b != nil {
		loggedInAt := b.loggedInAt
		session.Status = domain.StatusOnline
		session.ConnID = b.conn.ID()
		session.LoggedInAt = &loggedInAt
	}
	return session
}

func (r *Registry) lookup(identity string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[identity]
}

func (r *Registry) entryFor(identity string) *entry {
	if e := r.lookup(identity); e != nil {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[identity]
	if !ok {
		e = &entry{}
		r.entries[identity] = e
	}
	return e
}
