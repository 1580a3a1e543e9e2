package notification

import (
	"context"
	"strings"
	"sync"

	"github.com/eapache/queue"
	obsmetrics "github.com/smallbiznis/gavel/internal/observability/metrics"
	sessiondomain "github.com/smallbiznis/gavel/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ResolveFunc returns the connection currently bound to an identity. It is
// called under the identity's queue lock and must not block.
type ResolveFunc func() (sessiondomain.Conn, bool)

type DeliverFunc func(ctx context.Context, conn sessiondomain.Conn, text string) error

type Params struct {
	fx.In

	Log    *zap.Logger
	Gauges *obsmetrics.SessionGauges `optional:"true"`
}

type Stats struct {
	Identities int `json:"identities"`
	Pending    int `json:"pending"`
}

// Queue holds undelivered notifications per identity. All work for one
// identity is serialized by that identity's lock, which is what keeps a
// login flush and concurrent posts in arrival order.
type Queue struct {
	log    *zap.Logger
	gauges *obsmetrics.SessionGauges

	mu    sync.RWMutex
	boxes map[string]*mailbox
}

type mailbox struct {
	mu      sync.Mutex
	pending *queue.Queue
}

func New(p Params) *Queue {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		log:    log.Named("notification.queue"),
		gauges: p.Gauges,
		boxes:  make(map[string]*mailbox),
	}
}

// Post delivers text to a reachable identity, draining anything still
// pending ahead of it first so arrival order holds. If that drain stops
// short, text joins the back of the queue. Unreachable identities get text
// appended. A delivery error on text itself is returned and text is not
// queued.
func (q *Queue) Post(ctx context.Context, identity, text string, resolve ResolveFunc, deliver DeliverFunc) (bool, error) {
	identity = strings.TrimSpace(identity)
	box := q.mailboxFor(identity)

	box.mu.Lock()
	defer box.mu.Unlock()

	if resolve != nil {
		if conn, ok := resolve(); ok {
			if _, err := q.drain(ctx, identity, box, conn, deliver); err == nil {
				if err := deliver(ctx, conn, text); err != nil {
					return false, err
				}
				return true, nil
			}
		}
	}

	box.pending.Add(text)
	q.gauges.AddPending(1)
	q.log.Debug("notification queued",
		zap.String("user", identity),
		zap.Int("pending", box.pending.Length()),
	)
	return false, nil
}

// Flush drains the identity's pending messages to its current connection in
// arrival order. On a delivery failure it stops; the failed message and
// everything after it stay queued, and a later Post or Flush resumes there.
func (q *Queue) Flush(ctx context.Context, identity string, resolve ResolveFunc, deliver DeliverFunc) (int, error) {
	identity = strings.TrimSpace(identity)
	box := q.lookup(identity)
	if box == nil {
		return 0, nil
	}

	box.mu.Lock()
	defer box.mu.Unlock()

	if box.pending.Length() == 0 {
		return 0, nil
	}
	conn, ok := resolve()
	if !ok {
		return 0, nil
	}
	return q.drain(ctx, identity, box, conn, deliver)
}

// drain must be called with box.mu held.
func (q *Queue) drain(ctx context.Context, identity string, box *mailbox, conn sessiondomain.Conn, deliver DeliverFunc) (int, error) {
	delivered := 0
	for box.pending.Length() > 0 {
		text := box.pending.Peek().(string)
		if err := deliver(ctx, conn, text); err != nil {
			q.gauges.AddPending(-delivered)
			q.log.Warn("notification flush interrupted",
				zap.String("user", identity),
				zap.Int("delivered", delivered),
				zap.Int("remaining", box.pending.Length()),
				zap.Error(err),
			)
			return delivered, err
		}
		box.pending.Remove()
		delivered++
	}

	if delivered > 0 {
		q.gauges.AddPending(-delivered)
		q.log.Debug("notifications flushed", zap.String("user", identity), zap.Int("delivered", delivered))
	}
	return delivered, nil
}

func (q *Queue) Pending(identity string) int {
	box := q.lookup(strings.TrimSpace(identity))
	if box == nil {
		return 0
	}
	box.mu.Lock()
	defer box.mu.Unlock()
	return box.pending.Length()
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	boxes := make([]*mailbox, 0, len(q.boxes))
	for _, box := range q.boxes {
		boxes = append(boxes, box)
	}
	q.mu.RUnlock()

	stats := Stats{Identities: len(boxes)}
	for _, box := range boxes {
		box.mu.Lock()
		stats.Pending += box.pending.Length()
		box.mu.Unlock()
	}
	return stats
}

func (q *Queue) lookup(identity string) *mailbox {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.boxes[identity]
}

func (q *Queue) mailboxFor(identity string) *mailbox {
	if box := q.lookup(identity); box != nil {
		return box
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	box, ok := q.boxes[identity]
	if !ok {
		box = &mailbox{pending: queue.New()}
		q.boxes[identity] = box
	}
	return box
}
