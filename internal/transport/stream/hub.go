package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/gavel/internal/config"
	sessiondomain "github.com/smallbiznis/gavel/internal/session/domain"
	"go.uber.org/zap"
)

const DefaultBufferSize = 64

var (
	ErrBackpressure = errors.New("stream_backpressure")
	ErrClosed       = errors.New("stream_closed")
	ErrUnknownConn  = errors.New("unknown_connection")
)

// Conn is one live client stream. Messages are buffered in a bounded
// outbox that the HTTP handler drains; Done is closed when the connection
// is torn down.
type Conn struct {
	id       string
	identity string
	outbox   chan string
	done     chan struct{}
	once     sync.Once
}

func (c *Conn) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

func (c *Conn) Identity() string { return c.identity }

func (c *Conn) Messages() <-chan string { return c.outbox }

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Hub tracks open streams and implements the session transport.
type Hub struct {
	log        *zap.Logger
	bufferSize int

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewHub(cfg config.Config, log *zap.Logger) *Hub {
	size := cfg.StreamBufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:        log.Named("transport.stream"),
		bufferSize: size,
		conns:      make(map[string]*Conn),
	}
}

func (h *Hub) Open(identity string) *Conn {
	conn := &Conn{
		id:       ulid.Make().String(),
		identity: identity,
		outbox:   make(chan string, h.bufferSize),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
	return conn
}

// Forget closes conn and drops it from the hub.
func (h *Hub) Forget(conn *Conn) {
	if conn == nil {
		return
	}
	conn.Close()
	h.mu.Lock()
	if h.conns[conn.id] == conn {
		delete(h.conns, conn.id)
	}
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Deliver never blocks. A full outbox is reported as ErrBackpressure.
func (h *Hub) Deliver(_ context.Context, conn sessiondomain.Conn, text string) error {
	c, err := h.resolve(conn)
	if err != nil {
		return err
	}
	if c.closed() {
		return ErrClosed
	}
	select {
	case c.outbox <- text:
		return nil
	default:
		h.log.Warn("stream outbox full", zap.String("conn_id", c.id), zap.String("user", c.identity))
		return ErrBackpressure
	}
}

func (h *Hub) Teardown(_ context.Context, conn sessiondomain.Conn) error {
	c, err := h.resolve(conn)
	if err != nil {
		return err
	}
	h.Forget(c)
	return nil
}

// Shutdown closes every open stream.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) resolve(conn sessiondomain.Conn) (*Conn, error) {
	if conn == nil {
		return nil, ErrUnknownConn
	}
	h.mu.RLock()
	c := h.conns[conn.ID()]
	h.mu.RUnlock()
	if c == nil {
		return nil, ErrUnknownConn
	}
	return c, nil
}
