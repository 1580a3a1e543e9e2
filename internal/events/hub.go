package events

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const (
	// TopicAll receives every event regardless of kind.
	TopicAll = "*"

	DefaultReplaySize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidTopic   = errors.New("invalid_topic")
)

// Hub is an in-process pub/sub for management clients. Each topic keeps a
// bounded replay buffer that new subscribers receive first. Slow subscribers
// miss events instead of blocking publishers.
type Hub struct {
	mu               sync.RWMutex
	topics           map[string]*topic
	replaySize       int
	subscriberBuffer int
}

type topic struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan Event
	once  sync.Once
}

func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = DefaultReplaySize
	}
	return &Hub{
		topics:           make(map[string]*topic),
		replaySize:       replaySize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Notify(_ context.Context, event Event) {
	h.Publish(event)
}

func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.publish(string(event.Kind), event)
	h.publish(TopicAll, event)
}

func (h *Hub) publish(name string, event Event) {
	t := h.ensureTopic(name)

	t.mu.Lock()
	t.buffer = append(t.buffer, event)
	if len(t.buffer) > h.replaySize {
		t.buffer = t.buffer[len(t.buffer)-h.replaySize:]
	}
	subs := make([]chan Event, 0, len(t.subs))
	for _, ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers for one kind, or TopicAll. An empty topic means
// TopicAll. The returned backlog is the topic's replay buffer.
func (h *Hub) Subscribe(name string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = TopicAll
	}
	if name != TopicAll {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, nil, ErrInvalidTopic
		}
		name = string(kind)
	}

	t := h.ensureTopic(name)
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	t.subs[id] = ch
	backlog := append([]Event(nil), t.buffer...)
	t.mu.Unlock()

	return &Subscription{hub: h, topic: name, id: id, ch: ch}, backlog, nil
}

// Subscribers reports the number of live subscriptions on a topic.
func (h *Hub) Subscribers(name string) int {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (h *Hub) ensureTopic(name string) *topic {
	h.mu.RLock()
	current := h.topics[name]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.topics[name]
	if current == nil {
		current = &topic{subs: make(map[uint64]chan Event)}
		h.topics[name] = current
	}
	return current
}

// Topics keep their replay buffer after the last subscriber leaves.
func (h *Hub) unsubscribe(name string, id uint64) {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.subs, id)
	t.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Topic() string {
	if s == nil {
		return ""
	}
	return s.topic
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}
