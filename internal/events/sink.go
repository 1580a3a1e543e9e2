package events

import "context"

// Sink receives events. Notify must not block the caller for long and never
// reports failure; sinks log their own errors.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

type Multi []Sink

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, event)
		}
	}
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
