package events

import (
	"context"
	"fmt"

	"github.com/smallbiznis/gavel/internal/config"
	obsmetrics "github.com/smallbiznis/gavel/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultBufferSize = 1024

type DispatcherParams struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config       `optional:"true"`
	Sinks   Multi               `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher decouples producers from sinks. Notify enqueues onto a bounded
// buffer and returns immediately; a single worker fans events out in order.
type Dispatcher struct {
	log     *zap.Logger
	sinks   Multi
	metrics *obsmetrics.Metrics
	ch      chan Event
	done    chan struct{}
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	size := p.Config.EventBufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:     log.Named("events.dispatcher"),
		sinks:   p.Sinks,
		metrics: p.Metrics,
		ch:      make(chan Event, size),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	select {
	case d.ch <- event:
	default:
		d.metrics.RecordEventDropped(ctx, string(event.Kind))
		d.log.Warn("event dropped, buffer full",
			zap.String("event_kind", string(event.Kind)),
			zap.String("event_id", event.ID),
		)
	}
}

// RunForever delivers events until ctx is cancelled, then drains whatever is
// still buffered.
func (d *Dispatcher) RunForever(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case event := <-d.ch:
			d.dispatch(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-d.ch:
					d.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until RunForever has returned or ctx expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Pending() int {
	return len(d.ch)
}

func (d *Dispatcher) dispatch(event Event) {
	for _, sink := range d.sinks {
		if sink == nil {
			continue
		}
		d.deliver(sink, event)
	}
}

func (d *Dispatcher) deliver(sink Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event sink panicked",
				zap.String("event_kind", string(event.Kind)),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Any("panic", r),
			)
		}
	}()
	sink.Notify(context.Background(), event)
}
