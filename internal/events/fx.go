package events

import (
	"context"

	"github.com/smallbiznis/gavel/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(func(cfg config.Config) *Hub { return NewHub(cfg.EventReplaySize) }),
	fx.Provide(NewLogSink),
	fx.Provide(NewRedisSink),
	fx.Provide(provideSinks),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) Sink { return d }),
	fx.Invoke(runDispatcher),
)

type sinkParams struct {
	fx.In

	Log   *LogSink
	Hub   *Hub
	Redis *RedisSink `optional:"true"`
}

func provideSinks(p sinkParams) Multi {
	sinks := Multi{p.Log, p.Hub}
	if p.Redis != nil {
		sinks = append(sinks, p.Redis)
	}
	return sinks
}

func runDispatcher(lc fx.Lifecycle, d *Dispatcher, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go d.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(stopCtx context.Context) error {
					cancel()
					if err := d.Wait(stopCtx); err != nil {
						log.Warn("event dispatcher did not drain", zap.Int("pending", d.Pending()), zap.Error(err))
					}
					return nil
				},
			})

			return nil
		},
	})
}
