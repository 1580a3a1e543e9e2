package stream

import (
	"context"

	sessiondomain "github.com/smallbiznis/gavel/internal/session/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("transport.stream",
	fx.Provide(NewHub),
	fx.Provide(func(h *Hub) sessiondomain.Transport { return h }),
	fx.Invoke(registerShutdown),
)

func registerShutdown(lc fx.Lifecycle, h *Hub) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			h.Shutdown()
			return nil
		},
	})
}
