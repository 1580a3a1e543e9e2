package notification

import "go.uber.org/fx"

var Module = fx.Module("notification.queue",
	fx.Provide(New),
)
