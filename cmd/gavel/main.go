package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gavel/internal/clock"
	"github.com/smallbiznis/gavel/internal/config"
	"github.com/smallbiznis/gavel/internal/events"
	"github.com/smallbiznis/gavel/internal/ledger"
	"github.com/smallbiznis/gavel/internal/notification"
	"github.com/smallbiznis/gavel/internal/observability"
	"github.com/smallbiznis/gavel/internal/pricetier"
	"github.com/smallbiznis/gavel/internal/providers/pdf"
	"github.com/smallbiznis/gavel/internal/server"
	"github.com/smallbiznis/gavel/internal/session"
	"github.com/smallbiznis/gavel/internal/transport/stream"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Functional Domains
		pricetier.Module,
		ledger.Module,
		events.Module,
		notification.Module,
		stream.Module,
		session.Module,
		pdf.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
