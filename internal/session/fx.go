package session

import (
	"github.com/smallbiznis/gavel/internal/session/domain"
	"github.com/smallbiznis/gavel/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session.registry",
	fx.Provide(service.New),
	fx.Provide(func(r *service.Registry) domain.Registry { return r }),
)
