package circlelock

import (
	"github.com/shellbound/focuscircle/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("circlelock",
	fx.Provide(func(cfg config.Config) *Registry {
		return NewRegistry(cfg.LockWait)
	}),
)
