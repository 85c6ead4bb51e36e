package circle

import (
	"github.com/shellbound/focuscircle/internal/circle/repository"
	"github.com/shellbound/focuscircle/internal/circle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("circle.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
