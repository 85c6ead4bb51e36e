package member

import (
	"github.com/shellbound/focuscircle/internal/member/repository"
	"github.com/shellbound/focuscircle/internal/member/service"
	"go.uber.org/fx"
)

var Module = fx.Module("member.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
