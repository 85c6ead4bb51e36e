package timer

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("timer",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(RunAuthority),
)

func RunAuthority(lc fx.Lifecycle, authority *Authority) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go authority.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
