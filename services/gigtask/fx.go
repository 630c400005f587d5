package gigtask

import "go.uber.org/fx"

var Module = fx.Module("gigtask.service",
	fx.Provide(NewService),
)
