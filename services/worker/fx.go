package worker

import "go.uber.org/fx"

var Module = fx.Module("worker.service",
	fx.Provide(NewService),
)
