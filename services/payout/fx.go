package payout

import "go.uber.org/fx"

var Module = fx.Module("payout.executor",
	fx.Provide(
		NewExecutor,
		NewDLQ,
	),
)
