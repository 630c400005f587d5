package risk

import "go.uber.org/fx"

var Module = fx.Module("risk.estimator",
	fx.Provide(
		NewForecaster,
		NewEstimator,
	),
)
