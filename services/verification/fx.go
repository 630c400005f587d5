package verification

import "go.uber.org/fx"

var Module = fx.Module("verification.engine",
	fx.Provide(NewEngine),
)
