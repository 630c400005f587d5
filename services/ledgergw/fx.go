package ledgergw

import "go.uber.org/fx"

var Module = fx.Module("ledgergw",
	fx.Provide(NewHTTPGateway),
)
