package httpapi

import (
	"net/http"

	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(ProvideRouter),
)

// ProvideRouter builds the shared gin engine. Services register their own
// route groups via fx.Invoke.
func ProvideRouter(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Error())

	return r
}

// Handler adapts the engine to the plain http.Handler the server expects.
func Handler(r *gin.Engine) http.Handler {
	return r
}
