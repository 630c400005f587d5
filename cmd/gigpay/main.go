package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/db"
	"gigpay-backend/pkg/health"
	"gigpay-backend/pkg/httpapi"
	"gigpay-backend/pkg/idempotency"
	"gigpay-backend/pkg/logger"
	"gigpay-backend/pkg/profiling"
	"gigpay-backend/pkg/redis"
	"gigpay-backend/pkg/server"
	"gigpay-backend/pkg/task"
	"gigpay-backend/services/audit"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/history"
	"gigpay-backend/services/ledgergw"
	"gigpay-backend/services/payout"
	"gigpay-backend/services/pipeline"
	"gigpay-backend/services/platform"
	"gigpay-backend/services/risk"
	"gigpay-backend/services/verification"
	"gigpay-backend/services/webhook"
	"gigpay-backend/services/worker"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		idempotency.Module,
		fx.Provide(provideSnowflakeNode),
		httpapi.Module,

		audit.Module,
		platform.Module,
		worker.Module,
		gigtask.Module,
		history.Module,
		ledgergw.Module,
		verification.Module,
		risk.Module,
		payout.Module,
		pipeline.Module,
		webhook.Module,

		health.Module,
		profiling.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
