package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Ledger struct {
		BaseURL        string        `mapstructure:"BASE_URL"`
		APIKey         string        `mapstructure:"API_KEY"`
		AttemptTimeout time.Duration `mapstructure:"ATTEMPT_TIMEOUT"`
	} `mapstructure:"LEDGER"`
	Payout struct {
		FeeRateBps      int           `mapstructure:"FEE_RATE_BPS"`
		MaxAttempts     int           `mapstructure:"MAX_ATTEMPTS"`
		RetryBaseDelay  time.Duration `mapstructure:"RETRY_BASE_DELAY"`
		IdempotencyTTL  time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
		AdvanceCapCents int64         `mapstructure:"ADVANCE_CAP_CENTS"`
	} `mapstructure:"PAYOUT"`
	Webhook struct {
		EstimatedProcessing string `mapstructure:"ESTIMATED_PROCESSING"`
	} `mapstructure:"WEBHOOK"`
	Verification struct {
		ScorerURL     string        `mapstructure:"SCORER_URL"`
		ScorerTimeout time.Duration `mapstructure:"SCORER_TIMEOUT"`
	} `mapstructure:"VERIFICATION"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	if p.Vault != nil {
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("loading secrets from vault", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		if v := get("postgres_user"); v != "" {
			cfg.Database.User = v
		}
		if v := get("postgres_password"); v != "" {
			cfg.Database.Password = v
		}
		if v := get("redis_password"); v != "" {
			cfg.Redis.Password = v
		}
		if v := get("ledger_api_key"); v != "" {
			cfg.Ledger.APIKey = v
		}
	}

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Payout.FeeRateBps == 0 {
		cfg.Payout.FeeRateBps = 250
	}
	if cfg.Payout.MaxAttempts == 0 {
		cfg.Payout.MaxAttempts = 3
	}
	if cfg.Payout.RetryBaseDelay == 0 {
		cfg.Payout.RetryBaseDelay = time.Second
	}
	if cfg.Payout.IdempotencyTTL == 0 {
		cfg.Payout.IdempotencyTTL = time.Hour
	}
	if cfg.Payout.AdvanceCapCents == 0 {
		cfg.Payout.AdvanceCapCents = 50_000
	}
	if cfg.Ledger.AttemptTimeout == 0 {
		cfg.Ledger.AttemptTimeout = 10 * time.Second
	}
	if cfg.Webhook.EstimatedProcessing == "" {
		cfg.Webhook.EstimatedProcessing = "30s"
	}
	if cfg.Verification.ScorerTimeout == 0 {
		cfg.Verification.ScorerTimeout = 2 * time.Second
	}
}
