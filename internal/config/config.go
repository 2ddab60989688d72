package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath    string     `env:"DB_PATH" envDefault:"data/tourcast.db"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	PublicURL string     `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	SPADir    string     `env:"SPA_DIR"`

	// RedisURL enables the viewer cache when set.
	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// AMQPURL enables publishing lifecycle events to RabbitMQ when set.
	AMQPURL string `env:"AMQP_URL"`

	AssetDriver       string        `env:"ASSET_DRIVER" envDefault:"local"`
	AssetDir          string        `env:"ASSET_DIR" envDefault:"data/assets"`
	S3                S3            `envPrefix:"S3_"`
	SignedURLTTL      time.Duration `env:"SIGNED_URL_TTL" envDefault:"15m"`
	StorageMaxRetries int           `env:"STORAGE_MAX_RETRIES" envDefault:"3"`

	PublishConcurrency int           `env:"PUBLISH_CONCURRENCY" envDefault:"4"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// BootstrapEmail and BootstrapPassword create a platform admin on
	// startup when no user exists yet.
	BootstrapEmail    string `env:"BOOTSTRAP_EMAIL"`
	BootstrapPassword string `env:"BOOTSTRAP_PASSWORD"`
}

type S3 struct {
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET" envDefault:"tourcast"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Region    string `env:"REGION"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch cfg.AssetDriver {
	case "local":
	case "s3":
		if cfg.S3.Endpoint == "" {
			return nil, errors.New("S3_ENDPOINT is required for the s3 asset driver")
		}
	default:
		return nil, fmt.Errorf("unknown ASSET_DRIVER %q", cfg.AssetDriver)
	}
	return &cfg, nil
}
