// Package app wires the process-wide dependencies shared by the server and
// the tourctl command from a Config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"github.com/playperu/tourcast/internal/assets"
	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/cache"
	"github.com/playperu/tourcast/internal/config"
	"github.com/playperu/tourcast/internal/database"
	"github.com/playperu/tourcast/internal/handler/health"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/migrations"
	"github.com/playperu/tourcast/internal/notify"
	"github.com/playperu/tourcast/internal/store"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Store   *store.Store
	Assets  assets.Store
	Broker  *notify.Broker
	Service *lifecycle.Service

	// Local is set when assets are kept on disk and served by the API.
	Local *assets.LocalStore
	// Checks are the dependencies probed by /healthz.
	Checks map[string]health.Checker

	closers []func() error
}

// New opens the database, applies migrations and connects the optional
// Redis and RabbitMQ backends. Call Close to release everything.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Broker: notify.NewBroker(),
		Checks: map[string]health.Checker{},
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// --- SQLite ---
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}
	a.DB, err = database.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	a.closers = append(a.closers, a.DB.Close)
	if err := migrations.Run(ctx, a.DB); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	a.Store = store.New(a.DB, logger)
	a.Checks["sqlite"] = dbChecker{a.DB}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Assets ---
	if err := a.openAssets(ctx); err != nil {
		return nil, err
	}

	// --- Redis ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = openRedis(ctx, cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.Checks["redis"] = redisChecker{rdb}
		logger.Info("connected to redis")
	}

	// --- Events ---
	publishers := []notify.Publisher{a.Broker}
	if cfg.AMQPURL != "" {
		amqpPub := notify.NewAMQPPublisher(cfg.AMQPURL)
		a.closers = append(a.closers, amqpPub.Close)
		publishers = append(publishers, amqpPub)
		logger.Info("publishing events to rabbitmq", "queue", notify.QueueName)
	}

	a.Service = lifecycle.New(a.Store, a.Assets, lifecycle.Options{
		URLs:               audiotour.AssetURLs{BaseURL: cfg.PublicURL},
		Events:             notify.NewMulti(logger, publishers...),
		Cache:              cache.New(rdb, cfg.CacheTTL, logger),
		Logger:             logger,
		PublishConcurrency: cfg.PublishConcurrency,
		SessionTTL:         cfg.SessionTTL,
	})
	return a, nil
}

func (a *App) openAssets(ctx context.Context) error {
	cfg := a.Config
	var next assets.Store
	switch cfg.AssetDriver {
	case "s3":
		s3, err := assets.NewS3Store(assets.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return err
		}
		a.Checks["assets"] = s3
		next = s3
		a.Logger.Info("using s3 asset store", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	default:
		local, err := assets.NewLocalStore(cfg.AssetDir, cfg.PublicURL+"/static")
		if err != nil {
			return err
		}
		a.Local = local
		next = local
		a.Logger.Info("using local asset store", "dir", cfg.AssetDir)
	}
	a.Assets = assets.NewRetrying(next, cfg.StorageMaxRetries, a.Logger)
	return nil
}

// Close releases every opened backend in reverse order.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
