// Command imgguardd serves image moderation over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ineyio/imgguard"
	"github.com/ineyio/imgguard/internal/server"
	"github.com/ineyio/imgguard/ledger"
	"github.com/ineyio/imgguard/ledger/mongo"
	"github.com/ineyio/imgguard/ledger/postgres"
	"github.com/ineyio/imgguard/ledger/redis"
	"github.com/ineyio/imgguard/ledger/sqlite"
	"github.com/ineyio/imgguard/meter"
	"github.com/ineyio/imgguard/provider/rekognition"
	"github.com/ineyio/imgguard/provider/sightengine"
)

func main() {
	configPath := flag.String("config", "imgguard.yaml", "path to the YAML config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		_ = godotenv.Load(*envFile)
	}

	cfg, err := loadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "imgguardd:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "imgguardd:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("imgguardd stopped", zap.Error(err))
	}
}

func newLogger(cfg logConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

func run(cfg daemonConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			logger.Warn("close ledger", zap.Error(err))
		}
	}()

	providers, err := buildProviders(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMeter, err := meter.NewPrometheusMeter("imgguard", reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	mod, err := imgguard.NewModerator(cfg.Config, providers, store,
		imgguard.WithMeter(meter.Multi{meter.NewLogMeter(logger), promMeter}),
	)
	if err != nil {
		return err
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: server.New(cfg.Server, mod,
			server.WithLogger(logger),
			server.WithGatherer(reg),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Strings("providers", mod.Providers()),
			zap.String("ledger", cfg.Ledger.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openLedger(ctx context.Context, cfg ledgerConfig) (imgguard.UsageLedger, io.Closer, error) {
	switch cfg.Backend {
	case "memory":
		return ledger.NewMemoryLedger(), closerFunc(func() error { return nil }), nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		var opts []redis.Option
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithKeyPrefix(cfg.Prefix))
		}
		return redis.New(client, opts...), client, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		var opts []postgres.Option
		if cfg.Prefix != "" {
			opts = append(opts, postgres.WithTablePrefix(cfg.Prefix))
		}
		store := postgres.New(pool, opts...)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, closerFunc(func() error { pool.Close(); return nil }), nil

	case "mongo":
		client, err := mongodrv.Connect(options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		database := cfg.Database
		if database == "" {
			database = "imgguard"
		}
		store := mongo.NewFromDatabase(client.Database(database))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, closerFunc(func() error { return client.Disconnect(context.Background()) }), nil

	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "imgguard.db"
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	return nil, nil, fmt.Errorf("config: unknown ledger backend %q", cfg.Backend)
}

func buildProviders(ctx context.Context, cfg imgguard.Config, logger *zap.Logger) ([]imgguard.Provider, error) {
	providers := make([]imgguard.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		switch pc.Name {
		case sightengine.Name:
			opts := []sightengine.Option{sightengine.WithCredentials(pc.Auth.APIKey, pc.Auth.APISecret)}
			if pc.BaseURL != "" {
				opts = append(opts, sightengine.WithBaseURL(pc.BaseURL))
			}
			providers = append(providers, sightengine.New(opts...))

		case rekognition.Name:
			p, err := rekognition.NewFromCredentials(ctx, rekognition.Credentials{
				AccessKeyID:     pc.Auth.APIKey,
				SecretAccessKey: pc.Auth.APISecret,
				Region:          pc.Region,
			},
				rekognition.WithDownloadTimeout(cfg.DownloadTimeout),
				rekognition.WithLogger(logger.Named("rekognition")),
			)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)

		default:
			return nil, fmt.Errorf("config: no adapter for provider %q", pc.Name)
		}
	}
	return providers, nil
}
