package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	"github.com/fleetdesk/console/internal/apiclient"
	"github.com/fleetdesk/console/internal/config"
	"github.com/fleetdesk/console/internal/navigation"
	"github.com/fleetdesk/console/internal/session"
	"github.com/fleetdesk/console/internal/storage"
	"github.com/fleetdesk/console/internal/telemetry"
	"github.com/fleetdesk/console/internal/webserver"
)

func newLogger(conf *config.Config) (*zap.Logger, error) {
	zapConf := zap.NewProductionConfig()
	if conf.Log.Development {
		zapConf = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(conf.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", conf.Log.Level, err)
	}
	zapConf.Level = level

	return zapConf.Build()
}

func main() {
	confPath := flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	conf, err := config.LoadFromTomlFileAndValidate(*confPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(conf)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Error("console stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, conf *config.Config, logger *zap.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:       conf.Telemetry.Enabled,
		ServiceName:   conf.Telemetry.ServiceName,
		Environment:   conf.Telemetry.Environment,
		CollectorAddr: conf.Telemetry.CollectorAddr,
	})
	if err != nil {
		return fmt.Errorf("couldn't set up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("couldn't flush traces", zap.Error(err))
		}
	}()

	store, closeStore, err := storage.Open(ctx, storage.Options{
		Type:          conf.Storage.Type,
		Path:          conf.Storage.Path,
		RedisAddr:     conf.Storage.Redis.Addr,
		RedisPassword: conf.Storage.Redis.Password,
		RedisDB:       conf.Storage.Redis.DB,
		RedisPrefix:   conf.Storage.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("couldn't open %s storage: %w", conf.Storage.Type, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("couldn't close storage", zap.Error(err))
		}
	}()

	router := navigation.NewRouter()

	client := apiclient.New(apiclient.Options{
		BaseURL: conf.API.BaseURL,
		Timeout: conf.RequestTimeout(),
		Logger:  logger,
	}, store, router)

	opts := []session.Option{session.WithLogger(logger)}
	if conf.Session.JWKSURL != "" {
		opts = append(opts, session.WithKeySet(oidc.NewRemoteKeySet(ctx, conf.Session.JWKSURL)))
	}

	sess := session.NewStore(client, store, router, opts...)
	if err := sess.Initialize(ctx); err != nil {
		logger.Warn("starting logged out, couldn't restore the previous session", zap.Error(err))
	}

	return webserver.New(conf, sess, client, router, logger).Run(ctx)
}
