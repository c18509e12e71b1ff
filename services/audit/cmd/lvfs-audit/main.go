package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lvfs/pkg/bus"
	"lvfs/pkg/config"
	"lvfs/pkg/db"
	"lvfs/pkg/logging"
	"lvfs/services/audit"
)

const serviceName = "lvfs-audit"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}
	logger = logger.With().Str("service", serviceName).Logger()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg(serviceName)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.NATSURL == "" {
		return errors.New("LVFS_NATS_URL is required")
	}

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	sqlDB := db.SQL(pool)
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, sqlDB); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	orm, err := db.ORM(sqlDB)
	if err != nil {
		return fmt.Errorf("init orm: %w", err)
	}

	b, err := bus.New(cfg.NATSURL, nats.Name(serviceName))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer b.Close()

	ing, err := audit.NewIngestor(orm, logger)
	if err != nil {
		return err
	}
	return ing.Run(ctx, b, audit.DefaultDurable)
}
