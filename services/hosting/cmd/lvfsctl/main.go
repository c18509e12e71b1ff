package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"lvfs/pkg/config"
	"lvfs/pkg/db"
	"lvfs/pkg/logging"
	"lvfs/pkg/storage"
	"lvfs/services/audit"
	"lvfs/services/hosting"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand(openSession).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// backend is what the commands need from the hosting service.
type backend interface {
	Administer(ctx context.Context, req hosting.AdminRequest) (*hosting.Outcome, error)
	Bootstrap(ctx context.Context, name string) (*hosting.Vendor, error)
	Vendors(ctx context.Context) ([]hosting.Vendor, error)
	History(ctx context.Context) ([]hosting.HistoryEntry, error)
}

type session struct {
	hosting backend
	migrate func(ctx context.Context) error
	audit   func(ctx context.Context, limit int) ([]audit.Entry, error)
	close   func()
}

type opener func(ctx context.Context) (*session, error)

// openSession connects with the same configuration the services use. Events
// are not published from the CLI.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, "console", os.Stderr)
	if err != nil {
		return nil, err
	}

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB := db.SQL(pool)
	closeAll := func() {
		_ = sqlDB.Close()
		pool.Close()
	}

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	svc, err := hosting.NewService(hosting.Options{
		DB:             sqlDB,
		Blobs:          blobs,
		SigningContact: cfg.SigningContact,
		Logger:         logger,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	var orm *gorm.DB
	return &session{
		hosting: svc,
		migrate: func(ctx context.Context) error { return db.Migrate(ctx, sqlDB) },
		audit: func(ctx context.Context, limit int) ([]audit.Entry, error) {
			if orm == nil {
				if orm, err = db.ORM(sqlDB); err != nil {
					return nil, err
				}
			}
			return audit.List(ctx, orm, limit)
		},
		close: closeAll,
	}, nil
}
