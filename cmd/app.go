package cmd

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-file-quarantine/internal/quarantine"
	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
	"github.com/Laisky/laisky-file-quarantine/internal/verifier"
	"github.com/Laisky/laisky-file-quarantine/library/config"
	"github.com/Laisky/laisky-file-quarantine/library/db/postgres"
	"github.com/Laisky/laisky-file-quarantine/library/db/redis"
	"github.com/Laisky/laisky-file-quarantine/library/log"
	"github.com/Laisky/laisky-file-quarantine/library/objstore"
)

// application holds the wired services shared by every subcommand.
type application struct {
	manager      *quarantine.Manager
	orchestrator *scanner.Orchestrator
	closers      []func()
}

// Close drains background work and releases connections.
func (app *application) Close() {
	if app.manager != nil {
		app.manager.Wait()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
}

// openMetadataDB opens postgres, or the sqlite dsn when one is configured for local runs.
func openMetadataDB(ctx context.Context) (*gorm.DB, error) {
	if dsn := config.String("settings.db.sqlite.dsn", ""); dsn != "" {
		log.Logger.Warn("use sqlite metadata store, not for production", zap.String("dsn", dsn))
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		return db, nil
	}

	return postgres.NewGormDB(ctx, postgres.DialInfo{
		Addr:   gconfig.S.GetString("settings.db.postgres.addr"),
		DBName: gconfig.S.GetString("settings.db.postgres.db"),
		User:   gconfig.S.GetString("settings.db.postgres.user"),
		Pwd:    gconfig.S.GetString("settings.db.postgres.pwd"),
		Port:   config.Int("settings.db.postgres.port", 5432),
	}, gconfig.Shared.GetBool("debug"))
}

// openLockProvider returns the redis lock when redis is configured, nil otherwise.
func openLockProvider(ctx context.Context, settings quarantine.Settings) (quarantine.LockProvider, func(), error) {
	addr := strings.TrimSpace(gconfig.S.GetString("settings.db.redis.addr"))
	if addr == "" {
		log.Logger.Info("redis not configured, scan locks are process local")
		return nil, func() {}, nil
	}

	rdb := redis.NewDB(&goredis.Options{
		Addr:     addr,
		Password: gconfig.S.GetString("settings.db.redis.pwd"),
		DB:       config.Int("settings.db.redis.db", 0),
	})
	if err := rdb.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.WithStack(err)
	}

	return quarantine.NewRedisLockProvider(rdb, settings.LockTTL), func() {
		if err := rdb.Close(); err != nil {
			log.Logger.Warn("close redis", zap.Error(err))
		}
	}, nil
}

// buildApplication wires storage, scanners and the quarantine manager from configuration.
func buildApplication(ctx context.Context) (*application, error) {
	settings := quarantine.LoadSettingsFromConfig()
	app := &application{}

	db, err := openMetadataDB(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open metadata db")
	}
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, func() { _ = sqlDB.Close() })
	}

	storage, err := objstore.New(ctx, settings.Storage)
	if err != nil {
		app.Close()
		return nil, errors.Wrap(err, "new object storage")
	}

	locks, closeLocks, err := openLockProvider(ctx, settings)
	if err != nil {
		app.Close()
		return nil, errors.Wrap(err, "open lock provider")
	}
	app.closers = append(app.closers, closeLocks)

	v := verifier.New(settings.Scan.KnownBadHashes...)
	app.orchestrator = scanner.NewOrchestrator(
		settings.Scan,
		scanner.NewStrategiesFromSettings(settings.Scan),
		v,
		log.Logger.Named("scan_orchestrator"),
		nil,
	)

	deps := quarantine.Dependencies{
		DB:       db,
		Storage:  storage,
		Scanner:  app.orchestrator,
		Verifier: v,
		Locks:    locks,
		Logger:   log.Logger.Named("quarantine"),
	}
	if app.manager, err = quarantine.NewManager(ctx, settings, deps); err != nil {
		app.Close()
		return nil, errors.Wrap(err, "new quarantine manager")
	}

	log.Logger.Info("quarantine service wired",
		zap.String("env", settings.Env),
		zap.String("storage", settings.Storage.Driver),
		zap.Int("workers", settings.Workers),
		zap.Bool("scan_enabled", settings.Scan.Enabled))
	return app, nil
}
