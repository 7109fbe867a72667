package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sampledb/sampledb/pkg/config"
	"github.com/sampledb/sampledb/pkg/federation"
	"github.com/sampledb/sampledb/pkg/ha"
	"github.com/sampledb/sampledb/pkg/store"
)

func setupDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case config.DatabaseSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case config.DatabasePostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DatabaseMySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Type == config.DatabaseSQLite {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	engine *federation.Engine
	logger *slog.Logger
}

// newApp loads the configuration, opens and migrates the database and builds
// the federation engine.
func newApp() (*app, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := setupDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	engine := federation.NewEngine(
		store.New(db, cfg.FederationUUID),
		federation.WithConfig(cfg.Federation()),
		federation.WithLogger(logger),
	)
	a := &app{cfg: cfg, db: db, engine: engine, logger: logger}
	if err := a.migrate(engine.AutoMigrate); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return a, nil
}

// migrate runs fn under the migration lock shared by all nodes on the
// database.
func (a *app) migrate(fn func() error) error {
	return ha.NewMigrationLocker(a.db, ha.LockOptions{}).WithLock(context.Background(), fn)
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// component resolves a peer by UUID.
func (a *app) component(uuid string) (*store.Component, error) {
	if uuid == "" {
		return nil, fmt.Errorf("--component is required")
	}
	return a.engine.Store().GetComponentByUUID(uuid)
}
