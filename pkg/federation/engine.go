// Package federation imports entities shared by peer components and exports
// local entities to them.
//
// Every entity kind implements the EntityHandler trio Parse, Import and
// Preprocess. Imports of a whole update batch run in one transaction: the
// batch is parsed completely first, location parent chains are checked for
// cycles, and entities are then imported in dependency order, recursively
// importing referenced entities that ship in the same batch and creating
// placeholders for those that do not.
package federation

import (
	"context"
	"log/slog"
	"time"

	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/permissions"
	"github.com/sampledb/sampledb/pkg/store"
)

// DefaultValidTimeDelta is the default allowed clock skew between components.
const DefaultValidTimeDelta = 300 * time.Second

// Config holds the federation settings consumed by the engine.
type Config struct {
	// ValidTimeDelta is how far in the future an inbound timestamp may lie.
	ValidTimeDelta time.Duration
	// Languages lists the supported language codes; English is always supported.
	Languages []string
	// SchemaCacheSize bounds the memoized schema validations; 0 disables the cache.
	SchemaCacheSize int
	SchemaCacheTTL  time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ValidTimeDelta:  DefaultValidTimeDelta,
		Languages:       []string{"en", "de"},
		SchemaCacheSize: 256,
		SchemaCacheTTL:  10 * time.Minute,
	}
}

// Engine runs imports and exports against one database.
type Engine struct {
	store    *store.Store
	fedlog   *fedlog.Log
	perms    *permissions.Store
	handlers map[store.Kind]EntityHandler
	parser   *Parser
	logger   *slog.Logger
	now      func() time.Time
	cfg      Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock sets the clock used for freshness checks and log timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// NewEngine creates an engine on top of st.
func NewEngine(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.fedlog = fedlog.New(st).WithClock(e.now)
	e.perms = permissions.NewStore(st.DB())
	e.parser = newParser(e.cfg, e.now, e.logger)
	e.handlers = newRegistry()
	return e
}

// AutoMigrate creates all tables used by the engine.
func (e *Engine) AutoMigrate() error {
	if err := e.store.AutoMigrate(); err != nil {
		return err
	}
	if err := e.fedlog.AutoMigrate(); err != nil {
		return err
	}
	return e.perms.AutoMigrate()
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.store }

// Log returns the federation log.
func (e *Engine) Log() *fedlog.Log { return e.fedlog }

// Permissions returns the object permission store.
func (e *Engine) Permissions() *permissions.Store { return e.perms }

// inTx runs fn with an engine bound to a transaction.
func (e *Engine) inTx(ctx context.Context, fn func(tx *Engine) error) error {
	return e.store.Transaction(ctx, func(tx *store.Store) error {
		bound := *e
		bound.store = tx
		bound.fedlog = e.fedlog.WithStore(tx)
		bound.perms = e.perms.WithDB(tx.DB())
		return fn(&bound)
	})
}
