// Package ha lets several federation nodes share one database: schema
// migrations run under a database-wide lock so only one node alters tables
// at a time.
package ha

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"
	"gorm.io/gorm"
)

// MigrationLocker serializes migrations across processes.
type MigrationLocker interface {
	// WithLock runs fn while holding the lock and releases it afterwards,
	// also when fn fails.
	WithLock(ctx context.Context, fn func() error) error
}

// LockOptions tunes a MigrationLocker. Zero values select the defaults.
type LockOptions struct {
	// Name identifies the lock; nodes using the same name exclude each other.
	Name string
	// Holder is recorded in the lock table; defaults to the hostname.
	Holder string
	// Attempts and RetryInterval bound how long the table lock is awaited.
	Attempts      int
	RetryInterval time.Duration
	// StaleAfter is the age after which a table lock is considered
	// abandoned by a crashed holder.
	StaleAfter time.Duration
	// WaitSeconds bounds MySQL's GET_LOCK.
	WaitSeconds int

	now func() time.Time
}

// DefaultLockName is the lock shared by all federation nodes.
const DefaultLockName = "sampledb-federation-migration"

func (o LockOptions) withDefaults() LockOptions {
	if o.Name == "" {
		o.Name = DefaultLockName
	}
	if o.Holder == "" {
		o.Holder, _ = os.Hostname()
		if o.Holder == "" {
			o.Holder = "unknown"
		}
	}
	if o.Attempts <= 0 {
		o.Attempts = 30
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 5 * time.Minute
	}
	if o.WaitSeconds <= 0 {
		o.WaitSeconds = 30
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// NewMigrationLocker picks the strategy for the database dialect: advisory
// locks on PostgreSQL, GET_LOCK on MySQL and a lock table elsewhere.
// A nil db yields a locker that just runs fn.
func NewMigrationLocker(db *gorm.DB, opts LockOptions) MigrationLocker {
	if db == nil {
		return noopLock{}
	}
	opts = opts.withDefaults()
	switch db.Dialector.Name() {
	case "postgres":
		return &advisoryLock{db: db, key: advisoryKey(opts.Name)}
	case "mysql":
		return &namedLock{db: db, name: opts.Name, wait: opts.WaitSeconds}
	default:
		return &tableLock{db: db, opts: opts}
	}
}

// advisoryKey maps a lock name onto PostgreSQL's bigint advisory lock space.
func advisoryKey(name string) int64 {
	sum := blake3.Sum256([]byte(name))
	return int64(binary.BigEndian.Uint64(sum[:8]) >> 1)
}

type noopLock struct{}

func (noopLock) WithLock(_ context.Context, fn func() error) error { return fn() }

type advisoryLock struct {
	db  *gorm.DB
	key int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.key).Error; err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer l.db.Exec("SELECT pg_advisory_unlock(?)", l.key)
	return fn()
}

type namedLock struct {
	db   *gorm.DB
	name string
	wait int
}

func (l *namedLock) WithLock(ctx context.Context, fn func() error) error {
	var got sql.NullInt64
	if err := l.db.WithContext(ctx).Raw("SELECT GET_LOCK(?, ?)", l.name, l.wait).Scan(&got).Error; err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return fmt.Errorf("acquire migration lock: %s is held by another node", l.name)
	}
	defer l.db.Exec("SELECT RELEASE_LOCK(?)", l.name)
	return fn()
}

// lockRecord is one held lock in the lock table.
type lockRecord struct {
	Name     string    `gorm:"primaryKey;column:name;type:varchar(128)"`
	LockedAt time.Time `gorm:"column:locked_at;not null"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (lockRecord) TableName() string { return "migration_locks" }

// tableLock inserts a row keyed by the lock name; the primary key makes a
// second insert fail while the lock is held.
type tableLock struct {
	db   *gorm.DB
	opts LockOptions
}

func (l *tableLock) WithLock(ctx context.Context, fn func() error) error {
	db := l.db.WithContext(ctx)
	if err := db.AutoMigrate(&lockRecord{}); err != nil {
		return fmt.Errorf("create migration lock table: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < l.opts.Attempts; attempt++ {
		now := l.opts.now()
		err := db.Where("name = ? AND locked_at < ?", l.opts.Name, now.Add(-l.opts.StaleAfter)).
			Delete(&lockRecord{}).Error
		if err != nil {
			return fmt.Errorf("clear stale migration lock: %w", err)
		}

		lastErr = db.Create(&lockRecord{Name: l.opts.Name, LockedAt: now, LockedBy: l.opts.Holder}).Error
		if lastErr == nil {
			defer l.db.Where("name = ?", l.opts.Name).Delete(&lockRecord{})
			return fn()
		}
		if attempt == l.opts.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.RetryInterval):
		}
	}
	return fmt.Errorf("acquire migration lock %s after %d attempts: %w", l.opts.Name, l.opts.Attempts, lastErr)
}
