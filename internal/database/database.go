// Package database owns the process-wide store handle: opening it lazily,
// migrating the schema and sharing one connection pool across repositories.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"threads/internal/config"
	"threads/internal/middleware"
	"threads/internal/models"

	"golang.org/x/sync/singleflight"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectTimeout = 10 * time.Second

// CustomGormLogger integrates GORM with slog
type CustomGormLogger struct {
	logger *slog.Logger
	Config logger.Config
}

// NewGormLogger returns a GORM logger writing warnings and slow queries to the app logger.
func NewGormLogger(l *slog.Logger) *CustomGormLogger {
	return &CustomGormLogger{
		logger: l,
		Config: logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	}
}

// LogMode sets the logging level and returns a new interface instance.
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newlogger := *l
	newlogger.Config.LogLevel = level
	return &newlogger
}

func (l *CustomGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *CustomGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *CustomGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace logs failed and slow statements.
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Config.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.Config.LogLevel >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "GORM query error",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	case elapsed > l.Config.SlowThreshold && l.Config.SlowThreshold != 0 && l.Config.LogLevel >= logger.Warn:
		l.logger.WarnContext(ctx, "GORM slow query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	case l.Config.LogLevel >= logger.Info:
		l.logger.InfoContext(ctx, "GORM query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}

// Provider hands out the shared store handle, connecting on first use.
type Provider interface {
	Conn(ctx context.Context) (*gorm.DB, error)
}

// OpenFunc opens and prepares a store handle.
type OpenFunc func(ctx context.Context, cfg *config.Config) (*gorm.DB, error)

// Manager is the single owner of the store connection. The first Conn call
// connects; concurrent first callers share that attempt. A failed attempt is
// not remembered, so the next call tries again.
type Manager struct {
	cfg   *config.Config
	open  OpenFunc
	db    atomic.Pointer[gorm.DB]
	group singleflight.Group
}

// NewManager returns an unconnected manager for cfg.
func NewManager(cfg *config.Config) *Manager {
	return NewManagerWithOpener(cfg, Open)
}

// NewManagerWithOpener is NewManager with a custom open step.
func NewManagerWithOpener(cfg *config.Config, open OpenFunc) *Manager {
	return &Manager{cfg: cfg, open: open}
}

// Conn returns the shared handle, connecting if this is the first use.
func (m *Manager) Conn(ctx context.Context) (*gorm.DB, error) {
	if db := m.db.Load(); db != nil {
		return db, nil
	}
	if m.cfg == nil || strings.TrimSpace(m.cfg.DatabaseURL) == "" {
		return nil, models.NewConfigurationError("DATABASE_URL is not configured")
	}

	v, err, _ := m.group.Do("connect", func() (interface{}, error) {
		if db := m.db.Load(); db != nil {
			return db, nil
		}
		// One caller giving up must not fail the others sharing this attempt.
		connectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectTimeout)
		defer cancel()

		db, err := m.open(connectCtx, m.cfg)
		if err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				return nil, err
			}
			return nil, models.NewConnectionError(err)
		}
		m.db.Store(db)
		return db, nil
	})
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "Database connection failed", slog.String("error", err.Error()))
		return nil, err
	}
	return v.(*gorm.DB), nil
}

// Connected reports whether a handle has been established.
func (m *Manager) Connected() bool {
	return m.db.Load() != nil
}

// Close releases the pool if one was opened.
func (m *Manager) Close() error {
	db := m.db.Swap(nil)
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Static wraps an already-open handle as a Provider.
func Static(db *gorm.DB) Provider {
	return staticProvider{db: db}
}

type staticProvider struct {
	db *gorm.DB
}

func (p staticProvider) Conn(context.Context) (*gorm.DB, error) {
	if p.db == nil {
		return nil, models.NewConnectionError(errors.New("no database handle"))
	}
	return p.db, nil
}

// Dialector picks the GORM driver for a DATABASE_URL: "sqlite:" and "file:"
// URLs use the embedded SQLite driver, anything else is handed to PostgreSQL.
func Dialector(databaseURL string) gorm.Dialector {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite:"))
	case strings.HasPrefix(databaseURL, "file:"):
		return sqlite.Open(databaseURL)
	default:
		return postgres.Open(databaseURL)
	}
}

// Open connects to the configured store, verifies it answers, tunes the pool
// and migrates the schema when enabled.
func Open(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, models.NewConfigurationError("DATABASE_URL is not configured")
	}

	db, err := gorm.Open(Dialector(cfg.DatabaseURL), &gorm.Config{
		Logger:         NewGormLogger(middleware.Logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, models.NewConnectionError(fmt.Errorf("failed to connect to database: %w", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, models.NewConnectionError(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, models.NewConnectionError(fmt.Errorf("database ping failed: %w", err))
	}

	if err := configurePool(db, cfg); err != nil {
		_ = sqlDB.Close()
		return nil, models.NewConnectionError(err)
	}

	if err := ApplySchema(ctx, db, cfg); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "Database connected successfully",
		slog.String("driver", db.Dialector.Name()))
	return db, nil
}

func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if db.Dialector.Name() == "sqlite" {
		// An in-memory SQLite database lives and dies with its single connection.
		sqlDB.SetMaxOpenConns(1)
		return nil
	}

	maxOpen := cfg.DBMaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.DBMaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return nil
}
