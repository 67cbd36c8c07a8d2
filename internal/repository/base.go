// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threads/internal/database"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/observability"

	"gorm.io/gorm"
)

// DefaultTimeout bounds a repository call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// store is embedded by every repository. It resolves the shared handle
// through the connection manager and bounds each call with a deadline.
type store struct {
	conn    database.Provider
	timeout time.Duration
	table   string
	log     *observability.RepoLogger
}

func newStore(conn database.Provider, timeout time.Duration, table string) store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return store{
		conn:    conn,
		timeout: timeout,
		table:   table,
		log:     observability.NewRepoLogger(table, middleware.Logger),
	}
}

// run executes fn against a context-bound handle and maps its error.
func (s store) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db, err := s.conn.Conn(ctx)
	if err != nil {
		return err
	}

	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, db.Dialector.Name(), op, s.table)
	done := observability.TrackQuery(op, s.table)

	err = s.translate(ctx, op, fn(db.WithContext(ctx)))

	done()
	observability.EndSpan(span, err)
	return err
}

// translate maps driver and context failures onto application errors.
func (s store) translate(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	mapped := err
	var appErr *models.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		appErr = models.NewTimeoutError(s.table+"."+op, err)
		mapped = appErr
	default:
		appErr = models.NewInternalError(fmt.Errorf("%s.%s: %w", s.table, op, err))
		mapped = appErr
	}

	observability.DatabaseErrors.WithLabelValues(op, appErr.Code).Inc()
	if appErr.Code != models.CodeNotFound && appErr.Code != models.CodeValidation {
		s.log.LogError(ctx, err, op)
	}
	return mapped
}
