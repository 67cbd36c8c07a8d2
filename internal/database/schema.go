package database

import (
	"context"
	"fmt"
	"log/slog"

	"threads/internal/config"
	"threads/internal/middleware"

	"gorm.io/gorm"
)

const (
	// SchemaModeAuto migrates on connect.
	SchemaModeAuto = "auto"
	// SchemaModeManual leaves the schema to cmd/migrate.
	SchemaModeManual = "manual"
)

// SchemaMode resolves DB_SCHEMA_MODE. Unset means auto outside production
// and manual in production.
func SchemaMode(cfg *config.Config) (string, error) {
	switch cfg.DBSchemaMode {
	case "":
		if cfg.IsProduction() {
			return SchemaModeManual, nil
		}
		return SchemaModeAuto, nil
	case SchemaModeAuto, SchemaModeManual:
		return cfg.DBSchemaMode, nil
	default:
		return "", fmt.Errorf("unsupported DB_SCHEMA_MODE %q", cfg.DBSchemaMode)
	}
}

// ApplySchema migrates the schema when the configured mode asks for it.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	mode, err := SchemaMode(cfg)
	if err != nil {
		return err
	}
	if mode != SchemaModeAuto {
		return nil
	}
	middleware.Logger.InfoContext(ctx, "Running GORM AutoMigrate", slog.String("env", cfg.Env))
	return Migrate(ctx, db)
}

// Migrate creates or updates every persistent table and index.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
