// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"threads/internal/config"
	"threads/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <auto|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	switch cmd {
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		db, err := database.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		log.Println("automigrations applied")
	case "status":
		mode, err := database.SchemaMode(cfg)
		if err != nil {
			return err
		}
		log.Printf("mode=%s env=%s", mode, cfg.Env)
	default:
		return usage()
	}

	return nil
}
