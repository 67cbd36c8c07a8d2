// Command main runs the database seeder.
package main

import (
	"context"
	"flag"
	"log"

	"threads/internal/config"
	"threads/internal/database"
	"threads/internal/repository"
	"threads/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numThreads := flag.Int("threads", 60, "Number of top-level threads to create")
	maxComments := flag.Int("comments", 5, "Maximum replies per thread")
	nested := flag.Int("nested", 30, "Percent of replies that answer another reply")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	seedValue := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	log.Printf("Target: %d users, %d threads, clean=%v", *numUsers, *numThreads, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	manager := database.NewManager(cfg)
	defer func() { _ = manager.Close() }()

	db, err := manager.Conn(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *shouldClean {
		if err := seed.ClearAll(ctx, db); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	s := seed.NewSeeder(
		repository.NewUserRepository(manager, cfg.DBTimeout),
		repository.NewThreadRepository(manager, cfg.DBTimeout),
	)
	stats, err := s.Run(ctx, seed.Options{
		NumUsers:    *numUsers,
		NumThreads:  *numThreads,
		MaxComments: *maxComments,
		NestedRatio: *nested,
		Seed:        *seedValue,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done: %d users, %d threads, %d replies", stats.Users, stats.Threads, stats.Comments)
}
