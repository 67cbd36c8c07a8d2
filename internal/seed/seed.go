package seed

import (
	"context"
	"fmt"
	"log/slog"

	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/repository"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers   int
	NumThreads int
	// MaxComments is the most replies a thread receives.
	MaxComments int
	// NestedRatio is the share of replies, in percent, that answer another reply.
	NestedRatio int
	Seed        int64
}

// Stats reports what a run created.
type Stats struct {
	Users    int
	Threads  int
	Comments int
}

// Seeder writes demo data through the repositories so counters and
// parent links stay consistent.
type Seeder struct {
	users   repository.UserRepository
	threads repository.ThreadRepository
}

func NewSeeder(users repository.UserRepository, threads repository.ThreadRepository) *Seeder {
	return &Seeder{users: users, threads: threads}
}

// Run creates users, top-level threads and nested replies.
func (s *Seeder) Run(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats
	f := NewFactory(opts.Seed)

	authors := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := s.users.Upsert(ctx, f.Profile())
		if err != nil {
			return stats, fmt.Errorf("seed user %d: %w", i, err)
		}
		authors = append(authors, user)
		stats.Users++
	}
	if len(authors) == 0 {
		return stats, nil
	}

	for i := 0; i < opts.NumThreads; i++ {
		thread := &models.Thread{Text: f.ThreadText(), AuthorID: authors[f.Intn(len(authors))].ID}
		if err := s.threads.Create(ctx, thread); err != nil {
			return stats, fmt.Errorf("seed thread %d: %w", i, err)
		}
		stats.Threads++

		parents := []uint{thread.ID}
		replies := f.Intn(opts.MaxComments + 1)
		for j := 0; j < replies; j++ {
			parentID := thread.ID
			if len(parents) > 1 && f.Intn(100) < opts.NestedRatio {
				parentID = parents[1+f.Intn(len(parents)-1)]
			}
			comment := &models.Thread{Text: f.CommentText(), AuthorID: authors[f.Intn(len(authors))].ID}
			if _, err := s.threads.AddChild(ctx, parentID, comment); err != nil {
				return stats, fmt.Errorf("seed reply to %d: %w", parentID, err)
			}
			parents = append(parents, comment.ID)
			stats.Comments++
		}
	}

	middleware.Logger.InfoContext(ctx, "Seeding complete",
		slog.Int("users", stats.Users), slog.Int("threads", stats.Threads), slog.Int("comments", stats.Comments))
	return stats, nil
}

// ClearAll removes every thread and user.
func ClearAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Thread{}).Error; err != nil {
			return fmt.Errorf("clear threads: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("clear users: %w", err)
		}
		return nil
	})
}
