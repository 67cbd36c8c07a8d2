package seed

import (
	"context"
	"testing"
	"time"

	"threads/internal/database"
	"threads/internal/models"
	"threads/internal/repository"
	"threads/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func TestFactory_ProfilesAreValidAndUnique(t *testing.T) {
	f := NewFactory(42)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		p := f.Profile()
		require.NoError(t, validation.ValidateUsername(p.Username), p.Username)
		assert.False(t, seen[p.Username], "duplicate username %s", p.Username)
		seen[p.Username] = true
		assert.LessOrEqual(t, len([]rune(p.Name)), validation.MaxNameLength)
		assert.NotEmpty(t, p.ExternalID)
	}
}

func TestSeeder_Run(t *testing.T) {
	db := setupTestDB(t)
	conn := database.Static(db)
	s := NewSeeder(repository.NewUserRepository(conn, 5*time.Second), repository.NewThreadRepository(conn, 5*time.Second))

	stats, err := s.Run(context.Background(), Options{NumUsers: 5, NumThreads: 8, MaxComments: 4, NestedRatio: 50, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Users)
	assert.Equal(t, 8, stats.Threads)

	var users, topLevel, replies int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Thread{}).Where("parent_id IS NULL").Count(&topLevel).Error)
	require.NoError(t, db.Model(&models.Thread{}).Where("parent_id IS NOT NULL").Count(&replies).Error)
	assert.Equal(t, int64(5), users)
	assert.Equal(t, int64(8), topLevel)
	assert.Equal(t, int64(stats.Comments), replies)

	// Counters match the rows they summarize.
	var threadsCount int64
	require.NoError(t, db.Model(&models.User{}).Select("COALESCE(SUM(threads_count), 0)").Scan(&threadsCount).Error)
	assert.Equal(t, topLevel, threadsCount)

	var childrenCount int64
	require.NoError(t, db.Model(&models.Thread{}).Select("COALESCE(SUM(children_count), 0)").Scan(&childrenCount).Error)
	assert.Equal(t, replies, childrenCount)

	require.NoError(t, ClearAll(context.Background(), db))
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)
}

func TestSeeder_NoUsers(t *testing.T) {
	db := setupTestDB(t)
	conn := database.Static(db)
	s := NewSeeder(repository.NewUserRepository(conn, time.Second), repository.NewThreadRepository(conn, time.Second))

	stats, err := s.Run(context.Background(), Options{NumThreads: 3})
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}
