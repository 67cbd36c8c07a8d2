package repository

import (
	"context"
	"testing"
	"time"

	"threads/internal/database"
	"threads/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
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

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func newTestRepos(t *testing.T) (UserRepository, ThreadRepository, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	conn := database.Static(db)
	return NewUserRepository(conn, time.Second), NewThreadRepository(conn, time.Second), db
}

func createUser(t *testing.T, db *gorm.DB, externalID, username, name string) *models.User {
	t.Helper()
	user := &models.User{
		ExternalID: externalID,
		Username:   username,
		Name:       name,
		Bio:        "bio of " + name,
		Image:      "https://img.example/" + username + ".webp",
		Onboarded:  true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func countThreads(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Thread{}).Count(&n).Error)
	return n
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return &u
}

func reloadThread(t *testing.T, db *gorm.DB, id uint) *models.Thread {
	t.Helper()
	var th models.Thread
	require.NoError(t, db.First(&th, id).Error)
	return &th
}

func mustAddChild(t *testing.T, threads ThreadRepository, parentID uint, child *models.Thread) []Ancestor {
	t.Helper()
	ancestors, err := threads.AddChild(context.Background(), parentID, child)
	require.NoError(t, err)
	return ancestors
}
