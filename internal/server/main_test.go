package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"threads/internal/cache"
	"threads/internal/config"
	"threads/internal/database"
	"threads/internal/middleware"
	"threads/internal/upload"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	redis    *miniredis.Miniredis
	mediaDir string
}

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

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		Port:           "0",
		AllowedOrigins: "*",
		AuthJWTSecret:  testSecret,
		DBTimeout:      2 * time.Second,
		PageCacheTTL:   time.Minute,
		UploadMaxMB:    4,
		UploadTimeout:  5 * time.Second,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mediaDir := t.TempDir()
	store := upload.NewDiskStore(mediaDir, "http://localhost:8375/media")

	cfg := testConfig()
	srv := NewServerWithDeps(cfg, Deps{
		DB:       database.Static(db),
		Redis:    rdb,
		Pages:    cache.New(rdb, cfg.PageCacheTTL),
		Uploads:  upload.NewService(store, cfg.UploadMaxMB<<20, cfg.UploadTimeout),
		MediaDir: mediaDir,
	})
	return &testEnv{app: srv.App(), db: db, redis: mr, mediaDir: mediaDir}
}

func tokenFor(t *testing.T, externalID, name string) string {
	t.Helper()
	claims := middleware.ProviderClaims{
		Name:    name,
		Picture: "https://img.provider.com/" + externalID + ".png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   externalID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// do sends a JSON request as externalID (anonymous when empty) and decodes
// the JSON response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, externalID string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if externalID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, externalID, "Name of "+externalID))
	}

	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) onboard(t *testing.T, externalID, username string) {
	t.Helper()
	status := e.do(t, http.MethodPost, "/api/onboarding", externalID, ProfileRequest{
		Name:     "Name of " + externalID,
		Username: username,
	}, nil)
	require.Equal(t, http.StatusOK, status)
}

func decodeJSON(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}
