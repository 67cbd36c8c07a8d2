package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"threads/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:3000"

func middlewareApp(t *testing.T) *fiber.App {
	t.Helper()
	srv := &Server{config: &config.Config{AllowedOrigins: testOrigin}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.All("/limited", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func send(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	req.Header.Set("Origin", testOrigin)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSetupMiddleware_SecurityHeaders(t *testing.T) {
	app := middlewareApp(t)

	resp := send(t, app, httptest.NewRequest(http.MethodGet, "/limited", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSetupMiddleware_RateLimitedResponseKeepsCORS(t *testing.T) {
	app := middlewareApp(t)

	for i := 0; i < 100; i++ {
		resp := send(t, app, httptest.NewRequest(http.MethodPost, "/limited", nil))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	limited := send(t, app, httptest.NewRequest(http.MethodPost, "/limited", nil))
	assert.Equal(t, fiber.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, testOrigin, limited.Header.Get("Access-Control-Allow-Origin"))

	// Preflight is not counted by the limiter.
	preflight := httptest.NewRequest(http.MethodOptions, "/limited", nil)
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	resp := send(t, app, preflight)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}
