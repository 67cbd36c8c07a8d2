package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  error
		want int
	}{
		{NewValidationError("bad"), fiber.StatusBadRequest},
		{NewUnauthorizedError("no"), fiber.StatusUnauthorized},
		{NewOnboardingRequiredError(), fiber.StatusForbidden},
		{NewNotFoundError("Thread", 7), fiber.StatusNotFound},
		{NewTimeoutError("query", context.DeadlineExceeded), fiber.StatusGatewayTimeout},
		{NewUploadError("upload failed", cause), fiber.StatusBadGateway},
		{NewConnectionError(cause), fiber.StatusServiceUnavailable},
		{NewPersistenceError("missing"), fiber.StatusInternalServerError},
		{NewInternalError(cause), fiber.StatusInternalServerError},
		{cause, fiber.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NewNotFoundError("User", "u1")), fiber.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestHelpersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("service: %w", NewNotFoundError("User", "u1"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))

	cause := errors.New("dial tcp: refused")
	assert.ErrorIs(t, NewConnectionError(cause), cause)
}

func respond(t *testing.T, err error) (int, ErrorResponse) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return RespondWithAppError(c, err) })

	resp, reqErr := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, reqErr)
	defer func() { _ = resp.Body.Close() }()

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestRespondWithAppError(t *testing.T) {
	t.Run("field errors", func(t *testing.T) {
		status, body := respond(t, NewFieldValidationError(map[string]string{"username": "Username is required"}))
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, CodeValidation, body.Code)
		assert.Equal(t, "Username is required", body.Fields["username"])
	})

	t.Run("onboarding redirect", func(t *testing.T) {
		status, body := respond(t, NewOnboardingRequiredError())
		assert.Equal(t, fiber.StatusForbidden, status)
		assert.Equal(t, CodeOnboarding, body.Code)
		assert.Equal(t, "/onboarding", body.Redirect)
	})

	t.Run("internal cause hidden", func(t *testing.T) {
		status, body := respond(t, NewInternalError(errors.New("pq: relation missing")))
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, CodeInternal, body.Code)
		assert.Empty(t, body.Details)
	})

	t.Run("upload cause exposed", func(t *testing.T) {
		status, body := respond(t, NewUploadError("upload failed", errors.New("bucket unavailable")))
		assert.Equal(t, fiber.StatusBadGateway, status)
		assert.Equal(t, "bucket unavailable", body.Details)
	})
}
