// Package middleware provides authentication and request-scoped middleware for the application.
package middleware

import (
	"context"
	"strings"

	"threads/internal/config"
	"threads/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Fiber locals set by AuthRequired.
const (
	LocalUserID      = "userID"
	LocalUserName    = "userName"
	LocalUserPicture = "userPicture"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// Identity is the verified caller as reported by the auth provider.
type Identity struct {
	ExternalID string
	Name       string
	Picture    string
}

// ProviderClaims are the claims the auth provider puts in its tokens.
type ProviderClaims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "Authorization header required")
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthorized(c, "Invalid authorization header format")
	}

	identity, err := ParseToken(parts[1])
	if err != nil {
		return unauthorized(c, "Invalid or expired token")
	}

	c.Locals(LocalUserID, identity.ExternalID)
	c.Locals(LocalUserName, identity.Name)
	c.Locals(LocalUserPicture, identity.Picture)
	c.SetUserContext(WithUserID(c.UserContext(), identity.ExternalID))

	return c.Next()
}

// ParseToken verifies an HS256 provider token and returns the identity it carries.
func ParseToken(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.AuthIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.AuthIssuer))
	}

	claims := &ProviderClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.AuthJWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("invalid or expired token")
	}

	// The subject claim is the provider's user id (RFC 7519).
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, models.NewUnauthorizedError("token has no subject")
	}

	return &Identity{ExternalID: claims.Subject, Name: claims.Name, Picture: claims.Picture}, nil
}

// CurrentIdentity returns the identity stored by AuthRequired.
func CurrentIdentity(c *fiber.Ctx) (*Identity, error) {
	externalID, ok := c.Locals(LocalUserID).(string)
	if !ok || externalID == "" {
		return nil, models.NewUnauthorizedError("authentication required")
	}
	name, _ := c.Locals(LocalUserName).(string)
	picture, _ := c.Locals(LocalUserPicture).(string)
	return &Identity{ExternalID: externalID, Name: name, Picture: picture}, nil
}

// OnboardingChecker reports whether a user has completed their profile.
type OnboardingChecker interface {
	IsOnboarded(ctx context.Context, externalID string) (bool, error)
}

// OnboardingRequired rejects callers that have not completed onboarding with
// 403 and a redirect to the onboarding page.
func OnboardingRequired(checker OnboardingChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := CurrentIdentity(c)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}

		onboarded, err := checker.IsOnboarded(c.UserContext(), identity.ExternalID)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}
		if !onboarded {
			return models.RespondWithAppError(c, models.NewOnboardingRequiredError())
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(message))
}
