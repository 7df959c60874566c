package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

// RequireAuth rejects requests without a valid login session.
func RequireAuth(c *fiber.Ctx) error {
	// Get session ID from cookie
	sessionID := c.Cookies(services.SessionCookieName)
	if sessionID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	// Get session from database
	session, err := services.GetAuthSessionByID(c.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to get session", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	if session == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired session",
		})
	}

	// Set user information in locals for downstream handlers
	c.Locals("user_id", session.UserID)
	c.Locals("email", session.Email)
	c.Locals("is_anonymous", session.IsAnonymous)
	c.Locals("signed_in", true)

	// Extend session expiration on activity
	services.ExtendAuthSession(c.Context(), sessionID)

	return c.Next()
}

// OptionalAuth resolves the signed-in identity when one is present but
// lets the request through either way. The map surface uses the
// signed_in local to choose between the push channel and polling.
func OptionalAuth(c *fiber.Ctx) error {
	c.Locals("signed_in", false)

	sessionID := c.Cookies(services.SessionCookieName)
	if sessionID == "" {
		return c.Next()
	}

	session, err := services.GetAuthSessionByID(c.Context(), sessionID)
	if err != nil || session == nil {
		return c.Next()
	}

	c.Locals("user_id", session.UserID)
	c.Locals("email", session.Email)
	c.Locals("is_anonymous", session.IsAnonymous)
	c.Locals("signed_in", true)

	return c.Next()
}

// RequireDeviceKey guards the mobile-source ingest endpoints with a
// shared API key header.
func RequireDeviceKey(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" || c.Get("X-Device-Key") != apiKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid device key",
			})
		}
		return c.Next()
	}
}
