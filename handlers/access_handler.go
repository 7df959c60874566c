package handlers

import (
	"log/slog"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

// HandleSessionAccess is the entry point an emergency link resolves to:
// /session/:sessionID?token= and /access/:sessionID?token=. It
// validates the link, caches the credential for this viewer, and
// forwards to the map with the token carried in the URL. Three
// terminal outcomes: redirect, or a failure page distinguishing
// not-found, invalid token and transport failure. No retries; the
// visitor reloads to try again.
func HandleSessionAccess(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")
	token := c.Query("token")

	// Missing parameters fail before any store access. This is the
	// canonical "missing access token" path.
	if sessionID == "" || token == "" {
		slog.Info("Access gate rejected link without token",
			"sessionID", sessionID,
			"hasToken", token != "",
		)
		return accessFailure(c, services.ReasonMissingParameters)
	}

	if !services.AllowValidation(c.IP()) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many attempts. Please wait a moment.",
		})
	}

	result := validator.Validate(c.Context(), sessionID, token)
	if !result.Authorized {
		return accessFailure(c, result.Reason)
	}

	viewer := viewerID(c)
	if err := credentials.Save(c.Context(), viewer, models.ViewerCredential{
		SessionID: sessionID,
		Token:     token,
	}); err != nil {
		// The URL keeps carrying the token, so a cache miss only costs
		// the viewer a reload-without-link later.
		slog.Error("Failed to cache viewer credential",
			"sessionID", sessionID,
			"error", err,
		)
	}

	// Best-effort audit entry; never blocks the viewer.
	if err := store.AppendAccessLog(c.Context(), sessionID, models.AccessLog{
		Type:     models.AccessLogLinkOpened,
		HasToken: true,
	}); err != nil {
		slog.Error("Failed to append access log",
			"sessionID", sessionID,
			"error", err,
		)
	}

	slog.Info("Access gate authorized viewer",
		"sessionID", sessionID,
		"viewerID", viewer,
	)
	return c.Redirect("/map/"+url.PathEscape(sessionID)+"?token="+url.QueryEscape(token), fiber.StatusFound)
}
