package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

// MapSessionResponse is the map surface's bootstrap payload: the
// current view model, the initial render state, and which acquisition
// strategy this viewer should run.
type MapSessionResponse struct {
	View         models.SessionView `json:"view"`
	Map          models.MapState    `json:"map"`
	Strategy     string             `json:"strategy"` // "push" or "poll"
	PollInterval int                `json:"poll_interval_seconds,omitempty"`
	SocketPath   string             `json:"socket_path,omitempty"`
}

// resolveToken applies the token precedence rule: the URL query wins,
// and a URL-supplied token overwrites whatever was cached; the cache
// only serves viewers who arrive without a link.
func resolveToken(c *fiber.Ctx, sessionID string) string {
	viewer := viewerID(c)

	if token := c.Query("token"); token != "" {
		cached, err := credentials.Lookup(c.Context(), viewer, sessionID)
		if err != nil || cached.Token != token {
			if err := credentials.Save(c.Context(), viewer, models.ViewerCredential{
				SessionID: sessionID,
				Token:     token,
			}); err != nil {
				slog.Error("Failed to cache URL token", "sessionID", sessionID, "error", err)
			}
		}
		return token
	}

	cached, err := credentials.Lookup(c.Context(), viewer, sessionID)
	if err != nil {
		return ""
	}
	return cached.Token
}

// HandleMapSession serves GET /map/:sessionID. Token resolution happens
// before anything else; a viewer with no token gets the missing-token
// error without a single store round trip.
func HandleMapSession(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")

	token := resolveToken(c, sessionID)
	if token == "" {
		return accessFailure(c, services.ReasonMissingToken)
	}

	signedIn, _ := c.Locals("signed_in").(bool)
	if !signedIn && !services.AllowValidation(c.IP()) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many attempts. Please wait a moment.",
		})
	}

	result := validator.Validate(c.Context(), sessionID, token)
	if !result.Authorized {
		return accessFailure(c, result.Reason)
	}

	if err := store.AppendAccessLog(c.Context(), sessionID, models.AccessLog{
		Type:     models.AccessLogMapViewed,
		HasToken: true,
	}); err != nil {
		slog.Error("Failed to append access log", "sessionID", sessionID, "error", err)
	}

	view := models.NewSessionView(result.Session)
	state := models.MapState{}
	state.Apply(view)

	resp := MapSessionResponse{View: view, Map: state}
	if signedIn {
		resp.Strategy = "push"
		resp.SocketPath = "/api/sessions/" + sessionID + "/ws"
	} else {
		resp.Strategy = "poll"
		resp.PollInterval = int(cfg.PollInterval.Seconds())

		// The bootstrap hands the viewer the poll loop, so this is the
		// one moment to audit it. Per-tick entries would flood the log.
		if err := store.AppendAccessLog(c.Context(), sessionID, models.AccessLog{
			Type:     models.AccessLogPollStarted,
			HasToken: true,
		}); err != nil {
			slog.Error("Failed to append access log", "sessionID", sessionID, "error", err)
		}
	}

	return c.JSON(resp)
}

// HandlePollSession serves GET /api/sessions/:sessionID, the anonymous
// polling fetch. Every tick is a full validate-and-fetch; the viewer
// side decides what a failed tick means for an already-rendered map.
func HandlePollSession(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")

	token := resolveToken(c, sessionID)
	if token == "" {
		return accessFailure(c, services.ReasonMissingToken)
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

	return c.JSON(models.NewSessionView(result.Session))
}

// HandleClearCredential serves DELETE /api/credentials/:sessionID, the
// explicit debug/reset action. Cached credentials have no TTL, so this
// is the only way a viewer drops one short of clearing the browser.
func HandleClearCredential(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")
	viewer := viewerID(c)

	if err := credentials.Clear(c.Context(), viewer, sessionID); err != nil {
		slog.Error("Failed to clear credential", "sessionID", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear stored access",
		})
	}

	return c.JSON(fiber.Map{"message": "Stored access cleared"})
}
