package handlers

import (
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

// The ingest surface is what the mobile SOS feature calls: create the
// session when the user triggers SOS, overwrite the location as the
// phone moves, resolve when the emergency ends.

type CreateSessionRequest struct {
	UserID   string           `json:"user_id"`
	UserInfo *models.UserInfo `json:"user_info,omitempty"`
	Location *models.Location `json:"location,omitempty"`
}

type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
	ShareLink   string `json:"share_link"`
}

func CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	session, err := store.CreateSOSSession(c.Context(), req.UserID, req.UserInfo, req.Location)
	if err != nil {
		slog.Error("Failed to create SOS session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	// The link carries the literal shared secret, URL-escaped.
	link := cfg.PublicBaseURL + "/session/" + url.PathEscape(session.SessionID) +
		"?token=" + url.QueryEscape(session.AccessToken)

	return c.Status(fiber.StatusCreated).JSON(CreateSessionResponse{
		SessionID:   session.SessionID,
		AccessToken: session.AccessToken,
		ShareLink:   link,
	})
}

type UpdateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // epoch millis; defaults to now
}

func UpdateLocation(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")

	var req UpdateLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	loc := models.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if req.Timestamp > 0 {
		loc.Timestamp = time.UnixMilli(req.Timestamp).UTC()
	}

	if err := store.UpdateLocation(c.Context(), sessionID, loc); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		slog.Error("Failed to update location", "sessionID", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update location",
		})
	}

	return c.JSON(fiber.Map{"message": "Location updated"})
}

func ResolveSession(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")

	if err := store.ResolveSession(c.Context(), sessionID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		slog.Error("Failed to resolve session", "sessionID", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve session",
		})
	}

	slog.Info("SOS session resolved", "sessionID", sessionID)
	return c.JSON(fiber.Map{"message": "Session resolved"})
}
