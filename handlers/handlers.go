package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/R-Tharanka/sos-live-tracker-map/config"
	"github.com/R-Tharanka/sos-live-tracker-map/models"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

// SessionStore is everything the handlers need from the document store.
// *services.MongoSessions satisfies it; tests substitute fakes.
type SessionStore interface {
	services.SessionSource
	services.SessionAudit
	services.SessionStream
	CreateSOSSession(ctx context.Context, userID string, info *models.UserInfo, loc *models.Location) (*models.SOSSession, error)
	UpdateLocation(ctx context.Context, sessionID string, loc models.Location) error
	ResolveSession(ctx context.Context, sessionID string) error
}

// Deps carries the injected capabilities shared by all handlers.
type Deps struct {
	Store       SessionStore
	Credentials services.CredentialStore
	Validator   *services.AccessValidator
	Config      *config.Config
}

var (
	store       SessionStore
	credentials services.CredentialStore
	validator   *services.AccessValidator
	cfg         *config.Config
)

// InitHandlers wires the handler package. Must run before routes are
// registered.
func InitHandlers(deps Deps) {
	store = deps.Store
	credentials = deps.Credentials
	validator = deps.Validator
	cfg = deps.Config
}

// viewerID returns the durable per-browser viewer ID, minting one and
// setting its cookie on first contact. The ID keys the credential
// cache; it carries no authority by itself.
func viewerID(c *fiber.Ctx) string {
	id := c.Cookies(services.ViewerCookieName)
	if id != "" {
		return id
	}

	id = uuid.New().String()
	c.Cookie(&fiber.Cookie{
		Name:     services.ViewerCookieName,
		Value:    id,
		MaxAge:   int((365 * 24 * 60 * 60)),
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})
	return id
}

// accessFailureStatus maps a denial reason to an HTTP status.
func accessFailureStatus(reason services.AccessReason) int {
	switch reason {
	case services.ReasonMissingParameters, services.ReasonMissingToken:
		return fiber.StatusBadRequest
	case services.ReasonNotFound:
		return fiber.StatusNotFound
	case services.ReasonTokenMismatch:
		return fiber.StatusForbidden
	case services.ReasonTransportError, services.ReasonSubscriptionError:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// accessFailure renders a denial with its distinct message and a
// recovery path back to authenticated sign-in.
func accessFailure(c *fiber.Ctx, reason services.AccessReason) error {
	return c.Status(accessFailureStatus(reason)).JSON(fiber.Map{
		"error":   reason.Message(),
		"reason":  string(reason),
		"sign_in": "/auth/login",
	})
}
