package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

func setSessionCookie(c *fiber.Ctx, session *models.AuthSession) {
	c.Cookie(&fiber.Cookie{
		Name:     services.SessionCookieName,
		Value:    session.SessionID,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Register creates an account and signs it in immediately.
func Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}

	user, err := services.CreateUser(c.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		slog.Info("Registration failed", "email", req.Email, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not create account",
		})
	}

	session, err := services.CreateAuthSession(
		c.Context(),
		user.UserID,
		user.Email,
		false,
		c.IP(),
		c.Get("User-Agent"),
	)
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Account created, sign in to continue",
		})
	}

	setSessionCookie(c, session)

	return c.Status(fiber.StatusCreated).JSON(LoginResponse{
		Message: "Registration successful",
		User:    user,
	})
}

func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}

	user, err := services.GetUserByEmail(c.Context(), req.Email)
	if err != nil {
		slog.Info("Login attempt for unknown user", "email", req.Email)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Account is disabled",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Info("Invalid password attempt", "email", req.Email)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	session, err := services.CreateAuthSession(
		c.Context(),
		user.UserID,
		user.Email,
		false,
		c.IP(),
		c.Get("User-Agent"),
	)
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to sign in",
		})
	}

	setSessionCookie(c, session)

	if err := services.UpdateUserLastLogin(c.Context(), user.UserID); err != nil {
		slog.Error("Failed to update last login", "error", err)
	}

	slog.Info("User logged in", "userID", user.UserID, "email", user.Email)

	return c.Status(fiber.StatusOK).JSON(LoginResponse{
		Message: "Login successful",
		User:    user,
	})
}

// LoginAnonymous creates an ephemeral identity and signs it in, so an
// emergency contact can take the live push channel without an account.
func LoginAnonymous(c *fiber.Ctx) error {
	user, err := services.CreateAnonymousUser(c.Context())
	if err != nil {
		slog.Error("Failed to create anonymous user", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create anonymous identity",
		})
	}

	session, err := services.CreateAuthSession(
		c.Context(),
		user.UserID,
		"",
		true,
		c.IP(),
		c.Get("User-Agent"),
	)
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to sign in",
		})
	}

	setSessionCookie(c, session)

	return c.Status(fiber.StatusOK).JSON(LoginResponse{
		Message: "Anonymous sign-in successful",
		User:    user,
	})
}

func Logout(c *fiber.Ctx) error {
	sessionID := c.Cookies(services.SessionCookieName)
	if sessionID == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}

	session, _ := services.GetAuthSessionByID(c.Context(), sessionID)
	var userID string
	if session != nil {
		userID = session.UserID
	}

	if err := services.DestroyAuthSession(c.Context(), sessionID); err != nil {
		slog.Error("Failed to destroy session", "error", err)
	}

	// Clear session cookie
	c.Cookie(&fiber.Cookie{
		Name:     services.SessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})

	slog.Info("User logged out", "userID", userID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

func GetCurrentUser(c *fiber.Ctx) error {
	sessionID := c.Cookies(services.SessionCookieName)
	if sessionID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	session, err := services.GetAuthSessionByID(c.Context(), sessionID)
	if err != nil || session == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	user, err := services.GetUserByID(c.Context(), session.UserID)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "userID", session.UserID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get user information",
		})
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

func CheckSession(c *fiber.Ctx) error {
	sessionID := c.Cookies(services.SessionCookieName)
	if sessionID == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"authenticated": false,
		})
	}

	session, err := services.GetAuthSessionByID(c.Context(), sessionID)
	if err != nil || session == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"authenticated": false,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"authenticated": true,
		"user_id":       session.UserID,
		"email":         session.Email,
		"is_anonymous":  session.IsAnonymous,
	})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the signed-in user's password after checking
// the current one. Runs behind RequireAuth; anonymous identities carry
// no password and are rejected.
func ChangePassword(c *fiber.Ctx) error {
	if anonymous, _ := c.Locals("is_anonymous").(bool); anonymous {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Anonymous identities have no password",
		})
	}

	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Current and new password are required",
		})
	}

	user, err := services.GetUserByID(c.Context(), userID)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "userID", userID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to change password",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		slog.Info("Password change with wrong current password", "userID", userID)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Current password is incorrect",
		})
	}

	if err := services.SetUserPassword(c.Context(), userID, req.NewPassword); err != nil {
		slog.Error("Failed to set password", "error", err, "userID", userID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to change password",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Password changed",
	})
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset accepts a reset request. The response never
// reveals whether the account exists.
func RequestPasswordReset(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email is required",
		})
	}

	if user, err := services.GetUserByEmail(c.Context(), req.Email); err == nil {
		// TODO: send the reset email once a mail provider is wired up.
		slog.Info("Password reset requested", "userID", user.UserID)
	} else {
		slog.Info("Password reset requested for unknown email")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "If the account exists, reset instructions will be sent",
	})
}
