package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newAuthTestApp() *fiber.App {
	app := fiber.New()
	app.Post("/auth/register", Register)
	app.Post("/auth/password", func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		c.Locals("is_anonymous", false)
		return c.Next()
	}, ChangePassword)
	app.Post("/auth/password/anonymous", func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		c.Locals("is_anonymous", true)
		return c.Next()
	}, ChangePassword)
	return app
}

func TestRegisterRequiresEmailAndPassword(t *testing.T) {
	app := newAuthTestApp()

	req := httptest.NewRequest("POST", "/auth/register", strings.NewReader(`{"email":"a@b.c"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400 without password, got %d", resp.StatusCode)
	}
}

func TestChangePasswordRequiresBothPasswords(t *testing.T) {
	app := newAuthTestApp()

	req := httptest.NewRequest("POST", "/auth/password", strings.NewReader(`{"new_password":"next"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400 without current password, got %d", resp.StatusCode)
	}
}

func TestChangePasswordRejectsAnonymous(t *testing.T) {
	app := newAuthTestApp()

	req := httptest.NewRequest("POST", "/auth/password/anonymous",
		strings.NewReader(`{"current_password":"prev","new_password":"next"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("anonymous identity must not change a password, got %d", resp.StatusCode)
	}
}
