package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/R-Tharanka/sos-live-tracker-map/config"
	"github.com/R-Tharanka/sos-live-tracker-map/models"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]*models.SOSSession
	fetches   int
	logs      []models.AccessLog
	appendErr error
}

func newFakeSessions(sessions ...*models.SOSSession) *fakeSessions {
	f := &fakeSessions{sessions: make(map[string]*models.SOSSession)}
	for _, s := range sessions {
		f.sessions[s.SessionID] = s
	}
	return f
}

func (f *fakeSessions) FetchSession(ctx context.Context, sessionID string) (*models.SOSSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, services.ErrSessionNotFound
	}
	snapshot := *s
	return &snapshot, nil
}

func (f *fakeSessions) AppendAccessLog(ctx context.Context, sessionID string, entry models.AccessLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	if _, ok := f.sessions[sessionID]; !ok {
		return services.ErrSessionNotFound
	}
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeSessions) WatchSession(ctx context.Context, sessionID string) (<-chan services.SessionEvent, error) {
	ch := make(chan services.SessionEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeSessions) CreateSOSSession(ctx context.Context, userID string, info *models.UserInfo, loc *models.Location) (*models.SOSSession, error) {
	s := &models.SOSSession{SessionID: "generated", UserID: userID, Active: true, AccessToken: "issued", UserInfo: info, Location: loc}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.SessionID] = s
	return s, nil
}

func (f *fakeSessions) UpdateLocation(ctx context.Context, sessionID string, loc models.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return services.ErrSessionNotFound
	}
	s.Location = &loc
	return nil
}

func (f *fakeSessions) ResolveSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return services.ErrSessionNotFound
	}
	s.Active = false
	return nil
}

func (f *fakeSessions) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSessions) logCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

func (f *fakeSessions) logTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, entry := range f.logs {
		out = append(out, entry.Type)
	}
	return out
}

// fakeCredentials is an in-memory CredentialStore.
type fakeCredentials struct {
	mu sync.Mutex
	m  map[string]models.ViewerCredential
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{m: make(map[string]models.ViewerCredential)}
}

func (f *fakeCredentials) Save(ctx context.Context, viewerID string, cred models.ViewerCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[viewerID+"|"+cred.SessionID] = cred
	return nil
}

func (f *fakeCredentials) Lookup(ctx context.Context, viewerID, sessionID string) (models.ViewerCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.m[viewerID+"|"+sessionID]
	if !ok {
		return models.ViewerCredential{}, services.ErrCredentialNotFound
	}
	return cred, nil
}

func (f *fakeCredentials) Clear(ctx context.Context, viewerID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, viewerID+"|"+sessionID)
	return nil
}

func (f *fakeCredentials) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, cred := range f.m {
		out = append(out, cred.Token)
	}
	return out
}

func newTestApp(t *testing.T, store *fakeSessions, creds *fakeCredentials) *fiber.App {
	t.Helper()

	cfg := config.LoadConfig()
	InitHandlers(Deps{
		Store:       store,
		Credentials: creds,
		Validator:   services.NewAccessValidator(store, config.PolicyStrict),
		Config:      cfg,
	})

	app := fiber.New()
	app.Get("/session/:sessionID", HandleSessionAccess)
	app.Get("/map/:sessionID", HandleMapSession)
	app.Get("/api/sessions/:sessionID", HandlePollSession)
	app.Delete("/api/credentials/:sessionID", HandleClearCredential)
	return app
}

func activeSession() *models.SOSSession {
	return &models.SOSSession{
		SessionID:   "sess-1",
		UserID:      "user-1",
		Active:      true,
		AccessToken: "abc123",
		Location:    &models.Location{Latitude: 1.0, Longitude: 2.0, Accuracy: 15},
	}
}

func TestGateMissingTokenShortCircuits(t *testing.T) {
	store := newFakeSessions(activeSession())
	app := newTestApp(t, store, newFakeCredentials())

	resp, err := app.Test(httptest.NewRequest("GET", "/session/sess-1", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if store.fetchCount() != 0 {
		t.Errorf("missing token must fail before any fetch, saw %d", store.fetchCount())
	}
}

func TestGateAuthorizedRedirects(t *testing.T) {
	store := newFakeSessions(activeSession())
	creds := newFakeCredentials()
	app := newTestApp(t, store, creds)

	resp, err := app.Test(httptest.NewRequest("GET", "/session/sess-1?token=abc123", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if location != "/map/sess-1?token=abc123" {
		t.Errorf("unexpected redirect target %q", location)
	}

	tokens := creds.tokens()
	if len(tokens) != 1 || tokens[0] != "abc123" {
		t.Errorf("expected credential cached, got %v", tokens)
	}
	if store.logCount() != 1 {
		t.Errorf("expected one access-log entry, got %d", store.logCount())
	}
}

func TestGateTokenMismatch(t *testing.T) {
	store := newFakeSessions(activeSession())
	app := newTestApp(t, store, newFakeCredentials())

	resp, err := app.Test(httptest.NewRequest("GET", "/session/sess-1?token=wrong", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Invalid access link") {
		t.Errorf("expected invalid-link message, got %s", body)
	}
	if !strings.Contains(string(body), "/auth/login") {
		t.Errorf("expected sign-in recovery path, got %s", body)
	}
}

func TestGateSessionNotFound(t *testing.T) {
	store := newFakeSessions()
	app := newTestApp(t, store, newFakeCredentials())

	resp, err := app.Test(httptest.NewRequest("GET", "/session/missing?token=abc123", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "not found or expired") {
		t.Errorf("expected not-found message, got %s", body)
	}
}

func TestGateAuditFailureIsSwallowed(t *testing.T) {
	store := newFakeSessions(activeSession())
	store.appendErr = services.ErrSessionNotFound
	app := newTestApp(t, store, newFakeCredentials())

	resp, err := app.Test(httptest.NewRequest("GET", "/session/sess-1?token=abc123", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusFound {
		t.Errorf("audit failure must not block the viewer, got %d", resp.StatusCode)
	}
}
