package services

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

func setupTestCredentials(t *testing.T) (*RedisCredentials, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisCredentials("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create credential store: %v", err)
	}
	return store, s
}

func TestSaveAndLookupCredential(t *testing.T) {
	store, s := setupTestCredentials(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	cred := models.ViewerCredential{SessionID: "sess-1", Token: "abc123"}

	if err := store.Save(ctx, "viewer-1", cred); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Lookup(ctx, "viewer-1", "sess-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Token != "abc123" {
		t.Errorf("expected token abc123, got %q", got.Token)
	}
	if got.SavedAt == 0 {
		t.Error("expected SavedAt to be stamped")
	}
}

func TestLookupMissingCredential(t *testing.T) {
	store, s := setupTestCredentials(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Lookup(context.Background(), "viewer-1", "sess-1")
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestSaveOverwritesCredential(t *testing.T) {
	store, s := setupTestCredentials(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "viewer-1", models.ViewerCredential{SessionID: "sess-1", Token: "old"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "viewer-1", models.ViewerCredential{SessionID: "sess-1", Token: "new"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Lookup(ctx, "viewer-1", "sess-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Token != "new" {
		t.Errorf("URL-supplied token must overwrite the cache, got %q", got.Token)
	}
}

func TestClearCredential(t *testing.T) {
	store, s := setupTestCredentials(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "viewer-1", models.ViewerCredential{SessionID: "sess-1", Token: "abc123"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Clear(ctx, "viewer-1", "sess-1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "viewer-1", "sess-1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound after clear, got %v", err)
	}
}

func TestClearMissingCredential(t *testing.T) {
	store, s := setupTestCredentials(t)
	defer store.Close()
	defer s.Close()

	if err := store.Clear(context.Background(), "viewer-1", "sess-1"); err != nil {
		t.Errorf("Clear of a missing credential should not error: %v", err)
	}
}

func TestCredentialIsolation(t *testing.T) {
	store, s := setupTestCredentials(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	store.Save(ctx, "viewer-1", models.ViewerCredential{SessionID: "sess-1", Token: "one"})
	store.Save(ctx, "viewer-2", models.ViewerCredential{SessionID: "sess-1", Token: "two"})
	store.Save(ctx, "viewer-1", models.ViewerCredential{SessionID: "sess-2", Token: "three"})

	got, err := store.Lookup(ctx, "viewer-1", "sess-1")
	if err != nil || got.Token != "one" {
		t.Errorf("viewer-1/sess-1: got %q, %v", got.Token, err)
	}
	got, err = store.Lookup(ctx, "viewer-2", "sess-1")
	if err != nil || got.Token != "two" {
		t.Errorf("viewer-2/sess-1: got %q, %v", got.Token, err)
	}
	got, err = store.Lookup(ctx, "viewer-1", "sess-2")
	if err != nil || got.Token != "three" {
		t.Errorf("viewer-1/sess-2: got %q, %v", got.Token, err)
	}
}
