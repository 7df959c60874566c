package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

// ErrCredentialNotFound is returned when a viewer has no cached token
// for a session.
var ErrCredentialNotFound = errors.New("viewer credential not found")

// CredentialStore is the narrow contract the gate and the map surface
// depend on for cached viewer credentials. It carries no policy.
type CredentialStore interface {
	Save(ctx context.Context, viewerID string, cred models.ViewerCredential) error
	Lookup(ctx context.Context, viewerID, sessionID string) (models.ViewerCredential, error)
	Clear(ctx context.Context, viewerID, sessionID string) error
}

// Credentials never expire from the viewer's perspective; the TTL is
// housekeeping so abandoned browsers don't accumulate keys forever.
const credentialTTL = 180 * 24 * time.Hour

// RedisCredentials is the Redis-backed credential cache, one key per
// (viewer, session) pair.
type RedisCredentials struct {
	client *redis.Client
	prefix string
}

// NewRedisCredentials connects to Redis and returns the store.
func NewRedisCredentials(redisURL string) (*RedisCredentials, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCredentials{client: client, prefix: "cred:"}, nil
}

// NewRedisCredentialsWithClient creates a store from an existing client.
func NewRedisCredentialsWithClient(client *redis.Client) *RedisCredentials {
	return &RedisCredentials{client: client, prefix: "cred:"}
}

func (s *RedisCredentials) key(viewerID, sessionID string) string {
	return s.prefix + viewerID + ":" + sessionID
}

// Save stores a viewer's credential for one session, overwriting any
// previously stored token for the same session.
func (s *RedisCredentials) Save(ctx context.Context, viewerID string, cred models.ViewerCredential) error {
	if cred.SavedAt == 0 {
		cred.SavedAt = time.Now().Unix()
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	if err := s.client.Set(ctx, s.key(viewerID, cred.SessionID), data, credentialTTL).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Lookup retrieves a viewer's cached credential for a session.
func (s *RedisCredentials) Lookup(ctx context.Context, viewerID, sessionID string) (models.ViewerCredential, error) {
	data, err := s.client.Get(ctx, s.key(viewerID, sessionID)).Result()
	if err == redis.Nil {
		return models.ViewerCredential{}, ErrCredentialNotFound
	}
	if err != nil {
		return models.ViewerCredential{}, fmt.Errorf("lookup credential: %w", err)
	}

	var cred models.ViewerCredential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return models.ViewerCredential{}, fmt.Errorf("unmarshal credential: %w", err)
	}
	return cred, nil
}

// Clear removes a cached credential. Used by the debug/reset action;
// credentials are otherwise never expired client-side.
func (s *RedisCredentials) Clear(ctx context.Context, viewerID, sessionID string) error {
	if err := s.client.Del(ctx, s.key(viewerID, sessionID)).Err(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisCredentials) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisCredentials) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
