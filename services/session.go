package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

const (
	SessionDuration   = 24 * time.Hour
	SessionCookieName = "session"
	ViewerCookieName  = "viewer_id"
)

const authSessionCollection = "auth_sessions"

// GenerateSessionID generates a secure random login-session ID
func GenerateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// CreateAuthSession creates a new login session in the database
func CreateAuthSession(ctx context.Context, userID, email string, isAnonymous bool, ipAddress, userAgent string) (*models.AuthSession, error) {
	sessionID, err := GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &models.AuthSession{
		ID:           primitive.NewObjectID(),
		SessionID:    sessionID,
		UserID:       userID,
		Email:        email,
		IsAnonymous:  isAnonymous,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(SessionDuration),
		IsActive:     true,
	}

	collection := GetDatabase().Collection(authSessionCollection)
	if _, err := collection.InsertOne(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetAuthSessionByID retrieves an active, unexpired login session
func GetAuthSessionByID(ctx context.Context, sessionID string) (*models.AuthSession, error) {
	collection := GetDatabase().Collection(authSessionCollection)

	var session models.AuthSession
	err := collection.FindOne(ctx, bson.M{
		"session_id": sessionID,
		"is_active":  true,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&session)

	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// Update last accessed time
	_, err = collection.UpdateOne(
		ctx,
		bson.M{"_id": session.ID},
		bson.M{"$set": bson.M{"last_accessed": time.Now()}},
	)
	if err != nil {
		slog.Error("Failed to update session last accessed time", "error", err)
	}

	return &session, nil
}

// ExtendAuthSession extends the expiration time of a login session
func ExtendAuthSession(ctx context.Context, sessionID string) error {
	collection := GetDatabase().Collection(authSessionCollection)

	_, err := collection.UpdateOne(
		ctx,
		bson.M{
			"session_id": sessionID,
			"is_active":  true,
		},
		bson.M{
			"$set": bson.M{
				"last_accessed": time.Now(),
				"expires_at":    time.Now().Add(SessionDuration),
			},
		},
	)

	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}

	return nil
}

// DestroyAuthSession marks a login session as inactive
func DestroyAuthSession(ctx context.Context, sessionID string) error {
	collection := GetDatabase().Collection(authSessionCollection)

	_, err := collection.UpdateOne(
		ctx,
		bson.M{"session_id": sessionID},
		bson.M{
			"$set": bson.M{
				"is_active":  false,
				"expires_at": time.Now(),
			},
		},
	)

	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	return nil
}

// CleanupExpiredAuthSessions removes expired login sessions
func CleanupExpiredAuthSessions(ctx context.Context) (int64, error) {
	collection := GetDatabase().Collection(authSessionCollection)

	// Delete sessions that have expired more than 7 days ago
	cutoffTime := time.Now().Add(-7 * 24 * time.Hour)

	result, err := collection.DeleteMany(
		ctx,
		bson.M{
			"expires_at": bson.M{"$lt": cutoffTime},
		},
	)

	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}

	return result.DeletedCount, nil
}

// CreateAuthSessionIndexes creates indexes for the login sessions collection
func CreateAuthSessionIndexes(ctx context.Context) error {
	collection := GetDatabase().Collection(authSessionCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.M{"session_id": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"user_id": 1},
		},
		{
			Keys: bson.M{"expires_at": 1},
		},
		{
			Keys: bson.M{"is_active": 1, "expires_at": 1},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	return nil
}
