package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

const userCollection = "users"

// CreateUser creates a new viewer account with a hashed password
func CreateUser(ctx context.Context, email, password, fullName string) (*models.User, error) {
	collection := database.Collection(userCollection)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	// Check if user already exists with the same email
	switch err := collection.FindOne(ctx, bson.M{"email": email}).Err(); {
	case err == nil:
		return nil, fmt.Errorf("user already exists with this email")
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		ID:           primitive.NewObjectID(),
		UserID:       uuid.New().String(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		IsAnonymous:  false,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := collection.InsertOne(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User created",
		"userID", user.UserID,
		"email", user.Email,
	)
	return user, nil
}

// CreateAnonymousUser creates an ephemeral identity so an emergency
// contact can use the live push channel without registering.
func CreateAnonymousUser(ctx context.Context) (*models.User, error) {
	collection := database.Collection(userCollection)

	now := time.Now()
	user := &models.User{
		ID:          primitive.NewObjectID(),
		UserID:      uuid.New().String(),
		IsAnonymous: true,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := collection.InsertOne(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create anonymous user: %w", err)
	}

	slog.Info("Anonymous user created", "userID", user.UserID)
	return user, nil
}

// GetUserByEmail retrieves a user by email
func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	collection := database.Collection(userCollection)

	var user models.User
	err := collection.FindOne(ctx, bson.M{
		"email": strings.ToLower(strings.TrimSpace(email)),
	}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByID retrieves a user by its user ID
func GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	collection := database.Collection(userCollection)

	var user models.User
	err := collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// UpdateUserLastLogin updates the last login timestamp
func UpdateUserLastLogin(ctx context.Context, userID string) error {
	collection := database.Collection(userCollection)

	_, err := collection.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"last_login": time.Now(),
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// SetUserPassword replaces a user's password hash. Used by the
// reset-password flow after the reset request is verified.
func SetUserPassword(ctx context.Context, userID, newPassword string) error {
	collection := database.Collection(userCollection)

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := collection.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"password_hash": string(hash),
			"updated_at":    time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user not found")
	}

	slog.Info("User password updated", "userID", userID)
	return nil
}
