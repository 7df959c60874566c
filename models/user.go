package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a signed-in viewer account. Emergency contacts who
// sign in get the live push channel; anonymous identities are ephemeral
// accounts created on demand so a contact can use the push channel
// without registering.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   string             `bson:"user_id" json:"user_id"`
	Email    string             `bson:"email,omitempty" json:"email,omitempty"`
	FullName string             `bson:"full_name,omitempty" json:"full_name,omitempty"`

	// Authentication
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`
	IsAnonymous  bool   `bson:"is_anonymous" json:"is_anonymous"`

	// Status
	IsActive  bool      `bson:"is_active" json:"is_active"`
	LastLogin time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
