package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthSession is a signed-in viewer's login session, carried in a
// cookie and stored server-side. Unrelated to SOSSession, which is the
// emergency document itself.
type AuthSession struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID    string             `bson:"session_id" json:"session_id"`
	UserID       string             `bson:"user_id" json:"user_id"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"`
	IsAnonymous  bool               `bson:"is_anonymous" json:"is_anonymous"`
	IPAddress    string             `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent    string             `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	LastAccessed time.Time          `bson:"last_accessed" json:"last_accessed"`
	ExpiresAt    time.Time          `bson:"expires_at" json:"expires_at"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
}
