package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Access log entry types
const (
	AccessLogLinkOpened  = "link_opened"
	AccessLogMapViewed   = "map_viewed"
	AccessLogPollStarted = "poll_started"
)

// Location is the last reported position of the distressed user.
// It is overwritten in place on every update; no history is kept here.
type Location struct {
	Latitude  float64   `bson:"latitude" json:"latitude"`
	Longitude float64   `bson:"longitude" json:"longitude"`
	Accuracy  float64   `bson:"accuracy,omitempty" json:"accuracy,omitempty"` // meters, 0 = unknown
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// UserInfo is the medical profile shown to emergency contacts.
type UserInfo struct {
	Name              string   `bson:"name,omitempty" json:"name,omitempty"`
	BloodType         string   `bson:"blood_type,omitempty" json:"blood_type,omitempty"`
	Age               int      `bson:"age,omitempty" json:"age,omitempty"`
	MedicalConditions []string `bson:"medical_conditions,omitempty" json:"medical_conditions,omitempty"`
	Allergies         []string `bson:"allergies,omitempty" json:"allergies,omitempty"`
	Medications       []string `bson:"medications,omitempty" json:"medications,omitempty"`
	Notes             string   `bson:"notes,omitempty" json:"notes,omitempty"`
}

// AccessLog is one audit entry on a session document. Entries are
// append-only; prior entries are never rewritten.
type AccessLog struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Type      string    `bson:"type" json:"type"`
	HasToken  bool      `bson:"has_token" json:"has_token"`
}

// SOSSession is the remote document representing one emergency event.
// AccessToken may be absent in documents created before token issuance
// was introduced; access policy decides how to treat those.
type SOSSession struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	Active      bool               `bson:"active" json:"active"`
	AccessToken string             `bson:"access_token,omitempty" json:"-"`
	Location    *Location          `bson:"location,omitempty" json:"location,omitempty"`
	UserInfo    *UserInfo          `bson:"user_info,omitempty" json:"user_info,omitempty"`
	AccessLogs  []AccessLog        `bson:"access_logs,omitempty" json:"access_logs,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	ResolvedAt  *time.Time         `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

// HasAccessToken reports whether the document carries a token field at
// all, as opposed to carrying an empty one.
func (s *SOSSession) HasAccessToken() bool {
	return s.AccessToken != ""
}

// ViewerCredential is the client-local {session, token} pair cached per
// viewer so a reload or an in-app navigation keeps working without the
// original link. The URL query parameter remains the canonical carrier.
type ViewerCredential struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	SavedAt   int64  `json:"saved_at"`
}
