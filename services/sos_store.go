package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

const sosCollectionName = "sos_sessions"

// ErrSessionNotFound is returned when no document exists for a session
// ID. Callers must be able to tell this apart from transport failure.
var ErrSessionNotFound = errors.New("sos session not found")

// SessionSource is the single-shot read side of the document store.
type SessionSource interface {
	FetchSession(ctx context.Context, sessionID string) (*models.SOSSession, error)
}

// SessionAudit appends access-log entries to a session document.
// Appends are additive; prior entries are never overwritten.
type SessionAudit interface {
	AppendAccessLog(ctx context.Context, sessionID string, entry models.AccessLog) error
}

// SessionEvent is one delivery on a push subscription: a document
// snapshot, a gone notification, or a stream failure.
type SessionEvent struct {
	Session *models.SOSSession
	Gone    bool
	Err     error
}

// SessionStream is the subscribe/push side of the document store. The
// returned channel delivers at least the latest committed state, then
// subsequent changes, until the context is cancelled; it is closed on
// teardown.
type SessionStream interface {
	WatchSession(ctx context.Context, sessionID string) (<-chan SessionEvent, error)
}

// MongoSessions is the MongoDB-backed session document store.
type MongoSessions struct {
	db *mongo.Database
}

// NewMongoSessions creates the store against an initialized database.
func NewMongoSessions(db *mongo.Database) *MongoSessions {
	return &MongoSessions{db: db}
}

func (s *MongoSessions) collection() *mongo.Collection {
	return s.db.Collection(sosCollectionName)
}

// GenerateAccessToken generates the shared-secret access token issued
// at session creation.
func GenerateAccessToken() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateSOSSessionID generates a session identifier for a new
// emergency event.
func GenerateSOSSessionID() (string, error) {
	bytes := make([]byte, 12)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// CreateSOSSession creates a new emergency session document and issues
// its access token.
func (s *MongoSessions) CreateSOSSession(ctx context.Context, userID string, info *models.UserInfo, loc *models.Location) (*models.SOSSession, error) {
	sessionID, err := GenerateSOSSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	token, err := GenerateAccessToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := time.Now()
	session := &models.SOSSession{
		SessionID:   sessionID,
		UserID:      userID,
		Active:      true,
		AccessToken: token,
		Location:    loc,
		UserInfo:    info,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.collection().InsertOne(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create sos session: %w", err)
	}

	slog.Info("SOS session created",
		"sessionID", sessionID,
		"userID", userID,
	)
	return session, nil
}

// FetchSession fetches a session document by session ID. Returns
// ErrSessionNotFound when no document exists; any other error is a
// transport failure.
func (s *MongoSessions) FetchSession(ctx context.Context, sessionID string) (*models.SOSSession, error) {
	res := s.collection().FindOne(ctx, bson.M{"session_id": sessionID})

	raw, err := res.Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to fetch sos session: %w", err)
	}

	return models.DecodeSOSSession(raw)
}

// PatchSession applies a field-mask partial update. Only the listed
// fields change; the update timestamp always advances.
func (s *MongoSessions) PatchSession(ctx context.Context, sessionID string, fields bson.M) error {
	set := bson.M{"updated_at": time.Now()}
	for k, v := range fields {
		set[k] = v
	}

	result, err := s.collection().UpdateOne(
		ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to patch sos session: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateLocation overwrites the session's location in place.
func (s *MongoSessions) UpdateLocation(ctx context.Context, sessionID string, loc models.Location) error {
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	return s.PatchSession(ctx, sessionID, bson.M{"location": loc})
}

// ResolveSession marks the emergency as resolved. The document is kept.
func (s *MongoSessions) ResolveSession(ctx context.Context, sessionID string) error {
	now := time.Now()
	return s.PatchSession(ctx, sessionID, bson.M{
		"active":      false,
		"resolved_at": now,
	})
}

// AppendAccessLog appends one audit entry via $push so earlier entries
// are never rewritten. Callers treat failures as non-critical.
func (s *MongoSessions) AppendAccessLog(ctx context.Context, sessionID string, entry models.AccessLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	result, err := s.collection().UpdateOne(
		ctx,
		bson.M{"session_id": sessionID},
		bson.M{
			"$push": bson.M{"access_logs": entry},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// WatchSession opens a change-stream subscription scoped to one session
// document. The current committed state is delivered first, then every
// subsequent change, until ctx is cancelled.
func (s *MongoSessions) WatchSession(ctx context.Context, sessionID string) (<-chan SessionEvent, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "fullDocument.session_id", Value: sessionID},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := s.collection().Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	ch := make(chan SessionEvent, 8)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		emit := func(ev SessionEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Deliver the state committed before the stream opened, so a
		// viewer joining after the last update still sees something.
		current, err := s.FetchSession(ctx, sessionID)
		switch {
		case err == nil:
			if !emit(SessionEvent{Session: current}) {
				return
			}
		case errors.Is(err, ErrSessionNotFound):
			if !emit(SessionEvent{Gone: true}) {
				return
			}
		default:
			if !emit(SessionEvent{Err: err}) {
				return
			}
		}

		for stream.Next(ctx) {
			var change struct {
				OperationType string   `bson:"operationType"`
				FullDocument  bson.Raw `bson:"fullDocument"`
			}
			if err := stream.Decode(&change); err != nil {
				if !emit(SessionEvent{Err: err}) {
					return
				}
				continue
			}

			if change.OperationType == "delete" {
				if !emit(SessionEvent{Gone: true}) {
					return
				}
				continue
			}
			if len(change.FullDocument) == 0 {
				continue
			}

			doc, err := models.DecodeSOSSession(change.FullDocument)
			if err != nil {
				if !emit(SessionEvent{Err: err}) {
					return
				}
				continue
			}
			if !emit(SessionEvent{Session: doc}) {
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			emit(SessionEvent{Err: err})
		}
	}()

	return ch, nil
}
