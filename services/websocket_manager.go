package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

// WebSocket errors
var (
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrConnectionBufferFull = errors.New("connection buffer full")
)

// SessionHub fans live session updates out to every signed-in viewer
// watching the same emergency. One push-mode watcher runs per session
// while at least one viewer is connected; it is torn down when the
// last viewer leaves.
type SessionHub struct {
	stream SessionStream

	mu sync.RWMutex
	// viewers is keyed session ID -> socket ID. The socket ID is minted
	// per connection; the viewer cookie is shared across tabs, so it
	// cannot key the registry without one tab's close tearing down
	// another tab's live channel.
	viewers  map[string]map[string]*ViewerConnection
	watchers map[string]*SessionWatcher
}

// ViewerConnection represents a single WebSocket connection. SocketID
// is unique per connection; ViewerID identifies the browser and may be
// shared by several connections.
type ViewerConnection struct {
	Conn      *websocket.Conn
	SocketID  string
	SessionID string
	ViewerID  string
	UserID    string
	Send      chan []byte
}

// MessagePayload is the frame format sent to viewers.
type MessagePayload struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// SessionUpdateData is the payload of a session_update frame.
type SessionUpdateData struct {
	View models.SessionView `json:"view"`
	Map  models.MapState    `json:"map"`
}

var sessionHub *SessionHub
var hubOnce sync.Once

func newSessionHub(stream SessionStream) *SessionHub {
	return &SessionHub{
		stream:   stream,
		viewers:  make(map[string]map[string]*ViewerConnection),
		watchers: make(map[string]*SessionWatcher),
	}
}

// InitSessionHub creates the singleton hub bound to the document
// stream. Must run before GetSessionHub.
func InitSessionHub(stream SessionStream) *SessionHub {
	hubOnce.Do(func() {
		sessionHub = newSessionHub(stream)
	})
	return sessionHub
}

// GetSessionHub returns the singleton hub.
func GetSessionHub() *SessionHub {
	return sessionHub
}

// Join registers a viewer connection and ensures a watcher is running
// for its session.
func (h *SessionHub) Join(conn *ViewerConnection) {
	h.mu.Lock()

	if h.viewers[conn.SessionID] == nil {
		h.viewers[conn.SessionID] = make(map[string]*ViewerConnection)
	}
	h.viewers[conn.SessionID][conn.SocketID] = conn

	var watcher *SessionWatcher
	if _, running := h.watchers[conn.SessionID]; !running {
		sessionID := conn.SessionID
		watcher = NewPushWatcher(h.stream, sessionID,
			func(view models.SessionView, state models.MapState) {
				h.broadcast(sessionID, MessagePayload{
					Type:      "session_update",
					SessionID: sessionID,
					Data:      SessionUpdateData{View: view, Map: state},
					Timestamp: time.Now().Unix(),
				})
			},
			func(reason AccessReason, err error) {
				frameType := "subscription_error"
				if reason == ReasonNotFound {
					frameType = "session_expired"
				}
				h.broadcast(sessionID, MessagePayload{
					Type:      frameType,
					SessionID: sessionID,
					Message:   reason.Message(),
					Timestamp: time.Now().Unix(),
				})
			},
		)
		h.watchers[conn.SessionID] = watcher
	}

	total := len(h.viewers[conn.SessionID])
	h.mu.Unlock()

	if watcher != nil {
		watcher.Start()
	}

	slog.Info("Viewer joined live session",
		"sessionID", conn.SessionID,
		"viewerID", conn.ViewerID,
		"socketID", conn.SocketID,
		"totalViewers", total,
	)
}

// Leave removes one socket's registration; the session watcher stops
// when no connections remain. Only the departing socket's channel is
// closed, never another tab's.
func (h *SessionHub) Leave(sessionID, socketID string) {
	h.mu.Lock()

	var stopped *SessionWatcher
	if conns, exists := h.viewers[sessionID]; exists {
		if conn, exists := conns[socketID]; exists {
			close(conn.Send)
			delete(conns, socketID)
		}
		if len(conns) == 0 {
			delete(h.viewers, sessionID)
			stopped = h.watchers[sessionID]
			delete(h.watchers, sessionID)
		}
	}
	remaining := len(h.viewers[sessionID])
	h.mu.Unlock()

	if stopped != nil {
		stopped.Stop()
	}

	slog.Info("Viewer left live session",
		"sessionID", sessionID,
		"socketID", socketID,
		"remainingViewers", remaining,
	)
}

// broadcast sends a frame to every viewer of a session. Slow viewers
// with a full buffer are skipped rather than blocked on.
func (h *SessionHub) broadcast(sessionID string, payload MessagePayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal WebSocket frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.viewers[sessionID] {
		select {
		case conn.Send <- data:
		default:
			slog.Warn("WebSocket connection buffer full",
				"sessionID", sessionID,
				"viewerID", conn.ViewerID,
			)
		}
	}
}

// SendToSocket sends a frame to one specific connection.
func (h *SessionHub) SendToSocket(sessionID, socketID string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if conns, exists := h.viewers[sessionID]; exists {
		if conn, exists := conns[socketID]; exists {
			select {
			case conn.Send <- data:
				return nil
			default:
				return ErrConnectionBufferFull
			}
		}
	}
	return ErrConnectionNotFound
}

// ViewerCount returns the number of live viewers for a session.
func (h *SessionHub) ViewerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers[sessionID])
}
