package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

// SocketMessage represents an incoming WebSocket message
type SocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionSocketUpgrade validates the viewer before the connection is
// upgraded: the push channel carries the same token requirement as
// every other path. Runs behind RequireAuth.
func SessionSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return accessFailure(c, services.ReasonMapInitError)
	}

	sessionID := c.Params("sessionID")
	token := resolveToken(c, sessionID)
	if token == "" {
		return accessFailure(c, services.ReasonMissingToken)
	}

	result := validator.Validate(c.Context(), sessionID, token)
	if !result.Authorized {
		return accessFailure(c, result.Reason)
	}

	c.Locals("allowed", true)
	c.Locals("sos_session_id", sessionID)
	c.Locals("viewer_id", viewerID(c))
	return c.Next()
}

// HandleSessionSocket runs one live-viewer connection. The hub owns
// the change-stream watcher; this handler only pumps frames in and
// out and guarantees the viewer is deregistered on any exit.
func HandleSessionSocket(c *websocket.Conn) {
	sessionID, ok := c.Locals("sos_session_id").(string)
	if !ok || sessionID == "" {
		slog.Error("WebSocket connection without session ID")
		c.Close()
		return
	}

	viewer, _ := c.Locals("viewer_id").(string)
	if viewer == "" {
		viewer = uuid.New().String()
	}
	userID, _ := c.Locals("user_id").(string)

	// The socket ID is minted per connection. The viewer cookie is
	// shared across tabs and must not key the hub registry.
	socketID := uuid.New().String()

	conn := &services.ViewerConnection{
		Conn:      c,
		SocketID:  socketID,
		SessionID: sessionID,
		ViewerID:  viewer,
		UserID:    userID,
		Send:      make(chan []byte, 256),
	}

	hub := services.GetSessionHub()
	hub.Join(conn)
	defer hub.Leave(sessionID, socketID)

	slog.Info("WebSocket connection established",
		"sessionID", sessionID,
		"viewerID", viewer,
		"socketID", socketID,
		"viewers", hub.ViewerCount(sessionID),
	)

	welcome := services.MessagePayload{
		Type:      "connected",
		SessionID: sessionID,
		Message:   "Live updates connected",
		Timestamp: time.Now().Unix(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		if err := hub.SendToSocket(sessionID, socketID, data); err != nil {
			slog.Warn("Failed to queue welcome frame", "sessionID", sessionID, "error", err)
		}
	}

	// Opportunistic audit entry for the live channel.
	logCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.AppendAccessLog(logCtx, sessionID, models.AccessLog{
		Type:     models.AccessLogMapViewed,
		HasToken: true,
	}); err != nil {
		slog.Error("Failed to append access log", "sessionID", sessionID, "error", err)
	}
	cancel()

	go handleSocketSend(conn)
	handleSocketReceive(conn)
}

// handleSocketSend pushes hub frames to the client and keeps the
// connection alive with pings.
func handleSocketSend(conn *services.ViewerConnection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSocketReceive drains client frames until the connection drops.
func handleSocketReceive(conn *services.ViewerConnection) {
	defer conn.Conn.Close()

	conn.Conn.SetReadLimit(64 * 1024)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg SocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to parse WebSocket message", "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			pong := services.MessagePayload{Type: "pong", Timestamp: time.Now().Unix()}
			if data, err := json.Marshal(pong); err == nil {
				conn.Send <- data
			}

		default:
			slog.Warn("Unknown WebSocket message type",
				"type", msg.Type,
				"sessionID", conn.SessionID,
			)
		}
	}
}
