package services

import (
	"testing"
	"time"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

func newHubConn(sessionID, viewerID, socketID string) *ViewerConnection {
	return &ViewerConnection{
		SocketID:  socketID,
		SessionID: sessionID,
		ViewerID:  viewerID,
		Send:      make(chan []byte, 8),
	}
}

func sendOpen(conn *ViewerConnection) bool {
	select {
	case _, ok := <-conn.Send:
		return ok
	default:
		return true
	}
}

func TestHubSameViewerTwoTabs(t *testing.T) {
	stream := &fakeStream{events: make(chan SessionEvent, 4)}
	hub := newSessionHub(stream)

	// Two tabs from the same browser share the viewer cookie but get
	// distinct socket IDs.
	tab1 := newHubConn("sess-1", "viewer-1", "sock-1")
	tab2 := newHubConn("sess-1", "viewer-1", "sock-2")
	hub.Join(tab1)
	hub.Join(tab2)

	if got := hub.ViewerCount("sess-1"); got != 2 {
		t.Fatalf("expected 2 registered connections, got %d", got)
	}

	hub.Leave("sess-1", "sock-1")

	if got := hub.ViewerCount("sess-1"); got != 1 {
		t.Errorf("expected 1 connection after one tab left, got %d", got)
	}
	if !sendOpen(tab2) {
		t.Error("closing one tab must not close the other tab's channel")
	}

	// The shared watcher must survive while a connection remains.
	hub.mu.RLock()
	_, running := hub.watchers["sess-1"]
	hub.mu.RUnlock()
	if !running {
		t.Error("watcher stopped while a viewer is still connected")
	}

	// A frame delivered now must reach the surviving tab.
	stream.events <- SessionEvent{Session: &models.SOSSession{
		SessionID: "sess-1",
		Active:    true,
		Location:  &models.Location{Latitude: 3.0, Longitude: 4.0},
	}}
	select {
	case frame, ok := <-tab2.Send:
		if !ok {
			t.Fatal("surviving tab's channel closed")
		}
		if len(frame) == 0 {
			t.Fatal("empty frame delivered")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("surviving tab received no update")
	}

	hub.Leave("sess-1", "sock-2")

	if got := hub.ViewerCount("sess-1"); got != 0 {
		t.Errorf("expected empty registry, got %d", got)
	}
	hub.mu.RLock()
	_, running = hub.watchers["sess-1"]
	hub.mu.RUnlock()
	if running {
		t.Error("watcher still running after the last tab left")
	}
}

func TestHubLeaveUnknownSocketIsNoop(t *testing.T) {
	stream := &fakeStream{events: make(chan SessionEvent, 4)}
	hub := newSessionHub(stream)

	tab := newHubConn("sess-1", "viewer-1", "sock-1")
	hub.Join(tab)

	hub.Leave("sess-1", "sock-other")

	if got := hub.ViewerCount("sess-1"); got != 1 {
		t.Errorf("unknown socket must not evict anyone, got %d", got)
	}
	if !sendOpen(tab) {
		t.Error("unknown socket must not close a live channel")
	}

	hub.Leave("sess-1", "sock-1")
}

func TestHubSendToSocketTargetsOneConnection(t *testing.T) {
	stream := &fakeStream{events: make(chan SessionEvent, 4)}
	hub := newSessionHub(stream)

	tab1 := newHubConn("sess-1", "viewer-1", "sock-1")
	tab2 := newHubConn("sess-1", "viewer-1", "sock-2")
	hub.Join(tab1)
	hub.Join(tab2)
	defer hub.Leave("sess-1", "sock-1")
	defer hub.Leave("sess-1", "sock-2")

	if err := hub.SendToSocket("sess-1", "sock-2", []byte("hello")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case frame := <-tab2.Send:
		if string(frame) != "hello" {
			t.Errorf("unexpected frame %q", frame)
		}
	default:
		t.Fatal("target socket received nothing")
	}
	select {
	case <-tab1.Send:
		t.Fatal("frame leaked to the other tab")
	default:
	}

	if err := hub.SendToSocket("sess-1", "sock-missing", nil); err != ErrConnectionNotFound {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
}
