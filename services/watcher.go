package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

// SessionWatcher keeps a view model current for one map surface. It
// runs one of two acquisition strategies behind the same callback
// contract: a push subscription (signed-in viewers) or fixed-interval
// polling (anonymous viewers). Callbacks never overlap and are never
// invoked for results that complete after teardown.
type SessionWatcher struct {
	sessionID string

	onUpdate func(models.SessionView, models.MapState)
	onError  func(AccessReason, error)

	run func(ctx context.Context)

	// cbMu serializes callback delivery; poll ticks run on their own
	// goroutines so a hung fetch cannot stall the timer.
	cbMu sync.Mutex

	mu       sync.Mutex
	state    models.MapState
	rendered bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPushWatcher creates a watcher that relays a change-stream
// subscription. The stream itself delivers the current state first.
func NewPushWatcher(stream SessionStream, sessionID string,
	onUpdate func(models.SessionView, models.MapState),
	onError func(AccessReason, error)) *SessionWatcher {

	w := &SessionWatcher{
		sessionID: sessionID,
		onUpdate:  onUpdate,
		onError:   onError,
	}
	w.run = func(ctx context.Context) {
		events, err := stream.WatchSession(ctx, sessionID)
		if err != nil {
			if ctx.Err() == nil {
				w.onError(ReasonSubscriptionError, err)
			}
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				w.handlePush(ctx, ev)
			}
		}
	}
	return w
}

// NewPollWatcher creates a watcher that validates and fetches on a
// fixed interval. Each tick is a fresh attempt, evaluated on its own
// goroutine so a hung fetch never blocks the timer.
func NewPollWatcher(validator *AccessValidator, sessionID, token string, interval time.Duration,
	onUpdate func(models.SessionView, models.MapState),
	onError func(AccessReason, error)) *SessionWatcher {

	if interval <= 0 {
		interval = 4 * time.Second
	}

	w := &SessionWatcher{
		sessionID: sessionID,
		onUpdate:  onUpdate,
		onError:   onError,
	}
	w.run = func(ctx context.Context) {
		// Immediate first fetch. Like every tick it runs on its own
		// goroutine, so a hung first request cannot delay the timer.
		go w.pollOnce(ctx, validator, token)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				go w.pollOnce(ctx, validator, token)
			}
		}
	}
	return w
}

// Start launches the watcher. Call Stop to tear it down.
func (w *SessionWatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.run(ctx)
	}()
}

// Stop cancels the subscription or polling loop and waits for the
// acquisition goroutine to finish. Results that arrive after Stop are
// discarded, never applied to the torn-down surface.
func (w *SessionWatcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Rendered reports whether at least one successful render happened.
func (w *SessionWatcher) Rendered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rendered
}

// State returns a copy of the current render state.
func (w *SessionWatcher) State() models.MapState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *SessionWatcher) handlePush(ctx context.Context, ev SessionEvent) {
	switch {
	case ev.Err != nil:
		slog.Error("Push subscription error",
			"sessionID", w.sessionID,
			"error", ev.Err,
		)
		w.onError(ReasonSubscriptionError, ev.Err)
	case ev.Gone:
		w.onError(ReasonNotFound, ErrSessionNotFound)
	case ev.Session != nil:
		w.apply(ctx, ev.Session)
	}
}

func (w *SessionWatcher) pollOnce(ctx context.Context, validator *AccessValidator, token string) {
	result := validator.Validate(ctx, w.sessionID, token)

	// The surface may have been torn down while the fetch was in
	// flight; a late result must not touch it.
	if ctx.Err() != nil {
		return
	}

	if result.Authorized {
		w.apply(ctx, result.Session)
		return
	}

	// A failed tick never regresses an already-rendered view. The next
	// tick is a fresh attempt.
	w.mu.Lock()
	rendered := w.rendered
	w.mu.Unlock()
	if rendered {
		slog.Info("Poll tick failed after successful render, keeping view",
			"sessionID", w.sessionID,
			"reason", result.Reason,
		)
		return
	}

	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	w.onError(result.Reason, result.Err)
}

func (w *SessionWatcher) apply(ctx context.Context, session *models.SOSSession) {
	if ctx.Err() != nil {
		return
	}

	view := models.NewSessionView(session)

	// cbMu spans the state write and its delivery, so a slow tick can
	// never deliver a snapshot older than one already delivered.
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	w.state.Apply(view)
	w.rendered = true
	state := w.state
	w.mu.Unlock()

	w.onUpdate(view, state)
}
