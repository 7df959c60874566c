package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/R-Tharanka/sos-live-tracker-map/config"
	"github.com/R-Tharanka/sos-live-tracker-map/models"
)

// AccessReason classifies the outcome of an access decision. Every
// non-authorized reason maps to a distinct user-facing message.
type AccessReason string

const (
	ReasonAuthorized        AccessReason = "authorized"
	ReasonMissingParameters AccessReason = "missing_parameters"
	ReasonMissingToken      AccessReason = "missing_token"
	ReasonNotFound          AccessReason = "not_found"
	ReasonTokenMismatch     AccessReason = "token_mismatch"
	ReasonTransportError    AccessReason = "transport_error"
	ReasonSubscriptionError AccessReason = "subscription_error"
	ReasonMapInitError      AccessReason = "map_init_error"
)

// Message returns the human-readable message rendered to the viewer.
func (r AccessReason) Message() string {
	switch r {
	case ReasonAuthorized:
		return "Access granted"
	case ReasonMissingParameters:
		return "Missing access token. Open the full emergency link you were sent."
	case ReasonMissingToken:
		return "Missing access token. Open the full emergency link you were sent."
	case ReasonNotFound:
		return "Session not found or expired."
	case ReasonTokenMismatch:
		return "Invalid access link. Check the link you were sent or sign in."
	case ReasonTransportError:
		return "Could not reach the tracking service. Please try again."
	case ReasonSubscriptionError:
		return "Live updates interrupted. Reconnecting may help."
	case ReasonMapInitError:
		return "The map could not be started in this browser."
	}
	return "Something went wrong."
}

// AccessResult is the uniform outcome of a validation: the decision,
// why, and the document snapshot when one was readable.
type AccessResult struct {
	Authorized bool
	Reason     AccessReason
	Session    *models.SOSSession
	Err        error
}

// EvaluatePolicy is the single named access-policy decision. The three
// policies exist because the handling of pre-token documents changed
// over the product's life; which one runs is configuration, never
// inferred. Strict denies documents that carry no token field.
func EvaluatePolicy(policy, token string, session *models.SOSSession) (bool, AccessReason) {
	if policy == config.PolicyPublic {
		return true, ReasonAuthorized
	}

	if session.HasAccessToken() {
		if session.AccessToken == token {
			return true, ReasonAuthorized
		}
		return false, ReasonTokenMismatch
	}

	// Document predates token issuance.
	if policy == config.PolicyLegacyAllow {
		return true, ReasonAuthorized
	}
	return false, ReasonTokenMismatch
}

// AccessValidator decides whether a viewer may see a session. It is a
// pure read: one fetch, no writes, advisory logging only.
type AccessValidator struct {
	Source SessionSource
	Policy string
}

// NewAccessValidator creates a validator with the configured policy.
func NewAccessValidator(source SessionSource, policy string) *AccessValidator {
	return &AccessValidator{Source: source, Policy: policy}
}

// Validate checks a (sessionID, token) pair against the stored
// document. Empty parameters short-circuit before any fetch.
func (v *AccessValidator) Validate(ctx context.Context, sessionID, token string) AccessResult {
	if sessionID == "" || token == "" {
		return AccessResult{Reason: ReasonMissingParameters}
	}

	session, err := v.Source.FetchSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return AccessResult{Reason: ReasonNotFound, Err: err}
		}
		slog.Error("Session fetch failed during validation",
			"sessionID", sessionID,
			"error", err,
		)
		return AccessResult{Reason: ReasonTransportError, Err: err}
	}

	ok, reason := EvaluatePolicy(v.Policy, token, session)
	if !ok {
		slog.Info("Session access denied",
			"sessionID", sessionID,
			"reason", reason,
			"hasTokenField", session.HasAccessToken(),
		)
		return AccessResult{Reason: reason, Session: session}
	}

	return AccessResult{Authorized: true, Reason: ReasonAuthorized, Session: session}
}
