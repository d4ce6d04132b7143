// Package session models the conversational intake state machine's
// per-channel session. Ownership belongs to the intake subsystem; a session
// is destroyed on commit, explicit cancel, or expiry.
package session

import "time"

// Phase is the conversational intake's deterministic phase.
type Phase string

const (
	Greeting                  Phase = "GREETING"
	AwaitingRegistration      Phase = "AWAITING_REGISTRATION"
	RegisteredIdle            Phase = "REGISTERED_IDLE"
	AwaitingIssueDescription  Phase = "AWAITING_ISSUE_DESCRIPTION"
	AwaitingLocation          Phase = "AWAITING_LOCATION"
	AwaitingImageOptional     Phase = "AWAITING_IMAGE_OPTIONAL"
	ReadyToFile               Phase = "READY_TO_FILE"
	ViewingComplaints         Phase = "VIEWING_COMPLAINTS"
)

// MaxHistory bounds the retained conversation history per session.
const MaxHistory = 20

// PartialComplaint accumulates the fields the intake machine has collected
// so far, before being handed to the lifecycle engine's create operation.
type PartialComplaint struct {
	Title         string
	Description   string
	Location      string
	Lat           *float64
	Lon           *float64
	ImageHandle   *string
	ImageAnalysis string
}

// Registration holds the citizen's self-reported registration details,
// collected once per channel address.
type Registration struct {
	Name      string
	CitizenID int64
}

// Turn is one message exchanged in the conversation, retained for context up
// to MaxHistory entries.
type Turn struct {
	FromCitizen bool
	Text        string
	At          time.Time
}

// Session is keyed by (channel, address) and tracks one citizen's
// in-progress conversational intake.
type Session struct {
	Channel string
	Address string

	Phase                 Phase
	Partial                PartialComplaint
	Registration           Registration
	ImagePromptAlreadySent bool

	History []Turn

	LastActivity time.Time
	ExpiresAt    time.Time
}

// ReadyToFile reports whether the session satisfies the invariant required
// to reach ReadyToFile: a non-empty description and a non-vague location.
// The actual vagueness check lives in the intake validator; this only
// enforces the structural half of the invariant.
func (s Session) ReadyToFile() bool {
	return s.Phase == ReadyToFile && s.Partial.Description != "" && s.Partial.Location != ""
}

// PushTurn appends a turn, trimming history to MaxHistory from the front.
func (s *Session) PushTurn(t Turn) {
	s.History = append(s.History, t)
	if len(s.History) > MaxHistory {
		s.History = s.History[len(s.History)-MaxHistory:]
	}
}

// Expired reports whether the session has passed its expiry instant as of
// now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
