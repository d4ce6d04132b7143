// Package intake implements the phase-controlled conversational collector
// (C9): a deterministic state machine turns an unstructured multi-turn
// messaging dialog into a valid complaint and hands it to the lifecycle
// engine. Phase transitions are always decided by this service, never by a
// language model; an LM is only ever consulted for free-text fallback
// understanding or response generation, neither of which this package's
// deterministic core depends on.
package intake

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/openmuni/grievance-core/internal/app/clock"
	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/openmuni/grievance-core/internal/app/domain/session"
	"github.com/openmuni/grievance-core/internal/app/metrics"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
	"github.com/openmuni/grievance-core/pkg/displayid"
	"github.com/openmuni/grievance-core/pkg/logger"
)

// DefaultSessionTTL is how long an inactive session survives before a new
// message starts a fresh GREETING.
const DefaultSessionTTL = 30 * time.Minute

// DefaultRate and DefaultBurst bound the per-address conversational rate.
const DefaultRate = rate.Limit(1)
const DefaultBurst = 5

const injectionDeflection = "I can only help file and track civic complaints. Let's get back to that — what issue would you like to report?"
const rateLimitedReply = "You're sending messages a bit fast. Please wait a moment and try again."

// IdentityResolver maps a channel address and a self-reported name to a
// citizen id. Credential verification and the identity directory itself are
// out of scope for this package; a real deployment wires this against
// whatever citizen registry it already has.
type IdentityResolver interface {
	ResolveCitizenID(ctx context.Context, channel, address, name string) (int64, error)
}

// Service drives the conversational intake state machine.
type Service struct {
	Sessions   storage.SessionStore
	Engine     *lifecycle.Engine
	Identities IdentityResolver
	Clock      clock.Clock
	Log        *logger.Logger

	SessionTTL time.Duration
	limiter    *addressLimiter
}

// New builds an intake Service.
func New(sessions storage.SessionStore, engine *lifecycle.Engine, identities IdentityResolver, clk clock.Clock, log *logger.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("intake")
	}
	return &Service{
		Sessions:   sessions,
		Engine:     engine,
		Identities: identities,
		Clock:      clk,
		Log:        log,
		SessionTTL: DefaultSessionTTL,
		limiter:    newAddressLimiter(DefaultRate, DefaultBurst),
	}
}

// Descriptor advertises the intake service's architectural placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "conversational-intake",
		Domain:       "intake",
		Layer:        core.LayerIngress,
		Capabilities: []string{"parse-channel-payload", "phase-transition", "rate-limit"},
	}
}

// Process advances the conversation one turn and returns the reply to send
// back to the citizen. It never returns an error for ordinary conversational
// outcomes (vague input, injection attempts, rate limiting all produce a
// Reply); errors are reserved for infrastructure failures (session store,
// lifecycle engine) that the webhook handler surfaces as 5xx.
func (s *Service) Process(ctx context.Context, msg ChannelMessage) (Reply, error) {
	if !s.limiter.allow(msg.Channel + ":" + msg.Address) {
		return Reply{Text: rateLimitedReply}, nil
	}

	now := s.Clock.Now()
	sess, found, err := s.Sessions.Get(ctx, msg.Channel, msg.Address)
	if err != nil {
		return Reply{}, apperr.Wrap(apperr.Internal, "load session", err)
	}
	if !found || sess.Expired(now) {
		sess = session.Session{Channel: msg.Channel, Address: msg.Address, Phase: session.Greeting}
	}

	text := strings.TrimSpace(msg.Text)
	if text != "" && isPromptInjection(text) {
		sess.PushTurn(session.Turn{FromCitizen: true, Text: text, At: now})
		s.touch(&sess, now)
		s.save(ctx, sess)
		metrics.RecordIntakeTurn(string(sess.Phase))
		return Reply{Text: injectionDeflection}, nil
	}

	if text != "" {
		sess.PushTurn(session.Turn{FromCitizen: true, Text: text, At: now})
	}
	if msg.ImageHandle != "" {
		sess.Partial.ImageHandle = &msg.ImageHandle
	}

	reply, err := s.advance(ctx, &sess, text, now)
	if err != nil {
		return Reply{}, err
	}

	s.touch(&sess, now)
	s.save(ctx, sess)
	metrics.RecordIntakeTurn(string(sess.Phase))
	return reply, nil
}

func (s *Service) touch(sess *session.Session, now time.Time) {
	sess.LastActivity = now
	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	sess.ExpiresAt = now.Add(ttl)
}

func (s *Service) save(ctx context.Context, sess session.Session) {
	if err := s.Sessions.Save(ctx, sess); err != nil {
		s.Log.WithError(err).WithField("address", sess.Address).Warn("failed to save intake session")
	}
}

// advance runs the deterministic phase transition logic for one turn.
func (s *Service) advance(ctx context.Context, sess *session.Session, text string, now time.Time) (Reply, error) {
	switch sess.Phase {
	case session.Greeting:
		return s.handleGreeting(sess, text)
	case session.AwaitingRegistration:
		return s.handleAwaitingRegistration(ctx, sess, text)
	case session.RegisteredIdle:
		return s.handleRegisteredIdle(sess, text)
	case session.AwaitingIssueDescription:
		return s.handleAwaitingIssueDescription(sess, text)
	case session.AwaitingLocation:
		return s.handleAwaitingLocation(sess, text)
	case session.AwaitingImageOptional:
		return s.handleAwaitingImageOptional(sess, text)
	case session.ReadyToFile:
		return s.handleReadyToFile(ctx, sess, text, now)
	case session.ViewingComplaints:
		sess.Phase = session.RegisteredIdle
		return Reply{Text: "Back to the main menu. What would you like to do?"}, nil
	default:
		sess.Phase = session.Greeting
		return s.handleGreeting(sess, text)
	}
}

func (s *Service) handleGreeting(sess *session.Session, text string) (Reply, error) {
	if sess.Registration.CitizenID != 0 {
		sess.Phase = session.RegisteredIdle
		return Reply{Text: "Welcome back! Say \"report\" to file a new complaint or \"my complaints\" to check on existing ones."}, nil
	}
	sess.Phase = session.AwaitingRegistration
	return Reply{Text: "Welcome to the civic complaint line. What's your name?"}, nil
}

func (s *Service) handleAwaitingRegistration(ctx context.Context, sess *session.Session, text string) (Reply, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return Reply{Text: "I didn't catch a name. What should I call you?"}, nil
	}
	citizenID, err := s.Identities.ResolveCitizenID(ctx, sess.Channel, sess.Address, name)
	if err != nil {
		return Reply{}, apperr.Wrap(apperr.DependencyUnavailable, "resolve citizen identity", err)
	}
	sess.Registration = session.Registration{Name: name, CitizenID: citizenID}
	sess.Phase = session.RegisteredIdle
	return Reply{Text: "Thanks, " + name + "! Say \"report\" to file a new complaint."}, nil
}

func (s *Service) handleRegisteredIdle(sess *session.Session, text string) (Reply, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "report") || strings.Contains(lower, "complaint") || strings.Contains(lower, "file"):
		sess.Phase = session.AwaitingIssueDescription
		sess.Partial = session.PartialComplaint{}
		return Reply{Text: "What's the issue? (e.g. pothole, broken street light, garbage pile-up)"}, nil
	case strings.Contains(lower, "my complaints") || strings.Contains(lower, "status"):
		sess.Phase = session.ViewingComplaints
		return Reply{Text: "Looking up your complaints..."}, nil
	default:
		return Reply{Text: "Say \"report\" to file a new complaint or \"my complaints\" to check on existing ones."}, nil
	}
}

func (s *Service) handleAwaitingIssueDescription(sess *session.Session, text string) (Reply, error) {
	if !isCivicIssue(text) {
		return Reply{Text: "Please describe the civic issue in a bit more detail (e.g. \"large pothole blocking traffic\")."}, nil
	}
	sess.Partial.Title = summarize(text)
	sess.Partial.Description = text
	sess.Phase = session.AwaitingLocation
	return Reply{Text: "Where is this happening? Please give a specific location (street name, landmark, or intersection)."}, nil
}

func (s *Service) handleAwaitingLocation(sess *session.Session, text string) (Reply, error) {
	if isVagueLocation(text) {
		return Reply{Text: "That location is too general for a crew to find. Please give a street name, a nearby landmark, or an intersection (e.g. \"MG Road opposite SBI\")."}, nil
	}
	sess.Partial.Location = text
	sess.Phase = session.AwaitingImageOptional
	if sess.ImagePromptAlreadySent {
		sess.Phase = session.ReadyToFile
		return Reply{Text: "Got it. Ready to file this complaint? (yes/no)"}, nil
	}
	sess.ImagePromptAlreadySent = true
	return Reply{Text: "Would you like to attach a photo? Send an image, or reply \"skip\"."}, nil
}

func (s *Service) handleAwaitingImageOptional(sess *session.Session, text string) (Reply, error) {
	if sess.Partial.ImageHandle == nil && !isSkip(text) {
		return Reply{Text: "Send a photo if you have one, or reply \"skip\" to continue without one."}, nil
	}
	sess.Phase = session.ReadyToFile
	return Reply{Text: "Ready to file this complaint? (yes/no)"}, nil
}

func (s *Service) handleReadyToFile(ctx context.Context, sess *session.Session, text string, now time.Time) (Reply, error) {
	switch {
	case isAffirmative(text):
		return s.commit(ctx, sess, now)
	case isNegative(text):
		sess.Partial = session.PartialComplaint{}
		sess.Phase = session.RegisteredIdle
		return Reply{Text: "Discarded. Say \"report\" whenever you're ready to file something."}, nil
	default:
		return Reply{Text: "Reply \"yes\" to file this complaint or \"no\" to discard it."}, nil
	}
}

func (s *Service) commit(ctx context.Context, sess *session.Session, now time.Time) (Reply, error) {
	if !sess.ReadyToFile() {
		sess.Phase = session.RegisteredIdle
		return Reply{Text: "Something went wrong with that complaint. Let's start over — say \"report\" to try again."}, nil
	}

	created, err := s.Engine.Create(ctx, lifecycle.CreateInput{
		CitizenID:     sess.Registration.CitizenID,
		Title:         sess.Partial.Title,
		Description:   sess.Partial.Description,
		Location:      sess.Partial.Location,
		ImageHandle:   sess.Partial.ImageHandle,
		ImageAnalysis: sess.Partial.ImageAnalysis,
	})
	if err != nil {
		return Reply{}, err
	}

	sess.Partial = session.PartialComplaint{}
	sess.ImagePromptAlreadySent = false
	sess.Phase = session.RegisteredIdle

	displayID := displayid.Format(now.Year(), created.ID)
	return Reply{Text: "Filed! Your complaint reference is " + displayID + ". We'll keep you posted."}, nil
}

func summarize(text string) string {
	const maxTitleLen = 60
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxTitleLen {
		return trimmed
	}
	return trimmed[:maxTitleLen]
}
