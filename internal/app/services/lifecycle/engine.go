// Package lifecycle implements the role-aware, audit-logged finite state
// machine governing every legal transition of a complaint (C6). Every state
// change flows through ApplyTransition; the Engine's other write paths
// (AssignStaff, RouteManually, Escalate, MarkNeedsManualAttention) change
// assignment, routing, escalation level, and the manual-attention flag.
// Nothing outside the Engine writes to the Complaint row's state,
// escalation level, or timestamps.
package lifecycle

import (
	"context"
	"time"

	"github.com/openmuni/grievance-core/internal/app/classifier"
	"github.com/openmuni/grievance-core/internal/app/clock"
	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/internal/framework"
	"github.com/openmuni/grievance-core/pkg/apperr"
	"github.com/openmuni/grievance-core/pkg/logger"
)

// Classifier is the subset of classifier.Adapter the engine depends on,
// kept as an interface so tests can substitute a fixed response.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) classifier.Result
}

// Config holds the engine's tunable policy knobs, each pinned in SPEC_FULL.md
// as a single injected configuration value per the source material's open
// questions.
type Config struct {
	// AutoCloseWindow is how long a RESOLVED complaint waits for citizen
	// action before the SYSTEM actor force-closes it. Default 7 days.
	AutoCloseWindow time.Duration
	// DisputeSLAFraction scales the original SLA window when an approved
	// dispute reopens a complaint (a "reduced SLA days", typically half).
	DisputeSLAFraction float64
	// DefaultSLADays is used when a complaint is created with
	// needs-manual-routing=true and so has no department to look up an SLA
	// entry for.
	DefaultSLADays int
}

// DefaultConfig returns the policy defaults named in spec.md §4.1–§4.4.
func DefaultConfig() Config {
	return Config{
		AutoCloseWindow:    7 * 24 * time.Hour,
		DisputeSLAFraction: 0.5,
		DefaultSLADays:     3,
	}
}

// Engine is the lifecycle finite-state machine. It is the sole writer of
// Complaint.State, EscalationLevel, and lifecycle timestamps.
type Engine struct {
	Complaints storage.ComplaintStore
	Proofs     storage.ProofStore
	Signoffs   storage.SignoffStore
	Audit      storage.AuditStore
	Reference  storage.ReferenceStore
	Classifier Classifier
	Clock      clock.Clock
	Config     Config
	Log        *logger.Logger

	// Tx is the atomicity boundary every state mutation runs inside: the
	// Complaints.Update call and its accompanying audit.Append(s) either both
	// commit or neither does (§4.6).
	Tx storage.Transactor

	// Bus, if set, receives a "complaint.escalated" event whenever Escalate
	// raises a complaint's level, for an in-process notification dispatcher
	// to subscribe to. Nil is a valid zero value: publishing is best-effort
	// and never required for the lifecycle to behave correctly.
	Bus framework.BusClient
}

// New builds an Engine. log may be nil, in which case a default logger is
// used so every engine instance can always log.
func New(
	complaints storage.ComplaintStore,
	proofs storage.ProofStore,
	signoffs storage.SignoffStore,
	auditStore storage.AuditStore,
	reference storage.ReferenceStore,
	cls Classifier,
	clk clock.Clock,
	cfg Config,
	tx storage.Transactor,
	log *logger.Logger,
) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("lifecycle-engine")
	}
	if tx == nil {
		tx = passthroughTx{}
	}
	if cfg.DefaultSLADays <= 0 {
		cfg.DefaultSLADays = DefaultConfig().DefaultSLADays
	}
	if cfg.AutoCloseWindow <= 0 {
		cfg.AutoCloseWindow = DefaultConfig().AutoCloseWindow
	}
	if cfg.DisputeSLAFraction <= 0 {
		cfg.DisputeSLAFraction = DefaultConfig().DisputeSLAFraction
	}
	return &Engine{
		Complaints: complaints,
		Proofs:     proofs,
		Signoffs:   signoffs,
		Audit:      auditStore,
		Reference:  reference,
		Classifier: cls,
		Clock:      clk,
		Config:     cfg,
		Tx:         tx,
		Log:        log,
	}
}

// passthroughTx is the zero-value Transactor: it runs fn directly with no
// transactional guarantee. It exists so an Engine built without an explicit
// Tx (a stray call site, or a store that cannot support atomic commit) still
// behaves correctly, just without the all-or-nothing guarantee.
type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// CreateInput is the payload for filing a new complaint, shared by the API
// surface's POST /complaints and the intake machine's commit step.
type CreateInput struct {
	CitizenID     int64
	Title         string
	Description   string
	Location      string
	Coords        *complaint.Coordinates
	ImageHandle   *string
	ImageAnalysis string
}

// Create files a new complaint: it classifies the complaint, resolves an
// SLA deadline, persists the row in FILED state, and appends the CREATED
// audit entry. This is the one place a Complaint row comes into existence.
func (e *Engine) Create(ctx context.Context, in CreateInput) (complaint.Complaint, error) {
	if in.Title == "" || in.Description == "" || in.Location == "" {
		return complaint.Complaint{}, apperr.InvalidInputf("title, description, and location are required")
	}

	result := e.Classifier.Classify(ctx, classifier.Request{
		Title:         in.Title,
		Description:   in.Description,
		Location:      in.Location,
		ImageAnalysis: in.ImageAnalysis,
	})

	now := e.Clock.Now()
	c := complaint.Complaint{
		CitizenID:        in.CitizenID,
		CreatedAt:        now,
		Title:            in.Title,
		Description:      in.Description,
		Location:         in.Location,
		Coords:           in.Coords,
		Priority:         complaint.Priority(result.Priority),
		AIConfidence:     result.Confidence,
		AIReasoning:      result.Reasoning,
		NeedsManualRoute: result.NeedsManualRoute,
		State:            complaint.Filed,
		EscalationLevel:  complaint.LevelNone,
		ImageHandle:      in.ImageHandle,
		ImageAnalysis:    in.ImageAnalysis,
	}
	if c.Priority == "" {
		c.Priority = complaint.Medium
	}
	if !result.NeedsManualRoute {
		categoryID := result.CategoryID
		departmentID := result.DepartmentID
		c.CategoryID = &categoryID
		c.DepartmentID = &departmentID
	}

	slaDays, err := e.resolveSLADays(ctx, c.DepartmentID, c.Priority)
	if err != nil {
		return complaint.Complaint{}, err
	}
	c.SLADays = slaDays
	c.SLADeadline = now.Add(time.Duration(slaDays) * 24 * time.Hour)

	created, err := e.createWithAudit(ctx, c, audit.Entry{
		EntityType: "complaint",
		Action:     audit.Created,
		NewValue:   string(c.State),
		ActorID:    c.CitizenID,
		ActorKind:  audit.ActorUser,
		CreatedAt:  now,
	})
	if err != nil {
		return complaint.Complaint{}, apperr.Wrap(apperr.Internal, "create complaint", err)
	}

	return created, nil
}

// resolveSLADays looks up the default SLA window for a (department,
// priority) pair, falling back to Config.DefaultSLADays when the complaint
// needs manual routing and so has no department yet.
func (e *Engine) resolveSLADays(ctx context.Context, departmentID *int64, priority complaint.Priority) (int, error) {
	if departmentID == nil {
		return e.Config.DefaultSLADays, nil
	}
	days, err := e.Reference.GetSLADays(ctx, *departmentID, string(priority))
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return e.Config.DefaultSLADays, nil
		}
		return 0, apperr.Wrap(apperr.DependencyUnavailable, "look up SLA days", err)
	}
	return days, nil
}

// Descriptor advertises the lifecycle engine's architectural placement.
func (e *Engine) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "lifecycle-engine",
		Domain:       "lifecycle",
		Layer:        core.LayerEngine,
		Capabilities: []string{"create", "transition", "route", "assign", "upvote"},
	}
}

// createWithAudit persists a new complaint and its CREATED audit entry in one
// transaction: the complaint row never exists without its founding audit
// entry, or neither exists at all (§4.6).
func (e *Engine) createWithAudit(ctx context.Context, c complaint.Complaint, entry audit.Entry) (complaint.Complaint, error) {
	var created complaint.Complaint
	err := e.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = e.Complaints.Create(ctx, c)
		if err != nil {
			return err
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = e.Clock.Now()
		}
		entry.EntityID = created.ID
		_, err = e.Audit.Append(ctx, entry)
		return err
	})
	if err != nil {
		return complaint.Complaint{}, err
	}
	return created, nil
}

// commitWithAudit persists c via Complaints.Update and appends every entry
// in entries, all within one transaction: a transition is either both
// persisted and audited, or neither (§4.6). Entries with a zero CreatedAt
// are stamped with the engine clock before being appended.
func (e *Engine) commitWithAudit(ctx context.Context, c complaint.Complaint, entries ...audit.Entry) (complaint.Complaint, error) {
	var updated complaint.Complaint
	err := e.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = e.Complaints.Update(ctx, c)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = e.Clock.Now()
			}
			if _, err := e.Audit.Append(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return complaint.Complaint{}, err
	}
	return updated, nil
}
