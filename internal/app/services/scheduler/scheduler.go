// Package scheduler implements the SLA/escalation sweep (C7): a
// periodic job that raises overdue complaints up the escalation ladder and
// force-closes complaints that have sat RESOLVED past the citizen-response
// window. Production runs it on a robfig/cron/v3 schedule; tests drive the
// exported Tick directly against a virtual clock for determinism.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openmuni/grievance-core/internal/app/clock"
	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/internal/app/metrics"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/internal/framework"
	"github.com/openmuni/grievance-core/pkg/apperr"
	"github.com/openmuni/grievance-core/pkg/logger"
)

var _ interface {
	Name() string
	Start(context.Context) error
	Stop(context.Context) error
} = (*Scheduler)(nil)

// DefaultCronSpec runs the sweep every five minutes.
const DefaultCronSpec = "@every 5m"

// DefaultBatchSize bounds how many overdue complaints one tick processes, so
// a large backlog does not make a single tick run unboundedly long.
const DefaultBatchSize = 200

// Scheduler is the lifecycle-managed SLA/escalation sweep service.
type Scheduler struct {
	*framework.ServiceBase

	Engine     *lifecycle.Engine
	Complaints storage.ComplaintStore
	Clock      clock.Clock
	Log        *logger.Logger

	CronSpec  string
	BatchSize int

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// New builds a Scheduler. log may be nil.
func New(engine *lifecycle.Engine, complaints storage.ComplaintStore, clk clock.Clock, log *logger.Logger) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("sla-scheduler")
	}
	return &Scheduler{
		ServiceBase: framework.NewServiceBase("sla-escalation-scheduler", "lifecycle"),
		Engine:      engine,
		Complaints:  complaints,
		Clock:       clk,
		Log:         log,
		CronSpec:    DefaultCronSpec,
		BatchSize:   DefaultBatchSize,
	}
}

// Descriptor advertises the scheduler's architectural placement.
func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "scheduler-sla-escalation",
		Domain:       "lifecycle",
		Layer:        core.LayerEngine,
		Capabilities: []string{"escalate", "auto-close"},
	}
}

// Start registers the cron job and begins the periodic sweep. An immediate
// tick runs in the background so a freshly-started process doesn't wait a
// full interval before its first sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	spec := s.CronSpec
	if spec == "" {
		spec = DefaultCronSpec
	}
	c := cron.New()
	id, err := c.AddFunc(spec, func() { s.runTick(ctx) })
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule sla sweep: %w", err)
	}
	s.cron = c
	s.entryID = id
	s.running = true
	s.mu.Unlock()

	go s.runTick(ctx)
	c.Start()

	s.Log.Info("sla escalation scheduler started")
	s.MarkStarted()
	return nil
}

// Stop halts the cron job and waits for any in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.Log.Info("sla escalation scheduler stopped")
	s.MarkStopped()
	return nil
}

func (s *Scheduler) runTick(ctx context.Context) {
	done := core.StartObservation(ctx, core.ObservationHooks{
		OnComplete: func(_ context.Context, _ map[string]string, err error, duration time.Duration) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
				s.Log.WithError(err).Warn("sla escalation tick failed")
			}
			metrics.RecordTick(outcome, duration)
		},
	}, nil)
	done(s.Tick(ctx, s.Clock.Now()))
}

// Tick runs one sweep pass: it escalates overdue non-terminal complaints up
// the ladder, flags complaints that have exhausted the ladder as needing
// manual attention, and force-closes complaints that have waited past the
// auto-close window in RESOLVED state. Each complaint is processed in
// isolation; a failure on one never blocks the rest of the batch, and a
// losing optimistic-concurrency race is treated as "someone else already
// handled it this tick" rather than an error.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	if err := s.sweepEscalations(ctx, now); err != nil {
		return err
	}
	return s.sweepAutoClose(ctx, now)
}

func (s *Scheduler) sweepEscalations(ctx context.Context, now time.Time) error {
	overdue, err := s.Complaints.ListOverdue(ctx, now, s.BatchSize)
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "list overdue complaints", err)
	}

	for _, c := range overdue {
		if c.State == complaint.Resolved || c.State.IsTerminal() {
			continue
		}
		s.escalateOne(ctx, c)
	}
	return nil
}

func (s *Scheduler) escalateOne(ctx context.Context, c complaint.Complaint) {
	if c.NeedsManualAttention {
		return
	}
	if c.EscalationLevel == complaint.LevelCommissioner {
		if _, err := s.Engine.MarkNeedsManualAttention(ctx, c, audit.ReasonSLAOverdueEscalation); err != nil && !apperr.Is(err, apperr.Conflict) {
			s.logItemFailure(ctx, c.ID, err)
		}
		return
	}

	updated, err := s.Engine.Escalate(ctx, c, audit.ReasonSLAOverdueEscalation)
	if err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return
		}
		s.logItemFailure(ctx, c.ID, err)
		return
	}
	metrics.RecordEscalation(string(updated.EscalationLevel))
}

func (s *Scheduler) sweepAutoClose(ctx context.Context, now time.Time) error {
	resolvedState := complaint.Resolved
	candidates, err := s.Complaints.List(ctx, storage.ComplaintFilter{State: &resolvedState, Limit: s.BatchSize})
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "list resolved complaints", err)
	}

	window := s.Engine.Config.AutoCloseWindow
	for _, c := range candidates {
		if c.ResolvedAt == nil || now.Sub(*c.ResolvedAt) < window {
			continue
		}
		_, err := s.Engine.ApplyTransition(ctx, c.ID, complaint.Closed, identity.System, lifecycle.TransitionContext{
			Reason: string(audit.ReasonAutoCloseWindow),
		})
		if err != nil {
			if apperr.Is(err, apperr.Conflict) {
				continue
			}
			s.logItemFailure(ctx, c.ID, err)
		}
	}
	return nil
}

func (s *Scheduler) logItemFailure(ctx context.Context, complaintID int64, cause error) {
	s.Log.WithError(cause).WithField("complaint_id", complaintID).Warn("scheduler item failed")
	if _, err := s.Engine.Audit.Append(ctx, audit.Entry{
		EntityType: "complaint",
		EntityID:   complaintID,
		Action:     audit.Suspension,
		NewValue:   cause.Error(),
		ActorKind:  audit.ActorSystem,
		Reason:     string(audit.ReasonSchedulerRetry),
		CreatedAt:  s.Clock.Now(),
	}); err != nil {
		s.Log.WithError(err).Warn("failed to append scheduler failure audit entry")
	}
}
