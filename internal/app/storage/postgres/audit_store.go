package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// AuditStore is the PostgreSQL storage.AuditStore implementation: an
// append-only ledger plus its escalation-event materialized view. Rows are
// never updated or deleted once written (§4.6).
type AuditStore struct {
	db *sqlx.DB
}

// NewAuditStore creates an AuditStore using the provided handle.
func NewAuditStore(db *sqlx.DB) *AuditStore { return &AuditStore{db: db} }

var _ storage.AuditStore = (*AuditStore)(nil)

type auditRow struct {
	ID         int64     `db:"id"`
	EntityType string    `db:"entity_type"`
	EntityID   int64     `db:"entity_id"`
	Action     string    `db:"action"`
	OldValue   string    `db:"old_value"`
	NewValue   string    `db:"new_value"`
	ActorID    int64     `db:"actor_id"`
	ActorKind  string    `db:"actor_kind"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r auditRow) toDomain() audit.Entry {
	return audit.Entry{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Action:     audit.Action(r.Action),
		OldValue:   r.OldValue,
		NewValue:   r.NewValue,
		ActorID:    r.ActorID,
		ActorKind:  audit.ActorKind(r.ActorKind),
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
	}
}

const auditSelectSQL = `
	SELECT id, entity_type, entity_id, action, old_value, new_value,
		actor_id, actor_kind, reason, created_at
	FROM audit_entries
`

// Append writes a new audit row. It is called from inside the same
// transactional boundary as the state mutation it documents, so a
// transition is either both persisted and audited, or neither (§4.6).
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	row := querierFor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO audit_entries (
			entity_type, entity_id, action, old_value, new_value,
			actor_id, actor_kind, reason, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`,
		e.EntityType, e.EntityID, string(e.Action), e.OldValue, e.NewValue,
		e.ActorID, string(e.ActorKind), e.Reason, e.CreatedAt,
	)
	if err := row.Scan(&e.ID); err != nil {
		return audit.Entry{}, apperr.Wrap(apperr.Internal, "insert audit entry", err)
	}
	return e, nil
}

// ListByEntity returns the latest N actions on a specific entity, newest
// first, per the entity-scoped audit query contract (§4.6).
func (s *AuditStore) ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, auditSelectSQL+`
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list audit by entity", err)
	}
	return toAuditEntries(rows), nil
}

// ListByAction returns entries of one action kind within [since, until),
// newest first.
func (s *AuditStore) ListByAction(ctx context.Context, action audit.Action, since, until time.Time, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if until.IsZero() {
		until = time.Now().UTC()
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, auditSelectSQL+`
		WHERE action = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, string(action), since, until, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list audit by action", err)
	}
	return toAuditEntries(rows), nil
}

// ListByActor returns entries attributed to one actor id, newest first.
func (s *AuditStore) ListByActor(ctx context.Context, actorID int64, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, auditSelectSQL+`
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, actorID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list audit by actor", err)
	}
	return toAuditEntries(rows), nil
}

// AppendEscalationEvent writes one row to the escalation materialized view.
func (s *AuditStore) AppendEscalationEvent(ctx context.Context, ev audit.Event) (audit.Event, error) {
	if ev.TriggeredAt.IsZero() {
		ev.TriggeredAt = time.Now().UTC()
	}
	row := querierFor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO escalation_events (
			complaint_id, from_level, to_level, triggered_at, reason, notified_role
		) VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, ev.ComplaintID, ev.FromLevel, ev.ToLevel, ev.TriggeredAt, ev.Reason, ev.NotifiedRole)
	if err := row.Scan(&ev.ID); err != nil {
		return audit.Event{}, apperr.Wrap(apperr.Internal, "insert escalation event", err)
	}
	return ev, nil
}

// ListEscalationEvents returns a complaint's escalation history, newest
// first.
func (s *AuditStore) ListEscalationEvents(ctx context.Context, complaintID int64, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, complaint_id, from_level, to_level, triggered_at, reason, notified_role
		FROM escalation_events
		WHERE complaint_id = $1
		ORDER BY triggered_at DESC, id DESC
		LIMIT $2
	`, complaintID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list escalation events", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var ev audit.Event
		if err := rows.Scan(&ev.ID, &ev.ComplaintID, &ev.FromLevel, &ev.ToLevel, &ev.TriggeredAt, &ev.Reason, &ev.NotifiedRole); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan escalation event", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func toAuditEntries(rows []auditRow) []audit.Entry {
	out := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
