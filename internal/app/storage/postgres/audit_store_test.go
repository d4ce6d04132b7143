package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/grievance-core/internal/app/domain/audit"
)

func newMockAuditStore(t *testing.T) (*AuditStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuditStore(sqlx.NewDb(db, "postgres")), mock
}

func TestAuditStore_Append(t *testing.T) {
	store, mock := newMockAuditStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO audit_entries`).
		WithArgs("complaint", int64(42), "CREATED", "", "new", int64(7), "USER", "citizen filed", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	entry, err := store.Append(context.Background(), audit.Entry{
		EntityType: "complaint",
		EntityID:   42,
		Action:     audit.Created,
		NewValue:   "new",
		ActorID:    7,
		ActorKind:  audit.ActorUser,
		Reason:     "citizen filed",
		CreatedAt:  now,
	})

	require.NoError(t, err)
	require.Equal(t, int64(1), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStore_ListByEntity(t *testing.T) {
	store, mock := newMockAuditStore(t)
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "entity_type", "entity_id", "action", "old_value", "new_value",
		"actor_id", "actor_kind", "reason", "created_at",
	}).AddRow(int64(5), "complaint", int64(42), "STATE_CHANGE", "FILED", "ASSIGNED", int64(3), "STAFF", "assigned", now)

	mock.ExpectQuery(`SELECT id, entity_type, entity_id, action, old_value, new_value`).
		WithArgs("complaint", int64(42), 100).
		WillReturnRows(rows)

	entries, err := store.ListByEntity(context.Background(), "complaint", 42, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(5), entries[0].ID)
	require.Equal(t, audit.Action("STATE_CHANGE"), entries[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStore_ListByEntity_ClampsOutOfRangeLimit(t *testing.T) {
	store, mock := newMockAuditStore(t)

	mock.ExpectQuery(`SELECT id, entity_type, entity_id, action, old_value, new_value`).
		WithArgs("complaint", int64(1), 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "entity_type", "entity_id", "action", "old_value", "new_value",
			"actor_id", "actor_kind", "reason", "created_at",
		}))

	_, err := store.ListByEntity(context.Background(), "complaint", 1, 10000)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStore_AppendEscalationEvent(t *testing.T) {
	store, mock := newMockAuditStore(t)
	now := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO escalation_events`).
		WithArgs(int64(9), "STAFF", "DEPT_HEAD", now, "sla overdue", "DEPT_HEAD").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	ev, err := store.AppendEscalationEvent(context.Background(), audit.Event{
		ComplaintID:  9,
		FromLevel:    "STAFF",
		ToLevel:      "DEPT_HEAD",
		TriggeredAt:  now,
		Reason:       "sla overdue",
		NotifiedRole: "DEPT_HEAD",
	})

	require.NoError(t, err)
	require.Equal(t, int64(2), ev.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStore_ListEscalationEvents(t *testing.T) {
	store, mock := newMockAuditStore(t)
	now := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, complaint_id, from_level, to_level, triggered_at, reason, notified_role`).
		WithArgs(int64(9), 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "complaint_id", "from_level", "to_level", "triggered_at", "reason", "notified_role",
		}).AddRow(int64(1), int64(9), "STAFF", "DEPT_HEAD", now, "sla overdue", "DEPT_HEAD"))

	events, err := store.ListEscalationEvents(context.Background(), 9, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "DEPT_HEAD", events[0].ToLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}
