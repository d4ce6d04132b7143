package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

func newMockComplaintStore(t *testing.T) (*ComplaintStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewComplaintStore(sqlx.NewDb(db, "postgres")), mock
}

func TestComplaintStore_Create(t *testing.T) {
	store, mock := newMockComplaintStore(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO complaints \(`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	created, err := store.Create(context.Background(), complaint.Complaint{
		CitizenID:   4,
		CreatedAt:   now,
		Title:       "Pothole on Main St",
		Description: "Large pothole",
		Location:    "Main St & 3rd",
		Priority:    complaint.Medium,
		State:       complaint.Filed,
		SLADays:     3,
		SLADeadline: now.Add(72 * time.Hour),
	})

	require.NoError(t, err)
	require.Equal(t, int64(11), created.ID)
	require.Equal(t, 1, created.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintStore_Get(t *testing.T) {
	store, mock := newMockComplaintStore(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "citizen_id", "created_at", "title", "description", "location", "lat", "lon",
		"category_id", "department_id", "priority", "ai_confidence", "ai_reasoning",
		"needs_manual_routing", "state", "assigned_staff_id", "escalation_level",
		"sla_days", "sla_deadline", "started_at", "resolved_at", "closed_at",
		"image_handle", "image_analysis", "upvote_count", "citizen_satisfaction",
		"needs_manual_attention", "version",
	}).AddRow(
		int64(11), int64(4), now, "Pothole on Main St", "Large pothole", "Main St & 3rd", nil, nil,
		nil, nil, "MEDIUM", 0.0, "", false, "FILED", nil, "NONE",
		3, now.Add(72*time.Hour), nil, nil, nil,
		nil, "", 0, nil, false, 1,
	)

	mock.ExpectQuery(`WHERE id = \$1`).WithArgs(int64(11)).WillReturnRows(rows)

	got, err := store.Get(context.Background(), 11)
	require.NoError(t, err)
	require.Equal(t, "Pothole on Main St", got.Title)
	require.Equal(t, complaint.Filed, got.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintStore_Get_NotFound(t *testing.T) {
	store, mock := newMockComplaintStore(t)

	mock.ExpectQuery(`WHERE id = \$1`).WithArgs(int64(404)).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 404)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.NotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintStore_Update_VersionConflict(t *testing.T) {
	store, mock := newMockComplaintStore(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	c := complaint.Complaint{
		ID: 11, Version: 1, State: complaint.InProgress, Priority: complaint.Medium,
		EscalationLevel: complaint.LevelNone, SLADeadline: now,
	}

	mock.ExpectExec(`UPDATE complaints SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{
		"id", "citizen_id", "created_at", "title", "description", "location", "lat", "lon",
		"category_id", "department_id", "priority", "ai_confidence", "ai_reasoning",
		"needs_manual_routing", "state", "assigned_staff_id", "escalation_level",
		"sla_days", "sla_deadline", "started_at", "resolved_at", "closed_at",
		"image_handle", "image_analysis", "upvote_count", "citizen_satisfaction",
		"needs_manual_attention", "version",
	}).AddRow(
		int64(11), int64(4), now, "Pothole on Main St", "Large pothole", "Main St & 3rd", nil, nil,
		nil, nil, "IN_PROGRESS", 0.0, "", false, "IN_PROGRESS", nil, "NONE",
		3, now, nil, nil, nil,
		nil, "", 0, nil, false, 2,
	)
	mock.ExpectQuery(`WHERE id = \$1`).WithArgs(int64(11)).WillReturnRows(rows)

	_, err := store.Update(context.Background(), c)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.Conflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintStore_Update_Success(t *testing.T) {
	store, mock := newMockComplaintStore(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	c := complaint.Complaint{
		ID: 11, Version: 1, State: complaint.InProgress, Priority: complaint.Medium,
		EscalationLevel: complaint.LevelNone, SLADeadline: now,
	}

	mock.ExpectExec(`UPDATE complaints SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := store.Update(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintStore_AddUpvote(t *testing.T) {
	store, mock := newMockComplaintStore(t)

	mock.ExpectExec(`INSERT INTO upvotes`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM upvotes WHERE complaint_id = \$1`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(`UPDATE complaints SET upvote_count`).WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := store.AddUpvote(context.Background(), 11, 4)
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintStore_CountPendingRouting(t *testing.T) {
	store, mock := newMockComplaintStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM complaints WHERE needs_manual_routing = true`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountPendingRouting(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintStore_FindDuplicates(t *testing.T) {
	store, mock := newMockComplaintStore(t)
	since := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, distance_m FROM \(`).
		WithArgs(12.9716, 77.5946, since, 250.0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "distance_m"}).
			AddRow(int64(11), 42.5).
			AddRow(int64(12), 190.0))

	candidates, err := store.FindDuplicates(context.Background(), 12.9716, 77.5946, 250.0, since)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, int64(11), candidates[0].ComplaintID)
	require.InDelta(t, 42.5, candidates[0].DistanceM, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}
