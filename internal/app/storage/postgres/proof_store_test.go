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

func newMockProofStore(t *testing.T) (*ProofStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProofStore(sqlx.NewDb(db, "postgres")), mock
}

func TestProofStore_Create(t *testing.T) {
	store, mock := newMockProofStore(t)

	mock.ExpectQuery(`INSERT INTO resolution_proofs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	created, err := store.Create(context.Background(), complaint.ResolutionProof{
		ComplaintID: 11,
		ImageHandle: "proof-1.jpg",
		CapturedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		StaffID:     5,
		Cycle:       1,
	})

	require.NoError(t, err)
	require.Equal(t, int64(9), created.ID)
	require.True(t, created.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProofStore_GetActive(t *testing.T) {
	store, mock := newMockProofStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "complaint_id", "image_handle", "captured_at", "lat", "lon",
		"staff_id", "remarks", "verified", "cycle", "active", "created_at",
	}).AddRow(int64(9), int64(11), "proof-1.jpg", now, 0.0, 0.0, int64(5), "", false, 1, true, now)

	mock.ExpectQuery(`SELECT id, complaint_id, image_handle, captured_at, lat, lon, staff_id, remarks,\s*verified, cycle, active, created_at\s*FROM resolution_proofs WHERE complaint_id = \$1 AND active = true`).
		WithArgs(int64(11)).
		WillReturnRows(rows)

	proof, err := store.GetActive(context.Background(), 11)
	require.NoError(t, err)
	require.Equal(t, int64(9), proof.ID)
	require.True(t, proof.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProofStore_GetActive_NotFound(t *testing.T) {
	store, mock := newMockProofStore(t)

	mock.ExpectQuery(`FROM resolution_proofs WHERE complaint_id = \$1 AND active = true`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetActive(context.Background(), 404)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.NotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProofStore_ArchiveActive(t *testing.T) {
	store, mock := newMockProofStore(t)

	mock.ExpectExec(`UPDATE resolution_proofs SET active = false WHERE complaint_id = \$1 AND active = true`).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.ArchiveActive(context.Background(), 11))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProofStore_ListByComplaint(t *testing.T) {
	store, mock := newMockProofStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "complaint_id", "image_handle", "captured_at", "lat", "lon",
		"staff_id", "remarks", "verified", "cycle", "active", "created_at",
	}).AddRow(int64(9), int64(11), "proof-1.jpg", now, 0.0, 0.0, int64(5), "", false, 1, false, now).
		AddRow(int64(10), int64(11), "proof-2.jpg", now, 0.0, 0.0, int64(5), "", false, 2, true, now)

	mock.ExpectQuery(`FROM resolution_proofs WHERE complaint_id = \$1 ORDER BY cycle ASC, id ASC`).
		WithArgs(int64(11)).
		WillReturnRows(rows)

	proofs, err := store.ListByComplaint(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, proofs, 2)
	require.Equal(t, 2, proofs[1].Cycle)
	require.NoError(t, mock.ExpectationsWereMet())
}
