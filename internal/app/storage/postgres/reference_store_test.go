package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/grievance-core/pkg/apperr"
)

func newMockReferenceStore(t *testing.T) (*ReferenceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReferenceStore(sqlx.NewDb(db, "postgres")), mock
}

func TestReferenceStore_GetCategory(t *testing.T) {
	store, mock := newMockReferenceStore(t)

	mock.ExpectQuery(`SELECT id, name FROM categories WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "Potholes"))

	cat, err := store.GetCategory(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, "Potholes", cat.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceStore_GetCategory_NotFound(t *testing.T) {
	store, mock := newMockReferenceStore(t)

	mock.ExpectQuery(`SELECT id, name FROM categories WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetCategory(context.Background(), 99)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.NotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceStore_GetDepartment(t *testing.T) {
	store, mock := newMockReferenceStore(t)

	mock.ExpectQuery(`SELECT id, name, head_user_id FROM departments WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "head_user_id"}).AddRow(int64(2), "Roads", int64(11)))

	dept, err := store.GetDepartment(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, "Roads", dept.Name)
	require.Equal(t, int64(11), dept.HeadUserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceStore_GetDepartment_NotFound(t *testing.T) {
	store, mock := newMockReferenceStore(t)

	mock.ExpectQuery(`SELECT id, name, head_user_id FROM departments WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetDepartment(context.Background(), 404)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.NotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceStore_GetSLADays(t *testing.T) {
	store, mock := newMockReferenceStore(t)

	mock.ExpectQuery(`SELECT sla_days FROM sla_matrix WHERE department_id = \$1 AND priority = \$2`).
		WithArgs(int64(1), "HIGH").
		WillReturnRows(sqlmock.NewRows([]string{"sla_days"}).AddRow(3))

	days, err := store.GetSLADays(context.Background(), 1, "HIGH")
	require.NoError(t, err)
	require.Equal(t, 3, days)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceStore_GetSLADays_NotFound(t *testing.T) {
	store, mock := newMockReferenceStore(t)

	mock.ExpectQuery(`SELECT sla_days FROM sla_matrix WHERE department_id = \$1 AND priority = \$2`).
		WithArgs(int64(1), "LOW").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetSLADays(context.Background(), 1, "LOW")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.NotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
