package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// ReferenceStore is the PostgreSQL storage.ReferenceStore implementation.
// Reference data (categories, departments, SLA matrix) is owned by an
// external editor; this type only reads it (§4.2). Callers that want the
// 60s TTL read-through cache wrap this in cache.ReferenceStore.
type ReferenceStore struct {
	db *sqlx.DB
}

// NewReferenceStore creates a ReferenceStore using the provided handle.
func NewReferenceStore(db *sqlx.DB) *ReferenceStore { return &ReferenceStore{db: db} }

var _ storage.ReferenceStore = (*ReferenceStore)(nil)

// GetCategory looks up a category by id.
func (s *ReferenceStore) GetCategory(ctx context.Context, id int64) (reference.Category, error) {
	var c reference.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return reference.Category{}, apperr.NotFoundf("category %d not found", id)
	}
	if err != nil {
		return reference.Category{}, apperr.Wrap(apperr.Internal, "get category", err)
	}
	return c, nil
}

// GetDepartment looks up a department by id.
func (s *ReferenceStore) GetDepartment(ctx context.Context, id int64) (reference.Department, error) {
	var d reference.Department
	err := s.db.QueryRowContext(ctx, `SELECT id, name, head_user_id FROM departments WHERE id = $1`, id).Scan(&d.ID, &d.Name, &d.HeadUserID)
	if err == sql.ErrNoRows {
		return reference.Department{}, apperr.NotFoundf("department %d not found", id)
	}
	if err != nil {
		return reference.Department{}, apperr.Wrap(apperr.Internal, "get department", err)
	}
	return d, nil
}

// GetSLADays returns the default resolution window, in days, for a
// (department, priority) pair.
func (s *ReferenceStore) GetSLADays(ctx context.Context, departmentID int64, priority string) (int, error) {
	var days int
	err := s.db.QueryRowContext(ctx, `
		SELECT sla_days FROM sla_matrix WHERE department_id = $1 AND priority = $2
	`, departmentID, priority).Scan(&days)
	if err == sql.ErrNoRows {
		return 0, apperr.NotFoundf("no sla entry for department %d priority %s", departmentID, priority)
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "get sla days", err)
	}
	return days, nil
}
