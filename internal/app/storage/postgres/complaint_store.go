// Package postgres provides PostgreSQL-backed implementations of every
// storage interface in internal/app/storage, plus the TxManager transaction
// boundary (tx.go).
package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// ComplaintStore is the PostgreSQL storage.ComplaintStore implementation.
type ComplaintStore struct {
	db *sqlx.DB
}

// NewComplaintStore creates a ComplaintStore using the provided handle.
func NewComplaintStore(db *sqlx.DB) *ComplaintStore { return &ComplaintStore{db: db} }

var _ storage.ComplaintStore = (*ComplaintStore)(nil)

func (s *ComplaintStore) Create(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	c.Version = 1
	var lat, lon sql.NullFloat64
	if c.Coords != nil {
		lat = sql.NullFloat64{Float64: c.Coords.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: c.Coords.Lon, Valid: true}
	}
	row := querierFor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO complaints (
			citizen_id, created_at, title, description, location, lat, lon,
			category_id, department_id, priority, ai_confidence, ai_reasoning,
			needs_manual_routing, state, assigned_staff_id, escalation_level,
			sla_days, sla_deadline, image_handle, image_analysis, version
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
		) RETURNING id
	`,
		c.CitizenID, c.CreatedAt, c.Title, c.Description, c.Location, lat, lon,
		c.CategoryID, c.DepartmentID, string(c.Priority), c.AIConfidence, c.AIReasoning,
		c.NeedsManualRoute, string(c.State), c.AssignedStaffID, string(c.EscalationLevel),
		c.SLADays, c.SLADeadline, c.ImageHandle, c.ImageAnalysis, c.Version,
	)
	if err := row.Scan(&c.ID); err != nil {
		return complaint.Complaint{}, apperr.Wrap(apperr.Internal, "insert complaint", err)
	}
	return c, nil
}

func (s *ComplaintStore) Get(ctx context.Context, id int64) (complaint.Complaint, error) {
	row := querierFor(ctx, s.db).QueryRowContext(ctx, complaintSelectSQL+" WHERE id = $1", id)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return complaint.Complaint{}, apperr.NotFoundf("complaint %d not found", id)
	}
	if err != nil {
		return complaint.Complaint{}, apperr.Wrap(apperr.Internal, "get complaint", err)
	}
	return c, nil
}

func (s *ComplaintStore) Update(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	var lat, lon sql.NullFloat64
	if c.Coords != nil {
		lat = sql.NullFloat64{Float64: c.Coords.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: c.Coords.Lon, Valid: true}
	}
	newVersion := c.Version + 1
	result, err := querierFor(ctx, s.db).ExecContext(ctx, `
		UPDATE complaints SET
			category_id=$1, department_id=$2, priority=$3, ai_confidence=$4, ai_reasoning=$5,
			needs_manual_routing=$6, state=$7, assigned_staff_id=$8, escalation_level=$9,
			sla_days=$10, sla_deadline=$11, started_at=$12, resolved_at=$13, closed_at=$14,
			image_handle=$15, image_analysis=$16, upvote_count=$17, citizen_satisfaction=$18,
			needs_manual_attention=$19, lat=$20, lon=$21, version=$22
		WHERE id=$23 AND version=$24
	`,
		c.CategoryID, c.DepartmentID, string(c.Priority), c.AIConfidence, c.AIReasoning,
		c.NeedsManualRoute, string(c.State), c.AssignedStaffID, string(c.EscalationLevel),
		c.SLADays, c.SLADeadline, nullTime(c.StartedAt), nullTime(c.ResolvedAt), nullTime(c.ClosedAt),
		c.ImageHandle, c.ImageAnalysis, c.UpvoteCount, c.CitizenSatisfaction,
		c.NeedsManualAttention, lat, lon, newVersion,
		c.ID, c.Version,
	)
	if err != nil {
		return complaint.Complaint{}, apperr.Wrap(apperr.Internal, "update complaint", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return complaint.Complaint{}, apperr.Wrap(apperr.Internal, "rows affected", err)
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, c.ID); getErr != nil {
			return complaint.Complaint{}, getErr
		}
		return complaint.Complaint{}, apperr.New(apperr.Conflict, "complaint version mismatch").
			WithDetails(map[string]any{"complaint_id": c.ID, "expected_version": c.Version})
	}
	c.Version = newVersion
	return c, nil
}

func (s *ComplaintStore) List(ctx context.Context, filter storage.ComplaintFilter) ([]complaint.Complaint, error) {
	query := complaintSelectSQL + " WHERE 1=1"
	var args []any
	n := 1
	if filter.CitizenID != nil {
		query += addParam("citizen_id", &n)
		args = append(args, *filter.CitizenID)
	}
	if filter.DepartmentID != nil {
		query += addParam("department_id", &n)
		args = append(args, *filter.DepartmentID)
	}
	if filter.State != nil {
		query += addParam("state", &n)
		args = append(args, string(*filter.State))
	}
	query += " ORDER BY id"
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query += pqLimitOffset(&n, &args, limit, offset)

	return s.queryComplaints(ctx, query, args...)
}

func (s *ComplaintStore) ListPendingRouting(ctx context.Context, limit, offset int) ([]complaint.Complaint, error) {
	limit, offset = normalizePage(limit, offset)
	query := complaintSelectSQL + " WHERE needs_manual_routing = true ORDER BY id LIMIT $1 OFFSET $2"
	return s.queryComplaints(ctx, query, limit, offset)
}

func (s *ComplaintStore) CountPendingRouting(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints WHERE needs_manual_routing = true`).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "count pending routing", err)
	}
	return n, nil
}

func (s *ComplaintStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]complaint.Complaint, error) {
	query := complaintSelectSQL + `
		WHERE state IN ('FILED','IN_PROGRESS','HOLD') AND sla_deadline < $1
		ORDER BY
			CASE escalation_level
				WHEN 'NONE' THEN 0 WHEN 'STAFF' THEN 1 WHEN 'DEPT_HEAD' THEN 2
				WHEN 'ADMIN' THEN 3 WHEN 'COMMISSIONER' THEN 4 ELSE 5 END ASC,
			sla_deadline ASC, id ASC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 500
	}
	return s.queryComplaints(ctx, query, now, limit)
}

func (s *ComplaintStore) AddUpvote(ctx context.Context, complaintID, citizenID int64) (int, error) {
	q := querierFor(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO upvotes (complaint_id, citizen_id, created_at) VALUES ($1,$2,$3)
		ON CONFLICT (complaint_id, citizen_id) DO NOTHING
	`, complaintID, citizenID, time.Now().UTC())
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "insert upvote", err)
	}
	var count int
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM upvotes WHERE complaint_id = $1`, complaintID).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "count upvotes", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE complaints SET upvote_count = $1 WHERE id = $2`, count, complaintID); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "sync upvote count", err)
	}
	return count, nil
}

func (s *ComplaintStore) FindDuplicates(ctx context.Context, lat, lon, radiusMeters float64, since time.Time) ([]reference.DuplicateCandidate, error) {
	// Straight-line (haversine) distance on lat/lon, no geospatial index, per
	// the stated non-goal of geospatial indexing beyond this.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, distance_m FROM (
			SELECT id,
				6371000 * 2 * asin(sqrt(
					sin(radians(($1 - lat) / 2))^2 +
					cos(radians($1)) * cos(radians(lat)) * sin(radians(($2 - lon) / 2))^2
				)) AS distance_m
			FROM complaints
			WHERE lat IS NOT NULL AND lon IS NOT NULL AND created_at >= $3
		) candidates
		WHERE distance_m <= $4
		ORDER BY distance_m ASC
	`, lat, lon, since, radiusMeters)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "find duplicates", err)
	}
	defer rows.Close()

	var result []reference.DuplicateCandidate
	for rows.Next() {
		var c reference.DuplicateCandidate
		if err := rows.Scan(&c.ComplaintID, &c.DistanceM); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan duplicate", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const complaintSelectSQL = `
	SELECT id, citizen_id, created_at, title, description, location, lat, lon,
		category_id, department_id, priority, ai_confidence, ai_reasoning,
		needs_manual_routing, state, assigned_staff_id, escalation_level,
		sla_days, sla_deadline, started_at, resolved_at, closed_at,
		image_handle, image_analysis, upvote_count, citizen_satisfaction,
		needs_manual_attention, version
	FROM complaints
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (complaint.Complaint, error) {
	var (
		c                                        complaint.Complaint
		lat, lon                                 sql.NullFloat64
		categoryID, departmentID, assignedStaff  sql.NullInt64
		startedAt, resolvedAt, closedAt          sql.NullTime
		imageHandle                              sql.NullString
		citizenSatisfaction                      sql.NullInt64
		priority, state, escalation              string
	)
	err := row.Scan(
		&c.ID, &c.CitizenID, &c.CreatedAt, &c.Title, &c.Description, &c.Location, &lat, &lon,
		&categoryID, &departmentID, &priority, &c.AIConfidence, &c.AIReasoning,
		&c.NeedsManualRoute, &state, &assignedStaff, &escalation,
		&c.SLADays, &c.SLADeadline, &startedAt, &resolvedAt, &closedAt,
		&imageHandle, &c.ImageAnalysis, &c.UpvoteCount, &citizenSatisfaction,
		&c.NeedsManualAttention, &c.Version,
	)
	if err != nil {
		return complaint.Complaint{}, err
	}
	c.Priority = complaint.Priority(priority)
	c.State = complaint.State(state)
	c.EscalationLevel = complaint.EscalationLevel(escalation)
	if lat.Valid && lon.Valid {
		c.Coords = &complaint.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	if categoryID.Valid {
		c.CategoryID = &categoryID.Int64
	}
	if departmentID.Valid {
		c.DepartmentID = &departmentID.Int64
	}
	if assignedStaff.Valid {
		c.AssignedStaffID = &assignedStaff.Int64
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	if closedAt.Valid {
		c.ClosedAt = &closedAt.Time
	}
	if imageHandle.Valid {
		c.ImageHandle = &imageHandle.String
	}
	if citizenSatisfaction.Valid {
		v := int(citizenSatisfaction.Int64)
		c.CitizenSatisfaction = &v
	}
	return c, nil
}

func (s *ComplaintStore) queryComplaints(ctx context.Context, query string, args ...any) ([]complaint.Complaint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query complaints", err)
	}
	defer rows.Close()

	var result []complaint.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan complaint", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func addParam(column string, n *int) string {
	clause := " AND " + column + " = $" + strconv.Itoa(*n)
	*n++
	return clause
}

func pqLimitOffset(n *int, args *[]any, limit, offset int) string {
	clause := " LIMIT $" + strconv.Itoa(*n)
	*args = append(*args, limit)
	*n++
	clause += " OFFSET $" + strconv.Itoa(*n)
	*args = append(*args, offset)
	*n++
	return clause
}
