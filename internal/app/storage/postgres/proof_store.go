package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// ProofStore is the PostgreSQL storage.ProofStore implementation.
type ProofStore struct {
	db *sqlx.DB
}

// NewProofStore creates a ProofStore using the provided handle.
func NewProofStore(db *sqlx.DB) *ProofStore { return &ProofStore{db: db} }

var _ storage.ProofStore = (*ProofStore)(nil)

type proofRow struct {
	ID          int64     `db:"id"`
	ComplaintID int64     `db:"complaint_id"`
	ImageHandle string    `db:"image_handle"`
	CapturedAt  time.Time `db:"captured_at"`
	Lat         float64   `db:"lat"`
	Lon         float64   `db:"lon"`
	StaffID     int64     `db:"staff_id"`
	Remarks     string    `db:"remarks"`
	Verified    bool      `db:"verified"`
	Cycle       int       `db:"cycle"`
	Active      bool      `db:"active"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r proofRow) toDomain() complaint.ResolutionProof {
	return complaint.ResolutionProof{
		ID:          r.ID,
		ComplaintID: r.ComplaintID,
		ImageHandle: r.ImageHandle,
		CapturedAt:  r.CapturedAt,
		Lat:         r.Lat,
		Lon:         r.Lon,
		StaffID:     r.StaffID,
		Remarks:     r.Remarks,
		Verified:    r.Verified,
		Cycle:       r.Cycle,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

func (s *ProofStore) Create(ctx context.Context, p complaint.ResolutionProof) (complaint.ResolutionProof, error) {
	p.CreatedAt = time.Now().UTC()
	p.Active = true
	row, err := s.db.NamedQueryContext(ctx, `
		INSERT INTO resolution_proofs (
			complaint_id, image_handle, captured_at, lat, lon, staff_id, remarks,
			verified, cycle, active, created_at
		) VALUES (
			:complaint_id, :image_handle, :captured_at, :lat, :lon, :staff_id, :remarks,
			:verified, :cycle, :active, :created_at
		) RETURNING id
	`, p)
	if err != nil {
		return complaint.ResolutionProof{}, apperr.Wrap(apperr.Internal, "insert resolution proof", err)
	}
	defer row.Close()
	if row.Next() {
		if err := row.Scan(&p.ID); err != nil {
			return complaint.ResolutionProof{}, apperr.Wrap(apperr.Internal, "scan resolution proof id", err)
		}
	}
	return p, nil
}

func (s *ProofStore) GetActive(ctx context.Context, complaintID int64) (complaint.ResolutionProof, error) {
	var row proofRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, complaint_id, image_handle, captured_at, lat, lon, staff_id, remarks,
			verified, cycle, active, created_at
		FROM resolution_proofs WHERE complaint_id = $1 AND active = true
	`, complaintID)
	if err == sql.ErrNoRows {
		return complaint.ResolutionProof{}, apperr.NotFoundf("no active resolution proof for complaint %d", complaintID)
	}
	if err != nil {
		return complaint.ResolutionProof{}, apperr.Wrap(apperr.Internal, "get active proof", err)
	}
	return row.toDomain(), nil
}

func (s *ProofStore) ArchiveActive(ctx context.Context, complaintID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE resolution_proofs SET active = false WHERE complaint_id = $1 AND active = true`, complaintID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "archive active proof", err)
	}
	return nil
}

func (s *ProofStore) ListByComplaint(ctx context.Context, complaintID int64) ([]complaint.ResolutionProof, error) {
	var rows []proofRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, complaint_id, image_handle, captured_at, lat, lon, staff_id, remarks,
			verified, cycle, active, created_at
		FROM resolution_proofs WHERE complaint_id = $1 ORDER BY cycle ASC, id ASC
	`, complaintID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list proofs by complaint", err)
	}
	out := make([]complaint.ResolutionProof, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
