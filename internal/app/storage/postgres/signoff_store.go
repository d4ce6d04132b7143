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

// SignoffStore is the PostgreSQL storage.SignoffStore implementation.
type SignoffStore struct {
	db *sqlx.DB
}

// NewSignoffStore creates a SignoffStore using the provided handle.
func NewSignoffStore(db *sqlx.DB) *SignoffStore { return &SignoffStore{db: db} }

var _ storage.SignoffStore = (*SignoffStore)(nil)

type signoffRow struct {
	ID            int64          `db:"id"`
	ComplaintID   int64          `db:"complaint_id"`
	Cycle         int            `db:"cycle"`
	Accepted      bool           `db:"accepted"`
	Disputed      bool           `db:"disputed"`
	Rating        sql.NullInt64  `db:"rating"`
	DisputeReason string         `db:"dispute_reason"`
	CounterProof  sql.NullString `db:"counter_proof"`
	Approved      sql.NullBool   `db:"approved"`
	ReviewReason  string         `db:"review_reason"`
	ReviewerID    sql.NullInt64  `db:"reviewer_id"`
	SignedAt      time.Time      `db:"signed_at"`
	ReviewedAt    sql.NullTime   `db:"reviewed_at"`
}

func (r signoffRow) toDomain() complaint.CitizenSignoff {
	out := complaint.CitizenSignoff{
		ID:            r.ID,
		ComplaintID:   r.ComplaintID,
		Cycle:         r.Cycle,
		Accepted:      r.Accepted,
		Disputed:      r.Disputed,
		DisputeReason: r.DisputeReason,
		ReviewReason:  r.ReviewReason,
		SignedAt:      r.SignedAt,
	}
	if r.Rating.Valid {
		v := int(r.Rating.Int64)
		out.Rating = &v
	}
	if r.CounterProof.Valid {
		out.CounterProof = &r.CounterProof.String
	}
	if r.Approved.Valid {
		out.Approved = &r.Approved.Bool
	}
	if r.ReviewerID.Valid {
		out.ReviewerID = &r.ReviewerID.Int64
	}
	if r.ReviewedAt.Valid {
		out.ReviewedAt = &r.ReviewedAt.Time
	}
	return out
}

func fromSignoff(s complaint.CitizenSignoff) signoffRow {
	row := signoffRow{
		ID:            s.ID,
		ComplaintID:   s.ComplaintID,
		Cycle:         s.Cycle,
		Accepted:      s.Accepted,
		Disputed:      s.Disputed,
		DisputeReason: s.DisputeReason,
		ReviewReason:  s.ReviewReason,
		SignedAt:      s.SignedAt,
	}
	if s.Rating != nil {
		row.Rating = sql.NullInt64{Int64: int64(*s.Rating), Valid: true}
	}
	if s.CounterProof != nil {
		row.CounterProof = sql.NullString{String: *s.CounterProof, Valid: true}
	}
	if s.Approved != nil {
		row.Approved = sql.NullBool{Bool: *s.Approved, Valid: true}
	}
	if s.ReviewerID != nil {
		row.ReviewerID = sql.NullInt64{Int64: *s.ReviewerID, Valid: true}
	}
	if s.ReviewedAt != nil {
		row.ReviewedAt = sql.NullTime{Time: *s.ReviewedAt, Valid: true}
	}
	return row
}

const signoffSelectSQL = `
	SELECT id, complaint_id, cycle, accepted, disputed, rating, dispute_reason,
		counter_proof, approved, review_reason, reviewer_id, signed_at, reviewed_at
	FROM citizen_signoffs
`

func (s *SignoffStore) Create(ctx context.Context, in complaint.CitizenSignoff) (complaint.CitizenSignoff, error) {
	row := fromSignoff(in)
	rows, err := s.db.NamedQueryContext(ctx, `
		INSERT INTO citizen_signoffs (
			complaint_id, cycle, accepted, disputed, rating, dispute_reason,
			counter_proof, approved, review_reason, reviewer_id, signed_at, reviewed_at
		) VALUES (
			:complaint_id, :cycle, :accepted, :disputed, :rating, :dispute_reason,
			:counter_proof, :approved, :review_reason, :reviewer_id, :signed_at, :reviewed_at
		) RETURNING id
	`, row)
	if err != nil {
		return complaint.CitizenSignoff{}, apperr.Wrap(apperr.Internal, "insert signoff", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&row.ID); err != nil {
			return complaint.CitizenSignoff{}, apperr.Wrap(apperr.Internal, "scan signoff id", err)
		}
	}
	return row.toDomain(), nil
}

func (s *SignoffStore) Update(ctx context.Context, in complaint.CitizenSignoff) (complaint.CitizenSignoff, error) {
	row := fromSignoff(in)
	_, err := s.db.NamedExecContext(ctx, `
		UPDATE citizen_signoffs SET
			accepted = :accepted, disputed = :disputed, rating = :rating,
			dispute_reason = :dispute_reason, counter_proof = :counter_proof,
			approved = :approved, review_reason = :review_reason,
			reviewer_id = :reviewer_id, reviewed_at = :reviewed_at
		WHERE id = :id
	`, row)
	if err != nil {
		return complaint.CitizenSignoff{}, apperr.Wrap(apperr.Internal, "update signoff", err)
	}
	return row.toDomain(), nil
}

func (s *SignoffStore) GetPendingDispute(ctx context.Context, complaintID int64) (complaint.CitizenSignoff, error) {
	var row signoffRow
	err := s.db.GetContext(ctx, &row, signoffSelectSQL+`
		WHERE complaint_id = $1 AND disputed = true AND approved IS NULL
		ORDER BY id DESC LIMIT 1
	`, complaintID)
	if err == sql.ErrNoRows {
		return complaint.CitizenSignoff{}, apperr.NotFoundf("no pending dispute for complaint %d", complaintID)
	}
	if err != nil {
		return complaint.CitizenSignoff{}, apperr.Wrap(apperr.Internal, "get pending dispute", err)
	}
	return row.toDomain(), nil
}

func (s *SignoffStore) ListByComplaint(ctx context.Context, complaintID int64) ([]complaint.CitizenSignoff, error) {
	var rows []signoffRow
	err := s.db.SelectContext(ctx, &rows, signoffSelectSQL+` WHERE complaint_id = $1 ORDER BY id ASC`, complaintID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list signoffs by complaint", err)
	}
	out := make([]complaint.CitizenSignoff, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
