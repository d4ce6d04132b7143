package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openmuni/grievance-core/internal/app/domain/session"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// SessionStore is the PostgreSQL storage.SessionStore implementation,
// partitioned by (channel, address) per §3's ownership note. A session is
// deleted on commit, explicit cancel, or expiry — it is never archived.
type SessionStore struct {
	db *sqlx.DB
}

// NewSessionStore creates a SessionStore using the provided handle.
func NewSessionStore(db *sqlx.DB) *SessionStore { return &SessionStore{db: db} }

var _ storage.SessionStore = (*SessionStore)(nil)

type sessionRow struct {
	Channel                 string         `db:"channel"`
	Address                 string         `db:"address"`
	Phase                   string         `db:"phase"`
	PartialTitle            string         `db:"partial_title"`
	PartialDescription      string         `db:"partial_description"`
	PartialLocation         string         `db:"partial_location"`
	PartialLat              sql.NullFloat64 `db:"partial_lat"`
	PartialLon              sql.NullFloat64 `db:"partial_lon"`
	PartialImageHandle      sql.NullString  `db:"partial_image_handle"`
	PartialImageAnalysis    string         `db:"partial_image_analysis"`
	RegistrationName        string         `db:"registration_name"`
	RegistrationCitizenID   int64          `db:"registration_citizen_id"`
	ImagePromptAlreadySent  bool           `db:"image_prompt_already_sent"`
	History                 []byte         `db:"history"`
	LastActivity             time.Time      `db:"last_activity"`
	ExpiresAt                time.Time      `db:"expires_at"`
}

func (r sessionRow) toDomain() (session.Session, error) {
	s := session.Session{
		Channel: r.Channel,
		Address: r.Address,
		Phase:   session.Phase(r.Phase),
		Partial: session.PartialComplaint{
			Title:         r.PartialTitle,
			Description:   r.PartialDescription,
			Location:      r.PartialLocation,
			ImageAnalysis: r.PartialImageAnalysis,
		},
		Registration: session.Registration{
			Name:      r.RegistrationName,
			CitizenID: r.RegistrationCitizenID,
		},
		ImagePromptAlreadySent: r.ImagePromptAlreadySent,
		LastActivity:           r.LastActivity,
		ExpiresAt:              r.ExpiresAt,
	}
	if r.PartialLat.Valid && r.PartialLon.Valid {
		lat, lon := r.PartialLat.Float64, r.PartialLon.Float64
		s.Partial.Lat = &lat
		s.Partial.Lon = &lon
	}
	if r.PartialImageHandle.Valid {
		s.Partial.ImageHandle = &r.PartialImageHandle.String
	}
	if len(r.History) > 0 {
		if err := json.Unmarshal(r.History, &s.History); err != nil {
			return session.Session{}, err
		}
	}
	return s, nil
}

func fromSession(s session.Session) (sessionRow, error) {
	history, err := json.Marshal(s.History)
	if err != nil {
		return sessionRow{}, err
	}
	row := sessionRow{
		Channel:                s.Channel,
		Address:                s.Address,
		Phase:                  string(s.Phase),
		PartialTitle:           s.Partial.Title,
		PartialDescription:     s.Partial.Description,
		PartialLocation:        s.Partial.Location,
		PartialImageAnalysis:   s.Partial.ImageAnalysis,
		RegistrationName:       s.Registration.Name,
		RegistrationCitizenID:  s.Registration.CitizenID,
		ImagePromptAlreadySent: s.ImagePromptAlreadySent,
		History:                history,
		LastActivity:           s.LastActivity,
		ExpiresAt:              s.ExpiresAt,
	}
	if s.Partial.Lat != nil && s.Partial.Lon != nil {
		row.PartialLat = sql.NullFloat64{Float64: *s.Partial.Lat, Valid: true}
		row.PartialLon = sql.NullFloat64{Float64: *s.Partial.Lon, Valid: true}
	}
	if s.Partial.ImageHandle != nil {
		row.PartialImageHandle = sql.NullString{String: *s.Partial.ImageHandle, Valid: true}
	}
	return row, nil
}

const sessionSelectSQL = `
	SELECT channel, address, phase, partial_title, partial_description,
		partial_location, partial_lat, partial_lon, partial_image_handle,
		partial_image_analysis, registration_name, registration_citizen_id,
		image_prompt_already_sent, history, last_activity, expires_at
	FROM conversation_sessions
`

// Get looks up the session for (channel, address). The boolean return is
// false, nil error when no session exists yet.
func (s *SessionStore) Get(ctx context.Context, channel, address string) (session.Session, bool, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, sessionSelectSQL+` WHERE channel = $1 AND address = $2`, channel, address)
	if err == sql.ErrNoRows {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, apperr.Wrap(apperr.Internal, "get session", err)
	}
	out, err := row.toDomain()
	if err != nil {
		return session.Session{}, false, apperr.Wrap(apperr.Internal, "decode session history", err)
	}
	return out, true, nil
}

// Save upserts the session keyed by (channel, address).
func (s *SessionStore) Save(ctx context.Context, sess session.Session) error {
	row, err := fromSession(sess)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode session history", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO conversation_sessions (
			channel, address, phase, partial_title, partial_description,
			partial_location, partial_lat, partial_lon, partial_image_handle,
			partial_image_analysis, registration_name, registration_citizen_id,
			image_prompt_already_sent, history, last_activity, expires_at
		) VALUES (
			:channel, :address, :phase, :partial_title, :partial_description,
			:partial_location, :partial_lat, :partial_lon, :partial_image_handle,
			:partial_image_analysis, :registration_name, :registration_citizen_id,
			:image_prompt_already_sent, :history, :last_activity, :expires_at
		)
		ON CONFLICT (channel, address) DO UPDATE SET
			phase = EXCLUDED.phase,
			partial_title = EXCLUDED.partial_title,
			partial_description = EXCLUDED.partial_description,
			partial_location = EXCLUDED.partial_location,
			partial_lat = EXCLUDED.partial_lat,
			partial_lon = EXCLUDED.partial_lon,
			partial_image_handle = EXCLUDED.partial_image_handle,
			partial_image_analysis = EXCLUDED.partial_image_analysis,
			registration_name = EXCLUDED.registration_name,
			registration_citizen_id = EXCLUDED.registration_citizen_id,
			image_prompt_already_sent = EXCLUDED.image_prompt_already_sent,
			history = EXCLUDED.history,
			last_activity = EXCLUDED.last_activity,
			expires_at = EXCLUDED.expires_at
	`, row)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert session", err)
	}
	return nil
}

// Delete removes the session for (channel, address); a no-op if absent.
func (s *SessionStore) Delete(ctx context.Context, channel, address string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE channel = $1 AND address = $2`, channel, address)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete session", err)
	}
	return nil
}
