// Package memory provides a thread-safe in-memory implementation of every
// storage interface, used by tests and local prototyping. It deliberately
// keeps the implementation simple, mirroring the production semantics
// (optimistic-concurrency CAS, upvote uniqueness, append-only audit) without
// a database dependency.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/domain/session"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// db holds the shared in-memory tables. It is unexported; callers obtain one
// store per concern (Complaints, Proofs, Signoffs, Audit, Sessions,
// Reference), all backed by the same underlying tables, via New.
type db struct {
	mu sync.RWMutex

	nextComplaintID int64
	nextProofID     int64
	nextSignoffID   int64
	nextAuditID     int64
	nextEventID     int64

	complaints map[int64]complaint.Complaint
	proofs     map[int64]complaint.ResolutionProof
	signoffs   map[int64]complaint.CitizenSignoff
	upvotes    map[int64]map[int64]bool

	entries map[int64]audit.Entry
	events  map[int64]audit.Event

	sessions map[string]session.Session

	categories  map[int64]reference.Category
	departments map[int64]reference.Department
	slaMatrix   map[string]int
}

func newDB() *db {
	return &db{
		nextComplaintID: 1,
		nextProofID:     1,
		nextSignoffID:   1,
		nextAuditID:     1,
		nextEventID:     1,
		complaints:      make(map[int64]complaint.Complaint),
		proofs:          make(map[int64]complaint.ResolutionProof),
		signoffs:        make(map[int64]complaint.CitizenSignoff),
		upvotes:         make(map[int64]map[int64]bool),
		entries:         make(map[int64]audit.Entry),
		events:          make(map[int64]audit.Event),
		sessions:        make(map[string]session.Session),
		categories:      make(map[int64]reference.Category),
		departments:     make(map[int64]reference.Department),
		slaMatrix:       make(map[string]int),
	}
}

// Stores bundles one instance of every storage interface, all sharing the
// same underlying tables.
type Stores struct {
	Complaints *ComplaintStore
	Proofs     *ProofStore
	Signoffs   *SignoffStore
	Audit      *AuditStore
	Sessions   *SessionStore
	Reference  *ReferenceStore
	Tx         *TxManager
}

// New creates an empty, fully-wired set of in-memory stores.
func New() *Stores {
	d := newDB()
	return &Stores{
		Complaints: &ComplaintStore{d},
		Proofs:     &ProofStore{d},
		Signoffs:   &SignoffStore{d},
		Audit:      &AuditStore{d},
		Sessions:   &SessionStore{d},
		Reference:  &ReferenceStore{d},
		Tx:         &TxManager{d},
	}
}

// TxManager is the in-memory storage.Transactor. Every store method already
// takes d.mu for the duration of its own mutation, so there is no separate
// transaction log to open: WithinTx just runs fn, and a mid-sequence error
// leaves whatever mutations already ran in place. That is a real difference
// from the PostgreSQL TxManager's all-or-nothing rollback, acceptable here
// because these stores back tests, not production traffic.
type TxManager struct{ d *db }

func (t *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ storage.Transactor = (*TxManager)(nil)

// SeedReference loads reference data used by tests; production reads this
// data from Postgres reference tables instead.
func (s *Stores) SeedReference(categories []reference.Category, departments []reference.Department, sla map[string]int) {
	d := s.Reference.d
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range categories {
		d.categories[c.ID] = c
	}
	for _, dep := range departments {
		d.departments[dep.ID] = dep
	}
	for k, v := range sla {
		d.slaMatrix[k] = v
	}
}

// --- ComplaintStore ----------------------------------------------------------

// ComplaintStore is the in-memory storage.ComplaintStore implementation.
type ComplaintStore struct{ d *db }

func (s *ComplaintStore) Create(_ context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	c.ID = s.d.nextComplaintID
	s.d.nextComplaintID++
	c.Version = 1
	s.d.complaints[c.ID] = c
	return c, nil
}

func (s *ComplaintStore) Get(_ context.Context, id int64) (complaint.Complaint, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	c, ok := s.d.complaints[id]
	if !ok {
		return complaint.Complaint{}, apperr.NotFoundf("complaint %d not found", id)
	}
	return c, nil
}

func (s *ComplaintStore) Update(_ context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	existing, ok := s.d.complaints[c.ID]
	if !ok {
		return complaint.Complaint{}, apperr.NotFoundf("complaint %d not found", c.ID)
	}
	if existing.Version != c.Version {
		return complaint.Complaint{}, apperr.New(apperr.Conflict, "complaint version mismatch").
			WithDetails(map[string]any{"expected": c.Version, "actual": existing.Version})
	}
	c.Version++
	s.d.complaints[c.ID] = c
	return c, nil
}

func (s *ComplaintStore) List(_ context.Context, filter storage.ComplaintFilter) ([]complaint.Complaint, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []complaint.Complaint
	for _, c := range s.d.complaints {
		if filter.CitizenID != nil && c.CitizenID != *filter.CitizenID {
			continue
		}
		if filter.DepartmentID != nil && (c.DepartmentID == nil || *c.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if filter.State != nil && c.State != *filter.State {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s *ComplaintStore) ListPendingRouting(_ context.Context, limit, offset int) ([]complaint.Complaint, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []complaint.Complaint
	for _, c := range s.d.complaints {
		if c.NeedsManualRoute {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return paginate(result, limit, offset), nil
}

func (s *ComplaintStore) CountPendingRouting(_ context.Context) (int64, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var n int64
	for _, c := range s.d.complaints {
		if c.NeedsManualRoute {
			n++
		}
	}
	return n, nil
}

func (s *ComplaintStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]complaint.Complaint, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []complaint.Complaint
	for _, c := range s.d.complaints {
		switch c.State {
		case complaint.Filed, complaint.InProgress, complaint.Hold:
		default:
			continue
		}
		if c.SLADeadline.Before(now) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.EscalationLevel.Rank() != b.EscalationLevel.Rank() {
			return a.EscalationLevel.Rank() < b.EscalationLevel.Rank()
		}
		if !a.SLADeadline.Equal(b.SLADeadline) {
			return a.SLADeadline.Before(b.SLADeadline)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *ComplaintStore) AddUpvote(_ context.Context, complaintID, citizenID int64) (int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	c, ok := s.d.complaints[complaintID]
	if !ok {
		return 0, apperr.NotFoundf("complaint %d not found", complaintID)
	}
	voters, ok := s.d.upvotes[complaintID]
	if !ok {
		voters = make(map[int64]bool)
		s.d.upvotes[complaintID] = voters
	}
	if voters[citizenID] {
		return c.UpvoteCount, nil
	}
	voters[citizenID] = true
	c.UpvoteCount++
	s.d.complaints[complaintID] = c
	return c.UpvoteCount, nil
}

func (s *ComplaintStore) FindDuplicates(_ context.Context, lat, lon, radiusMeters float64, since time.Time) ([]reference.DuplicateCandidate, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []reference.DuplicateCandidate
	for _, c := range s.d.complaints {
		if c.Coords == nil || c.CreatedAt.Before(since) {
			continue
		}
		dist := haversineMeters(lat, lon, c.Coords.Lat, c.Coords.Lon)
		if dist <= radiusMeters {
			result = append(result, reference.DuplicateCandidate{ComplaintID: c.ID, DistanceM: dist})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DistanceM < result[j].DistanceM })
	return result, nil
}

// --- ProofStore --------------------------------------------------------------

// ProofStore is the in-memory storage.ProofStore implementation.
type ProofStore struct{ d *db }

func (s *ProofStore) Create(_ context.Context, p complaint.ResolutionProof) (complaint.ResolutionProof, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	p.ID = s.d.nextProofID
	s.d.nextProofID++
	p.Active = true
	s.d.proofs[p.ID] = p
	return p, nil
}

func (s *ProofStore) GetActive(_ context.Context, complaintID int64) (complaint.ResolutionProof, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	for _, p := range s.d.proofs {
		if p.ComplaintID == complaintID && p.Active {
			return p, nil
		}
	}
	return complaint.ResolutionProof{}, apperr.NotFoundf("no active proof for complaint %d", complaintID)
}

func (s *ProofStore) ArchiveActive(_ context.Context, complaintID int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	for id, p := range s.d.proofs {
		if p.ComplaintID == complaintID && p.Active {
			p.Active = false
			s.d.proofs[id] = p
		}
	}
	return nil
}

func (s *ProofStore) ListByComplaint(_ context.Context, complaintID int64) ([]complaint.ResolutionProof, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []complaint.ResolutionProof
	for _, p := range s.d.proofs {
		if p.ComplaintID == complaintID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// --- SignoffStore ------------------------------------------------------------

// SignoffStore is the in-memory storage.SignoffStore implementation.
type SignoffStore struct{ d *db }

func (s *SignoffStore) Create(_ context.Context, so complaint.CitizenSignoff) (complaint.CitizenSignoff, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	so.ID = s.d.nextSignoffID
	s.d.nextSignoffID++
	s.d.signoffs[so.ID] = so
	return so, nil
}

func (s *SignoffStore) Update(_ context.Context, so complaint.CitizenSignoff) (complaint.CitizenSignoff, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if _, ok := s.d.signoffs[so.ID]; !ok {
		return complaint.CitizenSignoff{}, apperr.NotFoundf("signoff %d not found", so.ID)
	}
	s.d.signoffs[so.ID] = so
	return so, nil
}

func (s *SignoffStore) GetPendingDispute(_ context.Context, complaintID int64) (complaint.CitizenSignoff, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	for _, so := range s.d.signoffs {
		if so.ComplaintID == complaintID && so.PendingDispute() {
			return so, nil
		}
	}
	return complaint.CitizenSignoff{}, apperr.NotFoundf("no pending dispute for complaint %d", complaintID)
}

func (s *SignoffStore) ListByComplaint(_ context.Context, complaintID int64) ([]complaint.CitizenSignoff, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []complaint.CitizenSignoff
	for _, so := range s.d.signoffs {
		if so.ComplaintID == complaintID {
			result = append(result, so)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// --- AuditStore --------------------------------------------------------------

// AuditStore is the in-memory storage.AuditStore implementation.
type AuditStore struct{ d *db }

func (s *AuditStore) Append(_ context.Context, e audit.Entry) (audit.Entry, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if e.CreatedAt.IsZero() {
		return audit.Entry{}, fmt.Errorf("audit entry missing created_at")
	}
	e.ID = s.d.nextAuditID
	s.d.nextAuditID++
	s.d.entries[e.ID] = e
	return e, nil
}

func (s *AuditStore) ListByEntity(_ context.Context, entityType string, entityID int64, limit int) ([]audit.Entry, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []audit.Entry
	for _, e := range s.d.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *AuditStore) ListByAction(_ context.Context, action audit.Action, since, until time.Time, limit int) ([]audit.Entry, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []audit.Entry
	for _, e := range s.d.entries {
		if e.Action != action {
			continue
		}
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		if !until.IsZero() && e.CreatedAt.After(until) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *AuditStore) ListByActor(_ context.Context, actorID int64, limit int) ([]audit.Entry, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []audit.Entry
	for _, e := range s.d.entries {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *AuditStore) AppendEscalationEvent(_ context.Context, ev audit.Event) (audit.Event, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	ev.ID = s.d.nextEventID
	s.d.nextEventID++
	s.d.events[ev.ID] = ev
	return ev, nil
}

func (s *AuditStore) ListEscalationEvents(_ context.Context, complaintID int64, limit int) ([]audit.Event, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var result []audit.Event
	for _, ev := range s.d.events {
		if ev.ComplaintID == complaintID {
			result = append(result, ev)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TriggeredAt.Before(result[j].TriggeredAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- SessionStore ------------------------------------------------------------

// SessionStore is the in-memory storage.SessionStore implementation.
type SessionStore struct{ d *db }

func sessionKey(channel, address string) string { return channel + "|" + address }

func (s *SessionStore) Get(_ context.Context, channel, address string) (session.Session, bool, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	sess, ok := s.d.sessions[sessionKey(channel, address)]
	return sess, ok, nil
}

func (s *SessionStore) Save(_ context.Context, sess session.Session) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	s.d.sessions[sessionKey(sess.Channel, sess.Address)] = sess
	return nil
}

func (s *SessionStore) Delete(_ context.Context, channel, address string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	delete(s.d.sessions, sessionKey(channel, address))
	return nil
}

// --- ReferenceStore ----------------------------------------------------------

// ReferenceStore is the in-memory storage.ReferenceStore implementation.
type ReferenceStore struct{ d *db }

func (s *ReferenceStore) GetCategory(_ context.Context, id int64) (reference.Category, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	c, ok := s.d.categories[id]
	if !ok {
		return reference.Category{}, apperr.NotFoundf("category %d not found", id)
	}
	return c, nil
}

func (s *ReferenceStore) GetDepartment(_ context.Context, id int64) (reference.Department, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	dept, ok := s.d.departments[id]
	if !ok {
		return reference.Department{}, apperr.NotFoundf("department %d not found", id)
	}
	return dept, nil
}

func (s *ReferenceStore) GetSLADays(_ context.Context, departmentID int64, priority string) (int, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	key := slaKey(departmentID, priority)
	days, ok := s.d.slaMatrix[key]
	if !ok {
		return 0, apperr.NotFoundf("no SLA entry for department %d priority %s", departmentID, priority)
	}
	return days, nil
}

func slaKey(departmentID int64, priority string) string {
	return fmt.Sprintf("%d:%s", departmentID, priority)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
