package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/grievance-core/internal/app/classifier"
	"github.com/openmuni/grievance-core/internal/app/clock"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/storage/memory"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

type fixedClassifier struct{ result classifier.Result }

func (f fixedClassifier) Classify(context.Context, classifier.Request) classifier.Result {
	return f.result
}

const (
	staffID    = int64(50)
	deptHeadID = int64(60)
	citizenID  = int64(7)
	deptID     = int64(1)
)

func newTestService(t *testing.T) (*Service, *memory.Stores, *lifecycle.Engine, *clock.Virtual) {
	t.Helper()
	stores := memory.New()
	stores.SeedReference(
		[]reference.Category{{ID: 1, Name: "Potholes"}},
		[]reference.Department{{ID: deptID, Name: "Roads", HeadUserID: deptHeadID}},
		map[string]int{"1:MEDIUM": 5},
	)
	clk := clock.NewVirtual(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	cls := fixedClassifier{result: classifier.Result{
		CategoryID: 1, DepartmentID: 1, Priority: "MEDIUM", Confidence: 0.9,
	}}
	engine := lifecycle.New(stores.Complaints, stores.Proofs, stores.Signoffs, stores.Audit, stores.Reference, cls, clk, lifecycle.DefaultConfig(), stores.Tx, nil)
	svc := New(engine, stores.Proofs, stores.Signoffs, stores.Complaints, clk)
	return svc, stores, engine, clk
}

func staffActor() identity.Actor {
	d := deptID
	return identity.Actor{UserID: staffID, Role: identity.RoleStaff, DepartmentID: &d}
}

func deptHeadActor() identity.Actor {
	d := deptID
	return identity.Actor{UserID: deptHeadID, Role: identity.RoleDeptHead, DepartmentID: &d}
}

func citizenActor() identity.Actor {
	return identity.Actor{UserID: citizenID, Role: identity.RoleCitizen}
}

// fileAndStart creates a complaint, assigns staff, and transitions it to
// IN_PROGRESS, returning its id.
func fileAndStart(t *testing.T, engine *lifecycle.Engine) int64 {
	t.Helper()
	ctx := context.Background()
	c, err := engine.Create(ctx, lifecycle.CreateInput{
		CitizenID: citizenID, Title: "Pothole", Description: "Big pothole", Location: "Main St",
	})
	require.NoError(t, err)

	_, err = engine.AssignStaff(ctx, c.ID, staffID, deptHeadActor())
	require.NoError(t, err)

	_, err = engine.ApplyTransition(ctx, c.ID, complaint.InProgress, staffActor(), lifecycle.TransitionContext{})
	require.NoError(t, err)
	return c.ID
}

func TestResolveWithoutProofFailsProofRequired(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.Resolve(context.Background(), id, staffActor())
	require.Error(t, err)
	assert.Equal(t, apperr.ProofRequired, apperr.KindOf(err))
}

func TestUploadProofThenResolveSucceeds(t *testing.T) {
	svc, stores, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	proof, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1", Lat: 12.9, Lon: 77.6, Remarks: "fixed",
	}, staffActor())
	require.NoError(t, err)
	assert.Equal(t, 1, proof.Cycle)

	c, err := svc.Resolve(context.Background(), id, staffActor())
	require.NoError(t, err)
	assert.Equal(t, complaint.Resolved, c.State)

	entries, err := stores.Audit.ListByEntity(context.Background(), "complaint", id, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestUploadProofWrongStaffForbidden(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1",
	}, identity.Actor{UserID: 999, Role: identity.RoleStaff, DepartmentID: func() *int64 { d := deptID; return &d }()})
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestSignoffAcceptClosesComplaint(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1",
	}, staffActor())
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), id, staffActor())
	require.NoError(t, err)

	rating := 5
	so, err := svc.SubmitSignoff(context.Background(), SubmitSignoffInput{
		ComplaintID: id, Accepted: true, Rating: &rating,
	}, citizenActor())
	require.NoError(t, err)
	assert.True(t, so.Accepted)

	c, err := engine.Complaints.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, complaint.Closed, c.State)
	require.NotNil(t, c.CitizenSatisfaction)
	assert.Equal(t, 5, *c.CitizenSatisfaction)
}

func TestSignoffDisputeThenApprovedReopensWithBumpedPriority(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1",
	}, staffActor())
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), id, staffActor())
	require.NoError(t, err)

	before, err := engine.Complaints.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, complaint.Medium, before.Priority)

	counter := "counter-blob-1"
	so, err := svc.SubmitSignoff(context.Background(), SubmitSignoffInput{
		ComplaintID: id, Disputed: true, DisputeReason: "not actually fixed", CounterProof: &counter,
	}, citizenActor())
	require.NoError(t, err)
	assert.True(t, so.Disputed)

	after, err := engine.Complaints.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, complaint.Resolved, after.State, "pending dispute must not change state")

	reviewed, err := svc.ReviewDispute(context.Background(), ReviewDisputeInput{
		ComplaintID: id, Approve: true, Reason: "confirmed not fixed on revisit",
	}, deptHeadActor())
	require.NoError(t, err)
	require.NotNil(t, reviewed.Approved)
	assert.True(t, *reviewed.Approved)

	reopened, err := engine.Complaints.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, complaint.InProgress, reopened.State)
	assert.Equal(t, complaint.High, reopened.Priority, "priority must bump exactly one step and cap")

	// A fresh resolution cycle must be available: the prior proof is
	// archived, so resolving again requires a new proof upload.
	_, err = svc.Resolve(context.Background(), id, staffActor())
	require.Error(t, err)
	assert.Equal(t, apperr.ProofRequired, apperr.KindOf(err))
}

func TestReviewDisputeRejectedLeavesComplaintResolved(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1",
	}, staffActor())
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), id, staffActor())
	require.NoError(t, err)

	counter := "counter-blob-1"
	_, err = svc.SubmitSignoff(context.Background(), SubmitSignoffInput{
		ComplaintID: id, Disputed: true, DisputeReason: "not fixed", CounterProof: &counter,
	}, citizenActor())
	require.NoError(t, err)

	reviewed, err := svc.ReviewDispute(context.Background(), ReviewDisputeInput{
		ComplaintID: id, Approve: false, Reason: "proof looks valid on revisit",
	}, deptHeadActor())
	require.NoError(t, err)
	require.NotNil(t, reviewed.Approved)
	assert.False(t, *reviewed.Approved)

	c, err := engine.Complaints.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, complaint.Resolved, c.State)
}

func TestSignoffRequiresAcceptedXorDisputed(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1",
	}, staffActor())
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), id, staffActor())
	require.NoError(t, err)

	_, err = svc.SubmitSignoff(context.Background(), SubmitSignoffInput{ComplaintID: id}, citizenActor())
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	_, err = svc.SubmitSignoff(context.Background(), SubmitSignoffInput{
		ComplaintID: id, Accepted: true, Disputed: true,
	}, citizenActor())
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestSignoffByNonOwnerForbidden(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1",
	}, staffActor())
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), id, staffActor())
	require.NoError(t, err)

	rating := 4
	_, err = svc.SubmitSignoff(context.Background(), SubmitSignoffInput{
		ComplaintID: id, Accepted: true, Rating: &rating,
	}, identity.Actor{UserID: 999, Role: identity.RoleCitizen})
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestReviewDisputeWrongDepartmentForbidden(t *testing.T) {
	svc, _, engine, _ := newTestService(t)
	id := fileAndStart(t, engine)

	_, err := svc.UploadProof(context.Background(), UploadProofInput{
		ComplaintID: id, ImageHandle: "blob-1",
	}, staffActor())
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), id, staffActor())
	require.NoError(t, err)

	counter := "counter"
	_, err = svc.SubmitSignoff(context.Background(), SubmitSignoffInput{
		ComplaintID: id, Disputed: true, DisputeReason: "bad", CounterProof: &counter,
	}, citizenActor())
	require.NoError(t, err)

	other := int64(2)
	_, err = svc.ReviewDispute(context.Background(), ReviewDisputeInput{
		ComplaintID: id, Approve: true, Reason: "x",
	}, identity.Actor{UserID: 61, Role: identity.RoleDeptHead, DepartmentID: &other})
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}
