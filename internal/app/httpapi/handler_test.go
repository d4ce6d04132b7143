package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/grievance-core/internal/app/classifier"
	"github.com/openmuni/grievance-core/internal/app/clock"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/services/resolution"
	"github.com/openmuni/grievance-core/internal/app/storage/memory"
)

const testSecret = "test-secret-key-for-httpapi"

type fixedClassifier struct{}

func (fixedClassifier) Classify(context.Context, classifier.Request) classifier.Result {
	return classifier.Result{CategoryID: 1, DepartmentID: 1, Priority: "MEDIUM", Confidence: 0.9}
}

func newTestHandler(t *testing.T) (http.Handler, *memory.Stores, *clock.Virtual) {
	t.Helper()
	stores := memory.New()
	stores.SeedReference(
		[]reference.Category{{ID: 1, Name: "Potholes"}},
		[]reference.Department{{ID: 1, Name: "Roads", HeadUserID: 50}},
		map[string]int{"1:MEDIUM": 5},
	)
	clk := clock.NewVirtual(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	engine := lifecycle.New(stores.Complaints, stores.Proofs, stores.Signoffs, stores.Audit, stores.Reference, fixedClassifier{}, clk, lifecycle.DefaultConfig(), stores.Tx, nil)
	resSvc := resolution.New(engine, stores.Proofs, stores.Signoffs, stores.Complaints, clk)

	h := &Handler{
		Engine:     engine,
		Resolution: resSvc,
		Complaints: stores.Complaints,
		Audit:      stores.Audit,
		StartedAt:  clk.Now(),
	}
	validator := NewHMACValidator(testSecret)
	router := NewRouter(h, validator, nil)
	return router, stores, clk
}

func token(t *testing.T, userID int64, role identity.Role, deptID *int64) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           userID,
		Role:             string(role),
		DepartmentID:     deptID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, router http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateComplaintRequiresAuth(t *testing.T) {
	router, _, _ := newTestHandler(t)
	rec := doRequest(t, router, http.MethodPost, "/complaints", "", map[string]any{
		"title": "Pothole", "description": "desc", "location": "Main St",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndFetchComplaint(t *testing.T) {
	router, _, _ := newTestHandler(t)
	citizenTok := token(t, 1, identity.RoleCitizen, nil)

	rec := doRequest(t, router, http.MethodPost, "/complaints", citizenTok, map[string]any{
		"title": "Pothole", "description": "Large pothole on Main St", "location": "Main St",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created complaintResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "FILED", created.State)
	assert.Contains(t, created.ID, "GRV-2026-")

	rec = doRequest(t, router, http.MethodGet, "/complaints/1", citizenTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFiledToInProgressRequiresAssignmentViaAPI(t *testing.T) {
	router, _, _ := newTestHandler(t)
	citizenTok := token(t, 1, identity.RoleCitizen, nil)
	deptHeadTok := token(t, 50, identity.RoleDeptHead, ptrInt64(1))
	staffTok := token(t, 99, identity.RoleStaff, nil)

	rec := doRequest(t, router, http.MethodPost, "/complaints", citizenTok, map[string]any{
		"title": "Pothole", "description": "Large pothole on Main St", "location": "Main St",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/complaints/1/state", staffTok, map[string]any{
		"target_state": "IN_PROGRESS",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	var errBody errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "INVALID_STATE_TRANSITION", errBody.ErrorKind)

	rec = doRequest(t, router, http.MethodPost, "/complaints/1/assign", deptHeadTok, map[string]any{"staff_id": 99})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/complaints/1/state", staffTok, map[string]any{
		"target_state": "IN_PROGRESS",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminOnlyEndpointsRejectNonAdmin(t *testing.T) {
	router, _, _ := newTestHandler(t)
	citizenTok := token(t, 1, identity.RoleCitizen, nil)
	rec := doRequest(t, router, http.MethodGet, "/complaints/pending-routing", citizenTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEndpointIsPublic(t *testing.T) {
	router, _, _ := newTestHandler(t)
	rec := doRequest(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func ptrInt64(v int64) *int64 { return &v }

func TestDuplicateComplaintsFindsNearbyAndRejectsCitizen(t *testing.T) {
	router, _, _ := newTestHandler(t)
	citizenTok := token(t, 1, identity.RoleCitizen, nil)
	staffTok := token(t, 99, identity.RoleStaff, nil)

	rec := doRequest(t, router, http.MethodPost, "/complaints", citizenTok, map[string]any{
		"title": "Pothole", "description": "Large pothole near the bus stop", "location": "MG Road",
		"lat": 12.9716, "lon": 77.5946,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/complaints/duplicates?lat=12.9716&lon=77.5946&radius_m=500", staffTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dupes []duplicateComplaintResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dupes))
	require.Len(t, dupes, 1)
	assert.InDelta(t, 0, dupes[0].DistanceM, 1)

	rec = doRequest(t, router, http.MethodGet, "/complaints/duplicates?lat=12.9716&lon=77.5946", citizenTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDuplicateComplaintsRequiresLatLon(t *testing.T) {
	router, _, _ := newTestHandler(t)
	staffTok := token(t, 99, identity.RoleStaff, nil)

	rec := doRequest(t, router, http.MethodGet, "/complaints/duplicates?lat=12.9716", staffTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
