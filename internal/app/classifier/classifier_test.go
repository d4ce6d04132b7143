package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNotConfiguredDegrades(t *testing.T) {
	a := New("", nil)
	result := a.Classify(context.Background(), Request{Title: "x"})
	assert.True(t, result.NeedsManualRoute)
	assert.Zero(t, result.Confidence)
}

func TestClassifyFlatSchemaConfident(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category_id":1,"department_id":2,"priority":"HIGH","confidence":0.91,"reasoning":"clear"}`))
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	result := a.Classify(context.Background(), Request{Title: "Pothole", Description: "big one"})
	require.False(t, result.NeedsManualRoute)
	assert.Equal(t, int64(1), result.CategoryID)
	assert.Equal(t, int64(2), result.DepartmentID)
	assert.Equal(t, "HIGH", result.Priority)
	assert.InDelta(t, 0.91, result.Confidence, 0.0001)
}

func TestClassifyNestedSchemaLowConfidenceNeedsManualRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"classification":{"category_id":3,"department_id":4,"confidence":0.4}}`))
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	result := a.Classify(context.Background(), Request{Title: "Weird issue"})
	assert.True(t, result.NeedsManualRoute)
	assert.Equal(t, "MEDIUM", result.Priority, "missing priority field falls back to MEDIUM")
}

func TestClassifyNon200Degrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	result := a.Classify(context.Background(), Request{Title: "x"})
	assert.True(t, result.NeedsManualRoute)
	assert.Zero(t, result.Confidence)
}

func TestClassifyMissingRequiredFieldsDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"priority":"HIGH"}`))
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	result := a.Classify(context.Background(), Request{Title: "x"})
	assert.True(t, result.NeedsManualRoute)
}

func TestClassifyTimeoutDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(srv.URL, &http.Client{Timeout: 5 * time.Millisecond})
	result := a.Classify(context.Background(), Request{Title: "x"})
	assert.True(t, result.NeedsManualRoute)
	assert.Zero(t, result.Confidence)
}
