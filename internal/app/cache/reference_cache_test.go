package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/storage/memory"
)

// A nil Redis client must never turn the cache into a hard dependency: every
// read passes straight through to the wrapped store.
func TestNilClientPassesThroughToNext(t *testing.T) {
	stores := memory.New()
	stores.SeedReference(
		[]reference.Category{{ID: 1, Name: "Potholes"}},
		[]reference.Department{{ID: 2, Name: "Roads", HeadUserID: 9}},
		map[string]int{"2:HIGH": 2},
	)

	c := NewReferenceStore(stores.Reference, nil, 0)

	cat, err := c.GetCategory(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Potholes", cat.Name)

	dept, err := c.GetDepartment(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Roads", dept.Name)

	days, err := c.GetSLADays(context.Background(), 2, "HIGH")
	require.NoError(t, err)
	assert.Equal(t, 2, days)
}

func TestNilClientPropagatesNotFound(t *testing.T) {
	stores := memory.New()
	c := NewReferenceStore(stores.Reference, nil, 0)

	_, err := c.GetCategory(context.Background(), 404)
	assert.Error(t, err)
}

func TestCacheKeyIsStableAcrossCalls(t *testing.T) {
	assert.Equal(t, cacheKey("category", 1), cacheKey("category", 1))
	assert.NotEqual(t, cacheKey("category", 1), cacheKey("department", 1))
	assert.NotEqual(t, cacheKey("category", 1), cacheKey("category", 2))
}

func TestNewReferenceStoreDefaultsTTL(t *testing.T) {
	c := NewReferenceStore(memory.New().Reference, nil, 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}
