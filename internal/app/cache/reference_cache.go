// Package cache wraps the read-mostly reference-data reads (categories,
// departments, SLA matrix) with a small TTL cache backed by Redis, per
// §5's "reference data is treated as read-mostly and may be cached with a
// small TTL (default 60s)". Redis absence is not an error: the cache falls
// back to direct store reads so it is an optimization, never a dependency.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/storage"
)

// DefaultTTL is the reference-data cache freshness window.
const DefaultTTL = 60 * time.Second

// ReferenceStore is a storage.ReferenceStore decorator that serves category,
// department, and SLA lookups from Redis when available, and always falls
// through to the wrapped store on a cache miss or when no client is
// configured.
type ReferenceStore struct {
	next   storage.ReferenceStore
	client *redis.Client
	ttl    time.Duration
}

// NewReferenceStore wraps next with a Redis read-through cache. client may
// be nil, in which case every call passes straight through to next.
func NewReferenceStore(next storage.ReferenceStore, client *redis.Client, ttl time.Duration) *ReferenceStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReferenceStore{next: next, client: client, ttl: ttl}
}

var _ storage.ReferenceStore = (*ReferenceStore)(nil)

func (c *ReferenceStore) GetCategory(ctx context.Context, id int64) (reference.Category, error) {
	key := cacheKey("category", id)
	var out reference.Category
	if c.getCached(ctx, key, &out) {
		return out, nil
	}
	val, err := c.next.GetCategory(ctx, id)
	if err != nil {
		return reference.Category{}, err
	}
	c.setCached(ctx, key, val)
	return val, nil
}

func (c *ReferenceStore) GetDepartment(ctx context.Context, id int64) (reference.Department, error) {
	key := cacheKey("department", id)
	var out reference.Department
	if c.getCached(ctx, key, &out) {
		return out, nil
	}
	val, err := c.next.GetDepartment(ctx, id)
	if err != nil {
		return reference.Department{}, err
	}
	c.setCached(ctx, key, val)
	return val, nil
}

func (c *ReferenceStore) GetSLADays(ctx context.Context, departmentID int64, priority string) (int, error) {
	key := "grievance:reference:sla:" + strconv.FormatInt(departmentID, 10) + ":" + priority
	var out int
	if c.getCached(ctx, key, &out) {
		return out, nil
	}
	val, err := c.next.GetSLADays(ctx, departmentID, priority)
	if err != nil {
		return 0, err
	}
	c.setCached(ctx, key, val)
	return val, nil
}

func (c *ReferenceStore) getCached(ctx context.Context, key string, out any) bool {
	if c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (c *ReferenceStore) setCached(ctx context.Context, key string, val any) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	// Best-effort: a cache write failure never surfaces to the caller, since
	// the cache is an optimization over the store, not a dependency on it.
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
}

func cacheKey(kind string, id int64) string {
	return "grievance:reference:" + kind + ":" + strconv.FormatInt(id, 10)
}
