// Package attachment specifies the narrow contract the core consumes from
// the object-storage subsystem: issuing an opaque handle for an uploaded
// blob (intake image, resolution proof image, counter-proof image) and
// resolving a handle to a short-lived fetch URL. Object-storage primitives
// themselves (bucket management, multipart upload, etc.) are out of scope;
// Store is the seam a real blob store plugs into.
package attachment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openmuni/grievance-core/pkg/apperr"
)

// DefaultURLTTL is how long an issued fetch URL remains valid.
const DefaultURLTTL = 15 * time.Minute

// Store is the opaque-handle contract the core depends on. Implementations
// live outside the core (a real object store); this package only ships an
// in-memory Store used in dev/test so the module is runnable standalone.
type Store interface {
	// Put registers an already-uploaded blob's bytes under a new handle and
	// returns that handle. The core never streams blob bytes through its own
	// request path beyond this call.
	Put(ctx context.Context, contentType string, data []byte) (handle string, err error)

	// FetchURL resolves a handle to a time-limited URL the caller can use to
	// retrieve the blob directly from the object store.
	FetchURL(ctx context.Context, handle string, ttl time.Duration) (url string, err error)
}

// MemoryStore is a dev/test Store that keeps blobs in process memory and
// fabricates fetch URLs under a configurable base path. It is never used in
// production; a real deployment wires a genuine object-storage client
// behind the same Store interface.
type MemoryStore struct {
	baseURL string
	blobs   map[string]blob
}

type blob struct {
	contentType string
	data        []byte
}

// NewMemoryStore creates a MemoryStore that fabricates fetch URLs rooted at
// baseURL (e.g. "https://attachments.local/blobs").
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, blobs: make(map[string]blob)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Put(_ context.Context, contentType string, data []byte) (string, error) {
	handle := uuid.NewString()
	m.blobs[handle] = blob{contentType: contentType, data: append([]byte(nil), data...)}
	return handle, nil
}

func (m *MemoryStore) FetchURL(_ context.Context, handle string, ttl time.Duration) (string, error) {
	if _, ok := m.blobs[handle]; !ok {
		return "", apperr.NotFoundf("attachment handle %q not found", handle)
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", m.baseURL, handle, expires), nil
}
