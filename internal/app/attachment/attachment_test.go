package attachment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenFetchURLRoundTrips(t *testing.T) {
	store := NewMemoryStore("https://attachments.local/blobs")

	handle, err := store.Put(context.Background(), "image/jpeg", []byte("fake-bytes"))
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	url, err := store.FetchURL(context.Background(), handle, 0)
	require.NoError(t, err)
	assert.Contains(t, url, "https://attachments.local/blobs/"+handle)
	assert.Contains(t, url, "expires=")
}

func TestFetchURLUnknownHandleNotFound(t *testing.T) {
	store := NewMemoryStore("https://attachments.local/blobs")
	_, err := store.FetchURL(context.Background(), "missing-handle", 0)
	assert.Error(t, err)
}

func TestPutProducesDistinctHandles(t *testing.T) {
	store := NewMemoryStore("https://attachments.local/blobs")
	h1, err := store.Put(context.Background(), "image/jpeg", []byte("a"))
	require.NoError(t, err)
	h2, err := store.Put(context.Background(), "image/jpeg", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
