package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemoryStore("crm-files")

	url, err := m.Put(context.Background(), []byte("pdf bytes"), "c1/properties/p1/contract.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "memory://crm-files/c1/properties/p1/contract.pdf", url)

	data, ok := m.Get("c1/properties/p1/contract.pdf")
	require.True(t, ok)
	assert.Equal(t, []byte("pdf bytes"), data)

	require.NoError(t, m.Delete(context.Background(), "c1/properties/p1/contract.pdf"))
	_, ok = m.Get("c1/properties/p1/contract.pdf")
	assert.False(t, ok)

	// Deleting a missing object is not an error.
	assert.NoError(t, m.Delete(context.Background(), "missing"))
}

func TestMemoryStorePresign(t *testing.T) {
	m := NewMemoryStore("crm-files")

	upload, err := m.PresignUpload(context.Background(), "k", "application/pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, upload, "memory://crm-files/k")
	assert.Contains(t, upload, "upload=1")

	download, err := m.PresignDownload(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, download, "memory://crm-files/k")
	assert.NotContains(t, download, "upload=1")
}

func TestNopExtractor(t *testing.T) {
	extraction, err := NopExtractor{}.Extract(context.Background(), "k")
	require.NoError(t, err)
	require.NotNil(t, extraction)
	assert.Empty(t, extraction.Fields)
}
