package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "debug/run1/page.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "memory://debug/run1/page.html", uri)

	data, ok := store.Object("debug/run1/page.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html/>"), data)
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, ok := store.Object("nope")
	require.False(t, ok)
	require.Empty(t, store.Paths())
}
