package aes67

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheMergeIdempotent(t *testing.T) {
	cache := NewCache()

	cache.Merge(studioStream())
	cache.Merge(studioStream())

	require.Equal(t, 1, cache.Len())
	require.Equal(t, studioStream().Channels, cache.Get("Studio1").Channels)
}

func TestCacheMergeRefreshes(t *testing.T) {
	cache := NewCache()
	cache.Merge(studioStream())

	// re-announced with a new multicast target, every field replaced
	updated := studioStream()
	updated.Multicast = "239.69.85.221"
	updated.Port = 5006
	cache.Merge(updated)

	require.Equal(t, 1, cache.Len())
	require.Equal(t, "239.69.85.221", cache.Get("Studio1").Multicast)
	require.Equal(t, 5006, cache.Get("Studio1").Port)
}

func TestCacheKeepsUnannounced(t *testing.T) {
	cache := NewCache()
	cache.Merge(studioStream())

	other := studioStream()
	other.Name = "Studio2"
	cache.Merge(other)

	// a cycle that only sees Studio2 leaves Studio1 untouched
	cache.Merge(other.Clone())
	require.Equal(t, 2, cache.Len())
	require.NotNil(t, cache.Get("Studio1"))
}

func TestCachePrune(t *testing.T) {
	cache := NewCache()

	old := studioStream()
	old.LastSeen = time.Now().Add(-time.Hour)
	cache.Merge(old)

	fresh := studioStream()
	fresh.Name = "Studio2"
	fresh.LastSeen = time.Now()
	cache.Merge(fresh)

	// ttl zero keeps everything
	require.Equal(t, 0, cache.Prune(0))
	require.Equal(t, 2, cache.Len())

	require.Equal(t, 1, cache.Prune(30*time.Minute))
	require.Nil(t, cache.Get("Studio1"))
	require.NotNil(t, cache.Get("Studio2"))
}

func TestCacheAllIsCopy(t *testing.T) {
	cache := NewCache()
	cache.Merge(studioStream())

	all := cache.All()
	all["Studio1"].Channels[0] = "mutated"
	delete(all, "Studio1")

	require.Equal(t, "Tx Left", cache.Get("Studio1").Channels[0])
}
