package registry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"feedstrip/db"
	"feedstrip/models"
	"feedstrip/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvictor struct {
	evicted []string
}

func (e *recordingEvictor) Evict(identity string) {
	e.evicted = append(e.evicted, identity)
}

type failingStore struct {
	db.KeyValueStore
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

func newRegistry(t *testing.T, maxSources int) (*registry.Registry, *db.MemoryStore, *recordingEvictor) {
	t.Helper()
	kv := db.NewMemoryStore()
	ev := &recordingEvictor{}
	r, err := registry.Load(context.Background(), kv, maxSources, ev)
	require.NoError(t, err)
	return r, kv, ev
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		valid    bool
	}{
		{name: "plain https", raw: "https://example.com/feed.xml", expected: "https://example.com/feed.xml", valid: true},
		{name: "surrounding whitespace", raw: "  http://example.com/rss  ", expected: "http://example.com/rss", valid: true},
		{name: "uppercase host and scheme", raw: "HTTPS://Example.COM/Feed", expected: "https://example.com/Feed", valid: true},
		{name: "query kept", raw: "https://example.com/rss?a=1&b=2", expected: "https://example.com/rss?a=1&b=2", valid: true},
		{name: "fragment dropped", raw: "https://example.com/rss#top", expected: "https://example.com/rss", valid: true},
		{name: "empty", raw: "", valid: false},
		{name: "relative", raw: "/feed.xml", valid: false},
		{name: "no scheme", raw: "example.com/rss", valid: false},
		{name: "unsupported scheme", raw: "ftp://example.com/rss", valid: false},
		{name: "missing host", raw: "https:///rss", valid: false},
		{name: "garbage", raw: "ht tp://%zz", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.Normalize(tt.raw)
			if !tt.valid {
				assert.ErrorIs(t, err, models.ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAddPreservesOrderUpToCapacity(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t, 5)

	var want []string
	for i := 0; i < 5; i++ {
		id, err := r.Add(ctx, fmt.Sprintf("https://feed%d.example.com/rss", i))
		require.NoError(t, err)
		want = append(want, id)
		assert.Equal(t, want, r.List())
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 5, r.Cap())
}

func TestAddBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t, 2)

	_, err := r.Add(ctx, "https://a.example.com/rss")
	require.NoError(t, err)
	_, err = r.Add(ctx, "https://b.example.com/rss")
	require.NoError(t, err)
	before := r.List()

	_, err = r.Add(ctx, "https://c.example.com/rss")
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	assert.Equal(t, before, r.List())
}

func TestAddRejectsInvalidAndDuplicate(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t, 5)

	_, err := r.Add(ctx, "not a url")
	assert.ErrorIs(t, err, models.ErrInvalidURL)

	_, err = r.Add(ctx, "https://a.example.com/rss")
	require.NoError(t, err)
	_, err = r.Add(ctx, " https://A.example.com/rss ")
	assert.ErrorIs(t, err, models.ErrDuplicateSource)
	assert.Equal(t, 1, r.Len())
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r, _, ev := newRegistry(t, 5)

	for _, u := range []string{"https://a.example.com/rss", "https://b.example.com/rss", "https://c.example.com/rss"} {
		_, err := r.Add(ctx, u)
		require.NoError(t, err)
	}

	require.NoError(t, r.Remove(ctx, "https://b.example.com/rss"))
	assert.Equal(t, []string{"https://a.example.com/rss", "https://c.example.com/rss"}, r.List())
	assert.Equal(t, []string{"https://b.example.com/rss"}, ev.evicted)
	assert.False(t, r.Contains("https://b.example.com/rss"))
}

func TestRemoveNonMember(t *testing.T) {
	ctx := context.Background()
	r, _, ev := newRegistry(t, 5)
	_, err := r.Add(ctx, "https://a.example.com/rss")
	require.NoError(t, err)

	err = r.Remove(ctx, "https://missing.example.com/rss")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, []string{"https://a.example.com/rss"}, r.List())
	assert.Empty(t, ev.evicted)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, kv, _ := newRegistry(t, 5)

	_, err := r.Add(ctx, "https://a.example.com/rss")
	require.NoError(t, err)
	_, err = r.Add(ctx, "https://b.example.com/rss")
	require.NoError(t, err)

	raw, ok, err := kv.Get(ctx, db.KeyFeedURLs)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["https://a.example.com/rss","https://b.example.com/rss"]`, raw)

	reloaded, err := registry.Load(ctx, kv, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, r.List(), reloaded.List())
}

func TestLoadSkipsBadEntries(t *testing.T) {
	ctx := context.Background()
	kv := db.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, db.KeyFeedURLs,
		`["https://a.example.com/rss","nonsense","https://a.example.com/rss","https://b.example.com/rss","https://c.example.com/rss"]`))

	r, err := registry.Load(ctx, kv, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com/rss", "https://b.example.com/rss"}, r.List())
}

func TestLoadCorruptValue(t *testing.T) {
	ctx := context.Background()
	kv := db.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, db.KeyFeedURLs, `{not json`))

	_, err := registry.Load(ctx, kv, 5, nil)
	assert.Error(t, err)
}

func TestPersistFailureLeavesRegistryUnchanged(t *testing.T) {
	ctx := context.Background()
	r, err := registry.Load(ctx, failingStore{db.NewMemoryStore()}, 5, nil)
	require.NoError(t, err)

	_, err = r.Add(ctx, "https://a.example.com/rss")
	assert.Error(t, err)
	assert.Empty(t, r.List())
}
