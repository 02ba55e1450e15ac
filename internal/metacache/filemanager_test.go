package metacache

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/objectfs/objectfs/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	heads map[string]cache.ObjectMeta
	lists map[string]cache.ListResult
	calls int
}

func (f *fakeProber) HeadObject(ctx context.Context, key string) (*cache.ObjectMeta, bool, error) {
	f.calls++
	m, ok := f.heads[key]
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

func (f *fakeProber) ListObjects(ctx context.Context, prefix, delimiter string, maxKeys int, marker string) (*cache.ListResult, error) {
	if r, ok := f.lists[prefix]; ok {
		return &r, nil
	}
	return &cache.ListResult{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileManager_GetRegularFile(t *testing.T) {
	p := &fakeProber{heads: map[string]cache.ObjectMeta{"f": {ContentLength: 5}}}
	fm := New(p, 60, 100, testLogger())

	fe, err := fm.Get(context.Background(), "/f")
	require.NoError(t, err)
	assert.False(t, fe.IsDirObj)
	assert.False(t, fe.IsPrefix)
	assert.Equal(t, int64(5), fe.Meta.ContentLength)

	// second call is served from cache, no extra HEAD calls.
	calls := p.calls
	_, err = fm.Get(context.Background(), "/f")
	require.NoError(t, err)
	assert.Equal(t, calls, p.calls)
}

func TestFileManager_GetVirtualPrefix(t *testing.T) {
	p := &fakeProber{
		heads: map[string]cache.ObjectMeta{},
		lists: map[string]cache.ListResult{"d1/": {CommonPrefixes: []string{"d1/sub/"}}},
	}
	fm := New(p, 60, 100, testLogger())

	fe, err := fm.Get(context.Background(), "/d1")
	require.NoError(t, err)
	assert.True(t, fe.IsPrefix)
}

func TestFileManager_GetNotFound(t *testing.T) {
	p := &fakeProber{}
	fm := New(p, 60, 100, testLogger())
	_, err := fm.Get(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileManager_DelInvalidatesEntry(t *testing.T) {
	p := &fakeProber{heads: map[string]cache.ObjectMeta{"f": {ContentLength: 5}}}
	fm := New(p, 60, 100, testLogger())
	_, err := fm.Get(context.Background(), "/f")
	require.NoError(t, err)

	fm.Del("/f")
	_, ok := fm.TryGet("/f")
	assert.False(t, ok)
}

func TestFileManager_HitBitmapCountsRecentHits(t *testing.T) {
	fe := &FileEntry{}
	fe.hit(1000)
	assert.Equal(t, 1, fe.hitCount())
	fe.hit(1001)
	assert.Equal(t, 2, fe.hitCount())
	// a hit 64+ seconds later resets the window.
	fe.hit(1100)
	assert.Equal(t, 1, fe.hitCount())
}

func TestFileManager_GCEvictsLowestPriorityBeyondCapacity(t *testing.T) {
	p := &fakeProber{heads: map[string]cache.ObjectMeta{
		"a": {}, "b": {}, "c": {},
	}}
	fm := New(p, -1, 2, testLogger())
	now := int64(1000)
	fm.WithClock(func() int64 { return now })

	_, err := fm.Get(context.Background(), "/a")
	require.NoError(t, err)
	now++
	_, err = fm.Get(context.Background(), "/b")
	require.NoError(t, err)
	now++
	_, err = fm.Get(context.Background(), "/c")
	require.NoError(t, err)

	assert.LessOrEqual(t, fm.Len(), 2)
}

func TestFileManager_GCSkipsOpenPaths(t *testing.T) {
	p := &fakeProber{heads: map[string]cache.ObjectMeta{
		"a": {}, "b": {}, "c": {},
	}}
	fm := New(p, -1, 2, testLogger())
	fm.WithOpenChecker(func(path string) bool { return path == "/c" })
	now := int64(1000)
	fm.WithClock(func() int64 { return now })

	_, err := fm.Get(context.Background(), "/a")
	require.NoError(t, err)
	now++
	_, err = fm.Get(context.Background(), "/b")
	require.NoError(t, err)
	now++
	_, err = fm.Get(context.Background(), "/c")
	require.NoError(t, err)

	// All three have one hit; ties rank by ascending hit time, so "/c"
	// falls past capacity and would be evicted, but it's reported open
	// so it survives.
	_, ok := fm.TryGet("/c")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, fm.Len(), 2)
}
