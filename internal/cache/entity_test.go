package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimits(t *testing.T) Limits {
	return Limits{
		CacheDir:           t.TempDir(),
		TmpDir:             t.TempDir(),
		Bucket:             "bucket",
		MultipartSize:      10 << 20,
		MultipartThreshold: 100 << 20,
		MultipartParallel:  4,
		StorageClass:       "STANDARD",
	}
}

func TestCacheEntity_WriteThenReadRoundTrip(t *testing.T) {
	store := newFakeStore()
	ent := NewCacheEntity("/f", testLimits(t), store, testLogger())
	ctx := context.Background()

	require.NoError(t, ent.OpenFile(ctx, nil, 0, false))
	defer ent.CloseFile(ctx)

	n, err := ent.Write(ctx, []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.GreaterOrEqual(t, ent.Size(), int64(5))

	buf := make([]byte, 5)
	n, err = ent.Read(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.True(t, ent.Modified())
}

func TestCacheEntity_FlushSmallUsesPutObject(t *testing.T) {
	store := newFakeStore()
	limits := testLimits(t)
	ent := NewCacheEntity("/f", limits, store, testLogger())
	ctx := context.Background()

	require.NoError(t, ent.OpenFile(ctx, nil, 0, false))
	_, err := ent.Write(ctx, []byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, ent.Flush(ctx, false))

	assert.Equal(t, 1, store.puts)
	assert.Equal(t, 0, store.multiparts)
	assert.False(t, ent.Modified())
	assert.Equal(t, []byte("hello"), store.objects["/f"])
}

func TestCacheEntity_FlushLargeUsesMultipart(t *testing.T) {
	store := newFakeStore()
	limits := testLimits(t)
	limits.MultipartThreshold = 10 // force multipart path
	ent := NewCacheEntity("/big", limits, store, testLogger())
	ctx := context.Background()

	require.NoError(t, ent.OpenFile(ctx, nil, 0, false))
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := ent.Write(ctx, data, 0)
	require.NoError(t, err)
	require.NoError(t, ent.Flush(ctx, false))

	assert.Equal(t, 1, store.multiparts)
	assert.Equal(t, 0, store.puts)
}

func TestCacheEntity_ReadFaultsInFromRemote(t *testing.T) {
	store := newFakeStore()
	store.seed("/big", []byte("0123456789"), ObjectMeta{ContentType: "application/octet-stream"})

	limits := testLimits(t)
	ent := NewCacheEntity("/big", limits, store, testLogger())
	ctx := context.Background()

	meta, _, err := store.HeadObject(ctx, "/big")
	require.NoError(t, err)
	require.NoError(t, ent.OpenFile(ctx, meta, meta.ContentLength, false))

	buf := make([]byte, 4)
	n, err := ent.Read(ctx, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(buf[:n]))
}

func TestCacheEntity_TmpfileReadOnlyCloseDoesNotUpload(t *testing.T) {
	store := newFakeStore()
	store.seed("/big", []byte("0123456789"), ObjectMeta{ContentType: "application/octet-stream"})

	limits := testLimits(t)
	limits.CacheDir = "" // tmpfile mode
	ent := NewCacheEntity("/big", limits, store, testLogger())
	ctx := context.Background()

	meta, _, err := store.HeadObject(ctx, "/big")
	require.NoError(t, err)
	require.NoError(t, ent.OpenFile(ctx, meta, meta.ContentLength, false))

	buf := make([]byte, 4)
	_, err = ent.Read(ctx, buf, 0)
	require.NoError(t, err)
	assert.False(t, ent.Modified())

	closed, err := ent.CloseFile(ctx)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 0, store.puts)
	assert.Equal(t, 0, store.multiparts)
}

func TestCacheEntity_RefCounting(t *testing.T) {
	store := newFakeStore()
	limits := testLimits(t)
	dc := NewDataCache(limits, store, testLogger())
	ctx := context.Background()

	ent, err := dc.OpenCache(ctx, "/f", nil, 0, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, ent.RefCount())

	ent2, err := dc.OpenCache(ctx, "/f", nil, 0, false, true)
	require.NoError(t, err)
	assert.Same(t, ent, ent2)
	assert.Equal(t, 2, ent.RefCount())

	require.NoError(t, dc.CloseCache(ctx, ent))
	assert.Equal(t, 1, dc.Len())

	require.NoError(t, dc.CloseCache(ctx, ent))
	assert.Equal(t, 0, dc.Len())
}
