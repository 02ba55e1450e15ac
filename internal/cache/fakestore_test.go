package cache

import (
	"context"
	"io"
	"sync"
)

// fakeStore is a minimal in-memory RemoteStore used by cache package
// tests in place of a real S3 endpoint.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	metas   map[string]ObjectMeta
	puts    int
	multiparts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, metas: map[string]ObjectMeta{}}
}

func (f *fakeStore) seed(key string, data []byte, meta ObjectMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta.ContentLength = int64(len(data))
	f.objects[key] = append([]byte(nil), data...)
	f.metas[key] = meta
}

func (f *fakeStore) HeadObject(ctx context.Context, key string) (*ObjectMeta, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.metas[key]
	if !ok {
		return nil, false, nil
	}
	mc := m
	return &mc, true, nil
}

func (f *fakeStore) ListObjects(ctx context.Context, prefix, delimiter string, maxKeys int, marker string) (*ListResult, error) {
	return &ListResult{}, nil
}

func (f *fakeStore) GetRange(ctx context.Context, key string, offset, length int64, dst io.WriterAt) error {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return io.ErrUnexpectedEOF
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if end <= offset {
		return nil
	}
	_, err := dst.WriteAt(data[offset:end], offset)
	return err
}

func (f *fakeStore) PutObject(ctx context.Context, key string, src io.ReaderAt, size int64, meta ObjectMeta) error {
	buf := make([]byte, size)
	if _, err := src.ReadAt(buf, 0); err != nil && err != io.EOF {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = buf
	meta.ContentLength = size
	f.metas[key] = meta
	f.puts++
	return nil
}

func (f *fakeStore) UploadSuperFile(ctx context.Context, key string, src io.ReaderAt, size int64, meta ObjectMeta, partSize int64, parallel int) error {
	buf := make([]byte, size)
	if _, err := src.ReadAt(buf, 0); err != nil && err != io.EOF {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = buf
	meta.ContentLength = size
	f.metas[key] = meta
	f.multiparts++
	return nil
}

func (f *fakeStore) CopyObject(ctx context.Context, srcKey, dstKey, storageClass string, meta *ObjectMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[srcKey]
	if !ok {
		return io.ErrUnexpectedEOF
	}
	f.objects[dstKey] = data
	m := f.metas[srcKey]
	if meta != nil {
		m = *meta
	}
	f.metas[dstKey] = m
	return nil
}

func (f *fakeStore) ParallelCopy(ctx context.Context, srcKey, dstKey string, size int64, storageClass string, meta *ObjectMeta) error {
	return f.CopyObject(ctx, srcKey, dstKey, storageClass, meta)
}

func (f *fakeStore) DeleteObject(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.metas, key)
	return nil
}

func (f *fakeStore) SendRequestBatch(ctx context.Context, keys []string, concurrency int) map[string]HeadResult {
	out := make(map[string]HeadResult, len(keys))
	for _, k := range keys {
		m, ok, err := f.HeadObject(ctx, k)
		out[k] = HeadResult{Meta: m, Exists: ok, Err: err}
	}
	return out
}
