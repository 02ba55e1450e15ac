package cache

import (
	"context"
	"io"
	"time"
)

// ObjectMeta is the object-storage attribute set the core reads from
// and writes to the remote store. UserMeta carries the POSIX-attribute
// encoding keys (bosfs-mtime, bosfs-mode, bosfs-uid, bosfs-gid,
// bosfs-xattr) alongside any caller-set metadata.
type ObjectMeta struct {
	ContentType   string
	ContentLength int64
	LastModified  time.Time
	StorageClass  string
	ETag          string
	UserMeta      map[string]string
}

// Clone returns a deep copy of m, safe to mutate independently.
func (m ObjectMeta) Clone() ObjectMeta {
	out := m
	out.UserMeta = make(map[string]string, len(m.UserMeta))
	for k, v := range m.UserMeta {
		out.UserMeta[k] = v
	}
	return out
}

// ListEntry is one object or virtual prefix returned by ListObjects.
type ListEntry struct {
	Key      string
	Meta     ObjectMeta
	IsPrefix bool
}

// ListResult is one page of a delimited listing.
type ListResult struct {
	Contents       []ListEntry
	CommonPrefixes []string
	NextMarker     string
	Truncated      bool
}

// HeadResult is one outcome of a batched HEAD request.
type HeadResult struct {
	Meta   *ObjectMeta
	Exists bool
	Err    error
}

// RemoteStore is the narrow contract the core consumes from the
// object-storage SDK, matching the operations enumerated in the
// StorageAdapter contract: head, list, ranged get, put, multipart put,
// copy, parallel copy, delete, and batched head.
type RemoteStore interface {
	HeadObject(ctx context.Context, key string) (meta *ObjectMeta, exists bool, err error)
	ListObjects(ctx context.Context, prefix, delimiter string, maxKeys int, marker string) (*ListResult, error)
	GetRange(ctx context.Context, key string, offset, length int64, dst io.WriterAt) error
	PutObject(ctx context.Context, key string, src io.ReaderAt, size int64, meta ObjectMeta) error
	UploadSuperFile(ctx context.Context, key string, src io.ReaderAt, size int64, meta ObjectMeta, partSize int64, parallel int) error
	CopyObject(ctx context.Context, srcKey, dstKey, storageClass string, meta *ObjectMeta) error
	ParallelCopy(ctx context.Context, srcKey, dstKey string, size int64, storageClass string, meta *ObjectMeta) error
	DeleteObject(ctx context.Context, key string) error
	SendRequestBatch(ctx context.Context, keys []string, concurrency int) map[string]HeadResult
}
