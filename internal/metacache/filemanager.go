// Package metacache implements the process-wide attribute cache
// (FileManager) that memoises per-path object metadata with expiry and
// approximate-LFU capacity eviction.
package metacache

import (
	"context"
	"log/slog"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/objectfs/objectfs/internal/cache"
)

// FileEntry is one cached attribute record.
type FileEntry struct {
	Path       string
	Meta       cache.ObjectMeta
	IsDirObj   bool
	IsPrefix   bool
	LoadTime   int64
	hitBit     uint64
	hitTimeSec int64
}

// hit registers a hit at second now, masking out bits older than 64
// seconds and setting bit (now mod 64). Ported bit-for-bit from the
// original bosfs File::hit implementation.
func (fe *FileEntry) hit(now int64) {
	n := int(now % 64)
	if now-fe.hitTimeSec >= 64 {
		fe.hitBit = 0
	} else {
		h := int(fe.hitTimeSec % 64)
		hMask := uint64(1) << uint(h)
		hMask = (hMask - 1) | hMask
		nMask := ^uint64(0) ^ ((uint64(1) << uint(n)) - 1)
		if h > n {
			fe.hitBit &= hMask & nMask
		} else {
			fe.hitBit &= hMask | nMask
		}
	}
	fe.hitBit |= uint64(1) << uint(n)
	fe.hitTimeSec = now
}

// hitCount is a population count of the hit bitmap.
func (fe *FileEntry) hitCount() int {
	return bits.OnesCount64(fe.hitBit)
}

// Prober is the subset of RemoteStore FileManager needs on a cache
// miss: HEAD on the bare key and a probe listing to disambiguate a
// virtual prefix from absence.
type Prober interface {
	HeadObject(ctx context.Context, key string) (*cache.ObjectMeta, bool, error)
	ListObjects(ctx context.Context, prefix, delimiter string, maxKeys int, marker string) (*cache.ListResult, error)
}

// Clock returns the current unix second; overridable in tests.
type Clock func() int64

// OpenChecker reports whether path currently has a live, open handle
// elsewhere in the filesystem (an open CacheEntity). gc consults it
// before evicting a live entry past capacity: the original File
// Manager's refcount() > 2 check skipped evicting a File still held by
// an open FileHandle; this port has no shared_ptr refcount to read, so
// it asks the DataCache directly whether the path is open instead.
type OpenChecker func(path string) bool

// FileManager is the process-wide attribute cache, keyed by absolute
// path.
type FileManager struct {
	remote   Prober
	expirySec int64 // < 0 means never expire
	capacity int
	now      Clock
	logger   *slog.Logger
	isOpen   OpenChecker

	mu      sync.RWMutex
	entries map[string]*FileEntry
}

// New constructs a FileManager. expirySec < 0 disables expiry.
func New(remote Prober, expirySec int64, capacity int, logger *slog.Logger) *FileManager {
	if capacity <= 0 {
		capacity = 100000
	}
	return &FileManager{
		remote:    remote,
		expirySec: expirySec,
		capacity:  capacity,
		now:       func() int64 { return time.Now().Unix() },
		logger:    logger.With("component", "file_manager"),
		entries:   make(map[string]*FileEntry),
	}
}

// WithClock overrides the clock, for deterministic tests.
func (fm *FileManager) WithClock(c Clock) *FileManager {
	fm.now = c
	return fm
}

// WithOpenChecker installs the callback gc uses to skip evicting paths
// that are still open. Optional; nil (the default) evicts purely by
// hit-count/hit-time as before.
func (fm *FileManager) WithOpenChecker(c OpenChecker) *FileManager {
	fm.isOpen = c
	return fm
}

func (fm *FileManager) expired(fe *FileEntry, now int64) bool {
	if fm.expirySec < 0 {
		return false
	}
	return now-fe.LoadTime > fm.expirySec
}

// TryGet returns the cached entry for path without issuing any remote
// call. Returns (nil, false) on miss or expiry.
func (fm *FileManager) TryGet(path string) (*FileEntry, bool) {
	now := fm.now()
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fe, ok := fm.entries[path]
	if !ok {
		return nil, false
	}
	if fm.expired(fe, now) {
		delete(fm.entries, path)
		return nil, false
	}
	fe.hit(now)
	return fe, true
}

// Get returns the cached entry for path if present and fresh; on miss
// it probes the remote store (HEAD bare key, HEAD key/, then a
// disambiguating listing) and inserts the result.
func (fm *FileManager) Get(ctx context.Context, path string) (*FileEntry, error) {
	if fe, ok := fm.TryGet(path); ok {
		return fe, nil
	}

	fe, err := fm.probe(ctx, path)
	if err != nil {
		return nil, err
	}
	fm.Set(path, fe)
	return fe, nil
}

func (fm *FileManager) probe(ctx context.Context, path string) (*FileEntry, error) {
	key := path
	for len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}

	fileMeta, fileExists, err := fm.remote.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	if fileExists {
		return &FileEntry{Path: path, Meta: *fileMeta, LoadTime: fm.now()}, nil
	}

	dirMeta, dirExists, err := fm.remote.HeadObject(ctx, key+"/")
	if err != nil {
		return nil, err
	}
	if dirExists {
		return &FileEntry{Path: path, Meta: *dirMeta, IsDirObj: true, LoadTime: fm.now()}, nil
	}

	list, err := fm.remote.ListObjects(ctx, key+"/", "/", 2, "")
	if err != nil {
		return nil, err
	}
	if len(list.Contents) > 0 || len(list.CommonPrefixes) > 0 {
		return &FileEntry{Path: path, IsPrefix: true, LoadTime: fm.now()}, nil
	}

	return nil, ErrNotFound
}

// Set upserts entry for path, registering a hit and triggering gc if
// the table now exceeds capacity.
func (fm *FileManager) Set(path string, fe *FileEntry) {
	now := fm.now()
	fe.Path = path
	if fe.LoadTime == 0 {
		fe.LoadTime = now
	}
	fe.hit(now)

	fm.mu.Lock()
	fm.entries[path] = fe
	over := len(fm.entries) > fm.capacity
	fm.mu.Unlock()

	if over {
		fm.gc()
	}
}

// Del removes the entry for path unconditionally.
func (fm *FileManager) Del(path string) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	delete(fm.entries, path)
}

// gc partitions entries into expired (removed) and live; live entries
// beyond capacity, ranked by descending hit count then ascending
// hit time, are removed.
func (fm *FileManager) gc() {
	now := fm.now()
	fm.mu.Lock()
	defer fm.mu.Unlock()

	live := make([]*FileEntry, 0, len(fm.entries))
	for path, fe := range fm.entries {
		if fm.expired(fe, now) {
			delete(fm.entries, path)
			continue
		}
		live = append(live, fe)
	}
	if len(live) <= fm.capacity {
		return
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].hitCount() != live[j].hitCount() {
			return live[i].hitCount() > live[j].hitCount()
		}
		return live[i].hitTimeSec < live[j].hitTimeSec
	})
	for _, fe := range live[fm.capacity:] {
		if fm.isOpen != nil && fm.isOpen(fe.Path) {
			continue
		}
		delete(fm.entries, fe.Path)
	}
}

// Len returns the number of cached entries, for tests and metrics.
func (fm *FileManager) Len() int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return len(fm.entries)
}
