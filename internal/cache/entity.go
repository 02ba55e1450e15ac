package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/objectfs/objectfs/pkg/utils"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Limits bundles the mount-level tuning knobs a CacheEntity needs but
// does not own: multipart sizing and the tmp/cache directory roots.
type Limits struct {
	CacheDir           string // empty => tmpfile-only mode
	TmpDir             string
	Bucket             string
	MultipartSize      int64
	MultipartThreshold int64
	MultipartParallel  int
	StorageClass       string
}

func (l Limits) reservedBytes() int64 {
	return l.MultipartSize * int64(l.MultipartParallel)
}

// CacheEntity owns exactly one local scratch file for a remote path: it
// serves reads and writes against that file, demand-faults byte ranges
// from the remote store, and uploads dirty content on flush. All
// operations are serialized by mu, a recursive-in-effect lock
// (Go mutexes are not recursive, so internal helpers that already hold
// the lock are unexported and never re-acquire it).
type CacheEntity struct {
	path   string
	limits Limits
	remote RemoteStore
	logger *slog.Logger

	mu       sync.Mutex
	refCount int

	fd         *os.File
	mirrorPath string
	isTmpfile  bool
	localPath  string

	pages *PageList

	origMeta     ObjectMeta
	origMetaSize int64
	modified     bool

	stat *StatCacheFile
}

// NewCacheEntity constructs an unopened entity for path.
func NewCacheEntity(path string, limits Limits, remote RemoteStore, logger *slog.Logger) *CacheEntity {
	return &CacheEntity{
		path:   path,
		limits: limits,
		remote: remote,
		pages:  NewPageList(),
		logger: logger.With("component", "cache_entity", "path", path),
	}
}

// RefCount returns the current reference count (0 once fully closed).
func (e *CacheEntity) RefCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refCount
}

// persistentPath is <cache_dir>/<bucket>/<path>, rejecting any object
// key that would escape the cache directory.
func (e *CacheEntity) persistentPath() (string, error) {
	base := filepath.Join(e.limits.CacheDir, e.limits.Bucket)
	return utils.SecureJoin(base, e.path)
}

func (e *CacheEntity) newTmpPath() string {
	return filepath.Join(e.limits.TmpDir, "bosfs.tmp."+uuid.NewString())
}

// OpenFile opens the entity for use. If already open it just bumps the
// reference count. meta/size seed a freshly created entity's
// metadata and PageList; on a re-open they are ignored in favor of the
// entity's live state.
func (e *CacheEntity) OpenFile(ctx context.Context, meta *ObjectMeta, size int64, forceTmpfile bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fd != nil {
		e.refCount++
		return nil
	}

	e.isTmpfile = forceTmpfile || e.limits.CacheDir == ""

	if e.isTmpfile {
		e.localPath = e.newTmpPath()
	} else {
		p, err := e.persistentPath()
		if err != nil {
			return fmt.Errorf("cache entity: %w", err)
		}
		e.localPath = p
	}
	if err := os.MkdirAll(filepath.Dir(e.localPath), 0755); err != nil {
		return fmt.Errorf("cache entity: mkdir parent for %s: %w", e.localPath, err)
	}

	fd, err := os.OpenFile(e.localPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("cache entity: open %s: %w", e.localPath, err)
	}
	e.fd = fd

	if meta != nil {
		e.origMeta = meta.Clone()
		e.origMetaSize = meta.ContentLength
	}

	loadedFromStat := false
	if !e.isTmpfile && e.limits.CacheDir != "" {
		e.stat = NewStatCacheFile(e.limits.CacheDir, e.limits.Bucket, e.path)
		if err := e.stat.Open(); err != nil {
			e.logger.Warn("stat cache file open failed, falling back to fresh page list", "error", err)
			e.stat = nil
		} else if err := e.pages.Deserialize(e.stat.File()); err == nil {
			loadedFromStat = true
		}
	}
	if !loadedFromStat {
		e.pages.Init(size, false)
	}

	if fi, err := fd.Stat(); err == nil && fi.Size() != size {
		if err := fd.Truncate(size); err != nil {
			e.closeLocked()
			return fmt.Errorf("cache entity: truncate %s: %w", e.localPath, err)
		}
	}

	if !e.isTmpfile {
		if err := e.createMirrorLocked(); err != nil {
			e.logger.Warn("mirror file creation failed, using canonical fd directly", "error", err)
		}
	}

	e.refCount = 1
	return nil
}

// createMirrorLocked hard-links the canonical cache file to a fresh
// mirror path and swaps the active fd to the mirror, isolating this
// entity's POSIX-level view from concurrent rewrites of the canonical
// file by other entities.
func (e *CacheEntity) createMirrorLocked() error {
	mirrorDir := filepath.Join(e.limits.CacheDir, e.limits.Bucket+".mirror")
	if err := os.MkdirAll(mirrorDir, 0755); err != nil {
		return err
	}
	mirrorPath := filepath.Join(mirrorDir, uuid.NewString())
	if err := os.Link(e.localPath, mirrorPath); err != nil {
		return err
	}
	fd, err := os.OpenFile(mirrorPath, os.O_RDWR, 0644)
	if err != nil {
		os.Remove(mirrorPath)
		return err
	}
	e.fd.Close()
	e.fd = fd
	e.mirrorPath = mirrorPath
	return nil
}

// DupFile increments the reference count and returns the current fd.
func (e *CacheEntity) DupFile() (*os.File, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fd == nil {
		return nil, fmt.Errorf("cache entity: not open")
	}
	e.refCount++
	return e.fd, nil
}

// CloseFile decrements the reference count. On transition to zero: a
// tmpfile entity performs a synchronous flush and unlinks its scratch
// file (a flush failure aborts the close and keeps the entity alive so
// the caller can retry); a persistent-cache entity serializes its
// PageList to the StatCacheFile. Returns true when the entity is now
// fully closed and should be dropped from the registry.
func (e *CacheEntity) CloseFile(ctx context.Context) (closed bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refCount <= 0 {
		return true, nil
	}
	e.refCount--
	if e.refCount > 0 {
		return false, nil
	}

	var errs error
	if e.isTmpfile {
		if flushErr := e.flushLocked(ctx, e.modified); flushErr != nil {
			e.refCount = 1 // keep the entity open; caller may retry close
			return false, fmt.Errorf("cache entity: flush on close: %w", flushErr)
		}
	} else if e.stat != nil {
		if err := e.stat.Truncate(); err != nil {
			errs = multierr.Append(errs, err)
		} else if err := e.pages.Serialize(e.stat.File()); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := e.stat.Release(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	errs = multierr.Append(errs, e.closeLocked())
	return true, errs
}

// closeLocked releases the fd, unlinks a tmpfile scratch file, and
// unlinks the mirror file, if any. Caller holds mu.
func (e *CacheEntity) closeLocked() error {
	var errs error
	if e.fd != nil {
		errs = multierr.Append(errs, e.fd.Close())
		e.fd = nil
	}
	if e.mirrorPath != "" {
		if err := os.Remove(e.mirrorPath); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
		}
		e.mirrorPath = ""
	}
	if e.isTmpfile && e.localPath != "" {
		if err := os.Remove(e.localPath); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// checkDiskSpace enforces the disk-space guard: an operation that would
// materialize `needed` new bytes is admitted only if needed+reserved
// bytes are free on the filesystem backing the cache/tmp directory.
func (e *CacheEntity) checkDiskSpace(needed int64) error {
	dir := e.limits.TmpDir
	if !e.isTmpfile {
		dir = e.limits.CacheDir
	}
	if dir == "" {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("cache entity: statfs %s: %w", dir, err)
	}
	free := int64(st.Bavail) * int64(st.Bsize)
	reserved := e.limits.reservedBytes()
	if needed > reserved {
		reserved = needed
	}
	if needed+reserved > free {
		return ErrNoSpace
	}
	return nil
}

// Read serves a read against the cache file, demand-faulting any
// unloaded bytes in [offset, offset+len) first (with prefetch up to
// max(len, multipart_size*multipart_parallel), clamped to EOF). If disk
// space is insufficient to load the window, the PageList is reset to
// all-unloaded and the local file re-truncated to size, discarding
// clean buffered pages, and ErrNoSpace is returned.
func (e *CacheEntity) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	length := int64(len(buf))
	if offset >= e.pages.Size() {
		return 0, nil
	}
	if offset+length > e.pages.Size() {
		length = e.pages.Size() - offset
	}

	if !e.pages.IsPageLoaded(offset, length) {
		prefetch := length
		if want := e.limits.MultipartSize * int64(e.limits.MultipartParallel); want > prefetch {
			prefetch = want
		}
		if offset+prefetch > e.pages.Size() {
			prefetch = e.pages.Size() - offset
		}
		if err := e.loadLocked(ctx, offset, prefetch); err != nil {
			return 0, err
		}
	}

	n, err := e.fd.ReadAt(buf[:length], offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

// Write buffers a write into the cache file. Growth beyond the current
// size marks the gap unloaded; the prefix [0, offset) is faulted in
// first (subject to the disk-space guard) so prior content is
// preserved once the range becomes readable.
func (e *CacheEntity) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	length := int64(len(buf))
	end := offset + length
	if end > e.pages.Size() {
		if err := e.checkDiskSpace(end - e.pages.Size()); err != nil {
			return 0, err
		}
		if err := e.fd.Truncate(end); err != nil {
			return 0, err
		}
		e.pages.Resize(end, false)
	}

	if offset > 0 && e.pages.GetTotalUnloaded(0, offset) > 0 {
		if err := e.loadLocked(ctx, 0, offset); err != nil {
			return 0, err
		}
	}

	n, err := e.fd.WriteAt(buf, offset)
	if err != nil {
		return n, err
	}
	e.pages.SetPageLoadedStatus(offset, length, true)
	e.modified = true
	return n, nil
}

// Truncate resizes the local cache file and PageList. The change is
// not pushed to the remote store until Flush.
func (e *CacheEntity) Truncate(size int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fd.Truncate(size); err != nil {
		return err
	}
	e.pages.Resize(size, false)
	e.modified = true
	return nil
}

// Size returns the entity's current logical size.
func (e *CacheEntity) Size() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages.Size()
}

// Modified reports whether the entity has unflushed local changes.
func (e *CacheEntity) Modified() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modified
}

// Meta returns a copy of the entity's current metadata snapshot.
func (e *CacheEntity) Meta() ObjectMeta {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.origMeta.Clone()
}

// SetUserMeta sets origMeta.UserMeta[key] = value, used by
// set_mtime/mode/uid/gid/xattr.
func (e *CacheEntity) SetUserMeta(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.origMeta.UserMeta == nil {
		e.origMeta.UserMeta = map[string]string{}
	}
	e.origMeta.UserMeta[key] = value
}

// loadLocked faults in every unloaded sub-range of [offset, offset+len)
// still within the entity's origMetaSize via ranged GET; bytes beyond
// origMetaSize (a hole from a remote-truncation grow) are zero-filled
// locally. Caller holds mu.
func (e *CacheEntity) loadLocked(ctx context.Context, offset, length int64) error {
	if err := e.checkDiskSpace(e.pages.GetTotalUnloaded(offset, length)); err != nil {
		e.pages.Init(e.pages.Size(), false)
		if e.fd != nil {
			e.fd.Truncate(e.pages.Size())
		}
		return err
	}

	for _, r := range e.pages.GetUnloadedPages(offset, length) {
		lo, hi := r.Offset, r.End()
		remoteHi := hi
		if remoteHi > e.origMetaSize {
			remoteHi = e.origMetaSize
		}
		if remoteHi > lo {
			if err := e.remote.GetRange(ctx, e.path, lo, remoteHi-lo, e.fd); err != nil {
				return fmt.Errorf("cache entity: load range [%d,%d): %w", lo, remoteHi, err)
			}
		}
		if hi > remoteHi {
			zeros := make([]byte, hi-remoteHi)
			if _, err := e.fd.WriteAt(zeros, remoteHi); err != nil {
				return fmt.Errorf("cache entity: zero-fill [%d,%d): %w", remoteHi, hi, err)
			}
		}
		e.pages.SetPageLoadedStatus(lo, hi-lo, true)
	}
	return nil
}

// Flush uploads dirty content to the remote store: single PUT below
// multipart_threshold, multipart above it. No-op unless modified or
// force is set. On success clears the modified flag.
func (e *CacheEntity) Flush(ctx context.Context, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked(ctx, force)
}

func (e *CacheEntity) flushLocked(ctx context.Context, force bool) error {
	if !e.modified && !force {
		return nil
	}
	size := e.pages.Size()
	if e.pages.GetTotalUnloaded(0, size) > 0 {
		if err := e.loadLocked(ctx, 0, size); err != nil {
			return err
		}
	}

	meta := e.origMeta.Clone()
	if meta.StorageClass == "" {
		meta.StorageClass = e.limits.StorageClass
	}

	var err error
	if size >= e.limits.MultipartThreshold {
		err = e.remote.UploadSuperFile(ctx, e.path, e.fd, size, meta, e.limits.MultipartSize, e.limits.MultipartParallel)
	} else {
		err = e.remote.PutObject(ctx, e.path, e.fd, size, meta)
	}
	if err != nil {
		return fmt.Errorf("cache entity: flush %s: %w", e.path, err)
	}
	e.modified = false
	e.origMetaSize = size
	return nil
}
