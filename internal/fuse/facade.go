// Package fuse hosts the FUSE front end: the go-fuse Inode tree
// (filesystem.go, mount.go) and FsFacade, the stateless glue that
// composes PageList/CacheEntity/DataCache/FileManager/StorageAdapter
// into each POSIX operation.
package fuse

import (
	"context"
	"errors"
	"log/slog"
	"os/user"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	objcache "github.com/objectfs/objectfs/internal/cache"
	"github.com/objectfs/objectfs/internal/metacache"
	objerrors "github.com/objectfs/objectfs/pkg/errors"
)

// Caller is the uid/gid pair FUSE attaches to every request.
type Caller struct {
	UID uint32
	GID uint32
}

// access(2) mode bits, as handed to CheckAccess/checkObjectAccess.
const (
	accessExecute uint32 = 1
	accessWrite   uint32 = 2
	accessRead    uint32 = 4
)

// FacadeConfig bundles the mount-time options FsFacade needs beyond
// its collaborators.
type FacadeConfig struct {
	BucketPrefix string // joined onto every normalized path's object key
	RootUID      uint32 // a configured synthetic uid that bypasses access checks
	Defaults     metacache.MountDefaults
	ListPageSize int
	HeadBatch    int
}

// FsFacade implements each POSIX operation by composing DataCache,
// FileManager and the StorageAdapter RemoteStore contract. All methods
// are stateless with respect to FsFacade itself; per-path state lives
// in the CacheEntity the caller obtained from DataCache.
type FsFacade struct {
	store   objcache.RemoteStore
	dc      *objcache.DataCache
	fm      *metacache.FileManager
	cfg     FacadeConfig
	limits  objcache.Limits
	logger  *slog.Logger
}

// NewFsFacade constructs a facade over already-constructed
// collaborators.
func NewFsFacade(store objcache.RemoteStore, dc *objcache.DataCache, fm *metacache.FileManager, limits objcache.Limits, cfg FacadeConfig, logger *slog.Logger) *FsFacade {
	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = 1000
	}
	if cfg.HeadBatch <= 0 {
		cfg.HeadBatch = 100
	}
	f := &FsFacade{store: store, dc: dc, fm: fm, cfg: cfg, limits: limits, logger: logger.With("component", "fs_facade")}
	fm.WithOpenChecker(func(path string) bool {
		return dc.ExistOpen(f.normalize(path)) != nil
	})
	return f
}

// normalize prepends the configured bucket-prefix and trims a trailing
// slash, turning a POSIX path into an object key.
func (f *FsFacade) normalize(p string) string {
	key := strings.TrimPrefix(p, "/")
	if f.cfg.BucketPrefix != "" {
		key = strings.TrimSuffix(f.cfg.BucketPrefix, "/") + "/" + key
	}
	return strings.TrimSuffix(key, "/")
}

// ---- error classification ----

// classify maps a core error to its FUSE errno: ErrNoSpace becomes
// ENOSPC; metacache.ErrNotFound and an ObjectFSError with
// ErrCodeObjectNotFound become ENOENT; a wrapped syscall.Errno is
// returned as is; anything else becomes EIO. It does not touch
// FileManager: the mutating operations call invalidate themselves.
func (f *FsFacade) classify(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch {
	case err == objcache.ErrNoSpace:
		return syscall.ENOSPC
	case err == metacache.ErrNotFound:
		return syscall.ENOENT
	}
	var objErr *objerrors.ObjectFSError
	if errors.As(err, &objErr) && objErr.Code == objerrors.ErrCodeObjectNotFound {
		return syscall.ENOENT
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}

// ---- access checks ----

func baseMask(caller Caller, ownerUID, ownerGID uint32) uint32 {
	mask := uint32(syscall.S_IRWXO)
	if caller.UID == ownerUID {
		mask |= syscall.S_IRWXU
	}
	if caller.GID == ownerGID || callerInGroup(caller.UID, ownerGID) {
		mask |= syscall.S_IRWXG
	}
	return mask
}

// callerInGroup reports whether uid belongs to supplementary group
// gid. Best-effort: FUSE only ever hands the core a caller's primary
// gid, so this falls back to the OS group database for anything more.
func callerInGroup(uid, gid uint32) bool {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return false
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return false
	}
	target := strconv.FormatUint(uint64(gid), 10)
	for _, g := range groupIDs {
		if g == target {
			return true
		}
	}
	return false
}

// CheckAccess implements access(2) semantics: F_OK is existence-only;
// otherwise requested mode bits are checked against object_mode &
// base_mask. Root uid and the configured synthetic uid always pass.
func (f *FsFacade) CheckAccess(caller Caller, st metacache.Stat, mode uint32) syscall.Errno {
	if caller.UID == 0 || caller.UID == f.cfg.RootUID {
		return 0
	}
	if mode == 0 { // F_OK
		return 0
	}
	effective := st.Mode & baseMask(caller, st.UID, st.GID)
	if mode&accessRead != 0 && effective&(syscall.S_IRUSR|syscall.S_IRGRP|syscall.S_IROTH) == 0 {
		return syscall.EACCES
	}
	if mode&accessWrite != 0 && effective&(syscall.S_IWUSR|syscall.S_IWGRP|syscall.S_IWOTH) == 0 {
		return syscall.EACCES
	}
	if mode&accessExecute != 0 && effective&(syscall.S_IXUSR|syscall.S_IXGRP|syscall.S_IXOTH) == 0 {
		return syscall.EACCES
	}
	return 0
}

// checkPathAccessible is check_path_accessible: every ancestor
// directory of p, from its immediate parent up through the root, must
// grant the caller X_OK.
func (f *FsFacade) checkPathAccessible(ctx context.Context, caller Caller, p string) syscall.Errno {
	if caller.UID == 0 || caller.UID == f.cfg.RootUID {
		return 0
	}
	dir := path.Dir(p)
	for {
		st, errno := f.GetAttr(ctx, dir)
		if errno != 0 {
			return errno
		}
		if errno := f.CheckAccess(caller, st, accessExecute); errno != 0 {
			return errno
		}
		if dir == "/" {
			return 0
		}
		dir = path.Dir(dir)
	}
}

// checkObjectAccess is check_object_access: the target-path mode
// check. A target that does not yet exist is not an access error —
// the core operation (create, mkdir, …) discovers that on its own.
func (f *FsFacade) checkObjectAccess(ctx context.Context, caller Caller, p string, mode uint32) syscall.Errno {
	st, errno := f.GetAttr(ctx, p)
	if errno == syscall.ENOENT {
		return 0
	}
	if errno != 0 {
		return errno
	}
	return f.CheckAccess(caller, st, mode)
}

// ---- attribute lookup ----

// GetAttr resolves path's stat, preferring an open CacheEntity's live
// metadata over FileManager's cached attribute.
func (f *FsFacade) GetAttr(ctx context.Context, p string) (metacache.Stat, syscall.Errno) {
	key := f.normalize(p)
	if key == "" {
		return metacache.Stat{Mode: f.cfg.Defaults.Mode | syscall.S_IFDIR, Blocks: f.cfg.Defaults.MinBlocks, IsDir: true, UID: f.cfg.Defaults.UID, GID: f.cfg.Defaults.GID}, 0
	}

	if ent := f.dc.ExistOpen(key); ent != nil {
		meta := ent.Meta()
		fe := &metacache.FileEntry{Meta: meta}
		return fe.Stat(f.cfg.Defaults), 0
	}

	fe, err := f.fm.Get(ctx, p)
	if err != nil {
		return metacache.Stat{}, f.classify(err)
	}
	return fe.Stat(f.cfg.Defaults), 0
}

// invalidate deletes p's FileManager entry; called after every
// mutation regardless of success.
func (f *FsFacade) invalidate(p string) {
	f.fm.Del(p)
}

// ---- file lifecycle ----

// Open resolves path to a CacheEntity. If flags carries O_CREAT and no
// object exists, the entity starts empty with fresh metadata (content
// type from the file name, bosfs-mode from mode); nothing is written to
// the remote store until the entity is flushed.
func (f *FsFacade) Open(ctx context.Context, caller Caller, p string, flags uint32, mode uint32) (*objcache.CacheEntity, syscall.Errno) {
	if errno := f.checkPathAccessible(ctx, caller, p); errno != 0 {
		return nil, errno
	}
	wantMode := accessRead
	if flags&uint32(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_CREAT|syscall.O_TRUNC) != 0 {
		wantMode = accessWrite
	}
	if errno := f.checkObjectAccess(ctx, caller, p, wantMode); errno != 0 {
		return nil, errno
	}

	create := flags&uint32(syscall.O_CREAT) != 0
	key := f.normalize(p)

	var meta *objcache.ObjectMeta
	var size int64
	if existing := f.dc.ExistOpen(key); existing == nil {
		m, exists, err := f.store.HeadObject(ctx, key)
		if err != nil {
			return nil, f.classify(err)
		}
		if exists {
			meta = m
			size = m.ContentLength
		} else if !create {
			return nil, syscall.ENOENT
		} else {
			meta = &objcache.ObjectMeta{
				ContentType: contentTypeForName(path.Base(p)),
				UserMeta:    map[string]string{"bosfs-mode": strconv.FormatUint(uint64(mode), 10)},
			}
		}
	}

	ent, err := f.dc.OpenCache(ctx, key, meta, size, false, true)
	if err != nil {
		return nil, f.classify(err)
	}
	if create {
		f.invalidate(p)
	}
	return ent, 0
}

// Release closes the CacheEntity obtained from Open.
func (f *FsFacade) Release(ctx context.Context, ent *objcache.CacheEntity) syscall.Errno {
	if err := f.dc.CloseCache(ctx, ent); err != nil {
		return f.classify(err)
	}
	return 0
}

// Read reads through an open CacheEntity.
func (f *FsFacade) Read(ctx context.Context, ent *objcache.CacheEntity, buf []byte, offset int64) (int, syscall.Errno) {
	n, err := ent.Read(ctx, buf, offset)
	if err != nil {
		return n, f.classify(err)
	}
	return n, 0
}

// Write writes through an open CacheEntity.
func (f *FsFacade) Write(ctx context.Context, ent *objcache.CacheEntity, buf []byte, offset int64) (int, syscall.Errno) {
	n, err := ent.Write(ctx, buf, offset)
	if err != nil {
		return n, f.classify(err)
	}
	return n, 0
}

// Flush flushes a CacheEntity's dirty content and invalidates the
// FileManager entry for its path.
func (f *FsFacade) Flush(ctx context.Context, p string, ent *objcache.CacheEntity) syscall.Errno {
	err := ent.Flush(ctx, false)
	f.invalidate(p)
	if err != nil {
		return f.classify(err)
	}
	return 0
}

// Truncate resizes an open CacheEntity's file without pushing to the
// remote store.
func (f *FsFacade) Truncate(ctx context.Context, ent *objcache.CacheEntity, size int64) syscall.Errno {
	if err := ent.Truncate(size); err != nil {
		return f.classify(err)
	}
	return 0
}

// Unlink deletes an object and invalidates its cached attributes and
// any cache bytes held for it.
func (f *FsFacade) Unlink(ctx context.Context, caller Caller, p string) syscall.Errno {
	if errno := f.checkPathAccessible(ctx, caller, p); errno != 0 {
		return errno
	}
	if errno := f.checkObjectAccess(ctx, caller, p, accessWrite); errno != 0 {
		return errno
	}
	key := f.normalize(p)
	err := f.store.DeleteObject(ctx, key)
	f.invalidate(p)
	f.dc.DeleteCacheFile(key)
	if err != nil {
		return f.classify(err)
	}
	return 0
}

// Mkdir creates a directory object (zero-length, content-type
// application/x-directory).
func (f *FsFacade) Mkdir(ctx context.Context, caller Caller, p string, mode uint32) syscall.Errno {
	if errno := f.checkPathAccessible(ctx, caller, p); errno != 0 {
		return errno
	}
	key := f.normalize(p) + "/"
	meta := objcache.ObjectMeta{
		ContentType: "application/x-directory",
		UserMeta:    map[string]string{"bosfs-mode": strconv.FormatUint(uint64(mode), 10)},
	}
	err := f.store.PutObject(ctx, key, emptyReaderAt{}, 0, meta)
	f.invalidate(p)
	if err != nil {
		return f.classify(err)
	}
	return 0
}

// Rmdir deletes a directory object.
func (f *FsFacade) Rmdir(ctx context.Context, caller Caller, p string) syscall.Errno {
	if errno := f.checkPathAccessible(ctx, caller, p); errno != 0 {
		return errno
	}
	if errno := f.checkObjectAccess(ctx, caller, p, accessWrite); errno != 0 {
		return errno
	}
	key := f.normalize(p) + "/"
	err := f.store.DeleteObject(ctx, key)
	f.invalidate(p)
	if err != nil {
		return f.classify(err)
	}
	return 0
}

type emptyReaderAt struct{}

func (emptyReaderAt) ReadAt(p []byte, off int64) (int, error) { return 0, nil }

// ---- metadata mutation (chmod/chown/utimens) ----

// changeObjectMeta performs the remote copy-in-place metadata update
// unconditionally: head the object, merge key=value into its
// user-metadata, and copy it onto itself. Returns -ENOENT if the
// object does not exist remotely.
func (f *FsFacade) changeObjectMeta(ctx context.Context, objKey, key, value string) syscall.Errno {
	meta, exists, err := f.store.HeadObject(ctx, objKey)
	if err != nil {
		return f.classify(err)
	}
	if !exists {
		return syscall.ENOENT
	}
	if meta.UserMeta == nil {
		meta.UserMeta = map[string]string{}
	}
	meta.UserMeta[key] = value

	if err := f.store.CopyObject(ctx, objKey, objKey, meta.StorageClass, meta); err != nil {
		return f.classify(err)
	}
	return 0
}

// setAttrString stores a bosfs-* user-metadata key on the open
// CacheEntity (so getattr sees it immediately without a round trip) if
// one is open, falling back to the remote copy-in-place update
// otherwise. Used by chown/utimens/setxattr.
func (f *FsFacade) setAttrString(ctx context.Context, caller Caller, p, key, value string) syscall.Errno {
	if errno := f.checkPathAccessible(ctx, caller, p); errno != 0 {
		return errno
	}
	if errno := f.checkObjectAccess(ctx, caller, p, accessWrite); errno != 0 {
		return errno
	}
	objKey := f.normalize(p)
	defer f.invalidate(p)

	if ent := f.dc.ExistOpen(objKey); ent != nil {
		ent.SetUserMeta(key, value)
		return 0
	}
	return f.changeObjectMeta(ctx, objKey, key, value)
}

// setAttrStringRemoteFirst stores a bosfs-* user-metadata key via the
// remote copy-in-place update unconditionally, falling back to an open
// CacheEntity's in-memory metadata only when the remote object doesn't
// exist (-ENOENT) — the reverse order from setAttrString. Used by
// chmod, matching bosfs_impl.cpp's chmod ordering.
func (f *FsFacade) setAttrStringRemoteFirst(ctx context.Context, caller Caller, p, key, value string) syscall.Errno {
	if errno := f.checkPathAccessible(ctx, caller, p); errno != 0 {
		return errno
	}
	if errno := f.checkObjectAccess(ctx, caller, p, accessWrite); errno != 0 {
		return errno
	}
	objKey := f.normalize(p)
	defer f.invalidate(p)

	errno := f.changeObjectMeta(ctx, objKey, key, value)
	if errno != syscall.ENOENT {
		return errno
	}
	if ent := f.dc.ExistOpen(objKey); ent != nil {
		ent.SetUserMeta(key, value)
		return 0
	}
	return syscall.ENOENT
}

// Chmod stores the new mode bits. Root path ("/") silently succeeds
// without persisting anything.
func (f *FsFacade) Chmod(ctx context.Context, caller Caller, p string, mode uint32) syscall.Errno {
	if p == "/" || p == "" {
		return 0
	}
	return f.setAttrStringRemoteFirst(ctx, caller, p, "bosfs-mode", strconv.FormatUint(uint64(mode), 10))
}

// Chown stores new uid/gid. Root-only: any other caller gets EPERM.
// Root path silently succeeds.
func (f *FsFacade) Chown(ctx context.Context, caller Caller, p string, uid, gid uint32) syscall.Errno {
	if p == "/" || p == "" {
		return 0
	}
	if caller.UID != 0 {
		return syscall.EPERM
	}
	if errno := f.setAttrString(ctx, caller, p, "bosfs-uid", strconv.FormatUint(uint64(uid), 10)); errno != 0 {
		return errno
	}
	return f.setAttrString(ctx, caller, p, "bosfs-gid", strconv.FormatUint(uint64(gid), 10))
}

// Utimens stores the new mtime and, if the entity is open, applies it
// locally so stat reflects the value immediately.
func (f *FsFacade) Utimens(ctx context.Context, caller Caller, p string, mtime time.Time) syscall.Errno {
	if p == "/" || p == "" {
		return 0
	}
	return f.setAttrString(ctx, caller, p, "bosfs-mtime", strconv.FormatInt(mtime.Unix(), 10))
}

// ---- xattr ----

func (f *FsFacade) rawXattr(ctx context.Context, p string) (string, *objcache.ObjectMeta, syscall.Errno) {
	objKey := f.normalize(p)
	if ent := f.dc.ExistOpen(objKey); ent != nil {
		meta := ent.Meta()
		return meta.UserMeta[xattrMetaKey], &meta, 0
	}
	meta, exists, err := f.store.HeadObject(ctx, objKey)
	if err != nil {
		return "", nil, f.classify(err)
	}
	if !exists {
		return "", nil, syscall.ENOENT
	}
	return meta.UserMeta[xattrMetaKey], meta, 0
}

// GetXattr returns the decoded value for name.
func (f *FsFacade) GetXattr(ctx context.Context, p, name string) ([]byte, syscall.Errno) {
	raw, _, errno := f.rawXattr(ctx, p)
	if errno != 0 {
		return nil, errno
	}
	return getXattr(raw, name)
}

// ListXattr returns the zero-terminated concatenation of xattr names.
func (f *FsFacade) ListXattr(ctx context.Context, p string) ([]byte, syscall.Errno) {
	raw, _, errno := f.rawXattr(ctx, p)
	if errno != 0 {
		return nil, errno
	}
	return listXattrNames(raw), 0
}

// SetXattr inserts or replaces name, honoring XATTR_CREATE/REPLACE.
func (f *FsFacade) SetXattr(ctx context.Context, caller Caller, p, name string, value []byte, flags int) syscall.Errno {
	raw, _, errno := f.rawXattr(ctx, p)
	if errno != 0 && errno != syscall.ENODATA {
		return errno
	}
	newRaw, errno := setXattr(raw, name, value, flags)
	if errno != 0 {
		return errno
	}
	return f.setAttrString(ctx, caller, p, xattrMetaKey, newRaw)
}

// RemoveXattr deletes name.
func (f *FsFacade) RemoveXattr(ctx context.Context, caller Caller, p, name string) syscall.Errno {
	raw, _, errno := f.rawXattr(ctx, p)
	if errno != 0 {
		return errno
	}
	newRaw, errno := removeXattr(raw, name)
	if errno != 0 {
		return errno
	}
	return f.setAttrString(ctx, caller, p, xattrMetaKey, newRaw)
}

// ---- directory listing ----

// DirEntry is one synthesized readdir result.
type DirEntry struct {
	Name  string
	Stat  metacache.Stat
}

// Readdir lists dirPath's immediate children, blending FileManager's
// cached entries with a batched-HEAD pass over the residual objects.
func (f *FsFacade) Readdir(ctx context.Context, dirPath string) ([]DirEntry, syscall.Errno) {
	prefix := f.normalize(dirPath)
	if prefix != "" {
		prefix += "/"
	}

	var entries []DirEntry
	seenDirs := map[string]bool{}
	marker := ""
	for {
		page, err := f.store.ListObjects(ctx, prefix, "/", f.cfg.ListPageSize, marker)
		if err != nil {
			return nil, f.classify(err)
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), "/")
			if name == "" || seenDirs[name] {
				continue
			}
			seenDirs[name] = true
			fe := &metacache.FileEntry{IsPrefix: true}
			entries = append(entries, DirEntry{Name: name, Stat: fe.Stat(f.cfg.Defaults)})
		}

		var residualKeys []string
		var residualNames []string
		for _, c := range page.Contents {
			if c.Key == prefix {
				continue // self entry
			}
			name := strings.TrimPrefix(c.Key, prefix)
			childPath := path.Join(dirPath, name)
			if fe, ok := f.fm.TryGet(childPath); ok {
				entries = append(entries, DirEntry{Name: strings.TrimSuffix(name, "/"), Stat: fe.Stat(f.cfg.Defaults)})
				continue
			}
			residualKeys = append(residualKeys, c.Key)
			residualNames = append(residualNames, name)
		}

		if len(residualKeys) > 0 {
			results := f.store.SendRequestBatch(ctx, residualKeys, f.cfg.HeadBatch)
			for i, key := range residualKeys {
				name := residualNames[i]
				childPath := path.Join(dirPath, name)
				r := results[key]
				fe := &metacache.FileEntry{IsDirObj: strings.HasSuffix(key, "/")}
				if r.Meta != nil {
					fe.Meta = *r.Meta
				}
				f.fm.Set(childPath, fe)
				entries = append(entries, DirEntry{Name: strings.TrimSuffix(name, "/"), Stat: fe.Stat(f.cfg.Defaults)})
			}
		}

		if !page.Truncated || page.NextMarker == "" {
			break
		}
		marker = page.NextMarker
	}

	return entries, 0
}

// ---- rename ----

// Rename implements copy+delete. flags honors only RENAME_NOREPLACE
// (head-then-rename, refusing to clobber); any other non-zero flag is
// unsupported.
func (f *FsFacade) Rename(ctx context.Context, caller Caller, oldPath, newPath string, flags uint32) syscall.Errno {
	const renameNoReplace = 1

	if flags != 0 && flags != renameNoReplace {
		return syscall.EINVAL
	}

	if errno := f.checkPathAccessible(ctx, caller, oldPath); errno != 0 {
		return errno
	}
	if errno := f.checkPathAccessible(ctx, caller, newPath); errno != 0 {
		return errno
	}
	if errno := f.checkObjectAccess(ctx, caller, oldPath, accessWrite); errno != 0 {
		return errno
	}

	oldKey := f.normalize(oldPath)
	newKey := f.normalize(newPath)

	if flags == renameNoReplace {
		_, exists, err := f.store.HeadObject(ctx, newKey)
		if err != nil {
			return f.classify(err)
		}
		if exists {
			return syscall.EEXIST
		}
	}

	meta, exists, err := f.store.HeadObject(ctx, oldKey)
	if err != nil {
		return f.classify(err)
	}
	defer func() {
		f.invalidate(oldPath)
		f.invalidate(newPath)
	}()

	if !exists {
		return f.renameDir(ctx, oldKey, newKey)
	}

	var copyErr error
	if meta.ContentLength >= f.limits.MultipartThreshold {
		copyErr = f.store.ParallelCopy(ctx, oldKey, newKey, meta.ContentLength, meta.StorageClass, meta)
	} else {
		copyErr = f.store.CopyObject(ctx, oldKey, newKey, meta.StorageClass, meta)
	}
	if copyErr != nil {
		return f.classify(copyErr)
	}
	if err := f.store.DeleteObject(ctx, oldKey); err != nil {
		return f.classify(err)
	}
	return 0
}

// renameDir recursively lists the source prefix, copies every key to
// the destination prefix, and deletes originals; on partial failure,
// already-copied destination keys are rolled back by delete.
func (f *FsFacade) renameDir(ctx context.Context, oldPrefix, newPrefix string) syscall.Errno {
	srcPrefix := oldPrefix + "/"
	dstPrefix := newPrefix + "/"

	var copied []string
	marker := ""
	for {
		page, err := f.store.ListObjects(ctx, srcPrefix, "", f.cfg.ListPageSize, marker)
		if err != nil {
			f.rollback(ctx, copied)
			return f.classify(err)
		}
		for _, c := range page.Contents {
			dstKey := dstPrefix + strings.TrimPrefix(c.Key, srcPrefix)
			if err := f.store.CopyObject(ctx, c.Key, dstKey, c.Meta.StorageClass, &c.Meta); err != nil {
				f.rollback(ctx, copied)
				return f.classify(err)
			}
			copied = append(copied, dstKey)
		}
		if !page.Truncated || page.NextMarker == "" {
			break
		}
		marker = page.NextMarker
	}

	marker = ""
	for {
		page, err := f.store.ListObjects(ctx, srcPrefix, "", f.cfg.ListPageSize, marker)
		if err != nil {
			return f.classify(err)
		}
		for _, c := range page.Contents {
			if err := f.store.DeleteObject(ctx, c.Key); err != nil {
				return f.classify(err)
			}
		}
		if !page.Truncated || page.NextMarker == "" {
			break
		}
		marker = page.NextMarker
	}
	return 0
}

func (f *FsFacade) rollback(ctx context.Context, copiedKeys []string) {
	for _, k := range copiedKeys {
		if err := f.store.DeleteObject(ctx, k); err != nil {
			f.logger.Warn("rename rollback delete failed", "key", k, "error", err)
		}
	}
}
