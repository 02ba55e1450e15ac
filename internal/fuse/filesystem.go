package fuse

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	objcache "github.com/objectfs/objectfs/internal/cache"
	"github.com/objectfs/objectfs/internal/metacache"
)

// safeInt64ToUint64 safely converts int64 to uint64, preventing negative values
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// safeIntToUint32 safely converts int to uint32, preventing overflow
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

// Config is the FUSE-layer mount configuration: go-fuse session flags
// plus the filesystem's own read-only switch.
type Config struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool

	DirectIO  bool
	MaxRead   uint32
	MaxWrite  uint32
}

// Stats tracks filesystem operation counters and exponentially
// smoothed timings, read by the health/metrics endpoints.
type Stats struct {
	mu sync.RWMutex

	Lookups int64
	Opens   int64
	Reads   int64
	Writes  int64
	Creates int64
	Deletes int64

	BytesRead    int64
	BytesWritten int64
	Errors       int64

	AvgReadTime   time.Duration
	AvgWriteTime  time.Duration
	AvgLookupTime time.Duration
}

func ema(n int64, avg time.Duration, d time.Duration) time.Duration {
	if n <= 1 {
		return d
	}
	return time.Duration((int64(avg)*9 + int64(d)) / 10)
}

func (s *Stats) recordLookup(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AvgLookupTime = ema(s.Lookups, s.AvgLookupTime, d)
}

func (s *Stats) recordRead(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AvgReadTime = ema(s.Reads, s.AvgReadTime, d)
}

func (s *Stats) recordWrite(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AvgWriteTime = ema(s.Writes, s.AvgWriteTime, d)
}

func (s *Stats) bumpError() {
	s.mu.Lock()
	s.Errors++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters, safe to read concurrently.
func (s *Stats) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Lookups:       s.Lookups,
		Opens:         s.Opens,
		Reads:         s.Reads,
		Writes:        s.Writes,
		Creates:       s.Creates,
		Deletes:       s.Deletes,
		BytesRead:     s.BytesRead,
		BytesWritten:  s.BytesWritten,
		Errors:        s.Errors,
		AvgReadTime:   s.AvgReadTime,
		AvgWriteTime:  s.AvgWriteTime,
		AvgLookupTime: s.AvgLookupTime,
	}
}

// FileSystem is the go-fuse root: every Inode method delegates to
// FsFacade, which in turn composes DataCache/FileManager/RemoteStore.
type FileSystem struct {
	fs.Inode

	facade *FsFacade
	config *Config
	logger *slog.Logger
	stats  *Stats
}

// NewFileSystem constructs the FUSE root over an already-wired facade.
func NewFileSystem(facade *FsFacade, config *Config, logger *slog.Logger) *FileSystem {
	if config == nil {
		config = &Config{}
	}
	return &FileSystem{
		facade: facade,
		config: config,
		logger: logger.With("component", "filesystem"),
		stats:  &Stats{},
	}
}

// Root returns the root directory inode.
func (fsys *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fsys: fsys, path: ""}
}

// GetStats returns a point-in-time copy of the operation counters.
func (fsys *FileSystem) GetStats() Stats {
	return fsys.stats.Snapshot()
}

// callerFromCtx extracts the requesting uid/gid go-fuse attaches to
// every operation's context.
func callerFromCtx(ctx context.Context) Caller {
	if fctx, ok := ctx.(*fuse.Context); ok {
		return Caller{UID: fctx.Caller.Owner.Uid, GID: fctx.Caller.Owner.Gid}
	}
	return Caller{}
}

func fillAttr(out *fuse.Attr, st metacache.Stat) {
	out.Size = safeInt64ToUint64(st.Size)
	out.Blocks = safeInt64ToUint64(st.Blocks)
	out.Mode = st.Mode
	out.Uid = st.UID
	out.Gid = st.GID
	out.Mtime = safeInt64ToUint64(st.Mtime.Unix())
	out.Atime = safeInt64ToUint64(st.Atime.Unix())
	out.Ctime = safeInt64ToUint64(st.Ctime.Unix())
}

// DirectoryNode is a directory or virtual prefix inode.
type DirectoryNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

func (n *DirectoryNode) joinPath(name string) string {
	return path.Join(n.path, name)
}

// Lookup resolves name within this directory.
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	start := time.Now()
	n.fsys.stats.mu.Lock()
	n.fsys.stats.Lookups++
	n.fsys.stats.mu.Unlock()
	defer func() { n.fsys.stats.recordLookup(time.Since(start)) }()

	childPath := n.joinPath(name)
	st, errno := n.fsys.facade.GetAttr(ctx, childPath)
	if errno != 0 {
		return nil, errno
	}
	fillAttr(&out.Attr, st)

	if st.IsDir {
		child := &DirectoryNode{fsys: n.fsys, path: childPath}
		return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
	}
	child := &FileNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG}), 0
}

// Getattr returns this directory's synthesized attributes.
func (n *DirectoryNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, errno := n.fsys.facade.GetAttr(ctx, n.path)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, st)
	return 0
}

// Access checks mask against this directory's synthesized mode.
func (n *DirectoryNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	st, errno := n.fsys.facade.GetAttr(ctx, n.path)
	if errno != 0 {
		return errno
	}
	return n.fsys.facade.CheckAccess(callerFromCtx(ctx), st, mask)
}

// Readdir blends FileManager-cached entries with a batched-HEAD pass
// over the residual objects in this directory's prefix.
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	children, errno := n.fsys.facade.Readdir(ctx, n.path)
	if errno != 0 {
		n.fsys.stats.bumpError()
		return nil, errno
	}

	out := make([]fuse.DirEntry, 0, len(children))
	for _, c := range children {
		mode := uint32(fuse.S_IFREG)
		if c.Stat.IsDir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: c.Name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

// Mkdir creates a directory object.
func (n *DirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if n.fsys.config.ReadOnly {
		return nil, syscall.EROFS
	}
	childPath := n.joinPath(name)
	if errno := n.fsys.facade.Mkdir(ctx, callerFromCtx(ctx), childPath, mode); errno != 0 {
		n.fsys.stats.bumpError()
		return nil, errno
	}
	child := &DirectoryNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

// Rmdir deletes a directory object.
func (n *DirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	n.fsys.stats.mu.Lock()
	n.fsys.stats.Deletes++
	n.fsys.stats.mu.Unlock()
	if errno := n.fsys.facade.Rmdir(ctx, callerFromCtx(ctx), n.joinPath(name)); errno != 0 {
		n.fsys.stats.bumpError()
		return errno
	}
	return 0
}

// Unlink deletes a file object.
func (n *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	n.fsys.stats.mu.Lock()
	n.fsys.stats.Deletes++
	n.fsys.stats.mu.Unlock()
	if errno := n.fsys.facade.Unlink(ctx, callerFromCtx(ctx), n.joinPath(name)); errno != 0 {
		n.fsys.stats.bumpError()
		return errno
	}
	return 0
}

// Create creates and opens a new file object.
func (n *DirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if n.fsys.config.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}
	childPath := n.joinPath(name)
	ent, errno := n.fsys.facade.Open(ctx, callerFromCtx(ctx), childPath, flags|uint32(syscall.O_CREAT), mode)
	if errno != 0 {
		n.fsys.stats.bumpError()
		return nil, nil, 0, errno
	}
	n.fsys.stats.mu.Lock()
	n.fsys.stats.Creates++
	n.fsys.stats.mu.Unlock()

	child := &FileNode{fsys: n.fsys, path: childPath}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG})
	return inode, &FileHandle{fsys: n.fsys, path: childPath, ent: ent}, 0, 0
}

// Rename implements copy+delete between two directories in this tree.
func (n *DirectoryNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	newDir, ok := newParent.(*DirectoryNode)
	if !ok {
		return syscall.EINVAL
	}
	oldPath := n.joinPath(name)
	newPath := newDir.joinPath(newName)
	if errno := n.fsys.facade.Rename(ctx, callerFromCtx(ctx), oldPath, newPath, flags); errno != 0 {
		n.fsys.stats.bumpError()
		return errno
	}
	return 0
}

// Link refuses hard-link creation unconditionally: the object store
// has no hard-link concept, matching the original's link() -> -EPERM.
func (n *DirectoryNode) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EPERM
}

// FileNode is a regular-file inode.
type FileNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

// Open resolves this file to a CacheEntity-backed handle.
func (n *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.fsys.stats.mu.Lock()
	n.fsys.stats.Opens++
	n.fsys.stats.mu.Unlock()

	if n.fsys.config.ReadOnly && flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_CREAT|syscall.O_TRUNC) != 0 {
		return nil, 0, syscall.EROFS
	}

	ent, errno := n.fsys.facade.Open(ctx, callerFromCtx(ctx), n.path, flags, 0644)
	if errno != 0 {
		n.fsys.stats.bumpError()
		return nil, 0, errno
	}
	return &FileHandle{fsys: n.fsys, path: n.path, ent: ent}, 0, 0
}

// Getattr prefers an open handle's live CacheEntity state (uncommitted
// size/mtime) over the FileManager-cached attribute.
func (n *FileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if fh, ok := f.(*FileHandle); ok && fh.ent != nil {
		fe := &metacache.FileEntry{Meta: fh.ent.Meta()}
		st := fe.Stat(n.fsys.facade.cfg.Defaults)
		st.Size = fh.ent.Size()
		fillAttr(&out.Attr, st)
		return 0
	}
	st, errno := n.fsys.facade.GetAttr(ctx, n.path)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, st)
	return 0
}

// Access checks mask against this file's synthesized mode.
func (n *FileNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	st, errno := n.fsys.facade.GetAttr(ctx, n.path)
	if errno != 0 {
		return errno
	}
	return n.fsys.facade.CheckAccess(callerFromCtx(ctx), st, mask)
}

// Setattr handles truncate, chmod, chown and utimens, each forwarded
// independently to FsFacade since the remote store has no combined
// operation.
func (n *FileNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}

	caller := callerFromCtx(ctx)

	var ent *objcache.CacheEntity
	if fh, ok := f.(*FileHandle); ok {
		ent = fh.ent
	}

	if size, ok := in.GetSize(); ok {
		openedHere := false
		if ent == nil {
			var errno syscall.Errno
			ent, errno = n.fsys.facade.Open(ctx, caller, n.path, uint32(syscall.O_WRONLY), 0)
			if errno != 0 {
				return errno
			}
			openedHere = true
		}
		errno := n.fsys.facade.Truncate(ctx, ent, int64(size))
		if openedHere {
			n.fsys.facade.Release(ctx, ent)
		}
		if errno != 0 {
			return errno
		}
	}

	if mode, ok := in.GetMode(); ok {
		if errno := n.fsys.facade.Chmod(ctx, caller, n.path, mode); errno != 0 {
			return errno
		}
	}

	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if uok || gok {
		st, errno := n.fsys.facade.GetAttr(ctx, n.path)
		if errno != 0 {
			return errno
		}
		newUID, newGID := st.UID, st.GID
		if uok {
			newUID = uid
		}
		if gok {
			newGID = gid
		}
		if errno := n.fsys.facade.Chown(ctx, caller, n.path, newUID, newGID); errno != 0 {
			return errno
		}
	}

	if mtime, ok := in.GetMTime(); ok {
		if errno := n.fsys.facade.Utimens(ctx, caller, n.path, mtime); errno != 0 {
			return errno
		}
	}

	return n.Getattr(ctx, f, out)
}

// Getxattr returns the decoded value for attr.
func (n *FileNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	val, errno := n.fsys.facade.GetXattr(ctx, n.path, attr)
	if errno != 0 {
		return 0, errno
	}
	if len(dest) < len(val) {
		return uint32(len(val)), syscall.ERANGE
	}
	copy(dest, val)
	return uint32(len(val)), 0
}

// Setxattr inserts or replaces attr.
func (n *FileNode) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	return n.fsys.facade.SetXattr(ctx, callerFromCtx(ctx), n.path, attr, data, int(flags))
}

// Removexattr deletes attr.
func (n *FileNode) Removexattr(ctx context.Context, attr string) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	return n.fsys.facade.RemoveXattr(ctx, callerFromCtx(ctx), n.path, attr)
}

// Listxattr returns the zero-terminated list of xattr names.
func (n *FileNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names, errno := n.fsys.facade.ListXattr(ctx, n.path)
	if errno != 0 {
		return 0, errno
	}
	if len(dest) < len(names) {
		return uint32(len(names)), syscall.ERANGE
	}
	copy(dest, names)
	return uint32(len(names)), 0
}

// FileHandle is an open CacheEntity bound to a path, surfaced to
// go-fuse as a FileHandle.
type FileHandle struct {
	fsys *FileSystem
	path string
	ent  *objcache.CacheEntity
}

// Read serves a read against the bound CacheEntity.
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	start := time.Now()
	defer func() { fh.fsys.stats.recordRead(time.Since(start)) }()

	n, errno := fh.fsys.facade.Read(ctx, fh.ent, dest, off)
	if errno != 0 {
		fh.fsys.stats.bumpError()
		return nil, errno
	}
	fh.fsys.stats.mu.Lock()
	fh.fsys.stats.Reads++
	fh.fsys.stats.BytesRead += int64(n)
	fh.fsys.stats.mu.Unlock()
	return fuse.ReadResultData(dest[:n]), 0
}

// Write buffers a write into the bound CacheEntity.
func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if fh.fsys.config.ReadOnly {
		return 0, syscall.EROFS
	}
	start := time.Now()
	defer func() { fh.fsys.stats.recordWrite(time.Since(start)) }()

	n, errno := fh.fsys.facade.Write(ctx, fh.ent, data, off)
	if errno != 0 {
		fh.fsys.stats.bumpError()
		return safeIntToUint32(n), errno
	}
	fh.fsys.stats.mu.Lock()
	fh.fsys.stats.Writes++
	fh.fsys.stats.BytesWritten += int64(n)
	fh.fsys.stats.mu.Unlock()
	return safeIntToUint32(n), 0
}

// Flush pushes dirty content to the remote store.
func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	if errno := fh.fsys.facade.Flush(ctx, fh.path, fh.ent); errno != 0 {
		fh.fsys.stats.bumpError()
		return errno
	}
	return 0
}

// Fsync behaves identically to Flush: there is no durable local
// journal to sync independently of the remote upload.
func (fh *FileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return fh.Flush(ctx)
}

// Release closes the bound CacheEntity.
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	if errno := fh.fsys.facade.Release(ctx, fh.ent); errno != 0 {
		fh.fsys.stats.bumpError()
		return errno
	}
	return 0
}

var (
	_ fs.NodeLookuper   = (*DirectoryNode)(nil)
	_ fs.NodeGetattrer  = (*DirectoryNode)(nil)
	_ fs.NodeAccesser   = (*DirectoryNode)(nil)
	_ fs.NodeReaddirer  = (*DirectoryNode)(nil)
	_ fs.NodeMkdirer    = (*DirectoryNode)(nil)
	_ fs.NodeRmdirer    = (*DirectoryNode)(nil)
	_ fs.NodeUnlinker   = (*DirectoryNode)(nil)
	_ fs.NodeCreater    = (*DirectoryNode)(nil)
	_ fs.NodeRenamer    = (*DirectoryNode)(nil)
	_ fs.NodeLinker     = (*DirectoryNode)(nil)
	_ fs.NodeOpener     = (*FileNode)(nil)
	_ fs.NodeGetattrer  = (*FileNode)(nil)
	_ fs.NodeSetattrer  = (*FileNode)(nil)
	_ fs.NodeAccesser   = (*FileNode)(nil)
	_ fs.NodeGetxattrer = (*FileNode)(nil)
	_ fs.NodeSetxattrer = (*FileNode)(nil)
	_ fs.NodeRemovexattrer = (*FileNode)(nil)
	_ fs.NodeListxattrer   = (*FileNode)(nil)
	_ fs.FileReader     = (*FileHandle)(nil)
	_ fs.FileWriter     = (*FileHandle)(nil)
	_ fs.FileFlusher    = (*FileHandle)(nil)
	_ fs.FileFsyncer    = (*FileHandle)(nil)
	_ fs.FileReleaser   = (*FileHandle)(nil)
)
