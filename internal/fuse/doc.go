/*
Package fuse mounts a bucket as a POSIX directory tree using
github.com/hanwen/go-fuse/v2.

# Architecture

	User applications (ls, cat, cp, databases)
	          │
	Kernel VFS / POSIX system calls
	          │
	go-fuse Inode tree      <- DirectoryNode, FileNode, FileHandle (filesystem.go)
	          │
	FsFacade                <- stateless POSIX-operation glue (facade.go)
	          │
	DataCache / FileManager <- byte-range cache, attribute cache
	          │
	StorageAdapter          <- internal/storage/s3

DirectoryNode and FileNode implement the go-fuse Inode callbacks
(Lookup, Getattr, Readdir, Create, Rename, Open, Setattr, xattr) and
translate each one into a call on FsFacade. FsFacade holds no
per-request state; everything that outlives a single call — an open
file's dirty bytes, a directory's cached attributes — lives in the
CacheEntity or FileEntry the facade obtained from DataCache or
FileManager.

# Path to object key

A mounted path is normalized by stripping its leading slash and
optionally prefixing a configured bucket prefix (FacadeConfig.
BucketPrefix). A directory is a zero-length object whose key ends in
"/" and whose content-type is application/x-directory; readdir blends
CommonPrefixes from a delimited ListObjects call with FileManager's
already-cached attributes for the remaining keys, batching HEAD calls
for whatever's left uncached.

# Permission model

Each object carries its POSIX mode, uid and gid in bosfs-mode/
bosfs-uid/bosfs-gid user metadata, falling back to the mount's
MountDefaults when absent. FsFacade.CheckAccess implements access(2):
F_OK is existence-only, root and the mount's synthetic uid bypass all
checks, and otherwise object_mode is masked against S_IRWXU/S_IRWXG/
S_IRWXO depending on whether the caller matches the owning uid, gid,
or a supplementary group.

# Error translation

FsFacade.classify maps ErrNoSpace to ENOSPC, a metacache miss to
ENOENT, an already-classified syscall.Errno through unchanged, and
everything else to EIO.

# Mounting

MountManager (mount.go) wraps fs.Mount, builds fuse.MountOptions from
MountConfig, and exposes Mount/Unmount/Remount plus a MountWatcher that
periodically cross-checks /proc/mounts against the manager's own
mounted flag.
*/
package fuse
