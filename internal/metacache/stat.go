package metacache

import (
	"strconv"
	"syscall"
	"time"
)

// MountDefaults are the mount-wide fallbacks used when an object
// carries no bosfs-* POSIX-attribute metadata of its own.
type MountDefaults struct {
	UID       uint32
	GID       uint32
	Mode      uint32 // permission bits only, no file-type bits
	BlockSize int64
	MinBlocks int64
}

// Stat is the POSIX attribute set synthesized from a FileEntry.
type Stat struct {
	Size    int64
	Blocks  int64
	Mtime   time.Time
	Ctime   time.Time
	Atime   time.Time
	UID     uint32
	GID     uint32
	Mode    uint32
	IsDir   bool
}

func userMetaInt(m map[string]string, keys ...string) (uint64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Stat synthesizes a POSIX stat structure: root or
// pure-prefix entries get mount defaults and zero length; otherwise
// size/blocks come from content-length, times fall back through
// bosfs-mtime -> mtime -> last-modified, uid/gid/mode fall back
// through their bosfs-* keys to mount defaults, and the file-type bit
// is inferred from IsDirObj/content-type when the stored mode lacks
// one.
func (fe *FileEntry) Stat(defaults MountDefaults) Stat {
	if fe.IsPrefix {
		return Stat{
			Blocks: defaults.MinBlocks,
			UID:    defaults.UID,
			GID:    defaults.GID,
			Mode:   defaults.Mode | syscall.S_IFDIR,
			IsDir:  true,
		}
	}

	um := fe.Meta.UserMeta
	size := fe.Meta.ContentLength
	blkSize := defaults.BlockSize
	if blkSize <= 0 {
		blkSize = 4096
	}
	blocks := ((size + blkSize - 1) / blkSize) * defaults.MinBlocks

	mtime := fe.Meta.LastModified
	if v, ok := um["bosfs-mtime"]; ok {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			mtime = time.Unix(sec, 0)
		}
	} else if v, ok := um["mtime"]; ok {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			mtime = time.Unix(sec, 0)
		}
	}

	uid := uint64(defaults.UID)
	if v, ok := userMetaInt(um, "bosfs-uid", "uid"); ok {
		uid = v
	}
	gid := uint64(defaults.GID)
	if v, ok := userMetaInt(um, "bosfs-gid", "gid"); ok {
		gid = v
	}

	isDir := fe.IsDirObj || fe.Meta.ContentType == "application/x-directory"
	mode := uint64(defaults.Mode)
	if v, ok := userMetaInt(um, "bosfs-mode", "mode"); ok {
		mode = v
	}
	if mode&syscall.S_IFMT == 0 {
		if isDir {
			mode |= syscall.S_IFDIR
		} else {
			mode |= syscall.S_IFREG
		}
	}

	return Stat{
		Size:   size,
		Blocks: blocks,
		Mtime:  mtime,
		Ctime:  mtime,
		Atime:  mtime,
		UID:    uint32(uid),
		GID:    uint32(gid),
		Mode:   uint32(mode),
		IsDir:  isDir || mode&syscall.S_IFMT == syscall.S_IFDIR,
	}
}
