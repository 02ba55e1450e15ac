package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/objectfs/objectfs/pkg/utils"
	"golang.org/x/sys/unix"
)

// StatCacheFile binds a remote path to the on-disk serialization of its
// PageList, guarded by an exclusive advisory whole-file lock so that no
// two entities in the same process serialize or parse the same file
// concurrently.
//
// Mounts without a configured cache directory skip StatCacheFile
// entirely; callers must not construct one in that case.
type StatCacheFile struct {
	cacheDir string
	bucket   string
	path     string
	file     *os.File
}

// NewStatCacheFile returns a StatCacheFile for path, unopened.
func NewStatCacheFile(cacheDir, bucket, path string) *StatCacheFile {
	return &StatCacheFile{cacheDir: cacheDir, bucket: bucket, path: path}
}

// localPath returns <cache_dir>/.<bucket>.stat<path>, rejecting any
// remote path that would escape the stat cache directory.
func (s *StatCacheFile) localPath() (string, error) {
	base := filepath.Join(s.cacheDir, fmt.Sprintf(".%s.stat", s.bucket))
	return utils.SecureJoin(base, s.path)
}

// SetPath rebinds the StatCacheFile to a new remote path. Must be
// called while closed.
func (s *StatCacheFile) SetPath(path string) {
	s.path = path
}

// Open creates the parent directory, opens (creating if needed) the
// backing file, acquires an exclusive advisory lock, and seeks to the
// start.
func (s *StatCacheFile) Open() error {
	if s.file != nil {
		return fmt.Errorf("statcachefile: already open for %s", s.path)
	}
	local, err := s.localPath()
	if err != nil {
		return fmt.Errorf("statcachefile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return fmt.Errorf("statcachefile: mkdir parent for %s: %w", local, err)
	}
	f, err := os.OpenFile(local, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("statcachefile: open %s: %w", local, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("statcachefile: flock %s: %w", local, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return fmt.Errorf("statcachefile: seek %s: %w", local, err)
	}
	s.file = f
	return nil
}

// File returns the underlying *os.File for Serialize/Deserialize calls.
// Valid only between Open and Release.
func (s *StatCacheFile) File() *os.File {
	return s.file
}

// Truncate resets the file to empty before a fresh Serialize, keeping
// the lock held.
func (s *StatCacheFile) Truncate() error {
	if s.file == nil {
		return fmt.Errorf("statcachefile: not open")
	}
	if err := s.file.Truncate(0); err != nil {
		return err
	}
	_, err := s.file.Seek(0, 0)
	return err
}

// Release unlocks and closes the file.
func (s *StatCacheFile) Release() error {
	if s.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	closeErr := s.file.Close()
	s.file = nil
	if unlockErr != nil {
		return fmt.Errorf("statcachefile: unlock: %w", unlockErr)
	}
	return closeErr
}

// Remove deletes the backing file from disk. Safe to call whether or
// not it exists.
func (s *StatCacheFile) Remove() error {
	local, err := s.localPath()
	if err != nil {
		return fmt.Errorf("statcachefile: %w", err)
	}
	if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
