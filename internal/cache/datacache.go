package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/objectfs/objectfs/pkg/utils"
	"go.uber.org/multierr"
)

// DataCache is the process-wide path -> CacheEntity registry. It
// constructs new entities, routes opens through them, and deletes
// persisted cache/stat bytes for a removed path. The registry mutex is
// held only for map lookup/insert/erase, never across I/O; per-entity
// locking is delegated to the entity itself.
type DataCache struct {
	limits Limits
	remote RemoteStore
	logger *slog.Logger

	mu       sync.Mutex
	entities map[string]*CacheEntity
}

// NewDataCache constructs an empty registry.
func NewDataCache(limits Limits, remote RemoteStore, logger *slog.Logger) *DataCache {
	return &DataCache{
		limits:   limits,
		remote:   remote,
		logger:   logger.With("component", "data_cache"),
		entities: make(map[string]*CacheEntity),
	}
}

// OpenCache looks up path in the registry. If present, it opens the
// existing entity (bumping its reference count). If absent and create
// is true, it constructs a new entity, inserts it, and opens it. If
// absent and create is false, it returns (nil, nil) — used by
// ExistOpen-style existence probes that must not fabricate a new
// entity.
func (d *DataCache) OpenCache(ctx context.Context, path string, meta *ObjectMeta, size int64, forceTmpfile, create bool) (*CacheEntity, error) {
	d.mu.Lock()
	ent, ok := d.entities[path]
	if !ok {
		if !create {
			d.mu.Unlock()
			return nil, nil
		}
		ent = NewCacheEntity(path, d.limits, d.remote, d.logger)
		d.entities[path] = ent
	}
	d.mu.Unlock()

	if err := ent.OpenFile(ctx, meta, size, forceTmpfile); err != nil {
		if !ok {
			d.mu.Lock()
			delete(d.entities, path)
			d.mu.Unlock()
		}
		return nil, fmt.Errorf("data cache: open %s: %w", path, err)
	}
	return ent, nil
}

// ExistOpen returns the already-open entity for path, or nil if none
// is open, without creating one.
func (d *DataCache) ExistOpen(path string) *CacheEntity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entities[path]
}

// CloseCache closes ent; once its reference count reaches zero it is
// removed from the registry. Tolerant of a caller passing an entity
// whose path key changed underneath it (e.g. across a rename) by
// falling back to a scan by identity.
func (d *DataCache) CloseCache(ctx context.Context, ent *CacheEntity) error {
	if ent == nil {
		return nil
	}
	closed, err := ent.CloseFile(ctx)
	if !closed {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.entities[ent.path]; ok && cur == ent {
		delete(d.entities, ent.path)
		return err
	}
	for p, e := range d.entities {
		if e == ent {
			delete(d.entities, p)
			break
		}
	}
	return err
}

// Rekey updates the registry key for an open entity after a rename,
// so future OpenCache(newPath) calls find it.
func (d *DataCache) Rekey(oldPath, newPath string, ent *CacheEntity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.entities[oldPath]; ok && cur == ent {
		delete(d.entities, oldPath)
	}
	ent.path = newPath
	d.entities[newPath] = ent
}

// DeleteCacheFile unlinks both the persistent cache file and its stat
// cache file for path. Missing-file errors are downgraded to
// warnings, matching the source's tolerance for a cache miss.
func (d *DataCache) DeleteCacheFile(path string) {
	if d.limits.CacheDir == "" {
		return
	}
	if cachePath, err := utils.SecureJoin(filepath.Join(d.limits.CacheDir, d.limits.Bucket), path); err != nil {
		d.logger.Warn("refusing to delete cache file outside cache directory", "path", path, "error", err)
	} else if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to delete cache file", "path", cachePath, "error", err)
	}
	stat := NewStatCacheFile(d.limits.CacheDir, d.limits.Bucket, path)
	if err := stat.Remove(); err != nil {
		d.logger.Warn("failed to delete stat cache file", "path", path, "error", err)
	}
}

// CloseAll releases every reference to every open entity, aggregating
// errors. Called at unmount. Each final close behaves as CloseFile
// describes: a tmpfile entity flushes, a persistent-cache entity saves
// its PageList without uploading.
func (d *DataCache) CloseAll(ctx context.Context) error {
	d.mu.Lock()
	all := make([]*CacheEntity, 0, len(d.entities))
	for _, e := range d.entities {
		all = append(all, e)
	}
	d.mu.Unlock()

	var errs error
	for _, e := range all {
		for e.RefCount() > 0 {
			if err := d.CloseCache(ctx, e); err != nil {
				errs = multierr.Append(errs, err)
				break
			}
		}
	}
	return errs
}

// Len returns the number of currently open entities, for tests and
// metrics.
func (d *DataCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entities)
}
