package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/objectfs/objectfs/internal/cache"
	"github.com/objectfs/objectfs/internal/config"
	"github.com/objectfs/objectfs/internal/fuse"
	"github.com/objectfs/objectfs/internal/metacache"
	"github.com/objectfs/objectfs/internal/storage/s3"
	"github.com/objectfs/objectfs/pkg/utils"
)

// Adapter owns the lifecycle of every component a mount needs: the S3
// adapter, the byte-range and attribute caches, the FUSE facade, and
// the mount manager itself.
type Adapter struct {
	storageURI string
	mountPoint string
	config     *config.Configuration
	mount      *config.MountConfig
	logger     *slog.Logger

	store        *s3.Adapter
	dataCache    *cache.DataCache
	fileManager  *metacache.FileManager
	fsys         *fuse.FileSystem
	mountManager *fuse.MountManager
	watcher      *fuse.MountWatcher
}

// New creates a new ObjectFS adapter instance.
func New(ctx context.Context, storageURI, mountPoint string, cfg *config.Configuration) (*Adapter, error) {
	bucket, prefix, err := parseStorageURI(storageURI)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URI: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mount := config.NewDefaultMountConfig()
	mount.Bucket = bucket
	mount.Prefix = prefix
	mount.MountPoint = mountPoint
	if err := mount.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("invalid mount configuration: %w", err)
	}
	if err := mount.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mount configuration: %w", err)
	}

	return &Adapter{
		storageURI: storageURI,
		mountPoint: mountPoint,
		config:     cfg,
		mount:      mount,
		logger:     newLogger(cfg).With("component", "adapter"),
	}, nil
}

// MountConfig exposes the adapter's mount configuration for callers
// that need to layer additional overrides (e.g. command-line flags)
// on top of the file/environment values before Start is called.
func (a *Adapter) MountConfig() *config.MountConfig {
	return a.mount
}

// newLogger builds the process logger from GlobalConfig.LogLevel/LogFile
// and MonitoringConfig.Logging.Format. A configured log_file rotates
// through pkg/utils.LogRotator instead of growing unbounded.
func newLogger(cfg *config.Configuration) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(cfg.Global.LogLevel) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.Global.LogFile != "" {
		rotator, err := utils.NewLogRotator(&utils.RotationConfig{
			Filename:   cfg.Global.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
		if err == nil {
			out = rotator
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(cfg.Monitoring.Logging.Format, "text") {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// Start initializes every component and mounts the filesystem.
func (a *Adapter) Start(ctx context.Context) error {
	a.logger.Info("starting adapter", "storage_uri", a.storageURI, "mount_point", a.mountPoint)

	backendCfg := &s3.Config{
		Endpoint:        a.mount.Endpoint,
		AccessKeyID:     a.mount.AK,
		SecretAccessKey: a.mount.SK,
		SessionToken:    a.mount.STSToken,
		ForcePathStyle:  a.mount.Endpoint != "",
		PoolSize:        a.config.Performance.ConnectionPoolSize,
		MaxRetries:      a.config.Network.Retry.MaxAttempts,
		ConnectTimeout:  a.config.Network.Timeouts.Connect,
		RequestTimeout:  a.config.Network.Timeouts.Read,
	}
	backend, err := s3.NewBackend(ctx, a.mount.Bucket, backendCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 backend: %w", err)
	}
	a.store = s3.NewAdapter(backend, a.config.Performance.MaxConcurrency)

	if err := os.MkdirAll(a.mount.CacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.MkdirAll(a.mount.TmpDir, 0755); err != nil {
		return fmt.Errorf("failed to create tmp directory: %w", err)
	}

	limits := cache.Limits{
		CacheDir:           a.mount.CacheDir,
		TmpDir:             a.mount.TmpDir,
		Bucket:             a.mount.Bucket,
		MultipartSize:      a.mount.MultipartSize,
		MultipartThreshold: a.mount.MultipartThreshold,
		MultipartParallel:  a.mount.MultipartParallel,
		StorageClass:       a.mount.StorageClass,
	}
	a.dataCache = cache.NewDataCache(limits, a.store, a.logger)
	a.fileManager = metacache.New(a.store, a.mount.MetaExpiresSec, a.mount.MetaCapacity, a.logger)

	facadeCfg := fuse.FacadeConfig{
		BucketPrefix: a.mount.Prefix,
		RootUID:      a.mount.BosfsUID,
		Defaults: metacache.MountDefaults{
			UID:       a.mount.BosfsUID,
			GID:       a.mount.BosfsGID,
			Mode:      a.mount.BosfsMask,
			BlockSize: 4096,
			MinBlocks: 8,
		},
	}
	facade := fuse.NewFsFacade(a.store, a.dataCache, a.fileManager, limits, facadeCfg, a.logger)

	a.fsys = fuse.NewFileSystem(facade, &fuse.Config{
		MountPoint: a.mount.MountPoint,
		AllowOther: a.mount.AllowOther,
	}, a.logger)

	a.mountManager = fuse.NewMountManager(a.fsys, &fuse.MountConfig{
		MountPoint: a.mount.MountPoint,
		Options: &fuse.MountOptions{
			AllowOther:   a.mount.AllowOther,
			DefaultPerms: true,
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
			FSName:       "objectfs",
			Subtype:      "s3",
			MaxRead:      128 * 1024,
			MaxWrite:     128 * 1024,
		},
		Permissions: &fuse.Permissions{
			UID:      a.mount.BosfsUID,
			GID:      a.mount.BosfsGID,
			FileMode: 0666 &^ a.mount.MountUmask,
			DirMode:  0777 &^ a.mount.MountUmask,
		},
	}, a.logger)

	if err := a.mountManager.Mount(ctx); err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}

	a.watcher = fuse.NewMountWatcher(a.mountManager, 30*time.Second)
	a.watcher.Start()

	a.logger.Info("adapter started successfully")
	return nil
}

// Stop gracefully unmounts the filesystem and releases every open
// CacheEntity.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("stopping adapter")

	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.mountManager != nil && a.mountManager.IsMounted() {
		if err := a.mountManager.Unmount(); err != nil {
			a.logger.Warn("unmount failed", "error", err)
		}
	}

	if a.dataCache != nil {
		if err := a.dataCache.CloseAll(ctx); err != nil {
			a.logger.Warn("closing open cache entities failed", "error", err)
		}
	}

	if a.mount != nil && a.mount.RemoveCache {
		if err := os.RemoveAll(a.mount.CacheDir); err != nil {
			a.logger.Warn("removing cache directory failed", "error", err)
		}
	}

	a.logger.Info("adapter stopped successfully")
	return nil
}

// parseStorageURI splits an s3://bucket/prefix URI into its bucket and
// (optionally empty) key prefix.
func parseStorageURI(uri string) (bucket, prefix string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse URI: %w", err)
	}

	switch parsed.Scheme {
	case "s3":
		if parsed.Host == "" {
			return "", "", fmt.Errorf("S3 URI must include bucket name")
		}
	default:
		return "", "", fmt.Errorf("unsupported storage scheme: %s (only s3:// supported)", parsed.Scheme)
	}

	return parsed.Host, strings.Trim(parsed.Path, "/"), nil
}
