/*
Package adapter orchestrates a single mount: it owns the lifecycle of
the S3 adapter, the byte-range and attribute caches, the FUSE facade,
and the mount manager, wiring them together from a Configuration and a
MountConfig.

# Lifecycle

	adapter, err := adapter.New(ctx, "s3://my-bucket/prefix", "/mnt/data", cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := adapter.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer adapter.Stop(ctx)

New parses the storage URI into a bucket and key prefix, validates the
ambient Configuration and a MountConfig layered with environment
overrides, and returns without touching the network. It also builds
the process logger: GlobalConfig.LogLevel picks the slog level,
MonitoringConfig.Logging.Format picks JSON or text, and a configured
GlobalConfig.LogFile routes through a rotating writer instead of
growing unbounded. Start constructs the S3 Backend and Adapter, the
DataCache and FileManager, the FsFacade, and the go-fuse mount itself,
then starts a MountWatcher that periodically cross-checks /proc/mounts.
Stop stops the watcher, unmounts, closes every open CacheEntity, and
optionally removes the cache directory (MountConfig.RemoveCache).

# Storage URI

Only s3:// is supported:

	s3://bucket-name              bucket, no prefix
	s3://bucket-name/path/prefix  bucket with a key prefix
*/
package adapter
