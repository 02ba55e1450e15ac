/*
Package s3 provides the S3 storage adapter with CargoShip upload
optimization and tier-constraint enforcement.

Backend owns the AWS SDK client, connection pool, and CargoShip
transporter. Adapter wraps a Backend with the resilience primitives
StorageAdapter needs (circuit breaker, retryer, connection manager) and
exposes the narrow head/list/get/put/copy/delete surface that
internal/cache.RemoteStore consumes.

# CargoShip Integration

PutObject routes through the CargoShip transporter when enabled, falling
back to the plain AWS SDK client on failure. UploadSuperFile uses the
SDK's manager.Uploader directly.

# Storage Tier Enforcement

TierValidator (tiers.go) enforces the minimum-object-size and
deletion-embargo constraints of the configured storage tier.
Adapter.PutObject and Adapter.UploadSuperFile call ValidateWrite before
issuing a write; Adapter.DeleteObject heads the object first and calls
ValidateDelete against its age before issuing the delete.

# Configuration

	cfg := s3.NewDefaultConfig()
	cfg.StorageTier = s3.TierStandardIA
	cfg.EnableCargoShipOptimization = true

	backend, err := s3.NewBackend(ctx, "my-bucket", cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close()

	adapter := s3.NewAdapter(backend, 100)

# Usage

	meta, exists, err := adapter.HeadObject(ctx, "data/file.txt")

	err = adapter.PutObject(ctx, "data/file.txt", reader, size, objMeta)

	err = adapter.DeleteObject(ctx, "data/file.txt")

# Error Handling

Backend.translateError maps AWS SDK errors (NoSuchKey, NoSuchBucket) to
descriptive errors. Adapter runs HeadObject, ListObjects, GetRange,
PutObject and DeleteObject through a circuit breaker; UploadSuperFile and
CopyObject do not use it. CopyObject uses a retryer tuned for the
"missing source key" case instead.
*/
package s3
