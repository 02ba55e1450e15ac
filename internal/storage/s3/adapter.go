package s3

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	objcache "github.com/objectfs/objectfs/internal/cache"
	"github.com/objectfs/objectfs/internal/circuit"
	objerrors "github.com/objectfs/objectfs/pkg/errors"
	"github.com/objectfs/objectfs/pkg/recovery"
	"github.com/objectfs/objectfs/pkg/retry"
)

// Adapter is the narrow façade over Backend's S3 client exposing the
// StorageAdapter contract consumed by the core: head, delimited list,
// ranged get, put, multipart put, copy, parallel copy, delete, and
// batched head. It implements internal/cache.RemoteStore.
type Adapter struct {
	*Backend

	breaker *circuit.CircuitBreaker
	retryer *retry.Retryer
	conns   *recovery.ConnectionManager

	batchConcurrency int
}

// NewAdapter wraps an already-constructed Backend with resilience
// helpers: a circuit breaker, a retryer (five attempts one second
// apart) for the RET_KEY_NOT_EXIST case, and a ConnectionManager whose
// factory returns the Backend's existing SDK client and whose health
// check is Backend.HealthCheck. Nothing here replaces the Backend's
// client.
func NewAdapter(backend *Backend, batchConcurrency int) *Adapter {
	if batchConcurrency <= 0 {
		batchConcurrency = 100
	}
	breaker := circuit.NewCircuitBreaker("s3-adapter", circuit.Config{})
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 5
	retryCfg.InitialDelay = time.Second
	retryCfg.MaxDelay = time.Second
	retryCfg.Multiplier = 1

	conns := recovery.NewConnectionManager("s3-adapter", recovery.DefaultConnectionConfig(),
		func(ctx context.Context) (interface{}, error) {
			return backend.client, nil
		},
		func(ctx context.Context, conn interface{}) error {
			return backend.HealthCheck(ctx)
		},
	)

	tier := backend.GetCurrentTier()
	backend.logger.Info("s3 adapter ready", "storage_tier", tier.Name, "min_object_size", tier.MinObjectSize)

	return &Adapter{
		Backend:          backend,
		breaker:          breaker,
		retryer:          retry.New(retryCfg),
		conns:            conns,
		batchConcurrency: batchConcurrency,
	}
}

// Reconnect re-runs the ConnectionManager's factory and health check.
// The factory returns the Backend's current client, so the Backend and
// its pool go on using the same SDK client afterwards.
func (a *Adapter) Reconnect(ctx context.Context) error {
	return a.conns.Reconnect(ctx)
}

func toObjectMeta(out *s3.HeadObjectOutput) *objcache.ObjectMeta {
	m := &objcache.ObjectMeta{
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
		LastModified:  aws.ToTime(out.LastModified),
		ETag:          aws.ToString(out.ETag),
		UserMeta:      make(map[string]string, len(out.Metadata)),
	}
	if out.StorageClass != "" {
		m.StorageClass = string(out.StorageClass)
	}
	for k, v := range out.Metadata {
		m.UserMeta[k] = v
	}
	return m
}

// HeadObject implements cache.RemoteStore. A 404 is a valid, non-error
// outcome (exists=false).
func (a *Adapter) HeadObject(ctx context.Context, key string) (*objcache.ObjectMeta, bool, error) {
	start := time.Now()
	client := a.pool.Get()
	defer a.pool.Put(client)

	var out *s3.HeadObjectOutput
	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var e error
		out, e = client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
		return e
	})
	if err != nil {
		if isNotFound(err) {
			a.recordMetrics(time.Since(start), false)
			return nil, false, nil
		}
		a.recordError(err)
		a.recordMetrics(time.Since(start), true)
		return nil, false, a.translateError(err, "HeadObject", key)
	}
	a.recordMetrics(time.Since(start), false)
	return toObjectMeta(out), true, nil
}

// ListObjects implements cache.RemoteStore: a single delimited listing
// page.
func (a *Adapter) ListObjects(ctx context.Context, prefix, delimiter string, maxKeys int, marker string) (*objcache.ListResult, error) {
	client := a.pool.Get()
	defer a.pool.Put(client)

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	if marker != "" {
		input.ContinuationToken = aws.String(marker)
	}

	var out *s3.ListObjectsV2Output
	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var e error
		out, e = client.ListObjectsV2(ctx, input)
		return e
	})
	if err != nil {
		a.recordError(err)
		return nil, a.translateError(err, "ListObjects", prefix)
	}

	res := &objcache.ListResult{Truncated: aws.ToBool(out.IsTruncated)}
	if out.NextContinuationToken != nil {
		res.NextMarker = aws.ToString(out.NextContinuationToken)
	}
	for _, cp := range out.CommonPrefixes {
		res.CommonPrefixes = append(res.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	for _, obj := range out.Contents {
		res.Contents = append(res.Contents, objcache.ListEntry{
			Key: aws.ToString(obj.Key),
			Meta: objcache.ObjectMeta{
				ContentLength: aws.ToInt64(obj.Size),
				LastModified:  aws.ToTime(obj.LastModified),
				ETag:          aws.ToString(obj.ETag),
			},
		})
	}
	return res, nil
}

// GetRange implements cache.RemoteStore's parallel_download: it issues
// a ranged GET and writes the body into dst at offset.
func (a *Adapter) GetRange(ctx context.Context, key string, offset, length int64, dst io.WriterAt) error {
	if length <= 0 {
		return nil
	}
	client := a.pool.Get()
	defer a.pool.Put(client)

	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	var out *s3.GetObjectOutput
	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var e error
		out, e = client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Range:  aws.String(rng),
		})
		return e
	})
	if err != nil {
		a.recordError(err)
		return a.translateError(err, "GetRange", key)
	}
	defer out.Body.Close()

	buf := make([]byte, 256*1024)
	pos := offset
	for {
		n, rerr := out.Body.Read(buf)
		if n > 0 {
			if _, werr := dst.WriteAt(buf[:n], pos); werr != nil {
				return werr
			}
			pos += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}

func (a *Adapter) metaToS3(key string, meta objcache.ObjectMeta) (*string, *string, map[string]string) {
	ct := aws.String(a.detectContentType(key))
	if meta.ContentType != "" {
		ct = aws.String(meta.ContentType)
	}
	var sc *string
	if meta.StorageClass != "" {
		sc = aws.String(meta.StorageClass)
	}
	return ct, sc, meta.UserMeta
}

// PutObject implements cache.RemoteStore: a single-shot PUT, routed
// through the CargoShip transporter when available, falling back to
// the plain S3 client.
func (a *Adapter) PutObject(ctx context.Context, key string, src io.ReaderAt, size int64, meta objcache.ObjectMeta) error {
	if err := a.tierValidator.ValidateWrite(key, size); err != nil {
		return fmt.Errorf("tier validation failed: %w", err)
	}

	ct, sc, userMeta := a.metaToS3(key, meta)
	body := io.NewSectionReader(src, 0, size)

	if a.transporter != nil {
		archive := cargoships3.Archive{
			Key:      key,
			Reader:   body,
			Size:     size,
			Metadata: userMeta,
		}
		if sc != nil {
			archive.StorageClass = cargoconfig.StorageClass(*sc)
		}
		if _, err := a.transporter.Upload(ctx, archive); err == nil {
			return nil
		}
		a.logger.Warn("cargoship upload failed, falling back to plain S3 PUT", "key", key)
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	client := a.pool.Get()
	defer a.pool.Put(client)
	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		_, e := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
			ContentType:   ct,
			StorageClass:  s3types.StorageClass(aws.ToString(sc)),
			Metadata:      userMeta,
		})
		return e
	})
	if err != nil {
		a.recordError(err)
		return a.translateError(err, "PutObject", key)
	}
	return nil
}

// UploadSuperFile implements cache.RemoteStore's upload_super_file:
// multipart upload via the AWS SDK's manager.Uploader, chunked at
// partSize with parallel concurrency.
func (a *Adapter) UploadSuperFile(ctx context.Context, key string, src io.ReaderAt, size int64, meta objcache.ObjectMeta, partSize int64, parallel int) error {
	if err := a.tierValidator.ValidateWrite(key, size); err != nil {
		return fmt.Errorf("tier validation failed: %w", err)
	}

	ct, sc, userMeta := a.metaToS3(key, meta)
	client := a.pool.Get()
	defer a.pool.Put(client)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
		u.Concurrency = parallel
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(a.bucket),
		Key:          aws.String(key),
		Body:         io.NewSectionReader(src, 0, size),
		ContentType:  ct,
		StorageClass: s3types.StorageClass(aws.ToString(sc)),
		Metadata:     userMeta,
	})
	if err != nil {
		a.recordError(err)
		return a.translateError(err, "UploadSuperFile", key)
	}
	return nil
}

// CopyObject implements cache.RemoteStore, retrying RET_KEY_NOT_EXIST
// (a missing source) 5 times with 1-second sleeps, used for
// in-place metadata updates via copy-to-self.
func (a *Adapter) CopyObject(ctx context.Context, srcKey, dstKey, storageClass string, meta *objcache.ObjectMeta) error {
	client := a.pool.Get()
	defer a.pool.Put(client)

	input := &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(a.bucket + "/" + url.PathEscape(srcKey)),
	}
	if storageClass != "" {
		input.StorageClass = s3types.StorageClass(storageClass)
	}
	if meta != nil {
		input.Metadata = meta.UserMeta
		input.MetadataDirective = s3types.MetadataDirectiveReplace
		if meta.ContentType != "" {
			input.ContentType = aws.String(meta.ContentType)
		}
	}

	return a.retryer.Do(func() error {
		_, err := client.CopyObject(ctx, input)
		if err == nil {
			return nil
		}
		if isNotFound(err) {
			objErr := objerrors.NewError(objerrors.ErrCodeObjectNotFound, "copy source key does not exist").WithCause(err)
			objErr.Retryable = true
			return objErr
		}
		a.recordError(err)
		return a.translateError(err, "CopyObject", srcKey)
	})
}

// ParallelCopy implements cache.RemoteStore's parallel_copy for large
// objects. The AWS CopyObject API itself is server-side and
// single-request regardless of size; the "parallel" distinction is
// honored by skipping the local retry-on-not-exist dance (the caller
// already knows the source exists) and going straight to the copy.
func (a *Adapter) ParallelCopy(ctx context.Context, srcKey, dstKey string, size int64, storageClass string, meta *objcache.ObjectMeta) error {
	client := a.pool.Get()
	defer a.pool.Put(client)

	input := &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(a.bucket + "/" + url.PathEscape(srcKey)),
	}
	if storageClass != "" {
		input.StorageClass = s3types.StorageClass(storageClass)
	}
	if meta != nil && len(meta.UserMeta) > 0 {
		input.Metadata = meta.UserMeta
		input.MetadataDirective = s3types.MetadataDirectiveReplace
	}

	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		_, e := client.CopyObject(ctx, input)
		return e
	})
	if err != nil {
		a.recordError(err)
		return a.translateError(err, "ParallelCopy", srcKey)
	}
	return nil
}

// DeleteObject implements cache.RemoteStore. Deletion is validated
// against the configured tier's minimum-storage-duration embargo
// before the request is issued.
func (a *Adapter) DeleteObject(ctx context.Context, key string) error {
	if meta, exists, err := a.HeadObject(ctx, key); err == nil && exists {
		if verr := a.tierValidator.ValidateDelete(key, time.Since(meta.LastModified)); verr != nil {
			return fmt.Errorf("tier validation failed: %w", verr)
		}
	}

	client := a.pool.Get()
	defer a.pool.Put(client)
	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		_, e := client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
		return e
	})
	if err != nil {
		a.recordError(err)
		return a.translateError(err, "DeleteObject", key)
	}
	return nil
}

// SendRequestBatch implements cache.RemoteStore's send_request: up to
// batchConcurrency concurrent HEAD requests fanned out over keys.
func (a *Adapter) SendRequestBatch(ctx context.Context, keys []string, concurrency int) map[string]objcache.HeadResult {
	if concurrency <= 0 || concurrency > a.batchConcurrency {
		concurrency = a.batchConcurrency
	}
	out := make(map[string]objcache.HeadResult, len(keys))
	if len(keys) == 0 {
		return out
	}

	type res struct {
		key string
		r   objcache.HeadResult
	}
	resultCh := make(chan res, len(keys))
	sem := make(chan struct{}, concurrency)

	for _, k := range keys {
		k := k
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			meta, exists, err := a.HeadObject(ctx, k)
			resultCh <- res{key: k, r: objcache.HeadResult{Meta: meta, Exists: exists, Err: err}}
		}()
	}
	for i := 0; i < len(keys); i++ {
		r := <-resultCh
		out[r.key] = r.r
	}
	return out
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return stderrors.As(err, &nsk) || stderrors.As(err, &nf)
}
