package media

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// MinioBackend stores objects in any S3-compatible object store through the
// MinIO client. Shares the S3 contract: bucket verified-or-created before the
// first write, optional bucket policy applied after create.
type MinioBackend struct {
	Client *minio.Client
	Bucket string
	Policy string
	Naming *NamingPolicy

	mu      sync.Mutex
	ensured bool
}

func NewMinioBackend(client *minio.Client, bucket, policy string, naming *NamingPolicy) *MinioBackend {
	return &MinioBackend{Client: client, Bucket: bucket, Policy: policy, Naming: naming}
}

// ensureBucket caches only success: a failed check is retried on the next
// write instead of pinning the first error for the process lifetime.
func (b *MinioBackend) ensureBucket(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ensured {
		return nil
	}

	exists, err := b.Client.BucketExists(ctx, b.Bucket)
	if err != nil {
		return &BackendError{Backend: BackendMinio, Op: "head-bucket", Code: minio.ToErrorResponse(err).Code, Err: err}
	}
	if exists {
		b.ensured = true
		return nil
	}

	if err := b.Client.MakeBucket(ctx, b.Bucket, minio.MakeBucketOptions{}); err != nil {
		// Lost the create race: another writer made it first.
		code := minio.ToErrorResponse(err).Code
		if code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
			return &BackendError{Backend: BackendMinio, Op: "make-bucket", Code: code, Err: err}
		}
	}

	if b.Policy != "" {
		if err := b.Client.SetBucketPolicy(ctx, b.Bucket, b.Policy); err != nil {
			return &BackendError{Backend: BackendMinio, Op: "set-bucket-policy", Code: minio.ToErrorResponse(err).Code, Err: err}
		}
	}

	b.ensured = true
	return nil
}

func (b *MinioBackend) Store(ctx context.Context, src UploadSource, p Placement) (*StoreResult, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}

	fileName := b.Naming.MakeFileName(src.Filename())
	key := p.Access + "/" + placementPrefix(p, time.Now()) + "/" + fileName

	in, err := src.Open()
	if err != nil {
		return nil, &BackendError{Backend: BackendMinio, Op: "open", Err: err}
	}
	defer in.Close()

	_, err = b.Client.PutObject(ctx, b.Bucket, key, in, src.Size(), minio.PutObjectOptions{
		ContentType: contentTypeFor(src.Filename()),
	})
	if err != nil {
		return nil, &BackendError{Backend: BackendMinio, Op: "put-object", Code: minio.ToErrorResponse(err).Code, Err: err}
	}

	loc := Locator{Bucket: b.Bucket, Key: key}
	return buildStoreResult(b.Naming, src, p, loc, fileName), nil
}

func (b *MinioBackend) FetchToLocalPath(ctx context.Context, loc Locator) (string, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return "", ErrLocatorMismatch
	}

	tmp, err := os.CreateTemp("", "media-minio-*")
	if err != nil {
		return "", &BackendError{Backend: BackendMinio, Op: "temp", Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := b.Client.FGetObject(ctx, loc.Bucket, loc.Key, tmpPath, minio.GetObjectOptions{}); err != nil {
		_ = os.Remove(tmpPath)
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return "", ErrMissingSource
		}
		return "", &BackendError{Backend: BackendMinio, Op: "get-object", Code: resp.Code, Err: err}
	}
	return tmpPath, nil
}

func (b *MinioBackend) Remove(ctx context.Context, loc Locator) error {
	if loc.Bucket == "" || loc.Key == "" {
		return ErrLocatorMismatch
	}
	if err := b.Client.RemoveObject(ctx, loc.Bucket, loc.Key, minio.RemoveObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return &BackendError{Backend: BackendMinio, Op: "remove-object", Code: resp.Code, Err: err}
	}
	return nil
}
