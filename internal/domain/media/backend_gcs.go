package media

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// GCSBackend stores objects in a Google Cloud Storage bucket. Unlike the S3
// variants the bucket is only checked for existence, never auto-created:
// GCS bucket creation needs a project and billing decisions that do not
// belong to this layer.
type GCSBackend struct {
	Client *storage.Client
	Bucket string
	Naming *NamingPolicy

	mu      sync.Mutex
	ensured bool
}

func NewGCSBackend(client *storage.Client, bucket string, naming *NamingPolicy) *GCSBackend {
	return &GCSBackend{Client: client, Bucket: bucket, Naming: naming}
}

// ensureBucket caches only success so a transient failure is retried on the
// next write.
func (b *GCSBackend) ensureBucket(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ensured {
		return nil
	}
	if _, err := b.Client.Bucket(b.Bucket).Attrs(ctx); err != nil {
		return &BackendError{Backend: BackendGCS, Op: "bucket-attrs", Err: err}
	}
	b.ensured = true
	return nil
}

func (b *GCSBackend) Store(ctx context.Context, src UploadSource, p Placement) (*StoreResult, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}

	fileName := b.Naming.MakeFileName(src.Filename())
	key := p.Access + "/" + placementPrefix(p, time.Now()) + "/" + fileName

	in, err := src.Open()
	if err != nil {
		return nil, &BackendError{Backend: BackendGCS, Op: "open", Err: err}
	}
	defer in.Close()

	w := b.Client.Bucket(b.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentTypeFor(src.Filename())
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		// An aborted writer never commits the object, so nothing to clean up.
		return nil, &BackendError{Backend: BackendGCS, Op: "write", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &BackendError{Backend: BackendGCS, Op: "commit", Err: err}
	}

	loc := Locator{Bucket: b.Bucket, Key: key}
	return buildStoreResult(b.Naming, src, p, loc, fileName), nil
}

func (b *GCSBackend) FetchToLocalPath(ctx context.Context, loc Locator) (string, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return "", ErrLocatorMismatch
	}

	r, err := b.Client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", ErrMissingSource
		}
		return "", &BackendError{Backend: BackendGCS, Op: "read", Err: err}
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "media-gcs-*")
	if err != nil {
		return "", &BackendError{Backend: BackendGCS, Op: "temp", Err: err}
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", &BackendError{Backend: BackendGCS, Op: "download", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", &BackendError{Backend: BackendGCS, Op: "close", Err: err}
	}
	return tmp.Name(), nil
}

func (b *GCSBackend) Remove(ctx context.Context, loc Locator) error {
	if loc.Bucket == "" || loc.Key == "" {
		return ErrLocatorMismatch
	}
	err := b.Client.Bucket(loc.Bucket).Object(loc.Key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return &BackendError{Backend: BackendGCS, Op: "delete", Err: err}
	}
	return nil
}
