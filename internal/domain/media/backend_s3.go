package media

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend stores objects in an AWS S3 bucket. The bucket is verified (and
// created, with an optional policy) before the first write.
type S3Backend struct {
	Client *s3.Client
	Bucket string
	Region string
	Policy string
	Naming *NamingPolicy

	uploader *manager.Uploader
	mu       sync.Mutex
	ensured  bool
}

func NewS3Backend(client *s3.Client, bucket, region, policy string, naming *NamingPolicy) *S3Backend {
	return &S3Backend{
		Client:   client,
		Bucket:   bucket,
		Region:   region,
		Policy:   policy,
		Naming:   naming,
		uploader: manager.NewUploader(client),
	}
}

// ensureBucket heads the bucket and creates it when missing, waiting until it
// exists. A create that loses the race to another writer counts as success.
// Only success is cached: a transient provider failure is retried on the next
// write instead of poisoning the backend for the process lifetime.
func (b *S3Backend) ensureBucket(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ensured {
		return nil
	}

	_, err := b.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.Bucket)})
	if err == nil {
		b.ensured = true
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.Bucket)}
	if b.Region != "" && b.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.Region),
		}
	}
	if _, err := b.Client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if !errors.As(err, &owned) && !errors.As(err, &exists) {
			return &BackendError{Backend: BackendS3, Op: "create-bucket", Err: err}
		}
	}

	waiter := s3.NewBucketExistsWaiter(b.Client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.Bucket)}, 30*time.Second); err != nil {
		return &BackendError{Backend: BackendS3, Op: "wait-bucket", Err: err}
	}

	if b.Policy != "" {
		_, err := b.Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
			Bucket: aws.String(b.Bucket),
			Policy: aws.String(b.Policy),
		})
		if err != nil {
			return &BackendError{Backend: BackendS3, Op: "put-bucket-policy", Err: err}
		}
	}

	b.ensured = true
	return nil
}

func (b *S3Backend) Store(ctx context.Context, src UploadSource, p Placement) (*StoreResult, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}

	fileName := b.Naming.MakeFileName(src.Filename())
	key := p.Access + "/" + placementPrefix(p, time.Now()) + "/" + fileName

	in, err := src.Open()
	if err != nil {
		return nil, &BackendError{Backend: BackendS3, Op: "open", Err: err}
	}
	defer in.Close()

	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(key),
		Body:        in,
		ContentType: aws.String(contentTypeFor(src.Filename())),
	})
	if err != nil {
		return nil, &BackendError{Backend: BackendS3, Op: "put-object", Err: err}
	}

	loc := Locator{Bucket: b.Bucket, Key: key}
	return buildStoreResult(b.Naming, src, p, loc, fileName), nil
}

// FetchToLocalPath downloads the object into a temporary file. The caller
// owns the file and must remove it.
func (b *S3Backend) FetchToLocalPath(ctx context.Context, loc Locator) (string, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return "", ErrLocatorMismatch
	}

	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", ErrMissingSource
		}
		return "", &BackendError{Backend: BackendS3, Op: "get-object", Err: err}
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "media-s3-*")
	if err != nil {
		return "", &BackendError{Backend: BackendS3, Op: "temp", Err: err}
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", &BackendError{Backend: BackendS3, Op: "download", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", &BackendError{Backend: BackendS3, Op: "close", Err: err}
	}
	return tmp.Name(), nil
}

func (b *S3Backend) Remove(ctx context.Context, loc Locator) error {
	if loc.Bucket == "" || loc.Key == "" {
		return ErrLocatorMismatch
	}
	// DeleteObject on a missing key succeeds, which matches the idempotency
	// contract.
	_, err := b.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return &BackendError{Backend: BackendS3, Op: "delete-object", Err: err}
	}
	return nil
}
