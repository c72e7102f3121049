package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"
)

// UploadSource abstracts the incoming file so backends do not depend on the
// HTTP layer. The gin handlers wrap *multipart.FileHeader; tests use an
// in-memory implementation.
type UploadSource interface {
	Filename() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Backend is the uniform contract over the physical storage providers.
//
// Store must be all-or-nothing: on success the object is durably written and
// fully readable, on error no object remains. FetchToLocalPath returns a path
// on the local filesystem; for remote backends this is a temporary file the
// caller must clean up. Remove is idempotent — a missing object is fine.
type Backend interface {
	Store(ctx context.Context, src UploadSource, p Placement) (*StoreResult, error)
	FetchToLocalPath(ctx context.Context, loc Locator) (string, error)
	Remove(ctx context.Context, loc Locator) error
}

// MultipartSource adapts a gin/net-http multipart file header to UploadSource.
type MultipartSource struct {
	Header *multipart.FileHeader
}

func (m MultipartSource) Filename() string { return m.Header.Filename }
func (m MultipartSource) Size() int64      { return m.Header.Size }
func (m MultipartSource) Open() (io.ReadCloser, error) {
	return m.Header.Open()
}

// placementPrefix builds the dated prefix a new object is stored under.
// Public objects share one tree; everything owner-scoped nests under the
// owner hash.
func placementPrefix(p Placement, now time.Time) string {
	dated := fmt.Sprintf("%d/%02d", now.Year(), int(now.Month()))
	if p.Access == AccessPublic {
		return dated
	}
	owner := p.OwnerHash
	if owner == "" {
		owner = fmt.Sprintf("u%d-c%d", p.UserID, p.CompanyID)
	}
	return owner + "/" + dated
}

// buildStoreResult assembles the metadata every backend reports after a
// durable write. When RandomName is set the recorded original name is
// disambiguated the same way the physical key is.
func buildStoreResult(naming *NamingPolicy, src UploadSource, p Placement, loc Locator, fileName string) *StoreResult {
	original := src.Filename()
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(original), "."))
	title := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))

	recorded := original
	if p.RandomName {
		recorded = naming.MakeFileName(original)
	}

	return &StoreResult{
		Locator:       loc,
		SourceName:    original,
		OriginalName:  recorded,
		FileName:      fileName,
		FileTitle:     title,
		FileExtension: ext,
		FileSize:      src.Size(),
		FileType:      ClassifyExtension(ext),
		FileSizeHuman: HumanSize(src.Size()),
	}
}

// contentTypeFor guesses a Content-Type from the filename extension.
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
