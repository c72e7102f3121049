package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalBackend writes objects to the local filesystem. Public uploads live
// under PublicPath, everything else under PrivatePath; the dated subtree is
// created on demand.
type LocalBackend struct {
	PublicPath  string
	PrivatePath string
	Naming      *NamingPolicy
}

func NewLocalBackend(publicPath, privatePath string, naming *NamingPolicy) *LocalBackend {
	return &LocalBackend{PublicPath: publicPath, PrivatePath: privatePath, Naming: naming}
}

func (b *LocalBackend) root(access string) string {
	if access == AccessPublic {
		return b.PublicPath
	}
	return b.PrivatePath
}

func (b *LocalBackend) Store(ctx context.Context, src UploadSource, p Placement) (*StoreResult, error) {
	fileName := b.Naming.MakeFileName(src.Filename())
	dir := filepath.Join(b.root(p.Access), filepath.FromSlash(placementPrefix(p, time.Now())))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &BackendError{Backend: BackendLocal, Op: "mkdir", Err: err}
	}

	in, err := src.Open()
	if err != nil {
		return nil, &BackendError{Backend: BackendLocal, Op: "open", Err: err}
	}
	defer in.Close()

	absPath := filepath.Join(dir, fileName)
	out, err := os.Create(absPath)
	if err != nil {
		return nil, &BackendError{Backend: BackendLocal, Op: "create", Err: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(absPath) // never leave a partial object behind
		return nil, &BackendError{Backend: BackendLocal, Op: "write", Err: err}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(absPath)
		return nil, &BackendError{Backend: BackendLocal, Op: "close", Err: err}
	}

	loc := Locator{Path: absPath}
	return buildStoreResult(b.Naming, src, p, loc, fileName), nil
}

// FetchToLocalPath is the identity for the local backend; it only verifies
// the file is still there.
func (b *LocalBackend) FetchToLocalPath(ctx context.Context, loc Locator) (string, error) {
	if loc.Path == "" {
		return "", ErrLocatorMismatch
	}
	if _, err := os.Stat(loc.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrMissingSource
		}
		return "", &BackendError{Backend: BackendLocal, Op: "stat", Err: err}
	}
	return loc.Path, nil
}

func (b *LocalBackend) Remove(ctx context.Context, loc Locator) error {
	if loc.Path == "" {
		return ErrLocatorMismatch
	}
	if err := os.Remove(loc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &BackendError{Backend: BackendLocal, Op: "remove", Err: err}
	}
	return nil
}
