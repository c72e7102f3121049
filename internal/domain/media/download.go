package media

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// streamBufferSize bounds memory while serving large files.
const streamBufferSize = 32 * 1024

// Transport streams stored objects back to clients and builds access URLs.
// One implementation per backend family; the service picks by the item's
// backend tag.
type Transport interface {
	Stream(ctx context.Context, w http.ResponseWriter, item *StorageItem) error
	PrivateURL(item *StorageItem) string
	PublicURL(item *StorageItem) string
}

// LocalTransport serves objects straight off the local filesystem and
// packages multi-file zip downloads.
type LocalTransport struct {
	StreamURI   string
	DownloadURI string
	PublicPath  string
}

func NewLocalTransport(streamURI, downloadURI, publicPath string) *LocalTransport {
	return &LocalTransport{StreamURI: streamURI, DownloadURI: downloadURI, PublicPath: publicPath}
}

func (t *LocalTransport) Stream(ctx context.Context, w http.ResponseWriter, item *StorageItem) error {
	loc := item.Information.Storage
	if loc.Path == "" {
		return ErrLocatorMismatch
	}
	return streamFile(w, loc.Path, item.Information.Name)
}

func (t *LocalTransport) PrivateURL(item *StorageItem) string {
	return strings.TrimSuffix(t.StreamURI, "/") + "/" + item.ID
}

// PublicURL maps a public object's disk path onto the download URI. Non-public
// items have no public address.
func (t *LocalTransport) PublicURL(item *StorageItem) string {
	if item.Access != AccessPublic {
		return ""
	}
	rel, err := filepath.Rel(t.PublicPath, item.Information.Storage.Path)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(t.DownloadURI, "/") + "/" + filepath.ToSlash(rel)
}

// ZipEntry names one file going into a bulk download archive.
type ZipEntry struct {
	Path      string `json:"path"`
	LocalName string `json:"local_name"`
}

// StreamZip packages the given files into a temporary archive, streams it as
// application/zip and removes the archive afterwards. The deferred cleanup
// runs even when the client disconnects mid-transfer.
func (t *LocalTransport) StreamZip(ctx context.Context, w http.ResponseWriter, archiveName string, entries []ZipEntry) error {
	if len(entries) == 0 {
		return ErrNoZipSources
	}

	tmp, err := os.CreateTemp("", "media-zip-*.zip")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	used := make(map[string]bool, len(entries))
	for _, entry := range entries {
		src, err := os.Open(entry.Path)
		if err != nil {
			zw.Close()
			tmp.Close()
			if errors.Is(err, os.ErrNotExist) {
				return ErrMissingSource
			}
			return fmt.Errorf("open %s: %w", entry.Path, err)
		}

		name := entry.LocalName
		if name == "" {
			name = filepath.Base(entry.Path)
		}
		name = uniqueArchiveName(used, name)
		dst, err := zw.Create(name)
		if err == nil {
			_, err = io.Copy(dst, src)
		}
		src.Close()
		if err != nil {
			zw.Close()
			tmp.Close()
			return fmt.Errorf("archive %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	if archiveName == "" {
		archiveName = "download.zip"
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+archiveName+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyBuffer(w, f, make([]byte, streamBufferSize))
	return err
}

// uniqueArchiveName disambiguates repeated entry names; extractors would
// otherwise silently overwrite one file with another.
func uniqueArchiveName(used map[string]bool, name string) string {
	base := name
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	used[name] = true
	return name
}

// RemoteTransport streams objects held by a remote backend: the object is
// fetched to a temporary file, served, and the temp file removed.
type RemoteTransport struct {
	Backend   Backend
	StreamURI string
}

func NewRemoteTransport(backend Backend, streamURI string) *RemoteTransport {
	return &RemoteTransport{Backend: backend, StreamURI: streamURI}
}

func (t *RemoteTransport) Stream(ctx context.Context, w http.ResponseWriter, item *StorageItem) error {
	path, err := t.Backend.FetchToLocalPath(ctx, item.Information.Storage)
	if err != nil {
		return err
	}
	defer os.Remove(path)
	return streamFile(w, path, item.Information.Name)
}

func (t *RemoteTransport) PrivateURL(item *StorageItem) string {
	return strings.TrimSuffix(t.StreamURI, "/") + "/" + item.ID
}

// PublicURL is empty for remote backends: objects are not exposed publicly
// unless a bucket policy outside this layer says so.
func (t *RemoteTransport) PublicURL(item *StorageItem) string { return "" }

func streamFile(w http.ResponseWriter, path, downloadName string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrMissingSource
		}
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if downloadName == "" {
		downloadName = filepath.Base(path)
	}
	w.Header().Set("Content-Type", contentTypeFor(downloadName))
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	_, err = io.CopyBuffer(w, f, make([]byte, streamBufferSize))
	return err
}
