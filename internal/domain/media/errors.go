package media

import (
	"errors"
	"fmt"
)

var (
	ErrMediaNotFound       = errors.New("media not found")
	ErrRelationNotFound    = errors.New("relation not found")
	ErrNoFile              = errors.New("no file provided")
	ErrEmptyFile           = errors.New("file is empty")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrFileTooSmall        = errors.New("file is below minimum allowed size")
	ErrExtensionNotAllowed = errors.New("file extension is not allowed")
	ErrTypeForbidden       = errors.New("file type is forbidden")
	ErrMimeNotAllowed      = errors.New("mime type is not allowed")
	ErrDuplicate           = errors.New("duplicate file for this owner")
	ErrUnknownBackend      = errors.New("unknown storage backend")
	ErrLocatorMismatch     = errors.New("locator does not match backend")
	ErrMissingSource       = errors.New("source file is missing")
	ErrNoZipSources        = errors.New("no files to archive")
	ErrBadSizeFormat       = errors.New("unparsable size string")
)

// Numeric error codes surfaced to API callers.
const (
	CodeValidation = 4001
	CodeDuplicate  = 4002
	CodeNotFound   = 4004
	CodeBackend    = 5001
	CodeInternal   = 5000
)

// BackendError wraps a failure coming back from a storage provider. Code is
// the provider-specific error code when one was returned.
type BackendError struct {
	Backend string
	Op      string
	Code    string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
