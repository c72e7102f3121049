package middleware

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"mediastore/internal/domain/media"
	"mediastore/internal/pkg/response"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// Context key the pre-computed store result is stored under. The validation
// middleware stores the file before the handler runs so quota and validation
// failures surface without a metadata row ever existing.
const StoreResultKey = "store_result"

// UploadRules are the validation limits applied to incoming files.
type UploadRules struct {
	AllowedExtensions []string
	ForbiddenTypes    []string
	MimeTypes         []string
	MinSize           int64
	MaxSize           int64
	CheckDuplicate    bool
	CheckRealMime     bool
}

// UploadValidation validates the multipart upload against the configured
// rules and, when everything passes, performs the physical store and leaves
// the result on the context for the handler.
func UploadValidation(rules UploadRules, svc *media.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actx, ok := MustAccessContext(c)
		if !ok {
			return
		}

		fh, err := c.FormFile("file")
		if err != nil {
			response.AbortError(c, http.StatusBadRequest, media.CodeValidation, media.ErrNoFile.Error())
			return
		}
		if fh.Size == 0 {
			response.AbortError(c, http.StatusBadRequest, media.CodeValidation, media.ErrEmptyFile.Error())
			return
		}
		if rules.MinSize > 0 && fh.Size < rules.MinSize {
			response.AbortError(c, http.StatusBadRequest, media.CodeValidation, media.ErrFileTooSmall.Error())
			return
		}
		if rules.MaxSize > 0 && fh.Size > rules.MaxSize {
			response.AbortError(c, http.StatusRequestEntityTooLarge, media.CodeValidation, media.ErrFileTooLarge.Error())
			return
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fh.Filename), "."))
		if len(rules.AllowedExtensions) > 0 && !contains(rules.AllowedExtensions, ext) {
			response.AbortError(c, http.StatusBadRequest, media.CodeValidation, media.ErrExtensionNotAllowed.Error())
			return
		}
		if contains(rules.ForbiddenTypes, media.ClassifyExtension(ext)) {
			response.AbortError(c, http.StatusBadRequest, media.CodeValidation, media.ErrTypeForbidden.Error())
			return
		}

		if len(rules.MimeTypes) > 0 {
			declared := fh.Header.Get("Content-Type")
			if rules.CheckRealMime {
				detected, err := sniffMime(fh)
				if err != nil {
					response.AbortError(c, http.StatusBadRequest, media.CodeValidation, media.ErrMimeNotAllowed.Error())
					return
				}
				declared = detected
			}
			if !mimeAllowed(rules.MimeTypes, declared) {
				response.AbortError(c, http.StatusBadRequest, media.CodeValidation, media.ErrMimeNotAllowed.Error())
				return
			}
		}

		if rules.CheckDuplicate {
			slug := media.MakeSlug(actx.Access, actx.UserID, actx.CompanyID, fh.Filename)
			dup, err := svc.IsDuplicated(c.Request.Context(), slug)
			if err != nil {
				response.AbortError(c, http.StatusInternalServerError, media.CodeInternal, "duplicate check failed")
				return
			}
			if dup {
				response.AbortError(c, http.StatusBadRequest, media.CodeDuplicate, media.ErrDuplicate.Error())
				return
			}
		}

		params := media.SaveParams{
			Storage:    c.PostForm("storage"),
			RandomName: c.PostForm("random_name") == "1" || c.PostForm("random_name") == "true",
		}
		result, err := svc.StoreMedia(c.Request.Context(), media.MultipartSource{Header: fh}, actx, params)
		if err != nil {
			response.AbortError(c, http.StatusBadGateway, media.CodeBackend, err.Error())
			return
		}

		c.Set(StoreResultKey, result)
		c.Next()
	}
}

// StoreResultFrom returns the pre-computed store result, when present.
func StoreResultFrom(c *gin.Context) *media.StoreResult {
	if v, ok := c.Get(StoreResultKey); ok {
		if res, ok := v.(*media.StoreResult); ok {
			return res
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func mimeAllowed(allowed []string, candidate string) bool {
	candidate = strings.TrimSpace(strings.Split(candidate, ";")[0])
	for _, m := range allowed {
		if strings.EqualFold(m, candidate) {
			return true
		}
	}
	return false
}

// sniffMime detects the MIME type from file content rather than trusting the
// client-declared header.
func sniffMime(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}
