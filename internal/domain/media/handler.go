package media

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mediastore/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler exposes the media service over HTTP. Controllers stay thin: bind,
// delegate, map errors.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// accessContext pulls the scope the auth middleware resolved.
func accessContext(c *gin.Context) (AccessContext, bool) {
	v, ok := c.Get("access_ctx")
	if !ok {
		response.AbortError(c, http.StatusUnauthorized, CodeValidation, "unauthorized")
		return AccessContext{}, false
	}
	actx, ok := v.(AccessContext)
	if !ok {
		response.AbortError(c, http.StatusUnauthorized, CodeValidation, "unauthorized")
		return AccessContext{}, false
	}
	return actx, true
}

func writeError(c *gin.Context, err error) {
	var berr *BackendError
	switch {
	case errors.Is(err, ErrMediaNotFound), errors.Is(err, ErrRelationNotFound):
		response.Error(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, ErrDuplicate):
		response.Error(c, http.StatusBadRequest, CodeDuplicate, err.Error())
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrFileTooLarge), errors.Is(err, ErrFileTooSmall),
		errors.Is(err, ErrExtensionNotAllowed), errors.Is(err, ErrTypeForbidden),
		errors.Is(err, ErrMimeNotAllowed), errors.Is(err, ErrNoZipSources),
		errors.Is(err, ErrMissingSource):
		response.Error(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.As(err, &berr):
		response.Error(c, http.StatusBadGateway, CodeBackend, berr.Error())
	default:
		response.Error(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// Upload handles POST /media. The upload-validation middleware has already
// validated and stored the file; the pre-computed result rides on the context.
func (h *Handler) Upload(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, CodeValidation, ErrNoFile.Error())
		return
	}

	params := SaveParams{
		Storage:         c.PostForm("storage"),
		Title:           c.PostForm("title"),
		RandomName:      c.PostForm("random_name") == "1" || c.PostForm("random_name") == "true",
		RelationModule:  c.PostForm("relation_module"),
		RelationSection: c.PostForm("relation_section"),
		RelationItem:    c.PostForm("relation_item"),
		RelationTitle:   c.PostForm("relation_title"),
	}
	if v := c.PostForm("category_id"); v != "" {
		params.CategoryID = parseInt64(v)
	}
	if v := c.PostFormArray("category"); len(v) > 0 {
		params.Category = v
	}

	var pre *StoreResult
	if v, exists := c.Get("store_result"); exists {
		pre, _ = v.(*StoreResult)
	}

	item, err := h.service.AddMedia(c.Request.Context(), MultipartSource{Header: fh}, actx, params, pre)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// List handles GET /media.
func (h *Handler) List(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.Error(c, http.StatusBadRequest, CodeValidation, "invalid query")
		return
	}

	result, err := h.service.GetMediaList(c.Request.Context(), actx, params)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Get handles GET /media/:id.
func (h *Handler) Get(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	item, err := h.service.GetMedia(c.Request.Context(), c.Param("id"), actx)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, ProjectItem(item, c.Query("view")))
}

// Update handles PUT /media/:id.
func (h *Handler) Update(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	var params UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		response.Error(c, http.StatusBadRequest, CodeValidation, "invalid body")
		return
	}

	item, err := h.service.UpdateMedia(c.Request.Context(), c.Param("id"), actx, params)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// UpdateFile handles PUT /media/:id/file: replaces the physical object and
// merges any accompanying metadata fields.
func (h *Handler) UpdateFile(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, CodeValidation, ErrNoFile.Error())
		return
	}

	save := SaveParams{
		Storage:    c.PostForm("storage"),
		RandomName: c.PostForm("random_name") == "1" || c.PostForm("random_name") == "true",
	}
	update := updateParamsFromForm(c)

	item, err := h.service.UpdateMediaWithFile(c.Request.Context(), c.Param("id"), actx, MultipartSource{Header: fh}, save, update)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// Delete handles DELETE /media/:id: object, relations, row — in that order.
func (h *Handler) Delete(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	item, err := h.service.GetMedia(c.Request.Context(), c.Param("id"), actx)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.service.DeleteMedia(c.Request.Context(), item, actx); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": item.ID})
}

// Stream handles GET /media/:id/stream.
func (h *Handler) Stream(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	item, err := h.service.GetMedia(c.Request.Context(), c.Param("id"), actx)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.service.StreamMedia(c.Request.Context(), c.Writer, item); err != nil {
		// Headers may already be out; only answer JSON when they are not.
		if !c.Writer.Written() {
			writeError(c, err)
		}
	}
}

type zipRequest struct {
	IDs  []string `json:"ids" binding:"required"`
	Name string   `json:"name"`
}

// Zip handles POST /media/zip: bulk download of local-backend items.
func (h *Handler) Zip(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	var req zipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, CodeValidation, "invalid body")
		return
	}

	if err := h.service.StreamZip(c.Request.Context(), c.Writer, actx, req.IDs, req.Name); err != nil {
		if !c.Writer.Written() {
			writeError(c, err)
		}
	}
}

// AddRelation handles POST /media/:id/relations.
func (h *Handler) AddRelation(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	var params RelationParams
	if err := c.ShouldBindJSON(&params); err != nil {
		response.Error(c, http.StatusBadRequest, CodeValidation, "invalid body")
		return
	}

	item, err := h.service.GetMedia(c.Request.Context(), c.Param("id"), actx)
	if err != nil {
		writeError(c, err)
		return
	}
	item, err = h.service.AddRelation(c.Request.Context(), item, actx, params)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

func parseInt64(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

// updateParamsFromForm reads the mergeable metadata fields accompanying a
// multipart file replacement; the JSON update route binds the same set.
func updateParamsFromForm(c *gin.Context) UpdateParams {
	var p UpdateParams
	if v := c.PostForm("title"); v != "" {
		p.Title = &v
	}
	if v := c.PostForm("status"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Status = &n
		}
	}
	if v := c.PostForm("category_id"); v != "" {
		n := parseInt64(v)
		p.CategoryID = &n
	}
	if v := c.PostFormArray("category"); len(v) > 0 {
		p.Category = v
	}
	if v := c.PostForm("review"); v != "" {
		p.Review = &ReviewNote{Message: v}
	}
	if v := c.PostForm("ai"); v != "" {
		p.AI = json.RawMessage(v)
	}
	return p
}

// Dashboard handles GET /media/dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	actx, ok := accessContext(c)
	if !ok {
		return
	}

	scope := ScopeFilter{}
	switch actx.Access {
	case AccessAdmin:
		// whole store
	case AccessCompany, AccessGroup:
		scope.CompanyID = actx.CompanyID
	default:
		scope.UserID = actx.UserID
	}

	data, err := h.service.Dashboard(c.Request.Context(), scope)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, data)
}
