package media

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Options configures the media service.
type Options struct {
	DefaultBackend string // falls back to local when empty
	CheckDuplicate bool
	QuotaBytes     int64
}

// Service is the media lifecycle orchestrator: backend selection, metadata
// construction and mutation, access-scoped listing, duplicate detection and
// streaming. Backends and transports own the bytes; the repository owns the
// rows; this service owns every decision about when either changes.
type Service struct {
	repo       Repository
	backends   map[string]Backend
	transports map[string]Transport
	opts       Options
	now        func() time.Time
}

func NewService(repo Repository, backends map[string]Backend, transports map[string]Transport, opts Options) *Service {
	if opts.DefaultBackend == "" {
		opts.DefaultBackend = BackendLocal
	}
	return &Service{
		repo:       repo,
		backends:   backends,
		transports: transports,
		opts:       opts,
		now:        time.Now,
	}
}

// SaveParams carries caller-supplied fields for a new upload.
type SaveParams struct {
	Storage         string   `json:"storage"` // explicit backend override
	Title           string   `json:"title"`
	CategoryID      int64    `json:"category_id"`
	Category        []string `json:"category"`
	RandomName      bool     `json:"random_name"`
	RelationModule  string   `json:"relation_module"`
	RelationSection string   `json:"relation_section"`
	RelationItem    string   `json:"relation_item"`
	RelationTitle   string   `json:"relation_title"`
}

// UpdateParams carries the mutable fields of an existing item. Nil pointers
// leave the field untouched; Review appends; AI replaces.
type UpdateParams struct {
	Title      *string         `json:"title"`
	Status     *int            `json:"status"`
	CategoryID *int64          `json:"category_id"`
	Category   []string        `json:"category"`
	Review     *ReviewNote     `json:"review"`
	AI         json.RawMessage `json:"ai"`
}

// RelationParams describes a link to an external entity.
type RelationParams struct {
	Module  string `json:"relation_module" binding:"required"`
	Section string `json:"relation_section"`
	Item    int64  `json:"relation_item" binding:"required"`
	Title   string `json:"relation_title"`
}

func (s *Service) backendName(params SaveParams) string {
	if params.Storage != "" {
		return params.Storage
	}
	return s.opts.DefaultBackend
}

func (s *Service) backendFor(name string) (Backend, error) {
	b, ok := s.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

func ownerHash(actx AccessContext) string {
	switch actx.Access {
	case AccessCompany, AccessGroup:
		return actx.CompanyHash
	default:
		return actx.UserHash
	}
}

// MakeSlug derives the deterministic duplicate-detection fingerprint.
func MakeSlug(access string, userID, companyID int64, originalName string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d|%s", access, userID, companyID, originalName)))
	return hex.EncodeToString(sum[:])
}

// StoreMedia resolves the active backend and delegates the physical write.
func (s *Service) StoreMedia(ctx context.Context, src UploadSource, actx AccessContext, params SaveParams) (*StoreResult, error) {
	backend, err := s.backendFor(s.backendName(params))
	if err != nil {
		return nil, err
	}
	return backend.Store(ctx, src, Placement{
		Access:     actx.Access,
		UserID:     actx.UserID,
		CompanyID:  actx.CompanyID,
		OwnerHash:  ownerHash(actx),
		RandomName: params.RandomName,
	})
}

// AddMedia stores the file (unless the upload middleware already did, to fail
// fast on validation) and records the metadata row.
func (s *Service) AddMedia(ctx context.Context, src UploadSource, actx AccessContext, params SaveParams, pre *StoreResult) (*StorageItem, error) {
	result := pre
	if result == nil {
		var err error
		result, err = s.StoreMedia(ctx, src, actx, params)
		if err != nil {
			return nil, err
		}
	}
	return s.SaveMedia(ctx, actx, params, result)
}

// SaveMedia builds the initial metadata record for a stored object, persists
// it, and creates an inline relation when a numeric relation triple was
// supplied. On a metadata write failure the just-stored object is removed so
// no orphan is leaked.
func (s *Service) SaveMedia(ctx context.Context, actx AccessContext, params SaveParams, result *StoreResult) (*StorageItem, error) {
	now := s.now().Unix()
	backendTag := s.backendName(params)
	if !result.Locator.MatchesBackend(backendTag) {
		return nil, ErrLocatorMismatch
	}

	title := params.Title
	if title == "" {
		title = result.FileTitle
	}

	item := &StorageItem{
		ID:         uuid.New().String(),
		Title:      title,
		UserID:     actx.UserID,
		CompanyID:  actx.CompanyID,
		CategoryID: params.CategoryID,
		Access:     actx.Access,
		Backend:    backendTag,
		Type:       result.FileType,
		Extension:  result.FileExtension,
		Size:       result.FileSize,
		Status:     StatusActive,
		TimeCreate: now,
		TimeUpdate: now,
		Information: MediaInfo{
			Storage:  result.Locator,
			Name:     result.OriginalName,
			Size:     result.FileSizeHuman,
			Category: params.Category,
			History: []HistoryEntry{{
				Action: HistoryAdd,
				UserID: actx.UserID,
				Time:   now,
				Fields: map[string]any{
					"title": title,
					"file":  result.FileName,
				},
			}},
		},
	}
	if s.opts.CheckDuplicate {
		// Fingerprint the client filename, not the recorded name: random
		// naming would otherwise make every upload unique.
		item.Slug = MakeSlug(actx.Access, actx.UserID, actx.CompanyID, result.SourceName)
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		// Compensating cleanup: without the row the object is unreachable.
		if backend, berr := s.backendFor(backendTag); berr == nil {
			_ = backend.Remove(ctx, result.Locator)
		}
		return nil, err
	}

	if params.RelationModule != "" {
		if relItem, err := strconv.ParseInt(params.RelationItem, 10, 64); err == nil {
			rel := RelationParams{
				Module:  params.RelationModule,
				Section: params.RelationSection,
				Item:    relItem,
				Title:   params.RelationTitle,
			}
			if _, err := s.AddRelation(ctx, item, actx, rel); err != nil {
				return nil, err
			}
		}
	}

	return item, nil
}

// UpdateMedia merges caller-supplied fields into the item and appends exactly
// one history entry capturing the fields changed by this call.
func (s *Service) UpdateMedia(ctx context.Context, id string, actx AccessContext, params UpdateParams) (*StorageItem, error) {
	item, err := s.getOwned(ctx, id, actx)
	if err != nil {
		return nil, err
	}

	changed := s.applyUpdate(item, actx, params)
	if len(changed) == 0 {
		return item, nil
	}
	return item, s.finishUpdate(ctx, item, actx, changed)
}

// UpdateMediaWithFile replaces the physical object and refreshes the derived
// fields, then merges the remaining updates. The previous object is kept;
// whether it should be deleted is an open product decision.
func (s *Service) UpdateMediaWithFile(ctx context.Context, id string, actx AccessContext, src UploadSource, save SaveParams, params UpdateParams) (*StorageItem, error) {
	item, err := s.getOwned(ctx, id, actx)
	if err != nil {
		return nil, err
	}

	result, err := s.StoreMedia(ctx, src, actx, save)
	if err != nil {
		return nil, err
	}

	backendTag := s.backendName(save)
	item.Backend = backendTag
	item.Type = result.FileType
	item.Extension = result.FileExtension
	item.Size = result.FileSize
	item.Information.Storage = result.Locator
	item.Information.Name = result.OriginalName
	item.Information.Size = result.FileSizeHuman

	changed := s.applyUpdate(item, actx, params)
	changed["file"] = result.FileName
	changed["size"] = result.FileSize

	return item, s.finishUpdate(ctx, item, actx, changed)
}

func (s *Service) applyUpdate(item *StorageItem, actx AccessContext, params UpdateParams) map[string]any {
	changed := map[string]any{}
	if params.Title != nil && *params.Title != item.Title {
		item.Title = *params.Title
		changed["title"] = *params.Title
	}
	if params.Status != nil && *params.Status != item.Status {
		item.Status = *params.Status
		changed["status"] = *params.Status
	}
	if params.CategoryID != nil && *params.CategoryID != item.CategoryID {
		item.CategoryID = *params.CategoryID
		changed["category_id"] = *params.CategoryID
	}
	if params.Category != nil {
		item.Information.Category = params.Category
		changed["category"] = params.Category
	}
	if params.Review != nil {
		note := *params.Review
		if note.UserID == 0 {
			note.UserID = actx.UserID
		}
		if note.Time == 0 {
			note.Time = s.now().Unix()
		}
		item.Information.Review = append(item.Information.Review, note)
		changed["review"] = note.Message
	}
	if params.AI != nil {
		item.Information.AI = params.AI
		changed["ai"] = string(params.AI)
	}
	return changed
}

func (s *Service) finishUpdate(ctx context.Context, item *StorageItem, actx AccessContext, changed map[string]any) error {
	now := s.now().Unix()
	item.TimeUpdate = now
	item.Information.History = append(item.Information.History, HistoryEntry{
		Action: HistoryUpdate,
		UserID: actx.UserID,
		Time:   now,
		Fields: changed,
	})
	return s.repo.SaveItem(ctx, item)
}

// AddRelation links the item to an external entity. The relation access is
// copied from the owning item so the two can never drift apart.
func (s *Service) AddRelation(ctx context.Context, item *StorageItem, actx AccessContext, params RelationParams) (*StorageItem, error) {
	now := s.now().Unix()
	rel := StorageRelation{
		ID:              uuid.New().String(),
		StorageID:       item.ID,
		UserID:          actx.UserID,
		CompanyID:       actx.CompanyID,
		Access:          item.Access,
		RelationModule:  params.Module,
		RelationSection: params.Section,
		RelationItem:    params.Item,
		Status:          StatusActive,
		TimeCreate:      now,
		TimeUpdate:      now,
		Information:     RelationInfo{Title: params.Title, Module: params.Module},
	}
	if err := s.repo.CreateRelation(ctx, &rel); err != nil {
		return nil, err
	}
	item.Relations = append(item.Relations, rel)
	return item, nil
}

// DeleteMedia removes the object, then the relations, then the row — in that
// order, so a failure leaves metadata pointing at a possibly present object
// rather than a dangling pointer to nothing.
func (s *Service) DeleteMedia(ctx context.Context, item *StorageItem, actx AccessContext) error {
	backend, err := s.backendFor(item.Backend)
	if err != nil {
		return err
	}
	if err := backend.Remove(ctx, item.Information.Storage); err != nil {
		return err
	}
	if err := s.repo.DeleteRelationsByStorageID(ctx, item.ID); err != nil {
		return err
	}
	return s.repo.DeleteItem(ctx, item.ID)
}

// StreamMedia increments the download counter and streams the object through
// the transport matching the item's backend.
func (s *Service) StreamMedia(ctx context.Context, w http.ResponseWriter, item *StorageItem) error {
	t, ok := s.transports[item.Backend]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, item.Backend)
	}
	if err := s.repo.IncrementDownload(ctx, item.ID); err != nil {
		return err
	}
	item.DownloadCount++
	return t.Stream(ctx, w, item)
}

// GetMedia returns the item when the caller's scope may read it; a scope miss
// reads as not found.
func (s *Service) GetMedia(ctx context.Context, id string, actx AccessContext) (*StorageItem, error) {
	item, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actx, item) {
		return nil, ErrMediaNotFound
	}
	return item, nil
}

// getOwned is GetMedia for mutation paths: same scoping, hard error surface.
func (s *Service) getOwned(ctx context.Context, id string, actx AccessContext) (*StorageItem, error) {
	return s.GetMedia(ctx, id, actx)
}

func canRead(actx AccessContext, item *StorageItem) bool {
	if actx.Access == AccessAdmin || actx.IsAdmin {
		return true
	}
	switch item.Access {
	case AccessPublic:
		return true
	case AccessPrivate:
		return item.UserID == actx.UserID
	case AccessCompany, AccessGroup:
		return item.CompanyID == actx.CompanyID
	case AccessAdmin:
		return false
	}
	return false
}

// IsDuplicated reports whether any stored item already carries the slug.
func (s *Service) IsDuplicated(ctx context.Context, slug string) (bool, error) {
	n, err := s.repo.CountBySlug(ctx, slug)
	return n > 0, err
}

// ListParams is the caller-facing listing request.
type ListParams struct {
	UserID          int64  `form:"user_id"`
	RelationModule  string `form:"relation_module"`
	RelationSection string `form:"relation_section"`
	RelationItem    int64  `form:"relation_item"`
	Type            string `form:"type"`
	Extension       string `form:"extension"`
	CategoryID      int64  `form:"category_id"`
	Status          *int   `form:"status"`
	Slug            string `form:"slug"`
	ID              string `form:"id"`
	Limit           int    `form:"limit"`
	Page            int    `form:"page"`
	Sort            string `form:"sort"`
	View            string `form:"view"`
}

// ListResult is the paginated projection returned to callers.
type ListResult struct {
	Items []any `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// GetMediaList runs the access-scoped query and projects rows through the
// requested view.
func (s *Service) GetMediaList(ctx context.Context, actx AccessContext, params ListParams) (*ListResult, error) {
	f := ListFilter{
		RelationModule:  params.RelationModule,
		RelationSection: params.RelationSection,
		RelationItem:    params.RelationItem,
		Type:            params.Type,
		Extension:       params.Extension,
		CategoryID:      params.CategoryID,
		Status:          params.Status,
		Slug:            params.Slug,
		ID:              params.ID,
		Limit:           params.Limit,
		Page:            params.Page,
		Sort:            params.Sort,
		WithRelations:   params.View == ViewFull,
	}

	switch actx.Access {
	case AccessAdmin:
		// unrestricted, aside from an explicit user filter
		f.UserID = params.UserID
	case AccessCompany, AccessGroup:
		f.CompanyID = actx.CompanyID
		if !actx.IsAdmin {
			f.UserID = actx.UserID
		}
	case AccessPrivate:
		f.UserID = actx.UserID
	default:
		f.Access = AccessPublic
	}

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	return &ListResult{
		Items: ProjectItems(items, params.View),
		Total: total,
		Page:  page,
		Limit: params.Limit,
	}, nil
}

// DashboardData aggregates storage usage for a scope.
type DashboardData struct {
	TotalSize      int64            `json:"total_size"`
	TotalSizeHuman string           `json:"total_size_human"`
	UsagePercent   float64          `json:"usage_percent"`
	QuotaBytes     int64            `json:"quota"`
	TypeCounts     map[string]int64 `json:"type_counts"`
	Recent         []any            `json:"recent"`
}

// Dashboard reports total usage against the quota, a per-type histogram with
// every known category present, and the ten most recent items in the scope.
func (s *Service) Dashboard(ctx context.Context, scope ScopeFilter) (*DashboardData, error) {
	total, err := s.repo.TotalSize(ctx, scope)
	if err != nil {
		return nil, err
	}

	counts := ZeroTypeCounts()
	actual, err := s.repo.TypeCounts(ctx, scope)
	if err != nil {
		return nil, err
	}
	for t, n := range actual {
		counts[t] = n
	}

	recent, err := s.repo.Recent(ctx, scope, 10)
	if err != nil {
		return nil, err
	}

	var percent float64
	if s.opts.QuotaBytes > 0 {
		percent = float64(total) / float64(s.opts.QuotaBytes) * 100
	}

	return &DashboardData{
		TotalSize:      total,
		TotalSizeHuman: HumanSize(total),
		UsagePercent:   percent,
		QuotaBytes:     s.opts.QuotaBytes,
		TypeCounts:     counts,
		Recent:         ProjectItems(recent, ViewLimited),
	}, nil
}

// StreamZip packages the referenced local-backend items into one archive and
// streams it. Items outside the caller's scope read as not found.
func (s *Service) StreamZip(ctx context.Context, w http.ResponseWriter, actx AccessContext, ids []string, archiveName string) error {
	if len(ids) == 0 {
		return ErrNoZipSources
	}
	local, ok := s.transports[BackendLocal].(*LocalTransport)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, BackendLocal)
	}

	entries := make([]ZipEntry, 0, len(ids))
	for _, id := range ids {
		item, err := s.GetMedia(ctx, id, actx)
		if err != nil {
			return err
		}
		if item.Backend != BackendLocal {
			return fmt.Errorf("%w: zip packaging needs local objects, %s is on %s", ErrLocatorMismatch, item.ID, item.Backend)
		}
		entries = append(entries, ZipEntry{
			Path:      item.Information.Storage.Path,
			LocalName: item.Information.Name,
		})
	}
	return local.StreamZip(ctx, w, archiveName, entries)
}

// PrivateURL builds the authenticated streaming URL for an item.
func (s *Service) PrivateURL(item *StorageItem) string {
	if t, ok := s.transports[item.Backend]; ok {
		return t.PrivateURL(item)
	}
	return ""
}

// PublicURL builds the direct public URL for an item; empty when the backend
// does not expose objects publicly.
func (s *Service) PublicURL(item *StorageItem) string {
	if t, ok := s.transports[item.Backend]; ok {
		return t.PublicURL(item)
	}
	return ""
}
