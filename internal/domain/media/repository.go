package media

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ListFilter is the composed query for access-scoped listing. Zero values
// mean "no filter" except Status, which is a pointer for the same reason.
type ListFilter struct {
	UserID          int64
	CompanyID       int64
	Access          string
	RelationModule  string
	RelationSection string
	RelationItem    int64
	Type            string
	Extension       string
	CategoryID      int64
	Status          *int
	Slug            string
	ID              string
	Limit           int
	Page            int // 1-based
	Sort            string
	WithRelations   bool
}

// ScopeFilter narrows aggregate queries to an owner scope.
type ScopeFilter struct {
	UserID    int64
	CompanyID int64
}

// Repository owns persistence of storage items and their relations.
type Repository interface {
	CreateItem(ctx context.Context, item *StorageItem) error
	GetItemByID(ctx context.Context, id string) (*StorageItem, error)
	SaveItem(ctx context.Context, item *StorageItem) error
	DeleteItem(ctx context.Context, id string) error
	IncrementDownload(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]StorageItem, int64, error)
	CountBySlug(ctx context.Context, slug string) (int64, error)

	CreateRelation(ctx context.Context, rel *StorageRelation) error
	RelationsByStorageID(ctx context.Context, storageID string) ([]StorageRelation, error)
	DeleteRelationsByStorageID(ctx context.Context, storageID string) error

	TotalSize(ctx context.Context, scope ScopeFilter) (int64, error)
	TypeCounts(ctx context.Context, scope ScopeFilter) (map[string]int64, error)
	Recent(ctx context.Context, scope ScopeFilter, limit int) ([]StorageItem, error)
	DuplicateSlugs(ctx context.Context) (map[string]int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateItem(ctx context.Context, item *StorageItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) GetItemByID(ctx context.Context, id string) (*StorageItem, error) {
	var item StorageItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) SaveItem(ctx context.Context, item *StorageItem) error {
	return r.db.WithContext(ctx).Omit("Relations").Save(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&StorageItem{}).Error
}

func (r *repository) IncrementDownload(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&StorageItem{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

// allowed sort columns; anything else falls back to the default order.
var sortColumns = map[string]bool{
	"time_create":    true,
	"time_update":    true,
	"title":          true,
	"size":           true,
	"download_count": true,
	"type":           true,
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]StorageItem, int64, error) {
	q := r.db.WithContext(ctx).Model(&StorageItem{})

	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.CompanyID != 0 {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if f.Access != "" {
		q = q.Where("access = ?", f.Access)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Extension != "" {
		q = q.Where("extension = ?", f.Extension)
	}
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Slug != "" {
		q = q.Where("slug = ?", f.Slug)
	}
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.RelationModule != "" {
		sub := r.db.Model(&StorageRelation{}).
			Select("storage_id").
			Where("relation_module = ?", f.RelationModule)
		if f.RelationSection != "" {
			sub = sub.Where("relation_section = ?", f.RelationSection)
		}
		if f.RelationItem != 0 {
			sub = sub.Where("relation_item = ?", f.RelationItem)
		}
		q = q.Where("id IN (?)", sub)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "time_create DESC"
	if f.Sort != "" {
		col := f.Sort
		dir := "ASC"
		if col[0] == '-' {
			col = col[1:]
			dir = "DESC"
		}
		if sortColumns[col] {
			order = col + " " + dir
		}
	}
	q = q.Order(order)

	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Limit(f.Limit).Offset((page - 1) * f.Limit)
	}
	if f.WithRelations {
		q = q.Preload("Relations")
	}

	var items []StorageItem
	if err := q.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) CountBySlug(ctx context.Context, slug string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&StorageItem{}).
		Where("slug = ?", slug).
		Count(&n).Error
	return n, err
}

func (r *repository) CreateRelation(ctx context.Context, rel *StorageRelation) error {
	return r.db.WithContext(ctx).Create(rel).Error
}

func (r *repository) RelationsByStorageID(ctx context.Context, storageID string) ([]StorageRelation, error) {
	var rels []StorageRelation
	err := r.db.WithContext(ctx).
		Where("storage_id = ?", storageID).
		Order("time_create ASC").
		Find(&rels).Error
	return rels, err
}

func (r *repository) DeleteRelationsByStorageID(ctx context.Context, storageID string) error {
	return r.db.WithContext(ctx).
		Where("storage_id = ?", storageID).
		Delete(&StorageRelation{}).Error
}

func scoped(q *gorm.DB, scope ScopeFilter) *gorm.DB {
	if scope.UserID != 0 {
		q = q.Where("user_id = ?", scope.UserID)
	}
	if scope.CompanyID != 0 {
		q = q.Where("company_id = ?", scope.CompanyID)
	}
	return q
}

func (r *repository) TotalSize(ctx context.Context, scope ScopeFilter) (int64, error) {
	var total int64
	err := scoped(r.db.WithContext(ctx).Model(&StorageItem{}), scope).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) TypeCounts(ctx context.Context, scope ScopeFilter) (map[string]int64, error) {
	var rows []struct {
		Type  string
		Count int64
	}
	err := scoped(r.db.WithContext(ctx).Model(&StorageItem{}), scope).
		Select("type, COUNT(*) AS count").
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

func (r *repository) Recent(ctx context.Context, scope ScopeFilter, limit int) ([]StorageItem, error) {
	var items []StorageItem
	err := scoped(r.db.WithContext(ctx), scope).
		Order("time_create DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// DuplicateSlugs reports slugs held by more than one item.
func (r *repository) DuplicateSlugs(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Slug  string
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&StorageItem{}).
		Select("slug, COUNT(*) AS count").
		Where("slug <> ''").
		Group("slug").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	dupes := make(map[string]int64, len(rows))
	for _, row := range rows {
		dupes[row.Slug] = row.Count
	}
	return dupes, nil
}
