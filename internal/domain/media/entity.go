package media

import "encoding/json"

// Access classes. The class decides both where an object is placed
// (public vs private root, owner-scoped prefix) and who may read it.
const (
	AccessPublic  = "public"
	AccessPrivate = "private"
	AccessCompany = "company"
	AccessGroup   = "group"
	AccessAdmin   = "admin"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// Item statuses.
const (
	StatusActive  = 1
	StatusRemoved = 0
)

// History actions recorded in MediaInfo.History.
const (
	HistoryAdd    = "add"
	HistoryUpdate = "update"
)

// StorageItem is the persisted media record. The bytes themselves live in one
// of the storage backends; Information.Storage points at them.
type StorageItem struct {
	ID            string            `gorm:"column:id;primaryKey" json:"id"`
	Slug          string            `gorm:"column:slug;index" json:"slug,omitempty"`
	Title         string            `gorm:"column:title" json:"title"`
	UserID        int64             `gorm:"column:user_id;index" json:"user_id"`
	CompanyID     int64             `gorm:"column:company_id;index" json:"company_id"`
	CategoryID    int64             `gorm:"column:category_id" json:"category_id,omitempty"`
	Access        string            `gorm:"column:access;index" json:"access"`
	Backend       string            `gorm:"column:backend" json:"backend"`
	Type          string            `gorm:"column:type;index" json:"type"`
	Extension     string            `gorm:"column:extension" json:"extension"`
	Size          int64             `gorm:"column:size" json:"size"`
	DownloadCount int64             `gorm:"column:download_count" json:"download_count"`
	Status        int               `gorm:"column:status" json:"status"`
	TimeCreate    int64             `gorm:"column:time_create" json:"time_create"`
	TimeUpdate    int64             `gorm:"column:time_update" json:"time_update"`
	Information   MediaInfo         `gorm:"column:information;serializer:json" json:"information"`
	Relations     []StorageRelation `gorm:"foreignKey:StorageID" json:"relation,omitempty"`
}

func (StorageItem) TableName() string { return "storage_items" }

// StorageRelation links a StorageItem to an entity owned by another subsystem.
// The three-part key (module, section, item) is opaque to this package.
type StorageRelation struct {
	ID              string       `gorm:"column:id;primaryKey" json:"id"`
	StorageID       string       `gorm:"column:storage_id;index" json:"storage_id"`
	UserID          int64        `gorm:"column:user_id" json:"user_id"`
	CompanyID       int64        `gorm:"column:company_id" json:"company_id"`
	Access          string       `gorm:"column:access" json:"access"`
	RelationModule  string       `gorm:"column:relation_module;index" json:"relation_module"`
	RelationSection string       `gorm:"column:relation_section;index" json:"relation_section"`
	RelationItem    int64        `gorm:"column:relation_item;index" json:"relation_item"`
	Status          int          `gorm:"column:status" json:"status"`
	TimeCreate      int64        `gorm:"column:time_create" json:"time_create"`
	TimeUpdate      int64        `gorm:"column:time_update" json:"time_update"`
	Information     RelationInfo `gorm:"column:information;serializer:json" json:"information"`
}

func (StorageRelation) TableName() string { return "storage_relations" }

// MediaInfo is the structured side-record persisted as a JSON document in the
// information column. History is append-only; entries are never rewritten.
type MediaInfo struct {
	Storage  Locator         `json:"storage"`
	Name     string          `json:"name"`
	Size     string          `json:"size"`
	History  []HistoryEntry  `json:"history"`
	Category []string        `json:"category,omitempty"`
	Review   []ReviewNote    `json:"review,omitempty"`
	AI       json.RawMessage `json:"ai,omitempty"`
}

// Locator is the backend-specific address of a stored object. Exactly one
// representation is populated: Path for local, Bucket+Key for object stores.
type Locator struct {
	Path   string `json:"path,omitempty"`
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
}

// MatchesBackend reports whether the locator shape is consistent with the
// given backend tag. A local backend must never carry a bucket locator.
func (l Locator) MatchesBackend(backend string) bool {
	if backend == BackendLocal {
		return l.Path != "" && l.Bucket == "" && l.Key == ""
	}
	return l.Path == "" && l.Bucket != "" && l.Key != ""
}

// IsZero reports whether the locator points at nothing.
func (l Locator) IsZero() bool {
	return l.Path == "" && l.Bucket == "" && l.Key == ""
}

// HistoryEntry records one mutation of the item. Fields holds a snapshot of
// exactly the fields changed by that call.
type HistoryEntry struct {
	Action string         `json:"action"`
	UserID int64          `json:"user_id"`
	Time   int64          `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ReviewNote is a free-form reviewer annotation appended by updates.
type ReviewNote struct {
	UserID  int64  `json:"user_id"`
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

// RelationInfo is the free-form JSON attached to a relation row.
type RelationInfo struct {
	Title     string `json:"title,omitempty"`
	Module    string `json:"module,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// AccessContext is the resolved authorization scope attached to a request by
// the auth middleware. The media service treats it as opaque and validated.
type AccessContext struct {
	Access      string `json:"access"`
	UserID      int64  `json:"user_id"`
	CompanyID   int64  `json:"company_id"`
	IsAdmin     bool   `json:"is_admin"`
	UserHash    string `json:"user_hash"`
	CompanyHash string `json:"company_hash"`
}

// StoreResult is what a backend returns after a durable write. SourceName is
// the raw client filename; OriginalName is the recorded display name, which
// diverges from it when random naming is on.
type StoreResult struct {
	Locator       Locator `json:"storage"`
	SourceName    string  `json:"source_name"`
	OriginalName  string  `json:"original_name"`
	FileName      string  `json:"file_name"`
	FileTitle     string  `json:"file_title"`
	FileExtension string  `json:"file_extension"`
	FileSize      int64   `json:"file_size"`
	FileType      string  `json:"file_type"`
	FileSizeHuman string  `json:"file_size_human"`
}

// Placement tells a backend where a new upload belongs.
type Placement struct {
	Access     string
	UserID     int64
	CompanyID  int64
	OwnerHash  string
	RandomName bool
}
