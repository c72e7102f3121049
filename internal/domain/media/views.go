package media

// View projections control how much of a StorageItem a caller sees.
const (
	ViewLimited    = "limited"
	ViewCompressed = "compressed"
	ViewLight      = "light"
	ViewFull       = "full"
)

// lightItem is the minimal projection: enough to render a list entry.
type lightItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Name  string `json:"name"`
}

// ProjectItems maps rows through the requested view. The default (limited)
// view returns the full record with the storage locator stripped, so callers
// never learn physical paths or bucket keys. Full keeps the locator and the
// joined relations for admin tooling.
func ProjectItems(items []StorageItem, view string) []any {
	out := make([]any, 0, len(items))
	for i := range items {
		out = append(out, ProjectItem(&items[i], view))
	}
	return out
}

func ProjectItem(item *StorageItem, view string) any {
	switch view {
	case ViewCompressed, ViewLight:
		return lightItem{ID: item.ID, Title: item.Title, Name: item.Information.Name}
	case ViewFull:
		return *item
	default:
		limited := *item
		limited.Information.Storage = Locator{}
		limited.Relations = nil
		return limited
	}
}
