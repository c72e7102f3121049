package media

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type memSource struct {
	name string
	data string
}

func (s memSource) Filename() string { return s.name }
func (s memSource) Size() int64      { return int64(len(s.data)) }
func (s memSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.data)), nil
}

type testEnv struct {
	svc    *Service
	repo   Repository
	db     *gorm.DB
	public string
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{DriverName: "sqlite", DSN: dsn}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&StorageItem{}, &StorageRelation{}))

	naming := NewNamingPolicy()
	public := t.TempDir()
	local := NewLocalBackend(public, t.TempDir(), naming)

	repo := NewRepository(db)
	svc := NewService(repo,
		map[string]Backend{BackendLocal: local},
		map[string]Transport{BackendLocal: NewLocalTransport("/api/v1/media", "/static/media", public)},
		opts,
	)
	return &testEnv{svc: svc, repo: repo, db: db, public: public}
}

func (e *testEnv) add(t *testing.T, name, content string, actx AccessContext, params SaveParams) *StorageItem {
	t.Helper()
	item, err := e.svc.AddMedia(context.Background(), memSource{name: name, data: content}, actx, params, nil)
	require.NoError(t, err)
	return item
}

func TestAddMediaCompanyCSV(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessCompany, UserID: 3, CompanyID: 7, CompanyHash: "acme"}
	content := "id,total\n1,42\n"

	item := env.add(t, "report.CSV", content, actx, SaveParams{})

	require.Equal(t, TypeSpreadsheet, item.Type)
	require.Equal(t, "csv", item.Extension)
	require.Equal(t, BackendLocal, item.Backend)
	require.Equal(t, AccessCompany, item.Access)
	require.EqualValues(t, 0, item.DownloadCount)
	require.Equal(t, StatusActive, item.Status)
	require.Equal(t, "report.CSV", item.Information.Name)
	require.Equal(t, HumanSize(int64(len(content))), item.Information.Size)
	require.Contains(t, item.Information.Storage.Path, "acme")

	require.Len(t, item.Information.History, 1)
	require.Equal(t, HistoryAdd, item.Information.History[0].Action)
	require.EqualValues(t, 3, item.Information.History[0].UserID)

	w := httptest.NewRecorder()
	require.NoError(t, env.svc.StreamMedia(ctx, w, item))
	require.Equal(t, content, w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "report.CSV")

	stored, err := env.repo.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.DownloadCount)
}

func TestUpdateMediaAppendsOneHistoryEntry(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 5, UserHash: "u5"}

	item := env.add(t, "notes.txt", "hello", actx, SaveParams{Title: "Notes"})

	title := "Renamed notes"
	_, err := env.svc.UpdateMedia(ctx, item.ID, actx, UpdateParams{
		Title:  &title,
		Review: &ReviewNote{Message: "looks fine"},
	})
	require.NoError(t, err)

	stored, err := env.repo.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed notes", stored.Title)
	require.Len(t, stored.Information.History, 2)

	last := stored.Information.History[1]
	require.Equal(t, HistoryUpdate, last.Action)
	require.Equal(t, "Renamed notes", last.Fields["title"])
	require.Contains(t, last.Fields, "review")

	require.Len(t, stored.Information.Review, 1)
	require.EqualValues(t, 5, stored.Information.Review[0].UserID)
	require.NotZero(t, stored.Information.Review[0].Time)

	// no-op update must not grow the history
	_, err = env.svc.UpdateMedia(ctx, item.ID, actx, UpdateParams{Title: &title})
	require.NoError(t, err)
	stored, err = env.repo.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, stored.Information.History, 2)
}

func TestUpdateMediaWithFileKeepsPreviousObject(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 2, UserHash: "u2"}

	item := env.add(t, "draft.txt", "v1", actx, SaveParams{})
	oldPath := item.Information.Storage.Path

	updated, err := env.svc.UpdateMediaWithFile(ctx, item.ID, actx,
		memSource{name: "final.pdf", data: "v2 pdf bytes"}, SaveParams{}, UpdateParams{})
	require.NoError(t, err)

	require.Equal(t, "pdf", updated.Extension)
	require.Equal(t, TypePDF, updated.Type)
	require.Equal(t, "final.pdf", updated.Information.Name)
	require.NotEqual(t, oldPath, updated.Information.Storage.Path)

	// previous object stays on disk
	_, err = os.Stat(oldPath)
	require.NoError(t, err)

	stored, err := env.repo.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, stored.Information.History, 2)
	require.Contains(t, stored.Information.History[1].Fields, "file")
}

func TestDuplicateDetection(t *testing.T) {
	env := newTestEnv(t, Options{CheckDuplicate: true})
	ctx := context.Background()
	actx := AccessContext{Access: AccessCompany, UserID: 3, CompanyID: 7, CompanyHash: "acme"}

	env.add(t, "report.csv", "a", actx, SaveParams{})
	env.add(t, "report.csv", "b", actx, SaveParams{})
	env.add(t, "other.csv", "c", actx, SaveParams{})

	slug := MakeSlug(AccessCompany, 3, 7, "report.csv")
	dup, err := env.svc.IsDuplicated(ctx, slug)
	require.NoError(t, err)
	require.True(t, dup)

	dup, err = env.svc.IsDuplicated(ctx, MakeSlug(AccessCompany, 3, 7, "missing.csv"))
	require.NoError(t, err)
	require.False(t, dup)

	dupes, err := env.repo.DuplicateSlugs(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, dupes[slug])
	require.Len(t, dupes, 1)
}

func TestDuplicateSlugIgnoresRandomName(t *testing.T) {
	env := newTestEnv(t, Options{CheckDuplicate: true})
	ctx := context.Background()
	actx := AccessContext{Access: AccessCompany, UserID: 3, CompanyID: 7, CompanyHash: "acme"}

	item := env.add(t, "report.csv", "a", actx, SaveParams{RandomName: true})

	// recorded name is disambiguated, but the slug tracks the client filename
	require.NotEqual(t, "report.csv", item.Information.Name)
	require.Equal(t, MakeSlug(AccessCompany, 3, 7, "report.csv"), item.Slug)

	dup, err := env.svc.IsDuplicated(ctx, MakeSlug(AccessCompany, 3, 7, "report.csv"))
	require.NoError(t, err)
	require.True(t, dup)

	// a second randomized upload of the same file collides on the slug
	env.add(t, "report.csv", "b", actx, SaveParams{RandomName: true})
	dupes, err := env.repo.DuplicateSlugs(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, dupes[item.Slug])
}

func TestGetMediaScoping(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	owner := AccessContext{Access: AccessPrivate, UserID: 3, UserHash: "u3"}

	item := env.add(t, "secret.txt", "mine", owner, SaveParams{})

	_, err := env.svc.GetMedia(ctx, item.ID, AccessContext{Access: AccessPrivate, UserID: 4})
	require.ErrorIs(t, err, ErrMediaNotFound)

	got, err := env.svc.GetMedia(ctx, item.ID, owner)
	require.NoError(t, err)
	require.Equal(t, item.ID, got.ID)

	_, err = env.svc.GetMedia(ctx, item.ID, AccessContext{Access: AccessAdmin, UserID: 99})
	require.NoError(t, err)

	company := env.add(t, "shared.txt", "ours",
		AccessContext{Access: AccessCompany, UserID: 3, CompanyID: 7, CompanyHash: "acme"}, SaveParams{})

	_, err = env.svc.GetMedia(ctx, company.ID, AccessContext{Access: AccessCompany, UserID: 8, CompanyID: 7})
	require.NoError(t, err)
	_, err = env.svc.GetMedia(ctx, company.ID, AccessContext{Access: AccessCompany, UserID: 8, CompanyID: 8})
	require.ErrorIs(t, err, ErrMediaNotFound)
}

func TestGetMediaListScopes(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	env.add(t, "open.txt", "x", AccessContext{Access: AccessPublic, UserID: 1, UserHash: "u1"}, SaveParams{})
	env.add(t, "mine.txt", "x", AccessContext{Access: AccessPrivate, UserID: 3, UserHash: "u3"}, SaveParams{})
	env.add(t, "theirs.txt", "x", AccessContext{Access: AccessPrivate, UserID: 4, UserHash: "u4"}, SaveParams{})

	res, err := env.svc.GetMediaList(ctx, AccessContext{Access: AccessPrivate, UserID: 3}, ListParams{})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)

	// unauthenticated-style scope sees only public items
	res, err = env.svc.GetMediaList(ctx, AccessContext{Access: AccessPublic}, ListParams{})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	item, ok := res.Items[0].(StorageItem)
	require.True(t, ok)
	require.Equal(t, AccessPublic, item.Access)
	require.True(t, item.Information.Storage.IsZero(), "limited view must strip the locator")

	res, err = env.svc.GetMediaList(ctx, AccessContext{Access: AccessAdmin}, ListParams{})
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Total)

	res, err = env.svc.GetMediaList(ctx, AccessContext{Access: AccessAdmin}, ListParams{UserID: 4})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
}

func TestGetMediaListFiltersAndViews(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 3, UserHash: "u3"}

	env.add(t, "a.csv", "1", actx, SaveParams{})
	env.add(t, "b.pdf", "22", actx, SaveParams{})
	linked := env.add(t, "c.pdf", "333", actx, SaveParams{
		RelationModule: "crm", RelationSection: "deals", RelationItem: "7",
	})

	res, err := env.svc.GetMediaList(ctx, actx, ListParams{Type: TypePDF})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Total)

	res, err = env.svc.GetMediaList(ctx, actx, ListParams{RelationModule: "crm", RelationItem: 7})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)

	res, err = env.svc.GetMediaList(ctx, actx, ListParams{View: ViewLight})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	_, ok := res.Items[0].(lightItem)
	require.True(t, ok)

	res, err = env.svc.GetMediaList(ctx, actx, ListParams{View: ViewFull, ID: linked.ID})
	require.NoError(t, err)
	full, ok := res.Items[0].(StorageItem)
	require.True(t, ok)
	require.Len(t, full.Relations, 1)
	require.Equal(t, "crm", full.Relations[0].RelationModule)

	res, err = env.svc.GetMediaList(ctx, actx, ListParams{Limit: 2, Page: 2, Sort: "size"})
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Total)
	require.Len(t, res.Items, 1)
	page2, ok := res.Items[0].(StorageItem)
	require.True(t, ok)
	require.EqualValues(t, 3, page2.Size) // size ASC puts the largest on page 2
}

func TestDeleteMediaRemovesObjectRelationsRow(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 3, UserHash: "u3"}

	item := env.add(t, "doomed.txt", "bye", actx, SaveParams{
		RelationModule: "crm", RelationItem: "12",
	})

	rels, err := env.repo.RelationsByStorageID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, item.Access, rels[0].Access)

	path := item.Information.Storage.Path
	require.NoError(t, env.svc.DeleteMedia(ctx, item, actx))

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	rels, err = env.repo.RelationsByStorageID(ctx, item.ID)
	require.NoError(t, err)
	require.Empty(t, rels)

	_, err = env.repo.GetItemByID(ctx, item.ID)
	require.ErrorIs(t, err, ErrMediaNotFound)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, Options{QuotaBytes: 1 << 20})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 3, UserHash: "u3"}

	env.add(t, "sheet.csv", strings.Repeat("a", 100), actx, SaveParams{})
	env.add(t, "photo.jpg", strings.Repeat("b", 300), actx, SaveParams{})
	env.add(t, "noise.txt", "zzz", AccessContext{Access: AccessPrivate, UserID: 9, UserHash: "u9"}, SaveParams{})

	d, err := env.svc.Dashboard(ctx, ScopeFilter{UserID: 3})
	require.NoError(t, err)

	require.EqualValues(t, 400, d.TotalSize)
	require.Equal(t, HumanSize(400), d.TotalSizeHuman)
	require.InDelta(t, float64(400)/float64(1<<20)*100, d.UsagePercent, 0.0001)

	require.EqualValues(t, 1, d.TypeCounts[TypeSpreadsheet])
	require.EqualValues(t, 1, d.TypeCounts[TypeImage])
	require.EqualValues(t, 0, d.TypeCounts[TypeVideo])
	require.Contains(t, d.TypeCounts, TypeArchive) // histogram carries every category

	require.Len(t, d.Recent, 2)
}

func TestStreamZip(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 3, UserHash: "u3"}

	a := env.add(t, "one.txt", "first", actx, SaveParams{})
	b := env.add(t, "two.txt", "second", actx, SaveParams{})

	w := httptest.NewRecorder()
	require.NoError(t, env.svc.StreamZip(ctx, w, actx, []string{a.ID, b.ID}, "bundle.zip"))
	require.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "bundle.zip")

	body := w.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := []string{zr.File[0].Name, zr.File[1].Name}
	require.ElementsMatch(t, []string{"one.txt", "two.txt"}, names)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	err = env.svc.StreamZip(ctx, httptest.NewRecorder(), actx, nil, "")
	require.ErrorIs(t, err, ErrNoZipSources)

	// foreign items read as not found, never as a partial archive
	err = env.svc.StreamZip(ctx, httptest.NewRecorder(),
		AccessContext{Access: AccessPrivate, UserID: 4}, []string{a.ID}, "")
	require.ErrorIs(t, err, ErrMediaNotFound)
}

func TestStreamZipDisambiguatesDuplicateNames(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 3, UserHash: "u3"}

	a := env.add(t, "notes.txt", "first", actx, SaveParams{})
	b := env.add(t, "notes.txt", "second", actx, SaveParams{})
	c := env.add(t, "notes.txt", "third", actx, SaveParams{})

	w := httptest.NewRecorder()
	require.NoError(t, env.svc.StreamZip(ctx, w, actx, []string{a.ID, b.ID, c.ID}, ""))

	body := w.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"notes.txt", "notes (2).txt", "notes (3).txt"}, names)
}

func TestSaveMediaRejectsLocatorMismatch(t *testing.T) {
	env := newTestEnv(t, Options{})
	actx := AccessContext{Access: AccessPrivate, UserID: 1}

	_, err := env.svc.SaveMedia(context.Background(), actx, SaveParams{}, &StoreResult{
		Locator:      Locator{Bucket: "media", Key: "2026/08/x.txt"},
		OriginalName: "x.txt",
	})
	require.ErrorIs(t, err, ErrLocatorMismatch)
}

func TestSaveMediaCleansUpObjectOnCreateFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	actx := AccessContext{Access: AccessPrivate, UserID: 1, UserHash: "u1"}

	result, err := env.svc.StoreMedia(ctx, memSource{name: "orphan.txt", data: "x"}, actx, SaveParams{})
	require.NoError(t, err)
	_, err = os.Stat(result.Locator.Path)
	require.NoError(t, err)

	require.NoError(t, env.db.Migrator().DropTable(&StorageItem{}))

	_, err = env.svc.SaveMedia(ctx, actx, SaveParams{}, result)
	require.Error(t, err)

	// compensating cleanup removed the unreachable object
	_, err = os.Stat(result.Locator.Path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestStreamMediaUnknownBackend(t *testing.T) {
	env := newTestEnv(t, Options{})
	item := &StorageItem{ID: "x", Backend: "tape"}
	err := env.svc.StreamMedia(context.Background(), httptest.NewRecorder(), item)
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestURLs(t *testing.T) {
	env := newTestEnv(t, Options{})
	actx := AccessContext{Access: AccessPublic, UserID: 1, UserHash: "u1"}

	item := env.add(t, "banner.png", "png", actx, SaveParams{})

	require.Equal(t, "/api/v1/media/"+item.ID, env.svc.PrivateURL(item))

	public := env.svc.PublicURL(item)
	require.True(t, strings.HasPrefix(public, "/static/media/"), public)
	require.True(t, strings.HasSuffix(public, ".png"), public)

	private := env.add(t, "hidden.png", "png",
		AccessContext{Access: AccessPrivate, UserID: 1, UserHash: "u1"}, SaveParams{})
	require.Equal(t, "", env.svc.PublicURL(private))

	_, err := env.svc.StoreMedia(context.Background(),
		memSource{name: "x", data: "y"}, actx, SaveParams{Storage: "tape"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestMakeSlugDeterministic(t *testing.T) {
	a := MakeSlug(AccessCompany, 3, 7, "report.csv")
	b := MakeSlug(AccessCompany, 3, 7, "report.csv")
	require.Equal(t, a, b)
	require.Len(t, a, 32)
	require.NotEqual(t, a, MakeSlug(AccessPrivate, 3, 7, "report.csv"))
	require.NotEqual(t, a, MakeSlug(AccessCompany, 4, 7, "report.csv"))
	require.NotEqual(t, a, MakeSlug(AccessCompany, 3, 7, "other.csv"))
}
