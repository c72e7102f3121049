package main

import (
	"context"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"mediastore/internal/database"
	"mediastore/internal/domain/media"
)

// Dev helper: migrates the schema and uploads a couple of demo files through
// the real service so the dashboard and listings have something to show.
func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "mediastore.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := db.AutoMigrate(&media.StorageItem{}, &media.StorageRelation{}); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM storage_relations")
	db.Exec("DELETE FROM storage_items")

	naming := media.NewNamingPolicy()
	local := media.NewLocalBackend("./storage/public", "./storage/private", naming)
	backends := map[string]media.Backend{media.BackendLocal: local}
	transports := map[string]media.Transport{
		media.BackendLocal: media.NewLocalTransport("/api/v1/media", "/static/media", "./storage/public"),
	}

	repo := media.NewRepository(db)
	svc := media.NewService(repo, backends, transports, media.Options{
		DefaultBackend: media.BackendLocal,
		CheckDuplicate: true,
	})

	ctx := context.Background()
	demo := []struct {
		name    string
		content string
		actx    media.AccessContext
		params  media.SaveParams
	}{
		{
			name:    "welcome.txt",
			content: "welcome to the media store",
			actx:    media.AccessContext{Access: media.AccessPublic, UserID: 1, CompanyID: 1},
			params:  media.SaveParams{Title: "Welcome note"},
		},
		{
			name:    "report.csv",
			content: "id,total\n1,42\n",
			actx:    media.AccessContext{Access: media.AccessCompany, UserID: 2, CompanyID: 1, CompanyHash: "acme"},
			params:  media.SaveParams{Title: "Quarterly report", RelationModule: "crm", RelationSection: "deals", RelationItem: "7"},
		},
		{
			name:    "avatar.png",
			content: "\x89PNG fake pixels",
			actx:    media.AccessContext{Access: media.AccessPrivate, UserID: 3, UserHash: "u3"},
			params:  media.SaveParams{},
		},
	}

	for _, d := range demo {
		item, err := svc.AddMedia(ctx, seedSource{name: d.name, data: d.content}, d.actx, d.params, nil)
		if err != nil {
			log.Fatalf("seed %s failed: %v", d.name, err)
		}
		log.Printf("seeded %s id=%s type=%s size=%s", d.name, item.ID, item.Type, item.Information.Size)
	}

	log.Println("Seed complete.")
}

type seedSource struct {
	name string
	data string
}

func (s seedSource) Filename() string { return s.name }
func (s seedSource) Size() int64      { return int64(len(s.data)) }
func (s seedSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.data)), nil
}
