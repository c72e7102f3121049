package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"google.golang.org/api/option"

	"mediastore/internal/config"
	"mediastore/internal/database"
	"mediastore/internal/domain/media"
	"mediastore/internal/middleware"
	jwtsvc "mediastore/internal/pkg/jwt"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is empty")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is empty")
	}

	cfg, err := config.LoadMediaConfig()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrate(&media.StorageItem{}, &media.StorageRelation{}); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	naming := media.NewNamingPolicy()

	backends := map[string]media.Backend{}
	transports := map[string]media.Transport{}

	local := media.NewLocalBackend(cfg.PublicPath, cfg.PrivatePath, naming)
	backends[media.BackendLocal] = local
	transports[media.BackendLocal] = media.NewLocalTransport(cfg.StreamURI, cfg.DownloadURI, cfg.PublicPath)

	if cfg.S3.Bucket != "" {
		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			log.Fatal(err)
		}
		b := media.NewS3Backend(client, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Policy, naming)
		backends[media.BackendS3] = b
		transports[media.BackendS3] = media.NewRemoteTransport(b, cfg.StreamURI)
	}

	if cfg.Minio.Endpoint != "" {
		client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
			Secure: cfg.Minio.UseSSL,
		})
		if err != nil {
			log.Fatal(err)
		}
		b := media.NewMinioBackend(client, cfg.Minio.Bucket, cfg.Minio.Policy, naming)
		backends[media.BackendMinio] = b
		transports[media.BackendMinio] = media.NewRemoteTransport(b, cfg.StreamURI)
	}

	if cfg.GCS.Bucket != "" {
		var opts []option.ClientOption
		if cfg.GCS.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			log.Fatal(err)
		}
		b := media.NewGCSBackend(client, cfg.GCS.Bucket, naming)
		backends[media.BackendGCS] = b
		transports[media.BackendGCS] = media.NewRemoteTransport(b, cfg.StreamURI)
	}

	repo := media.NewRepository(db)
	svc := media.NewService(repo, backends, transports, media.Options{
		DefaultBackend: cfg.Storage,
		CheckDuplicate: cfg.CheckDuplicate,
		QuotaBytes:     cfg.QuotaBytes,
	})
	handler := media.NewHandler(svc)

	j := jwtsvc.New(secret, 24*time.Hour)

	uploadValidation := middleware.UploadValidation(middleware.UploadRules{
		AllowedExtensions: cfg.AllowedExtensions,
		ForbiddenTypes:    cfg.ForbiddenTypes,
		MimeTypes:         cfg.MimeTypes,
		MinSize:           cfg.MinSize,
		MaxSize:           cfg.MaxSize,
		CheckDuplicate:    cfg.CheckDuplicate,
		CheckRealMime:     cfg.CheckRealMime,
	}, svc)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	// public objects are served straight off disk
	r.Static(cfg.DownloadURI, cfg.PublicPath)

	v1 := r.Group("/api/v1")
	{
		protected := v1.Group("/")
		protected.Use(middleware.Auth(j))
		{
			media.RegisterRoutes(protected, handler, uploadValidation)
		}
	}

	addr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	if err := r.Run(addr); err != nil {
		log.Fatal(err)
	}
}

func newS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
