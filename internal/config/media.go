package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"mediastore/internal/domain/media"
	validatorpkg "mediastore/internal/pkg/validator"
)

const (
	defaultStorage     = "local"
	defaultPublicPath  = "./storage/public"
	defaultPrivatePath = "./storage/private"
	defaultStreamURI   = "/api/v1/media"
	defaultDownloadURI = "/static/media"
	defaultMinSize     = "1B"
	defaultMaxSize     = "50MB"
	defaultQuota       = "10GB"
)

// MediaConfig is the runtime configuration of the media module: which backend
// is active by default, upload validation limits, and per-backend settings.
type MediaConfig struct {
	Storage           string `validate:"oneof=local s3 minio gcs"`
	AllowedExtensions []string
	ForbiddenTypes    []string
	MimeTypes         []string
	MinSize           int64 `validate:"gte=0,ltefield=MaxSize"`
	MaxSize           int64 `validate:"gt=0"`
	CheckDuplicate    bool
	CheckRealMime     bool
	PublicPath        string `validate:"required"`
	PrivatePath       string `validate:"required"`
	StreamURI         string `validate:"required"`
	DownloadURI       string `validate:"required"`
	QuotaBytes        int64  `validate:"gte=0"`

	S3    S3Config
	Minio MinioConfig
	GCS   GCSConfig
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Policy    string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Policy    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

// LoadMediaConfig reads the media configuration from the environment.
// Size limits accept human strings ("50MB") or raw byte counts.
func LoadMediaConfig() (*MediaConfig, error) {
	cfg := &MediaConfig{
		Storage:           strings.ToLower(strings.TrimSpace(getEnv("MEDIA_STORAGE", defaultStorage))),
		AllowedExtensions: splitEnv("MEDIA_ALLOWED_EXTENSIONS"),
		ForbiddenTypes:    splitEnv("MEDIA_FORBIDDEN_TYPES"),
		MimeTypes:         splitEnv("MEDIA_MIME_TYPES"),
		CheckDuplicate:    parseBoolEnv("MEDIA_CHECK_DUPLICATE", "false"),
		CheckRealMime:     parseBoolEnv("MEDIA_CHECK_REAL_MIME", "false"),
		PublicPath:        getEnv("MEDIA_PUBLIC_PATH", defaultPublicPath),
		PrivatePath:       getEnv("MEDIA_PRIVATE_PATH", defaultPrivatePath),
		StreamURI:         getEnv("MEDIA_STREAM_URI", defaultStreamURI),
		DownloadURI:       getEnv("MEDIA_DOWNLOAD_URI", defaultDownloadURI),
		S3: S3Config{
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    os.Getenv("S3_BUCKET"),
			Policy:    os.Getenv("S3_BUCKET_POLICY"),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    os.Getenv("MINIO_BUCKET"),
			Policy:    os.Getenv("MINIO_BUCKET_POLICY"),
			UseSSL:    parseBoolEnv("MINIO_USE_SSL", "false"),
		},
		GCS: GCSConfig{
			Bucket:          os.Getenv("GCS_BUCKET"),
			CredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		},
	}

	var err error
	if cfg.MinSize, err = parseSizeEnv("MEDIA_MIN_SIZE", defaultMinSize); err != nil {
		return nil, err
	}
	if cfg.MaxSize, err = parseSizeEnv("MEDIA_MAX_SIZE", defaultMaxSize); err != nil {
		return nil, err
	}
	if cfg.QuotaBytes, err = parseSizeEnv("MEDIA_QUOTA", defaultQuota); err != nil {
		return nil, err
	}

	if err := validateMediaConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("media config: storage=%s check_duplicate=%t check_real_mime=%t max_size=%d",
		cfg.Storage, cfg.CheckDuplicate, cfg.CheckRealMime, cfg.MaxSize)

	return cfg, nil
}

func validateMediaConfig(cfg *MediaConfig) error {
	if err := validatorpkg.CheckErr(cfg); err != nil {
		return fmt.Errorf("media config: %w", err)
	}
	if cfg.Storage == "s3" && cfg.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when MEDIA_STORAGE=s3")
	}
	if cfg.Storage == "minio" && (cfg.Minio.Endpoint == "" || cfg.Minio.Bucket == "") {
		return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required when MEDIA_STORAGE=minio")
	}
	if cfg.Storage == "gcs" && cfg.GCS.Bucket == "" {
		return fmt.Errorf("GCS_BUCKET is required when MEDIA_STORAGE=gcs")
	}
	return nil
}

func parseSizeEnv(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}
	n, err := media.ParseHumanSize(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func splitEnv(name string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
