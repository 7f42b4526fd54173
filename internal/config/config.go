package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // KMETA_DATABASE_URL (required)
	NATSURL     string // KMETA_NATS_URL (optional, empty = no events)
	PolicyFile  string // KMETA_POLICY_FILE (optional TOML hooks and independent types)

	// Cache settings
	RedisAddr     string        // KMETA_REDIS_ADDR (enables redis when set; otherwise in-process)
	RedisPassword string        // KMETA_REDIS_PASSWORD
	RedisDB       int           // KMETA_REDIS_DB (default 0)
	CacheTTL      time.Duration // KMETA_CACHE_TTL (default 1h; 0 = cache disabled)
	CachePrefix   string        // KMETA_CACHE_PREFIX (default "kmeta:")

	// Export settings
	ExportInterval   time.Duration // KMETA_EXPORT_INTERVAL (default 0 = disabled)
	ExportS3Bucket   string        // KMETA_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Endpoint string        // KMETA_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // KMETA_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Key      string        // KMETA_EXPORT_S3_KEY (default "kmeta/metadata.jsonl")
	ExportFile       string        // KMETA_EXPORT_FILE (enables a local file destination when set)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("KMETA_DATABASE_URL"),
		NATSURL:          os.Getenv("KMETA_NATS_URL"),
		PolicyFile:       os.Getenv("KMETA_POLICY_FILE"),
		RedisAddr:        os.Getenv("KMETA_REDIS_ADDR"),
		RedisPassword:    os.Getenv("KMETA_REDIS_PASSWORD"),
		CachePrefix:      envOrDefault("KMETA_CACHE_PREFIX", "kmeta:"),
		ExportS3Bucket:   os.Getenv("KMETA_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("KMETA_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("KMETA_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Key:      envOrDefault("KMETA_EXPORT_S3_KEY", "kmeta/metadata.jsonl"),
		ExportFile:       os.Getenv("KMETA_EXPORT_FILE"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("KMETA_DATABASE_URL is required")
	}

	db, err := strconv.Atoi(envOrDefault("KMETA_REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("KMETA_REDIS_DB: %w", err)
	}
	c.RedisDB = db

	if c.CacheTTL, err = envDuration("KMETA_CACHE_TTL", "1h"); err != nil {
		return nil, err
	}
	if c.ExportInterval, err = envDuration("KMETA_EXPORT_INTERVAL", "0s"); err != nil {
		return nil, err
	}

	return c, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
