package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // PRHELPER_DATABASE_URL (required)
	HTTPAddr    string // PRHELPER_HTTP_ADDR (default ":8080")
	NATSURL     string // PRHELPER_NATS_URL (optional, empty = no events)
	AuthToken   string // PRHELPER_AUTH_TOKEN (optional, empty = auth disabled)

	// GitHub settings
	GitHubToken  string // PRHELPER_GITHUB_TOKEN (required)
	GitHubAPIURL string // PRHELPER_GITHUB_API_URL (default "https://api.github.com")

	// Poller settings
	PollInterval    time.Duration // PRHELPER_POLL_INTERVAL (default 30s; 0 = disabled)
	NotifyRateLimit time.Duration // PRHELPER_NOTIFY_RATE_LIMIT (default 1h)

	// Snapshot export settings
	SnapshotInterval   time.Duration // PRHELPER_SNAPSHOT_INTERVAL (default 3m; 0 = disabled)
	SnapshotS3Bucket   string        // PRHELPER_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Endpoint string        // PRHELPER_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	SnapshotS3Region   string        // PRHELPER_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Key      string        // PRHELPER_SNAPSHOT_S3_KEY (default "pr-helper/snapshot.jsonl")
	SnapshotFile       string        // PRHELPER_SNAPSHOT_FILE (enables local file export when set)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:        os.Getenv("PRHELPER_DATABASE_URL"),
		HTTPAddr:           envOrDefault("PRHELPER_HTTP_ADDR", ":8080"),
		NATSURL:            os.Getenv("PRHELPER_NATS_URL"),
		AuthToken:          os.Getenv("PRHELPER_AUTH_TOKEN"),
		GitHubToken:        os.Getenv("PRHELPER_GITHUB_TOKEN"),
		GitHubAPIURL:       envOrDefault("PRHELPER_GITHUB_API_URL", "https://api.github.com"),
		SnapshotS3Bucket:   os.Getenv("PRHELPER_SNAPSHOT_S3_BUCKET"),
		SnapshotS3Endpoint: os.Getenv("PRHELPER_SNAPSHOT_S3_ENDPOINT"),
		SnapshotS3Region:   envOrDefault("PRHELPER_SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotS3Key:      envOrDefault("PRHELPER_SNAPSHOT_S3_KEY", "pr-helper/snapshot.jsonl"),
		SnapshotFile:       os.Getenv("PRHELPER_SNAPSHOT_FILE"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PRHELPER_DATABASE_URL is required")
	}
	if c.GitHubToken == "" {
		return nil, fmt.Errorf("PRHELPER_GITHUB_TOKEN is required")
	}

	var err error
	if c.PollInterval, err = durationOrDefault("PRHELPER_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if c.NotifyRateLimit, err = durationOrDefault("PRHELPER_NOTIFY_RATE_LIMIT", time.Hour); err != nil {
		return nil, err
	}
	if c.SnapshotInterval, err = durationOrDefault("PRHELPER_SNAPSHOT_INTERVAL", 3*time.Minute); err != nil {
		return nil, err
	}

	return c, nil
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
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
