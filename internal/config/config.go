package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store       string // PAYWALL_STORE (default "postgres"; "memory" for development)
	DatabaseURL string // PAYWALL_DATABASE_URL (required for postgres)
	GRPCAddr    string // PAYWALL_GRPC_ADDR (default ":9090")
	HTTPAddr    string // PAYWALL_HTTP_ADDR (default ":8080")
	NATSURL     string // PAYWALL_NATS_URL (optional, empty = no events)
	NATSEmbed   bool   // PAYWALL_NATS_EMBEDDED (run an in-process NATS when NATSURL is empty)
	AuthToken   string // PAYWALL_AUTH_TOKEN (optional, empty = auth disabled)
	HooksFile   string // PAYWALL_HOOKS_FILE (optional TOML file of event hooks)

	ProgramID model.Address  // PAYWALL_PROGRAM_ID (base58; default all-zero)
	Admin     *model.Address // PAYWALL_ADMIN (optional bootstrap fee admin)

	RateLimit float64 // PAYWALL_RATE_LIMIT (requests/s per client; default 50; 0 = disabled)
	RateBurst int     // PAYWALL_RATE_BURST (default 100)

	// Sync settings
	SyncInterval   time.Duration // PAYWALL_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // PAYWALL_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // PAYWALL_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // PAYWALL_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // PAYWALL_SYNC_S3_KEY (default "paywall/snapshot.jsonl")
	SyncGitRepo    string        // PAYWALL_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // PAYWALL_SYNC_GIT_FILE (default "paywall.jsonl")
	SyncGitBranch  string        // PAYWALL_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		Store:          envOrDefault("PAYWALL_STORE", StorePostgres),
		DatabaseURL:    os.Getenv("PAYWALL_DATABASE_URL"),
		GRPCAddr:       envOrDefault("PAYWALL_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("PAYWALL_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("PAYWALL_NATS_URL"),
		AuthToken:      os.Getenv("PAYWALL_AUTH_TOKEN"),
		HooksFile:      os.Getenv("PAYWALL_HOOKS_FILE"),
		SyncS3Bucket:   os.Getenv("PAYWALL_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("PAYWALL_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("PAYWALL_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("PAYWALL_SYNC_S3_KEY", "paywall/snapshot.jsonl"),
		SyncGitRepo:    os.Getenv("PAYWALL_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("PAYWALL_SYNC_GIT_FILE", "paywall.jsonl"),
		SyncGitBranch:  envOrDefault("PAYWALL_SYNC_GIT_BRANCH", "main"),
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("PAYWALL_DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("PAYWALL_STORE: unknown store %q", c.Store)
	}

	if v := os.Getenv("PAYWALL_PROGRAM_ID"); v != "" {
		id, err := model.ParseAddress(v)
		if err != nil {
			return nil, fmt.Errorf("PAYWALL_PROGRAM_ID: %w", err)
		}
		c.ProgramID = id
	}
	if v := os.Getenv("PAYWALL_ADMIN"); v != "" {
		admin, err := model.ParseAddress(v)
		if err != nil {
			return nil, fmt.Errorf("PAYWALL_ADMIN: %w", err)
		}
		c.Admin = &admin
	}

	rate, err := strconv.ParseFloat(envOrDefault("PAYWALL_RATE_LIMIT", "50"), 64)
	if err != nil || rate < 0 {
		return nil, fmt.Errorf("PAYWALL_RATE_LIMIT: invalid value %q", os.Getenv("PAYWALL_RATE_LIMIT"))
	}
	c.RateLimit = rate
	burst, err := strconv.Atoi(envOrDefault("PAYWALL_RATE_BURST", "100"))
	if err != nil || burst < 1 {
		return nil, fmt.Errorf("PAYWALL_RATE_BURST: invalid value %q", os.Getenv("PAYWALL_RATE_BURST"))
	}
	c.RateBurst = burst

	if v := os.Getenv("PAYWALL_NATS_EMBEDDED"); v != "" {
		embed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("PAYWALL_NATS_EMBEDDED: invalid value %q", v)
		}
		c.NATSEmbed = embed
	}

	intervalStr := envOrDefault("PAYWALL_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("PAYWALL_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	return c, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
