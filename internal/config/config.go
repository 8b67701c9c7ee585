package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL        string
	Port               string
	PollInterval       int // seconds, watcher tick
	StalenessWindow    int // minutes before a queued job counts as stuck
	SweepBatchSize     int // max jobs recovered per sweep
	MaxRetries         int // transient-failure retry ceiling for sync calls
	ShutdownTimeout    int // seconds
	SweepSecret        string
	CredentialKey      string // base64 AES-256 key for token material at rest
	GoogleClientID     string
	GoogleClientSecret string
	ServiceAccountJSON string // key file contents for the domain-delegated tier
	StorageBucket      string
	OCRServiceURL      string
	OCRServiceKey      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	credentialKey := os.Getenv("CREDENTIAL_ENCRYPTION_KEY")
	if credentialKey == "" {
		return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required")
	}

	sweepSecret := os.Getenv("SWEEP_SECRET")
	if sweepSecret == "" {
		return nil, fmt.Errorf("SWEEP_SECRET is required")
	}

	googleClientID := os.Getenv("GOOGLE_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if googleClientID == "" || googleClientSecret == "" {
		fmt.Println("Warning: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, sheet sync will not work")
	}

	serviceAccountJSON := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")
	if serviceAccountJSON == "" {
		fmt.Println("Warning: GOOGLE_SERVICE_ACCOUNT_JSON not set, domain-delegated tier disabled")
	}

	ocrURL := os.Getenv("OCR_SERVICE_URL")
	if ocrURL == "" {
		fmt.Println("Warning: OCR_SERVICE_URL not set, receipt extraction will not work")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		DatabaseURL:        dbURL,
		Port:               port,
		PollInterval:       envInt("POLL_INTERVAL_SECONDS", 30),
		StalenessWindow:    envInt("STALENESS_WINDOW_MINUTES", 5),
		SweepBatchSize:     envInt("SWEEP_BATCH_SIZE", 10),
		MaxRetries:         envInt("MAX_RETRIES", 3),
		ShutdownTimeout:    envInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
		SweepSecret:        sweepSecret,
		CredentialKey:      credentialKey,
		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		ServiceAccountJSON: serviceAccountJSON,
		StorageBucket:      os.Getenv("STORAGE_BUCKET"),
		OCRServiceURL:      ocrURL,
		OCRServiceKey:      os.Getenv("OCR_SERVICE_KEY"),
	}, nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
