package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ErrMissing marks a required setting that was not provided.
var ErrMissing = errors.New("missing required setting")

// Defaults for optional settings.
const (
	DefaultRootBucket = "moodle-sync"
	DefaultLedgerPath = "sync.db"
)

// Config holds every recognized option for a sync run.
type Config struct {
	// Source portal.
	LoginURL string
	Username string
	Password string

	// Destination store.
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool

	RootBucket string
	LedgerPath string
	StagingDir string
}

// LoadEnv loads a .env file when one is present in the working
// directory. Missing files are fine; deployed environments set the
// variables directly.
func LoadEnv() {
	_ = godotenv.Load()
}

// Validate fails fast on missing required settings, before any network
// activity, and fills in defaults for the optional ones.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"MOODLE_LOGIN_URL", c.LoginURL},
		{"MOODLE_USERNAME", c.Username},
		{"MOODLE_PASSWORD", c.Password},
		{"MINIO_ENDPOINT", c.Endpoint},
		{"MINIO_ACCESS_KEY", c.AccessKey},
		{"MINIO_SECRET_KEY", c.SecretKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissing, r.name)
		}
	}

	if c.RootBucket == "" {
		c.RootBucket = DefaultRootBucket
	}
	if c.LedgerPath == "" {
		c.LedgerPath = DefaultLedgerPath
	}
	if c.StagingDir == "" {
		c.StagingDir = os.TempDir()
	}
	return nil
}
