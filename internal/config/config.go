package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"

	"webhook-migrate/internal/failure"
)

const (
	DefaultUploadURL = "http://server.webhook.com/upload-url/"
	// FirebaseConf is the per-project file holding the site name and key.
	FirebaseConf = ".firebase.conf"

	EnvSiteName  = "WEBHOOK_SITE_NAME"
	EnvSecretKey = "WEBHOOK_SECRET_KEY"
	EnvUploadURL = "WEBHOOK_UPLOAD_URL"
)

type Config struct {
	MigrateFrom  string
	PathToRead   string
	PathToWrite  string
	UploadURL    string
	SiteName     string
	SecretKey    string
	RequestsPath string
	Concurrency  int
	Debug        bool
}

// Validate reports the first required option left empty.
func (c *Config) Validate() error {
	for _, opt := range []struct{ key, value string }{
		{"migrateFrom", c.MigrateFrom},
		{"pathToRead", c.PathToRead},
		{"pathToWrite", c.PathToWrite},
		{"uploadUrl", c.UploadURL},
		{"siteName", c.SiteName},
		{"secretKey", c.SecretKey},
	} {
		if strings.TrimSpace(opt.value) == "" {
			return failure.MissingConfiguration(opt.key)
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}

// Origin is MigrateFrom as a URL prefix.
func (c *Config) Origin() string {
	return NormalizeOrigin(c.MigrateFrom)
}

// NormalizeOrigin adds an http scheme to a bare host and drops any
// trailing slash.
func NormalizeOrigin(from string) string {
	from = strings.TrimRight(strings.TrimSpace(from), "/")
	if from == "" || strings.HasPrefix(from, "http") {
		return from
	}
	return "http://" + from
}

// ErrorsPath is where requests still failing after a run are written.
func (c *Config) ErrorsPath() string {
	return c.PathToWrite + ".errors"
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; set variables are not replaced.
func LoadDotEnv(paths ...string) error {
	var found []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return nil
	}
	if err := godotenv.Load(found...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv fills options left empty from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	fill(&c.SiteName, getenv(EnvSiteName))
	fill(&c.SecretKey, getenv(EnvSecretKey))
	fill(&c.UploadURL, getenv(EnvUploadURL))
}

// ApplyFirebaseConf fills the site name and secret key from a
// .firebase.conf file when they are still empty. A missing file is not
// an error.
func (c *Config) ApplyFirebaseConf(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%s is not valid json", path)
	}
	fill(&c.SiteName, gjson.GetBytes(data, "siteName").String())
	fill(&c.SecretKey, gjson.GetBytes(data, "secretKey").String())
	return nil
}

// ApplyDefaults sets the hosted upload endpoint when none was given.
func (c *Config) ApplyDefaults() {
	fill(&c.UploadURL, DefaultUploadURL)
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
