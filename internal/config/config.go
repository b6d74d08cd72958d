// Package config loads runtime configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BlobBackendLocal = "local"
	BlobBackendMinIO = "minio"
)

// Config is the complete runtime configuration.
type Config struct {
	Env         string `env:"CANVAS_ENV,default=development"`
	HTTPAddr    string `env:"CANVAS_HTTP_ADDR,default=:8000"`
	DatabaseURL string `env:"CANVAS_DATABASE_URL"`
	SecretKey   string `env:"CANVAS_SECRET_KEY"`
	CORSOrigins string `env:"CANVAS_CORS_ORIGINS,default=http://localhost:5173"`
	RedisURL    string `env:"CANVAS_REDIS_URL"`
	// Comma-separated IPs or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies string `env:"CANVAS_TRUSTED_PROXIES"`

	Logging LoggingConfig
	Auth    AuthConfig
	Storage StorageConfig
	PDF     PDFConfig
}

type LoggingConfig struct {
	Level  string `env:"CANVAS_LOG_LEVEL,default=info"`
	Format string `env:"CANVAS_LOG_FORMAT,default=json"`
}

type AuthConfig struct {
	AccessTokenTTL  time.Duration `env:"CANVAS_ACCESS_TOKEN_TTL,default=30m"`
	RefreshTokenTTL time.Duration `env:"CANVAS_REFRESH_TOKEN_TTL,default=168h"`
	SecureCookies   bool          `env:"CANVAS_SECURE_COOKIES,default=true"`
}

type StorageConfig struct {
	Backend         string `env:"CANVAS_BLOB_BACKEND,default=local"`
	UploadDir       string `env:"CANVAS_UPLOAD_DIR,default=./uploads"`
	MaxUploadSizeMB int    `env:"CANVAS_MAX_UPLOAD_SIZE_MB,default=10"`
	MinIO           MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string `env:"CANVAS_MINIO_ENDPOINT"`
	AccessKey string `env:"CANVAS_MINIO_ACCESS_KEY"`
	SecretKey string `env:"CANVAS_MINIO_SECRET_KEY"`
	Bucket    string `env:"CANVAS_MINIO_BUCKET,default=canvas-attachments"`
	UseSSL    bool   `env:"CANVAS_MINIO_USE_SSL,default=false"`
}

type PDFConfig struct {
	ChromeBin string        `env:"CANVAS_CHROME_BIN"`
	ChromeURL string        `env:"CANVAS_CHROME_URL"`
	Timeout   time.Duration `env:"CANVAS_PDF_TIMEOUT,default=30s"`
}

// Load reads .env (when present) and decodes the environment.
func Load() (*Config, error) {
	return LoadFromFiles(".env")
}

// LoadFromFiles is Load with explicit dotenv files. Missing files are ignored;
// variables already present in the environment win.
func LoadFromFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("CANVAS_SECRET_KEY is required")
	}
	if c.IsProduction() && len(c.SecretKey) < 32 {
		return fmt.Errorf("CANVAS_SECRET_KEY must be at least 32 bytes in production")
	}
	if c.Storage.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("CANVAS_MAX_UPLOAD_SIZE_MB must be positive")
	}
	switch c.Storage.Backend {
	case BlobBackendLocal:
	case BlobBackendMinIO:
		if c.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("CANVAS_MINIO_ENDPOINT is required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Storage.Backend)
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// MaxUploadBytes is the attachment size ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadSizeMB) * 1024 * 1024
}

// AllowedOrigins splits the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// TrustedProxyList splits the trusted proxy list.
func (c *Config) TrustedProxyList() []string {
	var out []string
	for _, entry := range strings.Split(c.TrustedProxies, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
