package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/canvas/internal/config"
	"github.com/R3E-Network/canvas/internal/logging"
	"github.com/R3E-Network/canvas/internal/middleware"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Env:         config.EnvDevelopment,
		HTTPAddr:    "127.0.0.1:0",
		SecretKey:   "runtime-test-secret",
		CORSOrigins: "http://localhost:5173",
	}
	cfg.Auth.AccessTokenTTL = 30 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Storage.Backend = config.BlobBackendLocal
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Storage.MaxUploadSizeMB = 10
	return cfg
}

func TestNewApplicationServesHealthWithMemoryStores(t *testing.T) {
	a, err := NewApplication(context.Background(), testConfig(t), logging.Discard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if a.db != nil {
		t.Fatalf("expected no database without CANVAS_DATABASE_URL")
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProductionRequiresDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = config.EnvProduction

	if _, err := NewApplication(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected error without database in production")
	}
}

func TestInvalidTrustedProxyIsRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.TrustedProxies = "10.0.0.0/8, not-an-ip"

	if _, err := NewApplication(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected error for invalid trusted proxy")
	}
}

func TestUnreachableRedisFallsBackToMemoryLimiter(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	limiter := buildLimiter(context.Background(), cfg, logging.Discard())
	if _, ok := limiter.(*middleware.RateLimiter); !ok {
		t.Fatalf("expected in-memory limiter, got %T", limiter)
	}
}

func TestRunAndShutdown(t *testing.T) {
	a, err := NewApplication(context.Background(), testConfig(t), logging.Discard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
