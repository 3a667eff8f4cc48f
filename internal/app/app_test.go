package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hitoshi/clubcal/internal/auth"
	"github.com/hitoshi/clubcal/internal/config"
	"github.com/hitoshi/clubcal/internal/provider"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "info")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.DatabaseURL != unreachableDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, unreachableDatabaseURL)
	}

	// グローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("info log should be filtered at warn level, got %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestNewRateLimiterConfig_ConvertsPerMinute(t *testing.T) {
	cfg := &config.Config{RateLimitGeneral: 60, RateLimitGroupCreate: 6}

	rl := newRateLimiterConfig(cfg)

	if rl.GeneralRate != rate.Limit(1) {
		t.Errorf("GeneralRate = %v, want 1", rl.GeneralRate)
	}
	if rl.GeneralBurst != 60 {
		t.Errorf("GeneralBurst = %d, want 60", rl.GeneralBurst)
	}
	if rl.GroupCreateRate != rate.Limit(0.1) {
		t.Errorf("GroupCreateRate = %v, want 0.1", rl.GroupCreateRate)
	}
	if rl.GroupCreateBurst != 6 {
		t.Errorf("GroupCreateBurst = %d, want 6", rl.GroupCreateBurst)
	}
}

func TestNewRateLimiterConfig_ZeroKeepsDefaults(t *testing.T) {
	rl := newRateLimiterConfig(&config.Config{})

	if rl.GeneralBurst != 120 || rl.GroupCreateBurst != 10 {
		t.Errorf("bursts = (%d, %d), want defaults (120, 10)", rl.GeneralBurst, rl.GroupCreateBurst)
	}
}

func TestNewConnector(t *testing.T) {
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{ClientID: "id"})

	connector, verifier := newConnector(&config.Config{Provider: config.ProviderFake}, oauthProvider)
	fake, ok := connector.(*provider.FakeProvider)
	if !ok {
		t.Fatalf("connector = %T, want *provider.FakeProvider", connector)
	}
	if verifier != provider.TokenVerifier(fake) {
		t.Error("fake provider should also verify tokens")
	}

	connector, verifier = newConnector(&config.Config{Provider: config.ProviderGoogle}, oauthProvider)
	if _, ok := connector.(*provider.GoogleConnector); !ok {
		t.Errorf("connector = %T, want *provider.GoogleConnector", connector)
	}
	if verifier != provider.TokenVerifier(oauthProvider) {
		t.Error("google login should verify tokens through the OAuth provider")
	}
}

type countingJob struct {
	runs atomic.Int32
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return nil
}

func TestNewCleanupScheduler(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{schedule: "@daily"},
		{schedule: "0 3 * * *"},
		{schedule: "@every 1h"},
		{schedule: "not a schedule", wantErr: true},
		{schedule: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			c, err := newCleanupScheduler(context.Background(), tt.schedule, &countingJob{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(c.Entries()) != 1 {
				t.Errorf("entries = %d, want 1", len(c.Entries()))
			}
		})
	}
}

func TestNewCleanupScheduler_RunsJob(t *testing.T) {
	job := &countingJob{}
	c, err := newCleanupScheduler(context.Background(), "@every 1h", job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Entries()[0].WrappedJob.Run()

	if job.runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", job.runs.Load())
	}
}

func TestNewCleanupScheduler_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &countingJob{}
	c, err := newCleanupScheduler(ctx, "@every 1h", job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancel()
	c.Entries()[0].WrappedJob.Run()

	if job.runs.Load() != 0 {
		t.Errorf("runs = %d, want 0 after cancel", job.runs.Load())
	}
}

func TestRunHealthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "healthy", status: http.StatusOK},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			u, err := url.Parse(srv.URL)
			if err != nil {
				t.Fatalf("failed to parse server URL: %v", err)
			}

			err = runHealthcheck(u.Port())
			if (err != nil) != tt.wantErr {
				t.Errorf("runHealthcheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	masked := maskDatabaseURL("postgres://user:secret@db:5432/clubcal")
	if masked != "postgres://u***@..." {
		t.Errorf("maskDatabaseURL() = %q", masked)
	}
	if maskDatabaseURL("short") != "***" {
		t.Errorf("short URL should be fully masked")
	}
}
