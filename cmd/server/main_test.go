package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-pathways/internal/platform/config"
)

type fakeCheck struct {
	name string
	err  error
}

func (f fakeCheck) Name() string                      { return f.name }
func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		checks     []checker
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200 with no dependencies",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz returns 200 when dependencies are healthy",
			checks:     []checker{fakeCheck{name: "database"}, fakeCheck{name: "cache"}},
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz returns 503 when a dependency fails",
			checks:     []checker{fakeCheck{name: "database"}, fakeCheck{name: "cache", err: errors.New("connection refused")}},
			path:       "/readyz",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"failed":{"cache":"connection refused"},"status":"unavailable"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(tt.checks...)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LogConfig{Level: "info", Format: "text"}, &buf).Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "msg=hello k=v") {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestNewAIRouter(t *testing.T) {
	router := newAIRouter(config.AIConfig{
		DeepSeek: config.APIKeyConfig{APIKey: "ds"},
		Ollama:   config.OllamaConfig{Enabled: true, URL: "http://localhost:11434"},
	})
	got := router.Providers()
	want := []string{"deepseek", "ollama"}
	if !slices.Equal(got, want) {
		t.Errorf("Providers() = %v, want %v", got, want)
	}

	if newAIRouter(config.AIConfig{}).HasProvider() {
		t.Error("empty config should register no providers")
	}
}

func TestSetup_MemoryBackend(t *testing.T) {
	dir := t.TempDir()
	seed := `id: demo
topic: Demo
level: beginner
subtopics:
  - name: One
    explanation: First.
  - name: Two
    explanation: Second.
`
	if err := os.WriteFile(filepath.Join(dir, "demo.yaml"), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Backend:        config.BackendMemory,
		Synthesis:      config.SynthesisConfig{Mode: config.SynthesisTemplate},
		Upload:         config.UploadConfig{MaxBytes: 1 << 20},
		CurriculumPath: dir,
	}
	a, err := setup(t.Context(), cfg)
	if err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	t.Cleanup(a.close)
	t.Cleanup(a.sessions.CloseAll)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"path_id":"demo"}`))
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.SessionID == "" {
		t.Fatalf("open body = %s (%v)", rec.Body.String(), err)
	}
	if a.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", a.sessions.Len())
	}

	rec = httptest.NewRecorder()
	a.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}
}

func TestSetup_PostgresUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}
	cfg := &config.Config{
		Backend:        config.BackendPostgres,
		Database:       config.DatabaseConfig{URL: "postgres://u:p@localhost:59999/x?connect_timeout=1", MaxConns: 2, MinConns: 1},
		Synthesis:      config.SynthesisConfig{Mode: config.SynthesisTemplate},
		CurriculumPath: t.TempDir(),
	}
	if _, err := setup(t.Context(), cfg); err == nil {
		t.Fatal("setup() should fail when the database is unreachable")
	}
}
