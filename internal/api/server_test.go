package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docnarrate/internal/config"
	"github.com/dgallion1/docnarrate/internal/metrics"
	"github.com/dgallion1/docnarrate/internal/pipeline"
	"github.com/dgallion1/docnarrate/internal/synth"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// fakeTTS answers every speech request with "[input]".
func fakeTTS(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		io.WriteString(w, "["+strings.TrimSpace(req.Input)+"]")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	tts := fakeTTS(t)

	cfg := config.Load()
	cfg.APIKey = ""
	cfg.OutputFolderName = t.TempDir()
	cfg.LocalAPIURL = tts.URL + "/v1/audio/speech"
	cfg.MaxCharacters = 4
	cfg.FileFormat = "mp3"
	cfg.UploadRate = 100
	cfg.UploadBurst = 100
	if mutate != nil {
		mutate(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := synth.NewClient(cfg.LocalAPIURL, "", time.Second)
	conv := pipeline.NewChunkConverter(client, nil, pipeline.VoiceFromConfig(cfg), cfg.RecoveryThreshold, m, log)

	orch := pipeline.NewOrchestrator(cfg, conv, m, log)
	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orch.Stop()
	})
	return NewServer(orch, client, reg, log, cfg)
}

func upload(t *testing.T, filename, body string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, body)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/narrate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequiredWhenKeySet(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.APIKey = "secret" })

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/stats/tts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/tts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := do(s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats/tts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", rec.Code)
	}

	// Health stays public.
	if rec := do(s, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected public health, got %d", rec.Code)
	}
}

func waitForStatus(t *testing.T, s *Server, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		switch body["status"] {
		case string(pipeline.StatusCompleted), string(pipeline.StatusPartial), string(pipeline.StatusFailed):
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %v", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNarrate_EndToEnd(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(s, upload(t, "notes.txt", "aa bb cc", map[string]string{"voice": "am_adam", "speed": "1.2"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]any
	json.Unmarshal(rec.Body.Bytes(), &accepted)
	jobID, _ := accepted["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected job_id in %v", accepted)
	}

	body := waitForStatus(t, s, jobID)
	if body["status"] != string(pipeline.StatusCompleted) {
		t.Fatalf("expected completed, got %v", body)
	}
	if body["audio_url"] != "/api/jobs/"+jobID+"/audio" {
		t.Errorf("unexpected audio_url %v", body["audio_url"])
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/audio", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("audio: expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[aa][bb][cc]" {
		t.Errorf("expected merged audio, got %q", got)
	}
}

func TestNarrate_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		want     int
	}{
		{"unsupported type", "image.png", nil, http.StatusBadRequest},
		{"bad speed", "a.txt", map[string]string{"speed": "fast"}, http.StatusBadRequest},
		{"bad format", "a.txt", map[string]string{"format": "ogg"}, http.StatusBadRequest},
		{"bad max chars", "a.txt", map[string]string{"max_chars": "0"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, upload(t, tt.filename, "hello", tt.fields))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestNarrate_TooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.MaxUploadBytes = 4 })
	rec := do(s, upload(t, "a.txt", "hello world", nil))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestNarrate_RateLimited(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.UploadRate = 0.001
		c.UploadBurst = 1
	})
	if rec := do(s, upload(t, "a.txt", "aa", nil)); rec.Code != http.StatusAccepted {
		t.Fatalf("expected first upload accepted, got %d", rec.Code)
	}
	if rec := do(s, upload(t, "b.txt", "bb", nil)); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestJobEndpoints_NotFound(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/api/jobs/missing/status", "/api/jobs/missing/audio"} {
		if rec := do(s, httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestMetricsAndStats(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(s, upload(t, "notes.txt", "aa bb", nil))
	var accepted map[string]any
	json.Unmarshal(rec.Body.Bytes(), &accepted)
	waitForStatus(t, s, accepted["job_id"].(string))

	rec = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "docnarrate_fragments_written_total 2") {
		t.Errorf("expected fragment counter in metrics output")
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/stats/tts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var stats struct {
		Stats  synth.StatsSnapshot `json:"stats"`
		Faults map[string]int      `json:"faults"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Stats.Count != 2 {
		t.Errorf("expected 2 speech requests, got %d", stats.Stats.Count)
	}
	if stats.Faults["transport"] != 0 {
		t.Errorf("expected no transport faults, got %d", stats.Faults["transport"])
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd": "passwd",
		"book.txt":         "book.txt",
		"a..b.txt":         "a_b.txt",
		"":                 "unnamed",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestNarrate_AfterShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	s.orchestrator.Stop()

	rec := do(s, upload(t, "a.txt", "aa bb", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNarrateBatch_QueuesEachFile(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"one.txt", "two.txt", "bad.png"} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, "aa bb cc")
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/narrate/batch", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := do(s, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Jobs []map[string]any `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Jobs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(body.Jobs))
	}
	for _, j := range body.Jobs[:2] {
		if j["status"] == "" || j["status"] == nil {
			t.Errorf("expected a status for %v", j["filename"])
		}
		if id, _ := j["job_id"].(string); id != "" {
			waitForStatus(t, s, id)
		} else {
			t.Errorf("expected job_id for %v", j["filename"])
		}
	}
	if body.Jobs[2]["error"] == nil {
		t.Errorf("expected error for unsupported file, got %v", body.Jobs[2])
	}
}
