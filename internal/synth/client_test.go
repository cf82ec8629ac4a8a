package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newSpeechServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/v1/audio/speech", handler)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientConvert_SendsSpeechRequest(t *testing.T) {
	var got speechRequest
	var auth string
	srv := newSpeechServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-audio"))
	})

	c := NewClient(srv.URL+"/v1/audio/speech", "secret", time.Second)
	defer c.Close()

	audio, err := c.Convert(context.Background(), Request{
		Model:  "kokoro",
		Text:   "hello world ",
		Voice:  "af_bella",
		Format: "mp3",
		Speed:  1.25,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "ID3-audio" {
		t.Errorf("expected audio body, got %q", audio)
	}
	want := speechRequest{Model: "kokoro", Input: "hello world ", Voice: "af_bella", ResponseFormat: "mp3", Speed: 1.25}
	if got != want {
		t.Errorf("expected request %+v, got %+v", want, got)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", auth)
	}
	if snap := c.Stats.Snapshot(); snap.Count != 1 {
		t.Errorf("expected 1 latency sample, got %d", snap.Count)
	}
}

func TestClientConvert_NonSuccessIsRejected(t *testing.T) {
	srv := newSpeechServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"text too long"}`, http.StatusUnprocessableEntity)
	})

	c := NewClient(srv.URL+"/v1/audio/speech", "", time.Second)
	_, err := c.Convert(context.Background(), Request{Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *RejectedError, got %T: %v", err, err)
	}
	if rej.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", rej.StatusCode)
	}
	if IsTransport(err) {
		t.Error("rejection must not be classified as transport fault")
	}
	if snap := c.Stats.Snapshot(); snap.Failures != 1 {
		t.Errorf("expected 1 failure recorded, got %d", snap.Failures)
	}
}

func TestClientConvert_UnreachableIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url+"/v1/audio/speech", "", time.Second)
	_, err := c.Convert(context.Background(), Request{Text: "x"})
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %T: %v", err, err)
	}
	if IsRejected(err) {
		t.Error("transport fault must not be classified as rejection")
	}
}

func TestClientConvert_TimeoutIsTransport(t *testing.T) {
	srv := newSpeechServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	c := NewClient(srv.URL+"/v1/audio/speech", "", 50*time.Millisecond)
	_, err := c.Convert(context.Background(), Request{Text: "x"})
	if !IsTransport(err) {
		t.Fatalf("expected transport error on timeout, got %T: %v", err, err)
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient("http://localhost:8880/v1/audio/speech", "", 0)
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout %s, got %s", DefaultTimeout, c.httpClient.Timeout)
	}
	if c.Endpoint() != "http://localhost:8880/v1/audio/speech" {
		t.Errorf("unexpected endpoint %q", c.Endpoint())
	}
}

func TestRejectedError_TruncatesMessage(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &RejectedError{StatusCode: 500, Message: string(long)}
	if n := len(err.Error()); n > 260 {
		t.Errorf("expected truncated message, got %d bytes", n)
	}
}
