package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single speech request. Long chunks on a local CPU
// model can take minutes.
const DefaultTimeout = 10 * time.Minute

// Request is one text-to-speech conversion.
type Request struct {
	Model  string
	Text   string
	Voice  string
	Format string
	Speed  float64
}

// Converter turns text into encoded audio.
type Converter interface {
	Convert(ctx context.Context, req Request) ([]byte, error)
}

// Client calls an OpenAI-compatible speech endpoint such as Kokoro-FastAPI's
// POST /v1/audio/speech.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	Stats      *Stats
}

func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		Stats: NewStats(time.Hour),
	}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Convert posts the request and returns the audio body. A non-2xx answer is a
// *RejectedError; anything that stops the exchange from completing is a
// *TransportError.
func (c *Client) Convert(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          req.Model,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: req.Format,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.fail(&TransportError{Op: "post", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, c.fail(&RejectedError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		})
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(&TransportError{Op: "read", Err: err})
	}
	if c.Stats != nil {
		c.Stats.Record(time.Since(start))
	}
	return audio, nil
}

func (c *Client) fail(err error) error {
	if c.Stats != nil {
		c.Stats.RecordFailure()
	}
	return err
}

// Endpoint returns the speech URL this client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
