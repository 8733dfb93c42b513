package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

// ErrScreenshotGone means the backend no longer exposes the screenshot
// endpoint. Once seen, the client stops trying for the rest of the run.
var ErrScreenshotGone = errors.New("backend screenshot endpoint not available")

// Client talks to the automation backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	screenshotGone atomic.Bool
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logging.Component("backend"),
	}
}

// LogCoordinate submits a coordinate sample. Failures are logged and
// swallowed: coordinate ingest is best-effort telemetry and must never
// stall the capture path.
func (c *Client) LogCoordinate(ctx context.Context, sample CoordinateSample) {
	if err := c.post(ctx, "/v1/coords", sample, nil); err != nil {
		c.log.Warn().Err(err).
			Float64("lat", sample.Lat).
			Float64("lon", sample.Lon).
			Msg("coordinate ingest failed")
	}
}

// Predict sends a screenshot to the inference endpoint and returns the
// model's prediction.
func (c *Client) Predict(ctx context.Context, req InferenceRequest) (*Prediction, error) {
	var out Prediction
	if err := c.post(ctx, "/v1/inference", req, &out); err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	return &out, nil
}

// SaveScreenshot stores a frame without inference. A 404 or a "not found"
// error body from the backend latches ErrScreenshotGone; every later call
// returns it immediately.
func (c *Client) SaveScreenshot(ctx context.Context, req ScreenshotRequest) (*ScreenshotResponse, error) {
	if c.screenshotGone.Load() {
		return nil, ErrScreenshotGone
	}
	var out ScreenshotResponse
	err := c.post(ctx, "/v1/screenshot", req, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.EndpointMissing() {
			c.screenshotGone.Store(true)
			c.log.Warn().Msg("screenshot endpoint missing, disabling screenshot uploads")
			return nil, ErrScreenshotGone
		}
		return nil, fmt.Errorf("screenshot request: %w", err)
	}
	return &out, nil
}

// LogRound persists a finished round with its prediction and score.
func (c *Client) LogRound(ctx context.Context, entry RoundLog) (*RoundLogResult, error) {
	var out RoundLogResult
	if err := c.post(ctx, "/v1/rounds", entry, &out); err != nil {
		return nil, fmt.Errorf("round log request: %w", err)
	}
	return &out, nil
}

// Healthy probes the backend root, for the doctor command.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

// EndpointMissing reports whether the response means the endpoint itself
// is absent, by status code or by a "not found" error body.
func (e *StatusError) EndpointMissing() bool {
	return e.Code == http.StatusNotFound ||
		strings.Contains(strings.ToLower(e.Body), "not found")
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Code, e.Body)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
