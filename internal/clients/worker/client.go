package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP wrapper around the detection worker's control API.
// Calls are plain requests; best-effort semantics live in the coordinator.
type Client struct {
	baseURL     string
	internalKey string
	http        *http.Client
}

// New creates a client for the worker at baseURL. Every call carries
// internalKey in the X-Internal-Key header.
func New(baseURL, internalKey string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("baseURL must include scheme (http/https)")
	}

	return &Client{
		baseURL:     strings.TrimRight(parsed.String(), "/"),
		internalKey: internalKey,
		http:        &http.Client{Timeout: timeout},
	}, nil
}

type startRequest struct {
	CameraID         string `json:"cameraId"`
	RtspURL          string `json:"rtspUrl"`
	FpsTarget        int    `json:"fpsTarget"`
	DetectionEnabled bool   `json:"detectionEnabled"`
}

type stopRequest struct {
	CameraID string `json:"cameraId"`
}

type updateRequest struct {
	CameraID string         `json:"cameraId"`
	Changes  map[string]any `json:"changes"`
}

// Start asks the worker to spin up the pipeline for a camera.
func (c *Client) Start(ctx context.Context, cameraID, rtspURL string, fpsTarget int, detectionEnabled bool) error {
	return c.post(ctx, "/api/control/start", startRequest{
		CameraID:         cameraID,
		RtspURL:          rtspURL,
		FpsTarget:        fpsTarget,
		DetectionEnabled: detectionEnabled,
	})
}

// Stop asks the worker to tear down the pipeline for a camera. The camera may
// already be gone server-side; the worker treats unknown IDs as a no-op.
func (c *Client) Stop(ctx context.Context, cameraID string) error {
	return c.post(ctx, "/api/control/stop", stopRequest{CameraID: cameraID})
}

// UpdateConfig sends only the changed fields so the worker can apply a
// minimal diff. Control calls are idempotent, last-write-wins per field.
func (c *Client) UpdateConfig(ctx context.Context, cameraID string, changes map[string]any) error {
	return c.post(ctx, "/api/control/update", updateRequest{CameraID: cameraID, Changes: changes})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Key", c.internalKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("worker request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("worker returned status %d", resp.StatusCode)
	}
	return nil
}
