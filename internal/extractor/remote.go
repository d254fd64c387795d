package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/bookcover/internal/descriptor"
)

// RemoteConfig configures the HTTP adapter to an out-of-process extraction
// service.
type RemoteConfig struct {
	// BaseURL is the service root; the adapter posts to BaseURL/extract.
	BaseURL string

	// Timeout bounds each HTTP attempt. Defaults to 30s.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts on 429/5xx
	// responses. Defaults to 3.
	MaxRetries int
}

// Remote extracts descriptors by calling an external feature-extraction
// service over HTTP. The service receives the raw image bytes and responds
// with base64-encoded descriptors.
type Remote struct {
	baseURL    string
	client     *http.Client
	maxRetries int
}

// NewRemote builds a remote extractor from the given configuration.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("extractor: remote base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	return &Remote{
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: timeout},
		maxRetries: retries,
	}, nil
}

type extractResponse struct {
	Descriptors []string `json:"descriptors"`
}

// Extract posts the image to the extraction service, retrying transient
// failures with linear backoff.
func (r *Remote) Extract(ctx context.Context, image []byte) (descriptor.Set, error) {
	url := r.baseURL + "/extract"
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("extractor: remote returned %s", resp.Status)
			continue
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("extractor: remote returned %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return decodeExtractResponse(payload)
	}
	return nil, fmt.Errorf("extractor: remote extraction failed: %w", lastErr)
}

func decodeExtractResponse(payload []byte) (descriptor.Set, error) {
	var body extractResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("extractor: decode response: %w", err)
	}
	set := make(descriptor.Set, 0, len(body.Descriptors))
	for _, encoded := range body.Descriptors {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("extractor: decode descriptor: %w", err)
		}
		set = append(set, descriptor.Descriptor(raw))
	}
	return set, nil
}
