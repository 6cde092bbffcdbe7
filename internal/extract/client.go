package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const clientTimeout = 10 * time.Second

// HTTPExtractor calls the external skill-extraction service.
// Any transport or server failure maps to ErrServiceUnavailable so callers
// can degrade to the offline heuristic.
type HTTPExtractor struct {
	url    string
	client *http.Client
}

// NewHTTPExtractor constructs a client for the extraction service endpoint.
func NewHTTPExtractor(url string) *HTTPExtractor {
	return &HTTPExtractor{
		url:    url,
		client: &http.Client{Timeout: clientTimeout},
	}
}

// Extract POSTs the text and decodes the service's Analysis response.
func (e *HTTPExtractor) Extract(ctx context.Context, text string) (*Analysis, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrServiceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: extractor returned %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var a Analysis
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}
	return &a, nil
}

// ─── Fallback wrappers ──────────────────────────────────────────────────────

// FallbackExtractor tries the primary extractor and degrades to the
// heuristic on any failure, logging a warning. With a nil primary it is the
// heuristic itself.
type FallbackExtractor struct {
	primary   Extractor
	heuristic *Heuristic
}

// NewFallbackExtractor wires a primary extractor with a heuristic fallback.
func NewFallbackExtractor(primary Extractor, heuristic *Heuristic) *FallbackExtractor {
	return &FallbackExtractor{primary: primary, heuristic: heuristic}
}

// Extract implements Extractor.
func (f *FallbackExtractor) Extract(ctx context.Context, text string) (*Analysis, error) {
	if f.primary != nil {
		a, err := f.primary.Extract(ctx, text)
		if err == nil {
			return a, nil
		}
		slog.Warn("extraction service failed, using offline heuristic", "err", err)
	}
	return f.heuristic.Extract(ctx, text)
}

// FallbackGenerator mirrors FallbackExtractor for text generation.
type FallbackGenerator struct {
	primary   Generator
	heuristic *Heuristic
}

// NewFallbackGenerator wires a primary generator with a template fallback.
func NewFallbackGenerator(primary Generator, heuristic *Heuristic) *FallbackGenerator {
	return &FallbackGenerator{primary: primary, heuristic: heuristic}
}

// Generate implements Generator.
func (f *FallbackGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if f.primary != nil {
		text, err := f.primary.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		slog.Warn("text generation failed, using template fallback", "err", err)
	}
	return f.heuristic.Generate(ctx, prompt)
}
