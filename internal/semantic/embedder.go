package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const embedTimeout = 15 * time.Second

// HTTPEmbedder calls an external embedding service over HTTP. The service
// contract: POST {"input": "<text>"} to the endpoint, receive
// {"embedding": [<float>, ...]}.
type HTTPEmbedder struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPEmbedder creates an embedder client for the given endpoint.
func NewHTTPEmbedder(endpoint string) *HTTPEmbedder {
	return &HTTPEmbedder{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: embedTimeout,
		},
	}
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("post embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}
	return out.Embedding, nil
}
