package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/UnknownOlympus/geomap/internal/models"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"
)

// Client talks to the remote Geospatial Embeddings Platform over HTTP/JSON.
// All methods treat the platform as an opaque service: non-2xx statuses and
// malformed payloads surface as errors for the caller to degrade on.
type Client struct {
	client  HTTPClient    // HTTP client for making requests
	baseURL string        // Base URL of the platform API
	log     *slog.Logger  // Logger for logging operations
	limiter *rate.Limiter // Rate limiter for outbound requests
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Common errors for the platform client.
var (
	ErrEmptyQuery    = errors.New("platform client got empty query text")
	ErrNoFeatures    = errors.New("platform client got a nil feature list")
	ErrUnexpectedAPI = errors.New("platform API returned unexpected status")
)

// searchRequest is the wire shape of a semantic search call.
type searchRequest struct {
	QueryText string `json:"query_text"`
	K         int    `json:"k"`
}

// embedRequest is the wire shape of a vector embedding call.
type embedRequest struct {
	Features []*geojson.Feature `json:"features"`
}

// EmbedResponse summarizes a successful embedding call.
type EmbedResponse struct {
	FeatureCount int            `json:"feature_count"` // FeatureCount is the number of embedded features.
	EmbeddingIDs []string       `json:"embedding_ids"` // EmbeddingIDs are the platform-assigned identifiers.
	ModelInfo    map[string]any `json:"model_info"`    // ModelInfo describes the embedding model used.
}

// NewClient creates a platform client with a default HTTP client.
func NewClient(baseURL string, timeout time.Duration, rateLimit int, log *slog.Logger) *Client {
	if rateLimit <= 0 {
		rateLimit = 10
		log.Warn("Rate limit for platform API not set, set a default value", "value", rateLimit)
	}

	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
	}
}

// NewClientWithHTTP allows injecting a custom HTTP client.
// Useful for testing with mocked transports.
func NewClientWithHTTP(client HTTPClient, baseURL string, limiter *rate.Limiter, log *slog.Logger) *Client {
	return &Client{
		client:  client,
		baseURL: baseURL,
		log:     log,
		limiter: limiter,
	}
}

// ListModels calls the model listing endpoint. The body is discarded; the call
// exists as a liveness probe, so only transport and status failures matter.
func (c *Client) ListModels(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/embed/vector/models", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d on model listing", ErrUnexpectedAPI, resp.StatusCode)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// SemanticSearch posts the query to the semantic search endpoint and returns the
// ranked results. The result order and scores are passed through untouched.
func (c *Client) SemanticSearch(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	c.log.DebugContext(ctx, "Searching platform", "query", query, "k", topK)

	resp, err := c.do(ctx, http.MethodPost, "/search/semantic", searchRequest{QueryText: query, K: topK})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		c.log.ErrorContext(ctx, "Platform search error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: %d on semantic search", ErrUnexpectedAPI, resp.StatusCode)
	}

	var results []models.SearchResult
	if err = json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	c.log.DebugContext(ctx, "Platform search finished", "query", query, "results", len(results))

	return results, nil
}

// EmbedFeatures posts a feature array to the vector embedding endpoint.
// Exactly one request is issued per call; the features are sent as parsed,
// without reordering or filtering. An empty array is a legal payload and is
// forwarded as such; only a nil list is a caller error.
func (c *Client) EmbedFeatures(ctx context.Context, features []*geojson.Feature) (*EmbedResponse, error) {
	if features == nil {
		return nil, ErrNoFeatures
	}

	c.log.DebugContext(ctx, "Embedding features", "count", len(features))

	resp, err := c.do(ctx, http.MethodPost, "/embed/vector/", embedRequest{Features: features})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		c.log.ErrorContext(ctx, "Platform embed error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: %d on vector embedding", ErrUnexpectedAPI, resp.StatusCode)
	}

	// The response body is informational only; a partial decode is not fatal.
	var parsed EmbedResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.DebugContext(ctx, "Could not decode embed response body", "error", err)
		return &EmbedResponse{FeatureCount: len(features)}, nil
	}

	return &parsed, nil
}

// Stats fetches the platform statistics document.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, "/stats", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d on stats", ErrUnexpectedAPI, resp.StatusCode)
	}

	var stats map[string]any
	if err = json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats response: %w", err)
	}

	return stats, nil
}

// do builds and executes one request against the platform, honoring the rate
// limiter and encoding the payload as JSON when present.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	reqURL, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("failed to build request URL: %w", err)
	}

	var body io.Reader
	if payload != nil {
		encoded, errMarshal := json.Marshal(payload)
		if errMarshal != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", errMarshal)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute platform request: %w", err)
	}

	return resp, nil
}
