package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HTTP scorer defaults.
const (
	DefaultScorerEndpoint = "http://localhost:9547"
	DefaultScorerModel    = "bge-reranker-base"
	DefaultScorerTimeout  = 30 * time.Second
)

// HTTPScorerConfig configures the cross-encoder service client.
type HTTPScorerConfig struct {
	// Endpoint is the scoring service URL.
	Endpoint string

	// Model is the cross-encoder model alias.
	Model string

	// Timeout bounds each scoring request; the caller's context deadline
	// still applies when it is tighter.
	Timeout time.Duration

	// SkipHealthCheck skips the startup health check (for testing).
	SkipHealthCheck bool
}

// DefaultHTTPScorerConfig returns the default scorer configuration.
func DefaultHTTPScorerConfig() HTTPScorerConfig {
	return HTTPScorerConfig{
		Endpoint: DefaultScorerEndpoint,
		Model:    DefaultScorerModel,
		Timeout:  DefaultScorerTimeout,
	}
}

// HTTPScorer implements Scorer against a cross-encoder scoring service
// exposing POST /rerank.
type HTTPScorer struct {
	client   *http.Client
	config   HTTPScorerConfig
	endpoint string

	mu     sync.RWMutex
	closed bool
}

var _ Scorer = (*HTTPScorer)(nil)

// NewHTTPScorer creates a scorer client and verifies the service is
// reachable unless cfg.SkipHealthCheck is set.
func NewHTTPScorer(ctx context.Context, cfg HTTPScorerConfig) (*HTTPScorer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultScorerEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultScorerModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultScorerTimeout
	}

	s := &HTTPScorer{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:   cfg,
		endpoint: cfg.Endpoint,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.healthCheck(checkCtx); err != nil {
			return nil, fmt.Errorf("scorer health check failed: %w", err)
		}
	}

	slog.Debug("http scorer created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model))
	return s, nil
}

func (s *HTTPScorer) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to scorer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("scorer service unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// rerankRequest is the JSON request to /rerank.
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

// rerankResponse is the JSON response from /rerank.
type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// ScoreBatch sends all (query, doc) pairs in one request and returns the
// scores in input order.
func (s *HTTPScorer) ScoreBatch(ctx context.Context, query string, docs []string) ([]float64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("scorer is closed")
	}
	s.mu.RUnlock()

	if len(docs) == 0 {
		return []float64{}, nil
	}

	payload, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: docs,
		Model:     s.config.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.endpoint+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(docs))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
	}

	slog.Debug("scorer batch complete",
		slog.Int("docs", len(docs)),
		slog.Duration("elapsed", time.Since(start)))
	return scores, nil
}

// Available checks if the scoring service is reachable.
func (s *HTTPScorer) Available(ctx context.Context) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	s.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.healthCheck(checkCtx) == nil
}

// Close releases idle connections.
func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if transport, ok := s.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
