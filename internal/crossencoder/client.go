// Package crossencoder talks to the cross-encoder scoring service, which
// jointly scores (query, candidate) pairs for relevance.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/pkg/logger"
)

type Client struct {
	endpoint   string
	httpClient *http.Client
	available  bool
}

type scoreRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// NewClient probes the scoring service once. An unreachable service is not
// an error: the evaluator and reranker run fail-open without scores.
func NewClient(endpoint string, timeout time.Duration) *Client {
	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	resp, err := c.httpClient.Get(endpoint + "/health")
	if err != nil {
		logger.Warn("Cross-encoder service unavailable, scoring disabled",
			zap.String("endpoint", endpoint), zap.Error(err))
		return c
	}
	resp.Body.Close()

	c.available = resp.StatusCode == http.StatusOK
	if !c.available {
		logger.Warn("Cross-encoder health check failed",
			zap.Int("status", resp.StatusCode))
	} else {
		logger.Info("Cross-encoder client initialized", zap.String("endpoint", endpoint))
	}

	return c
}

func (c *Client) Available() bool {
	return c.available
}

// Score returns one relevance score per text, index-aligned with texts.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(scoreRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/score", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to score candidates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cross-encoder returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read score response: %w", err)
	}

	var scored scoreResponse
	if err := json.Unmarshal(body, &scored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal score response: %w", err)
	}

	if len(scored.Scores) != len(texts) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d texts",
			len(scored.Scores), len(texts))
	}

	return scored.Scores, nil
}
