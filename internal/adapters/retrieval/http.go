// Package retrieval provides context-retrieval adapters: a client for a
// remote retrieval service and a bounded cache that decorates any
// ports.ContextRetriever.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// HTTPRetriever queries a remote context-retrieval service.
type HTTPRetriever struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPRetriever creates a retriever for the service at endpoint.
func NewHTTPRetriever(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPRetriever {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPRetriever{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("retrieval"),
	}
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

type retrieveResponse struct {
	Chunks []entities.ContextChunk `json:"chunks"`
}

// Retrieve implements ports.ContextRetriever.
func (r *HTTPRetriever) Retrieve(ctx context.Context, query string, topK int) ([]entities.ContextChunk, error) {
	body, err := json.Marshal(retrieveRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling retrieval service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval service returned status %d", resp.StatusCode)
	}

	var out retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	r.logger.Debug("retrieved context",
		zap.String("query", query),
		zap.Int("chunks", len(out.Chunks)),
		zap.Duration("duration", time.Since(start)))
	return out.Chunks, nil
}
