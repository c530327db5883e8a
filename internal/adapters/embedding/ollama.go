// Package embedding provides the Ollama embedding adapter used to index and
// search the reference-material knowledge base.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyEmbedding is returned when Ollama answers without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimension the embedder is pinned to.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DefaultBatchSize is how many chunks go into one /api/embed call.
const DefaultBatchSize = 16

// Options configures an OllamaEmbedder.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// BatchSize caps the texts sent per request. <= 0 uses DefaultBatchSize.
	BatchSize int
	// Dimensions pins the expected vector length. 0 pins it to whatever
	// the first response returns.
	Dimensions int
}

// OllamaEmbedder implements ports.EmbeddingService on Ollama's batch
// /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	batchSize int
	client    *http.Client
	logger    *zap.Logger

	mu   sync.Mutex
	dims int
}

// NewOllamaEmbedder creates an OllamaEmbedder.
func NewOllamaEmbedder(opts Options, logger *zap.Logger) *OllamaEmbedder {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "nomic-embed-text"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaEmbedder{
		baseURL:   opts.BaseURL,
		model:     opts.Model,
		batchSize: opts.BatchSize,
		client:    &http.Client{Timeout: opts.Timeout},
		logger:    logger.Named("embedding"),
		dims:      opts.Dimensions,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Embed returns the embedding of a single text, typically a retrieval query.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order, batchSize texts per request. Every
// returned vector has the same length.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vectors, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Dimensions returns the pinned vector length, or 0 before the first
// successful call when none was configured.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(parsed.Embeddings), len(texts))
	}
	if err := e.checkDimensions(parsed.Embeddings); err != nil {
		return nil, err
	}

	e.logger.Debug("embedded batch",
		zap.String("model", e.model),
		zap.Int("texts", len(texts)),
		zap.Int("dimensions", len(parsed.Embeddings[0])),
		zap.Duration("duration", time.Since(start)))
	return parsed.Embeddings, nil
}

// checkDimensions pins the dimension on first use and rejects any vector
// that does not match it.
func (e *OllamaEmbedder) checkDimensions(vectors [][]float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	want := e.dims
	for i, v := range vectors {
		if len(v) == 0 {
			return ErrEmptyEmbedding
		}
		if want == 0 {
			want = len(v)
		}
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d (model %s)",
				ErrDimensionMismatch, i, len(v), want, e.model)
		}
	}
	e.dims = want
	return nil
}
