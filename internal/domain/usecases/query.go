package usecases

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

// KnowledgeRetriever answers context queries from the local knowledge
// base. It implements ports.ContextRetriever.
type KnowledgeRetriever struct {
	embedder    ports.EmbeddingService
	vectorStore ports.VectorStore
	minScore    float64
	logger      *zap.Logger
}

// NewKnowledgeRetriever creates a KnowledgeRetriever. Hits scoring below
// minScore are dropped.
func NewKnowledgeRetriever(
	embedder ports.EmbeddingService,
	vectorStore ports.VectorStore,
	minScore float64,
	logger *zap.Logger,
) *KnowledgeRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeRetriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		minScore:    minScore,
		logger:      logger,
	}
}

// Retrieve embeds the query and returns the best matching chunks.
func (r *KnowledgeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]entities.ContextChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.vectorStore.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	chunks := make([]entities.ContextChunk, 0, len(results))
	for _, res := range results {
		if res.Score < r.minScore {
			continue
		}
		source := res.SourceDoc
		if source == "" {
			source = res.Chunk.SourceDoc
		}
		chunks = append(chunks, entities.ContextChunk{Content: res.Chunk.Content, Source: source})
	}
	r.logger.Debug("knowledge search",
		zap.String("query", query),
		zap.Int("hits", len(results)),
		zap.Int("kept", len(chunks)))
	return chunks, nil
}
