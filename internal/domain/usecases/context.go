package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

// DefaultTopics are the reference-material queries issued before every
// classification call.
var DefaultTopics = []string{
	"occupancy and room category definitions for electrical load classification",
	"load density rate tables in VA per square meter by occupancy category",
	"demand factor and diversity adjustment tables",
}

// ContextGatherer fans retrieval queries out in parallel and merges the
// answers into a single context blob. Individual failures are logged and
// count as empty results.
type ContextGatherer struct {
	retriever ports.ContextRetriever
	topics    []string
	topK      int
	timeout   time.Duration
	logger    *zap.Logger
}

// NewContextGatherer creates a ContextGatherer. A nil retriever disables
// retrieval entirely.
func NewContextGatherer(
	retriever ports.ContextRetriever,
	topics []string,
	topK int,
	timeout time.Duration,
	logger *zap.Logger,
) *ContextGatherer {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextGatherer{
		retriever: retriever,
		topics:    topics,
		topK:      topK,
		timeout:   timeout,
		logger:    logger,
	}
}

// Topics returns the configured topic queries.
func (g *ContextGatherer) Topics() []string {
	return append([]string(nil), g.topics...)
}

// Gather runs every query concurrently and waits for all of them. Results
// are merged in query order and deduplicated by exact content, so the
// output does not depend on which call finished first.
func (g *ContextGatherer) Gather(ctx context.Context, queries []string) []entities.ContextChunk {
	if g.retriever == nil || len(queries) == 0 {
		return nil
	}

	results := make([][]entities.ContextChunk, len(queries))
	var eg errgroup.Group
	for i, q := range queries {
		i, q := i, q
		eg.Go(func() error {
			qctx := ctx
			if g.timeout > 0 {
				var cancel context.CancelFunc
				qctx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}

			start := time.Now()
			chunks, err := g.retriever.Retrieve(qctx, q, g.topK)
			if err != nil {
				g.logger.Warn("context retrieval failed",
					zap.String("query", q),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err))
				return nil
			}
			g.logger.Debug("context retrieved",
				zap.String("query", q),
				zap.Int("chunks", len(chunks)),
				zap.Duration("duration", time.Since(start)))
			results[i] = chunks
			return nil
		})
	}
	_ = eg.Wait()

	seen := make(map[string]bool)
	var merged []entities.ContextChunk
	for _, chunks := range results {
		for _, c := range chunks {
			if seen[c.Content] {
				continue
			}
			seen[c.Content] = true
			merged = append(merged, c)
		}
	}
	return merged
}

// JoinContext renders chunks as the free-text blob sent with a
// classification request.
func JoinContext(chunks []entities.ContextChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.Source != "" {
			parts[i] = fmt.Sprintf("[Source: %s]\n%s", c.Source, c.Content)
			continue
		}
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}
