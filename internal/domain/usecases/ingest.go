package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

// IngestUseCase loads reference documents (rate tables, code excerpts)
// into the knowledge base that backs local context retrieval.
type IngestUseCase struct {
	loader       ports.DocumentLoader
	embedder     ports.EmbeddingService
	vectorStore  ports.VectorStore
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger
}

// NewIngestUseCase creates an IngestUseCase. chunkSize and chunkOverlap are
// measured in characters.
func NewIngestUseCase(
	loader ports.DocumentLoader,
	embedder ports.EmbeddingService,
	vectorStore ports.VectorStore,
	chunkSize, chunkOverlap int,
	logger *zap.Logger,
) *IngestUseCase {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{
		loader:       loader,
		embedder:     embedder,
		vectorStore:  vectorStore,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// IngestFile loads the document at path and ingests it. It returns the
// number of chunks stored.
func (uc *IngestUseCase) IngestFile(ctx context.Context, path string) (int, error) {
	if uc.loader == nil {
		return 0, fmt.Errorf("no document loader configured")
	}
	doc, err := uc.loader.Load(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("loading %s: %w", path, err)
	}
	return uc.Ingest(ctx, doc)
}

// Ingest chunks, embeds and stores a document, replacing any chunks
// previously stored for the same document ID.
func (uc *IngestUseCase) Ingest(ctx context.Context, doc *entities.Document) (int, error) {
	chunks := uc.chunkDocument(doc)
	if len(chunks) == 0 {
		uc.logger.Debug("document has no content", zap.String("document", doc.Name))
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding chunks: got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := uc.vectorStore.Replace(ctx, doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("replacing document: %w", err)
	}

	uc.logger.Info("document ingested",
		zap.String("document", doc.Name),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Delete removes a document from the knowledge base.
func (uc *IngestUseCase) Delete(ctx context.Context, documentID string) error {
	return uc.vectorStore.Delete(ctx, documentID)
}

// chunkDocument splits content on word boundaries into chunks of at most
// chunkSize characters. Consecutive chunks share roughly chunkOverlap
// characters of trailing words. A single word longer than chunkSize is
// kept whole.
func (uc *IngestUseCase) chunkDocument(doc *entities.Document) []entities.Chunk {
	words := strings.Fields(doc.Content)
	if len(words) == 0 {
		return nil
	}

	var chunks []entities.Chunk
	start := 0
	for start < len(words) {
		end := start
		length := 0
		for end < len(words) {
			n := utf8.RuneCountInString(words[end])
			if end > start {
				n++
			}
			if end > start && length+n > uc.chunkSize {
				break
			}
			length += n
			end++
		}

		chunks = append(chunks, entities.Chunk{
			ID:         generateChunkID(doc.ID, len(chunks)),
			DocumentID: doc.ID,
			SourceDoc:  doc.Name,
			Content:    strings.Join(words[start:end], " "),
			Index:      len(chunks),
		})
		if end == len(words) {
			break
		}

		next := end
		overlap := 0
		for next-1 > start && overlap < uc.chunkOverlap {
			next--
			overlap += utf8.RuneCountInString(words[next]) + 1
		}
		start = next
	}
	return chunks
}

// generateChunkID creates a deterministic ID for a chunk.
func generateChunkID(docID string, index int) string {
	hash := sha256.Sum256([]byte(docID + "#" + strconv.Itoa(index)))
	return hex.EncodeToString(hash[:8])
}
