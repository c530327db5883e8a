// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// Classifier maps room descriptors to rate categories. The response may be
// partial or empty; missing rooms are reported as failed by the caller.
type Classifier interface {
	Classify(ctx context.Context, req entities.ClassificationRequest) ([]entities.Classification, error)
}

// ContextRetriever returns free-text reference material for a query,
// already filtered by the service's own relevance threshold.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]entities.ContextChunk, error)
}

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMService generates text responses from a language model.
type LLMService interface {
	// Generate produces a completion for the prompt. When jsonMode is set
	// the model is asked to answer with a single JSON document.
	Generate(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// VectorStore persists and queries reference-material embeddings.
type VectorStore interface {
	// Store saves chunks with their embeddings.
	Store(ctx context.Context, chunks []entities.Chunk) error

	// Search finds the most similar chunks to a query embedding.
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error)

	// Delete removes all chunks for a document.
	Delete(ctx context.Context, documentID string) error

	// Replace swaps every chunk of a document for chunks. Readers see
	// either the old set or the new one, never a mix or neither.
	Replace(ctx context.Context, documentID string, chunks []entities.Chunk) error

	// Clear removes all data from the store.
	Clear(ctx context.Context) error
}

// DocumentLoader reads reference documents for the knowledge base.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (*entities.Document, error)
	SupportedExtensions() []string
}

// DocumentParser extracts text from binary document formats.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, filename string) (string, error)
	SupportedFormats() []string
}

// RunObserver receives one notification per finished analysis run.
type RunObserver interface {
	ObserveRun(outcome string, elapsed time.Duration, rooms, failedRooms int)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// DrawingReader reads and validates a drawing file from disk.
type DrawingReader interface {
	ReadFile(path string) ([]byte, error)
}
