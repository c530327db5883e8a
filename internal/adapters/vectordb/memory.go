// Package vectordb provides knowledge-base stores implementing
// ports.VectorStore: an in-memory store and a persistent SQLite store.
package vectordb

import (
	"context"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// InMemoryStore keeps chunks in process memory. Contents are lost on exit.
type InMemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]entities.Chunk // chunkID -> chunk
	docs   map[string][]string       // docID -> []chunkID
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chunks: make(map[string]entities.Chunk),
		docs:   make(map[string][]string),
	}
}

// Store saves chunks with their embeddings.
func (s *InMemoryStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(chunks)
	return nil
}

// Replace swaps the chunks of documentID for chunks under one lock.
func (s *InMemoryStore) Replace(ctx context.Context, documentID string, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drop(documentID)
	s.put(chunks)
	return nil
}

func (s *InMemoryStore) put(chunks []entities.Chunk) {
	for _, chunk := range chunks {
		if _, exists := s.chunks[chunk.ID]; !exists {
			s.docs[chunk.DocumentID] = append(s.docs[chunk.DocumentID], chunk.ID)
		}
		s.chunks[chunk.ID] = chunk
	}
}

func (s *InMemoryStore) drop(documentID string) {
	for _, id := range s.docs[documentID] {
		delete(s.chunks, id)
	}
	delete(s.docs, documentID)
}

// Search finds the topK chunks most similar to embedding.
func (s *InMemoryStore) Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]entities.QueryResult, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		candidates = append(candidates, entities.QueryResult{
			Chunk:     chunk,
			Score:     cosineSimilarity(embedding, chunk.Embedding),
			SourceDoc: chunk.SourceDoc,
		})
	}
	return rank(candidates, topK), nil
}

// Delete removes all chunks for a document.
func (s *InMemoryStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drop(documentID)
	return nil
}

// Clear removes all data from the store.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = make(map[string]entities.Chunk)
	s.docs = make(map[string][]string)
	return nil
}

// ChunkCount returns the number of stored chunks.
func (s *InMemoryStore) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// rank orders results by descending score, then chunk ID, and keeps the
// first topK.
func rank(results []entities.QueryResult, topK int) []entities.QueryResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	x := make([]float64, len(a))
	y := make([]float64, len(b))
	for i := range a {
		x[i] = float64(a[i])
		y[i] = float64(b[i])
	}
	normA, normB := floats.Norm(x, 2), floats.Norm(y, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(x, y) / (normA * normB)
}
