package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// SQLiteStore implements ports.VectorStore on a single SQLite file.
// Search scores every stored chunk.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) knowledge.db under dataDir.
func NewSQLiteStore(dataDir string, logger *zap.Logger) (*SQLiteStore, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "knowledge.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{db: db, dbPath: dbPath, logger: logger.Named("knowledge")}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	store.logger.Debug("knowledge store opened", zap.String("path", dbPath))
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		source_doc TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Store saves chunks with their embeddings in one transaction.
func (s *SQLiteStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace deletes the chunks of documentID and inserts chunks in one
// transaction. On error the previous chunks are left untouched.
func (s *SQLiteStore) Replace(ctx context.Context, documentID string, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []entities.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, document_id, source_doc, content, chunk_index, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			chunk.ID,
			chunk.DocumentID,
			chunk.SourceDoc,
			chunk.Content,
			chunk.Index,
			embeddingJSON,
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

// Search returns the topK chunks most similar to embedding.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, source_doc, content, chunk_index, embedding
		FROM chunks
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var candidates []entities.QueryResult
	skipped := 0
	for rows.Next() {
		var chunk entities.Chunk
		var embeddingJSON []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.SourceDoc, &chunk.Content, &chunk.Index, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal(embeddingJSON, &chunk.Embedding); err != nil {
			skipped++
			continue
		}
		candidates = append(candidates, entities.QueryResult{
			Chunk:     chunk,
			Score:     cosineSimilarity(embedding, chunk.Embedding),
			SourceDoc: chunk.SourceDoc,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	if skipped > 0 {
		s.logger.Warn("skipped chunks with corrupt embeddings", zap.Int("count", skipped))
	}
	return rank(candidates, topK), nil
}

// Delete removes all chunks for a document.
func (s *SQLiteStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	return err
}

// Clear removes all data from the store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks")
	return err
}

// ChunkCount returns the number of stored chunks.
func (s *SQLiteStore) ChunkCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
