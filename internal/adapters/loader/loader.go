// Package loader reads input files: floor-plan drawings for analysis and
// reference documents for the knowledge base.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

// TextLoader loads plain text documents (.txt, .md).
type TextLoader struct{}

// NewTextLoader creates a new text document loader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text document from the given path.
func (l *TextLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newDocument(path, string(content)), nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// PDFLoader loads PDF documents through a ports.DocumentParser.
type PDFLoader struct {
	parser ports.DocumentParser
}

// NewPDFLoader creates a PDF loader backed by parser.
func NewPDFLoader(parser ports.DocumentParser) *PDFLoader {
	return &PDFLoader{parser: parser}
}

// Load reads a PDF and extracts its text.
func (l *PDFLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text, err := l.parser.Parse(ctx, data, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parsing pdf: %w", err)
	}
	return newDocument(path, cleanExtractedText(text)), nil
}

// SupportedExtensions returns file extensions.
func (l *PDFLoader) SupportedExtensions() []string {
	return []string{".pdf"}
}

// MultiLoader dispatches to a loader by file extension.
type MultiLoader struct {
	loaders map[string]ports.DocumentLoader
	parser  ports.DocumentParser
}

// NewMultiLoader handles text formats, plus PDF when parser is non-nil.
func NewMultiLoader(parser ports.DocumentParser) *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]ports.DocumentLoader), parser: parser}
	m.register(NewTextLoader())
	if parser != nil {
		m.register(NewPDFLoader(parser))
	}
	return m
}

func (m *MultiLoader) register(l ports.DocumentLoader) {
	for _, ext := range l.SupportedExtensions() {
		m.loaders[ext] = l
	}
}

// Load dispatches to the appropriate loader based on extension.
func (m *MultiLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	return l.Load(ctx, path)
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has a supported extension.
func (m *MultiLoader) Supports(path string) bool {
	_, ok := m.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadBytes builds a document from uploaded content. The ID derives from
// name, so uploading the same name again replaces the earlier upload.
func (m *MultiLoader) LoadBytes(ctx context.Context, name string, data []byte) (*entities.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := m.loaders[ext]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}

	content := string(data)
	if ext == ".pdf" {
		text, err := m.parser.Parse(ctx, data, filepath.Base(name))
		if err != nil {
			return nil, fmt.Errorf("parsing pdf: %w", err)
		}
		content = cleanExtractedText(text)
	}

	now := time.Now()
	hash := sha256.Sum256([]byte("upload:" + filepath.Base(name)))
	return &entities.Document{
		ID:        hex.EncodeToString(hash[:8]),
		Name:      filepath.Base(name),
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func newDocument(path, content string) *entities.Document {
	modTime := time.Now()
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime()
	}
	return &entities.Document{
		ID:        generateDocID(path),
		Name:      filepath.Base(path),
		Path:      path,
		Content:   content,
		CreatedAt: modTime,
		UpdatedAt: time.Now(),
	}
}

// generateDocID creates a deterministic ID for a document.
func generateDocID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

// cleanExtractedText drops control characters left over from extraction.
func cleanExtractedText(content string) string {
	var cleaned strings.Builder
	for _, r := range content {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			cleaned.WriteRune(r)
		}
	}
	return strings.TrimSpace(cleaned.String())
}
