package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Upload validation errors.
var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
	ErrTooLarge        = errors.New("file exceeds size limit")
)

// DefaultMaxDrawingBytes caps drawing size at 50 MiB.
const DefaultMaxDrawingBytes int64 = 50 << 20

// DrawingExtension is the only accepted drawing format.
const DrawingExtension = ".dxf"

// DrawingLoader checks and reads floor-plan drawings.
type DrawingLoader struct {
	MaxBytes int64
}

// NewDrawingLoader creates a loader with the given ceiling, or the default
// when maxBytes <= 0.
func NewDrawingLoader(maxBytes int64) *DrawingLoader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDrawingBytes
	}
	return &DrawingLoader{MaxBytes: maxBytes}
}

// IsDrawing reports whether name carries the drawing extension.
func IsDrawing(name string) bool {
	return strings.EqualFold(filepath.Ext(name), DrawingExtension)
}

// Validate checks a drawing's name and size before it is read.
func (l *DrawingLoader) Validate(name string, size int64) error {
	if !IsDrawing(name) {
		return fmt.Errorf("%w: %q, expected %s", ErrUnsupportedFile, filepath.Ext(name), DrawingExtension)
	}
	if size == 0 {
		return ErrEmptyFile
	}
	if size > l.MaxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, l.MaxBytes)
	}
	return nil
}

// ReadFile validates and reads the drawing at path.
func (l *DrawingLoader) ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := l.Validate(path, info.Size()); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// ReadAll reads a drawing from r, enforcing the size ceiling on the bytes
// actually read. Used when the size is not known up front.
func (l *DrawingLoader) ReadAll(name string, r io.Reader) ([]byte, error) {
	if !IsDrawing(name) {
		return nil, l.Validate(name, 1)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if err := l.Validate(name, int64(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}
