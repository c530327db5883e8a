// Package parser provides document parsing adapters.
// ServiceParser delegates PDF text extraction to an external HTTP service.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServiceParser implements ports.DocumentParser against a text-extraction
// service exposing POST /parse and GET /health.
type ServiceParser struct {
	serviceURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewServiceParser creates a parser for the service at serviceURL.
func NewServiceParser(serviceURL string, timeout time.Duration, logger *zap.Logger) *ServiceParser {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceParser{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.Named("parser"),
	}
}

type parseResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
	Error string `json:"error,omitempty"`
}

// Parse extracts text from document bytes.
func (p *ServiceParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", filename)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("extracting %s: %s", filename, result.Error)
	}

	p.logger.Debug("document parsed",
		zap.String("file", filename),
		zap.Int("pages", result.Pages),
		zap.Int("chars", len(result.Text)))
	return result.Text, nil
}

// SupportedFormats returns formats this parser handles.
func (p *ServiceParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// IsServiceHealthy checks if the extraction service is running.
func (p *ServiceParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
