// Package llm provides the Ollama completion adapter behind
// ports.LLMService.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OllamaLLMAdapter implements ports.LLMService using Ollama API.
type OllamaLLMAdapter struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
	logger      *zap.Logger
}

// NewOllamaLLMAdapter creates a new Ollama LLM adapter. Requests are sent
// with temperature 0.
func NewOllamaLLMAdapter(baseURL, model string, timeout time.Duration, logger *zap.Logger) *OllamaLLMAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaLLMAdapter{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("llm"),
	}
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate produces a single non-streamed completion. With jsonMode the
// model is constrained to emit JSON.
func (a *OllamaLLMAdapter) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:   a.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]interface{}{"temperature": a.temperature},
	}
	if jsonMode {
		reqBody.Format = "json"
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	a.logger.Debug("completion generated",
		zap.String("model", a.model),
		zap.Bool("json", jsonMode),
		zap.Int("chars", len(genResp.Response)),
		zap.Duration("duration", time.Since(start)))
	return genResp.Response, nil
}
