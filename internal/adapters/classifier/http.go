// Package classifier provides adapters behind ports.Classifier: a remote
// classification service spoken to over HTTP, and a prompt-driven
// classifier running on a local language model.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// HTTPClassifier posts classification requests to a remote service.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPClassifier creates a classifier for the service at endpoint. An
// empty apiKey sends no Authorization header.
func NewHTTPClassifier(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("classifier"),
	}
}

// classificationResponse is the service envelope. A bare JSON array of
// classifications is accepted too.
type classificationResponse struct {
	Classifications []entities.Classification `json:"classifications"`
}

// Classify sends the request and returns the records the service issued.
func (c *HTTPClassifier) Classify(ctx context.Context, req entities.ClassificationRequest) ([]entities.Classification, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling classification service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classification service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	records, err := decodeClassifications(raw)
	if err != nil {
		return nil, err
	}
	kept := validRecords(records, c.logger)
	c.logger.Debug("classification response",
		zap.Int("requested", len(req.Rooms)),
		zap.Int("returned", len(records)),
		zap.Int("kept", len(kept)),
		zap.Duration("duration", time.Since(start)))
	return kept, nil
}

// decodeClassifications accepts either the envelope or a bare array.
func decodeClassifications(raw []byte) ([]entities.Classification, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []entities.Classification
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decoding classifications: %w", err)
		}
		return list, nil
	}
	var env classificationResponse
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decoding classifications: %w", err)
	}
	return env.Classifications, nil
}

// validRecords drops records that cannot be applied: no name, a negative
// rate, or a demand factor outside [0, 1]. Dropped rooms surface as
// unclassified.
func validRecords(records []entities.Classification, logger *zap.Logger) []entities.Classification {
	kept := make([]entities.Classification, 0, len(records))
	for _, r := range records {
		switch {
		case strings.TrimSpace(r.Name) == "":
			logger.Warn("dropping classification without a name", zap.String("category", r.Category))
		case r.LoadDensity < 0:
			logger.Warn("dropping classification with negative load density",
				zap.String("room", r.Name), zap.Float64("load_density", r.LoadDensity))
		case r.DemandFactor < 0 || r.DemandFactor > 1:
			logger.Warn("dropping classification with demand factor out of range",
				zap.String("room", r.Name), zap.Float64("demand_factor", r.DemandFactor))
		default:
			kept = append(kept, r)
		}
	}
	return kept
}
