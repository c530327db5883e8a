package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

// LLMClassifier asks a language model to classify rooms against the
// retrieved reference material.
type LLMClassifier struct {
	llm    ports.LLMService
	logger *zap.Logger
}

// NewLLMClassifier creates an LLMClassifier.
func NewLLMClassifier(llm ports.LLMService, logger *zap.Logger) *LLMClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMClassifier{llm: llm, logger: logger.Named("classifier")}
}

// Classify prompts the model in JSON mode and decodes its answer.
func (c *LLMClassifier) Classify(ctx context.Context, req entities.ClassificationRequest) ([]entities.Classification, error) {
	answer, err := c.llm.Generate(ctx, buildPrompt(req), true)
	if err != nil {
		return nil, fmt.Errorf("generating classifications: %w", err)
	}

	records, err := decodeClassifications([]byte(stripFences(answer)))
	if err != nil {
		return nil, err
	}
	kept := validRecords(records, c.logger)
	c.logger.Debug("model classifications",
		zap.Int("requested", len(req.Rooms)),
		zap.Int("kept", len(kept)))
	return kept, nil
}

func buildPrompt(req entities.ClassificationRequest) string {
	var sb strings.Builder
	sb.WriteString("You classify rooms of a building for an electrical load estimate.\n")
	sb.WriteString("Use only the reference material below to choose each room's category, ")
	sb.WriteString("load density in VA per square meter and demand factor between 0 and 1.\n\n")

	sb.WriteString("Reference material:\n")
	if strings.TrimSpace(req.Context) == "" {
		sb.WriteString("(none available, use generally accepted values and say so in the rationale)\n")
	} else {
		sb.WriteString(req.Context)
		sb.WriteString("\n")
	}

	if req.IncludeClimateControl {
		sb.WriteString("\nInclude heating, ventilation and air-conditioning load in each density.\n")
	} else {
		sb.WriteString("\nExclude heating, ventilation and air-conditioning load from each density.\n")
	}

	sb.WriteString("\nRooms:\n")
	for _, r := range req.Rooms {
		fmt.Fprintf(&sb, "- name: %q, representative area: %.2f m2, total area: %.2f m2, instances: %d",
			r.Name, r.RepresentativeArea, r.TotalAreaForType, r.InstanceCount)
		if len(r.LabelCandidates) > 1 {
			fmt.Fprintf(&sb, ", other labels nearby: %s", strings.Join(r.LabelCandidates, "; "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nAnswer with one JSON object of the form ")
	sb.WriteString(`{"classifications":[{"name":"<room name exactly as given>","category":"","categoryDescription":"",`)
	sb.WriteString(`"loadDensity":0,"demandFactor":0,"loadsIncluded":"","climateControlIncluded":false,"codeReference":"","rationale":""}]}`)
	sb.WriteString(" with one entry per room.\n")
	return sb.String()
}

// stripFences removes a surrounding Markdown code fence if the model added
// one despite JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
