// Package usecases contains application business rules.
// They orchestrate the domain packages and depend only on port interfaces.
package usecases

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/drawing"
	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/geometry"
	"github.com/0xcro3dile/roomload-go/internal/domain/labeling"
	"github.com/0xcro3dile/roomload-go/internal/domain/loads"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
	"github.com/0xcro3dile/roomload-go/internal/domain/rooms"
)

// Run outcomes reported to the RunObserver.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// AnalyzeConfig tunes the pipeline.
type AnalyzeConfig struct {
	CoincidentFactor float64
	LabelTolerance   float64
	RetryZeroRates   bool
	ClassifyTimeout  time.Duration
}

// AnalyzeOptions are per-request preferences.
type AnalyzeOptions struct {
	IncludeClimateControl bool
}

// AnalyzeUseCase turns one drawing into a load report.
type AnalyzeUseCase struct {
	classifier ports.Classifier
	gatherer   *ContextGatherer
	matcher    *labeling.Matcher
	assembler  *loads.Assembler
	observer   ports.RunObserver
	cfg        AnalyzeConfig
	logger     *zap.Logger
}

// NewAnalyzeUseCase creates an AnalyzeUseCase. The gatherer and observer
// may be nil.
func NewAnalyzeUseCase(
	classifier ports.Classifier,
	gatherer *ContextGatherer,
	observer ports.RunObserver,
	cfg AnalyzeConfig,
	logger *zap.Logger,
) *AnalyzeUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = NewContextGatherer(nil, nil, 0, 0, logger)
	}
	matcher := labeling.NewMatcher()
	if cfg.LabelTolerance > 0 {
		matcher.Tolerance = cfg.LabelTolerance
	}
	return &AnalyzeUseCase{
		classifier: classifier,
		gatherer:   gatherer,
		matcher:    matcher,
		assembler:  loads.NewAssembler(cfg.CoincidentFactor),
		observer:   observer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Analyze runs the full pipeline. Only an unreadable drawing or a drawing
// without rooms returns an error; retrieval and classification problems
// surface as failed rooms inside a well-formed report.
func (uc *AnalyzeUseCase) Analyze(ctx context.Context, content []byte, opts AnalyzeOptions) (*entities.Report, error) {
	start := time.Now()
	log := uc.logger.With(zap.String("run_id", uuid.NewString()))

	report, err := uc.analyze(ctx, content, opts, log)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("analysis aborted", zap.Error(err), zap.Duration("duration", elapsed))
		uc.observe(OutcomeFailed, elapsed, 0, 0)
		return nil, err
	}

	failed := 0
	for _, r := range report.Rooms {
		if r.Failed() {
			failed++
		}
	}
	outcome := OutcomeSuccess
	if report.HasFailedRooms {
		outcome = OutcomeDegraded
	}
	log.Info("analysis complete",
		zap.Int("rooms", report.TotalRooms),
		zap.Int("failed_rooms", failed),
		zap.String("units", report.UnitsDetected),
		zap.Float64("demand_kva", report.TotalDemandLoadKVA),
		zap.Duration("duration", elapsed))
	uc.observe(outcome, elapsed, report.TotalRooms, failed)
	return report, nil
}

func (uc *AnalyzeUseCase) analyze(ctx context.Context, content []byte, opts AnalyzeOptions, log *zap.Logger) (*entities.Report, error) {
	ex, err := drawing.Extract(string(content))
	if err != nil {
		return nil, fmt.Errorf("extracting entities: %w", err)
	}
	log.Debug("entities extracted",
		zap.Int("texts", len(ex.Texts)),
		zap.Int("boundaries", len(ex.Boundaries)),
		zap.Int("skipped_mesh", ex.SkippedMesh),
		zap.Int("skipped_layer", ex.SkippedLayer))

	polys := geometry.Build(ex.VertexLists())
	units := geometry.DetectUnits(polys, ex.UnitHint == drawing.UnitHintMillimeters)

	raw, err := uc.matcher.Match(polys, ex.Texts, units)
	if err != nil {
		return nil, fmt.Errorf("matching labels: %w", err)
	}
	log.Debug("rooms matched", zap.Int("rooms", len(raw)), zap.String("units", units.Name))

	agg := rooms.Aggregate(raw)
	classes := uc.classifyAll(ctx, agg.Unique, opts, log)

	assembled, failed := uc.assembler.Assemble(raw, agg.Resolved, classes)
	summary := loads.Summarize(assembled)

	return &entities.Report{
		Rooms:                 assembled,
		TotalConnectedLoad:    summary.TotalConnectedLoad,
		TotalDemandLoad:       summary.TotalDemandLoad,
		TotalDemandLoadKVA:    summary.TotalDemandLoadKVA,
		EffectiveDemandFactor: summary.EffectiveDemandFactor,
		CategoryBreakdown:     summary.CategoryBreakdown,
		TotalRooms:            len(assembled),
		UnitsDetected:         units.Name,
		HasFailedRooms:        failed,
	}, nil
}

// classifyAll gathers context, classifies every unique room type once and,
// when enabled, retries the types that came back with a zero rate.
func (uc *AnalyzeUseCase) classifyAll(ctx context.Context, unique []entities.UniqueRoomInput, opts AnalyzeOptions, log *zap.Logger) []entities.Classification {
	queries := append(uc.gatherer.Topics(), roomTypesQuery(unique))
	chunks := uc.gatherer.Gather(ctx, queries)

	req := entities.ClassificationRequest{
		Rooms:                 classificationRooms(unique),
		Context:               JoinContext(chunks),
		IncludeClimateControl: opts.IncludeClimateControl,
	}
	classes, err := uc.classify(ctx, req)
	if err != nil {
		log.Warn("classification failed, every room is unclassified", zap.Error(err))
		return nil
	}
	log.Debug("rooms classified",
		zap.Int("requested", len(req.Rooms)),
		zap.Int("returned", len(classes)),
		zap.Int("context_chunks", len(chunks)))

	if !uc.cfg.RetryZeroRates {
		return classes
	}
	return uc.retryZeroRates(ctx, unique, classes, opts, log)
}

// retryZeroRates makes one extra retrieval and classification round trip
// scoped to the room types whose rate came back as zero. Non-zero
// replacements overwrite the originals; nothing else changes.
func (uc *AnalyzeUseCase) retryZeroRates(ctx context.Context, unique []entities.UniqueRoomInput, classes []entities.Classification, opts AnalyzeOptions, log *zap.Logger) []entities.Classification {
	byKey := make(map[string]entities.UniqueRoomInput, len(unique))
	for _, u := range unique {
		byKey[u.Key] = u
	}

	var retry []entities.UniqueRoomInput
	var categories []string
	seenKey := make(map[string]bool)
	seenCat := make(map[string]bool)
	for _, c := range classes {
		if c.LoadDensity != 0 {
			continue
		}
		key := rooms.Normalize(c.Name)
		u, ok := byKey[key]
		if !ok || seenKey[key] {
			continue
		}
		seenKey[key] = true
		retry = append(retry, u)
		if c.Category != "" && !seenCat[c.Category] {
			seenCat[c.Category] = true
			categories = append(categories, c.Category)
		}
	}
	if len(retry) == 0 {
		return classes
	}
	sort.Strings(categories)

	query := "load density rates for " + strings.Join(roomNames(retry), ", ")
	if len(categories) > 0 {
		query = "load density rates for categories " + strings.Join(categories, ", ")
	}
	chunks := uc.gatherer.Gather(ctx, []string{query})
	req := entities.ClassificationRequest{
		Rooms:                 classificationRooms(retry),
		Context:               JoinContext(chunks),
		IncludeClimateControl: opts.IncludeClimateControl,
	}
	replacements, err := uc.classify(ctx, req)
	if err != nil {
		log.Warn("zero-rate retry failed", zap.Int("rooms", len(retry)), zap.Error(err))
		return classes
	}

	better := make(map[string]entities.Classification)
	for _, r := range replacements {
		key := rooms.Normalize(r.Name)
		if r.LoadDensity == 0 || !seenKey[key] {
			continue
		}
		if _, dup := better[key]; !dup {
			better[key] = r
		}
	}

	out := make([]entities.Classification, len(classes))
	copy(out, classes)
	for i, c := range out {
		if c.LoadDensity != 0 {
			continue
		}
		if r, ok := better[rooms.Normalize(c.Name)]; ok {
			out[i] = r
		}
	}
	log.Info("zero-rate retry finished",
		zap.Int("retried", len(retry)),
		zap.Int("replaced", len(better)))
	return out
}

func (uc *AnalyzeUseCase) classify(ctx context.Context, req entities.ClassificationRequest) ([]entities.Classification, error) {
	if uc.classifier == nil {
		return nil, fmt.Errorf("no classifier configured")
	}
	if uc.cfg.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.ClassifyTimeout)
		defer cancel()
	}
	return uc.classifier.Classify(ctx, req)
}

func (uc *AnalyzeUseCase) observe(outcome string, elapsed time.Duration, total, failed int) {
	if uc.observer != nil {
		uc.observer.ObserveRun(outcome, elapsed, total, failed)
	}
}

func classificationRooms(unique []entities.UniqueRoomInput) []entities.ClassificationRoom {
	out := make([]entities.ClassificationRoom, len(unique))
	for i, u := range unique {
		out[i] = entities.ClassificationRoom{
			Name:               u.RepresentativeName,
			RepresentativeArea: u.RepresentativeArea,
			TotalAreaForType:   u.TotalAreaForType,
			InstanceCount:      u.InstanceCount,
			LabelCandidates:    u.LabelCandidates,
		}
	}
	return out
}

func roomNames(unique []entities.UniqueRoomInput) []string {
	names := make([]string, len(unique))
	for i, u := range unique {
		names[i] = u.Key
	}
	return names
}

func roomTypesQuery(unique []entities.UniqueRoomInput) string {
	return "electrical load classification for room types: " + strings.Join(roomNames(unique), ", ")
}
