package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/drawing"
	"github.com/0xcro3dile/roomload-go/internal/domain/drawing/drawingtest"
	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/labeling"
	"github.com/0xcro3dile/roomload-go/internal/domain/loads"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClassifier answers each call with the next response in line.
type fakeClassifier struct {
	responses [][]entities.Classification
	err       error
	requests  []entities.ClassificationRequest
}

func (f *fakeClassifier) Classify(ctx context.Context, req entities.ClassificationRequest) ([]entities.Classification, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.requests) > len(f.responses) {
		return nil, nil
	}
	return f.responses[len(f.requests)-1], nil
}

// fakeRetriever answers from a fixed table and records queries.
type fakeRetriever struct {
	mu      sync.Mutex
	answers map[string][]entities.ContextChunk
	fail    map[string]bool
	delay   map[string]time.Duration
	block   map[string]bool
	queries []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]entities.ContextChunk, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.block[query] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d := f.delay[query]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[query] {
		return nil, errors.New("retrieval service unavailable")
	}
	return f.answers[query], nil
}

func (f *fakeRetriever) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type runRecord struct {
	outcome       string
	rooms, failed int
}

type recordingObserver struct {
	runs []runRecord
}

func (o *recordingObserver) ObserveRun(outcome string, elapsed time.Duration, rooms, failed int) {
	o.runs = append(o.runs, runRecord{outcome: outcome, rooms: rooms, failed: failed})
}

func officeAndStore() []byte {
	return drawingtest.NewPlan(drawing.InsUnitsMeters).
		Room("OFFICE", 0, 0, 5, 4).
		Room("STORE", 10, 0, 2, 5).
		Bytes()
}

var (
	officeRate = entities.Classification{Name: "OFFICE", Category: "C2", CategoryDescription: "Offices", LoadDensity: 40, DemandFactor: 0.6}
	storeRate  = entities.Classification{Name: "store", Category: "C1", CategoryDescription: "Storage", LoadDensity: 30, DemandFactor: 0.6}
)

func newAnalyzer(c *fakeClassifier, r *fakeRetriever, obs *recordingObserver, cfg AnalyzeConfig) *AnalyzeUseCase {
	var gatherer *ContextGatherer
	if r != nil {
		gatherer = NewContextGatherer(r, []string{"categories", "rates"}, 3, time.Second, zap.NewNop())
	}
	var observer ports.RunObserver
	if obs != nil {
		observer = obs
	}
	return NewAnalyzeUseCase(c, gatherer, observer, cfg, zap.NewNop())
}

func TestAnalyze_ProducesReport(t *testing.T) {
	classifier := &fakeClassifier{responses: [][]entities.Classification{{officeRate, storeRate}}}
	retriever := &fakeRetriever{answers: map[string][]entities.ContextChunk{
		"categories": {{Content: "C1 covers storage", Source: "code.md"}},
		"rates":      {{Content: "C2 is 40 VA/m2"}, {Content: "C1 covers storage"}},
	}}
	obs := &recordingObserver{}

	report, err := newAnalyzer(classifier, retriever, obs, AnalyzeConfig{}).
		Analyze(context.Background(), officeAndStore(), AnalyzeOptions{IncludeClimateControl: true})
	require.NoError(t, err)

	assert.Equal(t, "meters", report.UnitsDetected)
	assert.Equal(t, 2, report.TotalRooms)
	assert.False(t, report.HasFailedRooms)
	assert.Equal(t, 1100.0, report.TotalConnectedLoad)
	assert.Equal(t, 660.0, report.TotalDemandLoad)
	assert.Equal(t, 0.66, report.TotalDemandLoadKVA)
	assert.Equal(t, 0.6, report.EffectiveDemandFactor)
	require.Len(t, report.CategoryBreakdown, 2)
	assert.Equal(t, "C1", report.CategoryBreakdown[0].Category)

	office := report.Rooms[0]
	assert.Equal(t, "OFFICE", office.Label)
	assert.Equal(t, 20.0, office.Area)
	assert.Equal(t, 800.0, *office.ConnectedLoad)
	assert.Equal(t, 480.0, *office.DemandLoad)

	require.Len(t, classifier.requests, 1)
	req := classifier.requests[0]
	assert.True(t, req.IncludeClimateControl)
	require.Len(t, req.Rooms, 2)
	assert.Equal(t, "OFFICE", req.Rooms[0].Name)
	assert.Equal(t, 1, req.Rooms[0].InstanceCount)
	assert.Equal(t, "[Source: code.md]\nC1 covers storage\n\nC2 is 40 VA/m2", req.Context)

	queries := retriever.seen()
	assert.Len(t, queries, 3)
	assert.Contains(t, queries, "electrical load classification for room types: OFFICE, STORE")

	assert.Equal(t, []runRecord{{outcome: OutcomeSuccess, rooms: 2}}, obs.runs)
}

func TestAnalyze_DittoRoomsShareOneClassification(t *testing.T) {
	plan := drawingtest.NewPlan(drawing.InsUnitsMeters).
		Room("LOUNGE", 0, 0, 4, 5).
		Room(`"`, 10, 0, 4, 4).
		Room(`"`, 20, 0, 2, 5).
		Bytes()
	classifier := &fakeClassifier{responses: [][]entities.Classification{{
		{Name: "LOUNGE", Category: "R1", LoadDensity: 10, DemandFactor: 1},
	}}}

	report, err := newAnalyzer(classifier, nil, nil, AnalyzeConfig{}).
		Analyze(context.Background(), plan, AnalyzeOptions{})
	require.NoError(t, err)

	require.Len(t, classifier.requests[0].Rooms, 1)
	room := classifier.requests[0].Rooms[0]
	assert.Equal(t, 3, room.InstanceCount)
	assert.Equal(t, 46.0, room.TotalAreaForType)

	require.Len(t, report.Rooms, 3)
	assert.Equal(t, `"`, report.Rooms[1].Label)
	assert.Equal(t, "LOUNGE", report.Rooms[1].ResolvedLabel)
	assert.Equal(t, 460.0, report.TotalConnectedLoad)
	assert.False(t, report.HasFailedRooms)
}

func TestAnalyze_ClassifierFailureMarksEveryRoomFailed(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("classification service timeout")}
	obs := &recordingObserver{}

	report, err := newAnalyzer(classifier, nil, obs, AnalyzeConfig{RetryZeroRates: true}).
		Analyze(context.Background(), officeAndStore(), AnalyzeOptions{})
	require.NoError(t, err)

	assert.True(t, report.HasFailedRooms)
	for _, r := range report.Rooms {
		assert.Nil(t, r.ConnectedLoad)
		assert.Equal(t, loads.ErrClassificationFailed, r.Error)
	}
	assert.Zero(t, report.TotalConnectedLoad)
	assert.Empty(t, report.CategoryBreakdown)
	assert.Len(t, classifier.requests, 1, "a failed call is not retried")
	assert.Equal(t, []runRecord{{outcome: OutcomeDegraded, rooms: 2, failed: 2}}, obs.runs)
}

func TestAnalyze_PartialClassification(t *testing.T) {
	classifier := &fakeClassifier{responses: [][]entities.Classification{{officeRate}}}

	report, err := newAnalyzer(classifier, nil, nil, AnalyzeConfig{}).
		Analyze(context.Background(), officeAndStore(), AnalyzeOptions{})
	require.NoError(t, err)

	assert.True(t, report.HasFailedRooms)
	assert.False(t, report.Rooms[0].Failed())
	assert.True(t, report.Rooms[1].Failed())
	assert.Equal(t, 800.0, report.TotalConnectedLoad)
}

func TestAnalyze_FatalErrors(t *testing.T) {
	obs := &recordingObserver{}
	uc := newAnalyzer(&fakeClassifier{}, nil, obs, AnalyzeConfig{})

	_, err := uc.Analyze(context.Background(), []byte("not a drawing"), AnalyzeOptions{})
	assert.True(t, errors.Is(err, drawing.ErrUnparseable), "got %v", err)

	tiny := drawingtest.NewPlan(drawing.InsUnitsMeters).Room("CUPBOARD", 0, 0, 0.2, 0.5).Bytes()
	_, err = uc.Analyze(context.Background(), tiny, AnalyzeOptions{})
	assert.True(t, errors.Is(err, labeling.ErrNoRooms), "got %v", err)

	assert.Equal(t, []runRecord{{outcome: OutcomeFailed}, {outcome: OutcomeFailed}}, obs.runs)
}

func TestAnalyze_MillimeterDrawing(t *testing.T) {
	plan := drawingtest.NewPlan(drawing.InsUnitsUnitless).
		Room("OFFICE", 0, 0, 5000, 4000).
		Bytes()
	classifier := &fakeClassifier{responses: [][]entities.Classification{{officeRate}}}

	report, err := newAnalyzer(classifier, nil, nil, AnalyzeConfig{}).
		Analyze(context.Background(), plan, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "millimeters", report.UnitsDetected)
	assert.Equal(t, 20.0, report.Rooms[0].Area)
	assert.Equal(t, 800.0, report.TotalConnectedLoad)
}

func TestAnalyze_RetriesZeroRatesOnce(t *testing.T) {
	zeroStore := entities.Classification{Name: "STORE", Category: "C9", LoadDensity: 0, DemandFactor: 0.6}
	classifier := &fakeClassifier{responses: [][]entities.Classification{
		{officeRate, zeroStore},
		{storeRate},
	}}
	retriever := &fakeRetriever{}

	report, err := newAnalyzer(classifier, retriever, nil, AnalyzeConfig{RetryZeroRates: true}).
		Analyze(context.Background(), officeAndStore(), AnalyzeOptions{})
	require.NoError(t, err)

	require.Len(t, classifier.requests, 2)
	retry := classifier.requests[1]
	require.Len(t, retry.Rooms, 1)
	assert.Equal(t, "STORE", retry.Rooms[0].Name)
	assert.Contains(t, retriever.seen(), "load density rates for categories C9")

	assert.Equal(t, 300.0, *report.Rooms[1].ConnectedLoad)
	assert.Equal(t, "C1", *report.Rooms[1].Category)
	assert.Equal(t, 1100.0, report.TotalConnectedLoad)
}

func TestAnalyze_ZeroRateRetryKeepsOriginalWhenStillZero(t *testing.T) {
	zeroStore := entities.Classification{Name: "STORE", Category: "C9", LoadDensity: 0, DemandFactor: 0.6}
	classifier := &fakeClassifier{responses: [][]entities.Classification{
		{officeRate, zeroStore},
		{zeroStore},
	}}

	report, err := newAnalyzer(classifier, nil, nil, AnalyzeConfig{RetryZeroRates: true}).
		Analyze(context.Background(), officeAndStore(), AnalyzeOptions{})
	require.NoError(t, err)

	assert.Len(t, classifier.requests, 2)
	assert.Equal(t, 0.0, *report.Rooms[1].ConnectedLoad)
	assert.False(t, report.HasFailedRooms, "a zero rate is still a classification")
}

func TestAnalyze_ZeroRateRetryDisabled(t *testing.T) {
	zeroStore := entities.Classification{Name: "STORE", Category: "C9", LoadDensity: 0, DemandFactor: 0.6}
	classifier := &fakeClassifier{responses: [][]entities.Classification{{officeRate, zeroStore}}}

	_, err := newAnalyzer(classifier, nil, nil, AnalyzeConfig{}).
		Analyze(context.Background(), officeAndStore(), AnalyzeOptions{})
	require.NoError(t, err)
	assert.Len(t, classifier.requests, 1)
}

func TestAnalyze_CoincidentFactor(t *testing.T) {
	classifier := &fakeClassifier{responses: [][]entities.Classification{{officeRate, storeRate}}}

	report, err := newAnalyzer(classifier, nil, nil, AnalyzeConfig{CoincidentFactor: 0.5}).
		Analyze(context.Background(), officeAndStore(), AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 240.0, *report.Rooms[0].DemandLoad)
	assert.Equal(t, 0.5, report.CategoryBreakdown[0].AvgCoincidentFactor)
}

func TestAnalyze_IdenticalInputsSerializeIdentically(t *testing.T) {
	run := func() []byte {
		classifier := &fakeClassifier{responses: [][]entities.Classification{{officeRate, storeRate}}}
		retriever := &fakeRetriever{
			answers: map[string][]entities.ContextChunk{"categories": {{Content: "a"}}, "rates": {{Content: "b"}}},
			delay:   map[string]time.Duration{"categories": 5 * time.Millisecond},
		}
		report, err := newAnalyzer(classifier, retriever, nil, AnalyzeConfig{RetryZeroRates: true}).
			Analyze(context.Background(), officeAndStore(), AnalyzeOptions{})
		require.NoError(t, err)
		out, err := json.Marshal(report)
		require.NoError(t, err)
		return out
	}

	first := run()
	assert.Equal(t, string(first), string(run()))
	assert.False(t, strings.Contains(string(first), "run_id"))
}
