package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/adapters/loader"
	"github.com/0xcro3dile/roomload-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/roomload-go/internal/domain/drawing"
	"github.com/0xcro3dile/roomload-go/internal/domain/drawing/drawingtest"
	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/usecases"
	"github.com/0xcro3dile/roomload-go/internal/infrastructure/metrics"
)

type stubClassifier struct {
	mu       sync.Mutex
	requests []entities.ClassificationRequest
}

func (c *stubClassifier) Classify(ctx context.Context, req entities.ClassificationRequest) ([]entities.Classification, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return []entities.Classification{
		{Name: "OFFICE", Category: "C2", LoadDensity: 40, DemandFactor: 0.6},
		{Name: "STORE", Category: "C1", LoadDensity: 30, DemandFactor: 0.6},
	}, nil
}

func (c *stubClassifier) last() entities.ClassificationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}

type fixture struct {
	handler    http.Handler
	classifier *stubClassifier
	store      *vectordb.InMemoryStore
}

func newFixture(t *testing.T, maxBytes int64, withKnowledge bool) *fixture {
	t.Helper()
	f := &fixture{classifier: &stubClassifier{}, store: vectordb.NewInMemoryStore()}
	m := metrics.New()
	analyze := usecases.NewAnalyzeUseCase(f.classifier, nil, m, usecases.AnalyzeConfig{}, zap.NewNop())

	var ingest *usecases.IngestUseCase
	var docs *loader.MultiLoader
	if withKnowledge {
		docs = loader.NewMultiLoader(nil)
		ingest = usecases.NewIngestUseCase(docs, stubEmbedder{}, f.store, 50, 10, zap.NewNop())
	}

	srv := NewServer(analyze, ingest, loader.NewDrawingLoader(maxBytes), docs, m, Options{}, zap.NewNop())
	f.handler = srv.Handler()
	return f
}

func plan() []byte {
	return drawingtest.NewPlan(drawing.InsUnitsMeters).
		Room("OFFICE", 0, 0, 5, 4).
		Room("STORE", 10, 0, 2, 5).
		Bytes()
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestAnalyze_RawBody(t *testing.T) {
	f := newFixture(t, 0, false)

	rec := serve(f.handler, httptest.NewRequest(http.MethodPost, "/api/analyze?climate=true", bytes.NewReader(plan())))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report entities.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 2, report.TotalRooms)
	assert.Equal(t, 1100.0, report.TotalConnectedLoad)
	assert.Equal(t, "meters", report.UnitsDetected)
	assert.True(t, f.classifier.last().IncludeClimateControl)
}

func TestAnalyze_Multipart(t *testing.T) {
	f := newFixture(t, 0, false)
	body, contentType := multipartBody(t, map[string][]byte{"level-2.DXF": plan()})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve(f.handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.classifier.last().IncludeClimateControl)
}

func TestAnalyze_Errors(t *testing.T) {
	noRooms := drawingtest.NewPlan(drawing.InsUnitsMeters).Text("OFFICE", 1, 1).Bytes()

	tests := []struct {
		name     string
		maxBytes int64
		target   string
		body     []byte
		files    map[string][]byte
		status   int
	}{
		{name: "bad climate", target: "/api/analyze?climate=maybe", body: plan(), status: http.StatusBadRequest},
		{name: "empty body", target: "/api/analyze", body: nil, status: http.StatusBadRequest},
		{name: "wrong raw extension", target: "/api/analyze?filename=plan.dwg", body: plan(), status: http.StatusBadRequest},
		{name: "wrong multipart extension", target: "/api/analyze", files: map[string][]byte{"plan.pdf": plan()}, status: http.StatusBadRequest},
		{name: "too large", maxBytes: 64, target: "/api/analyze", body: plan(), status: http.StatusRequestEntityTooLarge},
		{name: "no rooms", target: "/api/analyze", body: noRooms, status: http.StatusUnprocessableEntity},
		{name: "not a drawing", target: "/api/analyze", body: []byte("hello"), status: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.maxBytes, false)

			var req *http.Request
			if tt.files != nil {
				body, contentType := multipartBody(t, tt.files)
				req = httptest.NewRequest(http.MethodPost, tt.target, body)
				req.Header.Set("Content-Type", contentType)
			} else {
				req = httptest.NewRequest(http.MethodPost, tt.target, bytes.NewReader(tt.body))
			}

			rec := serve(f.handler, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestKnowledge_UploadAndDelete(t *testing.T) {
	f := newFixture(t, 0, true)
	body, contentType := multipartBody(t, map[string][]byte{
		"rates.md": []byte(strings.Repeat("Offices are rated at 40 VA per square metre. ", 6)),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve(f.handler, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Documents []ingestedDocument `json:"documents"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "rates.md", resp.Documents[0].Name)
	assert.Greater(t, resp.Documents[0].Chunks, 1)
	count, err := f.store.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.Documents[0].Chunks, count)

	rec = serve(f.handler, httptest.NewRequest(http.MethodDelete, "/api/knowledge/"+resp.Documents[0].ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	count, err = f.store.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestKnowledge_Rejections(t *testing.T) {
	f := newFixture(t, 0, true)

	body, contentType := multipartBody(t, map[string][]byte{"plan.dxf": plan()})
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge", body)
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusBadRequest, serve(f.handler, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/knowledge", strings.NewReader("plain"))
	assert.Equal(t, http.StatusBadRequest, serve(f.handler, req).Code)

	disabled := newFixture(t, 0, false)
	body, contentType = multipartBody(t, map[string][]byte{"rates.md": []byte("x")})
	req = httptest.NewRequest(http.MethodPost, "/api/knowledge", body)
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusServiceUnavailable, serve(disabled.handler, req).Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 0, false)
	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 0, false)
	serve(f.handler, httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(plan())))

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `roomload_http_requests_total{route="/api/analyze",status="200"} 1`)
	assert.Contains(t, body, `roomload_analysis_runs_total{outcome="success"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, 0, false)
	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, 0, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(f.handler, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
