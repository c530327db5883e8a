// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/adapters/loader"
	"github.com/0xcro3dile/roomload-go/internal/domain/drawing"
	"github.com/0xcro3dile/roomload-go/internal/domain/labeling"
	"github.com/0xcro3dile/roomload-go/internal/domain/usecases"
	"github.com/0xcro3dile/roomload-go/internal/infrastructure/metrics"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// Options configures the listener and request handling.
type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	// ClimateDefault applies when a request omits the climate parameter.
	ClimateDefault bool
}

// Server is the HTTP server for the load analysis API.
type Server struct {
	analyzeUseCase *usecases.AnalyzeUseCase
	ingestUseCase  *usecases.IngestUseCase
	drawings       *loader.DrawingLoader
	documents      *loader.MultiLoader
	metrics        *metrics.Metrics
	opts           Options
	logger         *zap.Logger
}

// NewServer creates a new HTTP server. ingestUC and documents may be nil,
// which disables the knowledge endpoints.
func NewServer(
	analyzeUC *usecases.AnalyzeUseCase,
	ingestUC *usecases.IngestUseCase,
	drawings *loader.DrawingLoader,
	documents *loader.MultiLoader,
	m *metrics.Metrics,
	opts Options,
	logger *zap.Logger,
) *Server {
	if drawings == nil {
		drawings = loader.NewDrawingLoader(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 120 * time.Second
	}
	return &Server{
		analyzeUseCase: analyzeUC,
		ingestUseCase:  ingestUC,
		drawings:       drawings,
		documents:      documents,
		metrics:        m,
		opts:           opts,
		logger:         logger.Named("http"),
	}
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/analyze", s.metrics.WrapHandler("/api/analyze", http.HandlerFunc(s.handleAnalyze))).Methods(http.MethodPost)
	api.Handle("/knowledge", s.metrics.WrapHandler("/api/knowledge", http.HandlerFunc(s.handleIngest))).Methods(http.MethodPost)
	api.Handle("/knowledge/{id}", s.metrics.WrapHandler("/api/knowledge/{id}", http.HandlerFunc(s.handleDeleteDocument))).Methods(http.MethodDelete)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	stdLog := zap.NewStdLog(s.logger)
	var h http.Handler = r
	h = handlers.CompressHandler(h)
	h = handlers.LoggingHandler(stdLog.Writer(), h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog), handlers.PrintRecoveryStack(true))(h)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(h)
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("roomload server starting", zap.String("addr", s.opts.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleAnalyze accepts a drawing as a multipart "file" field or as the raw
// request body and returns its load report.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	climate := s.opts.ClimateDefault
	if v := r.URL.Query().Get("climate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid climate value %q", v))
			return
		}
		climate = b
	}

	content, err := s.readDrawing(w, r)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}

	report, err := s.analyzeUseCase.Analyze(r.Context(), content, usecases.AnalyzeOptions{IncludeClimateControl: climate})
	if err != nil {
		if errors.Is(err, drawing.ErrUnparseable) || errors.Is(err, labeling.ErrNoRooms) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("analysis failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) readDrawing(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if !isMultipart(r) {
		name := r.URL.Query().Get("filename")
		if name == "" {
			name = "upload" + loader.DrawingExtension
		}
		return s.drawings.ReadAll(name, r.Body)
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.drawings.MaxBytes+multipartMemory)
	file, header, err := r.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			return nil, loader.ErrTooLarge
		}
		return nil, fmt.Errorf("%w: missing multipart field \"file\"", errBadRequest)
	}
	defer file.Close()

	if err := s.drawings.Validate(header.Filename, header.Size); err != nil {
		return nil, err
	}
	return s.drawings.ReadAll(header.Filename, file)
}

// ingestedDocument is one entry of the knowledge upload response.
type ingestedDocument struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// handleIngest adds reference documents from multipart "file" fields to
// the knowledge base.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestUseCase == nil || s.documents == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base is not configured")
		return
	}
	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.drawings.MaxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}

	var ingested []ingestedDocument
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := s.documents.LoadBytes(r.Context(), fh.Filename, data)
		if err != nil {
			writeError(w, uploadStatus(err), err.Error())
			return
		}
		n, err := s.ingestUseCase.Ingest(r.Context(), doc)
		if err != nil {
			s.logger.Error("ingest failed", zap.String("document", doc.Name), zap.Error(err))
			writeError(w, http.StatusBadGateway, fmt.Sprintf("ingesting %s failed", doc.Name))
			return
		}
		ingested = append(ingested, ingestedDocument{ID: doc.ID, Name: doc.Name, Chunks: n})
	}

	writeJSON(w, http.StatusOK, map[string]any{"documents": ingested})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if s.ingestUseCase == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base is not configured")
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.ingestUseCase.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete failed", zap.String("document", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errBadRequest = errors.New("bad request")

// uploadStatus maps a failed upload to 413 when it ran over the size limit
// and 400 otherwise.
func uploadStatus(err error) int {
	if errors.Is(err, loader.ErrTooLarge) || isTooLarge(err) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
