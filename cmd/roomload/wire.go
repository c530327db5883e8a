package main

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/adapters/classifier"
	"github.com/0xcro3dile/roomload-go/internal/adapters/embedding"
	"github.com/0xcro3dile/roomload-go/internal/adapters/llm"
	"github.com/0xcro3dile/roomload-go/internal/adapters/loader"
	"github.com/0xcro3dile/roomload-go/internal/adapters/parser"
	"github.com/0xcro3dile/roomload-go/internal/adapters/retrieval"
	"github.com/0xcro3dile/roomload-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/roomload-go/internal/domain/loads"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
	"github.com/0xcro3dile/roomload-go/internal/domain/usecases"
	"github.com/0xcro3dile/roomload-go/internal/infrastructure/config"
	"github.com/0xcro3dile/roomload-go/internal/infrastructure/metrics"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	analyze   *usecases.AnalyzeUseCase
	ingest    *usecases.IngestUseCase
	drawings  *loader.DrawingLoader
	documents *loader.MultiLoader
	metrics   *metrics.Metrics
	closers   []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

func buildApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		drawings: loader.NewDrawingLoader(cfg.Server.MaxUploadBytes),
		metrics:  metrics.New(),
	}

	ollamaTimeout := config.Duration(cfg.Ollama.Timeout, 120*time.Second)
	embedder := embedding.NewOllamaEmbedder(embedding.Options{
		BaseURL:    cfg.Ollama.BaseURL,
		Model:      cfg.Ollama.EmbedModel,
		Timeout:    ollamaTimeout,
		BatchSize:  cfg.Ollama.EmbedBatchSize,
		Dimensions: cfg.Ollama.EmbedDimensions,
	}, log)

	var store ports.VectorStore
	switch cfg.Knowledge.Store {
	case "memory":
		store = vectordb.NewInMemoryStore()
	default:
		s, err := vectordb.NewSQLiteStore(cfg.Knowledge.DataDir, log)
		if err != nil {
			return nil, fmt.Errorf("opening knowledge store: %w", err)
		}
		a.closers = append(a.closers, s)
		store = s
	}

	var docParser ports.DocumentParser
	if cfg.Knowledge.ParserURL != "" {
		docParser = parser.NewServiceParser(cfg.Knowledge.ParserURL, 60*time.Second, log)
	}
	a.documents = loader.NewMultiLoader(docParser)
	a.ingest = usecases.NewIngestUseCase(a.documents, embedder, store,
		cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap, log)

	var cls ports.Classifier
	classifyTimeout := config.Duration(cfg.Classifier.Timeout, 90*time.Second)
	switch cfg.Classifier.Provider {
	case "http":
		cls = classifier.NewHTTPClassifier(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, classifyTimeout, log)
	default:
		model := llm.NewOllamaLLMAdapter(cfg.Ollama.BaseURL, cfg.Ollama.LLMModel, ollamaTimeout, log)
		cls = classifier.NewLLMClassifier(model, log)
	}

	var retriever ports.ContextRetriever
	retrievalTimeout := config.Duration(cfg.Retrieval.Timeout, 15*time.Second)
	switch cfg.Retrieval.Provider {
	case "http":
		retriever = retrieval.NewHTTPRetriever(cfg.Retrieval.Endpoint, retrievalTimeout, log)
	case "knowledge":
		retriever = usecases.NewKnowledgeRetriever(embedder, store, cfg.Retrieval.MinScore, log)
	}
	if retriever != nil && cfg.Retrieval.CacheCapacity > 0 {
		retriever = retrieval.NewCachedRetriever(retriever, retrieval.NewFIFOCache(cfg.Retrieval.CacheCapacity), a.metrics)
	}
	gatherer := usecases.NewContextGatherer(retriever, cfg.Retrieval.Topics, cfg.Retrieval.TopK, retrievalTimeout, log)

	cf := cfg.Pipeline.CoincidentFactor
	if n := cfg.Pipeline.CoincidentMeterCount; n > 0 {
		cf = loads.CoincidentFactorForMeters(n)
	}

	a.analyze = usecases.NewAnalyzeUseCase(cls, gatherer, a.metrics, usecases.AnalyzeConfig{
		CoincidentFactor: cf,
		LabelTolerance:   cfg.Pipeline.LabelTolerance,
		RetryZeroRates:   cfg.Pipeline.RetryZeroRates,
		ClassifyTimeout:  classifyTimeout,
	}, log)

	log.Debug("components wired",
		zap.String("classifier", cfg.Classifier.Provider),
		zap.String("retrieval", cfg.Retrieval.Provider),
		zap.String("store", cfg.Knowledge.Store),
		zap.Float64("coincident_factor", cf))
	return a, nil
}
