// Package app builds the long-lived clients and components from a Config.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/familiaschurch/receipt-validator/internal/config"
	"github.com/familiaschurch/receipt-validator/internal/extract"
	"github.com/familiaschurch/receipt-validator/internal/fetch"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/familiaschurch/receipt-validator/internal/receipt"
	"github.com/familiaschurch/receipt-validator/internal/records"
	"github.com/familiaschurch/receipt-validator/internal/validation"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// App owns the clients shared by every request.
type App struct {
	Config       *config.Config
	Log          zerolog.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Orchestrator *validation.Orchestrator

	closers []func() error
}

// New creates the clients named by cfg and wires the orchestrator.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	opts := cfg.ClientOptions()

	matcher, err := receipt.NewBeneficiaryMatcher(cfg.BeneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	store, err := a.newStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	ocr, err := a.newOCR(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	router := &fetch.Router{
		HTTP: fetch.NewHTTPFetcher(cfg.FetchTimeout, a.Metrics, log),
	}
	if sc, err := storage.NewClient(ctx, opts...); err != nil {
		log.Warn().Err(err).Msg("Storage client unavailable; gs:// receipts disabled")
	} else {
		a.closers = append(a.closers, sc.Close)
		router.GCS = fetch.NewGCSFetcher(sc, cfg.FetchTimeout, a.Metrics)
	}

	extractor := extract.NewExtractor(ocr, extract.NewPDFReader(), log)
	reconciler := records.NewReconciler(store, cfg.ExcerptLimit, a.Metrics, log)

	a.Orchestrator = validation.NewOrchestrator(router, extractor, matcher, reconciler, a.Metrics,
		validation.WithExtractTimeout(cfg.ExtractTimeout),
		validation.WithStoreTimeout(cfg.StoreTimeout),
	)

	log.Info().
		Str("record_store", cfg.RecordStore).
		Str("ocr_backend", cfg.OCRBackend).
		Str("credentials", cfg.CredentialsSource).
		Str("project_id", cfg.ProjectID).
		Msg("Validation engine ready")

	return a, nil
}

func (a *App) newStore(ctx context.Context, cfg *config.Config) (records.Store, error) {
	switch cfg.RecordStore {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions()...)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return records.NewFirestoreStore(client, cfg.RecordsCollection), nil
	case config.StoreBigQuery:
		client, err := a.BigQuery(ctx)
		if err != nil {
			return nil, err
		}
		return records.NewBigQueryStore(client, cfg.BigQueryDataset, cfg.RecordsCollection), nil
	case config.StoreMemory:
		a.Log.Warn().Msg("Using in-memory record store; records are not persisted")
		return records.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown record store %q", cfg.RecordStore)
	}
}

func (a *App) newOCR(ctx context.Context, cfg *config.Config) (extract.OCRBackend, error) {
	switch cfg.OCRBackend {
	case config.OCRVision:
		return extract.NewVisionOCR(ctx, cfg.ClientOptions()...)
	case config.OCRGemini:
		return extract.NewGeminiOCR(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown OCR backend %q", cfg.OCRBackend)
	}
}

// BigQuery creates a BigQuery client closed with the app.
func (a *App) BigQuery(ctx context.Context) (*bigquery.Client, error) {
	client, err := bigquery.NewClient(ctx, a.Config.ProjectID, a.Config.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Close releases every client, in reverse order of creation.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
