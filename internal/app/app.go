// Package app wires configuration into a ready-to-run pipeline: store,
// quota gate, object storage, recognition client, and the orchestrator.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/scanvault/docpipe/internal/batch"
	"github.com/scanvault/docpipe/internal/common"
	"github.com/scanvault/docpipe/internal/imaging"
	"github.com/scanvault/docpipe/internal/pdfsplit"
	"github.com/scanvault/docpipe/internal/quota"
	"github.com/scanvault/docpipe/internal/recognition"
	"github.com/scanvault/docpipe/internal/repository"
	"github.com/scanvault/docpipe/internal/scheduler"
	"github.com/scanvault/docpipe/internal/storage"
	"github.com/scanvault/docpipe/internal/textextract"
)

// App holds the wired pipeline and its shared collaborators.
type App struct {
	Config       *common.Config
	Logger       *slog.Logger
	Batches      repository.BatchRepository
	Documents    repository.DocumentRepository
	Gate         quota.Gate
	Store        storage.ObjectStore
	Orchestrator *batch.Orchestrator
	Registry     *batch.Registry

	closers []func()
}

// New builds the full pipeline from cfg. DB_URL selects the Postgres store;
// without it the embedded sqlite store and an in-memory quota gate are used.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Registry: batch.NewRegistry()}

	if err := a.initStore(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initObjectStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.Recognition.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Recognition.RequestsPerSec), 1)
	}
	recognizer := recognition.NewClient(recognition.Config{
		BaseURL:         cfg.Recognition.BaseURL,
		APIKey:          cfg.Recognition.APIKey,
		MaxRetries:      cfg.Recognition.MaxRetries,
		BaseDelay:       cfg.Recognition.BaseDelay,
		Timeout:         cfg.Recognition.Timeout,
		MaxPayloadBytes: cfg.Recognition.MaxPayloadBytes,
	}, limiter, logger)

	runner := imaging.ExecRunner{}
	normalizer := imaging.NewNormalizer(cfg.Pipeline.MaxDimension, cfg.Pipeline.JPEGQuality)
	strategies := []batch.PayloadStrategy{
		&batch.TextLayerStrategy{
			Extractor:     textextract.NewExtractor(cfg.Pipeline.Pdftotext, runner, logger),
			MinTextLength: cfg.Pipeline.MinTextLength,
		},
		&batch.RenderedImageStrategy{
			Renderer:   imaging.NewPageRenderer(cfg.Pipeline.Pdftoppm, cfg.Pipeline.RenderDPI, runner, logger),
			Normalizer: normalizer,
			Runner:     runner,
			Converter:  cfg.Pipeline.ImageConverter,
			CacheDir:   cfg.Pipeline.ArtifactCacheDir,
			Logger:     logger,
		},
	}

	a.Orchestrator = batch.NewOrchestrator(batch.Deps{
		Batches:    a.Batches,
		Documents:  a.Documents,
		Gate:       a.Gate,
		Recognizer: recognizer,
		Analyzer:   pdfsplit.NewAnalyzer(logger),
		Strategies: strategies,
		Store:      a.Store,
		Pool:       scheduler.NewPool(logger, scheduler.WithWorkers(cfg.Pipeline.Workers)),
		Logger:     logger,
	})
	return a, nil
}

func (a *App) initStore(ctx context.Context, cfg *common.Config) error {
	if cfg.Database.DSN == "" {
		store, err := repository.OpenSQLite(cfg.Database.SQLitePath, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.Batches = store.Batches()
		a.Documents = store.Documents()
		a.Gate = quota.NewMemoryGate(cfg.Quota.DefaultTotal, time.Time{})
		return nil
	}

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, a.Logger)
	if err != nil {
		return err
	}
	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, a.Logger); err != nil {
		pool.Close()
		return err
	}
	a.closers = append(a.closers, pool.Close)
	a.Batches = repository.NewPGBatchRepository(pool, a.Logger)
	a.Documents = repository.NewPGDocumentRepository(pool, a.Logger)
	a.Gate = quota.NewPGGate(pool, cfg.Recognition.TenantID, a.Logger)
	return nil
}

func (a *App) initObjectStore(ctx context.Context, cfg *common.Config) error {
	switch cfg.Storage.Backend {
	case "fs", "":
		store, err := storage.NewFSStore(cfg.Storage.FSRoot)
		if err != nil {
			return err
		}
		a.Store = store
	case "s3":
		store, err := storage.NewS3Store(ctx, cfg.Storage, a.Logger)
		if err != nil {
			return err
		}
		a.Store = store
	default:
		return fmt.Errorf("unknown storage backend %q: use fs | s3", cfg.Storage.Backend)
	}
	return nil
}

// Close releases pooled resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
