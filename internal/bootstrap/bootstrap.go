// Package bootstrap assembles the certificate pipeline from configuration.
// The server, the worker and the CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/certdossier/internal/certificate"
	"github.com/dharsanguruparan/certdossier/internal/config"
	"github.com/dharsanguruparan/certdossier/internal/database"
	"github.com/dharsanguruparan/certdossier/internal/docstore"
	"github.com/dharsanguruparan/certdossier/internal/metrics"
	"github.com/dharsanguruparan/certdossier/internal/model"
	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
	pdfutil "github.com/dharsanguruparan/certdossier/internal/pdf"
	"github.com/dharsanguruparan/certdossier/internal/repository"
	"github.com/dharsanguruparan/certdossier/internal/resilience"
	"github.com/dharsanguruparan/certdossier/internal/s3storage"
	"github.com/dharsanguruparan/certdossier/internal/storage"
)

// Store is everything the processes read and write: cases, owners and the
// run ledger. Both the memory store and the Postgres repository satisfy it.
type Store interface {
	orchestrator.Store
	ListOwners(ctx context.Context, caseID int64) ([]model.Owner, error)
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, caseID int64) ([]model.Run, error)
	LatestRun(ctx context.Context, caseID int64) (*model.Run, error)
}

// Pipeline holds the wired components. Close releases the database pool.
type Pipeline struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Catalog      *certificate.Catalog
	Docs         *docstore.Dir
	Store        Store
	Orchestrator *orchestrator.Orchestrator

	// Memory is set when no database is configured, so callers can seed it.
	Memory *storage.MemoryStore

	closers []func()
}

// Build connects the stores and constructs the orchestrator.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pipeline{Config: cfg, Logger: logger, Metrics: metrics.New("certdossier")}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	p.Catalog = catalog

	docs, err := docstore.New(cfg.DocumentDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	p.Docs = docs

	if err := p.openStore(ctx); err != nil {
		return nil, err
	}

	var archiver orchestrator.Archiver
	if cfg.UsesArchive() {
		archive, err := s3storage.New(s3storage.Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		}, docs)
		if err != nil {
			p.Close()
			return nil, err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		archiver = archive
	}

	opts := []certificate.Option{
		certificate.WithTimeout(cfg.FetchTimeout),
		certificate.WithMaxDocumentSize(cfg.MaxDocumentBytes),
		certificate.WithGuard(resilience.NewGuard(cfg.Resilience(), logger)),
		certificate.WithObserver(p.Metrics),
		certificate.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, certificate.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)))
	}
	client := certificate.NewClient(docs, pdfutil.Extractor{}, certificate.DefaultRules(), opts...)

	deps := orchestrator.Dependencies{
		Store:       p.Store,
		Ledger:      p.Store,
		Catalog:     catalog,
		Fetcher:     client,
		Merger:      pdfutil.NewMerger(docs, logger),
		Links:       docs,
		Archiver:    archiver,
		Observer:    p.Metrics,
		Electoral:   cfg.Electoral,
		Concurrency: cfg.FetchConcurrency,
		Logger:      logger,
	}
	orch, err := orchestrator.New(deps)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Orchestrator = orch
	return p, nil
}

func (p *Pipeline) openStore(ctx context.Context) error {
	if !p.Config.UsesDatabase() {
		p.Memory = storage.NewMemoryStore()
		p.Store = p.Memory
		p.Logger.Warn("no database configured, using in-memory store")
		return nil
	}
	pool, err := database.Connect(ctx, p.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}
	db := database.OpenSQL(pool)
	p.closers = append(p.closers, func() { _ = db.Close() }, pool.Close)
	p.Store = repository.New(db)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

func loadCatalog(cfg *config.Config) (*certificate.Catalog, error) {
	if cfg.CatalogFile == "" {
		return certificate.DefaultCatalog(cfg.UpstreamBase), nil
	}
	catalog, err := certificate.LoadCatalog(cfg.CatalogFile, cfg.UpstreamBase)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogFile, err)
	}
	return catalog, nil
}

// ErrNotSeedable is returned by Seed when the pipeline runs against Postgres.
var ErrNotSeedable = errors.New("store is not in memory")

// Seed registers a case with one owner in the memory store, returning the
// case id. It is how the CLI runs a pipeline without a database.
func (p *Pipeline) Seed(subjectID, name string, isCompany bool) (int64, error) {
	if p.Memory == nil {
		return 0, ErrNotSeedable
	}
	c := p.Memory.PutCase(&model.Case{Status: model.StatusInProgress})
	if _, err := p.Memory.PutOwner(&model.Owner{CaseID: c.ID, Name: name, TaxID: subjectID, IsCompany: isCompany}); err != nil {
		return 0, err
	}
	return c.ID, nil
}
