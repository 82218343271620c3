package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-search/internal/blob"
	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/postgres"
	"github.com/kozaktomas/face-search/internal/extractor"
	"github.com/kozaktomas/face-search/internal/gallery"
	"github.com/kozaktomas/face-search/internal/ingest"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/kozaktomas/face-search/internal/similarity"
)

// app holds the components shared by serve, worker, import and search.
type app struct {
	cfg       *config.Config
	extractor *extractor.Extractor
	jobs      *postgres.JobRepository
	pipeline  *ingest.Pipeline
	gallery   *gallery.Service
}

// registerBackends connects to PostgreSQL, applies migrations and registers the repositories.
func registerBackends(cfg *config.Config) (*postgres.JobRepository, error) {
	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	imageRepo := postgres.NewImageRepository(pool)
	faceRepo := postgres.NewFaceRepository(pool)
	jobRepo := postgres.NewJobRepository(pool, cfg.Ingest.VisibilityTimeout)
	database.RegisterPostgresBackend(
		func() database.ImageWriter { return imageRepo },
		func() database.FaceWriter { return faceRepo },
		func() database.JobQueue { return jobRepo },
	)
	fmt.Printf("Using PostgreSQL backend\n")
	return jobRepo, nil
}

// newApp wires storage, extraction, search and ingestion. mode overrides INGEST_MODE when set.
func newApp(ctx context.Context, cfg *config.Config, mode string) (*app, error) {
	if mode != "" {
		cfg.Ingest.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jobRepo, err := registerBackends(cfg)
	if err != nil {
		return nil, err
	}
	images, err := database.GetImageWriter()
	if err != nil {
		return nil, err
	}
	faces, err := database.GetFaceWriter()
	if err != nil {
		return nil, err
	}

	store, err := blob.New(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := blob.Ensure(ctx, store); err != nil {
		return nil, fmt.Errorf("preparing blob store: %w", err)
	}

	ex, err := extractor.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	metric, err := similarity.ByName(cfg.Search.Metric)
	if err != nil {
		ex.Close()
		return nil, err
	}
	fmt.Printf("Extractor: %s (%s backend), metric: %s\n", ex.Method(), cfg.Extractor.Backend, metric.Name())

	pipeline := ingest.NewPipeline(ex, faces)
	var runner ingest.Runner
	switch cfg.Ingest.Mode {
	case "deferred":
		queue, err := database.GetJobQueue()
		if err != nil {
			ex.Close()
			return nil, err
		}
		runner = ingest.NewDeferredRunner(queue)
	default:
		runner = ingest.NewInlineRunner(pipeline)
	}

	searcher := search.NewSearcher(faces, images, metric, ex.Method())
	svc := gallery.NewService(images, faces, store, ex, searcher, runner, gallery.Options{
		MaxImageSize:  cfg.Web.MaxImageSize,
		ThumbnailSize: cfg.Web.ThumbnailSize,
	})

	return &app{cfg: cfg, extractor: ex, jobs: jobRepo, pipeline: pipeline, gallery: svc}, nil
}

// workerPool creates the deferred ingestion workers.
func (a *app) workerPool(workers int) *ingest.WorkerPool {
	if workers <= 0 {
		workers = a.cfg.Ingest.Workers
	}
	return ingest.NewWorkerPool(a.jobs, a.pipeline, workers, a.cfg.Ingest.PollInterval, a.cfg.Ingest.MaxAttempts)
}

func (a *app) Close() {
	if err := a.jobs.Close(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	if err := a.extractor.Close(); err != nil {
		fmt.Printf("Warning: closing extractor: %v\n", err)
	}
	if pool := postgres.GetGlobalPool(); pool != nil {
		pool.Close()
	}
}
