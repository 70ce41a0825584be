package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/config"
	"github.com/upb/llm-scheduler/handlers"
	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/repositories"
	"github.com/upb/llm-scheduler/repositories/postgres"
	"github.com/upb/llm-scheduler/routes"
	"github.com/upb/llm-scheduler/services/feature"
	"github.com/upb/llm-scheduler/services/optimizer"
	"github.com/upb/llm-scheduler/services/predictor"
	"github.com/upb/llm-scheduler/services/registry"
	"github.com/upb/llm-scheduler/services/scheduler"
	"github.com/upb/llm-scheduler/services/workload"
)

// Dependencies is the central wiring point for the scheduler process
type Dependencies struct {
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	References repositories.ReferenceRepository
	Batches    repositories.BatchRepository
	TxManager  repositories.TransactionManager

	Registry  *registry.Registry
	Tracker   *workload.Tracker
	Extractor *feature.Extractor
	Retrieval *predictor.RetrievalEstimator
	Predictor *predictor.Service
	Optimizer *optimizer.Service
	Scheduler *scheduler.Service
}

// NewDependencies creates and wires up the whole scheduling pipeline.
// The database is optional: without it the retrieval estimator starts
// empty and batch records are not persisted.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Database.Configured() {
		if err := deps.initDatabase(cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	} else {
		logger.Warn("database not configured, running without persistence")
	}

	if err := deps.initBackends(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize backend pool: %w", err)
	}
	if err := deps.initPipeline(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize scheduling pipeline: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initDatabase(cfg *config.Config) error {
	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db
	d.TxManager = postgres.NewTransactionManager(db, d.Logger)
	d.References = postgres.NewReferenceRepository(db, d.Logger)
	d.Batches = postgres.NewBatchRepository(db, d.TxManager, d.Logger)
	return nil
}

// initBackends loads the backend pool and registers capacity ceilings
// with the workload tracker
func (d *Dependencies) initBackends(cfg *config.Config) error {
	d.Registry = registry.NewRegistry()
	if err := d.Registry.LoadFromFile(cfg.BackendRegistryPath); err != nil {
		return err
	}

	d.Tracker = workload.NewTracker(d.Logger)
	for _, b := range d.Registry.List() {
		if err := d.Tracker.Register(b.ID, b.Capacity); err != nil {
			return err
		}
	}

	d.Logger.Info("backend pool loaded",
		zap.String("path", cfg.BackendRegistryPath),
		zap.Int("backends", d.Registry.Count()))
	return nil
}

func (d *Dependencies) initPipeline(ctx context.Context, cfg *config.Config) error {
	d.Extractor = feature.NewExtractor(cfg.Feature)

	artifact, err := predictor.LoadArtifact(cfg.EstimatorArtifactPath)
	if err != nil {
		return err
	}
	trained := predictor.NewTrainedEstimator(artifact)

	var records []models.ReferenceRecord
	if d.References != nil {
		records, err = d.References.ListAll(ctx)
		if err != nil {
			return err
		}
		d.Logger.Info("reference corpus loaded", zap.Int("records", len(records)))
	}
	d.Retrieval = predictor.NewRetrievalEstimator(cfg.Predictor.RetrievalK, records)

	d.Predictor = predictor.NewService(trained, d.Retrieval, cfg.Predictor, d.Logger)
	d.Optimizer = optimizer.NewService(cfg.Optimizer, d.Logger)

	var recorder scheduler.BatchRecorder
	if d.Batches != nil {
		recorder = d.Batches
	}
	d.Scheduler = scheduler.NewService(
		d.Extractor, d.Predictor, d.Optimizer, d.Tracker, d.Registry,
		recorder, cfg.Scheduler, d.Logger,
	)
	return nil
}

// Handlers builds the HTTP handler set over the wired services
func (d *Dependencies) Handlers() routes.Handlers {
	var checker handlers.DatabaseChecker
	if d.DB != nil {
		checker = d.DB
	}
	return routes.Handlers{
		Health:      handlers.NewHealthHandler(checker, d.Registry, d.Logger),
		Schedule:    handlers.NewScheduleHandler(d.Scheduler, d.Logger),
		Observation: handlers.NewObservationHandler(d.Extractor, d.Retrieval, d.References, d.Logger),
		Backend:     handlers.NewBackendHandler(d.Registry, d.Tracker, d.Logger),
	}
}

// Close releases held resources
func (d *Dependencies) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
