package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/typeguard/typedsets/internal/catalog"
	"github.com/typeguard/typedsets/internal/codegen"
	"github.com/typeguard/typedsets/internal/dataset"
	"github.com/typeguard/typedsets/internal/engine"
	"github.com/typeguard/typedsets/internal/forge"
	"github.com/typeguard/typedsets/internal/git"
	"github.com/typeguard/typedsets/internal/materialize"
	"github.com/typeguard/typedsets/internal/models"
	"github.com/typeguard/typedsets/internal/reconcile"
	"github.com/typeguard/typedsets/internal/util"
)

// sourceDir holds a fetched datasets_source tree inside the cache directory.
const sourceDir = ".source"

// ReadmeName is the rendered README written into every dataset repository.
const ReadmeName = "README.md"

// Pipeline coordinates materialization, generation and reconciliation of every
// selected dataset.
type Pipeline struct {
	cfg          models.PipelineConfig
	engine       engine.Engine
	materializer *materialize.Materializer
	driver       *codegen.Driver
	reconciler   *reconcile.Reconciler
	renderer     *catalog.Renderer
}

// New creates a pipeline around an already constructed engine and repository backends.
func New(cfg models.PipelineConfig, eng engine.Engine, vcs reconcile.VCS, creator forge.Creator) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		engine:       eng,
		materializer: materialize.New(cfg.CacheDir, cfg.Fetch, cfg.Retry),
		driver:       codegen.NewDriver(eng, cfg.Engine, cfg.Languages),
		reconciler:   reconcile.New(vcs, creator, cfg.Host, cfg.Retry, eng.Name(), eng.Version()),
		renderer:     catalog.NewRenderer(cfg.Host, cfg.Engine, cfg.Languages),
	}
}

// Discover resolves the dataset root and loads the full catalog.
func Discover(ctx context.Context, cfg models.PipelineConfig) ([]models.DatasetMeta, error) {
	root, err := dataset.Resolve(ctx, cfg.DatasetsSource, cfg.DatasetsDir, filepath.Join(cfg.CacheDir, sourceDir))
	if err != nil {
		return nil, models.NewError(models.ErrConfig, "", err)
	}
	return dataset.NewLoader(cfg.ReposDir).LoadCatalog(root)
}

// WriteCatalog renders the top-level catalog document for metas to cfg.CatalogPath.
func WriteCatalog(cfg models.PipelineConfig, metas []models.DatasetMeta) error {
	text := catalog.NewRenderer(cfg.Host, cfg.Engine, cfg.Languages).RenderCatalog(metas)
	if err := os.MkdirAll(filepath.Dir(cfg.CatalogPath), 0o755); err != nil {
		return models.NewError(models.ErrInternal, "", fmt.Errorf("creating catalog directory: %w", err))
	}
	if err := os.WriteFile(cfg.CatalogPath, []byte(text), 0o644); err != nil {
		return models.NewError(models.ErrInternal, "", fmt.Errorf("writing catalog: %w", err))
	}
	slog.Info("wrote catalog", "path", cfg.CatalogPath, "datasets", len(metas))
	return nil
}

// Run performs one full pass. The catalog is always rebuilt from every discovered
// dataset; when slugs is non-empty only those datasets are reconciled. Manifest
// and configuration errors abort the run before any repository is touched; all
// other failures are recorded per dataset.
func (p *Pipeline) Run(ctx context.Context, slugs []string) (*models.RunResult, error) {
	startTime := time.Now()

	metas, err := Discover(ctx, p.cfg)
	if err != nil {
		return nil, err
	}
	selected, err := dataset.Filter(metas, slugs)
	if err != nil {
		return nil, err
	}
	if err := WriteCatalog(p.cfg, metas); err != nil {
		return nil, err
	}

	slog.Info("processing datasets", "selected", len(selected), "total", len(metas),
		"engine", p.engine.Name(), "version", p.engine.Version(), "concurrency", p.cfg.Concurrency)

	results := p.runConcurrent(ctx, selected)

	runResult := p.aggregateResults(results, startTime)
	runResult.TotalDatasets = len(metas)
	runResult.Selected = len(selected)

	if p.cfg.ResultsPath != "" {
		if err := writeResult(p.cfg.ResultsPath, runResult); err != nil {
			return runResult, err
		}
	}
	return runResult, nil
}

// runConcurrent processes datasets with at most cfg.Concurrency in flight.
// Datasets not started before ctx is cancelled are returned as nil.
func (p *Pipeline) runConcurrent(ctx context.Context, metas []models.DatasetMeta) []*models.DatasetResult {
	results := make([]*models.DatasetResult, len(metas))

	var g errgroup.Group
	g.SetLimit(max(p.cfg.Concurrency, 1))

	for i, meta := range metas {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = p.processDataset(ctx, meta)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pipeline) processDataset(ctx context.Context, meta models.DatasetMeta) *models.DatasetResult {
	result := &models.DatasetResult{
		Slug:      meta.Slug,
		Name:      meta.Dataset.Name,
		StartedAt: time.Now(),
	}

	outcome, artifacts, err := p.runDataset(ctx, meta)
	result.InitialRepo = outcome.InitialState
	result.Created = outcome.Created
	result.Committed = outcome.Committed
	result.Artifacts = artifacts

	if err != nil {
		result.Error = &models.DatasetError{
			Type:    models.ErrorTypeOf(err),
			Message: err.Error(),
		}
		slog.Error("dataset failed", "slug", meta.Slug, "type", result.Error.Type, "error", err)
	}

	result.EndedAt = time.Now()
	result.DurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()
	return result
}

// runDataset is the materialize, generate, reconcile triplet for one dataset.
func (p *Pipeline) runDataset(ctx context.Context, meta models.DatasetMeta) (reconcile.Outcome, []models.Artifact, error) {
	cacheDir, err := p.materializer.Materialize(ctx, meta)
	if err != nil {
		return reconcile.Outcome{}, nil, err
	}

	var artifacts []models.Artifact
	outcome, err := p.reconciler.Reconcile(ctx, meta, func(ctx context.Context, repoDir string) error {
		if err := p.copyData(meta, repoDir); err != nil {
			return err
		}

		generated, err := p.driver.GenerateAll(ctx, meta, cacheDir, repoDir)
		artifacts = generated
		if err != nil {
			return err
		}

		readme, err := p.renderer.RenderDatasetReadme(meta)
		if err != nil {
			return models.NewError(models.ErrInternal, meta.Slug, fmt.Errorf("rendering readme: %w", err))
		}
		if err := os.WriteFile(filepath.Join(repoDir, ReadmeName), []byte(readme), 0o644); err != nil {
			return models.NewError(models.ErrInternal, meta.Slug, fmt.Errorf("writing readme: %w", err))
		}
		return nil
	})
	return outcome, artifacts, err
}

// copyData mirrors the dataset's source files, manifest excluded, into the
// repository's data directory so the replay script can run from a checkout.
func (p *Pipeline) copyData(meta models.DatasetMeta, repoDir string) error {
	dst := filepath.Join(repoDir, codegen.ReplayDataDir)
	if err := util.ResetDir(dst); err != nil {
		return models.NewError(models.ErrInternal, meta.Slug, err)
	}
	manifest := meta.ManifestFile()
	err := util.CopyDir(meta.DataDir, dst, func(rel string, d fs.DirEntry) bool {
		return rel == manifest
	})
	if err != nil {
		return models.NewError(models.ErrInternal, meta.Slug, fmt.Errorf("copying data: %w", err))
	}
	return nil
}

func (p *Pipeline) aggregateResults(results []*models.DatasetResult, startTime time.Time) *models.RunResult {
	rr := &models.RunResult{
		EngineVersion: p.engine.Version(),
		StartedAt:     startTime,
		Results:       make([]models.DatasetResult, 0, len(results)),
	}

	for _, r := range results {
		if r == nil {
			rr.Skipped++
			continue
		}
		if r.Error != nil {
			rr.Failed++
		} else {
			rr.Succeeded++
		}
		if r.Created {
			rr.Created++
		}
		if r.Committed {
			rr.Committed++
		}
		rr.Results = append(rr.Results, *r)
	}
	if rr.Skipped > 0 {
		rr.Cancelled = true
	}

	rr.EngineCost = p.engine.Cost()
	rr.EndedAt = time.Now()
	rr.TotalDurationSec = rr.EndedAt.Sub(rr.StartedAt).Seconds()
	return rr
}

func writeResult(path string, rr *models.RunResult) error {
	data, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return models.NewError(models.ErrInternal, "", fmt.Errorf("encoding run result: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.NewError(models.ErrInternal, "", fmt.Errorf("creating results directory: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.NewError(models.ErrInternal, "", fmt.Errorf("writing run result: %w", err))
	}
	return nil
}

// RunFromConfig builds the engine and repository backends described by cfg,
// runs one pass, and releases the engine.
func RunFromConfig(ctx context.Context, cfg models.PipelineConfig, slugs []string) (*models.RunResult, error) {
	version, err := engine.ResolveVersion(cfg.Engine)
	if err != nil {
		return nil, models.NewError(models.ErrConfig, "", err)
	}

	creator, err := forge.New(cfg.Host, os.Getenv)
	if err != nil {
		return nil, models.NewError(models.ErrConfig, "", fmt.Errorf("creating repository host: %w", err))
	}

	eng, err := engine.New(ctx, cfg.Engine, version)
	if err != nil {
		return nil, models.NewError(models.ErrConfig, "", fmt.Errorf("creating engine: %w", err))
	}
	defer func() {
		// The run context may already be cancelled.
		if err := eng.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("closing engine", "error", err)
		}
	}()

	vcs := reconcile.GitVCS{Options: git.Options{
		Branch:      cfg.Host.Branch,
		AuthorName:  cfg.Host.AuthorName,
		AuthorEmail: cfg.Host.AuthorEmail,
		Token:       os.Getenv(cfg.Host.TokenEnv),
	}}

	return New(cfg, eng, vcs, creator).Run(ctx, slugs)
}
