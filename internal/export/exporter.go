package export

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurihiro0119/github-repo-export/internal/aggregator"
	"github.com/kurihiro0119/github-repo-export/internal/collector"
	"github.com/kurihiro0119/github-repo-export/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-export/internal/errors"
	"github.com/kurihiro0119/github-repo-export/internal/storage"
)

// Options describes one export run
type Options struct {
	Org        string
	Properties []string
	OutputFile string
	// Debug processes only the first page of repositories
	Debug bool
	// SkipFailures logs and skips repositories whose details cannot be fetched
	// instead of aborting the run
	SkipFailures bool
}

// Exporter runs the enumerate, fetch, flatten and write pipeline.
// Repositories are processed one at a time in enumeration order.
type Exporter struct {
	collector collector.Collector
	fetcher   *Fetcher
	store     storage.Storage
	logger    *zap.Logger
	now       func() time.Time
}

// NewExporter creates a new Exporter. store may be nil, in which case runs are not recorded.
func NewExporter(coll collector.Collector, store storage.Storage, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		collector: coll,
		fetcher:   NewFetcher(coll),
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Run exports every repository of opts.Org to opts.OutputFile.
// The returned run is never nil; it carries the summary even when the run fails.
// Rows written before a failure stay in the output file.
func (e *Exporter) Run(ctx context.Context, opts Options) (*domain.ExportRun, error) {
	run := &domain.ExportRun{
		ID:         uuid.NewString(),
		Org:        opts.Org,
		OutputFile: opts.OutputFile,
		Properties: opts.Properties,
		Debug:      opts.Debug,
		Status:     domain.RunStatusInProgress,
		StartedAt:  e.now(),
	}
	logger := e.logger.With(zap.String("run_id", run.ID), zap.String("org", opts.Org))

	if e.store != nil {
		if err := e.store.CreateRun(ctx, run); err != nil {
			logger.Warn("Failed to record run", zap.Error(err))
		}
	}

	agg := aggregator.NewAggregator(opts.Org, opts.Properties)
	err := e.export(ctx, logger, run, agg, opts)

	finished := e.now()
	run.FinishedAt = &finished
	run.Summary = agg.Summary()
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
		logger.Error("Export failed", zap.Int("rows", run.RowsWritten), zap.Error(err))
	} else {
		run.Status = domain.RunStatusCompleted
		logger.Info("Export completed",
			zap.Int("rows", run.RowsWritten),
			zap.Int("skipped", run.Skipped),
			zap.String("output", opts.OutputFile),
		)
	}

	if e.store != nil {
		// the run is finished even if ctx was cancelled
		if serr := e.store.FinishRun(context.WithoutCancel(ctx), run); serr != nil {
			logger.Warn("Failed to record run result", zap.Error(serr))
		}
	}

	return run, err
}

func (e *Exporter) export(ctx context.Context, logger *zap.Logger, run *domain.ExportRun, agg aggregator.Aggregator, opts Options) (err error) {
	w, err := Create(opts.OutputFile, Header(opts.Properties))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = apperrors.NewOutputError("close output file", cerr)
		}
	}()

	process := func(repo *domain.RepositorySummary) error {
		return e.process(ctx, logger, w, run, agg, opts, repo)
	}

	if !opts.Debug {
		return e.collector.EachRepository(ctx, opts.Org, process)
	}

	logger.Debug("Debug mode, processing the first page of repositories only")
	repos, err := e.collector.FirstPage(ctx, opts.Org)
	if err != nil {
		return err
	}
	for _, repo := range repos {
		if err := process(repo); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) process(ctx context.Context, logger *zap.Logger, w *Writer, run *domain.ExportRun, agg aggregator.Aggregator, opts Options, repo *domain.RepositorySummary) error {
	logger.Info("Retrieving repository details", zap.String("repo", repo.Name))

	details, err := e.fetcher.Fetch(ctx, opts.Org, repo)
	if err != nil {
		if opts.SkipFailures && ctx.Err() == nil {
			logger.Warn("Skipping repository", zap.String("repo", repo.Name), zap.Error(err))
			agg.Skip(repo.Name)
			run.Skipped++
			e.recordResult(ctx, logger, run.ID, repo.Name, domain.RepoStatusSkipped, err.Error())
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		e.recordResult(ctx, logger, run.ID, repo.Name, domain.RepoStatusFailed, err.Error())
		return &apperrors.RepositoryError{Repo: repo.Name, Err: err}
	}

	if err := w.Append(Flatten(repo, details, opts.Properties)); err != nil {
		return err
	}
	run.RowsWritten++
	agg.Add(repo, details)
	e.recordResult(ctx, logger, run.ID, repo.Name, domain.RepoStatusExported, "")
	return nil
}

func (e *Exporter) recordResult(ctx context.Context, logger *zap.Logger, runID, repo string, status domain.RepoStatus, message string) {
	if e.store == nil {
		return
	}
	result := &domain.RepoResult{
		RunID:        runID,
		Repo:         repo,
		Status:       status,
		ErrorMessage: message,
		CreatedAt:    e.now(),
	}
	if err := e.store.SaveRepoResult(ctx, result); err != nil {
		logger.Warn("Failed to record repository result", zap.String("repo", repo), zap.Error(err))
	}
}
