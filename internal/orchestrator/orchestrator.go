// Package orchestrator drives the full quality-assessment workflow: detect
// layout, collect genomes, partition into tasks, materialize isolated
// workspaces, run the external classifier concurrently per task, parse the
// summaries and aggregate one ordered result table.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fazhang/genomeqs/internal/aggregate"
	"github.com/fazhang/genomeqs/internal/batch"
	"github.com/fazhang/genomeqs/internal/classifier"
	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/db"
	"github.com/fazhang/genomeqs/internal/layout"
	"github.com/fazhang/genomeqs/internal/report"
	"github.com/fazhang/genomeqs/internal/workspace"
)

// TaskProgress reports one task's state transitions to an optional observer
// (the TUI). Nil channels are allowed and ignored.
type TaskProgress struct {
	TaskID     int
	TotalTasks int
	Genomes    int
	Status     string // "Queued", "Copying", "Classifying", "Parsing", "Complete", "Failed"
	ErrMsg     string
	Elapsed    time.Duration
}

// taskOutcome is what a worker hands back across the barrier.
type taskOutcome struct {
	results map[string]report.Quality
	failed  bool
}

// Run executes the whole pipeline. Task-level classifier or summary failures
// are warnings: the affected genomes get the sentinel label and the run
// still produces a complete table. Materialization failures abort the run.
// dbConn may be nil to disable event history.
func Run(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger, runner classifier.Runner, progressChan chan<- TaskProgress) error {
	if progressChan != nil {
		defer close(progressChan)
	}
	runStart := time.Now()
	db.LogEvent(ctx, dbConn, cfg.InputDir, db.KindRun, db.EventRunStart, cfg.InputDir, cfg.OutputPath, "", "", nil)

	// Phase 1: detect and collect. Failures here are fatal and happen
	// before any workspace exists.
	kind, err := layout.Detect(cfg.InputDir, cfg.Structure)
	if err != nil {
		return err
	}
	logger.Info("Detected input structure.", slog.String("layout", string(kind)))

	genomes, err := layout.Collect(cfg.InputDir, kind, cfg.Extension, logger)
	if err != nil {
		return err
	}
	for _, g := range genomes {
		db.LogEvent(ctx, dbConn, g.WorkspaceName(), db.KindGenome, db.EventCollected, g.SourcePath, "", "", g.Checksum, nil)
	}

	// Phase 2: partition into disjoint tasks.
	tasks := batch.Partition(genomes, cfg.Workers, cfg.BatchSize)
	logger.Info("Partitioned genomes into tasks.",
		slog.Int("genomes", len(genomes)),
		slog.Int("tasks", len(tasks)),
		slog.Int("workers", cfg.Workers),
		slog.Int("batch_size", cfg.BatchSize))

	// Phase 3: workspace root, released on every exit path.
	root, err := workspace.NewRoot(cfg.KeepTemp)
	if err != nil {
		return err
	}
	defer func() {
		root.Cleanup(logger)
		db.LogEvent(context.Background(), dbConn, root.Dir, db.KindRun, db.EventCleanup, "", "", "", "", nil)
	}()
	logger.Info("Created run workspace.", slog.String("dir", root.Dir))

	// Phase 4: task workers. Each slot materializes, classifies and parses
	// one task to completion before picking up another. A materialization
	// failure cancels the run; classifier and parse failures only mark the
	// task failed.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	jobs := make(chan batch.Task, len(tasks))
	outcomes := make([]taskOutcome, len(tasks))

	var wg sync.WaitGroup
	var fatalMu sync.Mutex
	var fatalErr error

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			l := logger.With(slog.Int("worker_id", workerID))
			for task := range jobs {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				outcome, taskFatal := runTask(runCtx, cfg, dbConn, l, runner, root, task, len(tasks), progressChan)
				outcomes[task.ID] = outcome
				if taskFatal != nil {
					fatalMu.Lock()
					fatalErr = errors.Join(fatalErr, taskFatal)
					fatalMu.Unlock()
					cancelRun()
					return
				}
			}
		}(i)
	}

	for _, task := range tasks {
		sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: len(tasks), Genomes: len(task.Files), Status: "Queued"})
		jobs <- task
	}
	close(jobs)

	// Barrier: aggregation must not begin until every task has reported,
	// since sentinel filling depends on complete knowledge.
	wg.Wait()

	if fatalErr != nil {
		return fmt.Errorf("run aborted: %w", fatalErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 5: merge and aggregate, single writer.
	merged := make(map[string]report.Quality)
	failedTasks := 0
	for _, outcome := range outcomes {
		if outcome.failed {
			failedTasks++
			continue
		}
		for id, q := range outcome.results {
			merged[id] = q
		}
	}

	records := aggregate.Build(genomes, merged, cfg.Thresholds)
	if err := aggregate.WriteCSV(cfg.OutputPath, records); err != nil {
		return err
	}

	classified := 0
	for _, r := range records {
		if r.QualityClass != config.SentinelLabel {
			classified++
		}
	}
	runDuration := time.Since(runStart)
	db.LogEvent(ctx, dbConn, cfg.InputDir, db.KindRun, db.EventRunEnd, cfg.InputDir, cfg.OutputPath,
		fmt.Sprintf("%d/%d genomes classified, %d failed tasks", classified, len(records), failedTasks), "", &runDuration)
	logger.Info("Run complete.",
		slog.Int("genomes", len(records)),
		slog.Int("classified", classified),
		slog.Int("failed_tasks", failedTasks),
		slog.String("output", cfg.OutputPath),
		slog.Duration("duration", runDuration.Round(time.Millisecond)))
	return nil
}

// runTask takes one task through materialize -> classify -> parse. The
// second return value is non-nil only for data-integrity failures, which
// abort the whole run.
func runTask(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger, runner classifier.Runner, root *workspace.Root, task batch.Task, totalTasks int, progressChan chan<- TaskProgress) (taskOutcome, error) {
	start := time.Now()
	taskName := "task_" + strconv.Itoa(task.ID)
	l := logger.With(slog.Int("task_id", task.ID), slog.Int("genomes", len(task.Files)))
	l.Info("Task started.")
	db.LogEvent(ctx, dbConn, taskName, db.KindTask, db.EventTaskStart, "", "", "", "", nil)

	sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: totalTasks, Genomes: len(task.Files), Status: "Copying"})

	ts, err := workspace.Materialize(root, task, l)
	if err != nil {
		// Copy errors and size mismatches are a data-integrity risk:
		// never proceed to classification.
		l.Error("Workspace materialization failed, aborting run.", "error", err)
		db.LogEvent(ctx, dbConn, taskName, db.KindTask, db.EventError, "", "", err.Error(), "", nil)
		sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: totalTasks, Genomes: len(task.Files), Status: "Failed", ErrMsg: err.Error(), Elapsed: time.Since(start)})
		return taskOutcome{failed: true}, err
	}
	for _, mf := range ts.Files {
		db.LogEvent(ctx, dbConn, mf.Name, db.KindGenome, db.EventCopyEnd, mf.Genome.SourcePath, mf.Path, "", mf.Genome.Checksum, nil)
	}

	sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: totalTasks, Genomes: len(task.Files), Status: "Classifying"})

	ok, diagnostic := runner.Run(ctx, ts.WorkDir, ts.OutDir)
	if !ok {
		// Tolerated per task: the genomes fall back to the sentinel label.
		// Retrying a whole tool invocation is left to the operator.
		l.Warn("Classifier invocation failed, genomes fall back to sentinel.",
			slog.String("diagnostic", diagnostic))
		taskDuration := time.Since(start)
		db.LogEvent(ctx, dbConn, taskName, db.KindTask, db.EventError, "", ts.OutDir, diagnostic, "", &taskDuration)
		sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: totalTasks, Genomes: len(task.Files), Status: "Failed", ErrMsg: diagnostic, Elapsed: taskDuration})
		return taskOutcome{failed: true}, nil
	}

	sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: totalTasks, Genomes: len(task.Files), Status: "Parsing"})

	results, err := report.ParseDir(ts.OutDir, l)
	if err != nil {
		// Same handling as a tool failure.
		l.Warn("Summary parsing failed, genomes fall back to sentinel.", "error", err)
		taskDuration := time.Since(start)
		db.LogEvent(ctx, dbConn, taskName, db.KindTask, db.EventError, "", ts.OutDir, err.Error(), "", &taskDuration)
		sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: totalTasks, Genomes: len(task.Files), Status: "Failed", ErrMsg: err.Error(), Elapsed: taskDuration})
		return taskOutcome{failed: true}, nil
	}

	db.LogEvent(ctx, dbConn, taskName, db.KindTask, db.EventParseEnd, "", ts.OutDir,
		fmt.Sprintf("%d bins parsed", len(results)), "", nil)

	taskDuration := time.Since(start)
	db.LogEvent(ctx, dbConn, taskName, db.KindTask, db.EventTaskEnd, "", ts.OutDir, "", "", &taskDuration)
	l.Info("Task complete.",
		slog.Int("bins_parsed", len(results)),
		slog.Duration("duration", taskDuration.Round(time.Millisecond)))
	sendProgress(progressChan, TaskProgress{TaskID: task.ID, TotalTasks: totalTasks, Genomes: len(task.Files), Status: "Complete", Elapsed: taskDuration})
	return taskOutcome{results: results}, nil
}

func sendProgress(ch chan<- TaskProgress, p TaskProgress) {
	if ch == nil {
		return
	}
	ch <- p
}
