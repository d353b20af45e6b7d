package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/fazhang/genomeqs/internal/classifier"
	"github.com/fazhang/genomeqs/internal/orchestrator"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full quality assessment workflow over a genome directory.",
	Long: `Collects genome FASTA files under --input-dir, partitions them into tasks,
runs CheckM concurrently in isolated workspaces and writes one CSV row per
genome with completeness, contamination, quality score and quality class.
Genomes the classifier never reports on are kept with sentinel values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		logger := getLogger()

		// The reference database must be in place before any workspace is
		// created or any copy happens.
		info, err := os.Stat(cfg.CheckMData)
		if err != nil {
			return fmt.Errorf("checkm reference database not accessible at %s: %w", cfg.CheckMData, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("checkm reference database path %s is not a directory", cfg.CheckMData)
		}

		// CPU budget is split across concurrent tasks so parallel CheckM
		// invocations do not oversubscribe the machine.
		threads := runtime.NumCPU() / cfg.Workers
		if threads < 1 {
			threads = 1
		}
		runner := &classifier.CheckM{
			DataPath:  cfg.CheckMData,
			Extension: cfg.Extension,
			Threads:   threads,
			Logger:    logger,
		}
		logger.Info("Starting quality assessment run.",
			slog.String("input", cfg.InputDir),
			slog.Int("workers", cfg.Workers),
			slog.Int("threads_per_task", threads))

		return orchestrator.Run(cmd.Context(), cfg, getDB(), logger, runner, nil)
	},
}
