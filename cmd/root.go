package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/db"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/spf13/cobra"
)

var (
	// Persistent flags, bound in init().
	inputDir   string
	outputPath string
	structure  string
	extension  string
	workers    int
	batchSize  int
	checkmData string
	keepTemp   bool
	dbPath     string
	parquetDir string
	feedURLs   []string
	logFormat  string
	logLevel   string
	logOutput  string

	nearCompleteMinComp float64
	nearCompleteMaxCont float64
	highMinComp         float64
	highMaxCont         float64
	mediumMinComp       float64
	mediumMaxCont       float64

	// Populated in PersistentPreRunE.
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "genomeqs",
	Short: "Batch genome quality assessment with CheckM, plus assembly stats and analysis.",
	Long: `GenomeQS orchestrates CheckM over a directory of genome assemblies: it
collects FASTA files, partitions them into batches, runs the classifier
concurrently in isolated workspaces and aggregates one quality table with
MIMAG-style classes. A DuckDB database tracks run history and holds imported
results for analysis.

The primary command is 'run'. Other commands compute assembly stats, import
result CSVs, export them to Parquet, run analyses, fetch the reference
database or show event history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		if logOutput != "" && strings.ToLower(logOutput) != "stderr" {
			if strings.ToLower(logOutput) == "stdout" {
				logWriter = os.Stdout
			} else {
				f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
				}
				logWriter = f
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		appConfig = config.Config{
			InputDir:   inputDir,
			OutputPath: outputPath,
			Structure:  config.Structure(strings.ToLower(structure)),
			Extension:  extension,
			Workers:    workers,
			BatchSize:  batchSize,
			CheckMData: checkmData,
			KeepTemp:   keepTemp,
			DbPath:     dbPath,
			ParquetDir: parquetDir,
			DataFeeds:  feedURLs,
			Thresholds: config.Thresholds{
				NearCompleteMinCompleteness:  nearCompleteMinComp,
				NearCompleteMaxContamination: nearCompleteMaxCont,
				HighMinCompleteness:          highMinComp,
				HighMaxContamination:         highMaxCont,
				MediumMinCompleteness:        mediumMinComp,
				MediumMaxContamination:       mediumMaxCont,
			},
		}

		switch appConfig.Structure {
		case config.StructureAuto, config.StructureFlat, config.StructureNested:
		default:
			return fmt.Errorf("invalid --structure %q (use auto, flat or nested)", structure)
		}
		if appConfig.Workers < 1 {
			return fmt.Errorf("--workers must be at least 1, got %d", appConfig.Workers)
		}
		rootLogger.Debug("Configuration loaded.", slog.Any("config", appConfig))

		// The event database is optional: pass --db-path none to run without
		// history tracking.
		if dbPath == "" || strings.ToLower(dbPath) == "none" {
			rootLogger.Info("Event database disabled.")
			return nil
		}

		if dbPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", filepath.Dir(dbPath), err)
			}
		}

		rootLogger.Info("Initializing DuckDB connection.", slog.String("path", dbPath))
		var err error
		dbConn, err = sql.Open("duckdb", dbPath)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", dbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", dbPath, err)
		}

		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly.", "error", err)
			}
		}
		return nil
	},
}

// Execute wires up the subcommands and runs the CLI. Called by main.main().
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(fetchDBCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(tuiCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed.", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	defaults := config.DefaultThresholds()

	rootCmd.PersistentFlags().StringVarP(&inputDir, "input-dir", "i", ".", "Directory containing genome FASTA files")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "./final_results.csv", "Path of the result CSV")
	rootCmd.PersistentFlags().StringVar(&structure, "structure", "auto", "Input layout (auto, flat or nested)")
	rootCmd.PersistentFlags().StringVarP(&extension, "extension", "x", config.DefaultExtension, "FASTA file extension to collect")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", config.DefaultWorkers, "Number of concurrent classifier tasks")
	rootCmd.PersistentFlags().IntVarP(&batchSize, "batch-size", "b", 0, "Genomes per task (0 partitions evenly across workers)")
	rootCmd.PersistentFlags().StringVar(&checkmData, "checkm-data", config.DefaultCheckMData, "CheckM reference database directory")
	rootCmd.PersistentFlags().BoolVar(&keepTemp, "keep-temp", false, "Retain the run workspace for debugging")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", "./genomeqs_state.duckdb", "Path to DuckDB state database (:memory: for in-memory, none to disable)")
	rootCmd.PersistentFlags().StringVar(&parquetDir, "parquet-dir", "./parquet", "Directory for exported Parquet files")
	rootCmd.PersistentFlags().StringSliceVar(&feedURLs, "feed-url", config.DefaultFeedURLs, "Index pages scraped for reference database archives")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.PersistentFlags().Float64Var(&nearCompleteMinComp, "near-complete-min-completeness", defaults.NearCompleteMinCompleteness, "Near complete class minimum completeness")
	rootCmd.PersistentFlags().Float64Var(&nearCompleteMaxCont, "near-complete-max-contamination", defaults.NearCompleteMaxContamination, "Near complete class maximum contamination")
	rootCmd.PersistentFlags().Float64Var(&highMinComp, "high-min-completeness", defaults.HighMinCompleteness, "High quality class minimum completeness")
	rootCmd.PersistentFlags().Float64Var(&highMaxCont, "high-max-contamination", defaults.HighMaxContamination, "High quality class maximum contamination")
	rootCmd.PersistentFlags().Float64Var(&mediumMinComp, "medium-min-completeness", defaults.MediumMinCompleteness, "Medium quality class minimum completeness")
	rootCmd.PersistentFlags().Float64Var(&mediumMaxCont, "medium-max-contamination", defaults.MediumMaxContamination, "Medium quality class maximum contamination")

	rootCmd.Version = "0.3.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
