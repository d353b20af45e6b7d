package cmd

import (
	"fmt"

	"github.com/fazhang/genomeqs/internal/export"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <result.csv> [more.csv ...]",
	Short: "Convert result CSVs to Parquet files.",
	Long: `Converts one or more result CSVs into SNAPPY compressed Parquet files under
--parquet-dir, inferring column types from the data. Sentinel values become
NULLs in numeric columns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		logger := getLogger()
		for _, csvPath := range args {
			if _, err := export.CSVToParquet(csvPath, cfg.ParquetDir, logger); err != nil {
				return fmt.Errorf("export %s: %w", csvPath, err)
			}
		}
		return nil
	},
}
