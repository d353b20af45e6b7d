package cmd

import (
	"errors"
	"log/slog"

	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/db"

	"github.com/spf13/cobra"
)

var (
	importStatsCSV   string
	importQualityCSV string
	importBasicTable string
	importSupplyTbl  string
	importUniqueKey  string
	importBatchSize  int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load result CSVs into the DuckDB result tables.",
	Long: `Creates the result tables if needed and loads assembly stats CSVs into the
basic table and quality CSVs into the supply table. Rows whose unique key
already exists are ignored, so imports are idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		dbConn := getDB()
		if dbConn == nil {
			return errors.New("import requires a database, set --db-path")
		}
		if importStatsCSV == "" && importQualityCSV == "" {
			return errors.New("nothing to import, pass --stats-csv and/or --quality-csv")
		}

		ctx := cmd.Context()
		if err := db.CreateResultTables(ctx, dbConn, importBasicTable, importSupplyTbl, importUniqueKey); err != nil {
			return err
		}

		if importStatsCSV != "" {
			n, err := db.ImportCSV(ctx, dbConn, logger, importBasicTable, importStatsCSV, importBatchSize)
			if err != nil {
				return err
			}
			logger.Info("Stats import complete.", slog.String("table", importBasicTable), slog.Int("rows", n))
		}
		if importQualityCSV != "" {
			n, err := db.ImportCSV(ctx, dbConn, logger, importSupplyTbl, importQualityCSV, importBatchSize)
			if err != nil {
				return err
			}
			logger.Info("Quality import complete.", slog.String("table", importSupplyTbl), slog.Int("rows", n))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importStatsCSV, "stats-csv", "", "Assembly stats CSV to load into the basic table")
	importCmd.Flags().StringVar(&importQualityCSV, "quality-csv", "", "Quality result CSV to load into the supply table")
	importCmd.Flags().StringVar(&importBasicTable, "basic-table", config.DefaultBasicTable, "Name of the basic result table")
	importCmd.Flags().StringVar(&importSupplyTbl, "supply-table", config.DefaultSupplyTable, "Name of the supply result table")
	importCmd.Flags().StringVar(&importUniqueKey, "unique-key", "fasta_file_md5", "Deduplication key (fasta_file_name or fasta_file_md5)")
	importCmd.Flags().IntVar(&importBatchSize, "import-batch-size", db.DefaultImportBatchSize, "Rows per insert transaction")
}
