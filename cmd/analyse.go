package cmd

import (
	"errors"

	"github.com/fazhang/genomeqs/internal/analyser"
	"github.com/fazhang/genomeqs/internal/config"

	"github.com/spf13/cobra"
)

var (
	analyseBasicTable  string
	analyseSupplyTable string
)

var analyseCmd = &cobra.Command{
	Use:   "analyse",
	Short: "Run summary reports over imported results.",
	Long: `Prints the quality class distribution, per-class completeness and
contamination summaries, a quality score histogram and, when assembly stats
have been imported, a ranking of the best genomes by quality score and N50.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn := getDB()
		if dbConn == nil {
			return errors.New("analysis requires a database, set --db-path")
		}
		return analyser.RunAnalysis(cmd.Context(), dbConn, getLogger(), analyseBasicTable, analyseSupplyTable)
	},
}

func init() {
	analyseCmd.Flags().StringVar(&analyseBasicTable, "basic-table", config.DefaultBasicTable, "Name of the basic result table")
	analyseCmd.Flags().StringVar(&analyseSupplyTable, "supply-table", config.DefaultSupplyTable, "Name of the supply result table")
}
