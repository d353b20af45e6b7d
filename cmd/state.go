package cmd

import (
	"errors"

	"github.com/fazhang/genomeqs/internal/db"

	"github.com/spf13/cobra"
)

var (
	stateKind  string
	stateEvent string
	stateLimit int
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the event history recorded in the state database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn := getDB()
		if dbConn == nil {
			return errors.New("state requires a database, set --db-path")
		}
		return db.DisplayHistory(cmd.Context(), dbConn, stateKind, stateEvent, stateLimit)
	},
}

func init() {
	stateCmd.Flags().StringVar(&stateKind, "kind", "", "Filter by subject kind (genome, task, run)")
	stateCmd.Flags().StringVar(&stateEvent, "event", "", "Filter by event type")
	stateCmd.Flags().IntVar(&stateLimit, "limit", 100, "Maximum number of rows to display")
}
