package cmd

import (
	"errors"

	"github.com/fazhang/genomeqs/internal/refdb"
	"github.com/fazhang/genomeqs/internal/util"

	"github.com/spf13/cobra"
)

var fetchDBCmd = &cobra.Command{
	Use:   "fetchdb",
	Short: "Download and unpack the CheckM reference database.",
	Long: `Scrapes the configured --feed-url index pages for reference database
archives, downloads the newest one and unpacks it into --checkm-data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if len(cfg.DataFeeds) == 0 {
			return errors.New("no reference database feed configured, set --feed-url")
		}
		logger := getLogger()
		client := util.DefaultHTTPClient()
		var errs error
		for _, feed := range cfg.DataFeeds {
			err := refdb.Fetch(cmd.Context(), client, logger, feed, cfg.CheckMData)
			if err == nil {
				return nil
			}
			logger.Warn("Reference database fetch failed, trying next feed.",
				"feed", feed, "error", err)
			errs = errors.Join(errs, err)
		}
		return errs
	},
}
