package cmd

import (
	"fmt"
	"runtime"

	"github.com/fazhang/genomeqs/internal/app"
	"github.com/fazhang/genomeqs/internal/classifier"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal UI for runs, stats, fetches and analysis.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		logger := getLogger()

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

		model := app.NewAppModel(cfg, getDB(), runner, logger)
		p := tea.NewProgram(model, tea.WithAltScreen())
		finalModel, err := p.Run()
		if err != nil {
			return fmt.Errorf("tui error: %w", err)
		}
		if m, ok := finalModel.(*app.AppModel); ok && m.Quitting {
			logger.Info("TUI exited.")
		}
		return nil
	},
}
