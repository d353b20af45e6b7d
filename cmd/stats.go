package cmd

import (
	"github.com/fazhang/genomeqs/internal/assembly"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute assembly statistics (size, N50, L50) for each genome.",
	Long: `Streams every FASTA file under --input-dir (gzip supported) and writes a
CSV with total size, sequence count, largest and smallest contig, N50 and
L50 per file. The output loads into the stats table via 'import'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return assembly.Run(cmd.Context(), getConfig(), getLogger())
	},
}
