// Package aggregate merges per-task classification results back into one
// ordered result set keyed by original file identity, and writes the final
// table. Every collected genome produces exactly one row: absence of a
// classification becomes an explicit sentinel, never an omitted row.
package aggregate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/layout"
	"github.com/fazhang/genomeqs/internal/report"
)

// FinalRecord is the only entity that survives past the run: one row per
// collected genome, in discovery order.
type FinalRecord struct {
	Name          string // workspace name, the cross-task display identity
	Checksum      string
	Completeness  string
	Contamination string
	QS            string
	QualityClass  string
}

// Classify buckets a genome into a MIMAG quality tier and computes its
// quality score (completeness - 5*contamination).
func Classify(completeness, contamination float64, t config.Thresholds) (string, float64) {
	qs := completeness - 5*contamination
	switch {
	case completeness >= t.NearCompleteMinCompleteness && contamination <= t.NearCompleteMaxContamination:
		return "near-complete", qs
	case completeness >= t.HighMinCompleteness && contamination <= t.HighMaxContamination:
		return "high-quality", qs
	case completeness >= t.MediumMinCompleteness && contamination <= t.MediumMaxContamination:
		return "medium-quality", qs
	default:
		return "low-quality", qs
	}
}

// Build produces one FinalRecord per genome in the order genomes were
// discovered. The lookup key is the workspace name minus its extension,
// matching how the external tool derives bin identifiers from file names.
func Build(genomes []layout.GenomeFile, results map[string]report.Quality, t config.Thresholds) []FinalRecord {
	records := make([]FinalRecord, 0, len(genomes))
	for _, g := range genomes {
		name := g.WorkspaceName()
		binID := strings.TrimSuffix(name, filepath.Ext(name))

		rec := FinalRecord{
			Name:          name,
			Checksum:      g.Checksum,
			Completeness:  config.SentinelValue,
			Contamination: config.SentinelValue,
			QS:            config.SentinelValue,
			QualityClass:  config.SentinelLabel,
		}
		if q, ok := results[binID]; ok {
			class, qs := Classify(q.Completeness, q.Contamination, t)
			rec.Completeness = formatFloat(q.Completeness)
			rec.Contamination = formatFloat(q.Contamination)
			rec.QS = formatFloat(qs)
			rec.QualityClass = class
		}
		records = append(records, rec)
	}
	return records
}

// WriteCSV writes the result table. The destination directory is created if
// needed; the table has a single writer, after the task barrier.
func WriteCSV(path string, records []FinalRecord) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"fasta_file_name", "fasta_file_md5", "completeness", "contamination", "qs", "quality_class"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write([]string{r.Name, r.Checksum, r.Completeness, r.Contamination, r.QS, r.QualityClass}); err != nil {
			return fmt.Errorf("write record %s: %w", r.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush output %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
