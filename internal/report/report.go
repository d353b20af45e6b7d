// Package report parses the classifier's tab-separated summary output into a
// per-task map of workspace identifier to quality metrics.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedSummary is returned when the header marker never appears. The
// owning task is then treated as failed, same as a non-zero tool exit.
var ErrMalformedSummary = errors.New("summary format error: no header found")

// HeaderMarker is the first column name of the summary header row. Preamble
// lines before it (banners, separators) are skipped.
const HeaderMarker = "Bin Id"

// Quality holds the metrics parsed for one genome bin.
type Quality struct {
	Completeness  float64
	Contamination float64
}

// Parse reads one tab-separated summary. Keys of the returned map are bin
// identifiers (workspace names without extension). Rows whose numeric fields
// fail to parse are skipped individually with a warning, never fatally.
func Parse(r io.Reader, logger *slog.Logger) (map[string]Quality, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1*1024*1024)

	var header []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, HeaderMarker) {
			header = strings.Split(strings.TrimRight(line, "\r\n"), "\t")
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan summary: %w", err)
	}
	if header == nil {
		return nil, ErrMalformedSummary
	}

	completenessIdx := columnIndex(header, "Completeness")
	contaminationIdx := columnIndex(header, "Contamination")
	if completenessIdx < 0 || contaminationIdx < 0 {
		return nil, fmt.Errorf("%w: missing Completeness/Contamination columns", ErrMalformedSummary)
	}

	results := make(map[string]Quality)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) <= completenessIdx || len(fields) <= contaminationIdx {
			logger.Warn("Skipping short summary row.", slog.Int("row", lineNum))
			continue
		}
		binID := strings.TrimSpace(fields[0])
		completeness, err1 := parsePercent(fields[completenessIdx])
		contamination, err2 := parsePercent(fields[contaminationIdx])
		if err1 != nil || err2 != nil {
			logger.Warn("Skipping unparsable summary row.",
				slog.Int("row", lineNum), slog.String("bin_id", binID))
			continue
		}
		results[binID] = Quality{Completeness: completeness, Contamination: contamination}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan summary rows: %w", err)
	}
	return results, nil
}

// ParseDir locates every per-domain summary file in a task's output
// directory, parses each independently and merges the results. At least one
// summary must parse; otherwise the first error is returned.
func ParseDir(outDir string, logger *slog.Logger) (map[string]Quality, error) {
	paths, err := filepath.Glob(filepath.Join(outDir, "*.tsv"))
	if err != nil {
		return nil, fmt.Errorf("glob summaries in %s: %w", outDir, err)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no summary files in %s", ErrMalformedSummary, outDir)
	}

	merged := make(map[string]Quality)
	var firstErr error
	parsed := 0
	for _, path := range paths {
		f, openErr := os.Open(path)
		if openErr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("open summary %s: %w", path, openErr)
			}
			continue
		}
		results, parseErr := Parse(f, logger.With(slog.String("summary", filepath.Base(path))))
		f.Close()
		if parseErr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("parse summary %s: %w", path, parseErr)
			}
			continue
		}
		parsed++
		for id, q := range results {
			merged[id] = q
		}
	}
	if parsed == 0 {
		return nil, firstErr
	}
	return merged, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

func parsePercent(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
}
