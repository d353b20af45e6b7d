// Package assembly computes per-file assembly statistics (total size,
// sequence count, largest/smallest contig, N50, L50) by streaming FASTA
// files, with transparent gzip support.
package assembly

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/layout"
)

// Stats holds the assembly metrics for one FASTA file.
type Stats struct {
	TotalBP    int64
	Sequences  int
	LargestBP  int
	SmallestBP int
	N50BP      int
	L50        int
}

// csvHeader matches the import layer's column sanitization, so a stats CSV
// loads into the basic result table without remapping.
var csvHeader = []string{
	"fasta_file_name", "fasta_file_md5",
	"total_size(bp)", "sequences", "largest_seq(bp)", "smallest_seq(bp)", "N50(bp)", "L50",
}

type fileStats struct {
	genome layout.GenomeFile
	stats  Stats
}

// Run collects the FASTA files under cfg.InputDir, computes stats for each
// with cfg.Workers concurrent readers and writes one CSV row per file in
// discovery order to cfg.OutputPath. Unreadable or malformed files abort
// the run.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	kind, err := layout.Detect(cfg.InputDir, cfg.Structure)
	if err != nil {
		return err
	}
	genomes, err := layout.Collect(cfg.InputDir, kind, cfg.Extension, logger)
	if err != nil {
		return err
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(genomes) {
		workers = len(genomes)
	}

	rows := make([]fileStats, len(genomes))
	jobs := make(chan int, len(genomes))
	errs := make([]error, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}
				g := genomes[idx]
				s, err := ReadStats(g.SourcePath)
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("stats for %s: %w", g.SourcePath, err))
					mu.Unlock()
					continue
				}
				rows[idx] = fileStats{genome: g, stats: s}
				logger.Debug("Computed assembly stats.",
					slog.String("file", g.WorkspaceName()),
					slog.Int64("total_bp", s.TotalBP),
					slog.Int("sequences", s.Sequences),
					slog.Int("n50", s.N50BP))
			}
		}()
	}
	for i := range genomes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to compute stats for %d file(s), first: %w", len(errs), errs[0])
	}

	if err := writeCSV(cfg.OutputPath, rows); err != nil {
		return err
	}
	logger.Info("Assembly stats complete.",
		slog.Int("files", len(rows)),
		slog.String("output", cfg.OutputPath))
	return nil
}

// ReadStats streams one FASTA file and computes its metrics. Files ending
// in .gz are decompressed on the fly.
func ReadStats(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Stats{}, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	lengths, err := sequenceLengths(r)
	if err != nil {
		return Stats{}, err
	}
	if len(lengths) == 0 {
		return Stats{}, fmt.Errorf("no sequences in %s", path)
	}
	return compute(lengths), nil
}

// sequenceLengths reads FASTA records and returns the length of each
// sequence. Sequence lines may be arbitrarily long, so reads go through
// ReadString rather than a line scanner.
func sequenceLengths(r io.Reader) ([]int, error) {
	br := bufio.NewReader(r)
	var lengths []int
	current := -1
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if len(line) > 0 {
			if line[0] == '>' {
				if current >= 0 {
					lengths = append(lengths, current)
				}
				current = 0
			} else if current >= 0 {
				current += len(line)
			} else {
				return nil, fmt.Errorf("sequence data before first header")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if current >= 0 {
		lengths = append(lengths, current)
	}
	return lengths, nil
}

// compute derives the metrics from a set of sequence lengths. N50 is the
// length of the shortest sequence in the minimal set covering half the
// total assembly, L50 the size of that set.
func compute(lengths []int) Stats {
	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	var total int64
	for _, l := range sorted {
		total += int64(l)
	}

	s := Stats{
		TotalBP:    total,
		Sequences:  len(sorted),
		LargestBP:  sorted[0],
		SmallestBP: sorted[len(sorted)-1],
	}

	var cum int64
	for i, l := range sorted {
		cum += int64(l)
		if cum*2 >= total {
			s.N50BP = l
			s.L50 = i + 1
			break
		}
	}
	return s
}

func writeCSV(path string, rows []fileStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create stats output %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.genome.WorkspaceName(),
			row.genome.Checksum,
			strconv.FormatInt(row.stats.TotalBP, 10),
			strconv.Itoa(row.stats.Sequences),
			strconv.Itoa(row.stats.LargestBP),
			strconv.Itoa(row.stats.SmallestBP),
			strconv.Itoa(row.stats.N50BP),
			strconv.Itoa(row.stats.L50),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
