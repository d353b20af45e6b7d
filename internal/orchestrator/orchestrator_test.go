package orchestrator

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/layout"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner stands in for the external classifier: it reports fixed
// metrics for every genome in the workDir, or fails the task when the
// workDir contains failOn.
type fakeRunner struct {
	completeness  float64
	contamination float64
	failOn        string
}

func (f *fakeRunner) Run(ctx context.Context, workDir, outDir string) (bool, string) {
	matches, err := filepath.Glob(filepath.Join(workDir, "*.fa"))
	if err != nil {
		return false, err.Error()
	}

	var b strings.Builder
	b.WriteString("Bin Id\tCompleteness\tContamination\n")
	for _, path := range matches {
		name := filepath.Base(path)
		if f.failOn != "" && name == f.failOn {
			return false, "simulated classifier crash"
		}
		bin := strings.TrimSuffix(name, ".fa")
		fmt.Fprintf(&b, "%s\t%.2f\t%.2f\n", bin, f.completeness, f.contamination)
	}
	if err := os.WriteFile(filepath.Join(outDir, "checkm_results.tsv"), []byte(b.String()), 0o644); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// vanishingInputRunner deletes removePath before its first classification,
// so a later task finds its source genome gone at copy time.
type vanishingInputRunner struct {
	fakeRunner
	removePath string
	removed    bool
}

func (r *vanishingInputRunner) Run(ctx context.Context, workDir, outDir string) (bool, string) {
	if !r.removed {
		r.removed = true
		if err := os.Remove(r.removePath); err != nil {
			return false, err.Error()
		}
	}
	return r.fakeRunner.Run(ctx, workDir, outDir)
}

func writeGenome(t *testing.T, root, sample, name string) {
	t.Helper()
	dir := filepath.Join(root, sample)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(">seq\nACGTACGT\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T, inputDir string) config.Config {
	t.Helper()
	return config.Config{
		InputDir:   inputDir,
		OutputPath: filepath.Join(t.TempDir(), "final_results.csv"),
		Structure:  config.StructureAuto,
		Extension:  "fa",
		Workers:    2,
		Thresholds: config.DefaultThresholds(),
	}
}

func readResults(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open results: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	return rows
}

func TestRunEndToEnd(t *testing.T) {
	input := t.TempDir()
	writeGenome(t, input, "sampleA", "g1.fa")
	writeGenome(t, input, "sampleA", "g2.fa")
	writeGenome(t, input, "sampleB", "g1.fa")

	cfg := testConfig(t, input)
	runner := &fakeRunner{completeness: 95, contamination: 1}

	if err := Run(context.Background(), cfg, nil, discardLogger(), runner, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := readResults(t, cfg.OutputPath)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	wantNames := []string{"sampleA_g1.fa", "sampleA_g2.fa", "sampleB_g1.fa"}
	for i, want := range wantNames {
		row := rows[i+1]
		if row[0] != want {
			t.Errorf("row %d name = %q, want %q", i, row[0], want)
		}
		if row[5] != "near-complete" {
			t.Errorf("row %d class = %q, want near-complete", i, row[5])
		}
		if row[4] != "90.00" {
			t.Errorf("row %d qs = %q, want 90.00", i, row[4])
		}
	}
}

// A failed task costs only its own genomes: they keep sentinel values while
// every other genome is classified normally.
func TestRunTaskFailureFallsBackToSentinel(t *testing.T) {
	input := t.TempDir()
	writeGenome(t, input, "sampleA", "g1.fa")
	writeGenome(t, input, "sampleA", "g2.fa")
	writeGenome(t, input, "sampleB", "g1.fa")

	cfg := testConfig(t, input)
	cfg.BatchSize = 1 // one genome per task, so the failure is isolated
	runner := &fakeRunner{completeness: 95, contamination: 1, failOn: "sampleB_g1.fa"}

	if err := Run(context.Background(), cfg, nil, discardLogger(), runner, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := readResults(t, cfg.OutputPath)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	for _, row := range rows[1:] {
		switch row[0] {
		case "sampleB_g1.fa":
			if row[2] != config.SentinelValue || row[5] != config.SentinelLabel {
				t.Errorf("failed genome row = %v, want sentinel values", row)
			}
		default:
			if row[5] != "near-complete" {
				t.Errorf("row %v, want near-complete", row)
			}
		}
	}
}

// A copy error or size mismatch is a data-integrity problem: the whole run
// aborts and no result table is written, unlike a classifier failure which
// only costs its own task.
func TestRunAbortsOnMaterializeFailure(t *testing.T) {
	input := t.TempDir()
	writeGenome(t, input, "sampleA", "g1.fa")
	writeGenome(t, input, "sampleA", "g2.fa")
	writeGenome(t, input, "sampleB", "g1.fa")

	cfg := testConfig(t, input)
	cfg.Workers = 1
	cfg.BatchSize = 1 // sequential single-genome tasks, so the removal hits a later copy
	runner := &vanishingInputRunner{
		fakeRunner: fakeRunner{completeness: 95, contamination: 1},
		removePath: filepath.Join(input, "sampleB", "g1.fa"),
	}

	err := Run(context.Background(), cfg, nil, discardLogger(), runner, nil)
	if err == nil {
		t.Fatal("Run succeeded despite a failed genome copy")
	}
	if !strings.Contains(err.Error(), "run aborted") {
		t.Errorf("err = %v, want a run aborted error", err)
	}
	if _, statErr := os.Stat(cfg.OutputPath); !os.IsNotExist(statErr) {
		t.Error("output file written despite aborted run")
	}
}

func TestRunNoInputFiles(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	runner := &fakeRunner{completeness: 95, contamination: 1}

	err := Run(context.Background(), cfg, nil, discardLogger(), runner, nil)
	if !errors.Is(err, layout.ErrNoInputFiles) {
		t.Errorf("err = %v, want ErrNoInputFiles", err)
	}
	if _, statErr := os.Stat(cfg.OutputPath); !os.IsNotExist(statErr) {
		t.Error("output file written despite fatal collection error")
	}
}

func TestRunReportsProgress(t *testing.T) {
	input := t.TempDir()
	writeGenome(t, input, "sampleA", "g1.fa")
	writeGenome(t, input, "sampleA", "g2.fa")

	cfg := testConfig(t, input)
	runner := &fakeRunner{completeness: 95, contamination: 1}

	progressChan := make(chan TaskProgress, 64)
	if err := Run(context.Background(), cfg, nil, discardLogger(), runner, progressChan); err != nil {
		t.Fatalf("Run: %v", err)
	}

	completed := 0
	for p := range progressChan {
		if p.Status == "Complete" {
			completed++
		}
	}
	if completed != 2 {
		t.Errorf("saw %d completed tasks, want 2", completed)
	}
}
