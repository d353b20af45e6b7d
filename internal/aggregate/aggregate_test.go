package aggregate

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/layout"
	"github.com/fazhang/genomeqs/internal/report"
)

func TestClassify(t *testing.T) {
	thresholds := config.DefaultThresholds()

	cases := []struct {
		name          string
		completeness  float64
		contamination float64
		wantClass     string
		wantQS        float64
	}{
		{"near complete at boundary", 90, 5, "near-complete", 65},
		{"near complete well inside", 98.31, 1.27, "near-complete", 91.96},
		{"high when contamination too high for near", 95, 6, "high-quality", 65},
		{"high at boundary", 70, 10, "high-quality", 20},
		{"medium below high completeness", 69.9, 8, "medium-quality", 29.9},
		{"medium at boundary", 50, 10, "medium-quality", 0},
		{"low below medium completeness", 49.9, 2, "low-quality", 39.9},
		{"low when contamination excessive", 95, 30, "low-quality", -55},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class, qs := Classify(tc.completeness, tc.contamination, thresholds)
			if class != tc.wantClass {
				t.Errorf("class = %q, want %q", class, tc.wantClass)
			}
			if diff := qs - tc.wantQS; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("qs = %v, want %v", qs, tc.wantQS)
			}
		})
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	strict := config.Thresholds{
		NearCompleteMinCompleteness:  99,
		NearCompleteMaxContamination: 1,
		HighMinCompleteness:          90,
		HighMaxContamination:         5,
		MediumMinCompleteness:        80,
		MediumMaxContamination:       5,
	}
	if class, _ := Classify(95, 2, strict); class != "low-quality" {
		t.Errorf("class = %q, want low-quality under strict thresholds", class)
	}
}

func TestBuild(t *testing.T) {
	genomes := []layout.GenomeFile{
		{Name: "g1.fa", Sample: "sampleA", Checksum: "aaa"},
		{Name: "g2.fa", Sample: "sampleA", Checksum: "bbb"},
		{Name: "g1.fa", Sample: "sampleB", Checksum: "ccc"},
	}
	// sampleB_g1 never reported by the classifier.
	results := map[string]report.Quality{
		"sampleA_g1": {Completeness: 98.31, Contamination: 1.27},
		"sampleA_g2": {Completeness: 54.2, Contamination: 9.8},
	}

	records := Build(genomes, results, config.DefaultThresholds())
	if len(records) != 3 {
		t.Fatalf("got %d records, want one per genome", len(records))
	}

	if records[0].Name != "sampleA_g1.fa" || records[0].QualityClass != "near-complete" {
		t.Errorf("records[0] = %+v, want sampleA_g1.fa near-complete", records[0])
	}
	if records[0].QS != "91.96" {
		t.Errorf("records[0].QS = %q, want 91.96", records[0].QS)
	}
	if records[1].QualityClass != "medium-quality" {
		t.Errorf("records[1].QualityClass = %q, want medium-quality", records[1].QualityClass)
	}

	sentinel := records[2]
	if sentinel.Name != "sampleB_g1.fa" {
		t.Fatalf("records[2].Name = %q, want sampleB_g1.fa", sentinel.Name)
	}
	if sentinel.Completeness != config.SentinelValue ||
		sentinel.Contamination != config.SentinelValue ||
		sentinel.QS != config.SentinelValue {
		t.Errorf("sentinel numerics = %+v, want all %q", sentinel, config.SentinelValue)
	}
	if sentinel.QualityClass != config.SentinelLabel {
		t.Errorf("sentinel class = %q, want %q", sentinel.QualityClass, config.SentinelLabel)
	}
}

// Build keys results by workspace name minus extension, the way the
// external tool names bins after input files.
func TestBuildTrimsExtensionForLookup(t *testing.T) {
	genomes := []layout.GenomeFile{{Name: "plain.fa", Checksum: "xyz"}}
	results := map[string]report.Quality{"plain": {Completeness: 91, Contamination: 2}}

	records := Build(genomes, results, config.DefaultThresholds())
	if records[0].QualityClass != "near-complete" {
		t.Errorf("class = %q, lookup by trimmed name failed", records[0].QualityClass)
	}
}

func TestBuildPreservesDiscoveryOrder(t *testing.T) {
	genomes := []layout.GenomeFile{
		{Name: "z.fa", Checksum: "1"},
		{Name: "a.fa", Checksum: "2"},
		{Name: "m.fa", Checksum: "3"},
	}
	records := Build(genomes, nil, config.DefaultThresholds())
	want := []string{"z.fa", "a.fa", "m.fa"}
	for i, rec := range records {
		if rec.Name != want[i] {
			t.Errorf("records[%d].Name = %q, want %q", i, rec.Name, want[i])
		}
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "final_results.csv")
	records := []FinalRecord{
		{Name: "g1.fa", Checksum: "aaa", Completeness: "98.31", Contamination: "1.27", QS: "91.96", QualityClass: "near-complete"},
		{Name: "g2.fa", Checksum: "bbb", Completeness: "NA", Contamination: "NA", QS: "NA", QualityClass: "Not Found"},
	}
	if err := WriteCSV(path, records); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	wantHeader := []string{"fasta_file_name", "fasta_file_md5", "completeness", "contamination", "qs", "quality_class"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	if rows[2][5] != "Not Found" {
		t.Errorf("sentinel row class = %q, want Not Found", rows[2][5])
	}
}
