package workspace

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fazhang/genomeqs/internal/batch"
	"github.com/fazhang/genomeqs/internal/layout"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sourceGenome(t *testing.T, dir, sample, name, content string) layout.GenomeFile {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return layout.GenomeFile{SourcePath: path, Name: name, Sample: sample}
}

func TestMaterialize(t *testing.T) {
	srcA := t.TempDir()
	srcB := t.TempDir()
	// Same base name in two samples; workspace names must not collide.
	g1 := sourceGenome(t, srcA, "sampleA", "g1.fa", ">s\nAAAA\n")
	g2 := sourceGenome(t, srcB, "sampleB", "g1.fa", ">s\nCCCC\n")

	root, err := NewRoot(false)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	defer root.Cleanup(discardLogger())

	ts, err := Materialize(root, batch.Task{ID: 2, Files: []layout.GenomeFile{g1, g2}}, discardLogger())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if filepath.Base(filepath.Dir(ts.WorkDir)) != "task_002" {
		t.Errorf("WorkDir %s not under task_002", ts.WorkDir)
	}
	if _, err := os.Stat(ts.OutDir); err != nil {
		t.Errorf("OutDir not created: %v", err)
	}

	wantNames := []string{"sampleA_g1.fa", "sampleB_g1.fa"}
	if len(ts.Files) != len(wantNames) {
		t.Fatalf("got %d materialized files, want %d", len(ts.Files), len(wantNames))
	}
	wantContent := []string{">s\nAAAA\n", ">s\nCCCC\n"}
	for i, mf := range ts.Files {
		if mf.Name != wantNames[i] {
			t.Errorf("file %d name = %q, want %q", i, mf.Name, wantNames[i])
		}
		data, err := os.ReadFile(mf.Path)
		if err != nil {
			t.Fatalf("read copy %s: %v", mf.Path, err)
		}
		if string(data) != wantContent[i] {
			t.Errorf("copy %s content = %q, want %q", mf.Name, data, wantContent[i])
		}
	}
}

func TestMaterializeMissingSource(t *testing.T) {
	root, err := NewRoot(false)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	defer root.Cleanup(discardLogger())

	missing := layout.GenomeFile{
		SourcePath: filepath.Join(t.TempDir(), "gone.fa"),
		Name:       "gone.fa",
	}
	if _, err := Materialize(root, batch.Task{ID: 0, Files: []layout.GenomeFile{missing}}, discardLogger()); err == nil {
		t.Error("expected error for missing source file")
	}
}

func TestCleanupRemovesRoot(t *testing.T) {
	root, err := NewRoot(false)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}

	root.Cleanup(discardLogger())
	if _, err := os.Stat(root.Dir); !os.IsNotExist(err) {
		t.Errorf("root %s still exists after cleanup", root.Dir)
	}

	// Second call is a no-op, not a panic or error.
	root.Cleanup(discardLogger())
}

func TestCleanupRetains(t *testing.T) {
	root, err := NewRoot(true)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	defer os.RemoveAll(root.Dir)

	root.Cleanup(discardLogger())
	if _, err := os.Stat(root.Dir); err != nil {
		t.Errorf("retained root %s was removed: %v", root.Dir, err)
	}
}
