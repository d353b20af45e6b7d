// Package workspace owns the temporary directories a run works in: one temp
// root per run, one isolated workDir/outDir pair per task, and the copies of
// the input genomes inside them.
package workspace

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fazhang/genomeqs/internal/batch"
	"github.com/fazhang/genomeqs/internal/layout"
)

// Root is the run's temp root. It is created once at run start and removed
// exactly once at run end, on both the success and the failure path, unless
// retention was requested.
type Root struct {
	Dir    string
	retain bool
	once   sync.Once
}

// NewRoot creates a fresh temp root for this run. Roots are never reused
// across runs.
func NewRoot(retain bool) (*Root, error) {
	dir, err := os.MkdirTemp("", "genomeqs_")
	if err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	return &Root{Dir: dir, retain: retain}, nil
}

// Cleanup removes the temp root recursively. Safe to call multiple times;
// only the first call acts. A retained root is left in place and logged so
// the operator can find it.
func (r *Root) Cleanup(logger *slog.Logger) {
	r.once.Do(func() {
		if r.retain {
			logger.Info("Keeping temporary workspace.", slog.String("dir", r.Dir))
			return
		}
		if err := os.RemoveAll(r.Dir); err != nil {
			logger.Warn("Failed to remove temporary workspace.",
				slog.String("dir", r.Dir), "error", err)
			return
		}
		logger.Debug("Removed temporary workspace.", slog.String("dir", r.Dir))
	})
}

// MaterializedFile records where a genome's bytes live inside its task
// workspace, and under which collision-safe name.
type MaterializedFile struct {
	Genome layout.GenomeFile
	Name   string // workspace file name (sample-prefixed for nested layouts)
	Path   string
}

// TaskSpace is one task's private slice of the temp root. No other task
// touches it for the run's duration.
type TaskSpace struct {
	WorkDir string
	OutDir  string
	Files   []MaterializedFile
}

// Materialize creates the task's workDir and outDir under the root and
// copies every assigned genome into workDir. A copy error or a size mismatch
// aborts the entire run: corrupt genome input must not reach classification.
func Materialize(root *Root, task batch.Task, logger *slog.Logger) (*TaskSpace, error) {
	ts := &TaskSpace{
		WorkDir: filepath.Join(root.Dir, fmt.Sprintf("task_%03d", task.ID), "genomes"),
		OutDir:  filepath.Join(root.Dir, fmt.Sprintf("task_%03d", task.ID), "output"),
	}
	for _, dir := range []string{ts.WorkDir, ts.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create task directory %s: %w", dir, err)
		}
	}

	for _, g := range task.Files {
		name := g.WorkspaceName()
		dest := filepath.Join(ts.WorkDir, name)
		if err := copyVerified(g.SourcePath, dest); err != nil {
			return nil, fmt.Errorf("materialize %s into task %d: %w", g.SourcePath, task.ID, err)
		}
		logger.Debug("Copied genome into workspace.",
			slog.String("source", g.SourcePath), slog.String("dest", dest))
		ts.Files = append(ts.Files, MaterializedFile{Genome: g, Name: name, Path: dest})
	}
	return ts, nil
}

// copyVerified copies src to dest byte for byte and compares sizes
// afterwards. Links are never used: the external tool may rewrite or move
// its inputs.
func copyVerified(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	written, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(dest)
		return fmt.Errorf("copy: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(dest)
		return fmt.Errorf("close destination: %w", closeErr)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if info.Size() != written {
		return fmt.Errorf("size mismatch after copy: source %d bytes, destination %d bytes", info.Size(), written)
	}
	return nil
}
