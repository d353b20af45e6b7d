// Package layout inspects the input collection: it classifies the directory
// structure as flat or nested and enumerates genome files in a stable order.
package layout

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fazhang/genomeqs/internal/config"
)

// ErrNoInputFiles is returned when collection finds no genome files. It is
// fatal and must surface before any workspace is created.
var ErrNoInputFiles = errors.New("no genome files found in input directory")

// Kind is the detected directory structure.
type Kind string

const (
	Flat   Kind = "flat"
	Nested Kind = "nested"
)

// GenomeFile identifies one collected genome. Identity is the pair
// (SourcePath, Checksum); values are immutable once collected.
type GenomeFile struct {
	SourcePath string
	Name       string // base file name
	Sample     string // parent directory name, empty for flat layout
	Checksum   string // hex MD5 of the file content
}

// WorkspaceName is the collision-safe name the file carries inside a task
// workspace: the sample prefix keeps identically named files from different
// samples apart.
func (g GenomeFile) WorkspaceName() string {
	if g.Sample != "" {
		return g.Sample + "_" + g.Name
	}
	return g.Name
}

// Detect classifies the input root. Any visible direct subdirectory means
// nested; otherwise flat. An override other than "auto" short-circuits
// detection.
func Detect(root string, override config.Structure) (Kind, error) {
	switch override {
	case config.StructureFlat:
		return Flat, nil
	case config.StructureNested:
		return Nested, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read input directory %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			return Nested, nil
		}
	}
	return Flat, nil
}

// Collect enumerates genome files under root matching the extension and
// computes a content checksum for each. For nested layouts the immediate
// subdirectories are walked in lexical order, so discovery order is stable
// across runs. Returns ErrNoInputFiles when nothing matched.
func Collect(root string, kind Kind, ext string, logger *slog.Logger) ([]GenomeFile, error) {
	var files []GenomeFile
	var err error

	switch kind {
	case Flat:
		files, err = collectDir(root, "", ext)
		if err != nil {
			return nil, err
		}
	case Nested:
		entries, readErr := os.ReadDir(root)
		if readErr != nil {
			return nil, fmt.Errorf("read input directory %s: %w", root, readErr)
		}
		samples := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				samples = append(samples, e.Name())
			}
		}
		sort.Strings(samples)
		for _, sample := range samples {
			sampleFiles, collectErr := collectDir(filepath.Join(root, sample), sample, ext)
			if collectErr != nil {
				return nil, collectErr
			}
			logger.Debug("Collected sample directory.",
				slog.String("sample", sample), slog.Int("files", len(sampleFiles)))
			files = append(files, sampleFiles...)
		}
	default:
		return nil, fmt.Errorf("unknown layout kind %q", kind)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s (extension .%s)", ErrNoInputFiles, root, ext)
	}
	logger.Info("Genome collection complete.",
		slog.String("layout", string(kind)), slog.Int("count", len(files)))
	return files, nil
}

func collectDir(dir, sample, ext string) ([]GenomeFile, error) {
	pattern := filepath.Join(dir, "*."+ext)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	files := make([]GenomeFile, 0, len(matches))
	for _, path := range matches {
		info, statErr := os.Stat(path)
		if statErr != nil || info.IsDir() {
			continue
		}
		sum, sumErr := ChecksumFile(path)
		if sumErr != nil {
			return nil, fmt.Errorf("checksum %s: %w", path, sumErr)
		}
		files = append(files, GenomeFile{
			SourcePath: path,
			Name:       filepath.Base(path),
			Sample:     sample,
			Checksum:   sum,
		})
	}
	return files, nil
}

// ChecksumFile computes the hex MD5 of a file's content. MD5 is the
// downstream dedup key: 128 bits and stable, cryptographic strength is not
// required here.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
