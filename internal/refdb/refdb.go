// Package refdb fetches the classifier's reference database: it scrapes an
// index page for .tar.gz archives, downloads one and unpacks it into the
// reference data directory.
package refdb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fazhang/genomeqs/internal/util"

	"golang.org/x/net/html"
)

const archiveSuffix = ".tar.gz"

// ListArchives fetches the index page and returns the absolute URLs of all
// reference archives it links to, sorted so the lexically greatest (usually
// the newest release) comes last.
func ListArchives(ctx context.Context, client *http.Client, indexURL string) ([]string, error) {
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, fmt.Errorf("parse index url %s: %w", indexURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}
	body, err := util.FetchBody(client, req)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse index page %s: %w", indexURL, err)
	}

	links := util.ParseLinks(doc, archiveSuffix)
	if len(links) == 0 {
		return nil, fmt.Errorf("no %s links found at %s", archiveSuffix, indexURL)
	}

	resolved := make([]string, 0, len(links))
	for _, link := range links {
		ref, err := url.Parse(link)
		if err != nil {
			continue
		}
		resolved = append(resolved, base.ResolveReference(ref).String())
	}
	sort.Strings(resolved)
	return resolved, nil
}

// Fetch downloads the newest archive from indexURL and unpacks it into
// dataDir. The archive is staged next to dataDir and removed after a
// successful unpack.
func Fetch(ctx context.Context, client *http.Client, logger *slog.Logger, indexURL, dataDir string) error {
	archives, err := ListArchives(ctx, client, indexURL)
	if err != nil {
		return err
	}
	archiveURL := archives[len(archives)-1]
	logger.Info("Selected reference archive.",
		slog.String("url", archiveURL),
		slog.Int("candidates", len(archives)))

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create reference data dir %s: %w", dataDir, err)
	}

	archivePath := filepath.Join(dataDir, filepath.Base(archiveURL))
	if _, statErr := os.Stat(archivePath); statErr == nil {
		// Leftover from an interrupted fetch; unpack it instead of
		// downloading again.
		logger.Info("Archive already present, skipping download.", slog.String("path", archivePath))
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
		if err != nil {
			return fmt.Errorf("build archive request: %w", err)
		}

		start := time.Now()
		written, err := util.DownloadToFile(client, req, archivePath)
		if err != nil {
			return err
		}
		logger.Info("Downloaded reference archive.",
			slog.String("path", archivePath),
			slog.Int64("bytes", written),
			slog.Duration("duration", time.Since(start).Round(time.Second)))
	}

	if err := Unpack(archivePath, dataDir, logger); err != nil {
		return err
	}
	if err := os.Remove(archivePath); err != nil {
		logger.Warn("Could not remove downloaded archive.", slog.String("path", archivePath), "error", err)
	}
	logger.Info("Reference database ready.", slog.String("dir", dataDir))
	return nil
}

// Unpack extracts a .tar.gz archive into destDir. Entries that would escape
// destDir are rejected.
func Unpack(archivePath, destDir string, logger *slog.Logger) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip %s: %w", archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	entries := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry in %s: %w", archivePath, err)
		}

		target, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("extract %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
			entries++
		default:
			// Symlinks and special files do not occur in these archives.
			logger.Warn("Skipping unsupported tar entry.",
				slog.String("name", hdr.Name),
				slog.Int("type", int(hdr.Typeflag)))
		}
	}
	logger.Info("Unpacked reference archive.",
		slog.String("archive", archivePath),
		slog.Int("files", entries))
	return nil
}

func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("tar entry %q escapes destination directory", name)
	}
	return target, nil
}
