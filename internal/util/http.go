package util

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultHTTPClient returns the client used for reference database fetches.
// The generous timeout covers multi-gigabyte archive downloads on slow links.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Minute}
}

// FetchBody executes a pre-built request and returns the body bytes. The
// caller builds the request so it controls context and headers.
func FetchBody(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limited := io.LimitReader(resp.Body, 512)
		bodyBytes, _ := io.ReadAll(limited)
		return nil, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, req.URL.String(), string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", req.URL.String(), err)
	}
	return bodyBytes, nil
}

// DownloadToFile streams a response body to destPath, returning the number
// of bytes written. A partial file is removed on failure. Archives are too
// large to buffer in memory, so this never reads the whole body at once.
func DownloadToFile(client *http.Client, req *http.Request, destPath string) (int64, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limited := io.LimitReader(resp.Body, 512)
		bodyBytes, _ := io.ReadAll(limited)
		return 0, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, req.URL.String(), string(bodyBytes))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create download target %s: %w", destPath, err)
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		os.Remove(destPath)
		return 0, fmt.Errorf("write download to %s: %w", destPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return 0, fmt.Errorf("close download %s: %w", destPath, err)
	}
	return written, nil
}
