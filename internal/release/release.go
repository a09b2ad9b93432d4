// Package release downloads and unpacks the upstream source tarball from
// GitHub into a local staging directory.
package release

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher obtains a fresh copy of the upstream source tree
type Fetcher interface {
	// Fetch places the upstream tree into destDir, replacing any previous
	// contents, and returns the ref that was fetched.
	Fetch(ctx context.Context, destDir string) (string, error)
}

// HTTPFetcher implements Fetcher by downloading a GitHub source tarball
type HTTPFetcher struct {
	url    string
	ref    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPFetcher creates a fetcher for the given tarball URL
func NewHTTPFetcher(url, ref string, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		url:    url,
		ref:    ref,
		client: &http.Client{Timeout: 5 * time.Minute},
		logger: logger,
	}
}

// Fetch downloads the tarball and extracts it into destDir. The single
// top-level "<repo>-<ref>" directory GitHub wraps around the tree is
// stripped, so destDir ends up holding the repository contents directly.
func (f *HTTPFetcher) Fetch(ctx context.Context, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	f.logger.Info("downloading release tarball", "url", f.url)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download release tarball: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release download failed: %s returned %s", f.url, resp.Status)
	}

	// Start from a clean staging tree so deleted upstream files do not
	// linger from an earlier fetch.
	if err := os.RemoveAll(destDir); err != nil {
		return "", fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := extractTarball(resp.Body, destDir); err != nil {
		return "", fmt.Errorf("failed to extract release tarball: %w", err)
	}

	return f.ref, nil
}

// extractTarball unpacks a gzipped tar stream into destDir, stripping the
// first path component. Only regular files and directories are created.
func extractTarball(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("invalid gzip stream: %w", err)
	}
	defer func() {
		_ = gz.Close()
	}()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid tar stream: %w", err)
		}

		rel, ok := stripFirstComponent(hdr.Name)
		if !ok {
			continue
		}

		target, err := securePath(destDir, rel)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeFile(target, tr, hdr); err != nil {
				return err
			}
		default:
			// Symlinks and special files are skipped.
			continue
		}
	}
}

// writeFile writes one tar entry to disk, preserving mode and mtime
func writeFile(target string, tr *tar.Reader, hdr *tar.Header) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&os.ModePerm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, tr); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !hdr.ModTime.IsZero() {
		_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	}
	return nil
}

// stripFirstComponent removes the leading "<repo>-<ref>/" path element
// GitHub tarballs carry. Entries without a remainder (the wrapper directory
// itself, or the occasional pax global header) are dropped.
func stripFirstComponent(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	_, rest, ok := strings.Cut(name, "/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// securePath joins rel onto destDir and rejects entries that would escape it
func securePath(destDir, rel string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("tar entry escapes staging directory: %s", rel)
	}
	return target, nil
}
