package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

// Downloader fetches a source document into a local temp file. The cleanup
// func removes the file; callers must invoke it on every path.
type Downloader interface {
	Fetch(ctx context.Context, url, destDir string) (string, func(), error)
}

type httpDownloader struct {
	log     *logger.Logger
	client  *http.Client
	timeout time.Duration
}

func NewHTTPDownloader(baseLog *logger.Logger, timeout time.Duration) Downloader {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &httpDownloader{
		log:     baseLog.With("service", "HTTPDownloader"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (d *httpDownloader) Fetch(ctx context.Context, url, destDir string) (string, func(), error) {
	if strings.TrimSpace(url) == "" {
		return "", func() {}, fmt.Errorf("download: url required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("download: mkdir %s: %w", destDir, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", func() {}, fmt.Errorf("download: build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", func() {}, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", func() {}, fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	ext := path.Ext(strings.SplitN(path.Base(url), "?", 2)[0])
	f, err := os.CreateTemp(destDir, "source-*"+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("download: create temp file: %w", err)
	}
	dest := f.Name()
	cleanup := func() { _ = os.Remove(dest) }

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("download %s: copy body: %w", url, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("download: close temp file: %w", err)
	}

	d.log.Debug("downloaded source", "url", url, "path", dest)
	return dest, cleanup, nil
}
