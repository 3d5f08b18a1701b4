// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/levchat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrAlreadyExists is returned when the target file is present.
	ErrAlreadyExists = errors.New("model already exists")

	// ErrDownloadActive is returned when a download is already running.
	ErrDownloadActive = errors.New("a download is already in progress")

	// ErrNoDownload is returned by Cancel when nothing is downloading.
	ErrNoDownload = errors.New("no active download to cancel")

	// ErrCancelled is returned by Download after Cancel.
	ErrCancelled = errors.New("download cancelled")
)

// =============================================================================
// PROGRESS
// =============================================================================

// Progress describes the current or most recent download.
type Progress struct {
	Filename string `json:"filename"`
	Kind     Kind   `json:"kind"`

	// TotalSize is -1 when the server sent no Content-Length.
	TotalSize  int64 `json:"total_size"`
	Downloaded int64 `json:"downloaded_size"`
	Active     bool  `json:"is_downloading"`
}

// Percentage returns the completed share in [0, 100], or -1 when the total
// size is unknown.
func (p Progress) Percentage() float64 {
	if p.TotalSize <= 0 {
		return -1
	}
	pct := float64(p.Downloaded) / float64(p.TotalSize) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// =============================================================================
// DOWNLOADER
// =============================================================================

// DownloaderConfig holds configuration for the downloader.
type DownloaderConfig struct {
	// Client performs the requests (default: http.Client without timeout,
	// downloads are bounded by their context)
	Client *http.Client

	// ProgressPerSec limits how often the progress callback runs (default: 4)
	ProgressPerSec float64

	// Logger receives download events (default: discard)
	Logger *slog.Logger
}

// Downloader fetches model files into a Library, one at a time.
type Downloader struct {
	lib     *Library
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu         sync.Mutex
	progress   Progress
	cancel     context.CancelFunc
	onProgress func(Progress)
}

// NewDownloader creates a downloader for lib.
func NewDownloader(lib *Library, cfg DownloaderConfig) *Downloader {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.ProgressPerSec <= 0 {
		cfg.ProgressPerSec = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Downloader{
		lib:     lib,
		client:  cfg.Client,
		limiter: rate.NewLimiter(rate.Limit(cfg.ProgressPerSec), 1),
		logger:  cfg.Logger,
	}
}

// OnProgress sets the progress callback. It is rate limited while bytes
// arrive and always called once when a download ends.
func (d *Downloader) OnProgress(fn func(Progress)) {
	d.mu.Lock()
	d.onProgress = fn
	d.mu.Unlock()
}

// Progress returns the state of the current or most recent download.
func (d *Downloader) Progress() Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progress
}

// Cancel stops the running download. The partial file is removed.
func (d *Downloader) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return ErrNoDownload
	}
	d.cancel()
	d.cancel = nil
	return nil
}

// Download fetches rawURL into the directory of kind and returns the path
// of the new file. It refuses a file that already exists and removes
// partial data on failure or cancellation.
func (d *Downloader) Download(ctx context.Context, rawURL string, kind Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, string(kind))
	}
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}
	name, err := FileNameFromURL(rawURL)
	if err != nil {
		return "", err
	}
	dst := d.lib.Path(kind, name)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	if d.progress.Active {
		d.mu.Unlock()
		return "", ErrDownloadActive
	}
	d.progress = Progress{Filename: name, Kind: kind, TotalSize: -1, Active: true}
	d.cancel = cancel
	d.mu.Unlock()

	start := time.Now()
	d.logger.Info("download started", "file", name, "kind", string(kind))

	err = d.fetch(ctx, rawURL, dst)

	d.mu.Lock()
	d.progress.Active = false
	d.cancel = nil
	final := d.progress
	fn := d.onProgress
	d.mu.Unlock()
	if fn != nil {
		fn(final)
	}

	if err != nil {
		if ctx.Err() != nil {
			d.logger.Info("download cancelled", "file", name, "bytes", final.Downloaded)
			return "", ErrCancelled
		}
		d.logger.Error("download failed", "file", name, "err", err)
		return "", err
	}
	d.logger.Info("download finished", "file", name, "bytes", final.Downloaded, "elapsed", time.Since(start))
	return dst, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to initiate download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: server returned %s", resp.Status)
	}

	d.mu.Lock()
	if resp.ContentLength >= 0 {
		d.progress.TotalSize = resp.ContentLength
	}
	d.mu.Unlock()

	if err := os.MkdirAll(d.lib.Dir(d.Progress().Kind), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := util.CreateAtomic(dst, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Abort()

	buf := make([]byte, 256*1024)
	if _, err := io.CopyBuffer(&progressWriter{w: f, d: d}, resp.Body, buf); err != nil {
		return fmt.Errorf("error downloading: %w", err)
	}
	return f.Commit()
}

func (d *Downloader) advance(n int) {
	d.mu.Lock()
	d.progress.Downloaded += int64(n)
	p := d.progress
	fn := d.onProgress
	d.mu.Unlock()

	if fn != nil && d.limiter.Allow() {
		fn(p)
	}
}

// progressWriter counts bytes on their way to the file.
type progressWriter struct {
	w io.Writer
	d *Downloader
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.d.advance(n)
	return n, err
}
