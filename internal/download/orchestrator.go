// Package download turns resolved product formats into files on disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"path/filepath"
	"slices"

	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/diskspace"
	"github.com/packtdl/packt-dl/internal/http"
	"github.com/packtdl/packt-dl/internal/logging"
	"github.com/packtdl/packt-dl/internal/models"
	"github.com/packtdl/packt-dl/internal/progress"
	"github.com/packtdl/packt-dl/internal/util/paths"
	"github.com/packtdl/packt-dl/internal/validation"
)

// codeSuffix keeps the code archive apart from the video archive once both
// are renamed to .zip.
const codeSuffix = "_code"

// URLSource resolves the signed URL of one product file.
type URLSource interface {
	GetDownloadURL(ctx context.Context, id models.ProductID, format string) (string, error)
}

// Options controls where and how files are written.
type Options struct {
	Root     string
	Separate bool
	DryRun   bool
	Retries  int

	// Wants reports whether a format was requested. Nil wants everything.
	Wants func(format string) bool
}

// Stats counts files, not items.
type Stats struct {
	Downloaded int
	Skipped    int
	Failed     int
	Planned    int // dry run only
	Migrated   int
}

// Orchestrator downloads the requested formats of one item at a time.
type Orchestrator struct {
	source     URLSource
	httpClient *nethttp.Client
	ui         progress.TransferUI
	logger     *logging.Logger
	opts       Options
	stats      Stats
}

// New creates an Orchestrator. httpClient performs the file transfers and
// must not carry the API session.
func New(source URLSource, httpClient *nethttp.Client, ui progress.TransferUI, logger *logging.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if ui == nil {
		ui = progress.NewNoOpUI()
	}
	if httpClient == nil {
		httpClient = &nethttp.Client{}
	}
	return &Orchestrator{
		source:     source,
		httpClient: httpClient,
		ui:         ui,
		logger:     logger,
		opts:       opts,
	}
}

// Stats returns the counters so far.
func (o *Orchestrator) Stats() Stats {
	return o.stats
}

// RecordFailure counts a failure that happened before any file was attempted,
// such as a format listing error.
func (o *Orchestrator) RecordFailure() {
	o.stats.Failed++
}

// Selected returns the formats of available that were requested, in the
// order the storefront listed them.
func (o *Orchestrator) Selected(available []string) []string {
	var selected []string
	for _, f := range available {
		if (o.opts.Wants == nil || o.opts.Wants(f)) && !slices.Contains(selected, f) {
			selected = append(selected, f)
		}
	}
	return selected
}

// TargetFor returns the path format of the item named name is written to,
// before any archive rename.
func (o *Orchestrator) TargetFor(name, format string, available []string) string {
	suffix := ""
	if format == "code" && slices.Contains(available, "video") {
		suffix = codeSuffix
	}
	return paths.TargetPath(o.opts.Root, name, format, suffix, o.opts.Separate)
}

// ProcessItem downloads every requested format of item. Per-file failures are
// logged and counted; only cancellation of ctx is returned.
func (o *Orchestrator) ProcessItem(ctx context.Context, index, total int, item models.CatalogItem, name string, available []string) error {
	selected := o.Selected(available)
	if len(selected) == 0 {
		o.logger.Debug().Str("item", item.ID.String()).Strs("available", available).Msg("No requested formats")
		return nil
	}

	if o.opts.Separate && !o.opts.DryRun {
		moved, err := o.migrateFlat(name, available)
		o.stats.Migrated += moved
		if err != nil {
			o.logger.Error().Err(err).Str("item", item.ID.String()).Msg("Failed to prepare item folder")
			o.stats.Failed += len(selected)
			return nil
		}
	}

	for _, format := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := o.TargetFor(name, format, available)
		dt := &models.DownloadTarget{
			ItemID:    item.ID,
			Name:      name,
			Format:    format,
			LocalPath: finalPath(target, format),
		}
		final := dt.LocalPath
		if err := validation.ValidatePathInDirectory(final, o.opts.Root); err != nil {
			o.logger.Error().Err(err).Str("item", item.ID.String()).Msg("Refusing to write outside output directory")
			o.stats.Failed++
			continue
		}

		if paths.Exists(target) || paths.Exists(final) {
			o.logger.Debug().Str("path", final).Msg("Already exists, skipping")
			o.stats.Skipped++
			continue
		}

		if o.opts.DryRun {
			fmt.Fprintf(o.ui.Writer(), "would download %s\n", final)
			o.stats.Planned++
			continue
		}

		err := o.downloadFile(ctx, index, total, dt)
		switch {
		case err == nil:
			o.stats.Downloaded++
		case errors.Is(err, context.Canceled):
			return err
		default:
			o.logger.Error().Err(err).
				Str("item", item.ID.String()).
				Str("name", item.Name).
				Str("format", format).
				Msg("Download failed")
			o.stats.Failed++
		}
	}
	return nil
}

// finalPath is where a finished download ends up: archive formats are zip
// files served under a generic extension.
func finalPath(target, format string) string {
	if slices.Contains(constants.ArchiveFormats, format) {
		return paths.ArchivePath(target)
	}
	return target
}

// downloadFile fetches dt into dt.LocalPath via a .part file, filling in
// dt.URL. Stream failures that look transient restart the transfer; an
// expired link is re-requested.
func (o *Orchestrator) downloadFile(ctx context.Context, index, total int, dt *models.DownloadTarget) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DownloadTimeout)
	defer cancel()

	final, format := dt.LocalPath, dt.Format
	var err error
	if dt.URL, err = o.source.GetDownloadURL(ctx, dt.ItemID, format); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	part := final + constants.PartialSuffix
	var bar progress.FileBar

	retryCfg := http.RetryConfig{
		MaxAttempts:  o.opts.Retries + 1,
		InitialDelay: constants.RetryInitialDelay,
		MaxDelay:     constants.RetryMaxDelay,
		Renew: func(ctx context.Context) error {
			fresh, err := o.source.GetDownloadURL(ctx, dt.ItemID, format)
			if err != nil {
				return err
			}
			dt.URL = fresh
			return nil
		},
		OnRetry: func(attempt int, err error, errorType http.ErrorType) {
			o.logger.Warn().Err(err).
				Str("file", filepath.Base(final)).
				Str("type", http.ErrorTypeName(errorType)).
				Int("attempt", attempt).
				Msg("Retrying download")
			if bar != nil {
				bar.SetRetry(attempt)
			}
		},
	}

	err = http.ExecuteWithRetry(ctx, retryCfg, func() error {
		return o.stream(ctx, dt.URL, part, func(size int64) progress.FileBar {
			if bar == nil {
				bar = o.ui.AddFileBar(index, total, final, format, size)
			}
			return bar
		})
	})
	if err == nil {
		if err = os.Rename(part, final); err != nil {
			err = fmt.Errorf("failed to finalize %s: %w", final, err)
		}
	}
	if err != nil {
		if removeErr := os.Remove(part); removeErr != nil && !os.IsNotExist(removeErr) {
			o.logger.Warn().Err(removeErr).Str("path", part).Msg("Failed to remove partial file")
		}
	}

	if bar != nil {
		bar.Complete(err)
	}
	if err == nil {
		o.logger.Info().Str("path", final).Msg("Downloaded")
	}
	return err
}

// stream performs one GET of url into part, truncating whatever an earlier
// attempt left behind.
func (o *Orchestrator) stream(ctx context.Context, url, part string, barFor func(size int64) progress.FileBar) error {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", constants.UserAgent)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return &http.StatusCodeError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := diskspace.CheckAvailableSpace(part, resp.ContentLength, constants.DiskSpaceSafetyMargin); err != nil {
		return err
	}

	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	reader := progress.NewProgressReader(resp.Body, barFor(resp.ContentLength))
	buffer := make([]byte, constants.DownloadChunkSize)
	var written int64
	for {
		n, readErr := reader.Read(buffer)
		if n > 0 {
			if _, err := f.Write(buffer[:n]); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("short body (%d of %d bytes): %w", written, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	return f.Close()
}
