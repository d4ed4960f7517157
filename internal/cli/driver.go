package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/packtdl/packt-dl/internal/api"
	"github.com/packtdl/packt-dl/internal/config"
	"github.com/packtdl/packt-dl/internal/download"
	"github.com/packtdl/packt-dl/internal/http"
	"github.com/packtdl/packt-dl/internal/logging"
	"github.com/packtdl/packt-dl/internal/models"
	"github.com/packtdl/packt-dl/internal/notify"
	"github.com/packtdl/packt-dl/internal/progress"
)

// newDownloadUI builds the per-file progress display.
var newDownloadUI = progress.NewDownloadUI

// Result summarizes a finished run.
type Result struct {
	Items         int // unique catalog items
	SkippedTitles int
	Stats         download.Stats
}

// Run mirrors the account's catalog into cfg.Directory. cfg must be
// validated and its directory expanded. Per-item failures are counted in the
// result; the returned error is an *ExitError for anything that stops the run.
func Run(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Result, error) {
	notifier := notify.NewNotifier(cfg.Notify, logger)
	fail := func(code int, err error) (*Result, error) {
		if !errors.Is(err, context.Canceled) {
			notifier.RunFailed(err.Error())
		}
		return nil, &ExitError{Code: code, Err: err}
	}

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return fail(ExitUsage, fmt.Errorf("failed to create output directory: %w", err))
	}

	client, err := api.NewClient(cfg, logger)
	if err != nil {
		return fail(ExitUsage, err)
	}

	logger.Info().Str("email", cfg.Email).Msg("Logging in")
	if err := client.Session().Login(ctx); err != nil {
		return fail(ExitUsage, err)
	}

	catalog, err := listCatalog(ctx, client, cfg, logger)
	if err != nil {
		if api.IsAuthError(err) {
			return fail(ExitUsage, err)
		}
		return fail(ExitFailure, fmt.Errorf("failed to list owned products: %w", err))
	}
	logger.Info().
		Int("reported", catalog.ReportedCount).
		Int("received", catalog.RawCount).
		Int("unique", len(catalog.Items)).
		Msg("Catalog loaded")

	fileClient, err := http.CreateOptimizedClient(cfg, logger)
	if err != nil {
		return fail(ExitUsage, err)
	}

	var ui progress.TransferUI = progress.NewNoOpUI()
	restoreOutput := func() {}
	if !cfg.Quiet {
		dui := newDownloadUI()
		if dui.IsTerminal() {
			prev := logger.Output()
			logger.SetOutput(dui.Writer())
			restoreOutput = func() { logger.SetOutput(prev) }
		}
		ui = dui
	}
	// The bar container refuses writes once it has finished, so the logger
	// must be back on its own writer before anything else is logged.
	finishUI := func() {
		ui.Wait()
		restoreOutput()
	}

	orch := download.New(client, fileClient, ui, logger, download.Options{
		Root:     cfg.Directory,
		Separate: cfg.Separate,
		DryRun:   cfg.DryRun,
		Retries:  cfg.Retries,
		Wants:    cfg.WantsFormat,
	})
	names := download.PlanNames(catalog.Items, cfg.TitleReplacements)
	result := &Result{Items: len(catalog.Items)}

	total := len(catalog.Items)
	for i, item := range catalog.Items {
		if ctx.Err() != nil {
			break
		}
		if pattern, skip := skipTitle(item.Name, cfg.SkipTitles); skip {
			logger.Debug().Str("name", item.Name).Str("pattern", pattern).Msg("Skipping title")
			result.SkippedTitles++
			continue
		}

		if err := client.Session().EnsureValid(ctx); err != nil {
			finishUI()
			return fail(ExitUsage, err)
		}

		formats, err := client.ListFormats(ctx, item.ID)
		if err != nil {
			if api.IsAuthError(err) {
				finishUI()
				return fail(ExitUsage, err)
			}
			if ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Str("item", item.ID.String()).Str("name", item.Name).Msg("Failed to list formats")
			orch.RecordFailure()
			continue
		}
		logger.Debug().Str("name", item.Name).Strs("formats", formats).Msg("Formats available")

		if err := orch.ProcessItem(ctx, i, total, item, names[item.ID], formats); err != nil {
			break
		}
	}

	finishUI()
	result.Stats = orch.Stats()

	if err := ctx.Err(); err != nil {
		logger.Warn().Msg("Run cancelled")
		return fail(ExitFailure, err)
	}

	ev := logger.Info().
		Int("downloaded", result.Stats.Downloaded).
		Int("skipped", result.Stats.Skipped).
		Int("failed", result.Stats.Failed).
		Int("titles_skipped", result.SkippedTitles)
	if cfg.DryRun {
		ev = ev.Int("planned", result.Stats.Planned)
	}
	if result.Stats.Migrated > 0 {
		ev = ev.Int("migrated", result.Stats.Migrated)
	}
	ev.Msg("Run complete")

	notifier.RunComplete(notify.Summary{
		Downloaded: result.Stats.Downloaded,
		Skipped:    result.Stats.Skipped,
		Failed:     result.Stats.Failed,
		Directory:  cfg.Directory,
	})
	return result, nil
}

// listCatalog enumerates the catalog with a page progress bar. Verbose runs
// log each page request instead.
func listCatalog(ctx context.Context, client *api.Client, cfg *config.Config, logger *logging.Logger) (*models.Catalog, error) {
	var bar progress.Reporter = progress.NewNoOpProgress()
	if !cfg.Quiet && !logger.IsVerbose() {
		bar = progress.NewCLIProgress()
	}

	started := false
	catalog, err := client.ListOwnedItems(ctx, cfg.PageSize, func(fetched, total int) {
		if !started {
			bar.Start(int64(total), "Fetching catalog")
			started = true
		}
		bar.Update(int64(fetched))
	})
	if started {
		bar.Finish()
	}
	return catalog, err
}

// skipTitle reports the first pattern contained in name, ignoring case.
func skipTitle(name string, patterns []string) (string, bool) {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}
