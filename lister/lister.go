// Package lister performs the one-time startup enumeration of the watched
// directories. It feeds the same add path as Created events, with upsert
// semantics: files tracked by a previous run are refreshed, not duplicated.
package lister

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"tidywatch/config"
	"tidywatch/events"
	"tidywatch/logger"
)

// Run walks every configured directory and registers each regular file with
// the handler. Unreadable entries are logged and skipped; the walk is
// throttled by lister.max_io_per_second when set.
func Run(ctx context.Context, cfg config.ListerConfig, handler *events.Handler) error {
	var limiter *rate.Limiter
	if cfg.MaxIOPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxIOPerSecond), cfg.MaxIOPerSecond)
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Listing files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
		)
	}

	for _, dir := range cfg.Dirs {
		if err := walk(ctx, dir, limiter, bar, handler); err != nil {
			return err
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

func walk(ctx context.Context, startPath string, limiter *rate.Limiter, bar *progressbar.ProgressBar, handler *events.Handler) error {
	info, err := os.Stat(startPath)
	if err != nil {
		logger.Errorf("Cannot list %s: %v", startPath, err)
		return nil
	}

	type item struct {
		path  string
		entry fs.DirEntry
	}
	stack := []item{{path: startPath, entry: fs.FileInfoToDirEntry(info)}}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		if current.entry.Type().IsRegular() {
			handler.AddFile(current.path, true)
			if bar != nil {
				_ = bar.Add(1)
			}
			continue
		}
		if !current.entry.IsDir() {
			continue
		}

		entries, err := os.ReadDir(current.path)
		if err != nil {
			logger.Warnf("Skipping unreadable directory %s: %v", current.path, err)
			continue
		}
		for i := range entries {
			child := entries[i]
			stack = append(stack, item{
				path:  filepath.Join(current.path, child.Name()),
				entry: child,
			})
		}
	}
	return nil
}
