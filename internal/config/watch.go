package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

// WatchAnalysis monitors path and calls onChange with the newly loaded
// configuration each time the file is written. It runs until ctx is cancelled.
// A file that fails to load or validate is logged and ignored, so the previous
// configuration stays active.
func WatchAnalysis(ctx context.Context, path string, logger *slog.Logger, onChange func(domain.AnalysisConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Info("watching analysis config for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors that save atomically emit Create instead of Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadAnalysis(path)
			if err != nil {
				logger.Error("analysis config reload failed, keeping previous config",
					"path", path,
					"error", err,
				)
				continue
			}

			logger.Info("analysis config reloaded", "path", path)
			onChange(cfg)

			// Re-add in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("analysis config watcher error", "error", err)
		}
	}
}

// Watch keeps the store in sync with the file at path until ctx is cancelled.
func (s *AnalysisStore) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	return WatchAnalysis(ctx, path, logger, s.Set)
}
