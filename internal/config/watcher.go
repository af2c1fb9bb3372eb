package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchAndReload watches the store's backing file and reloads it on change,
// debouncing rapid writes from editors that save in multiple steps.
func (s *Store) WatchAndReload() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config file watcher unavailable", "error", err)
		return
	}

	absPath, err := filepath.Abs(s.path)
	if err != nil {
		slog.Warn("failed to resolve config path", "path", s.path, "error", err)
		watcher.Close()
		return
	}

	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		slog.Warn("failed to watch config directory", "dir", dir, "error", err)
		watcher.Close()
		return
	}

	slog.Info("watching gateway config for hot-reload", "path", s.path)

	var debounceTimer *time.Timer
	const debounceDuration = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := s.Reload(); err != nil {
						slog.Error("config reload failed", "error", err)
					} else {
						slog.Info("gateway config reloaded", "path", s.path)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
