package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of filesystem events most editors emit
// on a single save.
const debounceWindow = 250 * time.Millisecond

// WatchBudget watches the configuration file and hot-reloads the timeout
// budget into the store whenever the file changes. A reload that fails
// validation is logged and dropped; the active snapshot stays in force.
// Blocks until ctx is cancelled.
func WatchBudget(ctx context.Context, path string, store *BudgetStore, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors and configuration
	// management tools replace files by rename, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	reload := func() {
		cfg, err := Load(target)
		if err != nil {
			log.Warn("config_reload_failed", "path", target, "error", err)
			return
		}
		budget, err := cfg.Budget()
		if err != nil {
			log.Warn("budget_reload_rejected", "path", target, "error", err)
			return
		}
		if err := store.Replace(budget); err == nil {
			log.Info("budget_reloaded", "path", target)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config_watch_error", "error", err)
		}
	}
}
