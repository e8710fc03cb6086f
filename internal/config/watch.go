package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce waits after the last write before reloading, so editors
// that write in multiple syscalls trigger a single reload.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the config file on change and passes the result to onReload.
// Blocks until ctx is cancelled. Reload failures are logged and the previous
// configuration stays in effect.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %q: %w", path, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				cfg, err := Load(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "config hot-reload failed: %v\n", err)
					return
				}
				onReload(cfg)
				fmt.Fprintf(os.Stderr, "config hot-reload: %s reloaded\n", path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "config watcher error: %v\n", err)
		}
	}
}
