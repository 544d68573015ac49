package cliconfig

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/logship/internal/ports"
)

// WatchDebounce coalesces the burst of events an editor produces on save.
const WatchDebounce = 100 * time.Millisecond

// Watch calls onChange with the reloaded file each time path changes,
// until ctx is canceled. The parent directory is watched so atomic saves
// (write to temp, rename) are seen. A file that fails to parse is logged
// and the previous settings stay in effect.
func Watch(ctx context.Context, path string, logger ports.Logger, onChange func(FileConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info("watching config file", ports.String("path", path))

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	reload := func() {
		fc, err := LoadFileConfig(path)
		if err != nil {
			logger.Error("config reload failed, keeping previous settings",
				ports.String("path", path), ports.Err(err))
			return
		}
		logger.Info("config reloaded", ports.String("path", path))
		onChange(fc)
	}
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(WatchDebounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", ports.Err(err))
		}
	}
}
