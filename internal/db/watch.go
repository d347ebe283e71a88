package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const defaultDebounce = 250 * time.Millisecond

// DocumentWatcher calls OnChange when a watched file is written, created,
// renamed over or removed. Bursts of events are debounced into one call.
type DocumentWatcher struct {
	path     string
	onChange func()
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	wg      sync.WaitGroup
}

// WatchDocument starts watching path. The parent directory is watched
// because atomic saves replace the file's inode.
func WatchDocument(ctx context.Context, path string, onChange func()) (*DocumentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("adding watch for %s: %w", dir, err)
	}

	dw := &DocumentWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: defaultDebounce,
		watcher:  w,
	}
	dw.wg.Add(1)
	go dw.eventLoop(ctx)

	log.Debug().Str("path", path).Msg("watching schedule document")
	return dw, nil
}

// Close stops the watcher and waits for the event loop to exit.
func (dw *DocumentWatcher) Close() error {
	err := dw.watcher.Close()
	dw.wg.Wait()

	dw.mu.Lock()
	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.mu.Unlock()
	return err
}

func (dw *DocumentWatcher) eventLoop(ctx context.Context) {
	defer dw.wg.Done()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != dw.path || event.Op&relevant == 0 {
				continue
			}
			dw.schedule()

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", dw.path).Msg("schedule document watch error")
		}
	}
}

func (dw *DocumentWatcher) schedule() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.timer = time.AfterFunc(dw.debounce, dw.onChange)
}
