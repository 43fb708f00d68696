package index

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the burst of events a single save produces.
const watchDebounce = 75 * time.Millisecond

// WatchFile reloads the dump at path whenever it is written or replaced and
// hands every index that decodes to onLoad. Broken dumps are logged and
// skipped. The watch runs until ctx is done.
func WatchFile(ctx context.Context, path string, onLoad func(*CompiledIndex)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// the directory is watched since editors and build jobs replace the file
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	name := filepath.Base(path)
	reload := func() {
		ci, err := LoadFile(path)
		if err != nil {
			log.Warnf("Keeping the current compiled index: %v", err)
			return
		}
		onLoad(ci)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Errorf("[watch] error: %v", err)
			}
		}
	}()
	return nil
}
