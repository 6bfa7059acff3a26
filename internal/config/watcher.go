package config

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes and hands the fresh
// Config to the callback. fsnotify where it works, a slow mtime poll as
// fallback.
type Watcher struct {
	path     string
	onChange func(*Config)

	mu        sync.Mutex
	lastMtime time.Time
}

func NewWatcher(path string, onChange func(*Config)) *Watcher {
	w := &Watcher{path: path, onChange: onChange}
	if info, err := os.Stat(path); err == nil {
		w.lastMtime = info.ModTime()
	}
	return w
}

// Start runs the watch loops until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("[Config] fsnotify unavailable (%v), falling back to polling", err)
		usePolling = true
	} else if err := fw.Add(w.path); err != nil {
		log.Printf("[Config] Failed to watch %s (%v), falling back to polling", w.path, err)
		usePolling = true
		fw.Close()
	}

	if !usePolling {
		go func() {
			defer fw.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-fw.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Editors often write in two steps; let the file settle.
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-fw.Errors:
					if !ok {
						return
					}
					log.Printf("[Config] Watcher error: %v", err)
				}
			}
		}()
	}

	// Slow poll either as the fallback or as a safety net for missed
	// events (atomic renames replace the watched inode on some editors).
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadIfChanged()
			}
		}
	}()
}

func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := info.ModTime().After(w.lastMtime)
	w.mu.Unlock()
	if changed {
		w.reload()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Keep running on the last good config.
		log.Printf("[ERROR] Config: reload failed: %v", err)
		return
	}
	if info, err := os.Stat(w.path); err == nil {
		w.mu.Lock()
		w.lastMtime = info.ModTime()
		w.mu.Unlock()
	}
	log.Println("[Config] Reloaded")
	w.onChange(cfg)
}
