package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Manager when its config file changes on disk.
type Watcher struct {
	manager      *Manager
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	mu           sync.Mutex
	pending      bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewWatcher creates a watcher for m's config file.
func NewWatcher(m *Manager) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		manager:      m,
		watcher:      watcher,
		debounceTime: 500 * time.Millisecond, // Editors write in bursts
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins watching. The parent directory is watched so that
// write-to-temp-and-rename saves are seen.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.manager.GetConfigPath())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	target := filepath.Clean(w.manager.GetConfigPath())
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = true
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[CONFIG] WARNING: watcher error: %v", err)
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			pending := w.pending
			w.pending = false
			w.mu.Unlock()

			if pending {
				_, _ = w.manager.Reload()
			}
		}
	}
}
