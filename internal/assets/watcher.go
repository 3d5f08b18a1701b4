// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assets

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a directory must be quiet before a change is
// reported.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changes to the model directories of a Library.
type Watcher struct {
	lib      *Library
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	timers   map[Kind]*time.Timer
	onChange func(Kind)
	done     chan struct{}
	closed   bool
}

// NewWatcher creates a watcher for lib. The model directories are created
// when missing.
func NewWatcher(lib *Library, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := lib.EnsureDirs(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, k := range Kinds {
		if err := fw.Add(lib.Dir(k)); err != nil {
			fw.Close()
			return nil, err
		}
	}

	return &Watcher{
		lib:      lib,
		watcher:  fw,
		debounce: debounce,
		logger:   logger,
		timers:   make(map[Kind]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// OnChange sets the callback invoked with the kind whose directory changed.
func (w *Watcher) OnChange(fn func(Kind)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Start begins processing events in the background.
func (w *Watcher) Start() {
	go w.processEvents()
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	close(w.done)
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ModelExt) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if kind, ok := w.kindOf(event.Name); ok {
				w.schedule(kind)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("model watcher error", "err", err)
		}
	}
}

func (w *Watcher) kindOf(path string) (Kind, bool) {
	dir := filepath.Dir(path)
	for _, k := range Kinds {
		if sameDir(dir, w.lib.Dir(k)) {
			return k, true
		}
	}
	return "", false
}

// schedule reports kind once its directory has been quiet for the
// debounce interval.
func (w *Watcher) schedule(kind Kind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[kind]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[kind] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, kind)
		fn := w.onChange
		closed := w.closed
		w.mu.Unlock()
		if fn != nil && !closed {
			w.logger.Debug("model directory changed", "kind", string(kind))
			fn(kind)
		}
	})
}

func sameDir(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err1 := os.Stat(a)
	bi, err2 := os.Stat(b)
	return err1 == nil && err2 == nil && os.SameFile(ai, bi)
}
