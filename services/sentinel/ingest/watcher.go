// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a watched directory must stay quiet before
// its changes are reported.
const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler receives the sorted, deduplicated paths that changed
// during one debounce window.
type ChangeHandler func(ctx context.Context, paths []string) error

// Watcher reports changes to dump and latency directories.
//
// Description:
//
//	Tracers append to dump files while a run is in progress, so every
//	write produces an event. Changes are collected until no event has
//	arrived for the debounce window and then handed to the handler as
//	one batch. Editor swap files, temporaries, and dot files are ignored.
//	Directories are watched non-recursively.
//
// Thread Safety: Run must be called at most once. The handler is invoked
// from Run's goroutine only.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching dirs. Empty entries are skipped. A
// non-positive debounce selects DefaultDebounce.
func NewWatcher(dirs []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{debounce: debounce, watcher: fw}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs = append(w.dirs, dir)
	}
	if len(w.dirs) == 0 {
		_ = fw.Close()
		return nil, ErrNothingToWatch
	}
	return w, nil
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

// Run delivers batches to handle until ctx is done, then closes the
// watcher. A handler error is logged and watching continues: a dump caught
// mid-write parses cleanly on the next batch.
func (w *Watcher) Run(ctx context.Context, handle ChangeHandler) error {
	defer w.watcher.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ignoredChange(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			if err := handle(ctx, paths); err != nil {
				slog.Warn("change handler failed",
					slog.Int("paths", len(paths)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ignoredChange filters events that never affect a model.
func ignoredChange(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return true
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, suffix := range []string{".swp", ".tmp", "~"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
