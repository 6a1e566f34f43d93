// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultWatchDebounce = 500 * time.Millisecond

// TagsWatcher calls reload after the tags file changes on disk. Bursts of
// events (editors often write, rename and chmod in quick succession) are
// collapsed into a single reload.
type TagsWatcher struct {
	path     string
	debounce time.Duration
	reload   func()
	watcher  *fsnotify.Watcher
	log      zerolog.Logger
}

// NewTagsWatcher watches the directory containing path, so replacing the file
// through a rename is noticed too.
func NewTagsWatcher(path string, debounce time.Duration, reload func(), log zerolog.Logger) (*TagsWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tags path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err = watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	return &TagsWatcher{
		path:     abs,
		debounce: debounce,
		reload:   reload,
		watcher:  watcher,
		log:      log.With().Str("component", "watcher").Str("path", abs).Logger(),
	}, nil
}

// Run processes filesystem events until ctx is cancelled, then closes the
// underlying watcher.
func (tw *TagsWatcher) Run(ctx context.Context) {
	defer func() {
		if err := tw.watcher.Close(); err != nil {
			tw.log.Warn().Err(err).Msg("Error closing watcher")
		}
	}()
	tw.log.Info().Msg("Watching tags file")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != tw.path {
				continue
			}
			if !evt.Op.Has(fsnotify.Write) && !evt.Op.Has(fsnotify.Create) && !evt.Op.Has(fsnotify.Rename) {
				continue
			}
			tw.log.Debug().Str("op", evt.Op.String()).Msg("Tags file changed")
			if timer == nil {
				timer = time.NewTimer(tw.debounce)
			} else {
				timer.Reset(tw.debounce)
			}
			fire = timer.C
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.log.Error().Err(err).Msg("Watcher error")
		case <-fire:
			fire = nil
			tw.reload()
		}
	}
}
