// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tagtable

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Store holds the current tag table snapshot. Readers never block; Reload
// replaces the snapshot atomically and keeps the old one if parsing fails.
type Store struct {
	path string
	log  zerolog.Logger

	current  atomic.Pointer[Table]
	reloadMu sync.Mutex
}

// NewStore creates a store for the tags file at path. Call Reload before use.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log.With().Str("component", "tagtable").Logger(),
	}
}

// NewStaticStore wraps an already built table. Reload is a no-op that
// returns the table size.
func NewStaticStore(t *Table) *Store {
	s := &Store{log: zerolog.Nop()}
	s.current.Store(t)
	return s
}

// Path returns the tags file path, empty for static stores.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the current table. It may be nil before the first
// successful Reload.
func (s *Store) Snapshot() *Table {
	return s.current.Load()
}

// Reload re-reads the tags file and swaps in the new table. It returns the
// number of tags now loaded.
func (s *Store) Reload() (int, error) {
	if s.path == "" {
		return s.Snapshot().Len(), nil
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	t, err := LoadFile(s.path, s.log)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("Tag reload failed, keeping previous table")
		return s.Snapshot().Len(), err
	}
	s.current.Store(t)
	s.log.Info().Str("path", s.path).Int("tags", t.Len()).Msg("Loaded tag table")
	return t.Len(), nil
}
