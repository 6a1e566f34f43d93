// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tagtable loads the Neovim help tag index and turns "!h <tag>"
// requests into documentation links.
package tagtable

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// Entry maps a help tag to the help file that defines it. File never carries
// the .txt suffix.
type Entry struct {
	Tag  string
	File string
}

// Policy selects how a query that is not an exact tag is handled.
type Policy string

const (
	// PolicyExact only answers for tags present in the table.
	PolicyExact Policy = "exact"
	// PolicyNearest falls back to the smallest tag sorting at or after the
	// query, or the last tag when the query sorts after everything.
	PolicyNearest Policy = "nearest"
)

// ParsePolicy converts a config value to a Policy. An empty value selects
// PolicyExact.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyExact:
		return PolicyExact, nil
	case PolicyNearest:
		return PolicyNearest, nil
	default:
		return "", fmt.Errorf("unknown lookup policy %q", s)
	}
}

// Table is an immutable tag index. It is safe for concurrent use.
type Table struct {
	files  map[string]string
	sorted []string
}

// NewTable builds a table from entries. Later entries for the same tag
// replace earlier ones.
func NewTable(entries []Entry) *Table {
	t := &Table{files: make(map[string]string, len(entries))}
	for _, e := range entries {
		t.files[e.Tag] = strings.TrimSuffix(e.File, ".txt")
	}
	t.sorted = make([]string, 0, len(t.files))
	for tag := range t.files {
		t.sorted = append(t.sorted, tag)
	}
	slices.Sort(t.sorted)
	return t
}

// Parse reads a tags file. Each non-empty line holds a tag and a file name
// separated by whitespace; any further fields are ignored. Lines with fewer
// than two fields are skipped and logged.
func Parse(r io.Reader, log zerolog.Logger) (*Table, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			log.Warn().
				Int("line", lineNo).
				Str("content", line).
				Msg("Skipping malformed tag line")
			continue
		}
		entries = append(entries, Entry{Tag: fields[0], File: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return NewTable(entries), nil
}

// LoadFile parses the tags file at path.
func LoadFile(path string, log zerolog.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tags file: %w", err)
	}
	defer f.Close()
	t, err := Parse(f, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Len returns the number of distinct tags.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.sorted)
}

// Tags returns a sorted copy of all tags.
func (t *Table) Tags() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.sorted)
}

// Lookup finds the entry for query under the given policy. The second return
// value is false when nothing matched. Exact reports whether the returned
// entry is an exact hit.
func (t *Table) Lookup(query string, policy Policy) (e Entry, exact, ok bool) {
	if t == nil || len(t.sorted) == 0 {
		return Entry{}, false, false
	}
	if file, found := t.files[query]; found {
		return Entry{Tag: query, File: file}, true, true
	}
	if policy != PolicyNearest {
		return Entry{}, false, false
	}
	idx, _ := slices.BinarySearch(t.sorted, query)
	if idx >= len(t.sorted) {
		idx = len(t.sorted) - 1
	}
	tag := t.sorted[idx]
	return Entry{Tag: tag, File: t.files[tag]}, false, true
}
