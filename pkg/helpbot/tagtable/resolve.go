// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tagtable

import (
	"fmt"
	"strings"
)

// Trigger is the prefix that activates a lookup. The trailing space keeps
// messages like "!hello" from matching.
const Trigger = "!h "

// DefaultBaseURL is where the Neovim HTML help pages live.
const DefaultBaseURL = "https://neovim.io/doc/user"

// Outcome classifies how a reply was produced.
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeNearest Outcome = "nearest"
	OutcomeMiss    Outcome = "miss"
)

// ExtractQuery returns the trimmed tag after the trigger. ok is false when
// message does not start with the trigger.
func ExtractQuery(message string) (query string, ok bool) {
	rest, ok := strings.CutPrefix(message, Trigger)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// FormatURL builds the documentation link for an entry.
func FormatURL(baseURL string, e Entry) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s.html#%s", strings.TrimSuffix(baseURL, "/"), e.File, e.Tag)
}

// NotFound is the reply for a tag that is not in the table.
func NotFound(query string) string {
	return fmt.Sprintf("No help found for %s!", query)
}

// Resolver answers help requests from the current snapshot of a Store.
type Resolver struct {
	Store   *Store
	Policy  Policy
	BaseURL string
}

// Resolve returns the reply for message. ok is false when message is not a
// help request; otherwise exactly one reply is produced.
func (r *Resolver) Resolve(message string) (reply string, ok bool) {
	reply, _, ok = r.ResolveOutcome(message)
	return reply, ok
}

// ResolveOutcome is Resolve that also reports how the reply was produced.
func (r *Resolver) ResolveOutcome(message string) (string, Outcome, bool) {
	query, ok := ExtractQuery(message)
	if !ok {
		return "", "", false
	}
	var table *Table
	if r.Store != nil {
		table = r.Store.Snapshot()
	}
	e, exact, found := table.Lookup(query, r.Policy)
	switch {
	case !found:
		return NotFound(query), OutcomeMiss, true
	case exact:
		return FormatURL(r.BaseURL, e), OutcomeHit, true
	default:
		return FormatURL(r.BaseURL, e), OutcomeNearest, true
	}
}
