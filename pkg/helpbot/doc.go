// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package helpbot implements a Matrix bot that answers "!h <tag>" with a
// link to the matching Neovim help page.
//
// # Core Types
//
// [HelpBot] owns the mautrix client session: login, the long-lived sync loop
// with backoff, and the admin API. Sync events are converted into the
// [Event] union and passed to a single [Handler].
//
// [Handler] applies room gating, resolves the tag through a
// [tagtable.Resolver] and sends the reply with a bounded timeout. Send
// failures are logged and counted but never stop the bot.
//
// # Tag Reloading
//
// The tag table is loaded once at startup and shared as an immutable
// snapshot. It is replaced only on an explicit reload: POST /api/reload-tags,
// SIGHUP, or a change to the tags file when watch_tags_file is enabled.
//
// # Sub-packages
//
//   - tagtable parses the tags index and resolves help requests.
package helpbot
