// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tagtable_test

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nvim-help/nvim-help-bot/pkg/helpbot/tagtable"
)

func ExampleResolver_Resolve() {
	table, _ := tagtable.Parse(strings.NewReader(":wq\tediting.txt\t/*:wq*\n"), zerolog.Nop())
	r := &tagtable.Resolver{Store: tagtable.NewStaticStore(table), Policy: tagtable.PolicyExact}

	reply, _ := r.Resolve("!h :wq")
	fmt.Println(reply)
	reply, _ = r.Resolve("!h :nope")
	fmt.Println(reply)
	// Output:
	// https://neovim.io/doc/user/editing.html#:wq
	// No help found for :nope!
}
