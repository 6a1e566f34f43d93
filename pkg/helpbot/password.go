// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptyPassword is returned when the password argument resolves to an
// empty string.
var ErrEmptyPassword = errors.New("password is empty")

// ResolvePassword interprets the command-line password argument. If arg names
// a regular file, the file's first line is the password; otherwise arg is the
// password itself.
func ResolvePassword(arg string) (string, error) {
	password := arg
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		password, _, _ = strings.Cut(string(data), "\n")
		password = strings.TrimSuffix(password, "\r")
	}
	if password == "" {
		return "", ErrEmptyPassword
	}
	return password, nil
}
