// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePassword(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	withNewline := filepath.Join(dir, "pw")
	if err := os.WriteFile(withNewline, []byte("hunter2\r\nignored\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr error
	}{
		{"literal", "s3cret pass", "s3cret pass", nil},
		{"file", withNewline, "hunter2", nil},
		{"directory is literal", dir, dir, nil},
		{"empty literal", "", "", ErrEmptyPassword},
		{"empty file", empty, "", ErrEmptyPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePassword(tt.arg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
