// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/nvim-help/nvim-help-bot/pkg/helpbot/tagtable"
)

const (
	testBotID   = id.UserID("@nvim-bot:localhost")
	testUserID  = id.UserID("@alice:localhost")
	testRoomID  = id.RoomID("!help:localhost")
	otherRoomID = id.RoomID("!offtopic:localhost")
)

const testTags = ":wq\tediting.txt\t/*:wq*\n" +
	"CTRL-W\twindows.txt\t/*CTRL-W*\n" +
	"a\tf1.txt\n" +
	"c\tf2.txt\n"

// sentMessage records a SendText call.
type sentMessage struct {
	RoomID id.RoomID
	Text   string
}

// mockMatrix captures sends and joins for test assertions.
type mockMatrix struct {
	mu      sync.Mutex
	sent    []sentMessage
	joined  []id.RoomID
	sendErr error
	joinErr error
	// sendHook runs inside SendText when set, before sendErr is returned.
	sendHook func(ctx context.Context)
}

func (m *mockMatrix) SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error) {
	if m.sendHook != nil {
		m.sendHook(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{RoomID: roomID, Text: text})
	return &mautrix.RespSendEvent{EventID: id.EventID("$sent")}, nil
}

func (m *mockMatrix) JoinRoomByID(_ context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	m.joined = append(m.joined, roomID)
	return &mautrix.RespJoinRoom{RoomID: roomID}, nil
}

func (m *mockMatrix) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.sent))
	copy(cp, m.sent)
	return cp
}

func (m *mockMatrix) Joined() []id.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]id.RoomID, len(m.joined))
	copy(cp, m.joined)
	return cp
}

var errSendFailed = errors.New("homeserver unavailable")

func testTable(t *testing.T) *tagtable.Table {
	t.Helper()
	table, err := tagtable.Parse(strings.NewReader(testTags), zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return table
}

// newTestHandler creates a handler over the test tag table with a fresh
// mock and private metrics.
func newTestHandler(t *testing.T, opts HandlerOptions, policy tagtable.Policy) (*Handler, *mockMatrix) {
	t.Helper()
	api := &mockMatrix{}
	if opts.Self == "" {
		opts.Self = testBotID
	}
	resolver := &tagtable.Resolver{
		Store:  tagtable.NewStaticStore(testTable(t)),
		Policy: policy,
	}
	return NewHandler(api, resolver, opts, NewMetrics(), zerolog.Nop()), api
}

func writeTagsFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "tags")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tags: %v", err)
	}
	return path
}

// newTestConfig returns a validated config pointing at a temp tags file.
func newTestConfig(t *testing.T, homeserver string) *Config {
	t.Helper()
	cfg := &Config{
		Homeserver:   homeserver,
		UserID:       testBotID,
		DeviceName:   "test",
		TagsFile:     writeTagsFile(t, t.TempDir(), testTags),
		LookupPolicy: "exact",
		AutoJoin:     true,
		SendTimeout:  5,
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return cfg
}

// fakeHomeserver simulates the parts of the client-server API the bot uses.
type fakeHomeserver struct {
	Server *httptest.Server

	mu        sync.Mutex
	sent      []string
	syncCalls int
	// Syncs are served in order; once exhausted, /sync blocks until the
	// request is cancelled.
	Syncs []string
	// LoginStatus overrides the login response status when non-zero.
	LoginStatus int
	loginCalls  int
}

func newFakeHomeserver() *fakeHomeserver {
	f := &fakeHomeserver{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeHomeserver) Close() {
	f.Server.Close()
}

func (f *fakeHomeserver) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeHomeserver) LoginCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *fakeHomeserver) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/login"):
		f.mu.Lock()
		f.loginCalls++
		status := f.LoginStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"errcode":"M_FORBIDDEN","error":"Invalid password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"user_id":      string(testBotID),
			"access_token": "tok",
			"device_id":    "DEVICE",
		})
	case strings.HasSuffix(path, "/filter"):
		_, _ = w.Write([]byte(`{"filter_id":"f1"}`))
	case strings.HasSuffix(path, "/sync"):
		f.mu.Lock()
		idx := f.syncCalls
		f.syncCalls++
		var body string
		if idx < len(f.Syncs) {
			body = f.Syncs[idx]
		}
		f.mu.Unlock()
		if body == "" {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(body))
	case strings.Contains(path, "/send/m.room.message/"):
		data, _ := io.ReadAll(r.Body)
		var content struct {
			Body string `json:"body"`
		}
		_ = json.Unmarshal(data, &content)
		f.mu.Lock()
		f.sent = append(f.sent, content.Body)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"event_id":"$reply"}`))
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

// syncWithMessage builds a /sync response carrying one text message.
func syncWithMessage(nextBatch string, roomID id.RoomID, sender id.UserID, eventID, body string) string {
	resp := map[string]any{
		"next_batch": nextBatch,
		"rooms": map[string]any{
			"join": map[string]any{
				string(roomID): map[string]any{
					"timeline": map[string]any{
						"events": []any{
							map[string]any{
								"type":             "m.room.message",
								"event_id":         eventID,
								"sender":           string(sender),
								"origin_server_ts": 1700000000000,
								"content": map[string]any{
									"msgtype": "m.text",
									"body":    body,
								},
							},
						},
					},
				},
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}
