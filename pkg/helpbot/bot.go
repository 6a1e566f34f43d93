// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"

	"github.com/nvim-help/nvim-help-bot/pkg/helpbot/tagtable"
)

const (
	loginAttempts      = 3
	initialSyncBackoff = time.Second
	maxSyncBackoff     = 60 * time.Second
	// A sync that ran at least this long counts as healthy and resets the
	// backoff.
	healthySyncDuration = 5 * time.Minute
)

// HelpBot is a logged-in Matrix session answering help requests.
type HelpBot struct {
	Config  *Config
	Client  *mautrix.Client
	Store   *tagtable.Store
	Handler *Handler
	Metrics *Metrics

	password string
	log      zerolog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewHelpBot prepares a bot from a validated config. It does not touch the
// network or the tags file.
func NewHelpBot(cfg *Config, password string, log zerolog.Logger) (*HelpBot, error) {
	_, serverName, err := cfg.UserID.Parse()
	if err != nil {
		return nil, fmt.Errorf("invalid user_id: %w", err)
	}
	hsURL := cfg.Homeserver
	if hsURL == "" {
		hsURL = "https://" + serverName
	}
	client, err := mautrix.NewClient(hsURL, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	client.Log = log.With().Str("component", "mautrix").Logger()

	metrics := NewMetrics()
	store := tagtable.NewStore(cfg.TagsFile, log)
	resolver := &tagtable.Resolver{
		Store:   store,
		Policy:  cfg.Policy(),
		BaseURL: cfg.DocBaseURL,
	}
	handler := NewHandler(client, resolver, HandlerOptions{
		Self:         cfg.UserID,
		AllowedRooms: cfg.AllowedRooms,
		AutoJoin:     cfg.AutoJoin,
		SendTimeout:  cfg.SendTimeoutDuration(),
	}, metrics, log)

	return &HelpBot{
		Config:   cfg,
		Client:   client,
		Store:    store,
		Handler:  handler,
		Metrics:  metrics,
		password: password,
		log:      log,
		stopped:  make(chan struct{}),
	}, nil
}

// Start loads the tag table, then starts the admin API and, if enabled, the
// tags file watcher. An unreadable tags file is a configuration error.
func (b *HelpBot) Start(ctx context.Context) error {
	if _, err := b.ReloadTags("startup"); err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	b.StartAdminAPI(ctx)
	if b.Config.WatchTagsFile {
		tw, err := NewTagsWatcher(b.Config.TagsFile, 0, func() {
			_, _ = b.ReloadTags("watcher")
		}, b.log)
		if err != nil {
			return err
		}
		go tw.Run(ctx)
	}
	return nil
}

// ReloadTags re-reads the tags file. source names the trigger for logging.
func (b *HelpBot) ReloadTags(source string) (int, error) {
	n, err := b.Store.Reload()
	if err != nil {
		b.Metrics.TagReloads.WithLabelValues("error").Inc()
		b.log.Warn().Err(err).Str("source", source).Msg("Tag reload failed")
		return n, err
	}
	b.Metrics.TagReloads.WithLabelValues("ok").Inc()
	b.Metrics.TagsLoaded.Set(float64(n))
	b.log.Info().Str("source", source).Int("tags", n).Msg("Tags reloaded")
	return n, nil
}

// discoverHomeserver resolves the client API URL through .well-known when no
// homeserver is configured. Lookup failures keep the https://<server> guess.
func (b *HelpBot) discoverHomeserver(ctx context.Context) {
	if b.Config.Homeserver != "" {
		return
	}
	_, serverName, _ := b.Config.UserID.Parse()
	wellKnown, err := mautrix.DiscoverClientAPI(ctx, serverName)
	if err != nil {
		b.log.Warn().Err(err).Str("server_name", serverName).Msg("Homeserver discovery failed, using server name")
		return
	}
	if wellKnown == nil || wellKnown.Homeserver.BaseURL == "" {
		return
	}
	parsed, err := url.Parse(wellKnown.Homeserver.BaseURL)
	if err != nil {
		b.log.Warn().Err(err).Str("base_url", wellKnown.Homeserver.BaseURL).Msg("Invalid discovered homeserver URL")
		return
	}
	b.Client.HomeserverURL = parsed
	b.log.Info().Str("homeserver", parsed.String()).Msg("Discovered homeserver")
}

// Login authenticates with the configured password. Bad credentials fail
// immediately; other errors are retried a few times.
func (b *HelpBot) Login(ctx context.Context) error {
	b.discoverHomeserver(ctx)
	localpart, _, _ := b.Config.UserID.Parse()
	req := &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: localpart,
		},
		Password:                 b.password,
		InitialDeviceDisplayName: b.Config.DeviceName,
		StoreCredentials:         true,
	}

	backoff := initialSyncBackoff
	var err error
	for attempt := range loginAttempts {
		var resp *mautrix.RespLogin
		resp, err = b.Client.Login(ctx, req)
		if err == nil {
			b.Handler.SetSelf(resp.UserID)
			b.log.Info().
				Str("user_id", resp.UserID.String()).
				Str("device_id", string(resp.DeviceID)).
				Msg("Logged in")
			return nil
		}
		if errors.Is(err, mautrix.MForbidden) || errors.Is(err, mautrix.MUserDeactivated) || ctx.Err() != nil {
			break
		}
		b.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Login failed, retrying")
		if attempt < loginAttempts-1 && !sleepCtx(ctx, backoff) {
			break
		}
		backoff *= 2
	}
	return fmt.Errorf("failed to log in as %s: %w", b.Config.UserID, err)
}

func (b *HelpBot) dispatch(ctx context.Context, evt *event.Event) {
	if ev, ok := FromMatrixEvent(evt); ok {
		b.Handler.HandleEvent(ctx, ev)
	}
}

// Run registers event handlers and syncs until ctx is cancelled or Stop is
// called. Events from the initial sync are not dispatched, so old messages
// are never answered. Sync errors are retried with exponential backoff.
func (b *HelpBot) Run(ctx context.Context) error {
	syncer, ok := b.Client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("unexpected syncer type")
	}
	syncer.OnSync(b.Client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, b.dispatch)
	syncer.OnEventType(event.StateMember, b.dispatch)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := initialSyncBackoff
	for {
		started := time.Now()
		err := b.Client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			b.log.Info().Msg("Sync loop stopped")
			return nil
		}
		if err == nil {
			// StopSync was called on the client directly.
			return nil
		}
		b.Metrics.SyncFailures.Inc()
		if time.Since(started) >= healthySyncDuration {
			backoff = initialSyncBackoff
		}
		b.log.Error().Err(err).Dur("retry_in", backoff).Msg("Sync failed")
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, maxSyncBackoff)
	}
}

// Stop ends Run. Safe to call more than once.
func (b *HelpBot) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopped)
		b.Client.StopSync()
	})
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
