// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/nvim-help/nvim-help-bot/pkg/helpbot/tagtable"
)

// RejectionNotice is sent instead of a lookup when a help request arrives in
// a room that is not in allowed_rooms.
const RejectionNotice = "Sorry, I only answer help requests in designated rooms."

const defaultSendTimeout = 10 * time.Second

// matrixAPI is the subset of *mautrix.Client the handler needs. Tests inject
// a mock instead of talking to a homeserver.
type matrixAPI interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
}

var _ matrixAPI = (*mautrix.Client)(nil)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Self is the bot's own user ID. Its messages are ignored and only
	// invites targeting it are accepted.
	Self         id.UserID
	AllowedRooms []id.RoomID
	AutoJoin     bool
	SendTimeout  time.Duration
}

// Handler reacts to inbound events. It holds no mutable state besides
// metrics, so concurrent calls are safe.
type Handler struct {
	api      matrixAPI
	resolver *tagtable.Resolver
	metrics  *Metrics
	log      zerolog.Logger

	self        id.UserID
	allowed     map[id.RoomID]struct{}
	autoJoin    bool
	sendTimeout time.Duration
}

// NewHandler creates a handler that answers through api.
func NewHandler(api matrixAPI, resolver *tagtable.Resolver, opts HandlerOptions, metrics *Metrics, log zerolog.Logger) *Handler {
	h := &Handler{
		api:         api,
		resolver:    resolver,
		metrics:     metrics,
		log:         log.With().Str("component", "handler").Logger(),
		self:        opts.Self,
		autoJoin:    opts.AutoJoin,
		sendTimeout: opts.SendTimeout,
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	if h.sendTimeout <= 0 {
		h.sendTimeout = defaultSendTimeout
	}
	if len(opts.AllowedRooms) > 0 {
		h.allowed = make(map[id.RoomID]struct{}, len(opts.AllowedRooms))
		for _, roomID := range opts.AllowedRooms {
			h.allowed[roomID] = struct{}{}
		}
	}
	return h
}

// HandleEvent dispatches evt. Panics are recovered and logged so a single bad
// event cannot take down the sync loop.
func (h *Handler) HandleEvent(ctx context.Context, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Str("room_id", roomOf(evt).String()).
				Msg("Recovered panic in event handler")
		}
	}()

	switch e := evt.(type) {
	case MessageEvent:
		h.handleMessage(ctx, e)
	case InviteEvent:
		h.handleInvite(ctx, e)
	default:
		h.log.Debug().Str("type", fmt.Sprintf("%T", evt)).Msg("Ignoring unsupported event")
	}
}

func roomOf(evt Event) id.RoomID {
	if evt == nil {
		return ""
	}
	return evt.Room()
}

func (h *Handler) roomAllowed(roomID id.RoomID) bool {
	if h.allowed == nil {
		return true
	}
	_, ok := h.allowed[roomID]
	return ok
}

func (h *Handler) handleMessage(ctx context.Context, msg MessageEvent) {
	if msg.Sender == h.self {
		return
	}
	if _, ok := tagtable.ExtractQuery(msg.Body); !ok {
		return
	}
	log := h.log.With().
		Str("room_id", msg.RoomID.String()).
		Str("sender", msg.Sender.String()).
		Logger()

	if !h.roomAllowed(msg.RoomID) {
		h.metrics.Rejected.Inc()
		log.Info().Msg("Rejected help request from non-designated room")
		h.reply(ctx, log, msg.RoomID, RejectionNotice)
		return
	}

	reply, outcome, _ := h.resolver.ResolveOutcome(msg.Body)
	h.metrics.Lookups.WithLabelValues(string(outcome)).Inc()
	log.Debug().
		Str("outcome", string(outcome)).
		Str("reply", reply).
		Msg("Resolved help request")
	h.reply(ctx, log, msg.RoomID, reply)
}

// reply sends text to roomID within the send timeout. Failures are logged
// and counted only.
func (h *Handler) reply(ctx context.Context, log zerolog.Logger, roomID id.RoomID, text string) {
	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	if _, err := h.api.SendText(ctx, roomID, text); err != nil {
		h.metrics.RepliesFailed.Inc()
		log.Error().Err(err).Msg("Failed to send reply")
	}
}

func (h *Handler) handleInvite(ctx context.Context, inv InviteEvent) {
	if inv.Target != h.self || !h.autoJoin {
		return
	}
	log := h.log.With().
		Str("room_id", inv.RoomID.String()).
		Str("inviter", inv.Sender.String()).
		Logger()
	if !h.roomAllowed(inv.RoomID) {
		h.metrics.Joins.WithLabelValues("skipped").Inc()
		log.Info().Msg("Ignoring invite to non-designated room")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	if _, err := h.api.JoinRoomByID(ctx, inv.RoomID); err != nil {
		h.metrics.Joins.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("Failed to join room")
		return
	}
	h.metrics.Joins.WithLabelValues("ok").Inc()
	log.Info().Msg("Joined room after invite")
}

// SetSelf updates the bot's own user ID. Call it before events are
// dispatched.
func (h *Handler) SetSelf(userID id.UserID) {
	h.self = userID
}
