// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Event is an inbound event the bot reacts to. It is one of MessageEvent or
// InviteEvent.
type Event interface {
	Room() id.RoomID
	isEvent()
}

// MessageEvent is a plain text room message.
type MessageEvent struct {
	RoomID id.RoomID
	Sender id.UserID
	Body   string
}

// InviteEvent is an invite of Target into RoomID.
type InviteEvent struct {
	RoomID id.RoomID
	Sender id.UserID
	Target id.UserID
}

func (e MessageEvent) Room() id.RoomID { return e.RoomID }
func (e InviteEvent) Room() id.RoomID  { return e.RoomID }

func (MessageEvent) isEvent() {}
func (InviteEvent) isEvent()  {}

// FromMatrixEvent converts a synced Matrix event. ok is false for events the
// bot does not handle: non-text messages, edits, and membership changes other
// than invites.
func FromMatrixEvent(evt *event.Event) (Event, bool) {
	if evt == nil {
		return nil, false
	}
	switch evt.Type {
	case event.EventMessage:
		content, ok := evt.Content.Parsed.(*event.MessageEventContent)
		if !ok || content.MsgType != event.MsgText {
			return nil, false
		}
		if content.RelatesTo != nil && content.RelatesTo.GetReplaceID() != "" {
			return nil, false
		}
		// Replies carry a quoted fallback of the parent ahead of the actual text.
		content.RemoveReplyFallback()
		return MessageEvent{
			RoomID: evt.RoomID,
			Sender: evt.Sender,
			Body:   content.Body,
		}, true
	case event.StateMember:
		content, ok := evt.Content.Parsed.(*event.MemberEventContent)
		if !ok || content.Membership != event.MembershipInvite || evt.StateKey == nil {
			return nil, false
		}
		return InviteEvent{
			RoomID: evt.RoomID,
			Sender: evt.Sender,
			Target: id.UserID(*evt.StateKey),
		}, true
	}
	return nil, false
}
