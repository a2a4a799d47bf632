// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory builds the gate's room directory: the set of rooms
// the gatekeeper account can actually invite into. The directory is a
// snapshot taken once at startup and read-only afterwards — room picker
// rendering and invite-target validation both consult it without
// locking. Rooms joined after startup require a restart to appear.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bureau-foundation/doorman/lib/ref"
	"github.com/bureau-foundation/doorman/messaging"
)

// Room is one entry in the directory.
type Room struct {
	// ID is the room's Matrix room ID.
	ID ref.RoomID

	// Name is the room's display name (m.room.name), if set.
	Name string

	// CanonicalAlias is the room's canonical alias
	// (m.room.canonical_alias), if set.
	CanonicalAlias ref.RoomAlias

	// JoinRule is the room's join rule (m.room.join_rules), if set.
	// Informational only; the directory filter is the invite power
	// level, not the join rule.
	JoinRule string
}

// Label returns the human-facing name for the room: the display name,
// falling back to the canonical alias, falling back to the room ID.
func (r Room) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if !r.CanonicalAlias.IsZero() {
		return r.CanonicalAlias.String()
	}
	return r.ID.String()
}

// Snapshot is the immutable room directory.
type Snapshot struct {
	rooms []Room
	index map[ref.RoomID]Room
}

// Build constructs the directory from the gatekeeper's joined rooms.
// A room is included only when the gatekeeper's power level meets the
// room's invite threshold — a room the account merely sits in is not
// offered, so an invite request can never fail late on permissions the
// directory already knew about.
//
// Rooms whose state cannot be fetched are skipped with a warning; one
// unreadable room must not take the gate down.
func Build(ctx context.Context, session *messaging.Session, logger *slog.Logger) (*Snapshot, error) {
	joined, err := session.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: listing joined rooms: %w", err)
	}

	snapshot := &Snapshot{
		index: make(map[ref.RoomID]Room, len(joined)),
	}

	for _, roomID := range joined {
		state, err := session.GetRoomState(ctx, roomID)
		if err != nil {
			logger.Warn("skipping room with unreadable state", "room", roomID, "error", err)
			continue
		}

		room, invitable, err := fromState(roomID, session.UserID(), state)
		if err != nil {
			logger.Warn("skipping room with malformed state", "room", roomID, "error", err)
			continue
		}
		if !invitable {
			logger.Debug("room excluded, cannot invite", "room", roomID)
			continue
		}

		snapshot.rooms = append(snapshot.rooms, room)
		snapshot.index[roomID] = room
	}

	sort.Slice(snapshot.rooms, func(i, j int) bool {
		return snapshot.rooms[i].Label() < snapshot.rooms[j].Label()
	})

	logger.Info("room directory built",
		"joined", len(joined),
		"invitable", len(snapshot.rooms))

	return snapshot, nil
}

// fromState extracts a directory entry from a room's full state and
// reports whether gatekeeper can invite into it.
func fromState(roomID ref.RoomID, gatekeeper ref.UserID, state []messaging.Event) (Room, bool, error) {
	room := Room{ID: roomID}

	// A room with no power-levels event keeps the zero value, whose
	// defaults let every member invite.
	var levels messaging.PowerLevels

	for _, event := range state {
		if event.StateKey == nil || *event.StateKey != "" {
			continue
		}
		switch event.Type {
		case messaging.EventTypePowerLevels:
			if err := messaging.DecodeContent(event, &levels); err != nil {
				return Room{}, false, err
			}
		case messaging.EventTypeName:
			var content messaging.NameContent
			if err := messaging.DecodeContent(event, &content); err != nil {
				return Room{}, false, err
			}
			room.Name = content.Name
		case messaging.EventTypeCanonicalAlias:
			var content messaging.CanonicalAliasContent
			if err := messaging.DecodeContent(event, &content); err != nil {
				return Room{}, false, err
			}
			room.CanonicalAlias = content.Alias
		case messaging.EventTypeJoinRules:
			var content messaging.JoinRulesContent
			if err := messaging.DecodeContent(event, &content); err != nil {
				return Room{}, false, err
			}
			room.JoinRule = content.JoinRule
		}
	}

	invitable := levels.UserLevel(gatekeeper) >= levels.InviteLevel()

	return room, invitable, nil
}

// Rooms returns the directory entries sorted by label. The returned
// slice is a copy; callers may not mutate the snapshot.
func (s *Snapshot) Rooms() []Room {
	rooms := make([]Room, len(s.rooms))
	copy(rooms, s.rooms)
	return rooms
}

// Lookup returns the directory entry for roomID, if present. The gate
// rejects invite requests naming any room this returns false for —
// before any external call is made.
func (s *Snapshot) Lookup(roomID ref.RoomID) (Room, bool) {
	room, ok := s.index[roomID]
	return room, ok
}

// Len returns the number of rooms in the directory.
func (s *Snapshot) Len() int {
	return len(s.rooms)
}
