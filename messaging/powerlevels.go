// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/doorman/lib/ref"
)

// PowerLevels is a typed view of the Matrix m.room.power_levels state
// event content. It supports typed read-modify-write operations:
// unmarshal the raw JSON from GetStateEvent, modify with SetUserLevel,
// then send the struct back with SendStateEvent.
//
// Pointer-to-int fields distinguish "not set" (nil, omitted from JSON)
// from "explicitly set to 0" (pointer to 0). This preserves server
// defaults for fields the caller doesn't touch. Accessors apply the
// Matrix spec defaults for absent fields.
//
// The event content is room-owned state: servers and clients put keys
// in it this struct does not model ("historical", custom namespaced
// keys). Unmarshaling keeps the full decoded content alongside the
// typed fields and marshaling merges the typed fields back over it, so
// a read-modify-write round trip only changes what the caller touched.
type PowerLevels struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  *int           `json:"users_default,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
	EventsDefault *int           `json:"events_default,omitempty"`
	StateDefault  *int           `json:"state_default,omitempty"`
	Invite        *int           `json:"invite,omitempty"`
	Ban           *int           `json:"ban,omitempty"`
	Kick          *int           `json:"kick,omitempty"`
	Redact        *int           `json:"redact,omitempty"`
	Notifications map[string]int `json:"notifications,omitempty"`

	// raw is the content as originally decoded, including unmodeled
	// keys. Nil for zero-constructed values.
	raw map[string]json.RawMessage
}

// UnmarshalJSON decodes both the typed fields and the full key set, so
// unmodeled keys survive a later MarshalJSON.
func (powerLevels *PowerLevels) UnmarshalJSON(data []byte) error {
	type typedOnly PowerLevels
	var typed typedOnly
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*powerLevels = PowerLevels(typed)
	powerLevels.raw = raw
	return nil
}

// MarshalJSON emits the typed fields merged over the originally
// decoded content. Keys this struct does not model pass through
// unchanged; modeled keys reflect any modifications.
func (powerLevels PowerLevels) MarshalJSON() ([]byte, error) {
	type typedOnly PowerLevels
	typed, err := json.Marshal(typedOnly(powerLevels))
	if err != nil {
		return nil, err
	}
	if powerLevels.raw == nil {
		return typed, nil
	}

	merged := make(map[string]json.RawMessage, len(powerLevels.raw))
	for key, value := range powerLevels.raw {
		merged[key] = value
	}
	var typedKeys map[string]json.RawMessage
	if err := json.Unmarshal(typed, &typedKeys); err != nil {
		return nil, err
	}
	for key, value := range typedKeys {
		merged[key] = value
	}
	return json.Marshal(merged)
}

// UserLevel returns the power level for a Matrix user. If the user has
// an explicit entry in the Users map, that value is returned. Otherwise
// falls back to UsersDefault, defaulting to 0 per the Matrix spec.
func (powerLevels *PowerLevels) UserLevel(userID ref.UserID) int {
	if powerLevels.Users != nil {
		if level, ok := powerLevels.Users[userID.String()]; ok {
			return level
		}
	}
	return powerLevels.UsersDefaultLevel()
}

// UsersDefaultLevel returns users_default, or 0 when absent.
func (powerLevels *PowerLevels) UsersDefaultLevel() int {
	if powerLevels.UsersDefault != nil {
		return *powerLevels.UsersDefault
	}
	return 0
}

// EventsDefaultLevel returns events_default, or 0 when absent. This is
// the level the challenge engine promotes verified users to.
func (powerLevels *PowerLevels) EventsDefaultLevel() int {
	if powerLevels.EventsDefault != nil {
		return *powerLevels.EventsDefault
	}
	return 0
}

// EventLevel returns the level required to send the given event type.
// An explicit entry in the Events map wins; otherwise state events fall
// back to state_default (spec default 50) and timeline events to
// events_default (spec default 0).
func (powerLevels *PowerLevels) EventLevel(eventType ref.EventType, isState bool) int {
	if powerLevels.Events != nil {
		if level, ok := powerLevels.Events[eventType.String()]; ok {
			return level
		}
	}
	if isState {
		if powerLevels.StateDefault != nil {
			return *powerLevels.StateDefault
		}
		return 50
	}
	return powerLevels.EventsDefaultLevel()
}

// InviteLevel returns the level required to invite a user, defaulting
// to 0 per the Matrix spec. The room directory snapshot uses this to
// decide which rooms the gatekeeper can invite into.
func (powerLevels *PowerLevels) InviteLevel() int {
	if powerLevels.Invite != nil {
		return *powerLevels.Invite
	}
	return 0
}

// SetUserLevel sets the power level for a Matrix user. Initializes the
// Users map if nil.
func (powerLevels *PowerLevels) SetUserLevel(userID ref.UserID, level int) {
	if powerLevels.Users == nil {
		powerLevels.Users = make(map[string]int)
	}
	powerLevels.Users[userID.String()] = level
}

// PowerLevels fetches and parses a room's m.room.power_levels state
// event.
func (s *Session) PowerLevels(ctx context.Context, roomID ref.RoomID) (*PowerLevels, error) {
	content, err := s.GetStateEvent(ctx, roomID, EventTypePowerLevels, "")
	if err != nil {
		return nil, fmt.Errorf("messaging: reading power levels for %s: %w", roomID, err)
	}

	var powerLevels PowerLevels
	if err := json.Unmarshal(content, &powerLevels); err != nil {
		return nil, fmt.Errorf("messaging: parsing power levels for %s: %w", roomID, err)
	}
	return &powerLevels, nil
}
