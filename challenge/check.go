// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package challenge

import (
	"context"

	"github.com/bureau-foundation/doorman/lib/ref"
	"github.com/bureau-foundation/doorman/messaging"
)

// CheckRooms inspects each watched room's power levels and warns about
// configurations that defeat the challenge. Advisory only: a
// misconfigured room is an operator problem to fix in the room, not a
// reason to refuse startup.
//
// Three conditions are checked:
//   - default event-send level already at or below users_default: new
//     members can post without answering, the challenge gates nothing
//   - sending m.reaction requires more than users_default: unverified
//     members cannot answer at all
//   - the gatekeeper cannot write m.room.power_levels: verification
//     would be observed but the promotion write would fail
func (e *Engine) CheckRooms(ctx context.Context, rooms []ref.RoomID) {
	for _, roomID := range rooms {
		levels, err := e.session.PowerLevels(ctx, roomID)
		if err != nil {
			e.logger.Warn("self-check: cannot read power levels",
				"room", roomID, "error", err)
			continue
		}

		usersDefault := levels.UsersDefaultLevel()

		if usersDefault >= levels.EventsDefaultLevel() {
			e.logger.Warn("self-check: members can post without verification",
				"room", roomID,
				"users_default", usersDefault,
				"events_default", levels.EventsDefaultLevel())
		}

		if reactionLevel := levels.EventLevel(messaging.EventTypeReaction, false); reactionLevel > usersDefault {
			e.logger.Warn("self-check: unverified members cannot send reactions",
				"room", roomID,
				"required", reactionLevel,
				"users_default", usersDefault)
		}

		if required := levels.EventLevel(messaging.EventTypePowerLevels, true); levels.UserLevel(e.botUserID) < required {
			e.logger.Warn("self-check: gatekeeper cannot write power levels, promotion will fail",
				"room", roomID,
				"required", required,
				"have", levels.UserLevel(e.botUserID))
		}
	}
}
