// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/doorman/lib/clock"
	"github.com/bureau-foundation/doorman/lib/ref"
	"github.com/bureau-foundation/doorman/messaging"
)

// Engine consumes the gatekeeper's sync stream and runs the per-user
// challenge protocol in protected rooms. Per-user state is two-step
// and terminal: unverified users get a challenge on join, and a
// correctly targeted reaction promotes them to the room's default
// event-send level. There is no demotion path.
//
// Every per-event failure is logged and isolated; the stream is never
// torn down by one bad event.
type Engine struct {
	session        *messaging.Session
	botUserID      ref.UserID
	protected      map[ref.RoomID]bool
	stalenessBound time.Duration
	clk            clock.Clock
	logger         *slog.Logger
}

// Config configures an Engine.
type Config struct {
	// Session is the gatekeeper's Matrix session. Required.
	Session *messaging.Session

	// ProtectedRooms is the set of rooms the engine gates. Empty
	// means every joined room.
	ProtectedRooms []ref.RoomID

	// StalenessBound is the maximum age of a membership event the
	// engine will still challenge. Joins older than this are
	// backfilled or replayed history from a reconnect, not live
	// arrivals. Defaults to 10 minutes if zero.
	StalenessBound time.Duration

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// New creates an Engine.
func New(config Config) *Engine {
	if config.Session == nil {
		panic("challenge.Engine: Session is required")
	}
	if config.Logger == nil {
		panic("challenge.Engine: Logger is required")
	}

	stalenessBound := config.StalenessBound
	if stalenessBound == 0 {
		stalenessBound = 10 * time.Minute
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var protected map[ref.RoomID]bool
	if len(config.ProtectedRooms) > 0 {
		protected = make(map[ref.RoomID]bool, len(config.ProtectedRooms))
		for _, roomID := range config.ProtectedRooms {
			protected[roomID] = true
		}
	}

	return &Engine{
		session:        config.Session,
		botUserID:      config.Session.UserID(),
		protected:      protected,
		stalenessBound: stalenessBound,
		clk:            clk,
		logger:         config.Logger,
	}
}

// HandleSync processes one sync response. Passed to
// service.RunSyncLoop as the stream handler.
func (e *Engine) HandleSync(ctx context.Context, response *messaging.SyncResponse) {
	for roomID, room := range response.Rooms.Join {
		if e.protected != nil && !e.protected[roomID] {
			continue
		}
		for _, event := range room.Timeline.Events {
			switch event.Type {
			case messaging.EventTypeMember:
				if err := e.handleMember(ctx, roomID, event); err != nil {
					e.logger.Error("challenge failed",
						"room", roomID, "event", event.EventID, "error", err)
				}
			case messaging.EventTypeReaction:
				if err := e.handleReaction(ctx, roomID, event); err != nil {
					e.logger.Error("promotion failed",
						"room", roomID, "event", event.EventID, "error", err)
				}
			}
		}
	}
}

// handleMember posts a challenge for a fresh join. Non-join membership
// changes, the gatekeeper's own membership, profile-update re-sends,
// and stale events are all skipped without action.
func (e *Engine) handleMember(ctx context.Context, roomID ref.RoomID, event messaging.Event) error {
	var member messaging.MemberContent
	if err := messaging.DecodeContent(event, &member); err != nil {
		return err
	}
	if member.Membership != messaging.MembershipJoin {
		return nil
	}

	if event.StateKey == nil {
		return fmt.Errorf("membership event %s has no state key", event.EventID)
	}
	joiner, err := ref.ParseUserID(*event.StateKey)
	if err != nil {
		return fmt.Errorf("membership event %s: %w", event.EventID, err)
	}

	if joiner == e.botUserID {
		return nil
	}

	// A display-name or avatar change re-sends the membership event
	// with prev_content still "join". Not a new arrival.
	if event.Unsigned != nil {
		if previous, ok := event.Unsigned.PrevContent["membership"].(string); ok && previous == messaging.MembershipJoin {
			return nil
		}
	}

	// Replayed history from a reconnect carries old origin timestamps.
	// Challenging it would spam users who joined long ago.
	age := e.clk.Now().Sub(time.UnixMilli(event.OriginServerTS))
	if age > e.stalenessBound {
		e.logger.Debug("skipping stale join",
			"room", roomID, "user", joiner, "age", age)
		return nil
	}

	symbol := Symbol(joiner)
	body := fmt.Sprintf(
		"Welcome, %s! This room requires a quick check before you can post: react to this message with %s.",
		joiner, symbol)

	if _, err := e.session.SendMessage(ctx, roomID, messaging.NewThreadReply(event.EventID, body)); err != nil {
		return fmt.Errorf("posting challenge for %s: %w", joiner, err)
	}

	e.logger.Info("challenge posted", "room", roomID, "user", joiner)
	return nil
}

// handleReaction promotes a user whose reaction answers their own
// challenge. A reaction is a valid answer iff its key is the reacting
// user's own symbol and the reacted-to message was authored by the
// gatekeeper. Everything else is ignored silently — mismatched
// reactions are ordinary room activity, not errors.
func (e *Engine) handleReaction(ctx context.Context, roomID ref.RoomID, event messaging.Event) error {
	var reaction messaging.ReactionContent
	if err := messaging.DecodeContent(event, &reaction); err != nil {
		return err
	}
	if reaction.RelatesTo.RelType != messaging.RelTypeAnnotation {
		return nil
	}
	if event.Sender == e.botUserID {
		return nil
	}

	// The key must match the reacting user's own symbol. Reacting with
	// someone else's symbol (copied from another challenge in the same
	// room) proves nothing.
	if reaction.RelatesTo.Key != Symbol(event.Sender) {
		return nil
	}

	// The reaction must target a gatekeeper-authored message. Fetching
	// the event instead of tracking sent message IDs keeps the check
	// correct across restarts.
	target, err := e.session.GetEvent(ctx, roomID, reaction.RelatesTo.EventID)
	if err != nil {
		return fmt.Errorf("fetching reaction target %s: %w", reaction.RelatesTo.EventID, err)
	}
	if target.Sender != e.botUserID {
		return nil
	}

	levels, err := e.session.PowerLevels(ctx, roomID)
	if err != nil {
		return err
	}

	promoteTo := levels.EventsDefaultLevel()
	if levels.UserLevel(event.Sender) >= promoteTo {
		// Already verified (or otherwise privileged). Verification is
		// terminal; never write a second override.
		return nil
	}

	levels.SetUserLevel(event.Sender, promoteTo)
	if _, err := e.session.SendStateEvent(ctx, roomID, messaging.EventTypePowerLevels, "", levels); err != nil {
		return fmt.Errorf("promoting %s: %w", event.Sender, err)
	}

	e.logger.Info("user verified",
		"room", roomID, "user", event.Sender, "level", promoteTo)
	return nil
}
