// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate implements the invite gate: an HTTP surface that
// performs privileged room invitations after proof-of-humanity and,
// optionally, a GitHub account-age check. The flow is stateless except
// for the pending-invite store that parks an invite across the OAuth
// redirect.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bureau-foundation/doorman/directory"
	"github.com/bureau-foundation/doorman/lib/clock"
	"github.com/bureau-foundation/doorman/lib/github"
	"github.com/bureau-foundation/doorman/lib/ref"
	"github.com/bureau-foundation/doorman/messaging"
)

// Service is the invite gate.
type Service struct {
	session        *messaging.Session
	rooms          *directory.Snapshot
	turnstile      *TurnstileVerifier
	siteKey        string
	identity       *github.Client
	highAbuse      map[string]bool
	minAccountAge  time.Duration
	pending        *PendingStore
	requireProfile bool
	clk            clock.Clock
	logger         *slog.Logger
}

// Config configures a Service.
type Config struct {
	// Session is the gatekeeper's Matrix session. Required.
	Session *messaging.Session

	// Rooms is the eligible-room directory. Required.
	Rooms *directory.Snapshot

	// Turnstile verifies proof-of-humanity tokens. Required.
	Turnstile *TurnstileVerifier

	// SiteKey is the public Turnstile site key rendered into the
	// room picker. Required.
	SiteKey string

	// Identity is the GitHub client for the account-age heuristic.
	// When nil, invites complete directly after Turnstile
	// verification and /callback is not served.
	Identity *github.Client

	// HighAbuseOrigins lists homeserver names whose users are
	// subject to the account-age heuristic.
	HighAbuseOrigins []string

	// MinAccountAge is the minimum linked-account age for users
	// from high-abuse origins. Defaults to 720h.
	MinAccountAge time.Duration

	// PendingTTL bounds the lifetime of parked invites. Defaults
	// to 1h.
	PendingTTL time.Duration

	// RequireProfile escalates a failed display-name fetch from a
	// warning to a request failure.
	RequireProfile bool

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// New creates the invite gate service.
func New(config Config) (*Service, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("gate: Session is required")
	}
	if config.Rooms == nil {
		return nil, fmt.Errorf("gate: Rooms is required")
	}
	if config.Turnstile == nil {
		return nil, fmt.Errorf("gate: Turnstile is required")
	}
	if config.SiteKey == "" {
		return nil, fmt.Errorf("gate: SiteKey is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("gate: Logger is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	minAccountAge := config.MinAccountAge
	if minAccountAge == 0 {
		minAccountAge = 720 * time.Hour
	}

	pendingTTL := config.PendingTTL
	if pendingTTL == 0 {
		pendingTTL = time.Hour
	}

	highAbuse := make(map[string]bool, len(config.HighAbuseOrigins))
	for _, origin := range config.HighAbuseOrigins {
		highAbuse[origin] = true
	}

	return &Service{
		session:        config.Session,
		rooms:          config.Rooms,
		turnstile:      config.Turnstile,
		siteKey:        config.SiteKey,
		identity:       config.Identity,
		highAbuse:      highAbuse,
		minAccountAge:  minAccountAge,
		pending:        NewPendingStore(pendingTTL, clk),
		requireProfile: config.RequireProfile,
		clk:            clk,
		logger:         config.Logger,
	}, nil
}

// Handler returns the gate's HTTP handler.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /invite", s.handleInvite)
	if s.identity != nil {
		mux.HandleFunc("GET /callback", s.handleCallback)
	}
	return mux
}

// handleIndex renders the room picker.
func (s *Service) handleIndex(writer http.ResponseWriter, request *http.Request) {
	data := struct {
		Rooms   []directory.Room
		SiteKey string
	}{
		Rooms:   s.rooms.Rooms(),
		SiteKey: s.siteKey,
	}

	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pickerTemplate.Execute(writer, data); err != nil {
		s.logger.Error("rendering room picker", "error", err)
	}
}

// handleInvite processes an invite submission. Order matters: the
// room is checked against the directory before any external call, and
// Turnstile is verified before the policy branch.
func (s *Service) handleInvite(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	if err := request.ParseForm(); err != nil {
		http.Error(writer, "malformed form", http.StatusBadRequest)
		return
	}

	roomID, err := ref.ParseRoomID(request.PostFormValue("room_id"))
	if err != nil {
		http.Error(writer, "malformed room ID", http.StatusBadRequest)
		return
	}
	userID, err := ref.ParseUserID(request.PostFormValue("user_id"))
	if err != nil {
		http.Error(writer, "malformed user ID", http.StatusBadRequest)
		return
	}

	room, ok := s.rooms.Lookup(roomID)
	if !ok {
		http.Error(writer, "unknown room", http.StatusBadRequest)
		return
	}

	proofToken := request.PostFormValue("cf-turnstile-response")
	passed, err := s.turnstile.Verify(ctx, proofToken, remoteIP(request))
	if err != nil {
		s.logger.Error("turnstile verification error", "error", err)
		http.Error(writer, "verification unavailable, try again", http.StatusBadGateway)
		return
	}
	if !passed {
		s.logger.Warn("turnstile verification failed",
			"user", userID, "room", roomID)
		http.Error(writer, "verification failed", http.StatusForbidden)
		return
	}

	// Identity-linking policy: park the invite and send the visitor
	// to GitHub. The heuristic runs on the way back.
	if s.identity != nil {
		token, err := s.pending.Put(PendingInvite{RoomID: roomID, UserID: userID})
		if err != nil {
			s.logger.Error("parking invite", "error", err)
			http.Error(writer, "internal error", http.StatusInternalServerError)
			return
		}
		http.Redirect(writer, request, s.identity.AuthCodeURL(token), http.StatusSeeOther)
		return
	}

	if !s.completeInvite(ctx, writer, roomID, userID) {
		return
	}
	fmt.Fprintf(writer, "Invited %s to %s.\n", userID, room.Label())
}

// handleCallback resumes a parked invite after the GitHub redirect.
func (s *Service) handleCallback(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	state := request.URL.Query().Get("state")
	code := request.URL.Query().Get("code")

	pending, ok := s.pending.Take(state)
	if !ok {
		// Unknown, reused, or expired. Terminal; the visitor starts
		// over from the picker.
		http.Error(writer, "invalid or expired token", http.StatusBadRequest)
		return
	}

	oauthToken, err := s.identity.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("oauth exchange failed", "error", err)
		http.Error(writer, "identity provider error, try again", http.StatusBadGateway)
		return
	}

	account, err := s.identity.User(ctx, oauthToken)
	if err != nil {
		s.logger.Error("profile fetch failed", "error", err)
		http.Error(writer, "identity provider error, try again", http.StatusBadGateway)
		return
	}

	// Account-age heuristic: a young linked account on a high-abuse
	// origin is the throwaway-bot signature. Heuristic, not proof —
	// false positives are accepted.
	if s.highAbuse[pending.UserID.Server()] {
		age := s.clk.Now().Sub(account.CreatedAt)
		if age < s.minAccountAge {
			s.logger.Warn("rejecting young linked account",
				"user", pending.UserID,
				"github_login", account.Login,
				"account_age", age)
			http.Error(writer, "likely abusive account", http.StatusForbidden)
			return
		}
	}

	if !s.completeInvite(ctx, writer, pending.RoomID, pending.UserID) {
		return
	}

	room, _ := s.rooms.Lookup(pending.RoomID)
	fmt.Fprintf(writer, "Invited %s to %s.\n", pending.UserID, room.Label())
}

// completeInvite runs the shared privileged-invite primitive and
// writes the error response on failure. Returns true on success.
func (s *Service) completeInvite(ctx context.Context, writer http.ResponseWriter, roomID ref.RoomID, userID ref.UserID) bool {
	displayName, err := s.session.GetDisplayName(ctx, userID)
	if err != nil {
		if s.requireProfile {
			s.logger.Error("profile lookup failed", "user", userID, "error", err)
			s.writeCollaboratorError(writer, err)
			return false
		}
		s.logger.Warn("profile lookup failed, inviting anyway",
			"user", userID, "error", err)
	}

	if err := s.session.InviteUser(ctx, roomID, userID); err != nil {
		s.logger.Error("invite failed",
			"room", roomID, "user", userID, "error", err)
		s.writeCollaboratorError(writer, err)
		return false
	}

	s.logger.Info("invited",
		"room", roomID, "user", userID, "display_name", displayName)
	return true
}

// writeCollaboratorError maps a room-service failure onto the HTTP
// response. Matrix errors pass the homeserver's status through
// unchanged (an already-invited user surfaces the 403 it caused);
// anything else is an opaque 502.
func (s *Service) writeCollaboratorError(writer http.ResponseWriter, err error) {
	if status := messaging.MatrixStatusCode(err); status != 0 {
		var matrixErr *messaging.MatrixError
		if errors.As(err, &matrixErr) {
			http.Error(writer, matrixErr.Message, status)
			return
		}
		http.Error(writer, "room service error", status)
		return
	}
	http.Error(writer, "room service unavailable, try again", http.StatusBadGateway)
}

// remoteIP extracts the client IP for the siteverify remoteip hint.
func remoteIP(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
