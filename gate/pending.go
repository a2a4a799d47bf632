// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/bureau-foundation/doorman/lib/clock"
	"github.com/bureau-foundation/doorman/lib/ref"
)

// PendingInvite is an invite parked behind the identity-provider
// redirect: the visitor passed Turnstile and now has to come back
// through /callback before the invite is issued.
type PendingInvite struct {
	RoomID ref.RoomID
	UserID ref.UserID
}

// PendingStore maps one-shot tokens to parked invites. Tokens are
// cryptographically random and single-use: Take removes the entry, so
// a second callback with the same state fails. Entries expire after
// the configured TTL; an abandoned flow cannot pin memory forever.
//
// The mutex is held only for map operations, never across a network
// call.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	ttl     time.Duration
	clk     clock.Clock
}

type pendingEntry struct {
	invite  PendingInvite
	expires time.Time
}

// NewPendingStore creates a store whose entries live for ttl.
func NewPendingStore(ttl time.Duration, clk clock.Clock) *PendingStore {
	return &PendingStore{
		entries: make(map[string]pendingEntry),
		ttl:     ttl,
		clk:     clk,
	}
}

// Put parks an invite and returns its token: 32 random bytes,
// URL-safe base64. The token doubles as the OAuth state parameter.
func (s *PendingStore) Put(invite PendingInvite) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("gate: generating pending token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic sweep: drop everything already expired. Keeps the
	// map bounded without a background goroutine.
	for key, entry := range s.entries {
		if !entry.expires.After(now) {
			delete(s.entries, key)
		}
	}

	s.entries[token] = pendingEntry{
		invite:  invite,
		expires: now.Add(s.ttl),
	}
	return token, nil
}

// Take atomically looks up and removes the invite for a token.
// Returns false for unknown, already-taken, and expired tokens — the
// caller cannot distinguish these, deliberately.
func (s *PendingStore) Take(token string) (PendingInvite, bool) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return PendingInvite{}, false
	}
	delete(s.entries, token)

	if !entry.expires.After(now) {
		return PendingInvite{}, false
	}
	return entry.invite, true
}

// Len returns the number of live entries, expired ones included until
// the next sweep.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
