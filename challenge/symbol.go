// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package challenge implements the join-challenge engine: every joiner
// of a protected room is told their personal symbol, and posting power
// is granted only when they react to the challenge message with that
// exact symbol. The symbol is a pure function of the user ID, so the
// engine needs no stored state and survives restarts with consistent
// answers.
package challenge

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/doorman/lib/ref"
)

// alphabet is the fixed set of challenge symbols. Seven visually
// distinct emoji that render on every mainstream client.
var alphabet = []string{"🦊", "🐢", "🦉", "🐙", "🦋", "🐝", "🍀"}

// Symbol maps a user ID to that user's challenge symbol. Deterministic:
// the same ID always yields the same symbol, across processes and
// restarts. The hash spreads users evenly over the alphabet; modulo
// bias over 2^64 is negligible for 7 symbols.
func Symbol(userID ref.UserID) string {
	sum := blake3.Sum256([]byte(userID.String()))
	index := binary.BigEndian.Uint64(sum[:8]) % uint64(len(alphabet))
	return alphabet[index]
}
