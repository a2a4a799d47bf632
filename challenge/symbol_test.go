// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package challenge

import (
	"testing"

	"github.com/bureau-foundation/doorman/lib/ref"
)

func TestSymbolStable(t *testing.T) {
	alice := ref.MustParseUserID("@alice:example.org")

	first := Symbol(alice)
	for range 10 {
		if got := Symbol(alice); got != first {
			t.Fatalf("Symbol not stable: %q then %q", first, got)
		}
	}

	inAlphabet := false
	for _, symbol := range alphabet {
		if first == symbol {
			inAlphabet = true
		}
	}
	if !inAlphabet {
		t.Errorf("Symbol %q not in alphabet", first)
	}
}

func TestSymbolVariesAcrossUsers(t *testing.T) {
	// With 7 symbols and 30 users, at least two distinct symbols must
	// appear unless the hash is badly broken.
	seen := make(map[string]bool)
	for _, name := range []string{
		"alice", "bob", "carol", "dave", "erin", "frank", "grace",
		"heidi", "ivan", "judy", "mallory", "niaj", "olivia", "peggy",
		"rupert", "sybil", "trent", "victor", "walter", "xavier",
		"yolanda", "zach", "amy", "ben", "cleo", "dan", "eva", "finn",
		"gina", "hal",
	} {
		seen[Symbol(ref.MustParseUserID("@"+name+":example.org"))] = true
	}
	if len(seen) < 2 {
		t.Errorf("30 users mapped to %d symbol(s)", len(seen))
	}
}
