// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureau-foundation/doorman/lib/ref"
	"github.com/bureau-foundation/doorman/lib/secret"
	"github.com/bureau-foundation/doorman/messaging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession(t *testing.T, server *httptest.Server) *messaging.Session {
	t.Helper()
	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	token, err := secret.NewFromString("tok-test")
	if err != nil {
		t.Fatalf("creating token buffer: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@doorman:example.org"), token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// fakeHomeserver serves /joined_rooms and per-room /state from a map
// of room ID to state JSON.
func fakeHomeserver(t *testing.T, states map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/_matrix/client/v3/joined_rooms" {
			var ids []string
			for id := range states {
				ids = append(ids, `"`+id+`"`)
			}
			writer.Write([]byte(`{"joined_rooms": [` + strings.Join(ids, ",") + `]}`))
			return
		}
		for id, state := range states {
			if request.URL.EscapedPath() == "/_matrix/client/v3/rooms/"+escapeRoomID(id)+"/state" {
				if state == "" {
					writer.WriteHeader(http.StatusInternalServerError)
					writer.Write([]byte(`{"errcode": "M_UNKNOWN", "error": "boom"}`))
					return
				}
				writer.Write([]byte(state))
				return
			}
		}
		t.Errorf("unexpected path %s", request.URL.Path)
		writer.WriteHeader(http.StatusNotFound)
	}))
}

func escapeRoomID(id string) string {
	return strings.ReplaceAll(id, "!", "%21")
}

const invitableState = `[
	{"type": "m.room.power_levels", "state_key": "", "sender": "@admin:example.org",
	 "event_id": "$pl", "origin_server_ts": 1,
	 "content": {"users": {"@doorman:example.org": 50}, "invite": 50}},
	{"type": "m.room.name", "state_key": "", "sender": "@admin:example.org",
	 "event_id": "$name", "origin_server_ts": 2,
	 "content": {"name": "Lobby"}},
	{"type": "m.room.canonical_alias", "state_key": "", "sender": "@admin:example.org",
	 "event_id": "$alias", "origin_server_ts": 3,
	 "content": {"alias": "#lobby:example.org"}},
	{"type": "m.room.join_rules", "state_key": "", "sender": "@admin:example.org",
	 "event_id": "$jr", "origin_server_ts": 4,
	 "content": {"join_rule": "invite"}}
]`

const uninvitableState = `[
	{"type": "m.room.power_levels", "state_key": "", "sender": "@admin:example.org",
	 "event_id": "$pl2", "origin_server_ts": 1,
	 "content": {"users": {}, "invite": 50}}
]`

func TestBuildFiltersByInviteLevel(t *testing.T) {
	server := fakeHomeserver(t, map[string]string{
		"!lobby:example.org":  invitableState,
		"!locked:example.org": uninvitableState,
	})
	defer server.Close()

	snapshot, err := Build(context.Background(), testSession(t, server), testLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if snapshot.Len() != 1 {
		t.Fatalf("directory has %d rooms, want 1", snapshot.Len())
	}

	room, ok := snapshot.Lookup(ref.MustParseRoomID("!lobby:example.org"))
	if !ok {
		t.Fatal("invitable room missing from directory")
	}
	if room.Name != "Lobby" {
		t.Errorf("name = %q", room.Name)
	}
	if room.CanonicalAlias.String() != "#lobby:example.org" {
		t.Errorf("alias = %q", room.CanonicalAlias)
	}
	if room.JoinRule != "invite" {
		t.Errorf("join rule = %q", room.JoinRule)
	}

	if _, ok := snapshot.Lookup(ref.MustParseRoomID("!locked:example.org")); ok {
		t.Error("uninvitable room present in directory")
	}
}

func TestBuildNoPowerLevelsMeansInvitable(t *testing.T) {
	// Without a power-levels event, the defaults apply: users_default 0,
	// invite 0, so any member may invite.
	server := fakeHomeserver(t, map[string]string{
		"!bare:example.org": `[]`,
	})
	defer server.Close()

	snapshot, err := Build(context.Background(), testSession(t, server), testLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if snapshot.Len() != 1 {
		t.Fatalf("directory has %d rooms, want 1", snapshot.Len())
	}
}

func TestBuildSkipsUnreadableRoom(t *testing.T) {
	server := fakeHomeserver(t, map[string]string{
		"!lobby:example.org":  invitableState,
		"!broken:example.org": "",
	})
	defer server.Close()

	snapshot, err := Build(context.Background(), testSession(t, server), testLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if snapshot.Len() != 1 {
		t.Fatalf("directory has %d rooms, want 1", snapshot.Len())
	}
}

func TestRoomLabel(t *testing.T) {
	named := Room{ID: ref.MustParseRoomID("!r:example.org"), Name: "Lobby",
		CanonicalAlias: ref.MustParseRoomAlias("#lobby:example.org")}
	if got := named.Label(); got != "Lobby" {
		t.Errorf("Label = %q", got)
	}

	aliased := Room{ID: ref.MustParseRoomID("!r:example.org"),
		CanonicalAlias: ref.MustParseRoomAlias("#lobby:example.org")}
	if got := aliased.Label(); got != "#lobby:example.org" {
		t.Errorf("Label = %q", got)
	}

	bare := Room{ID: ref.MustParseRoomID("!r:example.org")}
	if got := bare.Label(); got != "!r:example.org" {
		t.Errorf("Label = %q", got)
	}
}

func namedState(name string) string {
	return `[
		{"type": "m.room.name", "state_key": "", "sender": "@admin:example.org",
		 "event_id": "$name", "origin_server_ts": 1,
		 "content": {"name": "` + name + `"}}
	]`
}

func TestRoomsSortedByLabel(t *testing.T) {
	server := fakeHomeserver(t, map[string]string{
		"!one:example.org":   namedState("zeta"),
		"!two:example.org":   namedState("alpha"),
		"!three:example.org": namedState("mid"),
	})
	defer server.Close()

	snapshot, err := Build(context.Background(), testSession(t, server), testLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rooms := snapshot.Rooms()
	if len(rooms) != 3 {
		t.Fatalf("rooms = %d, want 3", len(rooms))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if rooms[i].Name != want {
			t.Errorf("rooms[%d] = %q, want %q", i, rooms[i].Name, want)
		}
	}
}
