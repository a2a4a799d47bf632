// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureau-foundation/doorman/lib/ref"
)

func TestInviteUser(t *testing.T) {
	var gotBody InviteRequest
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		wantPath := "/_matrix/client/v3/rooms/" + "%21room:example.org" + "/invite"
		if request.URL.EscapedPath() != wantPath {
			t.Errorf("path = %s, want %s", request.URL.EscapedPath(), wantPath)
		}
		if err := json.NewDecoder(request.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decoding invite body: %v", err)
		}
		writer.Write([]byte("{}"))
	}))
	defer server.Close()

	session := testSession(t, server, "@doorman:example.org")
	err := session.InviteUser(context.Background(),
		ref.MustParseRoomID("!room:example.org"),
		ref.MustParseUserID("@alice:example.org"))
	if err != nil {
		t.Fatalf("InviteUser: %v", err)
	}
	if gotBody.UserID.String() != "@alice:example.org" {
		t.Errorf("invited user = %q", gotBody.UserID)
	}
}

func TestSendMessageThreadReply(t *testing.T) {
	var gotContent MessageContent
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		if !strings.Contains(request.URL.Path, "/send/m.room.message/") {
			t.Errorf("unexpected path %s", request.URL.Path)
		}
		if err := json.NewDecoder(request.Body).Decode(&gotContent); err != nil {
			t.Fatalf("decoding message content: %v", err)
		}
		json.NewEncoder(writer).Encode(SendEventResponse{EventID: ref.MustParseEventID("$sent")})
	}))
	defer server.Close()

	session := testSession(t, server, "@doorman:example.org")
	eventID, err := session.SendMessage(context.Background(),
		ref.MustParseRoomID("!room:example.org"),
		NewThreadReply(ref.MustParseEventID("$join"), "challenge text"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if eventID.String() != "$sent" {
		t.Errorf("event ID = %q", eventID)
	}
	if gotContent.RelatesTo == nil || gotContent.RelatesTo.RelType != "m.thread" {
		t.Fatalf("expected thread relation, got %+v", gotContent.RelatesTo)
	}
	if gotContent.RelatesTo.EventID.String() != "$join" {
		t.Errorf("thread root = %q", gotContent.RelatesTo.EventID)
	}
}

func TestTransactionIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		segments := strings.Split(request.URL.Path, "/")
		transactionID := segments[len(segments)-1]
		if seen[transactionID] {
			t.Errorf("transaction ID %q reused", transactionID)
		}
		seen[transactionID] = true
		json.NewEncoder(writer).Encode(SendEventResponse{EventID: ref.MustParseEventID("$x")})
	}))
	defer server.Close()

	session := testSession(t, server, "@doorman:example.org")
	for range 3 {
		if _, err := session.SendMessage(context.Background(),
			ref.MustParseRoomID("!room:example.org"), NewTextMessage("hi")); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
}

func TestPowerLevelWritePreservesContent(t *testing.T) {
	// Power-level content is room-owned: it carries keys this client
	// does not model ("historical" from Element-created rooms, custom
	// namespaced keys). A read-modify-write must pass them through.
	var written map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.Method {
		case http.MethodGet:
			writer.Write([]byte(`{
				"users": {"@doorman:example.org": 100},
				"users_default": 0,
				"events_default": 25,
				"state_default": 50,
				"notifications": {"room": 50},
				"historical": 100,
				"com.example.custom": {"nested": true}
			}`))
		case http.MethodPut:
			if err := json.NewDecoder(request.Body).Decode(&written); err != nil {
				t.Fatalf("decoding written power levels: %v", err)
			}
			json.NewEncoder(writer).Encode(SendEventResponse{EventID: ref.MustParseEventID("$pl")})
		}
	}))
	defer server.Close()

	session := testSession(t, server, "@doorman:example.org")
	roomID := ref.MustParseRoomID("!room:example.org")

	levels, err := session.PowerLevels(context.Background(), roomID)
	if err != nil {
		t.Fatalf("PowerLevels: %v", err)
	}
	levels.SetUserLevel(ref.MustParseUserID("@alice:example.org"), 25)
	if _, err := session.SendStateEvent(context.Background(), roomID, EventTypePowerLevels, "", levels); err != nil {
		t.Fatalf("SendStateEvent: %v", err)
	}

	var users map[string]int
	if err := json.Unmarshal(written["users"], &users); err != nil {
		t.Fatalf("decoding written users: %v", err)
	}
	if users["@alice:example.org"] != 25 {
		t.Errorf("alice level = %d, want 25", users["@alice:example.org"])
	}
	// Existing entries and untouched fields must survive the round trip.
	if users["@doorman:example.org"] != 100 {
		t.Errorf("doorman level = %d, want 100", users["@doorman:example.org"])
	}
	if got := string(written["events_default"]); got != "25" {
		t.Errorf("events_default = %s, want 25", got)
	}
	// Keys the typed view does not model must pass through unchanged.
	if got := string(written["historical"]); got != "100" {
		t.Errorf("historical = %s, want 100", got)
	}
	var custom struct {
		Nested bool `json:"nested"`
	}
	if err := json.Unmarshal(written["com.example.custom"], &custom); err != nil {
		t.Fatalf("com.example.custom missing or malformed: %v", err)
	}
	if !custom.Nested {
		t.Errorf("com.example.custom = %s", written["com.example.custom"])
	}
}

func TestPowerLevelDefaults(t *testing.T) {
	var empty PowerLevels
	if got := empty.UserLevel(ref.MustParseUserID("@x:example.org")); got != 0 {
		t.Errorf("UserLevel = %d, want 0", got)
	}
	if got := empty.EventLevel(EventTypePowerLevels, true); got != 50 {
		t.Errorf("state EventLevel = %d, want 50", got)
	}
	if got := empty.EventLevel(EventTypeReaction, false); got != 0 {
		t.Errorf("timeline EventLevel = %d, want 0", got)
	}
	if got := empty.InviteLevel(); got != 0 {
		t.Errorf("InviteLevel = %d, want 0", got)
	}

	levels := PowerLevels{
		Events:       map[string]int{"m.reaction": 10},
		EventsDefault: intPointer(25),
	}
	if got := levels.EventLevel(EventTypeReaction, false); got != 10 {
		t.Errorf("explicit EventLevel = %d, want 10", got)
	}
	if got := levels.EventsDefaultLevel(); got != 25 {
		t.Errorf("EventsDefaultLevel = %d, want 25", got)
	}
}

func intPointer(v int) *int { return &v }

func TestSyncParsesTimeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/sync" {
			t.Errorf("path = %s", request.URL.Path)
		}
		if got := request.URL.Query().Get("since"); got != "batch-1" {
			t.Errorf("since = %q", got)
		}
		writer.Write([]byte(`{
			"next_batch": "batch-2",
			"rooms": {"join": {"!room:example.org": {"timeline": {"events": [
				{"event_id": "$join", "type": "m.room.member", "sender": "@alice:example.org",
				 "state_key": "@alice:example.org", "origin_server_ts": 1700000000000,
				 "content": {"membership": "join"}}
			]}}}}
		}`))
	}))
	defer server.Close()

	session := testSession(t, server, "@doorman:example.org")
	response, err := session.Sync(context.Background(), SyncOptions{Since: "batch-1"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if response.NextBatch != "batch-2" {
		t.Errorf("next batch = %q", response.NextBatch)
	}

	joined, ok := response.Rooms.Join[ref.MustParseRoomID("!room:example.org")]
	if !ok {
		t.Fatal("joined room missing from sync response")
	}
	if len(joined.Timeline.Events) != 1 {
		t.Fatalf("timeline has %d events", len(joined.Timeline.Events))
	}

	event := joined.Timeline.Events[0]
	var member MemberContent
	if err := DecodeContent(event, &member); err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	if member.Membership != MembershipJoin {
		t.Errorf("membership = %q", member.Membership)
	}
}

func TestDecodeReactionContent(t *testing.T) {
	event := Event{
		Type:   EventTypeReaction,
		Sender: ref.MustParseUserID("@alice:example.org"),
		Content: map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": "m.annotation",
				"event_id": "$challenge",
				"key":      "🍀",
			},
		},
	}

	var reaction ReactionContent
	if err := DecodeContent(event, &reaction); err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	if reaction.RelatesTo.RelType != RelTypeAnnotation {
		t.Errorf("rel_type = %q", reaction.RelatesTo.RelType)
	}
	if reaction.RelatesTo.EventID.String() != "$challenge" {
		t.Errorf("event_id = %q", reaction.RelatesTo.EventID)
	}
	if reaction.RelatesTo.Key != "🍀" {
		t.Errorf("key = %q", reaction.RelatesTo.Key)
	}
}
