// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/doorman/lib/clock"
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

func TestHTTPServerServeAndShutdown(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.Write([]byte("ok"))
		}),
		Logger: testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()

	select {
	case <-server.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	response, err := http.Get("http://" + server.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never shut down")
	}
}

func TestInitialSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.URL.Query().Get("since"); got != "" {
			t.Errorf("initial sync sent since = %q", got)
		}
		if got := request.URL.Query().Get("filter"); got != `{"room":{}}` {
			t.Errorf("filter = %q", got)
		}
		writer.Write([]byte(`{"next_batch": "batch-0"}`))
	}))
	defer server.Close()

	token, response, err := InitialSync(context.Background(), testSession(t, server), `{"room":{}}`)
	if err != nil {
		t.Fatalf("InitialSync: %v", err)
	}
	if token != "batch-0" {
		t.Errorf("token = %q", token)
	}
	if response == nil {
		t.Fatal("response is nil")
	}
}

func TestSyncLoopDeliversResponses(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		n := polls.Add(1)
		fmt.Fprintf(writer, `{"next_batch": "batch-%d"}`, n)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled int
	handler := func(ctx context.Context, response *messaging.SyncResponse) {
		handled++
		if handled == 2 {
			if response.NextBatch != "batch-2" {
				t.Errorf("next batch = %q", response.NextBatch)
			}
			cancel()
		}
	}

	RunSyncLoop(ctx, testSession(t, server), SyncConfig{}, "batch-0", handler, clock.Real(), testLogger())

	if handled != 2 {
		t.Errorf("handler called %d times, want 2", handled)
	}
}

func TestSyncLoopRetriesAfterError(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if polls.Add(1) == 1 {
			writer.WriteHeader(http.StatusInternalServerError)
			writer.Write([]byte(`{"errcode": "M_UNKNOWN", "error": "boom"}`))
			return
		}
		writer.Write([]byte(`{"next_batch": "batch-1"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := clock.Fake()
	// The loop registers its backoff waiter asynchronously; keep
	// nudging the fake clock until the loop gets past it.
	advanceDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-advanceDone:
				return
			default:
				fake.Advance(2 * time.Second)
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer close(advanceDone)

	handler := func(ctx context.Context, response *messaging.SyncResponse) {
		cancel()
	}

	RunSyncLoop(ctx, testSession(t, server), SyncConfig{}, "", handler, fake, testLogger())

	if got := polls.Load(); got < 2 {
		t.Errorf("polls = %d, want at least 2 (one failure, one success)", got)
	}
}
