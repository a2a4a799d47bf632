// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/bureau-foundation/doorman/lib/secret"
)

func testSecret(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating secret buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// newTestClient creates a Client pointed at a TLS httptest server for
// both the token endpoint and the REST API.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: testSecret(t, "client-secret"),
		RedirectURL:  "https://gate.example.org/callback",
		APIBaseURL:   server.URL,
		Endpoint: &oauth2.Endpoint{
			AuthURL:  server.URL + "/login/oauth/authorize",
			TokenURL: server.URL + "/login/oauth/access_token",
		},
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	base := func() Config {
		return Config{
			ClientID:     "client-id",
			ClientSecret: testSecret(t, "s"),
			RedirectURL:  "https://gate.example.org/callback",
		}
	}

	t.Run("valid", func(t *testing.T) {
		if _, err := NewClient(base()); err != nil {
			t.Fatalf("NewClient: %v", err)
		}
	})

	t.Run("missing client ID", func(t *testing.T) {
		config := base()
		config.ClientID = ""
		if _, err := NewClient(config); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("plain HTTP API URL", func(t *testing.T) {
		config := base()
		config.APIBaseURL = "http://api.github.com"
		if _, err := NewClient(config); err == nil {
			t.Fatal("expected error for non-HTTPS API URL")
		}
	})
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	client, err := NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: testSecret(t, "s"),
		RedirectURL:  "https://gate.example.org/callback",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	url := client.AuthCodeURL("pending-token-123")
	if !strings.Contains(url, "state=pending-token-123") {
		t.Errorf("auth URL missing state: %s", url)
	}
	if !strings.Contains(url, "client_id=client-id") {
		t.Errorf("auth URL missing client id: %s", url)
	}
}

func TestExchangeAndUser(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/login/oauth/access_token":
			if err := request.ParseForm(); err != nil {
				t.Fatalf("parsing token form: %v", err)
			}
			if got := request.FormValue("code"); got != "code-abc" {
				t.Errorf("code = %q", got)
			}
			writer.Header().Set("Content-Type", "application/json")
			writer.Write([]byte(`{"access_token": "gho_token", "token_type": "bearer"}`))
		case "/user":
			if got := request.Header.Get("Authorization"); got != "Bearer gho_token" {
				t.Errorf("Authorization = %q", got)
			}
			json.NewEncoder(writer).Encode(User{
				Login:     "octocat",
				ID:        583231,
				CreatedAt: time.Date(2011, 1, 25, 18, 44, 36, 0, time.UTC),
			})
		default:
			t.Errorf("unexpected path %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)

	token, err := client.Exchange(context.Background(), "code-abc")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	user, err := client.User(context.Background(), token)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if user.Login != "octocat" {
		t.Errorf("login = %q", user.Login)
	}
	if user.CreatedAt.Year() != 2011 {
		t.Errorf("created at = %v", user.CreatedAt)
	}
}

func TestUserUnauthorized(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
		writer.Write([]byte(`{"message": "Bad credentials", "documentation_url": "https://docs.github.com"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.User(context.Background(), &oauth2.Token{AccessToken: "revoked"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnauthorized(err) {
		t.Errorf("expected 401 APIError, got %v", err)
	}
	if !strings.Contains(err.Error(), "Bad credentials") {
		t.Errorf("error missing message: %v", err)
	}
}
