// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/bureau-foundation/doorman/lib/netutil"
	"github.com/bureau-foundation/doorman/lib/secret"
)

// githubAPIVersion is the GitHub REST API version header. Pinning the
// version ensures consistent behavior as GitHub evolves the API.
const githubAPIVersion = "2022-11-28"

// defaultAPIBaseURL is the base URL for the public GitHub API.
const defaultAPIBaseURL = "https://api.github.com"

// Config holds configuration for creating an identity Client.
type Config struct {
	// ClientID is the OAuth app client ID. Required.
	ClientID string

	// ClientSecret is the OAuth app client secret. The Client copies
	// the value out at construction; the caller retains ownership of
	// the buffer. Required.
	ClientSecret *secret.Buffer

	// RedirectURL is the callback URL registered with the OAuth app.
	// Required.
	RedirectURL string

	// APIBaseURL is the root URL for REST API requests. Defaults to
	// "https://api.github.com". Must use HTTPS.
	APIBaseURL string

	// Endpoint overrides the OAuth authorization and token URLs.
	// Defaults to the public GitHub endpoints. Tests point this at an
	// httptest server.
	Endpoint *oauth2.Endpoint

	// HTTPClient is used for all HTTP requests, including the token
	// exchange. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client performs the OAuth authorization-code flow and fetches the
// authenticated user's profile.
type Client struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// User is the subset of the GitHub /user response the heuristic needs.
type User struct {
	// Login is the account's username.
	Login string `json:"login"`

	// ID is the account's immutable numeric ID.
	ID int64 `json:"id"`

	// CreatedAt is when the account was registered. The heuristic
	// compares this against the minimum-age threshold.
	CreatedAt time.Time `json:"created_at"`
}

// NewClient creates an identity client from the given configuration.
func NewClient(config Config) (*Client, error) {
	if config.ClientID == "" {
		return nil, fmt.Errorf("github: ClientID is required")
	}
	if config.ClientSecret == nil {
		return nil, fmt.Errorf("github: ClientSecret is required")
	}
	if config.RedirectURL == "" {
		return nil, fmt.Errorf("github: RedirectURL is required")
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	apiBaseURL = strings.TrimRight(apiBaseURL, "/")
	if !strings.HasPrefix(apiBaseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", apiBaseURL)
	}

	endpoint := githuboauth.Endpoint
	if config.Endpoint != nil {
		endpoint = *config.Endpoint
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret.String(),
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			// No scopes: the default grant already exposes the
			// public profile, which includes created_at.
		},
		apiBaseURL: apiBaseURL,
		httpClient: httpClient,
	}, nil
}

// AuthCodeURL returns the GitHub authorization page URL the browser is
// redirected to. The state parameter round-trips through GitHub and
// comes back on the callback; the gate uses it as the pending-invite
// token.
func (client *Client) AuthCodeURL(state string) string {
	return client.oauth.AuthCodeURL(state)
}

// Exchange redeems an authorization code for an access token.
func (client *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
	token, err := client.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github: exchanging authorization code: %w", err)
	}
	return token, nil
}

// User fetches the authenticated user's profile with the given token.
func (client *Client) User(ctx context.Context, token *oauth2.Token) (*User, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	token.SetAuthHeader(request)
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", githubAPIVersion)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: fetching user: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, parseAPIError(response)
	}

	var user User
	if err := netutil.DecodeResponse(response.Body, &user); err != nil {
		return nil, fmt.Errorf("github: decoding user: %w", err)
	}
	return &user, nil
}
