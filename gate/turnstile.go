// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/doorman/lib/netutil"
	"github.com/bureau-foundation/doorman/lib/secret"
)

// siteverifyURL is Cloudflare's Turnstile verification endpoint.
const siteverifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// TurnstileVerifier redeems Turnstile response tokens against the
// siteverify endpoint. Tokens are single-use on Cloudflare's side; a
// failed submission requires a fresh widget solve, never a retry of
// the same token.
type TurnstileVerifier struct {
	endpoint   string
	secretKey  string
	httpClient *http.Client
}

// TurnstileVerifierConfig configures a TurnstileVerifier.
type TurnstileVerifierConfig struct {
	// SecretKey is the Turnstile secret key. The verifier copies the
	// value out at construction; the caller retains ownership of the
	// buffer. Required.
	SecretKey *secret.Buffer

	// Endpoint overrides the siteverify URL. Tests point this at an
	// httptest server.
	Endpoint string

	// HTTPClient is used for verification requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// NewTurnstileVerifier creates a verifier.
func NewTurnstileVerifier(config TurnstileVerifierConfig) (*TurnstileVerifier, error) {
	if config.SecretKey == nil {
		return nil, fmt.Errorf("gate: turnstile SecretKey is required")
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = siteverifyURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &TurnstileVerifier{
		endpoint:   endpoint,
		secretKey:  config.SecretKey.String(),
		httpClient: httpClient,
	}, nil
}

// siteverifyResponse is the JSON body returned by siteverify.
type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify redeems a response token. Returns (false, nil) when
// Cloudflare rejects the token — an expected outcome, not an error —
// and a non-nil error only for transport or protocol failures.
func (v *TurnstileVerifier) Verify(ctx context.Context, responseToken, remoteIP string) (bool, error) {
	form := url.Values{
		"secret":   {v.secretKey},
		"response": {responseToken},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("gate: creating siteverify request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := v.httpClient.Do(request)
	if err != nil {
		return false, fmt.Errorf("gate: siteverify request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return false, fmt.Errorf("gate: siteverify returned HTTP %d: %s",
			response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var result siteverifyResponse
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return false, fmt.Errorf("gate: decoding siteverify response: %w", err)
	}
	return result.Success, nil
}
