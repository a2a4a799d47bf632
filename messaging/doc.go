// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is doorman's hand-written Matrix client-server API
// wrapper. It covers exactly the operations the gatekeeper needs:
// authentication, room membership reads, privileged invites, message
// and state-event sends (power-level overrides), single event fetch,
// profile lookup, and the /sync long poll the join-challenge engine
// runs on.
//
// Client is the unauthenticated half (homeserver URL + HTTP transport);
// Session adds an access token held in a secret.Buffer. Homeserver
// error responses are surfaced as *MatrixError with the errcode and
// HTTP status preserved — callers translate them, never swallow them.
//
// Request URLs are built by string concatenation with url.PathEscape
// rather than url.URL composition. This avoids double-encoding issues
// with Go's url.URL.String(), which re-encodes Path even when RawPath
// is set if it doesn't consider RawPath a valid encoding of Path.
package messaging
