// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable references for Matrix
// identifiers: user IDs, room IDs, room aliases, event IDs, and event
// types.
//
// Doorman talks to federated homeservers, so identifiers arrive from
// untrusted sources: HTML forms, OAuth callbacks, /sync responses.
// Every identifier is parsed into a validated value type at the
// boundary and passed through as a typed value — raw strings never
// travel past the parse site. The validation is structural (sigil,
// localpart, server name), not server-specific: any spec-valid
// federated identifier is accepted.
//
// All ref types are immutable value types. The zero value is not
// valid; use IsZero to check. JSON marshaling uses the canonical
// Matrix string form via encoding.TextMarshaler.
package ref
