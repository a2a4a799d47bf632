// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package github is a minimal GitHub client for the identity-age
// heuristic: OAuth authorization-code exchange plus an authenticated
// /user fetch for the account creation time. It is not a general API
// client — the invite gate only ever needs to know how old a linked
// account is.
package github
