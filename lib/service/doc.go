// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the shared runtime plumbing for doorman's
// two long-running processes: an HTTP server with managed lifecycle
// (used by the invite gate) and the Matrix /sync long-poll loop (used
// by the join-challenge engine). Both follow the same shape: a
// constructor taking a config struct, then a blocking run function
// that exits cleanly on context cancellation.
package service
