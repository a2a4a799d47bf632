// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the doorman
// binaries.
//
// Configuration is loaded from a single file specified by either the
// DOORMAN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The file is YAML. Files ending in .json or .jsonc are parsed as
// JSON with comments and trailing commas permitted.
//
// Validation is eager and split by binary: [Config.Validate] checks
// the shared Matrix section, [Config.ValidateGate] and
// [Config.ValidateBot] check the sections each binary needs. A config
// error is fatal at startup; nothing later reads the environment.
//
// This package depends only on lib/ref.
package config
