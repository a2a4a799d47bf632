// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// ReadFromPath loads one of doorman's secrets from a file: the Matrix
// access token, the Turnstile siteverify key, or the OAuth client
// secret. A path of "-" reads a single line from stdin instead, for
// piping a token in without touching disk.
//
// Surrounding whitespace is trimmed (token files routinely end in a
// newline) and an empty result is an error: a blank secret file is a
// deployment mistake, not a value. The returned buffer is mmap-backed,
// locked into RAM and excluded from core dumps; the caller must close
// it.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading secret from stdin: %w", err)
			}
			return nil, fmt.Errorf("no secret on stdin")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading secret: %w", err)
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret at %s is empty", path)
	}

	// NewFromBytes copies into locked memory and zeros its input; the
	// trimmed-off whitespace still sits in data and is zeroed here.
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
