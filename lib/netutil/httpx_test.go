// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("ReadResponse = %q", data)
	}
}

func TestDecodeResponse(t *testing.T) {
	var decoded struct {
		Success bool `json:"success"`
	}
	if err := DecodeResponse(strings.NewReader(`{"success":true}`), &decoded); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !decoded.Success {
		t.Error("expected success=true")
	}

	if err := DecodeResponse(strings.NewReader("not json"), &decoded); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(strings.NewReader("boom")); got != "boom" {
		t.Errorf("ErrorBody = %q", got)
	}
}
