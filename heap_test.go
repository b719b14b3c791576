// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
)

func TestDecodeCompressedUint(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		wantValue uint32
		wantWidth int
		wantErr   bool
	}{
		{"1-byte", []byte{0x03}, 0x03, 1, false},
		{"1-byte max", []byte{0x7F}, 0x7F, 1, false},
		{"2-byte", []byte{0x80, 0x80}, 0x80, 2, false},
		{"2-byte nonzero high", []byte{0xBF, 0xFF}, 0x3FFF, 2, false},
		{"4-byte", []byte{0xC0, 0x00, 0x40, 0x00}, 0x4000, 4, false},
		{"empty", []byte{}, 0, 0, true},
		{"truncated 2-byte", []byte{0x80}, 0, 0, true},
		{"truncated 4-byte", []byte{0xC0, 0x00}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, w, err := decodeCompressedUint(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeCompressedUint: %s", err)
			}
			if v != tt.wantValue || w != tt.wantWidth {
				t.Fatalf("got (%d, %d), want (%d, %d)", v, w, tt.wantValue, tt.wantWidth)
			}
		})
	}
}

func TestStringHeapLookupLenient(t *testing.T) {
	raw := append([]byte{0}, append([]byte("Foo\x00"), []byte("Bar\x00")...)...)
	h := newStringHeap(raw, nil)

	if s, err := h.Lookup(0); err != nil || s != "" {
		t.Fatalf("offset 0: got (%q, %v), want (\"\", nil)", s, err)
	}
	if s, err := h.Lookup(1); err != nil || s != "Foo" {
		t.Fatalf("offset 1: got (%q, %v), want (\"Foo\", nil)", s, err)
	}
	if s, err := h.Lookup(5); err != nil || s != "Bar" {
		t.Fatalf("offset 5: got (%q, %v), want (\"Bar\", nil)", s, err)
	}
	// Unseen offset resolves leniently to the empty string, not an error.
	if s, err := h.Lookup(999); err != nil || s != "" {
		t.Fatalf("unseen offset: got (%q, %v), want (\"\", nil)", s, err)
	}
}

func TestUserStringHeapLookupStrict(t *testing.T) {
	// One entry: length=2 (one UTF-16 code unit "A") + trailing flag byte.
	raw := []byte{0x03, 'A', 0x00, 0x00}
	h := newUserStringHeap(raw, nil)

	if s, err := h.Lookup(0); err != nil || s != "A" {
		t.Fatalf("offset 0: got (%q, %v), want (\"A\", nil)", s, err)
	}
	_, err := h.Lookup(999)
	if err == nil {
		t.Fatal("expected an error for an unseen #US offset")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("got %T, want *NotFoundError", err)
	}
}

func TestBlobHeapLookup(t *testing.T) {
	raw := []byte{0x03, 0xAA, 0xBB, 0xCC}
	h := newBlobHeap(raw)

	b, err := h.Blob(0)
	if err != nil {
		t.Fatalf("Blob: %s", err)
	}
	if len(b) != 3 || b[0] != 0xAA || b[1] != 0xBB || b[2] != 0xCC {
		t.Fatalf("got %v, want [0xAA 0xBB 0xCC]", b)
	}
}

func TestStringHeapLookupLogsLenientFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewHelper(log.NewStdLogger(&buf))

	h := newStringHeap([]byte("Foo\x00"), logger)
	if _, err := h.Lookup(999); err != nil {
		t.Fatalf("Lookup: %s", err)
	}
	if !strings.Contains(buf.String(), "999") {
		t.Fatalf("expected a log line mentioning the missing offset, got %q", buf.String())
	}
}

func TestBlobHeapOutOfRange(t *testing.T) {
	h := newBlobHeap([]byte{0x03, 0xAA, 0xBB, 0xCC})
	if _, err := h.Blob(100); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := h.Blob(0xFFFFFFFF); err == nil {
		t.Fatal("expected an error for a wildly out-of-range offset")
	}
}
