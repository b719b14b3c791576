// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// decodeCompressedUint reads an ECMA-335 compressed unsigned integer from
// the start of b (§4.4, §4.6). This is the corrected bit arithmetic for
// the 2-byte case — `((b0 & 0x3F) << 8) | b1` — not the shift the
// original source used.
func decodeCompressedUint(b []byte) (value uint32, width int, err error) {
	if len(b) == 0 {
		return 0, 0, &InvalidBlobError{Offset: 0}
	}
	b0 := b[0]
	switch {
	case b0&0x80 == 0:
		return uint32(b0 & 0x7F), 1, nil
	case b0&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, &InvalidBlobError{Offset: 0}
		}
		return (uint32(b0&0x3F) << 8) | uint32(b[1]), 2, nil
	case b0&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, &InvalidBlobError{Offset: 0}
		}
		return (uint32(b0&0x1F) << 24) | (uint32(b[1]) << 16) | (uint32(b[2]) << 8) | uint32(b[3]), 4, nil
	default:
		return 0, 0, &InvalidBlobError{Offset: 0}
	}
}

// StringHeap is a decoded offset-keyed table over either the `#Strings`
// heap (lenient: an offset never seen as a string start resolves to the
// empty string, §4.4) or the `#US` heap (strict: an unseen offset is an
// error, §4.13 — no such lenient-fallback requirement exists for user
// strings in spec.md).
type StringHeap struct {
	entries map[uint32]string
	lenient bool
	logger  *log.Helper
}

// newStringHeap scans the `#Strings` heap sequentially, recording each
// NUL-terminated UTF-8 string's starting offset. Offset 0 is always the
// empty string by convention.
func newStringHeap(raw []byte, logger *log.Helper) *StringHeap {
	h := &StringHeap{entries: make(map[uint32]string), lenient: true, logger: logger}
	if len(raw) == 0 {
		h.entries[0] = ""
		return h
	}
	pos := 0
	for pos < len(raw) {
		start := pos
		end := pos
		for end < len(raw) && raw[end] != 0 {
			end++
		}
		h.entries[uint32(start)] = string(raw[start:end])
		pos = end + 1
	}
	return h
}

// newUserStringHeap scans the `#US` heap sequentially. Each entry is a
// compressed-length-prefixed run of UTF-16LE code units followed by a
// single trailing flag byte (ECMA-335 §II.24.2.4); the flag byte is not
// interpreted here since no opcode in the implemented subset consumes it.
func newUserStringHeap(raw []byte, logger *log.Helper) *StringHeap {
	h := &StringHeap{entries: make(map[uint32]string), lenient: false, logger: logger}
	pos := 0
	for pos < len(raw) {
		start := pos
		length, width, err := decodeCompressedUint(raw[pos:])
		if err != nil {
			break
		}
		if length == 0 {
			// An empty entry (such as the 0x00 at the heap's offset 0) has
			// no flag byte.
			h.entries[uint32(start)] = ""
			pos += width
			continue
		}
		payloadStart := pos + width
		payloadEnd := payloadStart + int(length)
		if payloadEnd > len(raw) {
			break
		}
		utf16Bytes := raw[payloadStart:payloadEnd]
		if n := len(utf16Bytes); n > 0 {
			utf16Bytes = utf16Bytes[:n-n%2] // drop the trailing flag byte
		}
		s, err := decodeUTF16LE(utf16Bytes)
		if err == nil {
			h.entries[uint32(start)] = s
		}
		pos = payloadEnd
	}
	return h
}

// Lookup resolves a heap offset to its decoded string (§4.4).
func (h *StringHeap) Lookup(offset uint32) (string, error) {
	if s, ok := h.entries[offset]; ok {
		return s, nil
	}
	if h.lenient {
		if h.logger != nil {
			h.logger.Warnf("string heap offset %d not recognized as a string start, falling back to empty string", offset)
		}
		return "", nil
	}
	return "", &NotFoundError{Kind: "heap offset", Name: fmt.Sprintf("%d", offset)}
}

// BlobHeap is the `#Blob` heap: length-prefixed variable-width entries
// addressed by the offset of their length prefix (§4.4).
type BlobHeap struct {
	raw []byte
}

func newBlobHeap(raw []byte) *BlobHeap {
	return &BlobHeap{raw: raw}
}

// Blob returns the payload bytes of the blob starting at offset, not
// including the length prefix itself.
func (h *BlobHeap) Blob(offset uint32) ([]byte, error) {
	if int(offset) >= len(h.raw) {
		return nil, &InvalidBlobError{Offset: offset}
	}
	length, width, err := decodeCompressedUint(h.raw[offset:])
	if err != nil {
		return nil, &InvalidBlobError{Offset: offset}
	}
	start := int(offset) + width
	end := start + int(length)
	if end > len(h.raw) {
		return nil, &InvalidBlobError{Offset: offset}
	}
	return h.raw[start:end], nil
}
