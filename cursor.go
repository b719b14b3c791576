// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
)

// ByteCursor is a positioned random-access reader over an immutable byte
// buffer. It does not own the buffer: one cursor exists per in-progress
// decode and is cheap to create, copy, or fork at a saved position.
type ByteCursor struct {
	buf []byte
	off int
}

// NewByteCursor wraps buf starting at position 0.
func NewByteCursor(buf []byte) *ByteCursor {
	return &ByteCursor{buf: buf}
}

// Pos returns the current absolute position.
func (c *ByteCursor) Pos() int {
	return c.off
}

// Len returns the size of the underlying buffer.
func (c *ByteCursor) Len() int {
	return len(c.buf)
}

// Seek moves the cursor to an absolute position. It does not itself fail on
// an out-of-range position; the next read will surface *ReadOverflowError.
func (c *ByteCursor) Seek(pos uint32) {
	c.off = int(pos)
}

// Advance moves the cursor forward by n bytes.
func (c *ByteCursor) Advance(n uint32) {
	c.off += int(n)
}

func (c *ByteCursor) require(n int) error {
	if c.off < 0 || n < 0 || c.off+n > len(c.buf) {
		return &ReadOverflowError{Pos: c.off, Want: n, Size: len(c.buf)}
	}
	return nil
}

// U8 reads one unsigned byte and advances.
func (c *ByteCursor) U8() (uint8, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

// I8 reads one signed byte and advances.
func (c *ByteCursor) I8() (int8, error) {
	v, err := c.U8()
	return int8(v), err
}

// U16 reads a little-endian uint16 and advances.
func (c *ByteCursor) U16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

// U32 reads a little-endian uint32 and advances.
func (c *ByteCursor) U32() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

// U64 reads a little-endian uint64 and advances.
func (c *ByteCursor) U64() (uint64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

// I32 reads a little-endian int32 and advances.
func (c *ByteCursor) I32() (int32, error) {
	v, err := c.U32()
	return int32(v), err
}

// Uint reads either a 2-byte or 4-byte little-endian unsigned integer,
// widened to uint32. byteWidth must be 2 or 4 — the width a caller derives
// from heap-size flags or coded-token column-width computation (§4.5).
func (c *ByteCursor) Uint(byteWidth int) (uint32, error) {
	switch byteWidth {
	case 2:
		v, err := c.U16()
		return uint32(v), err
	case 4:
		return c.U32()
	default:
		return 0, &InvalidFormatError{Where: "Uint: unsupported byte width", Pos: c.off}
	}
}

// Tag reports whether the next len(expected) bytes equal expected,
// advancing the cursor only on a match.
func (c *ByteCursor) Tag(expected []byte) (bool, error) {
	if err := c.require(len(expected)); err != nil {
		return false, err
	}
	if !bytes.Equal(c.buf[c.off:c.off+len(expected)], expected) {
		return false, nil
	}
	c.off += len(expected)
	return true, nil
}

// ScanTo advances the cursor until expected matches at the current
// position, leaving the position at the start of the match. It fails if
// expected never occurs before the end of the buffer.
func (c *ByteCursor) ScanTo(expected []byte) error {
	idx := bytes.Index(c.buf[c.off:], expected)
	if idx < 0 {
		return &InvalidFormatError{Where: "ScanTo: pattern not found", Pos: c.off}
	}
	c.off += idx
	return nil
}

// ReadUTF8 reads exactly n bytes and decodes them as UTF-8.
func (c *ByteCursor) ReadUTF8(n uint32) (string, error) {
	if err := c.require(int(n)); err != nil {
		return "", err
	}
	b := c.buf[c.off : c.off+int(n)]
	if !utf8.Valid(b) {
		return "", &InvalidFormatError{Where: "ReadUTF8: invalid UTF-8", Pos: c.off}
	}
	c.off += int(n)
	return string(b), nil
}

// ReadCString reads bytes up to (and consuming) a NUL terminator, without
// padding.
func (c *ByteCursor) ReadCString() (string, error) {
	start := c.off
	for {
		b, err := c.U8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(c.buf[start : c.off-1]), nil
		}
	}
}

// ReadCStringPad4 reads a NUL-terminated string the way ReadCString does,
// then advances the cursor to the next 4-byte boundary relative to where
// the string started.
func (c *ByteCursor) ReadCStringPad4() (string, error) {
	start := c.off
	s, err := c.ReadCString()
	if err != nil {
		return "", err
	}
	consumed := c.off - start
	pad := (4 - consumed%4) % 4
	if err := c.require(pad); err != nil {
		return "", err
	}
	c.off += pad
	return s, nil
}

// Bytes returns a direct slice of n raw bytes without copying, advancing
// the cursor.
func (c *ByteCursor) Bytes(n uint32) ([]byte, error) {
	if err := c.require(int(n)); err != nil {
		return nil, err
	}
	b := c.buf[c.off : c.off+int(n)]
	c.off += int(n)
	return b, nil
}
