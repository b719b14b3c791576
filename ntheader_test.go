// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import "testing"

func buildOptionalHeaderTail() []byte {
	var b []byte
	b = putU16(b, ImageNtOptionalHeader32Magic)
	b = append(b, make([]byte, 2+4+4+4+4)...)
	b = putU32(b, FileAlignmentHardcodedValue) // BaseOfCode
	b = putU32(b, 0x2000)                      // BaseOfData
	b = append(b, make([]byte, 68)...)
	for i := 0; i < 16; i++ {
		b = putU32(b, 0)
		b = putU32(b, 0)
	}
	b = append(b, make([]byte, 8)...)
	return b
}

func TestParseNTHeaderValid(t *testing.T) {
	var buf []byte
	buf = append(buf, 'P', 'E', 0, 0)
	buf = putU16(buf, 0x014c)
	buf = putU16(buf, 3)
	buf = putU32(buf, 0)
	buf = putU32(buf, 0)
	buf = putU32(buf, 0)
	buf = putU16(buf, 0xE0)
	buf = putU16(buf, 0x0102)
	buf = append(buf, buildOptionalHeaderTail()...)

	img := &DllImage{}
	c := NewByteCursor(buf)
	if err := img.ParseNTHeader(c); err != nil {
		t.Fatalf("ParseNTHeader: %s", err)
	}
	if img.PE.BaseOfCode != FileAlignmentHardcodedValue {
		t.Fatalf("got BaseOfCode 0x%X, want 0x%X", img.PE.BaseOfCode, FileAlignmentHardcodedValue)
	}
	if !img.FileInfo.HasNTHdr {
		t.Fatal("HasNTHdr not set")
	}
	if img.rvaToFileOffset(FileAlignmentHardcodedValue+0x40) != 0x40 {
		t.Fatalf("rvaToFileOffset mistranslated: got %d", img.rvaToFileOffset(FileAlignmentHardcodedValue+0x40))
	}
}

func TestParseNTHeaderBadSignature(t *testing.T) {
	buf := append([]byte{'X', 'X', 0, 0}, make([]byte, 64)...)
	img := &DllImage{}
	c := NewByteCursor(buf)
	err := img.ParseNTHeader(c)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*InvalidFormatError); !ok {
		t.Fatalf("got %T, want *InvalidFormatError", err)
	}
}
