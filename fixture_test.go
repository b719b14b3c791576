// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import "encoding/binary"

// This file builds synthesized in-memory managed-assembly images for the
// end-to-end scenarios of spec.md §8, entirely in code — no on-disk test
// fixtures. Every offset is derived from the actual cursor arithmetic in
// dosheader.go/ntheader.go/section.go/cli.go/tables.go, so a change to
// any of those file's byte layout will make these builders (and the
// tests built on them) fail loudly rather than silently drift.

func putU16(buf []byte, v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return append(buf, b...)
}

func putU32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return append(buf, b...)
}

// cstringPad4 renders a NUL-terminated string padded to a 4-byte
// boundary relative to its own start, mirroring ReadCStringPad4.
func cstringPad4(s string) []byte {
	b := append([]byte(s), 0)
	pad := (4 - len(b)%4) % 4
	for i := 0; i < pad; i++ {
		b = append(b, 0)
	}
	return b
}

// stringsBuilder accumulates a `#Strings`-heap-shaped buffer the same way
// newStringHeap decodes one: offset 0 is always the empty string, and
// every subsequent add() returns the offset newStringHeap would assign
// that string on a sequential NUL-terminated scan.
type stringsBuilder struct {
	buf []byte
	off map[string]uint32
}

func newStringsBuilder() *stringsBuilder {
	return &stringsBuilder{buf: []byte{0}, off: map[string]uint32{"": 0}}
}

func (b *stringsBuilder) add(s string) uint32 {
	if off, ok := b.off[s]; ok {
		return off
	}
	start := uint32(len(b.buf))
	b.buf = append(b.buf, []byte(s)...)
	b.buf = append(b.buf, 0)
	b.off[s] = start
	return start
}

// methodSpec describes one MethodDef row and the tiny-header method body
// to place for it.
type methodSpec struct {
	name string
	code []byte
}

// tinyBody wraps code in a tiny method-body header (§4.8): flag byte
// (code_size<<2)|0b10, no locals, no max_stack field.
func tinyBody(code []byte) []byte {
	header := byte(len(code)<<2) | 0b10
	return append([]byte{header}, code...)
}

// tablesStreamLen computes the exact byte length buildTablesStream will
// produce for n methods, independent of the RVA values themselves — used
// to locate method bodies before the stream carrying their RVAs exists.
func tablesStreamLen(n int) int {
	const header = 4 + 1 + 1 + 1 + 1 + 8 + 8 // reserved,major,minor,heapSizes,rid,valid,sorted
	const rowCounts = 4 * 3                  // Module, TypeDef, MethodDef
	const moduleRow = 2 * 5
	const typeDefRow = 4 + 2 + 2 + 2 + 2 + 2
	const methodDefRow = 4 + 2 + 2 + 2 + 2 + 2
	return header + rowCounts + moduleRow + typeDefRow + methodDefRow*n
}

// buildTablesStream renders the `#~` stream for one Module row, one
// TypeDef row (className, owning every method), and one MethodDef row per
// method with its already-known RVA (§4.5).
func buildTablesStream(sb *stringsBuilder, moduleNameOff, classNameOff uint32, methods []methodSpec, rvas []uint32) []byte {
	var b []byte
	b = append(b, 0, 0, 0, 0) // reserved
	b = append(b, 0, 0)       // major, minor
	b = append(b, 0)          // heapSizes: every heap column is 2 bytes
	b = append(b, 1)          // rid, must be 0x01

	valid := uint64(1<<TableModule | 1<<TableTypeDef | 1<<TableMethodDef)
	vb := make([]byte, 8)
	binary.LittleEndian.PutUint64(vb, valid)
	b = append(b, vb...)
	b = append(b, make([]byte, 8)...) // sorted, unused by the decoder

	b = putU32(b, 1)                   // Module row count
	b = putU32(b, 1)                   // TypeDef row count
	b = putU32(b, uint32(len(methods))) // MethodDef row count

	// Module row.
	b = putU16(b, 0)                  // Generation
	b = putU16(b, uint16(moduleNameOff))
	b = putU16(b, 0) // Mvid
	b = putU16(b, 0) // EncID
	b = putU16(b, 0) // EncBaseID

	// TypeDef row: one class owning every method (MethodList is 1-based).
	b = putU32(b, 0)                   // Flags
	b = putU16(b, uint16(classNameOff)) // TypeName
	b = putU16(b, 0)                    // TypeNamespace (empty)
	b = putU16(b, 0)                    // Extends (coded token, null)
	b = putU16(b, 1)                    // FieldList
	b = putU16(b, 1)                    // MethodList

	// MethodDef rows.
	for i, m := range methods {
		nameOff := sb.add(m.name)
		b = putU32(b, rvas[i]) // RVA
		b = putU16(b, 0)       // ImplFlags
		b = putU16(b, 0)       // Flags
		b = putU16(b, uint16(nameOff))
		b = putU16(b, 0) // Signature (blob offset 0: zero-length entry)
		b = putU16(b, 1) // ParamList
	}
	return b
}

// fixtureImage builds a minimal PE+CLI+metadata image containing exactly
// one module, one class (className), and the given methods, laid out so
// base_of_code equals FileAlignmentHardcodedValue — making every RVA
// equal to its file offset directly (§3).
func fixtureImage(className string, methods []methodSpec) []byte {
	var img []byte

	// DOS header: "MZ" + 62-byte tail + 64-byte stub (§4.2).
	img = append(img, 'M', 'Z')
	img = append(img, make([]byte, 62)...)
	img = append(img, make([]byte, 64)...)

	// NT header.
	img = append(img, 'P', 'E', 0, 0)
	img = putU16(img, 0x014c) // Machine
	img = putU16(img, 3)      // NumberOfSections
	img = putU32(img, 0)      // TimeDateStamp
	img = putU32(img, 0)      // PointerToSymbolTable
	img = putU32(img, 0)      // NumberOfSymbols
	img = putU16(img, 0xE0)   // SizeOfOptionalHeader
	img = putU16(img, 0x0102) // Characteristics
	img = putU16(img, ImageNtOptionalHeader32Magic)
	img = append(img, make([]byte, 2+4+4+4+4)...)  // linker versions + sizes + entry point
	img = putU32(img, FileAlignmentHardcodedValue) // BaseOfCode
	img = putU32(img, 0)                           // BaseOfData
	img = append(img, make([]byte, 68)...)         // ImageBase..NumberOfRvaAndSizes
	for i := 0; i < 16; i++ {
		img = putU32(img, 0)
		img = putU32(img, 0)
	}
	img = append(img, make([]byte, 8)...) // trailing skip

	// Three section headers (§4.2); contents are never inspected.
	for i := 0; i < 3; i++ {
		name := make([]byte, 8)
		copy(name, []byte{'.', 's', 'e', 'c'})
		img = append(img, name...)
		for j := 0; j < 6; j++ {
			img = putU32(img, 0)
		}
		img = putU16(img, 0)
		img = putU16(img, 0)
		img = putU32(img, 0)
	}

	// CLI header: 16-byte skip, then the tag and ImageCOR20Header body.
	img = append(img, make([]byte, 16)...)
	img = append(img, cliHeaderTag...)
	img = putU16(img, 2) // MajorRuntimeVersion
	img = putU16(img, 5) // MinorRuntimeVersion
	img = putU32(img, 0) // MetaData.VirtualAddress (unused by the decoder)
	img = putU32(img, 0) // MetaData.Size
	img = putU32(img, 0) // Flags
	img = putU32(img, 0) // EntryPointToken
	for i := 0; i < 6; i++ {
		img = putU32(img, 0)
		img = putU32(img, 0)
	}

	// Metadata root.
	metaPos := len(img)
	img = append(img, bsjbMagic...)
	img = append(img, make([]byte, 4)...) // reserved
	img = putU16(img, 0)                  // VersionMinor
	img = putU16(img, 0)                  // VersionMajor
	img = append(img, make([]byte, 4)...) // reserved
	version := []byte("v1.0")
	img = putU32(img, uint32(len(version)))
	img = append(img, version...)
	img = append(img, make([]byte, 2)...) // flags/reserved
	img = putU16(img, 3)                  // stream count: #~, #Strings, #Blob

	sb := newStringsBuilder()
	moduleNameOff := sb.add(className + ".dll")
	classNameOff := sb.add(className)
	blobHeap := []byte{0x00} // single zero-length entry at offset 0

	// Stream headers: offset/size are relative to the metadata root start,
	// name is NUL-terminated and padded to a 4-byte boundary (§4.3).
	streamNames := []string{"#~", "#Strings", "#Blob"}
	headerSize := 0
	for _, name := range streamNames {
		headerSize += 4 + 4 + len(cstringPad4(name))
	}

	tablesLen := tablesStreamLen(len(methods))
	tablesStart := len(img) + headerSize

	// Method bodies are placed after every stream's data. Build the
	// tables stream once with placeholder RVAs (which interns method
	// names into sb.buf), so the #Strings stream's final length is known
	// and the methods' starting offset can be computed.
	rvas := make([]uint32, len(methods))
	bodyOffset := 0
	tables := buildTablesStream(sb, moduleNameOff, classNameOff, methods, placeholderRVAs(len(methods)))
	if len(tables) != tablesLen {
		panic("tablesStreamLen out of sync with buildTablesStream")
	}
	methodsStart := tablesStart + tablesLen + len(sb.buf) + len(blobHeap)
	for i, m := range methods {
		rvas[i] = uint32(methodsStart + bodyOffset)
		bodyOffset += len(tinyBody(m.code))
	}

	// Rebuild the tables stream now that RVAs are known. Reuse the
	// already-interned string offsets; buildTablesStream's sb.add is
	// idempotent for repeated names.
	tables = buildTablesStream(sb, moduleNameOff, classNameOff, methods, rvas)

	streams := [][]byte{tables, sb.buf, blobHeap}
	// sh.Offset is relative to the metadata root's start (the BSJB magic),
	// per ECMA-335 §II.24.2.2 — not relative to the end of the stream
	// header table, so it must include the fixed metadata-root prefix
	// (metaRootFixedLen) that precedes the stream headers themselves.
	metaRootFixedLen := len(img) - metaPos
	pos := uint32(metaRootFixedLen + headerSize)
	var headerBytes []byte
	for i, name := range streamNames {
		headerBytes = putU32(headerBytes, pos)
		headerBytes = putU32(headerBytes, uint32(len(streams[i])))
		headerBytes = append(headerBytes, cstringPad4(name)...)
		pos += uint32(len(streams[i]))
	}
	img = append(img, headerBytes...)
	for _, s := range streams {
		img = append(img, s...)
	}

	for _, m := range methods {
		img = append(img, tinyBody(m.code)...)
	}

	return img
}

func placeholderRVAs(n int) []uint32 {
	return make([]uint32, n)
}
