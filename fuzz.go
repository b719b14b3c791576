// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// +build gofuzz

package clrvm

// Fuzz exercises the full loader pipeline — PE envelope, CLI header,
// metadata root, and tables (§4.2-§4.5) — adapted from the teacher's
// single-layer Fuzz function (fuzz.go) into one of three layered
// entrypoints (§4.13 domain stack: go-fuzz).
func Fuzz(data []byte) int {
	img, err := Load(data, &Options{Fast: true})
	if err != nil {
		return 0
	}
	defer img.Close()
	return 1
}

// FuzzTables exercises only the tables-stream decoder directly on a
// raw `#~`/`#-` buffer, skipping the PE/CLI envelope entirely so the
// fuzzer can explore the column-width and coded-token logic (§4.5)
// without first needing to synthesize a well-formed PE image.
func FuzzTables(data []byte) int {
	strings := newStringHeap(nil, nil)
	blob := newBlobHeap(nil)
	if _, err := parseTablesStream(data, strings, blob, nil); err != nil {
		return 0
	}
	return 1
}

// FuzzSignature exercises the signature decoder directly on a raw blob
// payload (§4.6).
func FuzzSignature(data []byte) int {
	if _, err := decodeMethodDefSig(data); err != nil {
		return 0
	}
	return 1
}
