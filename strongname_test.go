// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import "testing"

func TestStrongNameAbsent(t *testing.T) {
	img := &DllImage{data: make([]byte, 16)}
	info, err := img.StrongName()
	if err != nil {
		t.Fatalf("StrongName: %s", err)
	}
	if info.Present {
		t.Fatal("want Present=false when StrongNameSignature.Size is 0")
	}
}

func TestStrongNamePresentNonPKCS7(t *testing.T) {
	// A strong-name directory that isn't a PKCS#7 structure (e.g. a raw
	// hash for a delay-signed assembly) is reported present but unparsed,
	// not an error.
	img := &DllImage{
		data: append(make([]byte, 0x40), []byte{0xDE, 0xAD, 0xBE, 0xEF}...),
	}
	img.PE.BaseOfCode = FileAlignmentHardcodedValue
	img.CLI.CLRHeader.StrongNameSignature = ImageDataDirectory{
		VirtualAddress: FileAlignmentHardcodedValue,
		Size:           4,
	}
	info, err := img.StrongName()
	if err != nil {
		t.Fatalf("StrongName: %s", err)
	}
	if !info.Present {
		t.Fatal("want Present=true")
	}
	if info.Valid {
		t.Fatal("want Valid=false for a non-PKCS7 blob")
	}
}

func TestStrongNameOutOfRange(t *testing.T) {
	img := &DllImage{data: make([]byte, 16)}
	img.PE.BaseOfCode = FileAlignmentHardcodedValue
	img.CLI.CLRHeader.StrongNameSignature = ImageDataDirectory{
		VirtualAddress: FileAlignmentHardcodedValue,
		Size:           1000,
	}
	_, err := img.StrongName()
	if err == nil {
		t.Fatal("expected an error for an out-of-range directory")
	}
	if _, ok := err.(*ReadOverflowError); !ok {
		t.Fatalf("got %T, want *ReadOverflowError", err)
	}
}
