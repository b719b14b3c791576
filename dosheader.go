// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// ImageDOSHeader represents the minimal prefix of the DOS stub this
// decoder cares about: the `MZ` signature, followed by 62 bytes this
// decoder does not interpret (relocations, paragraph counts, the overlay
// number — all irrelevant to locating the CLI header), followed by a
// 64-byte DOS stub program that is skipped wholesale (§4.2). Unlike a
// general-purpose PE parser, this decoder does not follow `e_lfanew`; it
// assumes the fixed header+stub layout every CLI image compiler
// (csc, mono, Roslyn) emits.
type ImageDOSHeader struct {
	Magic uint16 `json:"magic"`
}

const (
	dosHeaderTailBytes = 62
	dosStubBytes       = 64
)

// ParseDOSHeader reads the DOS `MZ` signature and skips past the fixed-size
// header tail and DOS stub, leaving the cursor positioned at the PE
// signature.
func (img *DllImage) ParseDOSHeader(c *ByteCursor) error {
	magic, err := c.U16()
	if err != nil {
		return err
	}
	if magic != ImageDOSSignature && magic != ImageDOSZMSignature {
		return &InvalidFormatError{Where: "DOS", Pos: c.Pos() - 2}
	}
	img.DOSHeader.Magic = magic
	c.Advance(dosHeaderTailBytes)
	c.Advance(dosStubBytes)
	img.FileInfo.HasDOSHdr = true
	return nil
}
