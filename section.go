// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// Section represents a raw IMAGE_SECTION_HEADER entry (§4.2). A CLI image
// always carries exactly three: `.text` (code and metadata), `.rsrc`
// (Win32 resources), and `.reloc` (base relocations for the entry-point
// stub). This decoder parses exactly those three, in that order, and
// never consults `.rsrc`/`.reloc` contents (out of scope, §1).
type Section struct {
	Name                 [8]byte `json:"name"`
	VirtualSize          uint32  `json:"virtual_size"`
	VirtualAddress       uint32  `json:"virtual_address"`
	SizeOfRawData        uint32  `json:"size_of_raw_data"`
	PointerToRawData     uint32  `json:"pointer_to_raw_data"`
	PointerToRelocations uint32  `json:"pointer_to_relocations"`
	PointerToLineNumbers uint32  `json:"pointer_to_line_numbers"`
	NumberOfRelocations   uint16 `json:"number_of_relocations"`
	NumberOfLineNumbers   uint16 `json:"number_of_line_numbers"`
	Characteristics       uint32 `json:"characteristics"`
}

// NameString trims the trailing NUL padding off the fixed 8-byte name.
func (s Section) NameString() string {
	n := len(s.Name)
	for n > 0 && s.Name[n-1] == 0 {
		n--
	}
	return string(s.Name[:n])
}

const standardSectionCount = 3

// ParseSections reads exactly three section headers following the data
// directories (§4.2).
func (img *DllImage) ParseSections(c *ByteCursor) error {
	img.Sections = make([]Section, 0, standardSectionCount)
	for i := 0; i < standardSectionCount; i++ {
		var sec Section
		raw, err := c.Bytes(8)
		if err != nil {
			return err
		}
		copy(sec.Name[:], raw)

		fields := []*uint32{
			&sec.VirtualSize, &sec.VirtualAddress, &sec.SizeOfRawData,
			&sec.PointerToRawData, &sec.PointerToRelocations, &sec.PointerToLineNumbers,
		}
		for _, f := range fields {
			v, err := c.U32()
			if err != nil {
				return err
			}
			*f = v
		}
		if sec.NumberOfRelocations, err = c.U16(); err != nil {
			return err
		}
		if sec.NumberOfLineNumbers, err = c.U16(); err != nil {
			return err
		}
		if sec.Characteristics, err = c.U32(); err != nil {
			return err
		}
		img.Sections = append(img.Sections, sec)
	}
	img.FileInfo.HasSections = true
	return nil
}
