// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// ImageFileHeader is the COFF header: machine type, section count,
// timestamps, and the size of the optional header that follows it (§4.2).
type ImageFileHeader struct {
	Machine              uint16 `json:"machine"`
	NumberOfSections     uint16 `json:"number_of_sections"`
	TimeDateStamp        uint32 `json:"time_date_stamp"`
	PointerToSymbolTable uint32 `json:"pointer_to_symbol_table"`
	NumberOfSymbols      uint32 `json:"number_of_symbols"`
	SizeOfOptionalHeader uint16 `json:"size_of_optional_header"`
	Characteristics      uint16 `json:"characteristics"`
}

// DataDirectory is an RVA/size pair describing one of the 16 standard PE
// data directories.
type DataDirectory struct {
	VirtualAddress uint32 `json:"virtual_address"`
	Size           uint32 `json:"size"`
}

// PEInfo aggregates everything the rest of the pipeline needs out of the
// PE envelope: the COFF header, the fields of the optional header through
// base_of_code/base_of_data, and the 16 data directories (§3, §4.2).
type PEInfo struct {
	FileHeader    ImageFileHeader  `json:"file_header"`
	BaseOfCode    uint32           `json:"base_of_code"`
	BaseOfData    uint32           `json:"base_of_data"`
	DataDirectory [16]DataDirectory `json:"data_directories"`
}

const (
	// ntFieldsTailBytes covers ImageBase through NumberOfRvaAndSizes in the
	// optional header — fields this decoder never needs because every RVA
	// is translated through base_of_code, not image_base (§3).
	ntFieldsTailBytes = 68

	// trailingSkipBytes separates the last data directory from the first
	// section header in the fixed layout this decoder assumes.
	trailingSkipBytes = 8
)

// ParseNTHeader parses the PE signature, COFF header, and optional header
// through base_of_code/base_of_data, then skips to the first section
// header (§4.2).
func (img *DllImage) ParseNTHeader(c *ByteCursor) error {
	ok, err := c.Tag([]byte("PE\x00\x00"))
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidFormatError{Where: "PE signature", Pos: c.Pos()}
	}

	fh := ImageFileHeader{}
	if fh.Machine, err = c.U16(); err != nil {
		return err
	}
	if fh.NumberOfSections, err = c.U16(); err != nil {
		return err
	}
	if fh.TimeDateStamp, err = c.U32(); err != nil {
		return err
	}
	if fh.PointerToSymbolTable, err = c.U32(); err != nil {
		return err
	}
	if fh.NumberOfSymbols, err = c.U32(); err != nil {
		return err
	}
	if fh.SizeOfOptionalHeader, err = c.U16(); err != nil {
		return err
	}
	if fh.Characteristics, err = c.U16(); err != nil {
		return err
	}
	img.PE.FileHeader = fh

	magic, err := c.U16()
	if err != nil {
		return err
	}
	if magic != ImageNtOptionalHeader32Magic {
		return &InvalidFormatError{Where: "optional header magic", Pos: c.Pos() - 2}
	}

	// MajorLinkerVersion, MinorLinkerVersion, SizeOfCode,
	// SizeOfInitializedData, SizeOfUninitializedData, AddressOfEntryPoint.
	c.Advance(2 + 4 + 4 + 4 + 4)

	if img.PE.BaseOfCode, err = c.U32(); err != nil {
		return err
	}
	if img.PE.BaseOfData, err = c.U32(); err != nil {
		return err
	}

	c.Advance(ntFieldsTailBytes)

	for i := range img.PE.DataDirectory {
		va, err := c.U32()
		if err != nil {
			return err
		}
		sz, err := c.U32()
		if err != nil {
			return err
		}
		img.PE.DataDirectory[i] = DataDirectory{VirtualAddress: va, Size: sz}
	}

	c.Advance(trailingSkipBytes)

	img.FileInfo.HasNTHdr = true
	return nil
}

// rvaToFileOffset translates an RVA into a position in the raw buffer
// using the delta derived from base_of_code (§3: "Section base_of_code
// minus 0x200 equals the RVA-to-file-offset delta").
func (img *DllImage) rvaToFileOffset(rva uint32) uint32 {
	delta := img.PE.BaseOfCode - FileAlignmentHardcodedValue
	return rva - delta
}
