// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// ImageDataDirectory is an RVA/size pair, as used both by the PE optional
// header's data directories and by the fields of the CLI header itself
// (§4.3).
type ImageDataDirectory struct {
	VirtualAddress uint32 `json:"virtual_address"`
	Size           uint32 `json:"size"`
}

// ImageCOR20Header is the CLI header (IMAGE_COR20_HEADER), tagged by a
// fixed `cb` size of 0x48 (§4.3). The decoder locates the metadata root by
// scanning for its BSJB magic, not through MetaData; StrongNameSignature is
// read by StrongName, and the directories are otherwise retained for
// callers such as the ambient `clrdump` tool.
type ImageCOR20Header struct {
	Cb                      uint32              `json:"cb"`
	MajorRuntimeVersion     uint16              `json:"major_runtime_version"`
	MinorRuntimeVersion     uint16              `json:"minor_runtime_version"`
	MetaData                ImageDataDirectory `json:"meta_data"`
	Flags                   uint32              `json:"flags"`
	EntryPointToken         uint32              `json:"entry_point_token"`
	Resources               ImageDataDirectory `json:"resources"`
	StrongNameSignature     ImageDataDirectory `json:"strong_name_signature"`
	CodeManagerTable        ImageDataDirectory `json:"code_manager_table"`
	VTableFixups            ImageDataDirectory `json:"vtable_fixups"`
	ExportAddressTableJumps ImageDataDirectory `json:"export_address_table_jumps"`
	ManagedNativeHeader     ImageDataDirectory `json:"managed_native_header"`
}

// cliHeaderTag is the 4-byte `cb` field of a well-formed CLI header: the
// header size, 0x48, read little-endian (§4.3).
var cliHeaderTag = []byte{0x48, 0x00, 0x00, 0x00}

// bsjbMagic is the metadata root signature (§4.3).
var bsjbMagic = []byte("BSJB")

// MetadataHeader is the fixed-layout prefix of the metadata root that
// precedes the stream directory (§4.3).
type MetadataHeader struct {
	VersionMinor uint16 `json:"version_minor"`
	VersionMajor uint16 `json:"version_major"`
	Version      string `json:"version"`
	Streams      uint16 `json:"streams"`
}

// MetadataStreamHeader names one contiguous region of the metadata root
// (§4.3, §GLOSSARY "Stream").
type MetadataStreamHeader struct {
	Offset uint32 `json:"offset"`
	Size   uint32 `json:"size"`
	Name   string `json:"name"`
}

// CLIData holds everything decoded from the CLI header onward: the
// header itself, the metadata root, the raw per-stream bytes, and the
// decoded heaps and tables built on top of them (§3, §4.3-§4.5).
type CLIData struct {
	CLRHeader      ImageCOR20Header                `json:"clr_header"`
	MetadataHeader MetadataHeader                  `json:"metadata_header"`
	MetaPos        int                             `json:"-"`
	StreamHeaders  []MetadataStreamHeader          `json:"metadata_stream_headers"`
	Streams        map[string][]byte               `json:"-"`

	Strings *StringHeap `json:"-"`
	Blob    *BlobHeap   `json:"-"`
	UserStrings *StringHeap `json:"-"`
	Tables  *TableSet   `json:"-"`
}

func readDataDirectory(c *ByteCursor) (ImageDataDirectory, error) {
	va, err := c.U32()
	if err != nil {
		return ImageDataDirectory{}, err
	}
	size, err := c.U32()
	if err != nil {
		return ImageDataDirectory{}, err
	}
	return ImageDataDirectory{VirtualAddress: va, Size: size}, nil
}

// parseCLIHeaderDirectory decodes the CLI header and metadata root
// starting from the cursor left by ParseSections, per §4.3. It continues
// into the stream directory, then hands the `#~`/`#-`, `#Strings`,
// `#Blob`, and `#US` streams to their respective decoders.
func (img *DllImage) parseCLIHeaderDirectory(c *ByteCursor) error {
	c.Advance(16)

	ok, err := c.Tag(cliHeaderTag)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidFormatError{Where: "CLI header", Pos: c.Pos()}
	}

	hdr := ImageCOR20Header{Cb: 0x48}
	if hdr.MajorRuntimeVersion, err = c.U16(); err != nil {
		return err
	}
	if hdr.MinorRuntimeVersion, err = c.U16(); err != nil {
		return err
	}
	if hdr.MetaData, err = readDataDirectory(c); err != nil {
		return err
	}
	if hdr.Flags, err = c.U32(); err != nil {
		return err
	}
	if hdr.EntryPointToken, err = c.U32(); err != nil {
		return err
	}
	if hdr.Resources, err = readDataDirectory(c); err != nil {
		return err
	}
	if hdr.StrongNameSignature, err = readDataDirectory(c); err != nil {
		return err
	}
	if hdr.CodeManagerTable, err = readDataDirectory(c); err != nil {
		return err
	}
	if hdr.VTableFixups, err = readDataDirectory(c); err != nil {
		return err
	}
	if hdr.ExportAddressTableJumps, err = readDataDirectory(c); err != nil {
		return err
	}
	if hdr.ManagedNativeHeader, err = readDataDirectory(c); err != nil {
		return err
	}
	img.CLI.CLRHeader = hdr

	if err := c.ScanTo(bsjbMagic); err != nil {
		return &InvalidFormatError{Where: "BSJB", Pos: c.Pos()}
	}
	img.CLI.MetaPos = c.Pos()

	c.Advance(4) // magic
	c.Advance(4) // reserved

	mh := MetadataHeader{}
	if mh.VersionMinor, err = c.U16(); err != nil {
		return err
	}
	if mh.VersionMajor, err = c.U16(); err != nil {
		return err
	}
	c.Advance(4) // reserved

	versionLen, err := c.U32()
	if err != nil {
		return err
	}
	versionRaw, err := c.Bytes(versionLen)
	if err != nil {
		return err
	}
	mh.Version = trimNUL(versionRaw)

	c.Advance(2) // flags, reserved/zero

	if mh.Streams, err = c.U16(); err != nil {
		return err
	}
	img.CLI.MetadataHeader = mh

	img.CLI.Streams = make(map[string][]byte, mh.Streams)
	img.CLI.StreamHeaders = make([]MetadataStreamHeader, 0, mh.Streams)

	var tablesRaw []byte
	for i := uint16(0); i < mh.Streams; i++ {
		sh := MetadataStreamHeader{}
		if sh.Offset, err = c.U32(); err != nil {
			return err
		}
		if sh.Size, err = c.U32(); err != nil {
			return err
		}
		name, err := c.ReadCStringPad4()
		if err != nil {
			return err
		}
		sh.Name = name
		img.CLI.StreamHeaders = append(img.CLI.StreamHeaders, sh)

		start := img.CLI.MetaPos + int(sh.Offset)
		end := start + int(sh.Size)
		if end > len(img.data) || start < 0 {
			return &ReadOverflowError{Pos: start, Want: int(sh.Size), Size: len(img.data)}
		}
		raw := img.data[start:end]
		img.CLI.Streams[sh.Name] = raw

		switch sh.Name {
		case "#~", "#-":
			tablesRaw = raw
		case "#Strings", "#Blob", "#US", "#GUID":
		default:
			if img.logger != nil {
				img.logger.Debugf("unrecognized metadata stream %q, keeping raw bytes only", sh.Name)
			}
		}
	}

	img.CLI.Strings = newStringHeap(img.CLI.Streams["#Strings"], img.logger)
	img.CLI.Blob = newBlobHeap(img.CLI.Streams["#Blob"])
	img.CLI.UserStrings = newUserStringHeap(img.CLI.Streams["#US"], img.logger)

	if tablesRaw == nil {
		if img.logger != nil {
			img.logger.Warnf("no #~/#- tables stream present in metadata root at offset %d", img.CLI.MetaPos)
		}
		return nil
	}
	tables, err := parseTablesStream(tablesRaw, img.CLI.Strings, img.CLI.Blob, img.logger)
	if err != nil {
		return err
	}
	img.CLI.Tables = tables
	img.FileInfo.HasCLR = true
	return nil
}

func trimNUL(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}
