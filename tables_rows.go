// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// Typed row shapes for the implemented table subset (§4.5, "Minimum row
// shapes"). Blob-valued columns store the blob heap offset; callers
// resolve the payload via CLIData.Blob.Blob(offset) on demand.

// ModuleRow is the single Module (0x00) table row.
type ModuleRow struct {
	Generation uint16
	Name       string
	Mvid       uint32
	EncID      uint32
	EncBaseID  uint32
}

// TypeRefRow is one TypeRef (0x01) row.
type TypeRefRow struct {
	ResolutionScope CodedToken
	TypeName        string
	TypeNamespace   string
}

// TypeDefRow is one TypeDef (0x02) row.
type TypeDefRow struct {
	Flags         uint32
	TypeName      string
	TypeNamespace string
	Extends       CodedToken
	FieldList     uint32
	MethodList    uint32
}

// MethodDefRow is one MethodDef (0x06) row.
type MethodDefRow struct {
	RVA        uint32
	ImplFlags  uint16
	Flags      uint16
	Name       string
	Signature  uint32
	ParamList  uint32
}

// MemberRefRow is one MemberRef (0x0A) row.
type MemberRefRow struct {
	Class     CodedToken
	Name      string
	Signature uint32
}

// CustomAttributeRow is one CustomAttribute (0x0C) row.
type CustomAttributeRow struct {
	Parent CodedToken
	Type   CodedToken
	Value  uint32
}

// StandAloneSigRow is one StandAloneSig (0x11) row.
type StandAloneSigRow struct {
	Signature uint32
}

// AssemblyRow is the single Assembly (0x20) table row.
type AssemblyRow struct {
	HashAlgID      uint32
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
	Flags          uint32
	PublicKey      uint32
	Name           string
	Culture        string
}

// AssemblyRefRow is one AssemblyRef (0x23) row.
type AssemblyRefRow struct {
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
	Flags          uint32
	PublicKeyOrToken uint32
	Name           string
	Culture        string
	HashValue      uint32
}

// buildTypedRows converts the generically-read cell rows of the
// implemented table subset into their typed row slices.
func (ts *TableSet) buildTypedRows() error {
	if t := ts.Tables[TableModule]; t != nil {
		for _, row := range t.Rows {
			ts.Modules = append(ts.Modules, ModuleRow{
				Generation: uint16(row[0].u32),
				Name:       row[1].str,
				Mvid:       row[2].u32,
				EncID:      row[3].u32,
				EncBaseID:  row[4].u32,
			})
		}
	}
	if t := ts.Tables[TableTypeRef]; t != nil {
		for _, row := range t.Rows {
			ts.TypeRefs = append(ts.TypeRefs, TypeRefRow{
				ResolutionScope: row[0].coded,
				TypeName:        row[1].str,
				TypeNamespace:   row[2].str,
			})
		}
	}
	if t := ts.Tables[TableTypeDef]; t != nil {
		for _, row := range t.Rows {
			ts.TypeDefs = append(ts.TypeDefs, TypeDefRow{
				Flags:         row[0].u32,
				TypeName:      row[1].str,
				TypeNamespace: row[2].str,
				Extends:       row[3].coded,
				FieldList:     row[4].u32,
				MethodList:    row[5].u32,
			})
		}
	}
	if t := ts.Tables[TableMethodDef]; t != nil {
		for _, row := range t.Rows {
			ts.MethodDefs = append(ts.MethodDefs, MethodDefRow{
				RVA:       row[0].u32,
				ImplFlags: uint16(row[1].u32),
				Flags:     uint16(row[2].u32),
				Name:      row[3].str,
				Signature: row[4].u32,
				ParamList: row[5].u32,
			})
		}
	}
	if t := ts.Tables[TableMemberRef]; t != nil {
		for _, row := range t.Rows {
			ts.MemberRefs = append(ts.MemberRefs, MemberRefRow{
				Class:     row[0].coded,
				Name:      row[1].str,
				Signature: row[2].u32,
			})
		}
	}
	if t := ts.Tables[TableCustomAttribute]; t != nil {
		for _, row := range t.Rows {
			ts.CustomAttributes = append(ts.CustomAttributes, CustomAttributeRow{
				Parent: row[0].coded,
				Type:   row[1].coded,
				Value:  row[2].u32,
			})
		}
	}
	if t := ts.Tables[TableStandAloneSig]; t != nil {
		for _, row := range t.Rows {
			ts.StandAloneSigs = append(ts.StandAloneSigs, StandAloneSigRow{Signature: row[0].u32})
		}
	}
	if t := ts.Tables[TableAssembly]; t != nil {
		for _, row := range t.Rows {
			ts.Assemblies = append(ts.Assemblies, AssemblyRow{
				HashAlgID:      row[0].u32,
				MajorVersion:   uint16(row[1].u32),
				MinorVersion:   uint16(row[2].u32),
				BuildNumber:    uint16(row[3].u32),
				RevisionNumber: uint16(row[4].u32),
				Flags:          row[5].u32,
				PublicKey:      row[6].u32,
				Name:           row[7].str,
				Culture:        row[8].str,
			})
		}
	}
	if t := ts.Tables[TableAssemblyRef]; t != nil {
		for _, row := range t.Rows {
			ts.AssemblyRefs = append(ts.AssemblyRefs, AssemblyRefRow{
				MajorVersion:     uint16(row[0].u32),
				MinorVersion:     uint16(row[1].u32),
				BuildNumber:      uint16(row[2].u32),
				RevisionNumber:   uint16(row[3].u32),
				Flags:            row[4].u32,
				PublicKeyOrToken: row[5].u32,
				Name:             row[6].str,
				Culture:          row[7].str,
				HashValue:        row[8].u32,
			})
		}
	}
	return nil
}
