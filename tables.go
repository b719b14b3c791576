// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import "github.com/go-kratos/kratos/v2/log"

// Metadata table identifiers (§4.5). Only a subset is materialized into
// typed rows (tables_rows.go); the rest are still parsed structurally so
// the cursor advances by the correct number of bytes, matching the
// teacher's full table enumeration in dotnet.go.
const (
	TableModule                 = 0x00
	TableTypeRef                = 0x01
	TableTypeDef                = 0x02
	TableFieldPtr                = 0x03
	TableField                   = 0x04
	TableMethodPtr               = 0x05
	TableMethodDef               = 0x06
	TableParamPtr                = 0x07
	TableParam                   = 0x08
	TableInterfaceImpl           = 0x09
	TableMemberRef               = 0x0A
	TableConstant                = 0x0B
	TableCustomAttribute         = 0x0C
	TableFieldMarshal            = 0x0D
	TableDeclSecurity            = 0x0E
	TableClassLayout             = 0x0F
	TableFieldLayout             = 0x10
	TableStandAloneSig           = 0x11
	TableEventMap                = 0x12
	TableEventPtr                = 0x13
	TableEvent                   = 0x14
	TablePropertyMap             = 0x15
	TablePropertyPtr             = 0x16
	TableProperty                = 0x17
	TableMethodSemantics         = 0x18
	TableMethodImpl              = 0x19
	TableModuleRef               = 0x1A
	TableTypeSpec                = 0x1B
	TableImplMap                 = 0x1C
	TableFieldRVA                = 0x1D
	TableENCLog                  = 0x1E
	TableENCMap                  = 0x1F
	TableAssembly                = 0x20
	TableAssemblyProcessor       = 0x21
	TableAssemblyOS              = 0x22
	TableAssemblyRef             = 0x23
	TableAssemblyRefProcessor    = 0x24
	TableAssemblyRefOS           = 0x25
	TableFile                    = 0x26
	TableExportedType            = 0x27
	TableManifestResource        = 0x28
	TableNestedClass             = 0x29
	TableGenericParam            = 0x2A
	TableMethodSpec              = 0x2B
	TableGenericParamConstraint  = 0x2C

	tableCount = 0x2D
)

type colKind int

const (
	colU8 colKind = iota
	colU16
	colU32
	colHeapString
	colHeapGUID
	colHeapBlob
	colSimple
	colCoded
)

type col struct {
	kind   colKind
	target int    // table id, for colSimple
	coded  string // coded-column name, for colCoded
}

// codedColumns is the full coded-token target table from §4.5, verbatim.
// -1 marks a reserved/unused slot; it still counts toward |T(C)| so the
// tag-bit width comes out correct.
var codedColumns = map[string][]int{
	"TypeDefOrRef": {TableTypeDef, TableTypeRef, TableTypeSpec},
	"HasConstant":  {TableField, TableParam, TableProperty},
	"HasCustomAttribute": {
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, -1, TableProperty,
		TableEvent, TableStandAloneSig, TableModuleRef, TableTypeSpec,
		TableAssembly, TableAssemblyRef, TableFile, TableExportedType,
		TableManifestResource, TableGenericParam, TableGenericParamConstraint,
		TableMethodSpec,
	},
	"HasFieldMarshall": {TableField, TableParam},
	"HasDeclSecurity":  {TableTypeDef, TableMethodDef, TableAssembly},
	"MemberRefParent":  {TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec},
	"HasSemantics":     {TableEvent, TableProperty},
	"MethodDefOrRef":   {TableMethodDef, TableMemberRef},
	"MemberForwarded":  {TableField, TableMethodDef},
	"Implementation":   {TableFile, TableAssemblyRef, TableExportedType},
	"CustomAttributeType": {-1, -1, TableMethodDef, TableMemberRef, -1},
	"ResolutionScope":     {TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef},
	"TypeOrMethodDef":     {TableTypeDef, TableMethodDef},
}

// tableSchemas gives every valid table's column layout per ECMA-335
// §II.22, so the decoder can correctly skip past tables outside the
// implemented subset while still consuming the right number of bytes.
var tableSchemas = map[int][]col{
	TableModule:       {{kind: colU16}, {kind: colHeapString}, {kind: colHeapGUID}, {kind: colHeapGUID}, {kind: colHeapGUID}},
	TableTypeRef:      {{kind: colCoded, coded: "ResolutionScope"}, {kind: colHeapString}, {kind: colHeapString}},
	TableTypeDef:      {{kind: colU32}, {kind: colHeapString}, {kind: colHeapString}, {kind: colCoded, coded: "TypeDefOrRef"}, {kind: colSimple, target: TableField}, {kind: colSimple, target: TableMethodDef}},
	TableFieldPtr:     {{kind: colSimple, target: TableField}},
	TableField:        {{kind: colU16}, {kind: colHeapString}, {kind: colHeapBlob}},
	TableMethodPtr:    {{kind: colSimple, target: TableMethodDef}},
	TableMethodDef:    {{kind: colU32}, {kind: colU16}, {kind: colU16}, {kind: colHeapString}, {kind: colHeapBlob}, {kind: colSimple, target: TableParam}},
	TableParamPtr:     {{kind: colSimple, target: TableParam}},
	TableParam:        {{kind: colU16}, {kind: colU16}, {kind: colHeapString}},
	TableInterfaceImpl: {{kind: colSimple, target: TableTypeDef}, {kind: colCoded, coded: "TypeDefOrRef"}},
	TableMemberRef:    {{kind: colCoded, coded: "MemberRefParent"}, {kind: colHeapString}, {kind: colHeapBlob}},
	TableConstant:     {{kind: colU8}, {kind: colU8}, {kind: colCoded, coded: "HasConstant"}, {kind: colHeapBlob}},
	TableCustomAttribute: {{kind: colCoded, coded: "HasCustomAttribute"}, {kind: colCoded, coded: "CustomAttributeType"}, {kind: colHeapBlob}},
	TableFieldMarshal: {{kind: colCoded, coded: "HasFieldMarshall"}, {kind: colHeapBlob}},
	TableDeclSecurity: {{kind: colU16}, {kind: colCoded, coded: "HasDeclSecurity"}, {kind: colHeapBlob}},
	TableClassLayout:  {{kind: colU16}, {kind: colU32}, {kind: colSimple, target: TableTypeDef}},
	TableFieldLayout:  {{kind: colU32}, {kind: colSimple, target: TableField}},
	TableStandAloneSig: {{kind: colHeapBlob}},
	TableEventMap:     {{kind: colSimple, target: TableTypeDef}, {kind: colSimple, target: TableEvent}},
	TableEventPtr:     {{kind: colSimple, target: TableEvent}},
	TableEvent:        {{kind: colU16}, {kind: colHeapString}, {kind: colCoded, coded: "TypeDefOrRef"}},
	TablePropertyMap:  {{kind: colSimple, target: TableTypeDef}, {kind: colSimple, target: TableProperty}},
	TablePropertyPtr:  {{kind: colSimple, target: TableProperty}},
	TableProperty:     {{kind: colU16}, {kind: colHeapString}, {kind: colHeapBlob}},
	TableMethodSemantics: {{kind: colU16}, {kind: colSimple, target: TableMethodDef}, {kind: colCoded, coded: "HasSemantics"}},
	TableMethodImpl:   {{kind: colSimple, target: TableTypeDef}, {kind: colCoded, coded: "MethodDefOrRef"}, {kind: colCoded, coded: "MethodDefOrRef"}},
	TableModuleRef:    {{kind: colHeapString}},
	TableTypeSpec:     {{kind: colHeapBlob}},
	TableImplMap:      {{kind: colU16}, {kind: colCoded, coded: "MemberForwarded"}, {kind: colHeapString}, {kind: colSimple, target: TableModuleRef}},
	TableFieldRVA:     {{kind: colU32}, {kind: colSimple, target: TableField}},
	TableENCLog:       {{kind: colU32}, {kind: colU32}},
	TableENCMap:       {{kind: colU32}},
	TableAssembly:     {{kind: colU32}, {kind: colU16}, {kind: colU16}, {kind: colU16}, {kind: colU16}, {kind: colU32}, {kind: colHeapBlob}, {kind: colHeapString}, {kind: colHeapString}},
	TableAssemblyProcessor: {{kind: colU32}},
	TableAssemblyOS:        {{kind: colU32}, {kind: colU32}, {kind: colU32}},
	TableAssemblyRef:  {{kind: colU16}, {kind: colU16}, {kind: colU16}, {kind: colU16}, {kind: colU32}, {kind: colHeapBlob}, {kind: colHeapString}, {kind: colHeapString}, {kind: colHeapBlob}},
	TableAssemblyRefProcessor: {{kind: colU32}, {kind: colSimple, target: TableAssemblyRef}},
	TableAssemblyRefOS: {{kind: colU32}, {kind: colU32}, {kind: colU32}, {kind: colSimple, target: TableAssemblyRef}},
	TableFile:           {{kind: colU32}, {kind: colHeapString}, {kind: colHeapBlob}},
	TableExportedType:   {{kind: colU32}, {kind: colU32}, {kind: colHeapString}, {kind: colHeapString}, {kind: colCoded, coded: "Implementation"}},
	TableManifestResource: {{kind: colU32}, {kind: colU32}, {kind: colHeapString}, {kind: colCoded, coded: "Implementation"}},
	TableNestedClass:    {{kind: colSimple, target: TableTypeDef}, {kind: colSimple, target: TableTypeDef}},
	TableGenericParam:   {{kind: colU16}, {kind: colU16}, {kind: colCoded, coded: "TypeOrMethodDef"}, {kind: colHeapString}},
	TableMethodSpec:     {{kind: colCoded, coded: "MethodDefOrRef"}, {kind: colHeapBlob}},
	TableGenericParamConstraint: {{kind: colSimple, target: TableGenericParam}, {kind: colCoded, coded: "TypeDefOrRef"}},
}

// implementedTables is the subset named by spec.md §4.5's "Minimum row
// shapes", the only tables materialized into typed rows.
var implementedTables = map[int]bool{
	TableModule: true, TableTypeRef: true, TableTypeDef: true,
	TableMethodDef: true, TableMemberRef: true, TableCustomAttribute: true,
	TableStandAloneSig: true, TableAssembly: true, TableAssemblyRef: true,
}

// CodedToken is a decoded coded-token column value: a target table id (or
// -1 for a reserved slot) and a 1-based row number (0 meaning null).
type CodedToken struct {
	Table int
	Row   uint32
}

// cell is one generically-read column value; only the field matching the
// column's kind is meaningful.
type cell struct {
	kind  colKind
	u32   uint32
	str   string
	coded CodedToken
}

// MetadataTable is one parsed (or structurally-skipped) table.
type MetadataTable struct {
	ID       int
	Name     string
	RowCount uint32
	Rows     [][]cell // nil for tables outside the implemented subset
}

// TableSet is the decoded `#~`/`#-` stream: every valid table's row
// count, and typed rows for the implemented subset (§4.5).
type TableSet struct {
	RowCounts [tableCount]uint32
	Tables    map[int]*MetadataTable

	Modules           []ModuleRow
	TypeRefs          []TypeRefRow
	TypeDefs          []TypeDefRow
	MethodDefs        []MethodDefRow
	MemberRefs        []MemberRefRow
	CustomAttributes  []CustomAttributeRow
	StandAloneSigs    []StandAloneSigRow
	Assemblies        []AssemblyRow
	AssemblyRefs      []AssemblyRefRow
}

func tableIDToName(id int) string {
	names := map[int]string{
		TableModule: "Module", TableTypeRef: "TypeRef", TableTypeDef: "TypeDef",
		TableFieldPtr: "FieldPtr", TableField: "Field", TableMethodPtr: "MethodPtr",
		TableMethodDef: "MethodDef", TableParamPtr: "ParamPtr", TableParam: "Param",
		TableInterfaceImpl: "InterfaceImpl", TableMemberRef: "MemberRef",
		TableConstant: "Constant", TableCustomAttribute: "CustomAttribute",
		TableFieldMarshal: "FieldMarshal", TableDeclSecurity: "DeclSecurity",
		TableClassLayout: "ClassLayout", TableFieldLayout: "FieldLayout",
		TableStandAloneSig: "StandAloneSig", TableEventMap: "EventMap",
		TableEventPtr: "EventPtr", TableEvent: "Event", TablePropertyMap: "PropertyMap",
		TablePropertyPtr: "PropertyPtr", TableProperty: "Property",
		TableMethodSemantics: "MethodSemantics", TableMethodImpl: "MethodImpl",
		TableModuleRef: "ModuleRef", TableTypeSpec: "TypeSpec", TableImplMap: "ImplMap",
		TableFieldRVA: "FieldRVA", TableENCLog: "ENCLog", TableENCMap: "ENCMap",
		TableAssembly: "Assembly", TableAssemblyProcessor: "AssemblyProcessor",
		TableAssemblyOS: "AssemblyOS", TableAssemblyRef: "AssemblyRef",
		TableAssemblyRefProcessor: "AssemblyRefProcessor", TableAssemblyRefOS: "AssemblyRefOS",
		TableFile: "File", TableExportedType: "ExportedType",
		TableManifestResource: "ManifestResource", TableNestedClass: "NestedClass",
		TableGenericParam: "GenericParam", TableMethodSpec: "MethodSpec",
		TableGenericParamConstraint: "GenericParamConstraint",
	}
	return names[id]
}

// codedColumnWidth computes the byte width of a coded-token column per
// §4.5: k = ceil(log2(|T(C)|)) tag bits, width 4 if any target table's
// row count exceeds 2^(16-k), else 2.
func codedColumnWidth(name string, rowCounts [tableCount]uint32) int {
	targets := codedColumns[name]
	k := ceilLog2(len(targets))
	limit := uint32(1) << (16 - k)
	for _, t := range targets {
		if t < 0 {
			continue
		}
		if rowCounts[t] > limit {
			return 4
		}
	}
	return 2
}

// simpleColumnWidth is the "coded token with one target and no tag bits"
// special case the spec calls out for plain row-index columns.
func simpleColumnWidth(target int, rowCounts [tableCount]uint32) int {
	if rowCounts[target] > 0xFFFF {
		return 4
	}
	return 2
}

func columnWidth(c col, heapSizes byte, rowCounts [tableCount]uint32) int {
	switch c.kind {
	case colHeapString:
		if IsBitSet(uint64(heapSizes), 0) {
			return 4
		}
		return 2
	case colHeapGUID:
		if IsBitSet(uint64(heapSizes), 1) {
			return 4
		}
		return 2
	case colHeapBlob:
		if IsBitSet(uint64(heapSizes), 2) {
			return 4
		}
		return 2
	case colSimple:
		return simpleColumnWidth(c.target, rowCounts)
	case colCoded:
		return codedColumnWidth(c.coded, rowCounts)
	default:
		return 0
	}
}

func decodeCodedToken(v uint32, name string) CodedToken {
	targets := codedColumns[name]
	k := ceilLog2(len(targets))
	tag := int(v & ((1 << k) - 1))
	row := v >> k
	table := -1
	if tag < len(targets) {
		table = targets[tag]
	}
	return CodedToken{Table: table, Row: row}
}

func readCell(c *ByteCursor, spec col, heapSizes byte, rowCounts [tableCount]uint32, strings *StringHeap) (cell, error) {
	switch spec.kind {
	case colU8:
		v, err := c.U8()
		return cell{kind: spec.kind, u32: uint32(v)}, err
	case colU16:
		v, err := c.U16()
		return cell{kind: spec.kind, u32: uint32(v)}, err
	case colU32:
		v, err := c.U32()
		return cell{kind: spec.kind, u32: v}, err
	case colHeapString:
		w := columnWidth(spec, heapSizes, rowCounts)
		v, err := c.Uint(w)
		if err != nil {
			return cell{}, err
		}
		s, err := strings.Lookup(v)
		if err != nil {
			return cell{}, err
		}
		return cell{kind: spec.kind, u32: v, str: s}, nil
	case colHeapGUID, colHeapBlob:
		w := columnWidth(spec, heapSizes, rowCounts)
		v, err := c.Uint(w)
		return cell{kind: spec.kind, u32: v}, err
	case colSimple:
		w := columnWidth(spec, heapSizes, rowCounts)
		v, err := c.Uint(w)
		return cell{kind: spec.kind, u32: v}, err
	case colCoded:
		w := columnWidth(spec, heapSizes, rowCounts)
		v, err := c.Uint(w)
		if err != nil {
			return cell{}, err
		}
		return cell{kind: spec.kind, u32: v, coded: decodeCodedToken(v, spec.coded)}, nil
	}
	return cell{}, &InvalidFormatError{Where: "table column", Pos: c.Pos()}
}

// parseTablesStream parses the `#~`/`#-` stream header and every valid
// table's rows, in fixed ascending table_id order (§4.5).
func parseTablesStream(raw []byte, strings *StringHeap, blob *BlobHeap, logger *log.Helper) (*TableSet, error) {
	c := NewByteCursor(raw)
	c.Advance(4) // reserved

	if _, err := c.U8(); err != nil { // major
		return nil, err
	}
	if _, err := c.U8(); err != nil { // minor
		return nil, err
	}
	heapSizes, err := c.U8()
	if err != nil {
		return nil, err
	}
	rid, err := c.U8()
	if err != nil {
		return nil, err
	}
	if rid != 0x01 {
		return nil, &InvalidFormatError{Where: "#~ prelude", Pos: c.Pos() - 1}
	}

	valid, err := c.U64()
	if err != nil {
		return nil, err
	}
	sorted, err := c.U64()
	if err != nil {
		return nil, err
	}
	_ = sorted

	wantRowCountEntries := popcount64(valid)

	ts := &TableSet{Tables: make(map[int]*MetadataTable)}
	gotRowCountEntries := 0
	for id := 0; id < tableCount; id++ {
		if !IsBitSet(valid, id) {
			continue
		}
		n, err := c.U32()
		if err != nil {
			return nil, err
		}
		ts.RowCounts[id] = n
		gotRowCountEntries++
	}
	// §8: popcount(valid) must equal the number of row-count entries just
	// read; the two loops above and below both walk `valid` bit-by-bit, so
	// a mismatch here means the bitmap changed under us, not bad input.
	if gotRowCountEntries != wantRowCountEntries {
		return nil, &InvalidFormatError{Where: "#~ valid bitmap/row-count mismatch", Pos: c.Pos()}
	}

	for id := 0; id < tableCount; id++ {
		if !IsBitSet(valid, id) {
			continue
		}
		schema, ok := tableSchemas[id]
		if !ok {
			if logger != nil {
				logger.Debugf("skipping table id 0x%02X: no known column schema", id)
			}
			continue
		}
		rowCount := ts.RowCounts[id]
		table := &MetadataTable{ID: id, Name: tableIDToName(id), RowCount: rowCount}
		if implementedTables[id] {
			table.Rows = make([][]cell, 0, rowCount)
		}
		for r := uint32(0); r < rowCount; r++ {
			row := make([]cell, len(schema))
			for i, colSpec := range schema {
				cl, err := readCell(c, colSpec, heapSizes, ts.RowCounts, strings)
				if err != nil {
					return nil, err
				}
				row[i] = cl
			}
			if implementedTables[id] {
				table.Rows = append(table.Rows, row)
			}
		}
		ts.Tables[id] = table
	}

	if err := ts.buildTypedRows(); err != nil {
		return nil, err
	}
	return ts, nil
}
