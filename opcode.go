// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import "fmt"

// Opcode is the one-byte instruction tag of the implemented subset
// (§4.9). Unlike the original source's `OpCode::from` — an unsafe
// transmute from the raw byte — decoding goes through an explicit
// switch (opcode.go's decodeInstructions), so an unrecognized byte
// becomes an `UnknownOpcodeError` instead of undefined behavior.
type Opcode byte

const (
	OpNop     Opcode = 0x00
	OpLdarg0  Opcode = 0x02
	OpLdarg1  Opcode = 0x03
	OpLdloc0  Opcode = 0x06
	OpLdloc1  Opcode = 0x07
	OpStloc0  Opcode = 0x0A
	OpLdcI40  Opcode = 0x16 // extension: pushes the i32 constant 0 (§4.14)
	OpLdcI4   Opcode = 0x20
	OpCall    Opcode = 0x28
	OpRet     Opcode = 0x2A
	OpBrS     Opcode = 0x2B
	OpAdd     Opcode = 0x58
)

var opcodeNames = map[Opcode]string{
	OpNop:    "nop",
	OpLdarg0: "ldarg.0",
	OpLdarg1: "ldarg.1",
	OpLdloc0: "ldloc.0",
	OpLdloc1: "ldloc.1",
	OpStloc0: "stloc.0",
	OpLdcI40: "ldc.i4.0",
	OpLdcI4:  "ldc.i4",
	OpCall:   "call",
	OpRet:    "ret",
	OpBrS:    "br.s",
	OpAdd:    "add",
}

// String renders the mnemonic for an opcode, or its raw byte value if
// unrecognized.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(op))
}

// MetadataToken is a decoded `call` operand: the high byte of a raw
// 32-bit token names the target table, the low 24 bits are the 1-based
// row index (§4.9).
type MetadataToken struct {
	Table byte
	Row   uint32
}

func decodeMetadataToken(raw uint32) MetadataToken {
	return MetadataToken{Table: byte(raw >> 24), Row: raw & 0x00FFFFFF}
}

// Operand holds whichever operand shape an opcode carries; only the
// field matching Opcode is meaningful. ldc.i4 uses I32, br.s uses I8,
// call uses Token; every other opcode in the subset carries no operand.
type Operand struct {
	I8    int8
	I32   int32
	Token MetadataToken
}

// Instruction is one decoded opcode plus its operand, per §4.9.
type Instruction struct {
	Op      Opcode
	Operand Operand
}

// decodeInstructions decodes exactly len(code) bytes into an instruction
// sequence, returning a parallel offsetToIndex table mapping the byte
// offset each instruction starts at (plus the end-of-code offset) to its
// index — the table br.s resolution walks, since branch targets are
// byte offsets, not instruction indices (§4.9: "a parallel
// offset-to-index table built during decoding").
func decodeInstructions(code []byte) ([]Instruction, []int, map[int]int, error) {
	var instrs []Instruction
	var instrOffsets []int
	offsetToIndex := make(map[int]int)

	pos := 0
	for pos < len(code) {
		offsetToIndex[pos] = len(instrs)
		instrOffsets = append(instrOffsets, pos)
		opByte := code[pos]
		ip := pos
		pos++

		var inst Instruction
		switch Opcode(opByte) {
		case OpNop, OpLdarg0, OpLdarg1, OpLdloc0, OpLdloc1, OpStloc0, OpRet, OpAdd, OpLdcI40:
			inst = Instruction{Op: Opcode(opByte)}
		case OpLdcI4:
			if pos+4 > len(code) {
				return nil, nil, nil, &ReadOverflowError{Pos: pos, Want: 4, Size: len(code)}
			}
			v := int32(code[pos]) | int32(code[pos+1])<<8 | int32(code[pos+2])<<16 | int32(code[pos+3])<<24
			pos += 4
			inst = Instruction{Op: OpLdcI4, Operand: Operand{I32: v}}
		case OpBrS:
			if pos+1 > len(code) {
				return nil, nil, nil, &ReadOverflowError{Pos: pos, Want: 1, Size: len(code)}
			}
			v := int8(code[pos])
			pos++
			inst = Instruction{Op: OpBrS, Operand: Operand{I8: v}}
		case OpCall:
			if pos+4 > len(code) {
				return nil, nil, nil, &ReadOverflowError{Pos: pos, Want: 4, Size: len(code)}
			}
			raw := uint32(code[pos]) | uint32(code[pos+1])<<8 | uint32(code[pos+2])<<16 | uint32(code[pos+3])<<24
			pos += 4
			inst = Instruction{Op: OpCall, Operand: Operand{Token: decodeMetadataToken(raw)}}
		default:
			return nil, nil, nil, &UnknownOpcodeError{Byte: opByte, IP: ip}
		}
		instrs = append(instrs, inst)
	}
	offsetToIndex[len(code)] = len(instrs) // end-of-code sentinel
	return instrs, instrOffsets, offsetToIndex, nil
}
