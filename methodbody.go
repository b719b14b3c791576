// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// MethodBody is a decoded method body header plus its instruction
// sequence (§4.8, adapted from the original source's MethodImpl::parse).
type MethodBody struct {
	MaxStack         uint16
	CodeSize         uint32
	LocalVarSigToken uint32
	Instructions     []Instruction
	instrOffsets     []int
	offsetToIndex    map[int]int
}

const (
	tinyHeaderMask = 0b11
	tinyHeaderTag  = 0b10
	tinyMaxStack   = 8
)

// parseMethodBody decodes the tiny or fat header at rva, then the
// instruction stream that follows it, per §4.8. maxBodySize guards
// against a corrupt fat header's code_size claiming an unreasonable
// amount of the buffer (§4.10 ambient configuration).
func (img *DllImage) parseMethodBody(rva uint32, maxBodySize uint32) (*MethodBody, error) {
	offset := img.rvaToFileOffset(rva)
	c := NewByteCursor(img.data)
	c.Seek(offset)

	flag, err := c.U8()
	if err != nil {
		return nil, err
	}

	body := &MethodBody{}
	if flag&tinyHeaderMask == tinyHeaderTag {
		body.MaxStack = tinyMaxStack
		body.CodeSize = uint32(flag >> 2)
	} else {
		if _, err := c.U8(); err != nil {
			return nil, err
		}
		if body.MaxStack, err = c.U16(); err != nil {
			return nil, err
		}
		if body.CodeSize, err = c.U32(); err != nil {
			return nil, err
		}
		if body.LocalVarSigToken, err = c.U32(); err != nil {
			return nil, err
		}
	}

	if body.CodeSize > maxBodySize {
		return nil, &InvalidFormatError{Where: "method body code_size", Pos: c.Pos()}
	}

	code, err := c.Bytes(body.CodeSize)
	if err != nil {
		return nil, err
	}

	instrs, instrOffsets, offsetToIndex, err := decodeInstructions(code)
	if err != nil {
		return nil, err
	}
	body.Instructions = instrs
	body.instrOffsets = instrOffsets
	body.offsetToIndex = offsetToIndex
	return body, nil
}

// nextInstructionOffset returns the byte offset of the instruction
// following idx, or the end-of-code offset if idx is the last
// instruction — the "ip" a br.s operand is added to (§4.9).
func (b *MethodBody) nextInstructionOffset(idx int) int {
	if idx+1 < len(b.instrOffsets) {
		return b.instrOffsets[idx+1]
	}
	return int(b.CodeSize)
}

// resolveBranch translates a byte offset into its instruction index.
func (b *MethodBody) resolveBranch(offset int) (int, bool) {
	idx, ok := b.offsetToIndex[offset]
	return idx, ok
}
