// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// ElementType is the closed enumeration of ECMA-335 §II.23.1.16
// element-type tags this decoder recognizes inside a signature blob.
type ElementType byte

const (
	ElementTypeEnd         ElementType = 0x00
	ElementTypeVoid        ElementType = 0x01
	ElementTypeBoolean     ElementType = 0x02
	ElementTypeChar        ElementType = 0x03
	ElementTypeI1          ElementType = 0x04
	ElementTypeU1          ElementType = 0x05
	ElementTypeI2          ElementType = 0x06
	ElementTypeU2          ElementType = 0x07
	ElementTypeI4          ElementType = 0x08
	ElementTypeU4          ElementType = 0x09
	ElementTypeI8          ElementType = 0x0A
	ElementTypeU8          ElementType = 0x0B
	ElementTypeR4          ElementType = 0x0C
	ElementTypeR8          ElementType = 0x0D
	ElementTypeString      ElementType = 0x0E
	ElementTypePtr         ElementType = 0x0F
	ElementTypeByRef       ElementType = 0x10
	ElementTypeValueType   ElementType = 0x11
	ElementTypeClass       ElementType = 0x12
	ElementTypeVar         ElementType = 0x13
	ElementTypeArray       ElementType = 0x14
	ElementTypeGenericInst ElementType = 0x15
	ElementTypeTypedByRef  ElementType = 0x16
	ElementTypeI           ElementType = 0x18
	ElementTypeU           ElementType = 0x19
	ElementTypeFnPtr       ElementType = 0x1B
	ElementTypeObject      ElementType = 0x1C
	ElementTypeSZArray     ElementType = 0x1D
	ElementTypeMVar        ElementType = 0x1E
	ElementTypeCmodReqd    ElementType = 0x1F
	ElementTypeCmodOpt     ElementType = 0x20
	ElementTypeInternal    ElementType = 0x21
	ElementTypeModifier    ElementType = 0x40
	ElementTypeSentinel    ElementType = 0x41
	ElementTypePinned      ElementType = 0x45
)

const (
	callingConvVarArg  = 0x05
	callingConvGeneric = 0x10
)

// TypeSig is a RetType or Param entry: an optional custom-modifier and
// BYREF prefix followed by the element type itself (§4.6).
type TypeSig struct {
	CmodReqd bool
	ByRef    bool
	Type     ElementType
}

// MethodDefSig is a decoded method-definition signature (§4.6).
type MethodDefSig struct {
	HasThis      bool
	ExplicitThis bool
	CallConv     byte
	ParamCount   uint32
	RetType      TypeSig
	Params       []TypeSig
}

// decodeTypeSig reads one optional-CMOD_REQD, optional-BYREF,
// ElementType sequence, used for both RetType and Param (§4.6). VOID and
// TYPEDBYREF are accepted as terminal variants, same as any other
// element type, since this decoder does not walk nested type signatures
// (arrays, generics, value types) — only the element-type tag itself.
func decodeTypeSig(b []byte) (TypeSig, int, error) {
	pos := 0
	sig := TypeSig{}
	if pos < len(b) && b[pos] == byte(ElementTypeCmodReqd) {
		sig.CmodReqd = true
		pos++
		_, n, err := decodeCompressedUint(b[pos:])
		if err != nil {
			return TypeSig{}, 0, err
		}
		pos += n
	}
	if pos < len(b) && b[pos] == byte(ElementTypeByRef) {
		sig.ByRef = true
		pos++
	}
	if pos >= len(b) {
		return TypeSig{}, 0, &InvalidBlobError{Offset: uint32(pos)}
	}
	sig.Type = ElementType(b[pos])
	pos++
	return sig, pos, nil
}

// decodeMethodDefSig parses a MethodDefSig out of a blob payload
// (already stripped of its length prefix by BlobHeap.Blob), per §4.6.
func decodeMethodDefSig(b []byte) (*MethodDefSig, error) {
	if len(b) == 0 {
		return nil, &InvalidBlobError{Offset: 0}
	}
	flags := b[0]
	pos := 1

	sig := &MethodDefSig{
		HasThis:      flags&0x20 != 0,
		ExplicitThis: flags&0x40 != 0,
		CallConv:     flags &^ 0x60,
	}

	if pos >= len(b) {
		return nil, &InvalidBlobError{Offset: uint32(pos)}
	}
	paramCount, n, err := decodeCompressedUint(b[pos:])
	if err != nil {
		return nil, err
	}
	pos += n
	sig.ParamCount = paramCount

	ret, n, err := decodeTypeSig(b[pos:])
	if err != nil {
		return nil, err
	}
	pos += n
	sig.RetType = ret

	sig.Params = make([]TypeSig, 0, paramCount)
	for i := uint32(0); i < paramCount; i++ {
		p, n, err := decodeTypeSig(b[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}
