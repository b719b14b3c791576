// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// DataKind tags the scalar interpretation currently held by a Data cell
// (§4.9: "the Data cell is reinterpreted at the point of the consuming
// operation; no implicit widening is performed by push/pop"). This is a
// type-tagged struct rather than the original source's unsafe-transmute
// union — Go has no union type, and a tagged struct is the idiomatic
// stand-in.
type DataKind int

const (
	DataKindNone DataKind = iota
	DataKindI32
)

// Data is one interpreter stack/local/argument cell.
type Data struct {
	Kind DataKind
	Bits uint64
}

// DataFromI32 builds an i32-tagged Data cell.
func DataFromI32(v int32) Data {
	return Data{Kind: DataKindI32, Bits: uint64(uint32(v))}
}

// I32 reinterprets the cell's payload as i32, regardless of Kind — the
// caller is responsible for only doing so when the opcode dictates it.
func (d Data) I32() int32 {
	return int32(uint32(d.Bits))
}

// Frame is one exec() call's interpreter state: an operand stack, 8
// fixed local slots, the argument list, and the current instruction
// index (§4.9).
type Frame struct {
	Stack  []Data
	Locals [8]Data
	Args   []Data
	IP     int
}

func (f *Frame) push(v Data) {
	f.Stack = append(f.Stack, v)
}

func (f *Frame) pop(op Opcode) (Data, error) {
	n := len(f.Stack)
	if n == 0 {
		return Data{}, &StackUnderflowError{IP: f.IP, Op: op}
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v, nil
}

// exec runs a decoded method body to completion or to the first error,
// per §4.9's state machine. An explicit ret always pops — an empty stack
// at that point is a StackUnderflowError, not a void return — but ip
// reaching end-of-code with no ret executed is a valid terminal state
// whatever the stack holds: the top of the stack is returned if there is
// one, otherwise the result is void (nil). stepLimit
// bounds the number of instructions executed before
// StepLimitExceededError; zero means unbounded.
func exec(body *MethodBody, args []Data, stepLimit uint64) (*Data, error) {
	frame := &Frame{Args: args}
	var steps uint64

	for frame.IP < len(body.Instructions) {
		if stepLimit != 0 && steps >= stepLimit {
			return nil, &StepLimitExceededError{Limit: stepLimit}
		}
		steps++

		inst := body.Instructions[frame.IP]
		switch inst.Op {
		case OpNop:
			frame.IP++

		case OpLdarg0:
			if len(frame.Args) < 1 {
				return nil, &InvalidFrameAccessError{IP: frame.IP, Kind: "arg", Index: 0, Size: len(frame.Args)}
			}
			frame.push(frame.Args[0])
			frame.IP++

		case OpLdarg1:
			if len(frame.Args) < 2 {
				return nil, &InvalidFrameAccessError{IP: frame.IP, Kind: "arg", Index: 1, Size: len(frame.Args)}
			}
			frame.push(frame.Args[1])
			frame.IP++

		case OpLdloc0:
			frame.push(frame.Locals[0])
			frame.IP++

		case OpLdloc1:
			frame.push(frame.Locals[1])
			frame.IP++

		case OpStloc0:
			v, err := frame.pop(inst.Op)
			if err != nil {
				return nil, err
			}
			frame.Locals[0] = v
			frame.IP++

		case OpLdcI4:
			frame.push(DataFromI32(inst.Operand.I32))
			frame.IP++

		case OpLdcI40:
			frame.push(DataFromI32(0))
			frame.IP++

		case OpCall:
			// Not executed in this subset; reserved (§4.9).
			frame.IP++

		case OpRet:
			v, err := frame.pop(inst.Op)
			if err != nil {
				return nil, err
			}
			return &v, nil

		case OpBrS:
			nextOffset := body.nextInstructionOffset(frame.IP)
			target := nextOffset + int(inst.Operand.I8)
			idx, ok := body.resolveBranch(target)
			if !ok {
				return nil, &InvalidBranchError{IP: frame.IP, Target: target}
			}
			frame.IP = idx

		case OpAdd:
			// Operand order is (second-popped) + (first-popped); for
			// commutative add this is unobservable but documented here
			// per §4.9's tie-break.
			firstPopped, err := frame.pop(inst.Op)
			if err != nil {
				return nil, err
			}
			secondPopped, err := frame.pop(inst.Op)
			if err != nil {
				return nil, err
			}
			frame.push(DataFromI32(secondPopped.I32() + firstPopped.I32()))
			frame.IP++

		default:
			return nil, &UnknownOpcodeError{Byte: byte(inst.Op), IP: frame.IP}
		}
	}

	// Implicit return: ip reached end-of-code with no ret instruction.
	if len(frame.Stack) == 0 {
		return nil, nil
	}
	v, err := frame.pop(OpRet)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
