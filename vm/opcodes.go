// Copyright 2024 The chanequevm Authors
// This file is part of chanequevm.
//
// chanequevm is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chanequevm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with chanequevm. If not, see <http://www.gnu.org/licenses/>.

// Package vm implements the chaneque stack-based bytecode virtual machine.
//
// A program image is a flat little-endian byte stream of 4-byte instruction
// words [opcode:8][mode:8][imm16:16], optionally followed by extended
// immediate bytes selected by the mode field. The image doubles as the
// program-visible memory: jump targets, LOAD/STORE addresses and inline
// string operands are all byte offsets into the same code segment.
package vm

// Opcode is the 8-bit instruction code occupying the first byte of every
// instruction word. The numeric values are the wire encoding and must not
// change.
type Opcode uint8

const (
	// ---- Nullary control / diagnostics -------------------------------------

	// OpNop does nothing.
	OpNop Opcode = 0x00
	// OpHalt stops execution; the VM cannot be stepped afterwards.
	OpHalt Opcode = 0x01
	// OpClrs drains the data stack.
	OpClrs Opcode = 0x02
	// OpPstate emits the full VM state to the diagnostic channel.
	OpPstate Opcode = 0x03

	// ---- Data-stack manipulation -------------------------------------------

	// OpPush pushes the decoded immediate onto the data stack.
	OpPush Opcode = 0x04
	// OpPop discards the top of the data stack (no-op when empty).
	OpPop Opcode = 0x05
	// OpSwap exchanges the two topmost data-stack entries.
	OpSwap Opcode = 0x06
	// OpRot3 rotates the three topmost entries [a,b,c] -> [c,a,b].
	OpRot3 Opcode = 0x07

	// ---- Binary arithmetic / bitwise / comparison --------------------------
	// All pop right then left and push one result at the mode-selected width.

	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpDiv Opcode = 0x12
	OpMul Opcode = 0x13
	OpMod Opcode = 0x14
	OpAnd Opcode = 0x15
	OpOr  Opcode = 0x1A
	OpXor Opcode = 0x1B
	OpNeq Opcode = 0x1C
	OpEq  Opcode = 0x1D
	OpLt  Opcode = 0x1F
	OpLe  Opcode = 0x20
	OpGt  Opcode = 0x21
	OpGe  Opcode = 0x22

	// ---- Unary and conditional transfer ------------------------------------

	// OpNot pops one operand and pushes its bitwise complement at the
	// mode-selected width. Float modes are rejected.
	OpNot Opcode = 0x30
	// OpJnz pops one operand, branches when it is non-zero (64-bit view) and
	// pushes the operand back in either case.
	OpJnz Opcode = 0x31
	// OpJz is OpJnz with the inverted predicate.
	OpJz Opcode = 0x32
	// OpJmp branches unconditionally; the data stack is untouched.
	OpJmp Opcode = 0x33

	// ---- Subroutines -------------------------------------------------------

	// OpCall pushes the successor offset onto the call stack and branches.
	// Mode 0x01 takes the target from the data stack instead of the
	// immediate.
	OpCall Opcode = 0x35
	// OpRet pops the call stack and branches to the popped offset.
	OpRet Opcode = 0x36

	// ---- Scratch chunks ----------------------------------------------------

	// OpResv allocates a zeroed scratch chunk of imm bytes and pushes it
	// onto the chunk stack.
	OpResv Opcode = 0x40
	// OpFree pops the chunk stack and releases the chunk.
	OpFree Opcode = 0x41
	// OpBulk pops (right=count, left=src offset) and copies count bytes from
	// the code segment into the topmost chunk.
	OpBulk Opcode = 0x42

	// ---- Byte memory over the code segment ---------------------------------

	// OpLoad reads the byte at code[imm] and pushes it zero-extended.
	OpLoad Opcode = 0x43
	// OpStore pops the data stack and writes the low byte to code[imm].
	OpStore Opcode = 0x44
	// OpPseg pops (right=offset, left=count) and hex-dumps count bytes
	// starting at code[offset] to the diagnostic channel.
	OpPseg Opcode = 0x45

	// ---- Error handling ----------------------------------------------------

	// OpSethdlr installs the error-handler offset; 0 disables the handler.
	OpSethdlr Opcode = 0x50
	// OpSeterr raises a user error whose code is the short immediate and
	// whose message is addressed by the popped operand (mode 0x00: segment
	// offset, mode 0x01: raw pointer inside the segment).
	OpSeterr Opcode = 0x51
	// OpClrerr discards the pending error and its owned message.
	OpClrerr Opcode = 0x52

	// ---- Foreign function interface ----------------------------------------

	// OpFfiLibLoad pops a segment offset naming a shared library, opens it
	// lazily and selects it.
	OpFfiLibLoad Opcode = 0x60
	// OpFfiLibSelect pops a library index and makes it current.
	OpFfiLibSelect Opcode = 0x61
	// OpFfiMakeExtern pops (store target offset, symbol name offset, argc),
	// resolves the symbol in the current library, mints a trampoline and
	// records its entry address at code[store target offset].
	OpFfiMakeExtern Opcode = 0x62
	// OpFfiMakeDone seals the trampoline arena read+execute; minting is
	// impossible afterwards.
	OpFfiMakeDone Opcode = 0x63
	// OpFfiCall transfers control to the trampoline whose entry address is
	// recorded at code[imm].
	OpFfiCall Opcode = 0x64
)

// opcodeInfo groups the mnemonic, the number of operands popped uniformly
// before dispatch (the stack-arity group of the opcode) and whether the
// opcode resolves an extended immediate.
type opcodeInfo struct {
	name      string
	stackArgs int
	immediate bool
}

// opcodeTable maps every defined opcode to its metadata. Opcodes that pop
// inside their own handler (STORE, SETERR, the FFI group) have stackArgs 0
// here because their underflow traps differ from the uniform group codes.
var opcodeTable = [256]opcodeInfo{
	OpNop:    {name: "NOP"},
	OpHalt:   {name: "HALT"},
	OpClrs:   {name: "CLRS"},
	OpPstate: {name: "PSTATE"},
	OpPush:   {name: "PUSH", immediate: true},
	OpPop:    {name: "POP"},
	OpSwap:   {name: "SWAP"},
	OpRot3:   {name: "ROT3"},

	OpAdd: {name: "ADD", stackArgs: 2},
	OpSub: {name: "SUB", stackArgs: 2},
	OpDiv: {name: "DIV", stackArgs: 2},
	OpMul: {name: "MUL", stackArgs: 2},
	OpMod: {name: "MOD", stackArgs: 2},
	OpAnd: {name: "AND", stackArgs: 2},
	OpOr:  {name: "OR", stackArgs: 2},
	OpXor: {name: "XOR", stackArgs: 2},
	OpNeq: {name: "NEQ", stackArgs: 2},
	OpEq:  {name: "EQ", stackArgs: 2},
	OpLt:  {name: "LT", stackArgs: 2},
	OpLe:  {name: "LE", stackArgs: 2},
	OpGt:  {name: "GT", stackArgs: 2},
	OpGe:  {name: "GE", stackArgs: 2},

	OpNot: {name: "NOT", stackArgs: 1},
	OpJnz: {name: "JNZ", stackArgs: 1, immediate: true},
	OpJz:  {name: "JZ", stackArgs: 1, immediate: true},
	OpJmp: {name: "JMP", immediate: true},

	OpCall: {name: "CALL", immediate: true},
	OpRet:  {name: "RET"},

	OpResv: {name: "RESV", immediate: true},
	OpFree: {name: "FREE"},
	OpBulk: {name: "BULK", stackArgs: 2},

	OpLoad:  {name: "LOAD", immediate: true},
	OpStore: {name: "STORE", immediate: true},
	OpPseg:  {name: "PSEG", stackArgs: 2},

	OpSethdlr: {name: "SETHDLR", immediate: true},
	OpSeterr:  {name: "SETERR"},
	OpClrerr:  {name: "CLRERR"},

	OpFfiLibLoad:    {name: "FFI_LIB_LOAD"},
	OpFfiLibSelect:  {name: "FFI_LIB_SELECT"},
	OpFfiMakeExtern: {name: "FFI_MAKE_EXTERN"},
	OpFfiMakeDone:   {name: "FFI_MAKE_DONE"},
	OpFfiCall:       {name: "FFI_CALL", immediate: true},
}

// String returns the mnemonic name of the opcode, suitable for trap messages
// and trace output.
func (op Opcode) String() string {
	if opcodeTable[op].name == "" {
		return "UNKNOWN"
	}
	return opcodeTable[op].name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return opcodeTable[op].name != ""
}

// StackArgs returns the number of operands popped uniformly before dispatch:
// 2 for the binary group (right then left), 1 for the unary group.
func (op Opcode) StackArgs() int {
	return opcodeTable[op].stackArgs
}

// HasImmediate reports whether the opcode resolves an extended immediate
// after its operands are popped.
func (op Opcode) HasImmediate() bool {
	return opcodeTable[op].immediate
}

// floatRejected reports whether the opcode refuses the f32/f64 width modes.
func (op Opcode) floatRejected() bool {
	switch op {
	case OpMod, OpAnd, OpOr, OpXor, OpNot:
		return true
	}
	return false
}
