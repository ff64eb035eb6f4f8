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

package vm

import (
	"errors"
	"fmt"
)

// ErrHalted is returned when Step is called on a halted VM.
var ErrHalted = errors.New("vm: already halted")

// ErrNoMoreInstructions is returned when the instruction pointer runs past
// the last full instruction word. It halts the VM without consulting the
// error handler.
var ErrNoMoreInstructions = errors.New("vm: no more instructions to read")

// TrapCode identifies an interpreter-raised failure. Codes below 0x100 are
// reserved by the VM; SETERR raises codes chosen by the program, which may
// use the full 16-bit range.
type TrapCode uint16

const (
	// TrapNone means no failure.
	TrapNone TrapCode = 0x00

	// TrapMissingBinaryOperand: a binary-group opcode found fewer than two
	// operands on the data stack.
	TrapMissingBinaryOperand TrapCode = 0x10
	// TrapMissingUnaryOperand: a unary-group opcode (or an FFI opcode
	// popping its own operands) found an empty data stack.
	TrapMissingUnaryOperand TrapCode = 0x11
	// TrapUnknownMode: undefined mode value, float mode on an integer-only
	// opcode, or an unrecognised opcode byte.
	TrapUnknownMode TrapCode = 0x13
	// TrapDivideByZero: DIV/MOD with a zero right operand at the selected
	// width, or RET on an empty call stack.
	TrapDivideByZero TrapCode = 0x15
	// TrapCallStackOverflow: CALL with a full call stack.
	TrapCallStackOverflow TrapCode = 0x16
	// TrapDataStackOverflow: a result push found the data stack full.
	TrapDataStackOverflow TrapCode = 0x20
	// TrapStoreUnderflow: STORE with an empty data stack.
	TrapStoreUnderflow TrapCode = 0x21
	// TrapJumpOutOfBounds: control transfer past code_size-4.
	TrapJumpOutOfBounds TrapCode = 0x22
	// TrapChunkUnderflow: FREE/BULK with an empty chunk stack.
	TrapChunkUnderflow TrapCode = 0x25
	// TrapChunkOverflow: RESV with a full chunk stack.
	TrapChunkOverflow TrapCode = 0x26
	// TrapLibraryOpen: FFI_LIB_LOAD could not open the shared library, or
	// FFI_LIB_SELECT named a library index that does not exist.
	TrapLibraryOpen TrapCode = 0x60
	// TrapSymbolResolve: FFI_MAKE_EXTERN could not resolve the symbol.
	TrapSymbolResolve TrapCode = 0x65
	// TrapArenaFrozen: trampoline minting after FFI_MAKE_DONE, or FFI_CALL
	// before it.
	TrapArenaFrozen TrapCode = 0x66
	// TrapMemoryViolation: unaligned or unterminated inline data, a
	// truncated extended immediate, or a segment access out of range.
	TrapMemoryViolation TrapCode = 0x90
	// TrapUnsafePointer: SETERR with a pointer outside the code segment, or
	// FFI_CALL through an entry address outside the trampoline arena.
	TrapUnsafePointer TrapCode = 0x91
)

// String returns a short description of the trap code.
func (c TrapCode) String() string {
	switch c {
	case TrapMissingBinaryOperand:
		return "missing binary operand"
	case TrapMissingUnaryOperand:
		return "missing unary operand"
	case TrapUnknownMode:
		return "unknown mode"
	case TrapDivideByZero:
		return "division by zero"
	case TrapCallStackOverflow:
		return "call stack overflow"
	case TrapDataStackOverflow:
		return "data stack overflow"
	case TrapStoreUnderflow:
		return "empty data stack on store"
	case TrapJumpOutOfBounds:
		return "jump out of bounds"
	case TrapChunkUnderflow:
		return "no allocated chunk"
	case TrapChunkOverflow:
		return "chunk stack overflow"
	case TrapLibraryOpen:
		return "library open failure"
	case TrapSymbolResolve:
		return "symbol resolution failure"
	case TrapArenaFrozen:
		return "ffi arena frozen"
	case TrapMemoryViolation:
		return "memory safety violation"
	case TrapUnsafePointer:
		return "unsafe pointer"
	}
	return "user error"
}

// Trap is an interpreter-raised failure: a numeric code, the pc at which it
// was raised (already advanced past the faulting instruction) and an owned
// formatted message. It is the error type every failing step returns.
type Trap struct {
	Code    TrapCode
	PC      uint64
	Message string
}

// Error formats the trap the way the diagnostic channel reports it.
func (t *Trap) Error() string {
	return fmt.Sprintf("vm: trap 0x%02x at pc %d: %s", uint16(t.Code), t.PC, t.Message)
}

// newTrap builds a trap with a formatted message.
func newTrap(code TrapCode, pc uint64, format string, args ...interface{}) *Trap {
	return &Trap{Code: code, PC: pc, Message: fmt.Sprintf(format, args...)}
}
