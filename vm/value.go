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

import "math"

// Mode is the 8-bit instruction field selecting the operand width of a
// numeric operation, the encoding of an extended immediate, or the operand
// variant of CALL and SETERR. Nothing on the wire identifies the type of a
// pushed value; the mode of the consuming instruction decides how the 64-bit
// payload is read.
type Mode uint8

const (
	ModeU8  Mode = 0x00
	ModeU16 Mode = 0x01
	ModeU32 Mode = 0x02
	ModeU64 Mode = 0x03
	ModeI8  Mode = 0x04
	ModeI16 Mode = 0x05
	ModeI32 Mode = 0x06
	ModeI64 Mode = 0x07
	ModeF32 Mode = 0x08
	ModeF64 Mode = 0x09
)

// Immediate-encoding selectors for opcodes carrying an extended immediate,
// and the operand variants of CALL and SETERR.
const (
	immShort   Mode = 0x00 // value is the 16-bit short immediate
	immShort1  Mode = 0x01 // alias of immShort (CALL/SETERR variant slot)
	immWord    Mode = 0x02 // next 4 bytes, little-endian
	immQuad    Mode = 0x03 // next 8 bytes, little-endian
	immInline  Mode = 0x04 // PUSH only: imm16 inline bytes follow the word
	callStack  Mode = 0x01 // CALL: target popped from the data stack
	errOffset  Mode = 0x00 // SETERR: message addressed by segment offset
	errPointer Mode = 0x01 // SETERR: message addressed by raw pointer
)

// Value is a single stack cell: a 64-bit payload whose interpretation is
// chosen by the mode of the instruction consuming it. The high bits of a
// narrower payload are unspecified; accessors read only the selected width.
type Value uint64

func (v Value) U8() uint8   { return uint8(v) }
func (v Value) U16() uint16 { return uint16(v) }
func (v Value) U32() uint32 { return uint32(v) }
func (v Value) U64() uint64 { return uint64(v) }
func (v Value) I8() int8    { return int8(v) }
func (v Value) I16() int16  { return int16(v) }
func (v Value) I32() int32  { return int32(v) }
func (v Value) I64() int64  { return int64(v) }

// F32 reinterprets the low 32 bits as an IEEE-754 single.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v)) }

// F64 reinterprets the payload as an IEEE-754 double.
func (v Value) F64() float64 { return math.Float64frombits(uint64(v)) }

// Offset reads the payload as a byte offset into the code segment.
func (v Value) Offset() uint64 { return uint64(v) }

// F32Value stores an IEEE-754 single in the low 32 bits of a cell.
func F32Value(f float32) Value { return Value(math.Float32bits(f)) }

// F64Value stores an IEEE-754 double in a cell.
func F64Value(f float64) Value { return Value(math.Float64bits(f)) }

// integer and number are the private type sets behind the width dispatch.
// One generic body per operand family replaces the ten-case-per-opcode
// matrix the wire format implies.
type integer interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

type float interface {
	~float32 | ~float64
}

// applyBinary evaluates a binary arithmetic, bitwise or comparison opcode on
// two cells at the width selected by mode. It returns the result cell and
// TrapNone, or a trap code (TrapUnknownMode for an undefined width or a
// float width on an integer-only opcode, TrapDivideByZero for DIV/MOD with a
// zero right operand at the selected width).
func applyBinary(op Opcode, mode Mode, left, right Value) (Value, TrapCode) {
	if op.floatRejected() && (mode == ModeF32 || mode == ModeF64) {
		return 0, TrapUnknownMode
	}
	switch mode {
	case ModeU8:
		return binInt(op, left.U8(), right.U8())
	case ModeU16:
		return binInt(op, left.U16(), right.U16())
	case ModeU32:
		return binInt(op, left.U32(), right.U32())
	case ModeU64:
		return binInt(op, left.U64(), right.U64())
	case ModeI8:
		return binInt(op, left.I8(), right.I8())
	case ModeI16:
		return binInt(op, left.I16(), right.I16())
	case ModeI32:
		return binInt(op, left.I32(), right.I32())
	case ModeI64:
		return binInt(op, left.I64(), right.I64())
	case ModeF32:
		return binFloat(op, left.F32(), right.F32())
	case ModeF64:
		return binFloat(op, left.F64(), right.F64())
	}
	return 0, TrapUnknownMode
}

// applyUnary evaluates NOT at the width selected by mode.
func applyUnary(mode Mode, left Value) (Value, TrapCode) {
	switch mode {
	case ModeU8:
		return Value(^left.U8()), TrapNone
	case ModeU16:
		return Value(^left.U16()), TrapNone
	case ModeU32:
		return Value(^left.U32()), TrapNone
	case ModeU64:
		return Value(^left.U64()), TrapNone
	case ModeI8:
		return Value(^left.I8()), TrapNone
	case ModeI16:
		return Value(^left.I16()), TrapNone
	case ModeI32:
		return Value(^left.I32()), TrapNone
	case ModeI64:
		return Value(^left.I64()), TrapNone
	}
	return 0, TrapUnknownMode
}

// binInt is the integer-width operation body. Arithmetic wraps with two's
// complement modular semantics at the operand width; comparisons produce
// 1 or 0 stored at that width.
func binInt[T integer](op Opcode, l, r T) (Value, TrapCode) {
	switch op {
	case OpAdd:
		return Value(l + r), TrapNone
	case OpSub:
		return Value(l - r), TrapNone
	case OpMul:
		return Value(l * r), TrapNone
	case OpDiv:
		if r == 0 {
			return 0, TrapDivideByZero
		}
		return Value(l / r), TrapNone
	case OpMod:
		if r == 0 {
			return 0, TrapDivideByZero
		}
		return Value(l % r), TrapNone
	case OpAnd:
		return Value(l & r), TrapNone
	case OpOr:
		return Value(l | r), TrapNone
	case OpXor:
		return Value(l ^ r), TrapNone
	case OpNeq:
		return intBool[T](l != r), TrapNone
	case OpEq:
		return intBool[T](l == r), TrapNone
	case OpLt:
		return intBool[T](l < r), TrapNone
	case OpLe:
		return intBool[T](l <= r), TrapNone
	case OpGt:
		return intBool[T](l > r), TrapNone
	case OpGe:
		return intBool[T](l >= r), TrapNone
	}
	return 0, TrapUnknownMode
}

// binFloat is the float-width operation body; results follow IEEE-754
// default rounding. The integer-only opcodes never reach it.
func binFloat[T float](op Opcode, l, r T) (Value, TrapCode) {
	switch op {
	case OpAdd:
		return floatCell(l + r), TrapNone
	case OpSub:
		return floatCell(l - r), TrapNone
	case OpMul:
		return floatCell(l * r), TrapNone
	case OpDiv:
		if r == 0 {
			return 0, TrapDivideByZero
		}
		return floatCell(l / r), TrapNone
	case OpNeq:
		return floatBool[T](l != r), TrapNone
	case OpEq:
		return floatBool[T](l == r), TrapNone
	case OpLt:
		return floatBool[T](l < r), TrapNone
	case OpLe:
		return floatBool[T](l <= r), TrapNone
	case OpGt:
		return floatBool[T](l > r), TrapNone
	case OpGe:
		return floatBool[T](l >= r), TrapNone
	}
	return 0, TrapUnknownMode
}

func intBool[T integer](b bool) Value {
	if b {
		return Value(T(1))
	}
	return Value(T(0))
}

func floatBool[T float](b bool) Value {
	if b {
		return floatCell(T(1))
	}
	return floatCell(T(0))
}

func floatCell[T float](v T) Value {
	switch f := any(v).(type) {
	case float32:
		return F32Value(f)
	case float64:
		return F64Value(f)
	}
	return 0
}
