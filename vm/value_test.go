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

import "testing"

func TestAddWrapsAtWidth(t *testing.T) {
	cases := []struct {
		mode Mode
		l, r Value
		want uint64 // result read at the mode width, zero-extended
	}{
		{ModeU8, 200, 100, 44},
		{ModeU16, 0xFFFF, 2, 1},
		{ModeU32, 0xFFFFFFFF, 1, 0},
		{ModeU64, ^Value(0), 1, 0},
		{ModeI8, 127, 1, 0x80},
	}
	for _, tc := range cases {
		res, code := applyBinary(OpAdd, tc.mode, tc.l, tc.r)
		if code != TrapNone {
			t.Fatalf("ADD mode 0x%02x: trap 0x%02x", uint8(tc.mode), uint16(code))
		}
		if got := maskAt(res, tc.mode); got != tc.want {
			t.Errorf("ADD mode 0x%02x: got 0x%x; want 0x%x", uint8(tc.mode), got, tc.want)
		}
	}
}

// maskAt reads a result at the width its mode selects; the high bits of a
// narrower payload are unspecified.
func maskAt(v Value, mode Mode) uint64 {
	switch mode {
	case ModeU8, ModeI8:
		return uint64(v.U8())
	case ModeU16, ModeI16:
		return uint64(v.U16())
	case ModeU32, ModeI32:
		return uint64(v.U32())
	}
	return v.U64()
}

func TestAddSubRoundTrip(t *testing.T) {
	// PUSH a; PUSH b; ADD_w; PUSH b; SUB_w leaves a mod 2^w.
	for _, mode := range []Mode{ModeU8, ModeU16, ModeU32, ModeU64} {
		a, b := Value(0xFEDC), Value(0x1234)
		sum, code := applyBinary(OpAdd, mode, a, b)
		if code != TrapNone {
			t.Fatalf("ADD: trap 0x%02x", uint16(code))
		}
		diff, code := applyBinary(OpSub, mode, sum, b)
		if code != TrapNone {
			t.Fatalf("SUB: trap 0x%02x", uint16(code))
		}
		if maskAt(diff, mode) != maskAt(a, mode) {
			t.Errorf("mode 0x%02x: (a+b)-b = 0x%x; want 0x%x", uint8(mode), maskAt(diff, mode), maskAt(a, mode))
		}
	}
}

func TestSignedDivision(t *testing.T) {
	res, code := applyBinary(OpDiv, ModeI16, Value(uint64(0xFFFFFFFFFFFFFFF8)), Value(2)) // -8 / 2
	if code != TrapNone {
		t.Fatalf("DIV i16: trap 0x%02x", uint16(code))
	}
	if res.I16() != -4 {
		t.Errorf("DIV i16: got %d; want -4", res.I16())
	}

	// The most negative dividend over -1 wraps to itself.
	res, code = applyBinary(OpDiv, ModeI8, Value(0x80), Value(0xFF))
	if code != TrapNone {
		t.Fatalf("DIV i8 overflow: trap 0x%02x", uint16(code))
	}
	if res.I8() != -128 {
		t.Errorf("DIV i8 overflow: got %d; want -128", res.I8())
	}
}

func TestDivideByZeroAtWidth(t *testing.T) {
	// The right operand is zero only at the selected width.
	_, code := applyBinary(OpDiv, ModeU8, Value(10), Value(0x100))
	if code != TrapDivideByZero {
		t.Errorf("DIV u8 by 0x100: got 0x%02x; want 0x15", uint16(code))
	}
	if _, code = applyBinary(OpDiv, ModeU16, Value(10), Value(0x100)); code != TrapNone {
		t.Errorf("DIV u16 by 0x100: unexpected trap 0x%02x", uint16(code))
	}
}

func TestNotInvolution(t *testing.T) {
	for _, mode := range []Mode{ModeU8, ModeU16, ModeU32, ModeU64} {
		x := Value(0x5AA55AA55AA55AA5)
		once, code := applyUnary(mode, x)
		if code != TrapNone {
			t.Fatalf("NOT: trap 0x%02x", uint16(code))
		}
		twice, code := applyUnary(mode, once)
		if code != TrapNone {
			t.Fatalf("NOT NOT: trap 0x%02x", uint16(code))
		}
		if maskAt(twice, mode) != maskAt(x, mode) {
			t.Errorf("mode 0x%02x: ^^x = 0x%x; want 0x%x", uint8(mode), maskAt(twice, mode), maskAt(x, mode))
		}
	}
}

func TestFloatArithmetic(t *testing.T) {
	res, code := applyBinary(OpAdd, ModeF64, F64Value(1.5), F64Value(2.25))
	if code != TrapNone {
		t.Fatalf("ADD f64: trap 0x%02x", uint16(code))
	}
	if res.F64() != 3.75 {
		t.Errorf("ADD f64: got %v; want 3.75", res.F64())
	}

	res, code = applyBinary(OpMul, ModeF32, F32Value(0.5), F32Value(8))
	if code != TrapNone {
		t.Fatalf("MUL f32: trap 0x%02x", uint16(code))
	}
	if res.F32() != 4 {
		t.Errorf("MUL f32: got %v; want 4", res.F32())
	}
}

func TestFloatComparisonProduces1And0(t *testing.T) {
	res, code := applyBinary(OpLt, ModeF64, F64Value(1), F64Value(2))
	if code != TrapNone {
		t.Fatalf("LT f64: trap 0x%02x", uint16(code))
	}
	if res.F64() != 1 {
		t.Errorf("LT f64 true: got %v; want 1.0", res.F64())
	}
	res, _ = applyBinary(OpLt, ModeF64, F64Value(2), F64Value(1))
	if res.F64() != 0 {
		t.Errorf("LT f64 false: got %v; want 0.0", res.F64())
	}
}

func TestIntegerComparisons(t *testing.T) {
	cases := []struct {
		op   Opcode
		l, r Value
		want uint64
	}{
		{OpEq, 5, 5, 1},
		{OpEq, 5, 6, 0},
		{OpNeq, 5, 6, 1},
		{OpLt, 3, 7, 1},
		{OpLt, 7, 3, 0},
		{OpLe, 3, 3, 1},
		{OpGt, 7, 3, 1},
		{OpGe, 3, 7, 0},
	}
	for _, tc := range cases {
		res, code := applyBinary(tc.op, ModeU32, tc.l, tc.r)
		if code != TrapNone {
			t.Fatalf("%s: trap 0x%02x", tc.op, uint16(code))
		}
		if uint64(res.U32()) != tc.want {
			t.Errorf("%s(%d,%d): got %d; want %d", tc.op, tc.l, tc.r, res.U32(), tc.want)
		}
	}
}

func TestSignedComparison(t *testing.T) {
	// -1 < 1 as i8, but 0xFF > 0x01 as u8.
	res, _ := applyBinary(OpLt, ModeI8, Value(0xFF), Value(1))
	if res.U8() != 1 {
		t.Errorf("LT i8(-1,1): got %d; want 1", res.U8())
	}
	res, _ = applyBinary(OpLt, ModeU8, Value(0xFF), Value(1))
	if res.U8() != 0 {
		t.Errorf("LT u8(255,1): got %d; want 0", res.U8())
	}
}

func TestFloatModeRejection(t *testing.T) {
	for _, op := range []Opcode{OpMod, OpAnd, OpOr, OpXor} {
		if _, code := applyBinary(op, ModeF32, 0, 0); code != TrapUnknownMode {
			t.Errorf("%s f32: got 0x%02x; want 0x13", op, uint16(code))
		}
		if _, code := applyBinary(op, ModeF64, 0, 0); code != TrapUnknownMode {
			t.Errorf("%s f64: got 0x%02x; want 0x13", op, uint16(code))
		}
	}
	if _, code := applyUnary(ModeF64, 0); code != TrapUnknownMode {
		t.Errorf("NOT f64: got 0x%02x; want 0x13", uint16(code))
	}
}

func TestUndefinedWidthMode(t *testing.T) {
	if _, code := applyBinary(OpAdd, Mode(0x0A), 1, 2); code != TrapUnknownMode {
		t.Errorf("ADD mode 0x0A: got 0x%02x; want 0x13", uint16(code))
	}
}

func TestBitwiseAtWidth(t *testing.T) {
	res, code := applyBinary(OpXor, ModeU8, Value(0xF0F0), Value(0x00FF))
	if code != TrapNone {
		t.Fatalf("XOR u8: trap 0x%02x", uint16(code))
	}
	if res.U8() != 0x0F {
		t.Errorf("XOR u8: got 0x%02x; want 0x0F", res.U8())
	}
	res, _ = applyBinary(OpAnd, ModeU16, Value(0xFF00), Value(0x0FF0))
	if res.U16() != 0x0F00 {
		t.Errorf("AND u16: got 0x%04x; want 0x0F00", res.U16())
	}
	res, _ = applyBinary(OpOr, ModeU32, Value(0xF0), Value(0x0F))
	if res.U32() != 0xFF {
		t.Errorf("OR u32: got 0x%x; want 0xFF", res.U32())
	}
}

func TestOpcodeString(t *testing.T) {
	cases := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpHalt, "HALT"},
		{OpClrs, "CLRS"},
		{OpPstate, "PSTATE"},
		{OpPush, "PUSH"},
		{OpAdd, "ADD"},
		{OpXor, "XOR"},
		{OpGe, "GE"},
		{OpNot, "NOT"},
		{OpJmp, "JMP"},
		{OpCall, "CALL"},
		{OpRet, "RET"},
		{OpLoad, "LOAD"},
		{OpStore, "STORE"},
		{OpPseg, "PSEG"},
		{OpSethdlr, "SETHDLR"},
		{OpSeterr, "SETERR"},
		{OpClrerr, "CLRERR"},
		{OpFfiLibLoad, "FFI_LIB_LOAD"},
		{OpFfiCall, "FFI_CALL"},
		{Opcode(0xEE), "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.op.String(); got != tc.want {
			t.Errorf("Opcode(0x%02x).String() = %q; want %q", uint8(tc.op), got, tc.want)
		}
	}
}
