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

//go:build arm64

package vm

import (
	"encoding/binary"
	"testing"
)

func TestTrampolineEncoding(t *testing.T) {
	code := emitTrampoline(0x1122334455667788)
	if len(code) != 9*4 {
		t.Fatalf("trampoline length: got %d; want 36", len(code))
	}
	words := make([]uint32, 9)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != 0xa9bf7bfd || words[1] != 0x910003fd {
		t.Errorf("prologue: got %08x %08x", words[0], words[1])
	}
	// movz/movk carry the target address in 16-bit chunks.
	for i, want := range []uint32{0x7788, 0x5566, 0x3344, 0x1122} {
		if got := words[2+i] >> 5 & 0xffff; got != want {
			t.Errorf("address chunk %d: got 0x%04x; want 0x%04x", i, got, want)
		}
	}
	if words[6] != 0xd63f0200 {
		t.Errorf("blr x16: got %08x", words[6])
	}
	if words[7] != 0xa8c17bfd || words[8] != 0xd65f03c0 {
		t.Errorf("epilogue: got %08x %08x", words[7], words[8])
	}
}
