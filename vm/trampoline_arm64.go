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

import "encoding/binary"

// emitTrampoline encodes an AAPCS64 trampoline that forwards its arguments
// untouched to target. The VM pointer arrives in x0 and is not disturbed;
// x16 is the intra-procedure scratch register reserved for exactly this
// kind of veneer.
func emitTrampoline(target uintptr) []byte {
	t := uint64(target)
	words := []uint32{
		0xa9bf7bfd,                           // stp x29, x30, [sp, #-16]!
		0x910003fd,                           // mov x29, sp
		0xd2800010 | uint32(t&0xffff)<<5,     // movz x16, #t[15:0]
		0xf2a00010 | uint32(t>>16&0xffff)<<5, // movk x16, #t[31:16], lsl #16
		0xf2c00010 | uint32(t>>32&0xffff)<<5, // movk x16, #t[47:32], lsl #32
		0xf2e00010 | uint32(t>>48&0xffff)<<5, // movk x16, #t[63:48], lsl #48
		0xd63f0200,                           // blr x16
		0xa8c17bfd,                           // ldp x29, x30, [sp], #16
		0xd65f03c0,                           // ret
	}
	code := make([]byte, 0, len(words)*4)
	for _, w := range words {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		code = append(code, b[:]...)
	}
	return code
}
