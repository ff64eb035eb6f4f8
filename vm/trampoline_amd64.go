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

//go:build amd64

package vm

import "encoding/binary"

// emitTrampoline encodes a System V AMD64 trampoline that forwards its
// arguments untouched to target. The VM pointer arrives in rdi and stays
// there across the prologue, so the resolved function receives it as its
// first argument.
func emitTrampoline(target uintptr) []byte {
	code := make([]byte, 0, 24)
	code = append(code, 0x55)             // push rbp
	code = append(code, 0x48, 0x89, 0xe5) // mov rbp, rsp
	code = append(code, 0x48, 0xb8)       // mov rax, imm64
	var addr [8]byte
	binary.LittleEndian.PutUint64(addr[:], uint64(target))
	code = append(code, addr[:]...)
	code = append(code, 0xff, 0xd0) // call rax
	code = append(code, 0x5d)       // pop rbp
	code = append(code, 0xc3)       // ret
	return code
}
