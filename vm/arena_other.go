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

//go:build !unix

package vm

import "unsafe"

const trampolineAlign = 16

// Arena on hosts without mmap/mprotect: the two-state bookkeeping is kept so
// the opcode semantics stay observable, but the page can never become
// executable and FFI_CALL is unreachable because no loader exists either.
type Arena struct {
	mem    []byte
	used   int
	sealed bool
}

func newArena(size int) (*Arena, error) {
	if size <= 0 {
		size = 4096
	}
	return &Arena{mem: make([]byte, size)}, nil
}

func (a *Arena) Append(code []byte) (uintptr, error) {
	if a.sealed {
		return 0, ErrArenaFrozen
	}
	off := (a.used + trampolineAlign - 1) &^ (trampolineAlign - 1)
	if off+len(code) > len(a.mem) {
		return 0, ErrArenaFull
	}
	copy(a.mem[off:], code)
	a.used = off + len(code)
	return uintptr(unsafe.Pointer(&a.mem[off])), nil
}

func (a *Arena) Seal() error {
	a.sealed = true
	return nil
}

func (a *Arena) Sealed() bool { return a.sealed }

func (a *Arena) Contains(p uintptr) bool {
	if len(a.mem) == 0 || a.used == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(&a.mem[0]))
	return p >= base && p < base+uintptr(a.used)
}

func (a *Arena) Used() int { return a.used }

func (a *Arena) Close() error {
	a.mem = nil
	return nil
}
