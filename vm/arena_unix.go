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

//go:build unix

package vm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// trampolineAlign keeps every minted entry point on a 16-byte boundary.
const trampolineAlign = 16

// Arena is the W^X trampoline page: an anonymous mapping that starts
// read+write, accepts trampoline bodies, and transitions exactly once to
// read+execute. The writable and executable phases are disjoint in time.
type Arena struct {
	mem    []byte
	used   int
	sealed bool
}

// newArena maps the arena read+write. size is rounded up to the host page
// size; 0 means one page.
func newArena(size int) (*Arena, error) {
	page := unix.Getpagesize()
	if size <= 0 {
		size = page
	}
	size = (size + page - 1) &^ (page - 1)
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Arena{mem: mem}, nil
}

// Append copies a trampoline body into the arena and returns its entry
// address. It fails with ErrArenaFrozen after Seal and with ErrArenaFull
// when the page cannot hold the body.
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

// Seal lowers the arena permissions to read+execute. The transition is
// one-way; no trampoline may be minted afterwards.
func (a *Arena) Seal() error {
	if a.sealed {
		return nil
	}
	if err := unix.Mprotect(a.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return err
	}
	a.sealed = true
	return nil
}

// Sealed reports whether the arena is in its executable phase.
func (a *Arena) Sealed() bool { return a.sealed }

// Contains reports whether p points into the arena's minted region.
func (a *Arena) Contains(p uintptr) bool {
	if len(a.mem) == 0 || a.used == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(&a.mem[0]))
	return p >= base && p < base+uintptr(a.used)
}

// Used returns the number of minted bytes.
func (a *Arena) Used() int { return a.used }

// Close unmaps the arena.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}
