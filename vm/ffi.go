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
	"unsafe"
)

// ErrArenaFrozen is returned when trampoline minting is attempted after the
// arena became executable.
var ErrArenaFrozen = errors.New("vm: ffi arena is frozen")

// ErrArenaFull is returned when the arena page cannot hold another
// trampoline.
var ErrArenaFull = errors.New("vm: ffi arena exhausted")

// library is one open shared-library handle. Handles are owned by the VM
// and closed in reverse open order at teardown.
type library struct {
	name   string
	handle uintptr
}

// Extern describes one resolved foreign function: the symbol name, the
// declared argument count and the entry address of its minted trampoline.
type Extern struct {
	Name  string
	Argc  int
	Entry uintptr
}

// loader abstracts the host dynamic loader so the FFI opcode semantics can
// be exercised without touching libdl.
type loader interface {
	open(name string) (uintptr, error)
	sym(handle uintptr, name string) (uintptr, error)
	close(handle uintptr) error
	call(entry uintptr, arg unsafe.Pointer)
}

// opFfiLibLoad pops a segment offset addressing a NUL-terminated library
// name, opens the library lazily, pushes the handle onto the library stack
// and makes it the current library.
func (vm *VM) opFfiLibLoad() error {
	v, err := vm.data.Pop()
	if err != nil {
		return vm.fail(TrapMissingUnaryOperand, "missing library name operand")
	}
	name, err := vm.seg.CString(v.Offset())
	if err != nil {
		return vm.fail(TrapMemoryViolation, "cannot read library name at %d: %v", v.Offset(), err)
	}
	handle, err := vm.loader.open(name)
	if err != nil {
		return vm.fail(TrapLibraryOpen, "cannot open library %q: %v", name, err)
	}
	vm.libs = append(vm.libs, &library{name: name, handle: handle})
	vm.current = len(vm.libs) - 1
	vm.logger.Debug("Opened shared library", "name", name, "index", vm.current)
	return nil
}

// opFfiLibSelect pops a library index and makes it current.
func (vm *VM) opFfiLibSelect() error {
	v, err := vm.data.Pop()
	if err != nil {
		return vm.fail(TrapMissingUnaryOperand, "missing library index operand")
	}
	idx := int(v.U64())
	if idx < 0 || idx >= len(vm.libs) {
		return vm.fail(TrapLibraryOpen, "library index %d out of range (%d open)", idx, len(vm.libs))
	}
	vm.current = idx
	return nil
}

// opFfiMakeExtern pops (store target offset, symbol name offset, argc) in
// that order, resolves the symbol in the current library, mints a trampoline
// in the arena and records its entry address as a 64-bit little-endian word
// at code[store target offset].
func (vm *VM) opFfiMakeExtern() error {
	store, err := vm.data.Pop()
	if err != nil {
		return vm.fail(TrapMissingUnaryOperand, "missing store target operand")
	}
	symOff, err := vm.data.Pop()
	if err != nil {
		return vm.fail(TrapMissingUnaryOperand, "missing symbol name operand")
	}
	argc, err := vm.data.Pop()
	if err != nil {
		return vm.fail(TrapMissingUnaryOperand, "missing argc operand")
	}
	if vm.arena.Sealed() {
		return vm.fail(TrapArenaFrozen, "FFI_MAKE_EXTERN after FFI_MAKE_DONE")
	}
	if vm.current < 0 || vm.current >= len(vm.libs) {
		return vm.fail(TrapSymbolResolve, "no library selected")
	}
	name, err := vm.seg.CString(symOff.Offset())
	if err != nil {
		return vm.fail(TrapMemoryViolation, "cannot read symbol name at %d: %v", symOff.Offset(), err)
	}
	lib := vm.libs[vm.current]
	target, err := vm.loader.sym(lib.handle, name)
	if err != nil {
		return vm.fail(TrapSymbolResolve, "cannot resolve %q in %q: %v", name, lib.name, err)
	}
	code := emitTrampoline(target)
	if code == nil {
		return vm.fail(TrapSymbolResolve, "no trampoline encoding for this host")
	}
	entry, err := vm.arena.Append(code)
	if err != nil {
		return vm.fail(TrapArenaFrozen, "cannot mint trampoline for %q: %v", name, err)
	}
	if err := vm.seg.SetQuad(store.Offset(), uint64(entry)); err != nil {
		return vm.fail(TrapMemoryViolation, "cannot record trampoline entry: %v", err)
	}
	vm.invalidateDecode()
	vm.externs = append(vm.externs, &Extern{Name: name, Argc: int(argc.U64()), Entry: entry})
	vm.logger.Debug("Minted trampoline", "symbol", name, "argc", argc.U64(), "entry", entry)
	return nil
}

// opFfiMakeDone flips the arena from writable to executable. The transition
// is one-way; a second FFI_MAKE_DONE is a no-op.
func (vm *VM) opFfiMakeDone() error {
	if vm.arena.Sealed() {
		return nil
	}
	if err := vm.arena.Seal(); err != nil {
		return vm.fail(TrapArenaFrozen, "cannot seal arena: %v", err)
	}
	vm.logger.Debug("Sealed trampoline arena", "externs", len(vm.externs))
	return nil
}

// opFfiCall reads the trampoline entry address recorded at code[imm] and
// transfers control to it, forwarding a pointer to the VM per the host C
// calling convention. The arena must already be executable and the entry
// must point into it.
func (vm *VM) opFfiCall(imm uint64) error {
	entryBits, err := vm.seg.Quad(imm)
	if err != nil {
		return vm.fail(TrapMemoryViolation, "cannot read trampoline entry at %d: %v", imm, err)
	}
	if !vm.arena.Sealed() {
		return vm.fail(TrapArenaFrozen, "FFI_CALL before FFI_MAKE_DONE")
	}
	entry := uintptr(entryBits)
	if !vm.arena.Contains(entry) {
		return vm.fail(TrapUnsafePointer, "entry 0x%x outside trampoline arena", entryBits)
	}
	vm.loader.call(entry, unsafe.Pointer(vm))
	return nil
}
