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

import "encoding/binary"

// decodeCacheEntries bounds the pc-keyed cache of resolved instructions.
const decodeCacheEntries = 1024

// instruction is one fully decoded instruction: the word fields plus the
// resolved extended immediate and the successor offset.
type instruction struct {
	op    Opcode
	mode  Mode
	imm16 uint16
	imm   uint64 // resolved extended immediate; imm16 for the short modes
	next  uint64 // pc after the instruction, including immediate bytes
}

// decodeWord splits a 4-byte little-endian instruction word.
func decodeWord(word uint32) (Opcode, Mode, uint16) {
	return Opcode(word & 0xFF), Mode((word >> 8) & 0xFF), uint16(word >> 16)
}

// resolveImmediate consumes the extended-immediate bytes following the
// instruction word at pc, per the mode of the opcode. PUSH mode 0x04 treats
// imm16 as the length of an inline data run whose offset becomes the
// immediate; the run must end in NUL and keep the stream 4-byte aligned.
// The returned trap code is TrapNone on success.
func (vm *VM) resolveImmediate(ins *instruction, pc uint64) TrapCode {
	switch ins.mode {
	case immShort, immShort1:
		ins.imm = uint64(ins.imm16)
		ins.next = pc
		return TrapNone
	case immWord:
		w, err := vm.seg.Word(pc)
		if err != nil {
			return TrapMemoryViolation
		}
		ins.imm = uint64(w)
		ins.next = pc + 4
		return TrapNone
	case immQuad:
		q, err := vm.seg.Quad(pc)
		if err != nil {
			return TrapMemoryViolation
		}
		ins.imm = q
		ins.next = pc + 8
		return TrapNone
	case immInline:
		if ins.op != OpPush {
			return TrapUnknownMode
		}
		n := uint64(ins.imm16)
		if n == 0 || n%4 != 0 {
			return TrapMemoryViolation
		}
		run, err := vm.seg.Slice(pc, n)
		if err != nil {
			return TrapMemoryViolation
		}
		if run[n-1] != 0 {
			return TrapMemoryViolation
		}
		ins.imm = pc
		ins.next = pc + n
		return TrapNone
	}
	return TrapUnknownMode
}

// cachedDecode returns the resolved instruction at pc if a previous step
// cached it; only opcodes that resolve an immediate are cached. Entries survive only until the segment is written: STORE and
// FFI_MAKE_EXTERN purge the cache because programs may rewrite their own
// instruction stream.
func (vm *VM) cachedDecode(pc uint64) (instruction, bool) {
	if vm.decoded == nil {
		return instruction{}, false
	}
	if v, ok := vm.decoded.Get(pc); ok {
		return v.(instruction), true
	}
	return instruction{}, false
}

// rememberDecode caches a successfully resolved instruction.
func (vm *VM) rememberDecode(pc uint64, ins instruction) {
	if vm.decoded != nil {
		vm.decoded.Add(pc, ins)
	}
}

// invalidateDecode drops every cached instruction after a segment write.
func (vm *VM) invalidateDecode() {
	if vm.decoded != nil {
		vm.decoded.Purge()
	}
}

// fetchWord bounds-checks pc and reads the instruction word. Exhaustion is
// not a trap: it halts the VM without consulting the error handler.
func (vm *VM) fetchWord(pc uint64) (uint32, error) {
	if vm.seg.Size() < 4 || pc > vm.seg.Size()-4 {
		return 0, ErrNoMoreInstructions
	}
	return binary.LittleEndian.Uint32(vm.seg.data[pc:]), nil
}
