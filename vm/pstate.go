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
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/status-im/keycard-go/hexutils"
)

// printState implements PSTATE: it emits the code-segment geometry and every
// stack of the machine to the diagnostic channel. The payload column shows
// the raw little-endian cell bytes because nothing on the stack records a
// type; the reader applies the width of the consuming instruction.
func (vm *VM) printState() {
	fmt.Fprintf(vm.diag, "code segment: size=%d offset=%d handler=%d\n",
		vm.seg.Size(), vm.pc, vm.handler)
	if vm.pending != nil {
		fmt.Fprintf(vm.diag, "pending error: 0x%02x %q\n", uint16(vm.pending.Code), vm.pending.Message)
	}

	vm.printValueStack("data stack", vm.data)
	vm.printValueStack("call stack", vm.call)

	fmt.Fprintf(vm.diag, "chunk stack: %d/%d\n", vm.chunks.len(), cap(vm.chunks.chunks))
	for i := vm.chunks.len() - 1; i >= 0; i-- {
		fmt.Fprintf(vm.diag, "\t%d: %d bytes\n", i+1, len(vm.chunks.chunks[i].data))
	}

	fmt.Fprintf(vm.diag, "libraries: %d (current %d)\n", len(vm.libs), vm.current)
	for i, lib := range vm.libs {
		fmt.Fprintf(vm.diag, "\t%d: %s\n", i, lib.name)
	}
	fmt.Fprintf(vm.diag, "externs: %d (arena %d bytes, sealed=%v)\n",
		len(vm.externs), vm.arena.Used(), vm.arena.Sealed())
	for i, ext := range vm.externs {
		fmt.Fprintf(vm.diag, "\t%d: %s/%d @ 0x%x\n", i, ext.Name, ext.Argc, uint64(ext.Entry))
	}
}

// printValueStack renders one value stack top-first.
func (vm *VM) printValueStack(name string, s *Stack) {
	fmt.Fprintf(vm.diag, "%s: %d/%d\n", name, s.Len(), s.Cap())
	if s.Len() == 0 {
		fmt.Fprintln(vm.diag, "\tempty stack")
		return
	}
	table := tablewriter.NewWriter(vm.diag)
	table.SetHeader([]string{"SLOT", "PAYLOAD", "U64"})
	table.SetBorder(false)
	values := s.Values()
	for i := len(values) - 1; i >= 0; i-- {
		var cell [8]byte
		binary.LittleEndian.PutUint64(cell[:], values[i].U64())
		table.Append([]string{
			strconv.Itoa(i + 1),
			hexutils.BytesToHex(cell[:]),
			strconv.FormatUint(values[i].U64(), 10),
		})
	}
	table.Render()
}

// printSegment implements PSEG: a hex dump of count bytes starting at
// code[offset], sixteen bytes per row.
func (vm *VM) printSegment(offset, count uint64) error {
	data, err := vm.seg.Slice(offset, count)
	if err != nil {
		return err
	}
	for row := uint64(0); row < count; row += 16 {
		end := row + 16
		if end > count {
			end = count
		}
		pairs := make([]string, 0, 16)
		for _, b := range data[row:end] {
			pairs = append(pairs, fmt.Sprintf("%02X", b))
		}
		fmt.Fprintf(vm.diag, "%08x  %s\n", offset+row, strings.Join(pairs, " "))
	}
	return nil
}
