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
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
)

// Config collects the tunables of a VM instance. The zero value of any field
// selects its default.
type Config struct {
	// DataStackCap is the operand-stack capacity.
	DataStackCap int `toml:",omitempty"`
	// CallStackCap is the return-offset stack capacity.
	CallStackCap int `toml:",omitempty"`
	// ChunkStackCap is the scratch-chunk stack capacity.
	ChunkStackCap int `toml:",omitempty"`
	// ArenaSize is the trampoline arena size in bytes, rounded up to the
	// host page size; 0 means one page.
	ArenaSize int `toml:",omitempty"`
	// TraceSteps logs every fetched instruction at trace level.
	TraceSteps bool `toml:",omitempty"`
	// Diagnostics receives program-directed output (HALT notice, PSTATE,
	// PSEG dumps, unhandled trap reports). Defaults to stderr.
	Diagnostics io.Writer `toml:"-"`
}

// DefaultConfig matches the capacities of the wire-compatible reference
// machine.
var DefaultConfig = Config{
	DataStackCap:  DefaultDataStackCap,
	CallStackCap:  DefaultCallStackCap,
	ChunkStackCap: DefaultChunkStackCap,
}

// VM executes a chaneque program image to completion. Instances are strictly
// single-threaded: a step runs to completion or to a trap before the next
// begins, and nothing here is safe for concurrent use.
type VM struct {
	cfg  Config
	seg  *Segment
	pc   uint64
	data *Stack
	call *Stack

	chunks *chunkStack

	halted  bool
	handler uint64
	pending *Trap

	arena   *Arena
	libs    []*library
	current int
	externs []*Extern
	loader  loader

	decoded *lru.Cache
	diag    io.Writer
	logger  log.Logger
}

// New creates a VM executing code with the default configuration. The VM
// takes ownership of the image bytes.
func New(code []byte) (*VM, error) {
	return NewWithConfig(code, DefaultConfig)
}

// NewWithConfig creates a VM with explicit tunables. It allocates both value
// stacks, the chunk stack and the FFI trampoline arena; Close releases them.
func NewWithConfig(code []byte, cfg Config) (*VM, error) {
	if cfg.DataStackCap <= 0 {
		cfg.DataStackCap = DefaultDataStackCap
	}
	if cfg.CallStackCap <= 0 {
		cfg.CallStackCap = DefaultCallStackCap
	}
	if cfg.ChunkStackCap <= 0 {
		cfg.ChunkStackCap = DefaultChunkStackCap
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = os.Stderr
	}
	arena, err := newArena(cfg.ArenaSize)
	if err != nil {
		return nil, fmt.Errorf("vm: cannot allocate trampoline arena: %w", err)
	}
	cache, err := lru.New(decodeCacheEntries)
	if err != nil {
		arena.Close()
		return nil, err
	}
	return &VM{
		cfg:     cfg,
		seg:     NewSegment(code),
		data:    NewStack("data", cfg.DataStackCap),
		call:    NewStack("call", cfg.CallStackCap),
		chunks:  newChunkStack(cfg.ChunkStackCap),
		arena:   arena,
		current: -1,
		loader:  newLoader(),
		decoded: cache,
		diag:    cfg.Diagnostics,
		logger:  log.New("module", "vm"),
	}, nil
}

// Close releases the VM's resources: open libraries in reverse open order,
// the trampoline arena, and any still-pending error message.
func (vm *VM) Close() error {
	for i := len(vm.libs) - 1; i >= 0; i-- {
		if err := vm.loader.close(vm.libs[i].handle); err != nil {
			vm.logger.Warn("Closing library failed", "name", vm.libs[i].name, "err", err)
		}
	}
	vm.libs = nil
	vm.externs = nil
	vm.pending = nil
	if vm.arena == nil {
		return nil
	}
	err := vm.arena.Close()
	vm.arena = nil
	return err
}

// PC returns the current instruction pointer.
func (vm *VM) PC() uint64 { return vm.pc }

// Halted reports whether the VM has reached its terminal state.
func (vm *VM) Halted() bool { return vm.halted }

// Pending returns the pending trap, or nil.
func (vm *VM) Pending() *Trap { return vm.pending }

// Handler returns the installed error-handler offset; 0 means none.
func (vm *VM) Handler() uint64 { return vm.handler }

// fail builds a trap at the current pc and records it as the pending error.
// A second trap raised while one is pending is reported to the log but does
// not displace the first; the step still fails with the new trap.
func (vm *VM) fail(code TrapCode, format string, args ...interface{}) error {
	t := newTrap(code, vm.pc, format, args...)
	if vm.pending != nil {
		vm.logger.Warn("Trap raised while another is pending",
			"code", fmt.Sprintf("0x%02x", uint16(t.Code)),
			"pending", fmt.Sprintf("0x%02x", uint16(vm.pending.Code)))
	} else {
		vm.pending = t
	}
	return t
}

// jumpTo validates and applies a control transfer.
func (vm *VM) jumpTo(target uint64) error {
	if err := vm.seg.CheckTarget(target); err != nil {
		return vm.fail(TrapJumpOutOfBounds, "cannot jump outside code segment: target %d, size %d", target, vm.seg.Size())
	}
	vm.pc = target
	return nil
}

// pushResult delivers an operation result to the data stack.
func (vm *VM) pushResult(op Opcode, v Value) error {
	if err := vm.data.Push(v); err != nil {
		return vm.fail(TrapDataStackOverflow, "cannot push %s result: %v", op, err)
	}
	return nil
}

// Step fetches, decodes and executes exactly one instruction. The phases run
// in a fixed order: halt guard, fetch, uniform operand pops, extended
// immediate resolution, dispatch, result push. Any failure aborts the step
// and surfaces to the outer loop.
func (vm *VM) Step() error {
	if vm.halted {
		return ErrHalted
	}

	// ---- Fetch ----
	opPC := vm.pc
	ins, cached := vm.cachedDecode(opPC)
	if !cached {
		word, err := vm.fetchWord(opPC)
		if err != nil {
			return err
		}
		ins.op, ins.mode, ins.imm16 = decodeWord(word)
		ins.next = opPC + 4
	}
	vm.pc = opPC + 4

	if vm.cfg.TraceSteps {
		vm.logger.Trace("Step", "pc", opPC, "op", ins.op, "mode", fmt.Sprintf("0x%02x", uint8(ins.mode)), "imm16", ins.imm16)
	}
	if !ins.op.Valid() {
		return vm.fail(TrapUnknownMode, "unrecognized opcode 0x%02x", uint8(ins.op))
	}

	// ---- Pop the uniform operand groups, right then left ----
	var left, right Value
	switch ins.op.StackArgs() {
	case 2:
		var err error
		if right, err = vm.data.Pop(); err != nil {
			return vm.fail(TrapMissingBinaryOperand, "missing right operand for %s", ins.op)
		}
		if left, err = vm.data.Pop(); err != nil {
			return vm.fail(TrapMissingBinaryOperand, "missing left operand for %s", ins.op)
		}
	case 1:
		var err error
		if left, err = vm.data.Pop(); err != nil {
			return vm.fail(TrapMissingUnaryOperand, "missing operand for %s", ins.op)
		}
	}

	// ---- Resolve the extended immediate ----
	if ins.op.HasImmediate() && !cached {
		if ins.op == OpCall && ins.mode == callStack {
			// Indirect call: the target comes from the data stack, no
			// immediate bytes follow the word.
		} else if tc := vm.resolveImmediate(&ins, vm.pc); tc != TrapNone {
			return vm.fail(tc, "cannot resolve immediate for %s mode 0x%02x", ins.op, uint8(ins.mode))
		}
		vm.rememberDecode(opPC, ins)
	}
	vm.pc = ins.next

	// ---- Dispatch ----
	return vm.execute(ins, left, right)
}

// execute applies one decoded instruction. Operands of the uniform groups
// arrive already popped.
func (vm *VM) execute(ins instruction, left, right Value) error {
	switch ins.op {

	// ---- Control / diagnostics ---------------------------------------------

	case OpNop:

	case OpHalt:
		vm.halted = true
		fmt.Fprintln(vm.diag, "vm has been halted")
		vm.logger.Debug("Program halted", "pc", vm.pc)

	case OpClrs:
		vm.data.Reset()

	case OpPstate:
		vm.printState()

	// ---- Data-stack manipulation -------------------------------------------

	case OpPush:
		return vm.pushResult(ins.op, Value(ins.imm))

	case OpPop:
		_, _ = vm.data.Pop()

	case OpSwap:
		vm.data.Swap()

	case OpRot3:
		vm.data.Rot3()

	// ---- Arithmetic / bitwise / comparison ---------------------------------

	case OpAdd, OpSub, OpDiv, OpMul, OpMod, OpAnd, OpOr, OpXor,
		OpNeq, OpEq, OpLt, OpLe, OpGt, OpGe:
		res, tc := applyBinary(ins.op, ins.mode, left, right)
		if tc != TrapNone {
			return vm.fail(tc, "%s mode 0x%02x: %s", ins.op, uint8(ins.mode), tc)
		}
		return vm.pushResult(ins.op, res)

	case OpNot:
		res, tc := applyUnary(ins.mode, left)
		if tc != TrapNone {
			return vm.fail(tc, "%s mode 0x%02x: %s", ins.op, uint8(ins.mode), tc)
		}
		return vm.pushResult(ins.op, res)

	// ---- Control transfer --------------------------------------------------

	case OpJnz:
		if left.U64() != 0 {
			if err := vm.jumpTo(ins.imm); err != nil {
				return err
			}
		}
		return vm.pushResult(ins.op, left)

	case OpJz:
		if left.U64() == 0 {
			if err := vm.jumpTo(ins.imm); err != nil {
				return err
			}
		}
		return vm.pushResult(ins.op, left)

	case OpJmp:
		return vm.jumpTo(ins.imm)

	case OpCall:
		target := ins.imm
		if ins.mode == callStack {
			v, err := vm.data.Pop()
			if err != nil {
				return vm.fail(TrapMissingUnaryOperand, "missing call target on data stack")
			}
			target = v.Offset()
		}
		if err := vm.call.Push(Value(vm.pc)); err != nil {
			return vm.fail(TrapCallStackOverflow, "cannot save return offset: %v", err)
		}
		return vm.jumpTo(target)

	case OpRet:
		v, err := vm.call.Pop()
		if err != nil {
			return vm.fail(TrapDivideByZero, "empty call stack on RET")
		}
		return vm.jumpTo(v.Offset())

	// ---- Scratch chunks ----------------------------------------------------

	case OpResv:
		if err := vm.chunks.push(ins.imm); err != nil {
			return vm.fail(TrapChunkOverflow, "cannot reserve %d bytes: %v", ins.imm, err)
		}

	case OpFree:
		c, err := vm.chunks.pop()
		if err != nil {
			return vm.fail(TrapChunkUnderflow, "no chunk to free")
		}
		c.scrub()

	case OpBulk:
		// right = byte count, left = source offset in the code segment.
		c, err := vm.chunks.peek()
		if err != nil {
			return vm.fail(TrapChunkUnderflow, "no chunk to copy into")
		}
		count := right.U64()
		if count > uint64(len(c.data)) {
			return vm.fail(TrapMemoryViolation, "copy of %d bytes exceeds chunk of %d", count, len(c.data))
		}
		src, err := vm.seg.Slice(left.Offset(), count)
		if err != nil {
			return vm.fail(TrapMemoryViolation, "cannot copy outside code segment: %v", err)
		}
		copy(c.data, src)

	// ---- Byte memory over the code segment ---------------------------------

	case OpLoad:
		b, err := vm.seg.Byte(ins.imm)
		if err != nil {
			return vm.fail(TrapMemoryViolation, "cannot load byte: %v", err)
		}
		return vm.pushResult(ins.op, Value(b))

	case OpStore:
		v, err := vm.data.Pop()
		if err != nil {
			return vm.fail(TrapStoreUnderflow, "empty data stack on STORE")
		}
		if err := vm.seg.SetByte(ins.imm, byte(v)); err != nil {
			return vm.fail(TrapMemoryViolation, "cannot store byte: %v", err)
		}
		vm.invalidateDecode()

	case OpPseg:
		// left = byte count, right = source offset.
		if err := vm.printSegment(right.Offset(), left.U64()); err != nil {
			return vm.fail(TrapMemoryViolation, "cannot dump segment: %v", err)
		}

	// ---- Error handling ----------------------------------------------------

	case OpSethdlr:
		vm.handler = ins.imm

	case OpSeterr:
		return vm.opSetErr(ins)

	case OpClrerr:
		vm.pending = nil

	// ---- Foreign function interface ----------------------------------------

	case OpFfiLibLoad:
		return vm.opFfiLibLoad()

	case OpFfiLibSelect:
		return vm.opFfiLibSelect()

	case OpFfiMakeExtern:
		return vm.opFfiMakeExtern()

	case OpFfiMakeDone:
		return vm.opFfiMakeDone()

	case OpFfiCall:
		return vm.opFfiCall(ins.imm)
	}

	return nil
}

// opSetErr implements SETERR: it raises a user error whose 16-bit code is
// the short immediate and whose message is the NUL-terminated string
// addressed by the popped operand. Mode 0x00 reads the operand as a segment
// offset; mode 0x01 reads it as a raw pointer that must lie inside the
// segment's backing array.
func (vm *VM) opSetErr(ins instruction) error {
	v, err := vm.data.Pop()
	if err != nil {
		return vm.fail(TrapMissingUnaryOperand, "missing message operand for SETERR")
	}
	var off uint64
	switch ins.mode {
	case errOffset:
		off = v.Offset()
		if off >= vm.seg.Size() {
			return vm.fail(TrapUnsafePointer, "message offset %d outside code segment", off)
		}
	case errPointer:
		o, ok := vm.seg.ContainsPointer(uintptr(v.U64()))
		if !ok {
			return vm.fail(TrapUnsafePointer, "message pointer 0x%x outside code segment", v.U64())
		}
		off = o
	default:
		return vm.fail(TrapUnknownMode, "SETERR mode 0x%02x", uint8(ins.mode))
	}
	msg, err := vm.seg.CString(off)
	if err != nil {
		return vm.fail(TrapMemoryViolation, "cannot read error message at %d: %v", off, err)
	}
	return vm.fail(TrapCode(ins.imm16), "%s", msg)
}

// Run drives step-at-a-time execution until the VM halts or a failure goes
// unrecovered. A failing step with an installed handler redirects control:
// the trap code is pushed onto the data stack, the current pc onto the call
// stack, and execution resumes at the handler, which ends with RET to
// continue past the faulted instruction. Without a handler the trap is
// reported to the diagnostic channel and the VM halts.
func (vm *VM) Run() error {
	for !vm.halted {
		err := vm.Step()
		if err == nil {
			continue
		}

		var tr *Trap
		if errors.As(err, &tr) && vm.handler != 0 {
			if e := vm.data.Push(Value(uint64(tr.Code))); e != nil {
				return vm.cascade(err, e)
			}
			if e := vm.call.Push(Value(vm.pc)); e != nil {
				return vm.cascade(err, e)
			}
			if e := vm.seg.CheckTarget(vm.handler); e != nil {
				return vm.cascade(err, e)
			}
			vm.logger.Debug("Trap redirected to handler",
				"code", fmt.Sprintf("0x%02x", uint16(tr.Code)), "pc", vm.pc, "handler", vm.handler)
			vm.pc = vm.handler
			continue
		}

		vm.halted = true
		if tr != nil {
			fmt.Fprintln(vm.diag, tr.Error())
		} else if errors.Is(err, ErrNoMoreInstructions) {
			fmt.Fprintln(vm.diag, "error: no more instructions to read")
		}
		return err
	}
	return nil
}

// cascade halts the VM when delivering a trap to the handler itself failed.
func (vm *VM) cascade(trap, delivery error) error {
	vm.halted = true
	vm.logger.Error("Cascading failure delivering trap to handler", "trap", trap, "err", delivery)
	fmt.Fprintln(vm.diag, trap.Error())
	return trap
}
