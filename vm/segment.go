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
	"errors"
	"fmt"
	"unsafe"
)

// ErrSegmentBounds is returned when a read or write targets bytes outside
// the code segment.
var ErrSegmentBounds = errors.New("vm: access outside code segment")

// ErrBadString is returned when a string operand runs past the end of the
// segment without a NUL terminator.
var ErrBadString = errors.New("vm: unterminated string in code segment")

// Segment is the program image: a fixed-length, mutable-content byte array
// that is simultaneously the instruction stream and the program-visible
// memory. Every access goes through a bounds-checked accessor keyed on a
// byte offset; raw pointers never leave this type except for the SETERR
// containment check.
type Segment struct {
	data []byte
}

// NewSegment wraps the loaded program image. The segment takes ownership of
// data for the lifetime of the VM.
func NewSegment(data []byte) *Segment {
	return &Segment{data: data}
}

// Size returns the segment length in bytes.
func (s *Segment) Size() uint64 { return uint64(len(s.data)) }

// Byte reads the byte at off.
func (s *Segment) Byte(off uint64) (byte, error) {
	if off >= uint64(len(s.data)) {
		return 0, fmt.Errorf("%w: offset %d, size %d", ErrSegmentBounds, off, len(s.data))
	}
	return s.data[off], nil
}

// SetByte writes b at off.
func (s *Segment) SetByte(off uint64, b byte) error {
	if off >= uint64(len(s.data)) {
		return fmt.Errorf("%w: offset %d, size %d", ErrSegmentBounds, off, len(s.data))
	}
	s.data[off] = b
	return nil
}

// Word reads the little-endian 32-bit word at off.
func (s *Segment) Word(off uint64) (uint32, error) {
	if off+4 > uint64(len(s.data)) || off+4 < off {
		return 0, fmt.Errorf("%w: word at %d, size %d", ErrSegmentBounds, off, len(s.data))
	}
	return binary.LittleEndian.Uint32(s.data[off:]), nil
}

// Quad reads the little-endian 64-bit word at off.
func (s *Segment) Quad(off uint64) (uint64, error) {
	if off+8 > uint64(len(s.data)) || off+8 < off {
		return 0, fmt.Errorf("%w: quad at %d, size %d", ErrSegmentBounds, off, len(s.data))
	}
	return binary.LittleEndian.Uint64(s.data[off:]), nil
}

// SetQuad writes a little-endian 64-bit word at off.
func (s *Segment) SetQuad(off uint64, v uint64) error {
	if off+8 > uint64(len(s.data)) || off+8 < off {
		return fmt.Errorf("%w: quad at %d, size %d", ErrSegmentBounds, off, len(s.data))
	}
	binary.LittleEndian.PutUint64(s.data[off:], v)
	return nil
}

// Slice returns a view of n bytes starting at off. The view aliases the
// segment; callers must not retain it across writes.
func (s *Segment) Slice(off, n uint64) ([]byte, error) {
	if off+n > uint64(len(s.data)) || off+n < off {
		return nil, fmt.Errorf("%w: range [%d,%d), size %d", ErrSegmentBounds, off, off+n, len(s.data))
	}
	return s.data[off : off+n], nil
}

// CString reads the NUL-terminated string starting at off, without the
// terminator.
func (s *Segment) CString(off uint64) (string, error) {
	if off >= uint64(len(s.data)) {
		return "", fmt.Errorf("%w: offset %d, size %d", ErrSegmentBounds, off, len(s.data))
	}
	for end := off; end < uint64(len(s.data)); end++ {
		if s.data[end] == 0 {
			return string(s.data[off:end]), nil
		}
	}
	return "", fmt.Errorf("%w: starting at %d", ErrBadString, off)
}

// CheckTarget validates a control-transfer target: a branch may land on any
// offset from which a full instruction word can still be fetched.
func (s *Segment) CheckTarget(off uint64) error {
	if uint64(len(s.data)) < 4 || off > uint64(len(s.data))-4 {
		return fmt.Errorf("%w: jump target %d, size %d", ErrSegmentBounds, off, len(s.data))
	}
	return nil
}

// ContainsPointer reports whether p points into the segment's backing
// array. SETERR mode 0x01 accepts only pointers the VM itself produced,
// which always lie inside the segment.
func (s *Segment) ContainsPointer(p uintptr) (uint64, bool) {
	if len(s.data) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&s.data[0]))
	if p < base || p >= base+uintptr(len(s.data)) {
		return 0, false
	}
	return uint64(p - base), true
}
