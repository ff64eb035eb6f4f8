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
	"testing"
	"unsafe"
)

func TestSegmentByteAccess(t *testing.T) {
	s := NewSegment([]byte{1, 2, 3, 4})
	b, err := s.Byte(2)
	if err != nil || b != 3 {
		t.Fatalf("Byte(2) = %d, %v; want 3", b, err)
	}
	if err := s.SetByte(0, 0xFF); err != nil {
		t.Fatalf("SetByte: %v", err)
	}
	if b, _ := s.Byte(0); b != 0xFF {
		t.Errorf("SetByte did not stick: %d", b)
	}
	if _, err := s.Byte(4); !errors.Is(err, ErrSegmentBounds) {
		t.Errorf("Byte(4): got %v; want ErrSegmentBounds", err)
	}
}

func TestSegmentWords(t *testing.T) {
	s := NewSegment([]byte{0x78, 0x56, 0x34, 0x12, 0, 0, 0, 0})
	w, err := s.Word(0)
	if err != nil || w != 0x12345678 {
		t.Fatalf("Word(0) = 0x%x, %v; want 0x12345678", w, err)
	}
	if err := s.SetQuad(0, 0x1122334455667788); err != nil {
		t.Fatalf("SetQuad: %v", err)
	}
	q, err := s.Quad(0)
	if err != nil || q != 0x1122334455667788 {
		t.Fatalf("Quad(0) = 0x%x, %v", q, err)
	}
	if _, err := s.Quad(1); !errors.Is(err, ErrSegmentBounds) {
		t.Errorf("Quad(1): got %v; want ErrSegmentBounds", err)
	}
}

func TestSegmentCString(t *testing.T) {
	s := NewSegment([]byte{'h', 'i', 0, 'x'})
	str, err := s.CString(0)
	if err != nil || str != "hi" {
		t.Fatalf("CString(0) = %q, %v; want \"hi\"", str, err)
	}
	if _, err := s.CString(3); !errors.Is(err, ErrBadString) {
		t.Errorf("unterminated: got %v; want ErrBadString", err)
	}
}

func TestSegmentCheckTarget(t *testing.T) {
	s := NewSegment(make([]byte, 16))
	if err := s.CheckTarget(12); err != nil {
		t.Errorf("CheckTarget(12): %v", err)
	}
	if err := s.CheckTarget(13); !errors.Is(err, ErrSegmentBounds) {
		t.Errorf("CheckTarget(13): got %v; want ErrSegmentBounds", err)
	}
}

func TestSegmentContainsPointer(t *testing.T) {
	data := make([]byte, 8)
	s := NewSegment(data)
	p := uintptr(unsafe.Pointer(&data[5]))
	off, ok := s.ContainsPointer(p)
	if !ok || off != 5 {
		t.Fatalf("ContainsPointer: got %d, %v; want 5, true", off, ok)
	}
	if _, ok := s.ContainsPointer(0x1); ok {
		t.Error("foreign pointer accepted")
	}
}
