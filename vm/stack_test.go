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
)

func TestStackPushPop(t *testing.T) {
	s := NewStack("test", 4)
	for i := 1; i <= 4; i++ {
		if err := s.Push(Value(i)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if err := s.Push(5); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("overflow: got %v; want ErrStackOverflow", err)
	}
	for i := 4; i >= 1; i-- {
		v, err := s.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if v != Value(i) {
			t.Errorf("Pop: got %d; want %d", v, i)
		}
	}
	if _, err := s.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("underflow: got %v; want ErrStackUnderflow", err)
	}
}

func TestStackSwap(t *testing.T) {
	s := NewStack("test", 4)
	s.Push(1)
	s.Swap() // single entry, no-op
	if v, _ := s.Pop(); v != 1 {
		t.Fatalf("Swap with one entry moved it: %d", v)
	}

	s.Push(1)
	s.Push(2)
	s.Swap()
	s.Swap()
	if got := s.Values(); got[0] != 1 || got[1] != 2 {
		t.Errorf("double Swap is not identity: %v", got)
	}
	s.Swap()
	if got := s.Values(); got[0] != 2 || got[1] != 1 {
		t.Errorf("Swap: got %v; want [2 1]", got)
	}
}

func TestStackRot3(t *testing.T) {
	s := NewStack("test", 4)
	s.Push(1)
	s.Push(2)
	s.Rot3() // two entries, no-op
	if got := s.Values(); got[0] != 1 || got[1] != 2 {
		t.Fatalf("Rot3 with two entries changed them: %v", got)
	}
	s.Push(3)
	// Top-first [3,2,1] -> [1,3,2]; bottom-first [2,3,1].
	s.Rot3()
	got := s.Values()
	if got[0] != 2 || got[1] != 3 || got[2] != 1 {
		t.Errorf("Rot3: got %v; want [2 3 1]", got)
	}
}

func TestStackReset(t *testing.T) {
	s := NewStack("test", 4)
	s.Push(1)
	s.Push(2)
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Reset left %d entries", s.Len())
	}
	if s.Cap() != 4 {
		t.Errorf("Reset changed capacity: %d", s.Cap())
	}
}
