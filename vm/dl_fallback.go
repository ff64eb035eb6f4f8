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

//go:build !unix || !cgo

package vm

import (
	"errors"
	"unsafe"
)

var errNoLoader = errors.New("vm: dynamic library support requires cgo on a unix host")

// noLoader rejects every FFI request; programs that never execute FFI
// opcodes run unaffected.
type noLoader struct{}

// newLoader returns the loader used by freshly created VMs.
func newLoader() loader { return noLoader{} }

func (noLoader) open(string) (uintptr, error)         { return 0, errNoLoader }
func (noLoader) sym(uintptr, string) (uintptr, error) { return 0, errNoLoader }
func (noLoader) close(uintptr) error                  { return nil }
func (noLoader) call(uintptr, unsafe.Pointer)         {}
