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

//go:build unix && cgo

package vm

/*
#cgo linux LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdlib.h>

static void call_trampoline(void *entry, void *arg) {
	((void (*)(void *))entry)(arg);
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

// dlLoader reaches the host dynamic loader through libdl. Handles returned
// by dlopen are opaque host pointers; they are carried as uintptr because
// they never reference Go memory.
type dlLoader struct{}

// newLoader returns the loader used by freshly created VMs.
func newLoader() loader { return dlLoader{} }

func (dlLoader) open(name string) (uintptr, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	handle := C.dlopen(cname, C.RTLD_LAZY)
	if handle == nil {
		return 0, errors.New(dlError())
	}
	return uintptr(handle), nil
}

func (dlLoader) sym(handle uintptr, name string) (uintptr, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	C.dlerror()
	addr := C.dlsym(unsafe.Pointer(handle), cname)
	if addr == nil {
		return 0, errors.New(dlError())
	}
	return uintptr(addr), nil
}

func (dlLoader) close(handle uintptr) error {
	if C.dlclose(unsafe.Pointer(handle)) != 0 {
		return errors.New(dlError())
	}
	return nil
}

func (dlLoader) call(entry uintptr, arg unsafe.Pointer) {
	C.call_trampoline(unsafe.Pointer(entry), arg)
}

func dlError() string {
	msg := C.dlerror()
	if msg == nil {
		return "unknown dl failure"
	}
	return C.GoString(msg)
}
