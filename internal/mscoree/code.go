//go:build windows && amd64

package mscoree

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WriteCode overwrites len(b) bytes of executable memory at addr and returns
// the bytes it replaced. The page protection is restored afterwards and the
// instruction cache flushed.
func WriteCode(addr uintptr, b []byte) ([]byte, error) {
	if addr == 0 || len(b) == 0 {
		return nil, os.NewSyscallError("WriteCode", windows.ERROR_INVALID_PARAMETER)
	}
	size := uintptr(len(b))

	var old uint32
	if err := windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return nil, os.NewSyscallError("VirtualProtect", err)
	}

	code := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(b))
	orig := make([]byte, len(b))
	copy(orig, code)
	copy(code, b)

	var ignored uint32
	if err := windows.VirtualProtect(addr, size, old, &ignored); err != nil {
		return orig, os.NewSyscallError("VirtualProtect", err)
	}
	r1, _, e1 := procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), addr, size)
	if r1 == 0 {
		return orig, os.NewSyscallError("FlushInstructionCache", e1)
	}
	return orig, nil
}
