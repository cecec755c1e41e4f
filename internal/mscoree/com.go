//go:build windows && amd64

package mscoree

import (
	"fmt"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// Error is a failed COM call.
type Error struct {
	Op      string
	HRESULT uint32
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: HRESULT 0x%08X", e.Op, e.HRESULT)
}

const (
	sOK    = 0
	sFalse = 1
)

func failed(hr uintptr) bool {
	return int32(uint32(hr)) < 0
}

// check turns a failed HRESULT into an *Error.
func check(op string, hr uintptr) error {
	if failed(hr) {
		return &Error{Op: op, HRESULT: uint32(hr)}
	}
	return nil
}

// IUnknown is the base of every interface in this package. Any interface
// pointer can be viewed as an *IUnknown.
type IUnknown struct {
	vtbl *ole.IUnknownVtbl
}

func asUnknown[T any](p *T) *IUnknown {
	return (*IUnknown)(unsafe.Pointer(p))
}

func (u *IUnknown) QueryInterface(iid *ole.GUID) (unsafe.Pointer, error) {
	var out unsafe.Pointer
	hr, _, _ := syscall.SyscallN(u.vtbl.QueryInterface,
		uintptr(unsafe.Pointer(u)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)))
	if err := check("QueryInterface", hr); err != nil {
		return nil, err
	}
	return out, nil
}

func (u *IUnknown) AddRef() uint32 {
	n, _, _ := syscall.SyscallN(u.vtbl.AddRef, uintptr(unsafe.Pointer(u)))
	return uint32(n)
}

func (u *IUnknown) Release() uint32 {
	n, _, _ := syscall.SyscallN(u.vtbl.Release, uintptr(unsafe.Pointer(u)))
	return uint32(n)
}

// Raw returns the interface pointer.
func (u *IUnknown) Raw() uintptr {
	return uintptr(unsafe.Pointer(u))
}

// UnknownFromRaw views a raw interface pointer as an *IUnknown. It returns
// nil for a null pointer.
func UnknownFromRaw(p uintptr) *IUnknown {
	if p == 0 {
		return nil
	}
	return (*IUnknown)(unsafe.Pointer(p))
}

// queryAs queries u for iid and views the result as a *T.
func queryAs[T any](u *IUnknown, iid *ole.GUID) (*T, error) {
	p, err := u.QueryInterface(iid)
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

// bstr allocates a BSTR holding s. Embedded NUL characters are kept.
func bstr(s string) uintptr {
	return uintptr(unsafe.Pointer(ole.SysAllocStringLen(s)))
}

func freeBSTR(p uintptr) {
	if p != 0 {
		ole.SysFreeString((*int16)(unsafe.Pointer(p)))
	}
}

// takeBSTR converts a BSTR returned by a callee and frees it.
func takeBSTR(p uintptr) string {
	if p == 0 {
		return ""
	}
	s := ole.BstrToString((*uint16)(unsafe.Pointer(p)))
	freeBSTR(p)
	return s
}

// getString calls a method of shape HRESULT(this, BSTR*).
func getString(op string, fn uintptr, this unsafe.Pointer) (string, error) {
	var out uintptr
	hr, _, _ := syscall.SyscallN(fn, uintptr(this), uintptr(unsafe.Pointer(&out)))
	if err := check(op, hr); err != nil {
		return "", err
	}
	return takeBSTR(out), nil
}

// getBool calls a method of shape HRESULT(this, VARIANT_BOOL*).
func getBool(op string, fn uintptr, this unsafe.Pointer) (bool, error) {
	var out int16
	hr, _, _ := syscall.SyscallN(fn, uintptr(this), uintptr(unsafe.Pointer(&out)))
	if err := check(op, hr); err != nil {
		return false, err
	}
	return out != 0, nil
}
