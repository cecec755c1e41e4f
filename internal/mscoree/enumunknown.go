//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// IEnumUnknown iterates over interface pointers.
type IEnumUnknown struct {
	vtbl *ienumUnknownVtbl
}

type ienumUnknownVtbl struct {
	ole.IUnknownVtbl
	Next  uintptr
	Skip  uintptr
	Reset uintptr
	Clone uintptr
}

func (e *IEnumUnknown) Release() uint32 { return asUnknown(e).Release() }

// Next returns the next element, or nil at the end.
func (e *IEnumUnknown) Next() (*IUnknown, error) {
	var u *IUnknown
	var fetched uint32
	hr, _, _ := syscall.SyscallN(e.vtbl.Next,
		uintptr(unsafe.Pointer(e)),
		1,
		uintptr(unsafe.Pointer(&u)),
		uintptr(unsafe.Pointer(&fetched)))
	if err := check("IEnumUnknown.Next", hr); err != nil {
		return nil, err
	}
	if hr == sFalse || fetched == 0 {
		return nil, nil
	}
	return u, nil
}

// All drains the enumerator.
func (e *IEnumUnknown) All() ([]*IUnknown, error) {
	var out []*IUnknown
	for {
		u, err := e.Next()
		if err != nil {
			for _, done := range out {
				done.Release()
			}
			return nil, err
		}
		if u == nil {
			return out, nil
		}
		out = append(out, u)
	}
}
