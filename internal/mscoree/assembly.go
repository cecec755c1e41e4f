//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// Assembly is System.Reflection._Assembly.
type Assembly struct {
	vtbl *assemblyVtbl
}

type assemblyVtbl struct {
	ole.IDispatchVtbl
	get_ToString        uintptr
	Equals              uintptr
	GetHashCode         uintptr
	GetType             uintptr
	get_CodeBase        uintptr
	get_EscapedCodeBase uintptr
	GetName             uintptr
	GetName_2           uintptr
	get_FullName        uintptr
	get_EntryPoint      uintptr
	GetType_2           uintptr
	GetType_3           uintptr
	GetExportedTypes    uintptr
	GetTypes            uintptr
}

func (a *Assembly) Release() uint32 { return asUnknown(a).Release() }

// FullName returns the display name, for example
// "mscorlib, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b77a5c561934e089".
func (a *Assembly) FullName() (string, error) {
	return getString("get_FullName", a.vtbl.get_FullName, unsafe.Pointer(a))
}

// EntryPoint returns the entry method, or nil for a library.
func (a *Assembly) EntryPoint() (*MethodInfo, error) {
	var out *MethodInfo
	hr, _, _ := syscall.SyscallN(a.vtbl.get_EntryPoint,
		uintptr(unsafe.Pointer(a)), uintptr(unsafe.Pointer(&out)))
	if err := check("get_EntryPoint", hr); err != nil {
		return nil, err
	}
	return out, nil
}

// GetType returns the type with the given full name, or nil when the
// assembly does not define it.
func (a *Assembly) GetType(name string) (*Type, error) {
	b := bstr(name)
	defer freeBSTR(b)
	var out *Type
	hr, _, _ := syscall.SyscallN(a.vtbl.GetType_2,
		uintptr(unsafe.Pointer(a)), b, uintptr(unsafe.Pointer(&out)))
	if err := checkManaged("GetType_2", hr); err != nil {
		return nil, err
	}
	return out, nil
}
