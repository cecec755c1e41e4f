//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

const (
	identityBufferSize       = 2048
	hrInsufficientBuffer     = 0x8007007A
	shCreateMemStreamFailure = 0x8007000E // E_OUTOFMEMORY
)

// ICLRAssemblyIdentityManager computes assembly binding identities.
type ICLRAssemblyIdentityManager struct {
	vtbl *iclrAssemblyIdentityManagerVtbl
}

type iclrAssemblyIdentityManagerVtbl struct {
	ole.IUnknownVtbl
	GetCLRAssemblyReferenceList       uintptr
	GetBindingIdentityFromFile        uintptr
	GetBindingIdentityFromStream      uintptr
	GetReferencedAssembliesFromFile   uintptr
	GetReferencedAssembliesFromStream uintptr
	GetProbingAssembliesFromReference uintptr
	IsStronglyNamed                   uintptr
}

// AssemblyIdentityManager returns the identity manager exported by the
// runtime as GetCLRIdentityManager.
func (r *ICLRRuntimeInfo) AssemblyIdentityManager() (*ICLRAssemblyIdentityManager, error) {
	proc, err := r.GetProcAddress("GetCLRIdentityManager")
	if err != nil {
		return nil, err
	}
	var out unsafe.Pointer
	hr, _, _ := syscall.SyscallN(proc,
		uintptr(unsafe.Pointer(IID_ICLRAssemblyIdentityManager)),
		uintptr(unsafe.Pointer(&out)))
	if err := check("GetCLRIdentityManager", hr); err != nil {
		return nil, err
	}
	return (*ICLRAssemblyIdentityManager)(out), nil
}

func (m *ICLRAssemblyIdentityManager) Release() uint32 { return asUnknown(m).Release() }

// BindingIdentity returns the binding identity of the assembly in image,
// for example "hello, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null,
// processorArchitecture=MSIL".
func (m *ICLRAssemblyIdentityManager) BindingIdentity(image []byte) (string, error) {
	size := uint32(identityBufferSize)
	for {
		stream, err := NewMemStream(image)
		if err != nil {
			return "", err
		}
		buf := make([]uint16, size)
		hr, _, _ := syscall.SyscallN(m.vtbl.GetBindingIdentityFromStream,
			uintptr(unsafe.Pointer(m)),
			stream.Raw(),
			0,
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(unsafe.Pointer(&size)))
		stream.Release()
		if uint32(hr) == hrInsufficientBuffer && size > uint32(len(buf)) {
			continue
		}
		if err := check("GetBindingIdentityFromStream", hr); err != nil {
			return "", err
		}
		return windows.UTF16ToString(buf), nil
	}
}

// NewMemStream returns an IStream over a copy of b.
func NewMemStream(b []byte) (*IUnknown, error) {
	var p *byte
	if len(b) > 0 {
		p = &b[0]
	}
	r, _, _ := procSHCreateMemStream.Call(uintptr(unsafe.Pointer(p)), uintptr(len(b)))
	if r == 0 {
		return nil, &Error{Op: "SHCreateMemStream", HRESULT: shCreateMemStreamFailure}
	}
	return UnknownFromRaw(r), nil
}
