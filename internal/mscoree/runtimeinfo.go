//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

// ICLRRuntimeInfo describes one installed runtime.
type ICLRRuntimeInfo struct {
	vtbl *iclrRuntimeInfoVtbl
}

type iclrRuntimeInfoVtbl struct {
	ole.IUnknownVtbl
	GetVersionString       uintptr
	GetRuntimeDirectory    uintptr
	IsLoaded               uintptr
	LoadErrorString        uintptr
	LoadLibrary            uintptr
	GetProcAddress         uintptr
	GetInterface           uintptr
	IsLoadable             uintptr
	SetDefaultStartupFlags uintptr
	GetDefaultStartupFlags uintptr
	BindAsLegacyV2Runtime  uintptr
	IsStarted              uintptr
}

func (r *ICLRRuntimeInfo) Release() uint32 { return asUnknown(r).Release() }

// GetVersionString returns the runtime version, for example "v4.0.30319".
func (r *ICLRRuntimeInfo) GetVersionString() (string, error) {
	var n uint32
	// the first call only reports the buffer size
	hr, _, _ := syscall.SyscallN(r.vtbl.GetVersionString,
		uintptr(unsafe.Pointer(r)), 0, uintptr(unsafe.Pointer(&n)))
	if n == 0 {
		if err := check("GetVersionString", hr); err != nil {
			return "", err
		}
		return "", nil
	}
	buf := make([]uint16, n)
	hr, _, _ = syscall.SyscallN(r.vtbl.GetVersionString,
		uintptr(unsafe.Pointer(r)),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&n)))
	if err := check("GetVersionString", hr); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf), nil
}

// IsLoadable reports whether the runtime can be loaded into the current
// process, which fails when another incompatible runtime is already there.
func (r *ICLRRuntimeInfo) IsLoadable() (bool, error) {
	var loadable int32
	hr, _, _ := syscall.SyscallN(r.vtbl.IsLoadable,
		uintptr(unsafe.Pointer(r)), uintptr(unsafe.Pointer(&loadable)))
	if err := check("IsLoadable", hr); err != nil {
		return false, err
	}
	return loadable != 0, nil
}

// IsStarted reports whether the runtime has been started.
func (r *ICLRRuntimeInfo) IsStarted() (bool, error) {
	var started int32
	var flags uint32
	hr, _, _ := syscall.SyscallN(r.vtbl.IsStarted,
		uintptr(unsafe.Pointer(r)),
		uintptr(unsafe.Pointer(&started)),
		uintptr(unsafe.Pointer(&flags)))
	if err := check("IsStarted", hr); err != nil {
		return false, err
	}
	return started != 0, nil
}

// CorRuntimeHost returns the legacy ICorRuntimeHost of this runtime. It
// loads the runtime into the process.
func (r *ICLRRuntimeInfo) CorRuntimeHost() (*ICorRuntimeHost, error) {
	var out unsafe.Pointer
	hr, _, _ := syscall.SyscallN(r.vtbl.GetInterface,
		uintptr(unsafe.Pointer(r)),
		uintptr(unsafe.Pointer(CLSID_CorRuntimeHost)),
		uintptr(unsafe.Pointer(IID_ICorRuntimeHost)),
		uintptr(unsafe.Pointer(&out)))
	if err := check("GetInterface", hr); err != nil {
		return nil, err
	}
	return (*ICorRuntimeHost)(out), nil
}

// GetProcAddress returns an export of the runtime's mscorwks or clr module.
// It loads the runtime into the process.
func (r *ICLRRuntimeInfo) GetProcAddress(name string) (uintptr, error) {
	psz, err := windows.BytePtrFromString(name)
	if err != nil {
		return 0, err
	}
	var proc uintptr
	hr, _, _ := syscall.SyscallN(r.vtbl.GetProcAddress,
		uintptr(unsafe.Pointer(r)),
		uintptr(unsafe.Pointer(psz)),
		uintptr(unsafe.Pointer(&proc)))
	if err := check("GetProcAddress", hr); err != nil {
		return 0, err
	}
	return proc, nil
}

// CLRRuntimeHost returns the ICLRRuntimeHost of this runtime, the interface
// host control is registered on.
func (r *ICLRRuntimeInfo) CLRRuntimeHost() (*ICLRRuntimeHost, error) {
	var out unsafe.Pointer
	hr, _, _ := syscall.SyscallN(r.vtbl.GetInterface,
		uintptr(unsafe.Pointer(r)),
		uintptr(unsafe.Pointer(CLSID_CLRRuntimeHost)),
		uintptr(unsafe.Pointer(IID_ICLRRuntimeHost)),
		uintptr(unsafe.Pointer(&out)))
	if err := check("GetInterface", hr); err != nil {
		return nil, err
	}
	return (*ICLRRuntimeHost)(out), nil
}

// ICorRuntimeHost starts the runtime and manages application domains.
type ICorRuntimeHost struct {
	vtbl *icorRuntimeHostVtbl
}

type icorRuntimeHostVtbl struct {
	ole.IUnknownVtbl
	CreateLogicalThreadState    uintptr
	DeleteLogicalThreadState    uintptr
	SwitchInLogicalThreadState  uintptr
	SwitchOutLogicalThreadState uintptr
	LocksHeldByLogicalThread    uintptr
	MapFile                     uintptr
	GetConfiguration            uintptr
	Start                       uintptr
	Stop                        uintptr
	CreateDomain                uintptr
	GetDefaultDomain            uintptr
	EnumDomains                 uintptr
	NextDomain                  uintptr
	CloseEnum                   uintptr
	CreateDomainEx              uintptr
	CreateDomainSetup           uintptr
	CreateEvidence              uintptr
	UnloadDomain                uintptr
	CurrentDomain               uintptr
}

func (h *ICorRuntimeHost) Release() uint32 { return asUnknown(h).Release() }

// Start starts the runtime. Starting a started runtime succeeds.
func (h *ICorRuntimeHost) Start() error {
	hr, _, _ := syscall.SyscallN(h.vtbl.Start, uintptr(unsafe.Pointer(h)))
	return check("Start", hr)
}

// GetDefaultDomain returns the default application domain.
func (h *ICorRuntimeHost) GetDefaultDomain() (*AppDomain, error) {
	var u *IUnknown
	hr, _, _ := syscall.SyscallN(h.vtbl.GetDefaultDomain,
		uintptr(unsafe.Pointer(h)), uintptr(unsafe.Pointer(&u)))
	if err := check("GetDefaultDomain", hr); err != nil {
		return nil, err
	}
	defer u.Release()
	return queryAs[AppDomain](u, IID_AppDomain)
}

// CreateDomain creates a new application domain with the default evidence.
func (h *ICorRuntimeHost) CreateDomain(name string) (*AppDomain, error) {
	pwz, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	var u *IUnknown
	hr, _, _ := syscall.SyscallN(h.vtbl.CreateDomain,
		uintptr(unsafe.Pointer(h)),
		uintptr(unsafe.Pointer(pwz)),
		0,
		uintptr(unsafe.Pointer(&u)))
	if err := check("CreateDomain", hr); err != nil {
		return nil, err
	}
	defer u.Release()
	return queryAs[AppDomain](u, IID_AppDomain)
}

// UnloadDomain unloads d. The caller still releases its reference.
func (h *ICorRuntimeHost) UnloadDomain(d *AppDomain) error {
	hr, _, _ := syscall.SyscallN(h.vtbl.UnloadDomain,
		uintptr(unsafe.Pointer(h)), uintptr(unsafe.Pointer(d)))
	return check("UnloadDomain", hr)
}
