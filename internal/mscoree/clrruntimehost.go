//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// ICLRRuntimeHost is the v2 hosting interface. Only the calls needed to
// register host control are bound; domains stay on ICorRuntimeHost.
type ICLRRuntimeHost struct {
	vtbl *iclrRuntimeHostVtbl
}

type iclrRuntimeHostVtbl struct {
	ole.IUnknownVtbl
	Start                     uintptr
	Stop                      uintptr
	SetHostControl            uintptr
	GetCLRControl             uintptr
	UnloadAppDomain           uintptr
	ExecuteInAppDomain        uintptr
	GetCurrentAppDomainId     uintptr
	ExecuteApplication        uintptr
	ExecuteInDefaultAppDomain uintptr
}

func (h *ICLRRuntimeHost) Release() uint32 { return asUnknown(h).Release() }

// Start starts the runtime.
func (h *ICLRRuntimeHost) Start() error {
	hr, _, _ := syscall.SyscallN(h.vtbl.Start, uintptr(unsafe.Pointer(h)))
	return check("Start", hr)
}

// SetHostControl registers c with the runtime. It fails once the runtime
// has started.
func (h *ICLRRuntimeHost) SetHostControl(c *HostControl) error {
	hr, _, _ := syscall.SyscallN(h.vtbl.SetHostControl,
		uintptr(unsafe.Pointer(h)), c.Raw())
	return check("SetHostControl", hr)
}
