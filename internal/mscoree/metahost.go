//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

// ICLRMetaHost enumerates and binds the runtimes installed on the machine.
type ICLRMetaHost struct {
	vtbl *iclrMetaHostVtbl
}

type iclrMetaHostVtbl struct {
	ole.IUnknownVtbl
	GetRuntime                  uintptr
	GetVersionFromFile          uintptr
	EnumerateInstalledRuntimes  uintptr
	EnumerateLoadedRuntimes     uintptr
	RequestRuntimeLoaded        uintptr
	QueryLegacyV2RuntimeBinding uintptr
	ExitProcess                 uintptr
}

// CLRCreateInstance returns the metahost, the entry point of the v4 hosting
// API. It fails when mscoree.dll is missing.
func CLRCreateInstance() (*ICLRMetaHost, error) {
	if err := procCLRCreateInstance.Find(); err != nil {
		return nil, err
	}
	var out unsafe.Pointer
	hr, _, _ := procCLRCreateInstance.Call(
		uintptr(unsafe.Pointer(CLSID_CLRMetaHost)),
		uintptr(unsafe.Pointer(IID_ICLRMetaHost)),
		uintptr(unsafe.Pointer(&out)))
	if err := check("CLRCreateInstance", hr); err != nil {
		return nil, err
	}
	return (*ICLRMetaHost)(out), nil
}

func (m *ICLRMetaHost) Release() uint32 { return asUnknown(m).Release() }

// GetRuntime returns the runtime info for a version string such as
// "v4.0.30319".
func (m *ICLRMetaHost) GetRuntime(version string) (*ICLRRuntimeInfo, error) {
	pwz, err := windows.UTF16PtrFromString(version)
	if err != nil {
		return nil, err
	}
	var out unsafe.Pointer
	hr, _, _ := syscall.SyscallN(m.vtbl.GetRuntime,
		uintptr(unsafe.Pointer(m)),
		uintptr(unsafe.Pointer(pwz)),
		uintptr(unsafe.Pointer(IID_ICLRRuntimeInfo)),
		uintptr(unsafe.Pointer(&out)))
	if err := check("GetRuntime", hr); err != nil {
		return nil, err
	}
	return (*ICLRRuntimeInfo)(out), nil
}

// EnumerateInstalledRuntimes returns every installed runtime.
func (m *ICLRMetaHost) EnumerateInstalledRuntimes() ([]*ICLRRuntimeInfo, error) {
	var enum *IEnumUnknown
	hr, _, _ := syscall.SyscallN(m.vtbl.EnumerateInstalledRuntimes,
		uintptr(unsafe.Pointer(m)),
		uintptr(unsafe.Pointer(&enum)))
	if err := check("EnumerateInstalledRuntimes", hr); err != nil {
		return nil, err
	}
	defer enum.Release()
	return runtimeInfos(enum)
}

// EnumerateLoadedRuntimes returns the runtimes loaded in the current
// process.
func (m *ICLRMetaHost) EnumerateLoadedRuntimes() ([]*ICLRRuntimeInfo, error) {
	var enum *IEnumUnknown
	hr, _, _ := syscall.SyscallN(m.vtbl.EnumerateLoadedRuntimes,
		uintptr(unsafe.Pointer(m)),
		uintptr(windows.CurrentProcess()),
		uintptr(unsafe.Pointer(&enum)))
	if err := check("EnumerateLoadedRuntimes", hr); err != nil {
		return nil, err
	}
	defer enum.Release()
	return runtimeInfos(enum)
}

func runtimeInfos(enum *IEnumUnknown) ([]*ICLRRuntimeInfo, error) {
	items, err := enum.All()
	if err != nil {
		return nil, err
	}
	var out []*ICLRRuntimeInfo
	for i, u := range items {
		info, err := queryAs[ICLRRuntimeInfo](u, IID_ICLRRuntimeInfo)
		u.Release()
		if err != nil {
			for _, rest := range items[i+1:] {
				rest.Release()
			}
			for _, done := range out {
				done.Release()
			}
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}
