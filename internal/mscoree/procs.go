//go:build windows && amd64

package mscoree

import (
	"golang.org/x/sys/windows"
)

var (
	modmscoree  = windows.NewLazySystemDLL("mscoree.dll")
	modoleaut32 = windows.NewLazySystemDLL("oleaut32.dll")
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modshlwapi  = windows.NewLazySystemDLL("shlwapi.dll")

	procCLRCreateInstance = modmscoree.NewProc("CLRCreateInstance")

	procSafeArrayCreateVector = modoleaut32.NewProc("SafeArrayCreateVector")
	procSafeArrayPutElement   = modoleaut32.NewProc("SafeArrayPutElement")
	procSafeArrayGetElement   = modoleaut32.NewProc("SafeArrayGetElement")
	procSafeArrayGetLBound    = modoleaut32.NewProc("SafeArrayGetLBound")
	procSafeArrayGetUBound    = modoleaut32.NewProc("SafeArrayGetUBound")
	procSafeArrayAccessData   = modoleaut32.NewProc("SafeArrayAccessData")
	procSafeArrayUnaccessData = modoleaut32.NewProc("SafeArrayUnaccessData")
	procSafeArrayDestroy      = modoleaut32.NewProc("SafeArrayDestroy")
	procGetErrorInfo          = modoleaut32.NewProc("GetErrorInfo")

	procFlushInstructionCache = modkernel32.NewProc("FlushInstructionCache")

	procSHCreateMemStream = modshlwapi.NewProc("SHCreateMemStream")
)

// Available reports whether mscoree.dll and CLRCreateInstance can be loaded.
func Available() error {
	return procCLRCreateInstance.Find()
}
