//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// AppDomain is System._AppDomain.
type AppDomain struct {
	vtbl *appDomainVtbl
}

type appDomainVtbl struct {
	ole.IDispatchVtbl
	get_ToString              uintptr
	Equals                    uintptr
	GetHashCode               uintptr
	GetType                   uintptr
	InitializeLifetimeService uintptr
	GetLifetimeService        uintptr
	get_Evidence              uintptr
	add_DomainUnload          uintptr
	remove_DomainUnload       uintptr
	add_AssemblyLoad          uintptr
	remove_AssemblyLoad       uintptr
	add_ProcessExit           uintptr
	remove_ProcessExit        uintptr
	add_TypeResolve           uintptr
	remove_TypeResolve        uintptr
	add_ResourceResolve       uintptr
	remove_ResourceResolve    uintptr
	add_AssemblyResolve       uintptr
	remove_AssemblyResolve    uintptr
	add_UnhandledException    uintptr
	remove_UnhandledException uintptr
	DefineDynamicAssembly     uintptr
	DefineDynamicAssembly_2   uintptr
	DefineDynamicAssembly_3   uintptr
	DefineDynamicAssembly_4   uintptr
	DefineDynamicAssembly_5   uintptr
	DefineDynamicAssembly_6   uintptr
	DefineDynamicAssembly_7   uintptr
	DefineDynamicAssembly_8   uintptr
	DefineDynamicAssembly_9   uintptr
	CreateInstance            uintptr
	CreateInstanceFrom        uintptr
	CreateInstance_2          uintptr
	CreateInstanceFrom_2      uintptr
	CreateInstance_3          uintptr
	CreateInstanceFrom_3      uintptr
	Load                      uintptr
	Load_2                    uintptr
	Load_3                    uintptr
	Load_4                    uintptr
	Load_5                    uintptr
	Load_6                    uintptr
	Load_7                    uintptr
	ExecuteAssembly           uintptr
	ExecuteAssembly_2         uintptr
	ExecuteAssembly_3         uintptr
	get_FriendlyName          uintptr
	get_BaseDirectory         uintptr
	get_RelativeSearchPath    uintptr
	get_ShadowCopyFiles       uintptr
	GetAssemblies             uintptr
}

func (d *AppDomain) Release() uint32 { return asUnknown(d).Release() }

// Unknown views d as an *IUnknown.
func (d *AppDomain) Unknown() *IUnknown { return asUnknown(d) }

// FriendlyName returns the domain name.
func (d *AppDomain) FriendlyName() (string, error) {
	return getString("get_FriendlyName", d.vtbl.get_FriendlyName, unsafe.Pointer(d))
}

// Load2 loads an assembly by display name.
func (d *AppDomain) Load2(name string) (*Assembly, error) {
	b := bstr(name)
	defer freeBSTR(b)
	var out *Assembly
	hr, _, _ := syscall.SyscallN(d.vtbl.Load_2,
		uintptr(unsafe.Pointer(d)), b, uintptr(unsafe.Pointer(&out)))
	if err := checkManaged("Load_2", hr); err != nil {
		return nil, err
	}
	return out, nil
}

// Load3 loads an assembly from its raw image.
func (d *AppDomain) Load3(image []byte) (*Assembly, error) {
	sa, err := NewByteArray(image)
	if err != nil {
		return nil, err
	}
	defer DestroySafeArray(sa)
	var out *Assembly
	hr, _, _ := syscall.SyscallN(d.vtbl.Load_3,
		uintptr(unsafe.Pointer(d)),
		uintptr(unsafe.Pointer(sa)),
		uintptr(unsafe.Pointer(&out)))
	if err := checkManaged("Load_3", hr); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAssemblies returns the assemblies loaded in the domain.
func (d *AppDomain) GetAssemblies() ([]*Assembly, error) {
	var sa *ole.SafeArray
	hr, _, _ := syscall.SyscallN(d.vtbl.GetAssemblies,
		uintptr(unsafe.Pointer(d)), uintptr(unsafe.Pointer(&sa)))
	if err := check("GetAssemblies", hr); err != nil {
		return nil, err
	}
	defer DestroySafeArray(sa)
	items, err := unknownElements(sa)
	if err != nil {
		return nil, err
	}
	return queryAll[Assembly](items, IID_Assembly)
}

// queryAll queries every element for iid and releases the originals.
func queryAll[T any](items []*IUnknown, iid *ole.GUID) ([]*T, error) {
	out := make([]*T, 0, len(items))
	for i, u := range items {
		p, err := queryAs[T](u, iid)
		u.Release()
		if err != nil {
			releaseAll(items[i+1:])
			for _, done := range out {
				asUnknown(done).Release()
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
