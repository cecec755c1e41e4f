//go:build windows && amd64

package mscoree

import (
	"sync"
	"sync/atomic"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

const (
	eNoInterface = 0x80004002
	ePointer     = 0x80004003
	// HRESULT_FROM_WIN32(ERROR_FILE_NOT_FOUND), what the runtime expects
	// for assemblies the store does not hold.
	hrFileNotFound = 0x80070002
)

// ProvideFunc returns the image stored under a binding identity and the id
// the runtime uses to tell stored assemblies apart.
type ProvideFunc func(identity string) (image []byte, id uint64, ok bool)

// HostControl is a Go implementation of IHostControl handing out a single
// IHostAssemblyManager whose IHostAssemblyStore serves images from memory.
//
// The runtime calls these objects from its own threads, never through the
// caller's apartment. They are kept alive for the life of the process
// because the runtime holds on to them after it starts.
type HostControl struct {
	control hostObject
	manager hostObject
	store   hostObject
	provide ProvideFunc
	refs    atomic.Int32
}

// hostObject is the COM layout of one interface: the vtable pointer first.
type hostObject struct {
	vtbl  uintptr
	owner *HostControl
	iid   *ole.GUID
}

// AssemblyBindInfo is the binding request passed to ProvideAssembly.
type AssemblyBindInfo struct {
	AppDomainID        uint32
	ReferencedIdentity *uint16
	PostPolicyIdentity *uint16
	PolicyLevel        uint32
}

type hostControlVtbl struct {
	ole.IUnknownVtbl
	GetHostManager      uintptr
	SetAppDomainManager uintptr
}

type hostAssemblyManagerVtbl struct {
	ole.IUnknownVtbl
	GetNonHostStoreAssemblies uintptr
	GetAssemblyStore          uintptr
}

type hostAssemblyStoreVtbl struct {
	ole.IUnknownVtbl
	ProvideAssembly uintptr
	ProvideModule   uintptr
}

type hostVtbls struct {
	control hostControlVtbl
	manager hostAssemblyManagerVtbl
	store   hostAssemblyStoreVtbl
}

var (
	// callbacks are a scarce process resource, so every HostControl shares
	// one set of vtables.
	vtbls = sync.OnceValue(newHostVtbls)

	liveMu       sync.Mutex
	liveControls []*HostControl
)

// NewHostControl returns a host control whose assembly store answers from
// provide.
func NewHostControl(provide ProvideFunc) *HostControl {
	v := vtbls()
	c := &HostControl{provide: provide}
	c.control = hostObject{vtbl: uintptr(unsafe.Pointer(&v.control)), owner: c, iid: IID_IHostControl}
	c.manager = hostObject{vtbl: uintptr(unsafe.Pointer(&v.manager)), owner: c, iid: IID_IHostAssemblyManager}
	c.store = hostObject{vtbl: uintptr(unsafe.Pointer(&v.store)), owner: c, iid: IID_IHostAssemblyStore}

	liveMu.Lock()
	liveControls = append(liveControls, c)
	liveMu.Unlock()
	return c
}

// Raw returns the IHostControl interface pointer.
func (c *HostControl) Raw() uintptr {
	return uintptr(unsafe.Pointer(&c.control))
}

func newHostVtbls() *hostVtbls {
	unknown := ole.IUnknownVtbl{
		QueryInterface: windows.NewCallback(hostQueryInterface),
		AddRef:         windows.NewCallback(hostAddRef),
		Release:        windows.NewCallback(hostRelease),
	}
	return &hostVtbls{
		control: hostControlVtbl{
			IUnknownVtbl:        unknown,
			GetHostManager:      windows.NewCallback(hostGetHostManager),
			SetAppDomainManager: windows.NewCallback(hostSetAppDomainManager),
		},
		manager: hostAssemblyManagerVtbl{
			IUnknownVtbl:              unknown,
			GetNonHostStoreAssemblies: windows.NewCallback(hostGetNonHostStoreAssemblies),
			GetAssemblyStore:          windows.NewCallback(hostGetAssemblyStore),
		},
		store: hostAssemblyStoreVtbl{
			IUnknownVtbl:    unknown,
			ProvideAssembly: windows.NewCallback(hostProvideAssembly),
			ProvideModule:   windows.NewCallback(hostProvideModule),
		},
	}
}

func objectOf(this uintptr) *hostObject {
	return (*hostObject)(unsafe.Pointer(this))
}

// putInterface stores o in the interface pointer at pp and adds a reference.
func putInterface(pp uintptr, o *hostObject) uintptr {
	*(*uintptr)(unsafe.Pointer(pp)) = uintptr(unsafe.Pointer(o))
	o.owner.refs.Add(1)
	return sOK
}

func hostQueryInterface(this, riid, ppv uintptr) uintptr {
	if ppv == 0 {
		return ePointer
	}
	o := objectOf(this)
	iid := (*ole.GUID)(unsafe.Pointer(riid))
	if ole.IsEqualGUID(iid, ole.IID_IUnknown) || ole.IsEqualGUID(iid, o.iid) {
		return putInterface(ppv, o)
	}
	*(*uintptr)(unsafe.Pointer(ppv)) = 0
	return eNoInterface
}

func hostAddRef(this uintptr) uintptr {
	return uintptr(objectOf(this).owner.refs.Add(1))
}

func hostRelease(this uintptr) uintptr {
	n := objectOf(this).owner.refs.Add(-1)
	if n < 0 {
		n = 0
	}
	return uintptr(n)
}

func hostGetHostManager(this, riid, ppObject uintptr) uintptr {
	if ppObject == 0 {
		return ePointer
	}
	if ole.IsEqualGUID((*ole.GUID)(unsafe.Pointer(riid)), IID_IHostAssemblyManager) {
		return putInterface(ppObject, &objectOf(this).owner.manager)
	}
	*(*uintptr)(unsafe.Pointer(ppObject)) = 0
	return eNoInterface
}

func hostSetAppDomainManager(this, appDomainID, appDomainManager uintptr) uintptr {
	return sOK
}

// hostGetNonHostStoreAssemblies reports an empty list: the runtime asks the
// store first for every assembly and falls back to its own probing.
func hostGetNonHostStoreAssemblies(this, ppReferenceList uintptr) uintptr {
	if ppReferenceList != 0 {
		*(*uintptr)(unsafe.Pointer(ppReferenceList)) = 0
	}
	return sOK
}

func hostGetAssemblyStore(this, ppAssemblyStore uintptr) uintptr {
	if ppAssemblyStore == 0 {
		return ePointer
	}
	return putInterface(ppAssemblyStore, &objectOf(this).owner.store)
}

func hostProvideAssembly(this, pBindInfo, pAssemblyID, pHostContext, ppStmAssemblyImage, ppStmPDB uintptr) uintptr {
	if pBindInfo == 0 || pAssemblyID == 0 || ppStmAssemblyImage == 0 {
		return ePointer
	}
	info := (*AssemblyBindInfo)(unsafe.Pointer(pBindInfo))
	identity := windows.UTF16PtrToString(info.PostPolicyIdentity)

	image, id, ok := objectOf(this).owner.provide(identity)
	if !ok {
		return hrFileNotFound
	}
	stream, err := NewMemStream(image)
	if err != nil {
		return shCreateMemStreamFailure
	}
	*(*uint64)(unsafe.Pointer(pAssemblyID)) = id
	if pHostContext != 0 {
		*(*uint64)(unsafe.Pointer(pHostContext)) = 0
	}
	*(*uintptr)(unsafe.Pointer(ppStmAssemblyImage)) = stream.Raw()
	if ppStmPDB != 0 {
		*(*uintptr)(unsafe.Pointer(ppStmPDB)) = 0
	}
	return sOK
}

func hostProvideModule(this, pBindInfo, pModuleID, ppStmModuleImage, ppStmPDB uintptr) uintptr {
	return hrFileNotFound
}
