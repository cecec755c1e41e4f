//go:build windows && amd64

package clr

import (
	"errors"
	"sync"

	ole "github.com/go-ole/go-ole"

	"github.com/lesnuages/clrhost/internal/mscoree"
)

const (
	methodFlags = mscoree.BindingPublic | mscoree.BindingInstance | mscoree.BindingStatic | mscoree.BindingFlattenHierarchy
	ctorFlags   = mscoree.BindingPublic | mscoree.BindingInstance
	newObject   = mscoree.BindingCreateInstance | mscoree.BindingPublic | mscoree.BindingInstance
)

func newPlatformHost() (Host, error) {
	if err := mscoree.Available(); err != nil {
		return nil, wrapError(HostingApiUnavailable, StageInitialize, "mscoree.dll", err)
	}
	apt, err := processApartment()
	if err != nil {
		return nil, wrapError(HostingApiUnavailable, StageInitialize, "CoInitializeEx", err)
	}
	var meta *mscoree.ICLRMetaHost
	apt.do(func() { meta, err = mscoree.CLRCreateInstance() })
	if err != nil {
		return nil, comError(err)
	}
	return &comHost{apt: apt, meta: meta}, nil
}

// comError converts binding errors to the types the clr layer classifies.
func comError(err error) error {
	if err == nil {
		return nil
	}
	var ex *mscoree.Exception
	if errors.As(err, &ex) && ex.TypeName != "" {
		return &ManagedException{TypeName: ex.TypeName, Message: ex.Message, HResult: ex.HResult}
	}
	if ex != nil {
		return &HResultError{Op: ex.Op, Code: ex.HResult, Message: ex.Message}
	}
	var ce *mscoree.Error
	if errors.As(err, &ce) {
		return &HResultError{Op: ce.Op, Code: ce.HRESULT}
	}
	return err
}

type comHost struct {
	apt  *apartment
	meta *mscoree.ICLRMetaHost
}

func (h *comHost) versions(enumerate func() ([]*mscoree.ICLRRuntimeInfo, error)) ([]string, error) {
	var out []string
	var err error
	h.apt.do(func() {
		var infos []*mscoree.ICLRRuntimeInfo
		infos, err = enumerate()
		for _, info := range infos {
			if err == nil {
				var v string
				if v, err = info.GetVersionString(); err == nil {
					out = append(out, v)
				}
			}
			info.Release()
		}
	})
	return out, comError(err)
}

func (h *comHost) InstalledRuntimes() ([]string, error) {
	return h.versions(h.meta.EnumerateInstalledRuntimes)
}

func (h *comHost) LoadedRuntimes() ([]string, error) {
	return h.versions(h.meta.EnumerateLoadedRuntimes)
}

func (h *comHost) Bind(version string) (Runtime, error) {
	var info *mscoree.ICLRRuntimeInfo
	var host *mscoree.ICorRuntimeHost
	var err error
	h.apt.do(func() {
		if info, err = h.meta.GetRuntime(version); err != nil {
			return
		}
		if loadable, lerr := info.IsLoadable(); lerr == nil && !loadable {
			info.Release()
			err = newError(AlreadyInUseIncompatibleVersion, StageInitialize, "IsLoadable",
				version+" cannot be loaded next to the runtime already in the process")
			return
		}
		if host, err = info.CorRuntimeHost(); err != nil {
			info.Release()
		}
	})
	if err != nil {
		return nil, comError(err)
	}
	return &comRuntime{apt: h.apt, info: info, host: host, version: version}, nil
}

func (h *comHost) Close() error {
	h.apt.do(func() { h.meta.Release() })
	return nil
}

type comRuntime struct {
	apt     *apartment
	info    *mscoree.ICLRRuntimeInfo
	host    *mscoree.ICorRuntimeHost
	version string

	// clrHost carries the host control when an assembly store is
	// installed; the runtime is then started through it.
	clrHost *mscoree.ICLRRuntimeHost
	control *mscoree.HostControl
}

var _ storeRuntime = (*comRuntime)(nil)

// HOST_E_INVALIDOPERATION, host control set on a started runtime.
const hrHostInvalidOperation = 0x80131022

func (r *comRuntime) Version() string { return r.version }

func (r *comRuntime) Start() error {
	var err error
	r.apt.do(func() {
		if r.clrHost != nil {
			err = r.clrHost.Start()
			return
		}
		err = r.host.Start()
	})
	return comError(err)
}

func (r *comRuntime) InstallStore(s *assemblyStore) error {
	var err error
	r.apt.do(func() {
		var started bool
		if started, err = r.info.IsStarted(); err != nil {
			return
		}
		if started {
			err = &mscoree.Error{Op: "SetHostControl", HRESULT: hrHostInvalidOperation}
			return
		}
		var h *mscoree.ICLRRuntimeHost
		if h, err = r.info.CLRRuntimeHost(); err != nil {
			return
		}
		control := mscoree.NewHostControl(s.lookup)
		if err = h.SetHostControl(control); err != nil {
			h.Release()
			return
		}
		r.clrHost, r.control = h, control
	})
	return comError(err)
}

func (r *comRuntime) Identity(image []byte) (string, error) {
	var identity string
	var err error
	r.apt.do(func() {
		var m *mscoree.ICLRAssemblyIdentityManager
		if m, err = r.info.AssemblyIdentityManager(); err != nil {
			return
		}
		defer m.Release()
		identity, err = m.BindingIdentity(image)
	})
	return identity, comError(err)
}

func (r *comRuntime) DefaultDomain() (Domain, error) {
	return r.domain(func() (*mscoree.AppDomain, error) { return r.host.GetDefaultDomain() })
}

func (r *comRuntime) CreateDomain(name string) (Domain, error) {
	return r.domain(func() (*mscoree.AppDomain, error) { return r.host.CreateDomain(name) })
}

func (r *comRuntime) domain(get func() (*mscoree.AppDomain, error)) (Domain, error) {
	var d *mscoree.AppDomain
	var name string
	var err error
	r.apt.do(func() {
		if d, err = get(); err != nil {
			return
		}
		if name, err = d.FriendlyName(); err != nil {
			d.Release()
		}
	})
	if err != nil {
		return nil, comError(err)
	}
	return &comDomain{apt: r.apt, ad: d, name: name}, nil
}

func (r *comRuntime) UnloadDomain(d Domain) error {
	cd, ok := d.(*comDomain)
	if !ok {
		return newError(InvalidTarget, StageRestore, "UnloadDomain", "domain does not belong to this runtime")
	}
	var err error
	r.apt.do(func() { err = r.host.UnloadDomain(cd.ad) })
	return comError(err)
}

func (r *comRuntime) Close() error {
	r.apt.do(func() {
		if r.clrHost != nil {
			r.clrHost.Release()
		}
		r.host.Release()
		r.info.Release()
	})
	return nil
}

type comDomain struct {
	apt  *apartment
	ad   *mscoree.AppDomain
	name string
	once sync.Once
}

func (d *comDomain) Name() string { return d.name }

func (d *comDomain) Load(image []byte) (AssemblyHandle, error) {
	var a *mscoree.Assembly
	var err error
	d.apt.do(func() { a, err = d.ad.Load3(image) })
	if err != nil {
		return nil, comError(err)
	}
	return &comAssembly{apt: d.apt, a: a}, nil
}

func (d *comDomain) LoadName(name string) (AssemblyHandle, error) {
	var a *mscoree.Assembly
	var err error
	d.apt.do(func() { a, err = d.ad.Load2(name) })
	if err != nil {
		return nil, comError(err)
	}
	return &comAssembly{apt: d.apt, a: a}, nil
}

func (d *comDomain) Assemblies() ([]AssemblyHandle, error) {
	var as []*mscoree.Assembly
	var err error
	d.apt.do(func() { as, err = d.ad.GetAssemblies() })
	if err != nil {
		return nil, comError(err)
	}
	out := make([]AssemblyHandle, len(as))
	for i, a := range as {
		out[i] = &comAssembly{apt: d.apt, a: a}
	}
	return out, nil
}

func (d *comDomain) TypeFromObject(obj Object) (TypeHandle, error) {
	co, ok := obj.(*comObject)
	if !ok || (co.v.VT != ole.VT_UNKNOWN && co.v.VT != ole.VT_DISPATCH) {
		return nil, newError(InvalidTarget, StageResolve, "TypeFromObject", "not a COM object")
	}
	var t *mscoree.Type
	var err error
	d.apt.do(func() { t, err = mscoree.TypeFromUnknown(mscoree.VariantUnknown(&co.v)) })
	if err != nil {
		return nil, comError(err)
	}
	return &comType{apt: d.apt, t: t}, nil
}

func (d *comDomain) Release() {
	d.once.Do(func() { d.apt.do(func() { d.ad.Release() }) })
}

type comAssembly struct {
	apt  *apartment
	a    *mscoree.Assembly
	once sync.Once
}

func (a *comAssembly) FullName() (string, error) {
	var name string
	var err error
	a.apt.do(func() { name, err = a.a.FullName() })
	return name, comError(err)
}

func (a *comAssembly) Type(name string) (TypeHandle, error) {
	var t *mscoree.Type
	var err error
	a.apt.do(func() { t, err = a.a.GetType(name) })
	if err != nil {
		return nil, comError(err)
	}
	if t == nil {
		return nil, nil
	}
	return &comType{apt: a.apt, t: t}, nil
}

func (a *comAssembly) EntryPoint() (MemberHandle, error) {
	var m *mscoree.MethodInfo
	var err error
	a.apt.do(func() { m, err = a.a.EntryPoint() })
	if err != nil {
		return nil, comError(err)
	}
	if m == nil {
		return nil, nil
	}
	return &comMethod{apt: a.apt, m: m}, nil
}

func (a *comAssembly) Release() {
	a.once.Do(func() { a.apt.do(func() { a.a.Release() }) })
}

type comType struct {
	apt  *apartment
	t    *mscoree.Type
	once sync.Once
}

func (t *comType) FullName() (string, error) {
	var name string
	var err error
	t.apt.do(func() { name, err = t.t.FullName() })
	return name, comError(err)
}

func (t *comType) Methods() ([]MemberHandle, error) {
	var ms []*mscoree.MethodInfo
	var err error
	t.apt.do(func() { ms, err = t.t.GetMethods(methodFlags) })
	if err != nil {
		return nil, comError(err)
	}
	out := make([]MemberHandle, len(ms))
	for i, m := range ms {
		out[i] = &comMethod{apt: t.apt, m: m}
	}
	return out, nil
}

func (t *comType) Constructors() ([]MemberHandle, error) {
	var cs []*mscoree.ConstructorInfo
	var err error
	t.apt.do(func() {
		if cs, err = t.t.GetConstructors(ctorFlags); err != nil {
			return
		}
		// every constructor keeps the type alive for CreateInstance
		for range cs {
			t.t.Unknown().AddRef()
		}
	})
	if err != nil {
		return nil, comError(err)
	}
	out := make([]MemberHandle, len(cs))
	for i, c := range cs {
		out[i] = &comConstructor{apt: t.apt, c: c, owner: t.t}
	}
	return out, nil
}

func (t *comType) Method(name string) (MemberHandle, error) {
	var m *mscoree.MethodInfo
	var err error
	t.apt.do(func() { m, err = t.t.GetMethod(name) })
	if err != nil {
		return nil, comError(err)
	}
	if m == nil {
		return nil, nil
	}
	return &comMethod{apt: t.apt, m: m}, nil
}

func (t *comType) IsInstance(obj Object) (bool, error) {
	co, ok := obj.(*comObject)
	if !ok {
		return false, nil
	}
	var is bool
	var err error
	t.apt.do(func() { is, err = t.t.IsInstanceOfType(&co.v) })
	return is, comError(err)
}

func (t *comType) Release() {
	t.once.Do(func() { t.apt.do(func() { t.t.Release() }) })
}

type comMethod struct {
	apt  *apartment
	m    *mscoree.MethodInfo
	once sync.Once
}

func (m *comMethod) Signature() (string, error) {
	var s string
	var err error
	m.apt.do(func() { s, err = m.m.ToString() })
	return s, comError(err)
}

func (m *comMethod) Static() (bool, error) {
	var static bool
	var err error
	m.apt.do(func() { static, err = m.m.IsStatic() })
	return static, comError(err)
}

func (m *comMethod) Invoke(target Variant, args []Variant) (Variant, error) {
	return invokeOn(m.apt, target, args, func(self *ole.VARIANT, argv []ole.VARIANT) (ole.VARIANT, error) {
		return m.m.Invoke(self, argv)
	})
}

func (m *comMethod) Object() (Object, error) {
	var obj *comObject
	m.apt.do(func() {
		u := m.m.Unknown()
		u.AddRef()
		obj = &comObject{apt: m.apt, v: mscoree.UnknownVariant(u)}
	})
	return obj, nil
}

func (m *comMethod) Release() {
	m.once.Do(func() { m.apt.do(func() { m.m.Release() }) })
}

// comConstructor invokes through the owning type's InvokeMember with
// CreateInstance, which returns the new object as a variant.
type comConstructor struct {
	apt   *apartment
	c     *mscoree.ConstructorInfo
	owner *mscoree.Type
	once  sync.Once
}

func (c *comConstructor) Signature() (string, error) {
	var s string
	var err error
	c.apt.do(func() { s, err = c.c.ToString() })
	return s, comError(err)
}

func (c *comConstructor) Static() (bool, error) { return false, nil }

func (c *comConstructor) Invoke(_ Variant, args []Variant) (Variant, error) {
	return invokeOn(c.apt, Empty(), args, func(_ *ole.VARIANT, argv []ole.VARIANT) (ole.VARIANT, error) {
		return c.owner.InvokeMember("", newObject, nil, argv)
	})
}

func (c *comConstructor) Object() (Object, error) {
	var obj *comObject
	c.apt.do(func() {
		u := c.c.Unknown()
		u.AddRef()
		obj = &comObject{apt: c.apt, v: mscoree.UnknownVariant(u)}
	})
	return obj, nil
}

func (c *comConstructor) Release() {
	c.once.Do(func() {
		c.apt.do(func() {
			c.c.Release()
			c.owner.Release()
		})
	})
}

// comObject owns a VARIANT holding a managed object reference.
type comObject struct {
	apt  *apartment
	v    ole.VARIANT
	once sync.Once
}

func (o *comObject) Release() {
	o.once.Do(func() { o.apt.do(func() { ole.VariantClear(&o.v) }) })
}

// invokeOn marshals target and args, runs call on the apartment and
// converts the result.
func invokeOn(apt *apartment, target Variant, args []Variant, call func(self *ole.VARIANT, argv []ole.VARIANT) (ole.VARIANT, error)) (Variant, error) {
	var out Variant
	var err error
	apt.do(func() {
		var self ole.VARIANT
		if self, _, err = toOLE(target); err != nil {
			return
		}
		argv := make([]ole.VARIANT, 0, len(args))
		var owned []int
		defer func() {
			for _, i := range owned {
				ole.VariantClear(&argv[i])
			}
		}()
		for _, a := range args {
			v, own, cerr := toOLE(a)
			if cerr != nil {
				err = cerr
				return
			}
			if own {
				owned = append(owned, len(argv))
			}
			argv = append(argv, v)
		}
		var ret ole.VARIANT
		if ret, err = call(&self, argv); err != nil {
			return
		}
		out, err = fromOLE(apt, ret)
	})
	return out, comError(err)
}
