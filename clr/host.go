package clr

// Host is the backend giving access to the installed runtimes. The Windows
// build talks to mscoree through COM; tests substitute an in-memory world.
//
// Backend methods report failed calls as *HResultError and managed
// exceptions as *ManagedException. The clr layer classifies them.
type Host interface {
	// InstalledRuntimes lists the runtime version strings installed on
	// the machine, for example "v4.0.30319".
	InstalledRuntimes() ([]string, error)
	// LoadedRuntimes lists the runtimes already loaded in this process.
	LoadedRuntimes() ([]string, error)
	// Bind returns the runtime with the given version string.
	Bind(version string) (Runtime, error)
	Close() error
}

// Runtime is a bound CLR. Start must be idempotent.
type Runtime interface {
	Version() string
	Start() error
	DefaultDomain() (Domain, error)
	CreateDomain(name string) (Domain, error)
	UnloadDomain(d Domain) error
	Close() error
}

// storeRuntime is a Runtime that can serve assemblies from a host assembly
// store. InstallStore must be called before Start.
type storeRuntime interface {
	Runtime
	InstallStore(s *assemblyStore) error
	// Identity returns the binding identity of image, the display name the
	// runtime asks the store for.
	Identity(image []byte) (string, error)
}

// Domain is an application domain.
type Domain interface {
	Name() string
	// Load loads an assembly from its raw image.
	Load(image []byte) (AssemblyHandle, error)
	// LoadName loads an assembly by display name.
	LoadName(name string) (AssemblyHandle, error)
	Assemblies() ([]AssemblyHandle, error)
	// TypeFromObject returns the Type behind a System.Type object.
	TypeFromObject(obj Object) (TypeHandle, error)
	Release()
}

// AssemblyHandle is a loaded assembly.
type AssemblyHandle interface {
	FullName() (string, error)
	// Type returns nil and no error when the assembly has no such type.
	Type(name string) (TypeHandle, error)
	// EntryPoint returns nil and no error for libraries.
	EntryPoint() (MemberHandle, error)
	Release()
}

// TypeHandle is a managed type.
type TypeHandle interface {
	FullName() (string, error)
	// Methods lists public static and instance methods, inherited ones
	// included.
	Methods() ([]MemberHandle, error)
	Constructors() ([]MemberHandle, error)
	// Method returns the public method with the given name or nil.
	Method(name string) (MemberHandle, error)
	IsInstance(obj Object) (bool, error)
	Release()
}

// MemberHandle is a method or constructor.
type MemberHandle interface {
	// Signature returns the reflection signature, as printed by
	// MethodInfo.ToString.
	Signature() (string, error)
	Static() (bool, error)
	// Invoke calls the member. Constructors ignore target and return the
	// new object.
	Invoke(target Variant, args []Variant) (Variant, error)
	// Object returns the member itself as a managed object.
	Object() (Object, error)
	Release()
}
