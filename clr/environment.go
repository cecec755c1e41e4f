package clr

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lesnuages/clrhost/assembly"
)

// Environment is an initialized CLR with one application domain. It is
// either fully initialized or Initialize fails and releases everything it
// acquired.
type Environment struct {
	opts    *options
	log     *slog.Logger
	version string
	runtime Runtime
	domain  Domain
	// created is set when the domain was created by this environment and
	// must be unloaded on Close.
	created bool

	mu       sync.Mutex
	mscorlib *Assembly
	// stored lists the identities this environment put in the host
	// assembly store.
	stored []string
	closed bool
}

// Initialize binds the requested runtime, starts it if needed and obtains
// the default application domain, or creates one named domainName.
func Initialize(version RuntimeVersion, domainName string, opts ...Option) (*Environment, error) {
	o := buildOptions(opts)
	log := o.logger

	rt, err := o.registry.acquire(version, o.newHost, log, o.hostStore)
	if err != nil {
		return nil, err
	}

	env := &Environment{
		opts:    o,
		log:     log,
		version: rt.Version(),
		runtime: rt,
	}

	if domainName == "" {
		d, err := rt.DefaultDomain()
		if err != nil {
			o.registry.release()
			return nil, withStage(err, StageInitialize, DomainCreationFailed, "GetDefaultDomain")
		}
		env.domain = d
	} else {
		d, err := rt.CreateDomain(domainName)
		if err != nil {
			o.registry.release()
			return nil, withStage(err, StageInitialize, DomainCreationFailed, "CreateDomain")
		}
		env.domain = d
		env.created = true
	}

	log.Debug("environment ready", "runtime", env.version, "domain", env.domain.Name(), "created", env.created)
	return env, nil
}

// InstalledRuntimes lists the runtime versions installed on this machine.
func InstalledRuntimes(opts ...Option) ([]string, error) {
	o := buildOptions(opts)
	return o.registry.installed(o.newHost)
}

// Version returns the runtime version string, for example "v4.0.30319".
func (e *Environment) Version() string { return e.version }

// DomainName returns the name of the environment's application domain.
func (e *Environment) DomainName() string { return e.domain.Name() }

// Logger returns the environment's logger.
func (e *Environment) Logger() *slog.Logger { return e.log }

// Load validates image and loads it into the domain. Images the process
// cannot run, and every refusal from the domain, are LoadRejected.
func (e *Environment) Load(image []byte) (*Assembly, error) {
	img, err := assembly.Parse(image)
	if err != nil {
		return nil, wrapError(InvalidAssemblyImage, StageLoad, "Load", err)
	}
	if err := checkMachine(img, e.opts.arch); err != nil {
		return nil, err
	}
	if e.opts.hostStore {
		if asm, ok, err := e.loadFromStore(image); ok {
			return asm, err
		}
	}
	h, err := e.domain.Load(image)
	if err != nil {
		return nil, loadError(err, "Load_3")
	}
	return e.newAssembly(h)
}

// loadFromStore hands image to the host assembly store and loads it by its
// binding identity. ok is false when no store is installed in the runtime.
func (e *Environment) loadFromStore(image []byte) (asm *Assembly, ok bool, err error) {
	store := e.opts.registry.assemblyStore()
	sr, isStore := e.runtime.(storeRuntime)
	if store == nil || !isStore {
		e.log.Warn("host assembly store unavailable, loading from memory")
		return nil, false, nil
	}
	identity, err := sr.Identity(image)
	if err != nil {
		return nil, true, loadError(err, "GetBindingIdentityFromStream")
	}
	store.add(identity, image)
	h, err := e.domain.LoadName(identity)
	if err != nil {
		store.release(identity)
		return nil, true, loadError(err, "Load_2")
	}
	e.mu.Lock()
	e.stored = append(e.stored, identity)
	e.mu.Unlock()
	e.log.Debug("assembly provided by host store", "identity", identity)
	asm, err = e.newAssembly(h)
	return asm, true, err
}

// LoadByName loads an assembly by display name, for example
// "System.Management.Automation, Version=3.0.0.0, Culture=neutral, PublicKeyToken=31bf3856ad364e35".
func (e *Environment) LoadByName(name string) (*Assembly, error) {
	h, err := e.domain.LoadName(name)
	if err != nil {
		return nil, loadError(err, "Load_2")
	}
	return e.newAssembly(h)
}

// loadError classifies a failure reported by the domain while loading. The
// managed exception, if any, stays in the chain.
func loadError(err error, op string) error {
	var e *Error
	if errors.As(err, &e) {
		e.Stage = StageLoad
		return err
	}
	return wrapError(LoadRejected, StageLoad, op, err)
}

// checkMachine rejects images a process built for arch cannot load. The
// runtime would refuse them with a BadImageFormatException.
func checkMachine(img *assembly.Image, arch string) error {
	is64 := arch == "amd64" || arch == "arm64"
	var reason string
	switch {
	case img.Requires32Bit() && is64:
		reason = "image requires a 32-bit process"
	case img.Machine == assembly.IMAGE_FILE_MACHINE_AMD64 && arch != "amd64",
		img.Machine == assembly.IMAGE_FILE_MACHINE_ARM64 && arch != "arm64":
		reason = "image targets another architecture"
	case img.Machine == assembly.IMAGE_FILE_MACHINE_I386 && !img.ILOnly() && arch != "386":
		reason = "mixed-mode x86 image"
	default:
		return nil
	}
	return newError(LoadRejected, StageLoad, "Load",
		fmt.Sprintf("%s image cannot load in a %s process: %s", img.MachineName(), arch, reason))
}

func (e *Environment) newAssembly(h AssemblyHandle) (*Assembly, error) {
	name, err := h.FullName()
	if err != nil {
		h.Release()
		return nil, withStage(err, StageLoad, LoadRejected, "get_FullName")
	}
	e.log.Debug("assembly loaded", "name", name)
	return &Assembly{env: e, h: h, name: name}, nil
}

// Mscorlib returns the core library of the domain. The result is owned by
// the environment and must not be released.
func (e *Environment) Mscorlib() (*Assembly, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mscorlib != nil {
		return e.mscorlib, nil
	}

	handles, err := e.domain.Assemblies()
	if err != nil {
		return nil, withStage(err, StageResolve, TypeNotFound, "GetAssemblies")
	}
	var found AssemblyHandle
	var foundName string
	for _, h := range handles {
		if found == nil {
			if name, err := h.FullName(); err == nil && strings.HasPrefix(name, "mscorlib,") {
				found, foundName = h, name
				continue
			}
		}
		h.Release()
	}
	if found == nil {
		return nil, newError(TypeNotFound, StageResolve, "GetAssemblies", "mscorlib is not loaded in the domain")
	}
	e.mscorlib = &Assembly{env: e, h: found, name: foundName, shared: true}
	return e.mscorlib, nil
}

// TypeOf returns the runtime type of a managed object.
func (e *Environment) TypeOf(obj Variant) (*Type, error) {
	_, ok := obj.Object()
	if !ok {
		return nil, newError(InvalidTarget, StageResolve, "TypeOf", fmt.Sprintf("%s is not an object", obj.Kind()))
	}
	mscorlib, err := e.Mscorlib()
	if err != nil {
		return nil, err
	}
	objectType, err := mscorlib.Type("System.Object")
	if err != nil {
		return nil, err
	}
	defer objectType.Release()

	rt, err := objectType.Invoke("GetType", obj, nil, Instance)
	if err != nil {
		return nil, err
	}
	defer rt.Clear()

	typeObj, ok := rt.Object()
	if !ok {
		return nil, newError(TypeNotFound, StageResolve, "GetType", "no type returned")
	}
	th, err := e.domain.TypeFromObject(typeObj)
	if err != nil {
		return nil, withStage(err, StageResolve, TypeNotFound, "GetType")
	}
	return newType(e, th)
}

// Close releases the environment's references and unloads the domain if
// the environment created it. The runtime itself stays started.
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if e.mscorlib != nil {
		e.mscorlib.h.Release()
		e.mscorlib = nil
	}

	if store := e.opts.registry.assemblyStore(); store != nil {
		for _, identity := range e.stored {
			store.release(identity)
		}
	}
	e.stored = nil

	var errs []error
	if e.created {
		if err := e.runtime.UnloadDomain(e.domain); err != nil {
			errs = append(errs, withStage(err, StageRestore, KindUnknown, "UnloadDomain"))
		} else {
			e.log.Debug("domain unloaded", "domain", e.domain.Name())
		}
	}
	e.domain.Release()
	e.opts.registry.release()
	return errors.Join(errs...)
}
