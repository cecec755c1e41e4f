package clr

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// registry holds the process-wide runtime state. Only one CLR version can be
// active in a process: the first successful acquire pins it, and the runtime
// stays started for the rest of the process lifetime.
type registry struct {
	mu      sync.Mutex
	host    Host
	version string
	runtime Runtime
	refs    int
	// store is the host assembly store installed before the runtime
	// started, nil when none is.
	store *assemblyStore
}

var (
	processRegistry = &registry{}

	hostRegistriesMu sync.Mutex
	hostRegistries   = map[Host]*registry{}
)

// registryFor returns the registry of a caller-supplied host. Each host gets
// its own pinned runtime.
func registryFor(h Host) *registry {
	hostRegistriesMu.Lock()
	defer hostRegistriesMu.Unlock()
	r, ok := hostRegistries[h]
	if !ok {
		r = &registry{host: h}
		hostRegistries[h] = r
	}
	return r
}

// acquire returns the shared started runtime for requested, starting it on
// first use. Concurrent callers block on the lock and reuse the result.
// withStore asks for the host assembly store to be installed when this call
// starts the runtime.
func (r *registry) acquire(requested RuntimeVersion, newHost func() (Host, error), log *slog.Logger, withStore bool) (Runtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runtime != nil {
		want := requested.BindingString()
		if want != "" && !sameRuntime(want, r.version) {
			return nil, newError(AlreadyInUseIncompatibleVersion, StageInitialize, "acquire",
				fmt.Sprintf("%s requested but %s is active", want, r.version))
		}
		r.refs++
		log.Debug("reusing runtime", "version", r.version, "refs", r.refs)
		return r.runtime, nil
	}

	if r.host == nil {
		h, err := newHost()
		if err != nil {
			return nil, withStage(err, StageInitialize, HostingApiUnavailable, "CLRCreateInstance")
		}
		r.host = h
	}

	version, err := r.selectVersion(requested, log)
	if err != nil {
		return nil, err
	}

	rt, err := r.host.Bind(version)
	if err != nil {
		return nil, withStage(err, StageInitialize, RuntimeNotFound, "GetRuntime")
	}
	if withStore {
		r.installStore(rt, log)
	}
	if err := rt.Start(); err != nil {
		rt.Close()
		r.store = nil
		return nil, withStage(err, StageInitialize, HostingApiUnavailable, "Start")
	}

	log.Info("runtime started", "version", version)
	r.version = version
	r.runtime = rt
	r.refs = 1
	return rt, nil
}

// installStore registers a host assembly store with rt before it starts.
// A runtime that cannot take one still starts and loads images from memory.
func (r *registry) installStore(rt Runtime, log *slog.Logger) {
	sr, ok := rt.(storeRuntime)
	if !ok {
		log.Debug("runtime has no host assembly store support")
		return
	}
	store := newAssemblyStore()
	if err := sr.InstallStore(store); err != nil {
		log.Debug("host assembly store not installed", "err", err)
		return
	}
	r.store = store
}

// assemblyStore returns the installed host assembly store or nil.
func (r *registry) assemblyStore() *assemblyStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}

// selectVersion picks the runtime to bind. A runtime loaded into the process
// by someone else wins over the installed list and must be compatible with
// the request. There is no fallback between versions.
func (r *registry) selectVersion(requested RuntimeVersion, log *slog.Logger) (string, error) {
	want := requested.BindingString()

	loaded, err := r.host.LoadedRuntimes()
	if err != nil {
		log.Debug("cannot enumerate loaded runtimes", "err", err)
	}
	if len(loaded) > 0 {
		active := loaded[0]
		if want != "" && !sameRuntime(want, active) {
			return "", newError(AlreadyInUseIncompatibleVersion, StageInitialize, "EnumerateLoadedRuntimes",
				fmt.Sprintf("%s requested but %s is loaded", want, active))
		}
		return active, nil
	}

	installed, err := r.host.InstalledRuntimes()
	if err != nil {
		return "", withStage(err, StageInitialize, RuntimeNotFound, "EnumerateInstalledRuntimes")
	}
	log.Debug("installed runtimes", "versions", installed)

	if want == "" {
		latest, ok := latestRuntime(installed)
		if !ok {
			return "", newError(RuntimeNotFound, StageInitialize, "EnumerateInstalledRuntimes", "no runtime installed")
		}
		return latest, nil
	}
	if !isInstalled(installed, want) {
		return "", newError(RuntimeNotFound, StageInitialize, "GetRuntime",
			fmt.Sprintf("%s (%s) is not installed", requested, want))
	}
	return want, nil
}

// release drops one environment reference. The runtime is kept: a started
// CLR cannot be restarted in the same process.
func (r *registry) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs--
	}
}

// installed lists installed runtimes without starting anything.
func (r *registry) installed(newHost func() (Host, error)) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host == nil {
		h, err := newHost()
		if err != nil {
			return nil, withStage(err, StageInitialize, HostingApiUnavailable, "CLRCreateInstance")
		}
		r.host = h
	}
	versions, err := r.host.InstalledRuntimes()
	if err != nil {
		return nil, withStage(err, StageInitialize, RuntimeNotFound, "EnumerateInstalledRuntimes")
	}
	return versions, nil
}

// state reports the pinned version and the live reference count.
func (r *registry) state() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version, r.refs
}

func sameRuntime(a, b string) bool {
	return strings.EqualFold(a, b) || (familyOf(a) != "" && familyOf(a) == familyOf(b))
}
