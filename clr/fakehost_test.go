package clr

import (
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lesnuages/clrhost/internal/testutil"
)

// fakeWorld is an in-memory managed world behind the Host interfaces. It
// models just enough of mscorlib for console redirection, Environment.Exit
// lookup and the PowerShell pipeline, plus a few test programs keyed by the
// Tag of their synthetic image.

const (
	mscorlibName   = "mscorlib, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b77a5c561934e089"
	systemName     = "System, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b77a5c561934e089"
	psResultsType  = "System.Collections.ObjectModel.Collection`1[[System.Management.Automation.PSObject, System.Management.Automation, Version=3.0.0.0, Culture=neutral, PublicKeyToken=31bf3856ad364e35]]"
	untouchedByte  = 0x55 // push rbp
	crlf           = "\r\n"
	invalidOpHR    = 0x80131509
	fileNotFoundHR = 0x80070002
)

// nextExitAddr gives every world its own Environment.Exit address, so
// parallel tests never share an entry of the process-wide patch table.
var nextExitAddr atomic.Uintptr

func init() {
	nextExitAddr.Store(0x10001000)
}

type fakeWorld struct {
	host *fakeHost
	mem  *fakeMemory

	mu        sync.Mutex
	installed []string
	loaded    []string
	bindErr   error
	createErr error
	starts    int
	created   []string
	unloaded  []string

	mscorlib   *fakeAsm
	system     *fakeAsm
	named      map[string]*fakeAsm
	programs   map[string]*fakeAsm
	exitMember *fakeMember

	stdout     *fakeWriter
	stderr     *fakeWriter
	out        *fakeWriter
	errw       *fakeWriter
	failSetErr bool

	exitAddr     uintptr
	pointerWidth int
	exitCodes    []int32
	terminated   bool

	scripts map[string]string

	// store is the host assembly store installed in the runtime.
	store      *assemblyStore
	storeErr   error
	rawLoads   int
	storeLoads int

	// afterSnapshot runs once, right after a StringWriter was read.
	afterSnapshot func()

	liveObjects atomic.Int64
}

func newFakeWorld(installed ...string) *fakeWorld {
	w := &fakeWorld{
		mem:          &fakeMemory{code: map[uintptr]byte{}},
		installed:    installed,
		named:        map[string]*fakeAsm{},
		programs:     map[string]*fakeAsm{},
		exitAddr:     nextExitAddr.Add(0x1000),
		pointerWidth: 64,
		scripts:      map[string]string{},
	}
	w.host = &fakeHost{w: w}
	w.stdout = &fakeWriter{types: []string{"System.IO.TextWriter+SyncTextWriter", "System.IO.TextWriter"}}
	w.stderr = &fakeWriter{types: []string{"System.IO.TextWriter+SyncTextWriter", "System.IO.TextWriter"}}
	w.out, w.errw = w.stdout, w.stderr
	w.buildMscorlib()
	w.buildAutomation()
	w.buildPrograms()
	return w
}

func (w *fakeWorld) opts() []Option {
	return []Option{
		WithHost(w.host),
		withMemory(w.mem),
		withArch("amd64"),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
}

// registered returns the registry state of this world's host.
func (w *fakeWorld) registered() (string, int) {
	return registryFor(w.host).state()
}

// managed objects

type fakeObj struct {
	w        *fakeWorld
	types    []string
	val      any
	released atomic.Bool
}

func (o *fakeObj) Release() {
	if o.released.CompareAndSwap(false, true) {
		o.w.liveObjects.Add(-1)
	}
}

func (w *fakeWorld) newObject(val any, types ...string) *fakeObj {
	w.liveObjects.Add(1)
	return &fakeObj{w: w, types: append(slices.Clone(types), "System.Object"), val: val}
}

func (w *fakeWorld) newObj(val any, types ...string) Variant {
	return ObjectOf(w.newObject(val, types...))
}

func valueOf[T any](v Variant) (T, bool) {
	var zero T
	o, ok := v.Object()
	if !ok {
		return zero, false
	}
	fo, ok := o.(*fakeObj)
	if !ok {
		return zero, false
	}
	t, ok := fo.val.(T)
	return t, ok
}

type fakeWriter struct {
	types []string
	buf   strings.Builder
}

type fakeTypeRef struct{ name string }

type methodRef struct{ m *fakeMember }

type methodHandle struct{ m *fakeMember }

type calculator struct{ value int32 }

type runspace struct{ open bool }

type pipeline struct {
	rs       *runspace
	commands []string
}

type psItem struct{ text string }

type psResults struct{ items []string }

func (w *fakeWorld) write(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out.buf.WriteString(s)
}

func (w *fakeWorld) writeLine(s string) { w.write(s + crlf) }

// console returns what reached the real standard output.
func (w *fakeWorld) console() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stdout.buf.String()
}

// exit records an Environment.Exit call and reports whether it returned to
// the caller, which only happens when its first byte is a ret.
func (w *fakeWorld) exit(code int32) bool {
	patched := w.mem.at(w.exitAddr) == retPatch[0]
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exitCodes = append(w.exitCodes, code)
	if !patched {
		w.terminated = true
	}
	return patched
}

// type model

type memberFunc func(target Variant, args []Variant) (Variant, error)

type fakeMember struct {
	sig    string
	static bool
	fn     memberFunc
}

type fakeType struct {
	name    string
	methods []*fakeMember
	ctors   []*fakeMember
}

func (t *fakeType) static(sig string, fn memberFunc) *fakeType {
	t.methods = append(t.methods, &fakeMember{sig: sig, static: true, fn: fn})
	return t
}

func (t *fakeType) instance(sig string, fn memberFunc) *fakeType {
	t.methods = append(t.methods, &fakeMember{sig: sig, fn: fn})
	return t
}

func (t *fakeType) ctor(sig string, fn memberFunc) *fakeType {
	t.ctors = append(t.ctors, &fakeMember{sig: sig, fn: fn})
	return t
}

type fakeAsm struct {
	fullName  string
	types     map[string]*fakeType
	entry     *fakeMember
	badFormat bool
}

func newFakeAsm(fullName string) *fakeAsm {
	return &fakeAsm{fullName: fullName, types: map[string]*fakeType{}}
}

func (a *fakeAsm) define(name string) *fakeType {
	t := &fakeType{name: name}
	a.types[name] = t
	return t
}

func (w *fakeWorld) findType(name string) *fakeType {
	for _, a := range append([]*fakeAsm{w.mscorlib, w.system}, w.allAssemblies()...) {
		if t, ok := a.types[name]; ok {
			return t
		}
	}
	return nil
}

func (w *fakeWorld) allAssemblies() []*fakeAsm {
	var out []*fakeAsm
	for _, a := range w.named {
		out = append(out, a)
	}
	for _, a := range w.programs {
		out = append(out, a)
	}
	return out
}

func empty(Variant, []Variant) (Variant, error) { return Empty(), nil }

func (w *fakeWorld) buildMscorlib() {
	w.system = newFakeAsm(systemName)
	w.system.define("System.Uri")

	m := newFakeAsm(mscorlibName)
	w.mscorlib = m

	m.define("System.Object").
		instance("System.Type GetType()", func(target Variant, _ []Variant) (Variant, error) {
			o, _ := target.Object()
			fo := o.(*fakeObj)
			return w.newObj(&fakeTypeRef{name: fo.types[0]}, "System.RuntimeType", "System.Type"), nil
		}).
		instance("System.String ToString()", func(target Variant, _ []Variant) (Variant, error) {
			o, _ := target.Object()
			return String(o.(*fakeObj).types[0]), nil
		}).
		instance("Boolean Equals(System.Object)", func(target Variant, args []Variant) (Variant, error) {
			a, _ := target.Object()
			b, _ := args[0].Object()
			return Bool(a == b), nil
		})

	writerObj := func(fw *fakeWriter) Variant { return w.newObj(fw, fw.types...) }
	m.define("System.Console").
		static("System.IO.TextWriter get_Out()", func(Variant, []Variant) (Variant, error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			return writerObj(w.out), nil
		}).
		static("System.IO.TextWriter get_Error()", func(Variant, []Variant) (Variant, error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			return writerObj(w.errw), nil
		}).
		static("Void SetOut(System.IO.TextWriter)", func(_ Variant, args []Variant) (Variant, error) {
			fw, ok := valueOf[*fakeWriter](args[0])
			if !ok {
				return Empty(), &ManagedException{TypeName: "System.ArgumentNullException", Message: "Value cannot be null.", HResult: 0x80004003}
			}
			w.mu.Lock()
			defer w.mu.Unlock()
			w.out = fw
			return Empty(), nil
		}).
		static("Void SetError(System.IO.TextWriter)", func(_ Variant, args []Variant) (Variant, error) {
			fw, ok := valueOf[*fakeWriter](args[0])
			w.mu.Lock()
			defer w.mu.Unlock()
			if !ok || w.failSetErr {
				return Empty(), &ManagedException{TypeName: "System.ArgumentNullException", Message: "Value cannot be null.", HResult: 0x80004003}
			}
			w.errw = fw
			return Empty(), nil
		}).
		static("Void WriteLine()", func(Variant, []Variant) (Variant, error) {
			w.write(crlf)
			return Empty(), nil
		}).
		static("Void WriteLine(System.String)", func(_ Variant, args []Variant) (Variant, error) {
			s, _ := args[0].Text()
			w.writeLine(s)
			return Empty(), nil
		}).
		static("Void WriteLine(Int32)", func(_ Variant, args []Variant) (Variant, error) {
			n, _ := args[0].Int()
			w.writeLine(strconv.FormatInt(n, 10))
			return Empty(), nil
		}).
		static("Void Write(System.String)", func(_ Variant, args []Variant) (Variant, error) {
			s, _ := args[0].Text()
			w.write(s)
			return Empty(), nil
		})

	stringWriterTypes := []string{"System.IO.StringWriter", "System.IO.TextWriter", "System.MarshalByRefObject"}
	m.define("System.IO.StringWriter").
		ctor("Void .ctor()", func(Variant, []Variant) (Variant, error) {
			return writerObj(&fakeWriter{types: stringWriterTypes}), nil
		}).
		ctor("Void .ctor(System.Text.StringBuilder)", empty).
		instance("System.String ToString()", func(target Variant, _ []Variant) (Variant, error) {
			fw, _ := valueOf[*fakeWriter](target)
			w.mu.Lock()
			s := fw.buf.String()
			after := w.afterSnapshot
			w.afterSnapshot = nil
			w.mu.Unlock()
			if after != nil {
				after()
			}
			return String(s), nil
		}).
		instance("System.Text.StringBuilder GetStringBuilder()", func(target Variant, _ []Variant) (Variant, error) {
			fw, _ := valueOf[*fakeWriter](target)
			return w.newObj(fw, "System.Text.StringBuilder"), nil
		}).
		instance("Void Write(System.String)", func(target Variant, args []Variant) (Variant, error) {
			fw, _ := valueOf[*fakeWriter](target)
			s, _ := args[0].Text()
			w.mu.Lock()
			defer w.mu.Unlock()
			fw.buf.WriteString(s)
			return Empty(), nil
		})

	m.define("System.Text.StringBuilder").
		instance("Void set_Length(Int32)", func(target Variant, args []Variant) (Variant, error) {
			fw, _ := valueOf[*fakeWriter](target)
			n, _ := args[0].Int()
			w.mu.Lock()
			defer w.mu.Unlock()
			s := fw.buf.String()
			if n < 0 || int(n) > len(s) {
				return Empty(), &ManagedException{TypeName: "System.ArgumentOutOfRangeException", HResult: 0x80131502}
			}
			fw.buf.Reset()
			fw.buf.WriteString(s[:n])
			return Empty(), nil
		}).
		instance("Int32 get_Length()", func(target Variant, _ []Variant) (Variant, error) {
			fw, _ := valueOf[*fakeWriter](target)
			w.mu.Lock()
			defer w.mu.Unlock()
			return Int32(int32(fw.buf.Len())), nil
		})

	env := m.define("System.Environment").
		static("Void Exit(Int32)", func(_ Variant, args []Variant) (Variant, error) {
			n, _ := args[0].Int()
			w.exit(int32(n))
			return Empty(), nil
		}).
		static("System.String get_NewLine()", func(Variant, []Variant) (Variant, error) {
			return String(crlf), nil
		})
	w.exitMember = env.methods[0]

	m.define("System.Reflection.MethodInfo").
		instance("System.RuntimeMethodHandle get_MethodHandle()", func(target Variant, _ []Variant) (Variant, error) {
			ref, ok := valueOf[*methodRef](target)
			if !ok {
				return Empty(), &ManagedException{TypeName: "System.Reflection.TargetException", HResult: 0x80131603}
			}
			return w.newObj(&methodHandle{m: ref.m}, "System.RuntimeMethodHandle", "System.ValueType"), nil
		}).
		instance("System.String get_Name()", func(target Variant, _ []Variant) (Variant, error) {
			ref, _ := valueOf[*methodRef](target)
			sig, _ := ParseSignature(ref.m.sig)
			return String(sig.Name), nil
		})

	m.define("System.RuntimeMethodHandle").
		instance("IntPtr GetFunctionPointer()", func(target Variant, _ []Variant) (Variant, error) {
			h, _ := valueOf[*methodHandle](target)
			addr := uintptr(0xdead0000)
			if h.m == w.exitMember {
				addr = w.exitAddr
			}
			if w.pointerWidth == 32 {
				return Int32(int32(addr)), nil
			}
			return Int64(int64(addr)), nil
		})
}

func (w *fakeWorld) buildAutomation() {
	a := newFakeAsm(AutomationAssembly)
	w.named["System.Management.Automation"] = a

	a.define(runspaceFactoryType).
		static("System.Management.Automation.Runspaces.Runspace CreateRunspace()", func(Variant, []Variant) (Variant, error) {
			return w.newObj(&runspace{}, "System.Management.Automation.Runspaces.LocalRunspace", runspaceType), nil
		})

	a.define(runspaceType).
		instance("Void Open()", func(target Variant, _ []Variant) (Variant, error) {
			rs, _ := valueOf[*runspace](target)
			rs.open = true
			return Empty(), nil
		}).
		instance("Void Close()", func(target Variant, _ []Variant) (Variant, error) {
			rs, _ := valueOf[*runspace](target)
			rs.open = false
			return Empty(), nil
		}).
		instance("System.Management.Automation.Runspaces.Pipeline CreatePipeline()", func(target Variant, _ []Variant) (Variant, error) {
			rs, _ := valueOf[*runspace](target)
			if !rs.open {
				return Empty(), &ManagedException{
					TypeName: "System.Management.Automation.Runspaces.InvalidRunspaceStateException",
					Message:  "The runspace is not open.",
					HResult:  invalidOpHR,
				}
			}
			return w.newObj(&pipeline{rs: rs}, "System.Management.Automation.Runspaces.LocalPipeline", pipelineType), nil
		})

	a.define(pipelineType).
		instance("System.Management.Automation.Runspaces.CommandCollection get_Commands()", func(target Variant, _ []Variant) (Variant, error) {
			p, _ := valueOf[*pipeline](target)
			return w.newObj(p, commandCollectionType), nil
		}).
		instance("System.Collections.ObjectModel.Collection`1[System.Management.Automation.PSObject] Invoke()", func(target Variant, _ []Variant) (Variant, error) {
			p, _ := valueOf[*pipeline](target)
			if len(p.commands) == 0 {
				return Empty(), &ManagedException{TypeName: "System.InvalidOperationException", Message: "no commands", HResult: invalidOpHR}
			}
			script := p.commands[0]
			w.mu.Lock()
			text, ok := w.scripts[script]
			w.mu.Unlock()
			if !ok {
				return Empty(), &ManagedException{
					TypeName: "System.Management.Automation.CommandNotFoundException",
					Message:  "The term '" + script + "' is not recognized as the name of a cmdlet.",
					HResult:  0x80131501,
				}
			}
			res := &psResults{}
			if slices.Contains(p.commands[1:], "Out-String") {
				res.items = []string{text}
			} else {
				res.items = strings.SplitAfter(text, crlf)
			}
			return w.newObj(res, psResultsType), nil
		})

	a.define(commandCollectionType).
		instance("Void AddScript(System.String)", func(target Variant, args []Variant) (Variant, error) {
			p, _ := valueOf[*pipeline](target)
			s, _ := args[0].Text()
			p.commands = append(p.commands, s)
			return Empty(), nil
		}).
		instance("Void AddScript(System.String, Boolean)", empty).
		instance("Void Add(System.String)", func(target Variant, args []Variant) (Variant, error) {
			p, _ := valueOf[*pipeline](target)
			s, _ := args[0].Text()
			p.commands = append(p.commands, s)
			return Empty(), nil
		}).
		instance("Void Add(System.Management.Automation.Runspaces.Command)", empty)

	a.define(psObjectType).
		instance("System.String ToString()", func(target Variant, _ []Variant) (Variant, error) {
			item, _ := valueOf[*psItem](target)
			return String(item.text), nil
		})

	a.define(psResultsType).
		instance("Int32 get_Count()", func(target Variant, _ []Variant) (Variant, error) {
			res, _ := valueOf[*psResults](target)
			return Int32(int32(len(res.items))), nil
		}).
		instance("System.Management.Automation.PSObject get_Item(Int32)", func(target Variant, args []Variant) (Variant, error) {
			res, _ := valueOf[*psResults](target)
			i, _ := args[0].Int()
			if i < 0 || int(i) >= len(res.items) {
				return Empty(), &ManagedException{TypeName: "System.ArgumentOutOfRangeException", HResult: 0x80131502}
			}
			return w.newObj(&psItem{text: res.items[i]}, psObjectType), nil
		})
}

// program registers an executable whose entry point runs main.
func (w *fakeWorld) program(tag, entrySig string, main func(args []string) (Variant, error)) *fakeAsm {
	a := newFakeAsm(tag + ", Version=1.0.0.0, Culture=neutral, PublicKeyToken=null")
	a.entry = &fakeMember{sig: entrySig, static: true, fn: func(_ Variant, args []Variant) (Variant, error) {
		var argv []string
		if len(args) == 1 {
			if n, err := args[0].Native(); err == nil {
				argv, _ = n.([]string)
			}
		}
		return main(argv)
	}}
	w.programs[tag] = a
	return a
}

func (w *fakeWorld) buildPrograms() {
	w.program("hello", "Void Main(System.String[])", func(args []string) (Variant, error) {
		w.writeLine("Hello, World!")
		for _, a := range args {
			w.writeLine("arg: " + a)
		}
		return Empty(), nil
	})

	w.program("noargs", "Void Main()", func([]string) (Variant, error) {
		w.writeLine("no arguments")
		return Empty(), nil
	})

	w.program("status", "Int32 Main(System.String[])", func(args []string) (Variant, error) {
		return Int32(int32(len(args))), nil
	})

	w.program("exit", "Void Main(System.String[])", func([]string) (Variant, error) {
		w.writeLine("before exit")
		if !w.exit(1) {
			return Empty(), nil
		}
		w.writeLine("after exit")
		return Empty(), nil
	})

	w.program("throws", "Void Main(System.String[])", func([]string) (Variant, error) {
		w.writeLine("about to fail")
		return Empty(), &ManagedException{
			TypeName: "System.InvalidOperationException",
			Message:  "boom",
			HResult:  invalidOpHR,
		}
	})

	w.program("badsig", "Void Main(Int32)", func([]string) (Variant, error) {
		return Empty(), nil
	})

	w.program("corrupt", "Void Main()", func([]string) (Variant, error) {
		return Empty(), nil
	}).badFormat = true

	calc := newFakeAsm("Calc, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null")
	w.programs["calc"] = calc
	calcTypes := []string{"Demo.Calculator"}
	calc.define("Demo.Calculator").
		ctor("Void .ctor()", func(Variant, []Variant) (Variant, error) {
			return w.newObj(&calculator{}, calcTypes...), nil
		}).
		ctor("Void .ctor(Int32)", func(_ Variant, args []Variant) (Variant, error) {
			n, _ := args[0].Int()
			return w.newObj(&calculator{value: int32(n)}, calcTypes...), nil
		}).
		static("Int32 Add(Int32, Int32)", func(_ Variant, args []Variant) (Variant, error) {
			a, _ := args[0].Int()
			b, _ := args[1].Int()
			return Int32(int32(a + b)), nil
		}).
		static("Int64 Add(Int64, Int64)", func(_ Variant, args []Variant) (Variant, error) {
			a, _ := args[0].Int()
			b, _ := args[1].Int()
			return Int64(a + b), nil
		}).
		instance("Void Add(Int32)", func(target Variant, args []Variant) (Variant, error) {
			c, _ := valueOf[*calculator](target)
			n, _ := args[0].Int()
			c.value += int32(n)
			return Empty(), nil
		}).
		instance("Int32 get_Value()", func(target Variant, _ []Variant) (Variant, error) {
			c, _ := valueOf[*calculator](target)
			return Int32(c.value), nil
		}).
		static("System.String Echo(System.String)", func(_ Variant, args []Variant) (Variant, error) {
			s, _ := args[0].Text()
			return String("string:" + s), nil
		}).
		static("System.String Echo(System.Object)", func(Variant, []Variant) (Variant, error) {
			return String("object"), nil
		}).
		static("Byte[] Reverse(Byte[])", func(_ Variant, args []Variant) (Variant, error) {
			n, _ := args[0].Native()
			b := slices.Clone(n.([]byte))
			slices.Reverse(b)
			return Bytes(b), nil
		}).
		static("System.String Join(System.String[])", func(_ Variant, args []Variant) (Variant, error) {
			n, _ := args[0].Native()
			return String(strings.Join(n.([]string), ",")), nil
		}).
		static("Boolean Not(Boolean)", func(_ Variant, args []Variant) (Variant, error) {
			n, _ := args[0].Native()
			return Bool(!n.(bool)), nil
		}).
		static("Void Fail()", func(Variant, []Variant) (Variant, error) {
			return Empty(), &ManagedException{TypeName: "System.ArgumentException", Message: "bad argument", HResult: 0x80070057}
		}).
		static("Void Take(System.IO.Stream)", empty).
		static("Void Take(System.IO.TextWriter)", empty).
		static("Void Swap(Int32 ByRef, Int32 ByRef)", empty)
}

// image returns a synthetic image for the program registered as tag.
func image(tag string) []byte {
	return testutil.PEImage(testutil.ImageOptions{Tag: tag})
}

func libraryImage(tag string) []byte {
	return testutil.PEImage(testutil.ImageOptions{Tag: tag, DLL: true, NoEntryPoint: true})
}

// host backend

type fakeHost struct{ w *fakeWorld }

func (h *fakeHost) InstalledRuntimes() ([]string, error) {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	return slices.Clone(h.w.installed), nil
}

func (h *fakeHost) LoadedRuntimes() ([]string, error) {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	return slices.Clone(h.w.loaded), nil
}

func (h *fakeHost) Bind(version string) (Runtime, error) {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	if h.w.bindErr != nil {
		return nil, h.w.bindErr
	}
	if !slices.Contains(h.w.installed, version) {
		return nil, &HResultError{Op: "GetRuntime", Code: 0x80131700}
	}
	return &fakeRuntime{w: h.w, version: version}, nil
}

func (h *fakeHost) Close() error { return nil }

type fakeRuntime struct {
	w       *fakeWorld
	version string
}

func (r *fakeRuntime) Version() string { return r.version }

func (r *fakeRuntime) Start() error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.starts++
	if !slices.Contains(r.w.loaded, r.version) {
		r.w.loaded = append(r.w.loaded, r.version)
	}
	return nil
}

var _ storeRuntime = (*fakeRuntime)(nil)

func (r *fakeRuntime) InstallStore(s *assemblyStore) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if r.w.storeErr != nil {
		return r.w.storeErr
	}
	if slices.Contains(r.w.loaded, r.version) {
		// HOST_E_INVALIDOPERATION
		return &HResultError{Op: "SetHostControl", Code: 0x80131022}
	}
	r.w.store = s
	return nil
}

func (r *fakeRuntime) Identity(image []byte) (string, error) {
	a, ok := r.w.programs[testutil.ImageTag(image)]
	if !ok || a.badFormat {
		return "", &ManagedException{TypeName: "System.BadImageFormatException", HResult: 0x8007000B}
	}
	return a.fullName, nil
}

func (r *fakeRuntime) DefaultDomain() (Domain, error) {
	return &fakeDomain{w: r.w, name: "DefaultDomain"}, nil
}

func (r *fakeRuntime) CreateDomain(name string) (Domain, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if r.w.createErr != nil {
		return nil, r.w.createErr
	}
	r.w.created = append(r.w.created, name)
	return &fakeDomain{w: r.w, name: name}, nil
}

func (r *fakeRuntime) UnloadDomain(d Domain) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.unloaded = append(r.w.unloaded, d.Name())
	return nil
}

func (r *fakeRuntime) Close() error { return nil }

type fakeDomain struct {
	w    *fakeWorld
	name string
}

func (d *fakeDomain) Name() string { return d.name }

func (d *fakeDomain) Load(image []byte) (AssemblyHandle, error) {
	d.w.mu.Lock()
	d.w.rawLoads++
	d.w.mu.Unlock()
	a, ok := d.w.programs[testutil.ImageTag(image)]
	if !ok {
		return nil, &ManagedException{
			TypeName: "System.IO.FileLoadException",
			Message:  "Could not load file or assembly.",
			HResult:  0x80131621,
		}
	}
	if a.badFormat {
		return nil, &ManagedException{TypeName: "System.BadImageFormatException", HResult: 0x8007000B}
	}
	return &fakeAssembly{w: d.w, a: a}, nil
}

func (d *fakeDomain) LoadName(name string) (AssemblyHandle, error) {
	d.w.mu.Lock()
	store := d.w.store
	d.w.mu.Unlock()
	if store != nil {
		if image, _, ok := store.lookup(name); ok {
			d.w.mu.Lock()
			d.w.storeLoads++
			d.w.mu.Unlock()
			return &fakeAssembly{w: d.w, a: d.w.programs[testutil.ImageTag(image)]}, nil
		}
	}
	simple, _, _ := strings.Cut(name, ",")
	a, ok := d.w.named[strings.TrimSpace(simple)]
	if !ok {
		return nil, &ManagedException{
			TypeName: "System.IO.FileNotFoundException",
			Message:  "Could not load file or assembly '" + name + "'.",
			HResult:  fileNotFoundHR,
		}
	}
	return &fakeAssembly{w: d.w, a: a}, nil
}

func (d *fakeDomain) Assemblies() ([]AssemblyHandle, error) {
	return []AssemblyHandle{
		&fakeAssembly{w: d.w, a: d.w.system},
		&fakeAssembly{w: d.w, a: d.w.mscorlib},
	}, nil
}

func (d *fakeDomain) TypeFromObject(obj Object) (TypeHandle, error) {
	fo, ok := obj.(*fakeObj)
	if !ok {
		return nil, errors.New("not a fake object")
	}
	ref, ok := fo.val.(*fakeTypeRef)
	if !ok {
		return nil, &ManagedException{TypeName: "System.InvalidCastException", HResult: 0x80004002}
	}
	t := d.w.findType(ref.name)
	if t == nil {
		return nil, &HResultError{Op: "QueryInterface", Code: 0x80004002}
	}
	return &fakeTypeHandle{w: d.w, t: t}, nil
}

func (d *fakeDomain) Release() {}

type fakeAssembly struct {
	w *fakeWorld
	a *fakeAsm
}

func (a *fakeAssembly) FullName() (string, error) { return a.a.fullName, nil }

func (a *fakeAssembly) Type(name string) (TypeHandle, error) {
	t, ok := a.a.types[name]
	if !ok {
		return nil, nil
	}
	return &fakeTypeHandle{w: a.w, t: t}, nil
}

func (a *fakeAssembly) EntryPoint() (MemberHandle, error) {
	if a.a.entry == nil {
		return nil, nil
	}
	return &fakeMemberHandle{w: a.w, m: a.a.entry}, nil
}

func (a *fakeAssembly) Release() {}

type fakeTypeHandle struct {
	w *fakeWorld
	t *fakeType
}

func (t *fakeTypeHandle) FullName() (string, error) { return t.t.name, nil }

func (t *fakeTypeHandle) Methods() ([]MemberHandle, error) {
	return t.handles(t.t.methods), nil
}

func (t *fakeTypeHandle) Constructors() ([]MemberHandle, error) {
	return t.handles(t.t.ctors), nil
}

func (t *fakeTypeHandle) handles(ms []*fakeMember) []MemberHandle {
	out := make([]MemberHandle, len(ms))
	for i, m := range ms {
		out[i] = &fakeMemberHandle{w: t.w, m: m}
	}
	return out
}

func (t *fakeTypeHandle) Method(name string) (MemberHandle, error) {
	for _, m := range t.t.methods {
		if sig, err := ParseSignature(m.sig); err == nil && sig.Name == name {
			return &fakeMemberHandle{w: t.w, m: m}, nil
		}
	}
	return nil, nil
}

func (t *fakeTypeHandle) IsInstance(obj Object) (bool, error) {
	fo, ok := obj.(*fakeObj)
	if !ok {
		return false, nil
	}
	return slices.Contains(fo.types, t.t.name), nil
}

func (t *fakeTypeHandle) Release() {}

type fakeMemberHandle struct {
	w *fakeWorld
	m *fakeMember
}

func (m *fakeMemberHandle) Signature() (string, error) { return m.m.sig, nil }

func (m *fakeMemberHandle) Static() (bool, error) { return m.m.static, nil }

func (m *fakeMemberHandle) Invoke(target Variant, args []Variant) (Variant, error) {
	return m.m.fn(target, args)
}

func (m *fakeMemberHandle) Object() (Object, error) {
	return m.w.newObject(&methodRef{m: m.m},
		"System.Reflection.RuntimeMethodInfo",
		"System.Reflection.MethodInfo",
		"System.Reflection.MethodBase",
		"System.Reflection.MemberInfo"), nil
}

func (m *fakeMemberHandle) Release() {}

// fakeMemory stands in for the code pages of the process.
type fakeMemory struct {
	mu     sync.Mutex
	code   map[uintptr]byte
	writes int
	fail   error
}

func (m *fakeMemory) Write(addr uintptr, b []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, &PatchError{Op: "WriteCode", Addr: addr, Err: m.fail}
	}
	orig := make([]byte, len(b))
	for i, c := range b {
		a := addr + uintptr(i)
		old, ok := m.code[a]
		if !ok {
			old = untouchedByte
		}
		orig[i] = old
		m.code[a] = c
	}
	m.writes++
	return orig, nil
}

func (m *fakeMemory) at(addr uintptr) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.code[addr]; ok {
		return c
	}
	return untouchedByte
}

func (m *fakeMemory) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}
