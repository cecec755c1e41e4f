package clr

import (
	"errors"
	"slices"
	"testing"
)

// calcEnv loads the calculator library and returns its Demo.Calculator type.
func calcEnv(t *testing.T) (*fakeWorld, *Environment, *Type) {
	t.Helper()

	w := newFakeWorld(runtimeV4)
	env, err := Initialize(Default, "", w.opts()...)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	asm, err := env.Load(libraryImage("calc"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	typ, err := asm.Type("Demo.Calculator")
	if err != nil {
		t.Fatalf("Type() error = %v", err)
	}
	t.Cleanup(func() {
		typ.Release()
		asm.Release()
		env.Close()
		if n := w.liveObjects.Load(); n != 0 {
			t.Errorf("%d managed objects leaked", n)
		}
	})
	return w, env, typ
}

func TestInvokeStatic(t *testing.T) {
	t.Parallel()
	_, _, calc := calcEnv(t)

	tests := []struct {
		name   string
		method string
		args   []Variant
		want   any
	}{
		{"int32 overload", "Add", []Variant{Int32(2), Int32(3)}, int32(5)},
		{"int64 overload", "Add", []Variant{Int64(1 << 40), Int64(1)}, int64(1<<40 + 1)},
		{"string beats object", "Echo", []Variant{String("hi")}, "string:hi"},
		{"object fallback", "Echo", []Variant{Int32(1)}, "object"},
		{"bytes", "Reverse", []Variant{Bytes([]byte{1, 2, 3})}, []byte{3, 2, 1}},
		{"string array", "Join", []Variant{Strings([]string{"a", "b"})}, "a,b"},
		{"bool", "Not", []Variant{Bool(true)}, false},
	}

	for _, tt := range tests {
		ret, err := calc.Invoke(tt.method, Empty(), tt.args, Static)
		if err != nil {
			t.Fatalf("%s: Invoke() error = %v", tt.name, err)
		}
		got, err := ret.Native()
		if err != nil {
			t.Fatalf("%s: Native() error = %v", tt.name, err)
		}
		switch want := tt.want.(type) {
		case []byte:
			if !slices.Equal(got.([]byte), want) {
				t.Errorf("%s: got %v, want %v", tt.name, got, want)
			}
		default:
			if got != tt.want {
				t.Errorf("%s: got %#v, want %#v", tt.name, got, tt.want)
			}
		}
	}
}

func TestInvokeResolutionFailures(t *testing.T) {
	t.Parallel()
	w, _, calc := calcEnv(t)

	writer := w.newObj(&fakeWriter{}, "System.IO.TextWriter")
	defer writer.Clear()

	tests := []struct {
		name   string
		method string
		target Variant
		args   []Variant
		kind   InvocationKind
		want   Kind
	}{
		{"unknown method", "Subtract", Empty(), []Variant{Int32(1), Int32(2)}, Static, AmbiguousOrMissingOverload},
		{"no widening", "Add", Empty(), []Variant{Int32(1), Int64(2)}, Static, AmbiguousOrMissingOverload},
		{"ambiguous", "Take", Empty(), []Variant{writer}, Static, AmbiguousOrMissingOverload},
		{"byref", "Swap", Empty(), []Variant{Int32(1), Int32(2)}, Static, AmbiguousOrMissingOverload},
		{"static with target", "Add", writer, []Variant{Int32(1), Int32(2)}, Static, InvalidTarget},
		{"instance without target", "get_Value", Empty(), nil, Instance, InvalidTarget},
		{"instance of wrong type", "get_Value", writer, nil, Instance, InvalidTarget},
		{"instance with scalar target", "get_Value", Int32(1), nil, Instance, InvalidTarget},
		{"unknown kind", "Add", Empty(), nil, InvocationKind(9), InvalidTarget},
	}
	for _, tt := range tests {
		_, err := calc.Invoke(tt.method, tt.target, tt.args, tt.kind)
		if KindOf(err) != tt.want {
			t.Errorf("%s: Invoke() error = %v, want %s", tt.name, err, tt.want)
		}
	}
}

func TestInvokeInstanceAndConstructor(t *testing.T) {
	t.Parallel()
	_, _, calc := calcEnv(t)

	obj, err := calc.Invoke("", Empty(), []Variant{Int32(40)}, Constructor)
	if err != nil {
		t.Fatalf("constructor error = %v", err)
	}
	defer obj.Clear()

	// the static Add(Int32, Int32) must not be picked for an instance call
	if _, err := calc.Invoke("Add", obj, []Variant{Int32(2)}, Instance); err != nil {
		t.Fatalf("Add(2) error = %v", err)
	}
	ret, err := calc.Invoke("get_Value", obj, nil, Instance)
	if err != nil {
		t.Fatalf("get_Value error = %v", err)
	}
	if n, _ := ret.Int(); n != 42 {
		t.Errorf("get_Value = %d, want 42", n)
	}

	def, err := calc.Invoke("ignored", Empty(), nil, Constructor)
	if err != nil {
		t.Fatalf("default constructor error = %v", err)
	}
	def.Clear()

	if _, err := calc.Invoke("", Empty(), []Variant{String("x")}, Constructor); !errors.Is(err, ErrAmbiguousOrMissingOverload) {
		t.Errorf("constructor(String) error = %v", err)
	}
}

func TestInvokeManagedException(t *testing.T) {
	t.Parallel()
	_, _, calc := calcEnv(t)

	_, err := calc.Invoke("Fail", Empty(), nil, Static)
	if !errors.Is(err, ErrManagedInvocationFailed) {
		t.Fatalf("Invoke() error = %v, want ManagedInvocationFailed", err)
	}
	var me *ManagedException
	if !errors.As(err, &me) {
		t.Fatalf("no ManagedException in %v", err)
	}
	if me.TypeName != "System.ArgumentException" || me.Message != "bad argument" || me.HResult != 0x80070057 {
		t.Errorf("exception = %+v", me)
	}
	var e *Error
	if !errors.As(err, &e) || e.Stage != StageInvoke {
		t.Errorf("error %v is not attributed to the invoke stage", err)
	}
}

func TestMembers(t *testing.T) {
	t.Parallel()
	_, _, calc := calcEnv(t)

	sigs, err := calc.Members()
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	var raw []string
	for _, s := range sigs {
		raw = append(raw, s.Raw)
	}
	for _, want := range []string{"Void .ctor()", "Void .ctor(Int32)", "Int32 Add(Int32, Int32)", "Void Add(Int32)", "Int32 get_Value()"} {
		if !slices.Contains(raw, want) {
			t.Errorf("Members() is missing %q", want)
		}
	}
	if calc.Name() != "Demo.Calculator" {
		t.Errorf("Name() = %q", calc.Name())
	}
}

func TestTypeNotFound(t *testing.T) {
	t.Parallel()

	w := newFakeWorld(runtimeV4)
	env, err := Initialize(Default, "", w.opts()...)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer env.Close()

	m, err := env.Mscorlib()
	if err != nil {
		t.Fatalf("Mscorlib() error = %v", err)
	}
	_, err = m.Type("System.Nope")
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("Type() error = %v, want TypeNotFound", err)
	}
	if _, err := m.CreateInstance("System.Nope"); !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("CreateInstance() error = %v, want TypeNotFound", err)
	}
}

func TestTypeOf(t *testing.T) {
	t.Parallel()
	_, env, calc := calcEnv(t)

	obj, err := calc.Invoke("", Empty(), nil, Constructor)
	if err != nil {
		t.Fatalf("constructor error = %v", err)
	}
	defer obj.Clear()

	typ, err := env.TypeOf(obj)
	if err != nil {
		t.Fatalf("TypeOf() error = %v", err)
	}
	defer typ.Release()
	if typ.Name() != "Demo.Calculator" {
		t.Errorf("TypeOf() = %q", typ.Name())
	}

	if _, err := env.TypeOf(String("x")); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("TypeOf(String) error = %v", err)
	}
}

func TestEntryPoint(t *testing.T) {
	t.Parallel()

	w := newFakeWorld(runtimeV4)
	env, err := Initialize(Default, "", w.opts()...)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer env.Close()

	tests := []struct {
		tag      string
		args     []string
		want     Kind
		wantRet  any
		wantText string
	}{
		{tag: "hello", args: []string{"x"}, wantText: "Hello, World!\r\narg: x\r\n"},
		{tag: "noargs", args: []string{"ignored"}, wantText: "no arguments\r\n"},
		{tag: "status", args: []string{"a", "b"}, wantRet: int32(2)},
		{tag: "badsig", want: AmbiguousOrMissingOverload},
	}
	for _, tt := range tests {
		asm, err := env.Load(image(tt.tag))
		if err != nil {
			t.Fatalf("%s: Load() error = %v", tt.tag, err)
		}
		before := w.console()
		ret, err := asm.RunEntryPoint(tt.args)
		asm.Release()
		if KindOf(err) != tt.want {
			t.Errorf("%s: RunEntryPoint() error = %v, want %s", tt.tag, err, tt.want)
			continue
		}
		if tt.wantRet != nil {
			if got, _ := ret.Native(); got != tt.wantRet {
				t.Errorf("%s: returned %#v, want %#v", tt.tag, got, tt.wantRet)
			}
		}
		if got := w.console()[len(before):]; got != tt.wantText {
			t.Errorf("%s: console = %q, want %q", tt.tag, got, tt.wantText)
		}
	}

	lib, err := env.Load(libraryImage("calc"))
	if err != nil {
		t.Fatalf("Load(calc) error = %v", err)
	}
	defer lib.Release()
	if _, err := lib.EntryPoint(); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("EntryPoint() on a library error = %v, want NoEntryPoint", err)
	}
}

func TestMethodObject(t *testing.T) {
	t.Parallel()
	w, _, calc := calcEnv(t)

	m, err := calc.Resolve("Add", Static, []Variant{Int32(1), Int32(1)})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	defer m.Release()
	if !m.IsStatic() || m.Signature().Raw != "Int32 Add(Int32, Int32)" {
		t.Errorf("resolved %s static=%v", m.Signature(), m.IsStatic())
	}

	obj, err := m.Object()
	if err != nil {
		t.Fatalf("Object() error = %v", err)
	}
	if w.liveObjects.Load() != 1 {
		t.Errorf("live objects = %d, want 1", w.liveObjects.Load())
	}
	obj.Clear()

	if _, err := m.Invoke(Empty(), Int32(1)); !errors.Is(err, ErrAmbiguousOrMissingOverload) {
		t.Errorf("Invoke with one argument error = %v", err)
	}
}
