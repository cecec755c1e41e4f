package clr

import (
	"fmt"
)

// InvocationKind selects the reflection call shape.
type InvocationKind int

const (
	Static InvocationKind = iota
	Instance
	Constructor
)

func (k InvocationKind) String() string {
	switch k {
	case Static:
		return "static"
	case Instance:
		return "instance"
	case Constructor:
		return "constructor"
	default:
		return fmt.Sprintf("InvocationKind(%d)", int(k))
	}
}

// Assembly is a loaded assembly.
type Assembly struct {
	env  *Environment
	h    AssemblyHandle
	name string
	// shared assemblies are owned by the environment.
	shared bool
}

// FullName returns the assembly display name.
func (a *Assembly) FullName() string { return a.name }

// Type resolves a type by fully qualified name.
func (a *Assembly) Type(fullName string) (*Type, error) {
	th, err := a.h.Type(fullName)
	if err != nil {
		return nil, withStage(err, StageResolve, TypeNotFound, "GetType_2")
	}
	if th == nil {
		return nil, newError(TypeNotFound, StageResolve, "GetType_2",
			fmt.Sprintf("%s in %s", fullName, a.name))
	}
	return newType(a.env, th)
}

// CreateInstance constructs typeName with args.
func (a *Assembly) CreateInstance(typeName string, args ...Variant) (Variant, error) {
	t, err := a.Type(typeName)
	if err != nil {
		return Variant{}, err
	}
	defer t.Release()
	return t.Invoke("", Empty(), args, Constructor)
}

// EntryPoint returns the assembly's entry method.
func (a *Assembly) EntryPoint() (*Method, error) {
	mh, err := a.h.EntryPoint()
	if err != nil {
		return nil, withStage(err, StageResolve, NoEntryPoint, "get_EntryPoint")
	}
	if mh == nil {
		return nil, newError(NoEntryPoint, StageResolve, "get_EntryPoint", a.name)
	}
	m, err := newMethod(mh)
	if err != nil {
		mh.Release()
		return nil, withStage(err, StageResolve, NoEntryPoint, "get_EntryPoint")
	}
	return m, nil
}

// RunEntryPoint invokes the entry point. When it declares a single
// System.String[] parameter, args are passed in it; when it declares none,
// args are ignored.
func (a *Assembly) RunEntryPoint(args []string) (Variant, error) {
	ep, err := a.EntryPoint()
	if err != nil {
		return Variant{}, err
	}
	defer ep.Release()

	sig := ep.Signature()
	switch {
	case len(sig.Params) == 0:
		if len(args) > 0 {
			a.env.log.Debug("entry point takes no parameters, ignoring arguments",
				"entry_point", sig.String(), "args", len(args))
		}
		return ep.Invoke(Empty())
	case len(sig.Params) == 1 && sig.Params[0] == "System.String[]":
		return ep.Invoke(Empty(), Strings(args))
	default:
		return Variant{}, newError(AmbiguousOrMissingOverload, StageResolve, "get_EntryPoint",
			"unsupported entry point signature "+sig.String())
	}
}

// Release drops the assembly reference. Assemblies owned by the
// environment, such as Mscorlib, are left alone.
func (a *Assembly) Release() {
	if !a.shared {
		a.h.Release()
	}
}

// Type is a resolved managed type.
type Type struct {
	env  *Environment
	h    TypeHandle
	name string
}

func newType(env *Environment, th TypeHandle) (*Type, error) {
	name, err := th.FullName()
	if err != nil {
		th.Release()
		return nil, withStage(err, StageResolve, TypeNotFound, "get_FullName")
	}
	return &Type{env: env, h: th, name: name}, nil
}

// Name returns the fully qualified type name.
func (t *Type) Name() string { return t.name }

// Members lists the signatures of the public constructors and methods.
func (t *Type) Members() ([]Signature, error) {
	var sigs []Signature
	for _, kind := range []InvocationKind{Constructor, Static} {
		cands, err := t.candidates(kind)
		if err != nil {
			return nil, err
		}
		for _, c := range cands {
			sigs = append(sigs, c.sig)
			c.Release()
		}
	}
	return sigs, nil
}

// candidates loads constructors, or all methods when kind is not
// Constructor. Members with unparsable signatures are skipped.
func (t *Type) candidates(kind InvocationKind) ([]*Method, error) {
	var handles []MemberHandle
	var err error
	if kind == Constructor {
		handles, err = t.h.Constructors()
	} else {
		handles, err = t.h.Methods()
	}
	if err != nil {
		return nil, withStage(err, StageResolve, AmbiguousOrMissingOverload, "GetMethods")
	}

	out := make([]*Method, 0, len(handles))
	for _, h := range handles {
		m, err := newMethod(h)
		if err != nil {
			t.env.log.Debug("skipping member", "type", t.name, "err", err)
			h.Release()
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Resolve selects the single most specific member of the given kind
// accepting args. The name is ignored for constructors.
func (t *Type) Resolve(name string, kind InvocationKind, args []Variant) (*Method, error) {
	cands, err := t.candidates(kind)
	if err != nil {
		return nil, err
	}

	var matching []*Method
	seen := make(map[string]bool)
	for _, m := range cands {
		keep := false
		switch kind {
		case Constructor:
			keep = m.sig.IsConstructor()
		case Static:
			keep = m.static && m.sig.Name == name
		case Instance:
			keep = !m.static && m.sig.Name == name
		}
		if keep && !seen[m.sig.Raw] {
			seen[m.sig.Raw] = true
			matching = append(matching, m)
			continue
		}
		m.Release()
	}

	sigs := make([]Signature, len(matching))
	for i, m := range matching {
		sigs[i] = m.sig
	}
	idx, reason := selectOverload(sigs, args)
	for i, m := range matching {
		if i != idx {
			m.Release()
		}
	}
	if idx < 0 {
		target := t.name + "." + name
		if kind == Constructor {
			target = t.name + ".ctor"
		}
		return nil, newError(AmbiguousOrMissingOverload, StageResolve, target, reason)
	}

	m := matching[idx]
	m.kind = kind
	t.env.log.Debug("overload resolved", "type", t.name, "member", m.sig.String())
	return m, nil
}

// Invoke resolves name against args and calls it. Static calls need an
// Empty target, instance calls an object of this type. Constructors ignore
// name and target and return the new object.
func (t *Type) Invoke(name string, target Variant, args []Variant, kind InvocationKind) (Variant, error) {
	op := t.name + "." + name
	switch kind {
	case Static:
		if !target.IsEmpty() {
			return Variant{}, newError(InvalidTarget, StageInvoke, op, "static call with a target")
		}
	case Instance:
		obj, ok := target.Object()
		if !ok {
			return Variant{}, newError(InvalidTarget, StageInvoke, op, "instance call without an object target")
		}
		is, err := t.h.IsInstance(obj)
		if err != nil {
			return Variant{}, withStage(err, StageInvoke, InvalidTarget, "IsInstanceOfType")
		}
		if !is {
			return Variant{}, newError(InvalidTarget, StageInvoke, op, "target is not an instance of "+t.name)
		}
	case Constructor:
		target = Empty()
	default:
		return Variant{}, newError(InvalidTarget, StageInvoke, op, "unknown invocation kind "+kind.String())
	}

	m, err := t.Resolve(name, kind, args)
	if err != nil {
		return Variant{}, err
	}
	defer m.Release()
	return m.Invoke(target, args...)
}

// Release drops the type reference.
func (t *Type) Release() {
	t.h.Release()
}

// Method is a resolved method or constructor.
type Method struct {
	h      MemberHandle
	sig    Signature
	static bool
	kind   InvocationKind
}

func newMethod(h MemberHandle) (*Method, error) {
	raw, err := h.Signature()
	if err != nil {
		return nil, err
	}
	sig, err := ParseSignature(raw)
	if err != nil {
		return nil, err
	}
	m := &Method{h: h, sig: sig, kind: Instance}
	if sig.IsConstructor() {
		m.kind = Constructor
		return m, nil
	}
	if m.static, err = h.Static(); err != nil {
		return nil, err
	}
	if m.static {
		m.kind = Static
	}
	return m, nil
}

// Signature returns the parsed reflection signature.
func (m *Method) Signature() Signature { return m.sig }

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool { return m.static }

// Object returns the method itself as a managed MethodInfo object. The
// caller releases it.
func (m *Method) Object() (Variant, error) {
	obj, err := m.h.Object()
	if err != nil {
		return Variant{}, withStage(err, StageResolve, KindUnknown, m.sig.Name)
	}
	return ObjectOf(obj), nil
}

// Invoke calls the method. Managed exceptions are returned as
// ManagedInvocationFailed errors wrapping a *ManagedException.
func (m *Method) Invoke(target Variant, args ...Variant) (Variant, error) {
	switch m.kind {
	case Static, Constructor:
		if !target.IsEmpty() && m.kind == Static {
			return Variant{}, newError(InvalidTarget, StageInvoke, m.sig.Name, "static call with a target")
		}
		target = Empty()
	case Instance:
		if _, ok := target.Object(); !ok {
			return Variant{}, newError(InvalidTarget, StageInvoke, m.sig.Name, "instance call without an object target")
		}
	}
	if len(args) != len(m.sig.Params) {
		return Variant{}, newError(AmbiguousOrMissingOverload, StageInvoke, m.sig.String(),
			fmt.Sprintf("%d arguments for %d parameters", len(args), len(m.sig.Params)))
	}

	ret, err := m.h.Invoke(target, args)
	if err != nil {
		return Variant{}, withStage(err, StageInvoke, ManagedInvocationFailed, m.sig.String())
	}
	return ret, nil
}

// Release drops the method reference.
func (m *Method) Release() {
	m.h.Release()
}
