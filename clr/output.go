package clr

import (
	"errors"
	"sync"
)

// OutputState is the state of an Output.
type OutputState int

const (
	Idle OutputState = iota
	Redirected
	Restored
)

func (s OutputState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Redirected:
		return "redirected"
	case Restored:
		return "restored"
	default:
		return "unknown"
	}
}

// Output redirects System.Console output and error of a domain into an
// in-memory System.IO.StringWriter.
//
//	Idle -> Redirected -> Restored
//
// Every Capture installs a fresh StringWriter before reading the previous
// one, so text written by other managed threads during a Capture lands in
// the next one. Redirect while Redirected drops the text written so far
// instead of stacking writers.
type Output struct {
	mscorlib *Assembly

	mu      sync.Mutex
	state   OutputState
	writer  Variant
	origOut Variant
	origErr Variant
}

// NewOutput returns an idle redirector for the domain mscorlib belongs to.
func NewOutput(mscorlib *Assembly) *Output {
	return &Output{mscorlib: mscorlib}
}

// State returns the current state.
func (o *Output) State() OutputState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Redirect installs the capturing writer as Console.Out and Console.Error.
func (o *Output) Redirect() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Restored:
		return newError(NotRedirected, StageRedirect, "Redirect", "output already restored")
	case Redirected:
		old, err := o.rotate(StageRedirect)
		if err != nil {
			return err
		}
		old.Clear()
		return nil
	}

	console, err := o.mscorlib.Type("System.Console")
	if err != nil {
		return withStage(err, StageRedirect, TypeNotFound, "System.Console")
	}
	defer console.Release()

	origOut, err := console.Invoke("get_Out", Empty(), nil, Static)
	if err != nil {
		return withStage(err, StageRedirect, ManagedInvocationFailed, "get_Out")
	}
	origErr, err := console.Invoke("get_Error", Empty(), nil, Static)
	if err != nil {
		origOut.Clear()
		return withStage(err, StageRedirect, ManagedInvocationFailed, "get_Error")
	}

	writer, err := o.mscorlib.CreateInstance("System.IO.StringWriter")
	if err != nil {
		origOut.Clear()
		origErr.Clear()
		return withStage(err, StageRedirect, ManagedInvocationFailed, "System.IO.StringWriter")
	}

	if err := install(console, writer, origOut, StageRedirect); err != nil {
		origOut.Clear()
		origErr.Clear()
		writer.Clear()
		return err
	}

	o.writer, o.origOut, o.origErr = writer, origOut, origErr
	o.state = Redirected
	return nil
}

// Capture returns the text written since the last Redirect or Capture and
// starts a new buffer.
func (o *Output) Capture() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Redirected {
		return "", newError(NotRedirected, StageCapture, "Capture", "output is "+o.state.String())
	}

	old, err := o.rotate(StageCapture)
	if err != nil {
		return "", err
	}
	defer old.Clear()

	sw, err := o.mscorlib.Type("System.IO.StringWriter")
	if err != nil {
		return "", withStage(err, StageCapture, TypeNotFound, "System.IO.StringWriter")
	}
	defer sw.Release()

	text, err := sw.Invoke("ToString", old, nil, Instance)
	if err != nil {
		return "", withStage(err, StageCapture, ManagedInvocationFailed, "ToString")
	}
	s, ok := text.Text()
	if !ok && !text.IsEmpty() {
		text.Clear()
		return "", newError(UnsupportedVariantKind, StageCapture, "ToString", "writer returned "+text.Kind().String())
	}
	return s, nil
}

// rotate installs a fresh StringWriter as Console.Out and Console.Error and
// returns the previous one. Must be called with o.mu held.
func (o *Output) rotate(stage Stage) (Variant, error) {
	console, err := o.mscorlib.Type("System.Console")
	if err != nil {
		return Variant{}, withStage(err, stage, TypeNotFound, "System.Console")
	}
	defer console.Release()

	fresh, err := o.mscorlib.CreateInstance("System.IO.StringWriter")
	if err != nil {
		return Variant{}, withStage(err, stage, ManagedInvocationFailed, "System.IO.StringWriter")
	}
	if err := install(console, fresh, o.writer, stage); err != nil {
		fresh.Clear()
		return Variant{}, err
	}
	old := o.writer
	o.writer = fresh
	return old, nil
}

// install makes writer both Console.Out and Console.Error. When SetError
// fails Console.Out goes back to prevOut.
func install(console *Type, writer, prevOut Variant, stage Stage) error {
	if _, err := console.Invoke("SetOut", Empty(), []Variant{writer}, Static); err != nil {
		return withStage(err, stage, ManagedInvocationFailed, "SetOut")
	}
	if _, err := console.Invoke("SetError", Empty(), []Variant{writer}, Static); err != nil {
		_, _ = console.Invoke("SetOut", Empty(), []Variant{prevOut}, Static)
		return withStage(err, stage, ManagedInvocationFailed, "SetError")
	}
	return nil
}

// Restore reinstalls the original writers. It is a no-op unless the output
// is redirected.
func (o *Output) Restore() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Redirected {
		return nil
	}

	console, err := o.mscorlib.Type("System.Console")
	if err != nil {
		return withStage(err, StageRestore, TypeNotFound, "System.Console")
	}
	defer console.Release()

	_, errOut := console.Invoke("SetOut", Empty(), []Variant{o.origOut}, Static)
	_, errErr := console.Invoke("SetError", Empty(), []Variant{o.origErr}, Static)
	if err := errors.Join(errOut, errErr); err != nil {
		return withStage(err, StageRestore, ManagedInvocationFailed, "SetOut")
	}

	o.writer.Clear()
	o.origOut.Clear()
	o.origErr.Clear()
	o.writer, o.origOut, o.origErr = Empty(), Empty(), Empty()
	o.state = Restored
	return nil
}
