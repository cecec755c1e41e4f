package clr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies hosting failures.
type Kind int

const (
	KindUnknown Kind = iota
	HostingApiUnavailable
	RuntimeNotFound
	DomainCreationFailed
	AlreadyInUseIncompatibleVersion
	InvalidAssemblyImage
	LoadRejected
	TypeNotFound
	AmbiguousOrMissingOverload
	NoEntryPoint
	ManagedInvocationFailed
	UnsupportedVariantKind
	NotRedirected
	ExitPatchFailed
	AlreadyExecuted
	InvalidTarget
)

var kindNames = map[Kind]string{
	KindUnknown:                     "unknown",
	HostingApiUnavailable:           "hosting API unavailable",
	RuntimeNotFound:                 "runtime not found",
	DomainCreationFailed:            "domain creation failed",
	AlreadyInUseIncompatibleVersion: "incompatible runtime already in use",
	InvalidAssemblyImage:            "invalid assembly image",
	LoadRejected:                    "load rejected",
	TypeNotFound:                    "type not found",
	AmbiguousOrMissingOverload:      "ambiguous or missing overload",
	NoEntryPoint:                    "no entry point",
	ManagedInvocationFailed:         "managed invocation failed",
	UnsupportedVariantKind:          "unsupported variant kind",
	NotRedirected:                   "output not redirected",
	ExitPatchFailed:                 "exit patch failed",
	AlreadyExecuted:                 "already executed",
	InvalidTarget:                   "invalid invocation target",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Exit codes returned by the command line front-end for each error kind.
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitUnavailable    = 2
	ExitRuntime        = 3
	ExitInvalidImage   = 4
	ExitResolution     = 5
	ExitManagedFailure = 6
	ExitPatch          = 7
	ExitUsage          = 8
)

// ExitCode maps the kind to a process exit code.
func (k Kind) ExitCode() int {
	switch k {
	case HostingApiUnavailable:
		return ExitUnavailable
	case RuntimeNotFound, AlreadyInUseIncompatibleVersion, DomainCreationFailed:
		return ExitRuntime
	case InvalidAssemblyImage, LoadRejected, NoEntryPoint:
		return ExitInvalidImage
	case TypeNotFound, AmbiguousOrMissingOverload, InvalidTarget, UnsupportedVariantKind:
		return ExitResolution
	case ManagedInvocationFailed:
		return ExitManagedFailure
	case ExitPatchFailed:
		return ExitPatch
	case AlreadyExecuted, NotRedirected:
		return ExitUsage
	default:
		return ExitGeneralError
	}
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageInitialize Stage = "initialize"
	StageLoad       Stage = "load"
	StageResolve    Stage = "resolve"
	StageRedirect   Stage = "redirect"
	StagePatchExit  Stage = "patch-exit"
	StageInvoke     Stage = "invoke"
	StageCapture    Stage = "capture"
	StageRestore    Stage = "restore"
)

// Error is the error type returned by every operation of this package.
type Error struct {
	Kind    Kind
	Stage   Stage
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("clr")
	if e.Stage != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Stage))
	}
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* sentinels can be used
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ExitCode returns the exit code for this error.
func (e *Error) ExitCode() int {
	return e.Kind.ExitCode()
}

// Sentinels for errors.Is.
var (
	ErrHostingApiUnavailable           = &Error{Kind: HostingApiUnavailable}
	ErrRuntimeNotFound                 = &Error{Kind: RuntimeNotFound}
	ErrDomainCreationFailed            = &Error{Kind: DomainCreationFailed}
	ErrAlreadyInUseIncompatibleVersion = &Error{Kind: AlreadyInUseIncompatibleVersion}
	ErrInvalidAssemblyImage            = &Error{Kind: InvalidAssemblyImage}
	ErrLoadRejected                    = &Error{Kind: LoadRejected}
	ErrTypeNotFound                    = &Error{Kind: TypeNotFound}
	ErrAmbiguousOrMissingOverload      = &Error{Kind: AmbiguousOrMissingOverload}
	ErrNoEntryPoint                    = &Error{Kind: NoEntryPoint}
	ErrManagedInvocationFailed         = &Error{Kind: ManagedInvocationFailed}
	ErrUnsupportedVariantKind          = &Error{Kind: UnsupportedVariantKind}
	ErrNotRedirected                   = &Error{Kind: NotRedirected}
	ErrExitPatchFailed                 = &Error{Kind: ExitPatchFailed}
	ErrAlreadyExecuted                 = &Error{Kind: AlreadyExecuted}
	ErrInvalidTarget                   = &Error{Kind: InvalidTarget}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCodeOf returns the exit code for err, ExitSuccess for nil.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return KindOf(err).ExitCode()
}

func newError(kind Kind, stage Stage, op, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Message: message}
}

func wrapError(kind Kind, stage Stage, op string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Err: err}
}

// withStage attributes err to stage. An *Error keeps its kind and takes the
// outer stage; anything else is wrapped as kind.
func withStage(err error, stage Stage, kind Kind, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		e.Stage = stage
		return err
	}
	var me *ManagedException
	if errors.As(err, &me) {
		return wrapError(ManagedInvocationFailed, stage, op, err)
	}
	return wrapError(kind, stage, op, err)
}

// ManagedException describes an exception thrown by managed code and caught
// at the hosting boundary.
type ManagedException struct {
	TypeName string
	Message  string
	HResult  uint32
}

func (e *ManagedException) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (HRESULT 0x%08X)", e.TypeName, e.HResult)
	}
	return fmt.Sprintf("%s: %s (HRESULT 0x%08X)", e.TypeName, e.Message, e.HResult)
}

// HResultError is a failed COM call. Message holds the error description
// the callee set, when it set one.
type HResultError struct {
	Op      string
	Code    uint32
	Message string
}

func (e *HResultError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed with HRESULT 0x%08X: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed with HRESULT 0x%08X", e.Op, e.Code)
}

// HResultOf returns the HRESULT carried by err, if any.
func HResultOf(err error) (uint32, bool) {
	var he *HResultError
	if errors.As(err, &he) {
		return he.Code, true
	}
	var me *ManagedException
	if errors.As(err, &me) {
		return me.HResult, true
	}
	return 0, false
}
