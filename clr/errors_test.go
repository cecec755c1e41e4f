package clr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := wrapError(LoadRejected, StageLoad, "Load_3", &HResultError{Op: "Load_3", Code: 0x80131040})
	want := "clr load Load_3: load rejected: Load_3 failed with HRESULT 0x80131040"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = newError(RuntimeNotFound, "", "", "v2 is not installed")
	if got := err.Error(); got != "clr: runtime not found: v2 is not installed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorsIsByKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("running: %w", newError(ExitPatchFailed, StagePatchExit, "Environment.Exit", "boom"))
	if !errors.Is(err, ErrExitPatchFailed) {
		t.Error("errors.Is(ErrExitPatchFailed) = false")
	}
	if errors.Is(err, ErrNoEntryPoint) {
		t.Error("errors.Is(ErrNoEntryPoint) = true")
	}
	if KindOf(err) != ExitPatchFailed {
		t.Errorf("KindOf() = %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf(plain error) is not KindUnknown")
	}
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("plain"), ExitGeneralError},
		{ErrHostingApiUnavailable, ExitUnavailable},
		{ErrAlreadyInUseIncompatibleVersion, ExitRuntime},
		{ErrInvalidAssemblyImage, ExitInvalidImage},
		{ErrNoEntryPoint, ExitInvalidImage},
		{ErrAmbiguousOrMissingOverload, ExitResolution},
		{ErrManagedInvocationFailed, ExitManagedFailure},
		{ErrExitPatchFailed, ExitPatch},
		{ErrAlreadyExecuted, ExitUsage},
	}
	for _, tt := range tests {
		if got := ExitCodeOf(tt.err); got != tt.want {
			t.Errorf("ExitCodeOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	seen := map[string]bool{}
	for k := KindUnknown; k <= InvalidTarget; k++ {
		name := k.String()
		if strings.HasPrefix(name, "kind(") || seen[name] {
			t.Errorf("kind %d has no unique name: %q", int(k), name)
		}
		seen[name] = true
	}
}

func TestWithStage(t *testing.T) {
	t.Parallel()

	inner := newError(TypeNotFound, StageResolve, "GetType_2", "System.Console")
	got := withStage(inner, StageRedirect, ManagedInvocationFailed, "Redirect")
	var e *Error
	if !errors.As(got, &e) || e.Kind != TypeNotFound || e.Stage != StageRedirect {
		t.Errorf("withStage(*Error) = %v", got)
	}

	me := &ManagedException{TypeName: "System.InvalidOperationException", Message: "boom", HResult: 0x80131509}
	got = withStage(me, StageInvoke, LoadRejected, "Main")
	if KindOf(got) != ManagedInvocationFailed {
		t.Errorf("managed exception classified as %s", KindOf(got))
	}
	var gotMe *ManagedException
	if !errors.As(got, &gotMe) || gotMe.Message != "boom" {
		t.Error("managed exception lost")
	}
	if hr, ok := HResultOf(got); !ok || hr != 0x80131509 {
		t.Errorf("HResultOf() = %#x, %v", hr, ok)
	}

	got = withStage(&HResultError{Op: "Start", Code: 0x80004005}, StageInitialize, HostingApiUnavailable, "Start")
	if KindOf(got) != HostingApiUnavailable {
		t.Errorf("HRESULT classified as %s", KindOf(got))
	}

	if withStage(nil, StageLoad, LoadRejected, "x") != nil {
		t.Error("withStage(nil) != nil")
	}
}

func TestManagedExceptionMessage(t *testing.T) {
	t.Parallel()

	e := &ManagedException{TypeName: "System.Exception", HResult: 0x80131500}
	if got := e.Error(); got != "System.Exception (HRESULT 0x80131500)" {
		t.Errorf("Error() = %q", got)
	}
	e.Message = "failed"
	if got := e.Error(); got != "System.Exception: failed (HRESULT 0x80131500)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestHResultErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *HResultError
		want string
	}{
		{&HResultError{Op: "Start", Code: 0x80004005}, "Start failed with HRESULT 0x80004005"},
		{&HResultError{Op: "Invoke_3", Code: 0x80020005, Message: "Type mismatch."}, "Invoke_3 failed with HRESULT 0x80020005: Type mismatch."},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
