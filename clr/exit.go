package clr

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"
)

// ExitPatcher keeps managed code from terminating the host process through
// System.Environment.Exit.
type ExitPatcher interface {
	Patch(env *Environment) error
	Unpatch() error
}

// codeMemory writes over native code.
type codeMemory interface {
	// Write copies b to addr and returns the bytes it replaced.
	Write(addr uintptr, b []byte) ([]byte, error)
}

// ret
var retPatch = []byte{0xC3}

// NewExitPatcher returns the default ExitPatcher. It overwrites the first
// byte of the JIT-compiled Environment.Exit with a ret instruction, so the
// call returns to its managed caller. The patch is process-wide and shared:
// it is reverted when the last patcher holding it calls Unpatch.
func NewExitPatcher() ExitPatcher {
	return &exitPatcher{}
}

type exitPatcher struct {
	mu   sync.Mutex
	addr uintptr
	held bool
}

func (p *exitPatcher) Patch(env *Environment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held {
		return nil
	}

	addr, err := locateExit(env)
	if err != nil {
		return wrapError(ExitPatchFailed, StagePatchExit, "Environment.Exit", err)
	}
	if err := exitPatches.acquire(addr, env.opts.memory); err != nil {
		return wrapError(ExitPatchFailed, StagePatchExit, "Environment.Exit", err)
	}
	env.log.Debug("Environment.Exit patched", "addr", fmt.Sprintf("%#x", addr), "refs", exitPatches.refs(addr))
	p.addr, p.held = addr, true
	return nil
}

func (p *exitPatcher) Unpatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.held {
		return nil
	}
	if err := exitPatches.release(p.addr); err != nil {
		return wrapError(ExitPatchFailed, StagePatchExit, "Environment.Exit", err)
	}
	p.held = false
	return nil
}

// locateExit returns the native address of System.Environment.Exit(Int32)
// through reflection: MethodBase.MethodHandle, then
// RuntimeMethodHandle.GetFunctionPointer. Any failure is ExitPatchFailed.
func locateExit(env *Environment) (uintptr, error) {
	mscorlib, err := env.Mscorlib()
	if err != nil {
		return 0, err
	}

	envType, err := mscorlib.Type("System.Environment")
	if err != nil {
		return 0, err
	}
	defer envType.Release()

	exit, err := envType.h.Method("Exit")
	if err != nil {
		return 0, wrapError(ExitPatchFailed, StagePatchExit, "GetMethod", err)
	}
	if exit == nil {
		return 0, newError(ExitPatchFailed, StagePatchExit, "GetMethod", "System.Environment.Exit not found")
	}
	defer exit.Release()

	obj, err := exit.Object()
	if err != nil {
		return 0, wrapError(ExitPatchFailed, StagePatchExit, "GetMethod", err)
	}
	exitInfo := ObjectOf(obj)
	defer exitInfo.Clear()

	methodInfo, err := mscorlib.Type("System.Reflection.MethodInfo")
	if err != nil {
		return 0, err
	}
	defer methodInfo.Release()

	handle, err := methodInfo.Invoke("get_MethodHandle", exitInfo, nil, Instance)
	if err != nil {
		return 0, err
	}
	defer handle.Clear()

	rmh, err := mscorlib.Type("System.RuntimeMethodHandle")
	if err != nil {
		return 0, err
	}
	defer rmh.Release()

	ptr, err := rmh.Invoke("GetFunctionPointer", handle, nil, Instance)
	if err != nil {
		return 0, err
	}
	return functionPointer(ptr)
}

// functionPointer extracts a native address returned as a System.IntPtr.
// A 32-bit value cannot hold a code address on a 64-bit host.
func functionPointer(v Variant) (uintptr, error) {
	switch v.Kind() {
	case KindInt64, KindUint64:
	case KindInt32, KindUint32:
		if unsafe.Sizeof(uintptr(0)) == 8 {
			return 0, newError(ExitPatchFailed, StagePatchExit, "GetFunctionPointer",
				"function pointer returned as "+v.Kind().String())
		}
	default:
		return 0, newError(ExitPatchFailed, StagePatchExit, "GetFunctionPointer",
			"function pointer returned as "+v.Kind().String())
	}
	n, ok := v.Int()
	if !ok || n == 0 {
		return 0, newError(ExitPatchFailed, StagePatchExit, "GetFunctionPointer", "null function pointer")
	}
	return uintptr(n), nil
}

type patchEntry struct {
	mem  codeMemory
	orig []byte
	refs int
}

// patchTable tracks the process-wide code patches.
type patchTable struct {
	mu      sync.Mutex
	entries map[uintptr]*patchEntry
}

var exitPatches = &patchTable{entries: map[uintptr]*patchEntry{}}

func (t *patchTable) acquire(addr uintptr, mem codeMemory) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[addr]; ok {
		e.refs++
		return nil
	}
	orig, err := mem.Write(addr, retPatch)
	if err != nil {
		return err
	}
	t.entries[addr] = &patchEntry{mem: mem, orig: orig, refs: 1}
	return nil
}

func (t *patchTable) release(addr uintptr) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[addr]
	if !ok {
		return fmt.Errorf("no patch at %#x", addr)
	}
	if e.refs > 1 {
		e.refs--
		return nil
	}
	if _, err := e.mem.Write(addr, e.orig); err != nil {
		return fmt.Errorf("restore %d bytes at %#x: %w", len(e.orig), addr, err)
	}
	delete(t.entries, addr)
	return nil
}

func (t *patchTable) refs(addr uintptr) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[addr]; ok {
		return e.refs
	}
	return 0
}

// PatchError is returned by the native code writer.
type PatchError struct {
	Op   string
	Addr uintptr
	Err  error
}

func (e *PatchError) Error() string {
	return e.Op + " at 0x" + strconv.FormatUint(uint64(e.Addr), 16) + ": " + e.Err.Error()
}

func (e *PatchError) Unwrap() error { return e.Err }
