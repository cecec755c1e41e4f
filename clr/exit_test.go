package clr

import (
	"errors"
	"math/bits"
	"sync"
	"testing"
)

func TestFunctionPointer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    Variant
		want uintptr
		ok   bool
	}{
		{Int64(0x7ffd1000), 0x7ffd1000, true},
		{Uint64(0x7ffd2000), 0x7ffd2000, true},
		{Int64(0), 0, false},
		{String("0x1000"), 0, false},
		{Empty(), 0, false},
	}
	for _, tt := range tests {
		got, err := functionPointer(tt.v)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("functionPointer(%s) = %#x, %v", tt.v, got, err)
		}
		if err != nil && !errors.Is(err, ErrExitPatchFailed) {
			t.Errorf("functionPointer(%s) error kind = %s", tt.v, KindOf(err))
		}
	}
}

func TestExitPatcher(t *testing.T) {
	t.Parallel()

	w := newFakeWorld(runtimeV4)
	env, err := Initialize(Default, "", w.opts()...)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer env.Close()

	p := NewExitPatcher()
	if err := p.Patch(env); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if got := w.mem.at(w.exitAddr); got != 0xC3 {
		t.Fatalf("Exit starts with %#x, want ret", got)
	}
	if err := p.Patch(env); err != nil {
		t.Fatalf("second Patch() error = %v", err)
	}
	if refs := exitPatches.refs(w.exitAddr); refs != 1 {
		t.Errorf("refs = %d after a repeated Patch, want 1", refs)
	}

	if err := p.Unpatch(); err != nil {
		t.Fatalf("Unpatch() error = %v", err)
	}
	if got := w.mem.at(w.exitAddr); got != untouchedByte {
		t.Errorf("Exit starts with %#x after Unpatch, want %#x", got, untouchedByte)
	}
	if err := p.Unpatch(); err != nil {
		t.Errorf("second Unpatch() error = %v", err)
	}
	if n := w.liveObjects.Load(); n != 0 {
		t.Errorf("%d managed objects leaked", n)
	}
}

func TestExitPatchShared(t *testing.T) {
	t.Parallel()

	w := newFakeWorld(runtimeV4)
	env, err := Initialize(Default, "", w.opts()...)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer env.Close()

	patchers := make([]ExitPatcher, 4)
	var wg sync.WaitGroup
	for i := range patchers {
		patchers[i] = NewExitPatcher()
		wg.Go(func() {
			if err := patchers[i].Patch(env); err != nil {
				t.Errorf("Patch() error = %v", err)
			}
		})
	}
	wg.Wait()

	if refs := exitPatches.refs(w.exitAddr); refs != len(patchers) {
		t.Fatalf("refs = %d, want %d", refs, len(patchers))
	}
	if w.mem.writes != 1 {
		t.Errorf("code written %d times, want 1", w.mem.writes)
	}

	for i, p := range patchers {
		if err := p.Unpatch(); err != nil {
			t.Fatalf("Unpatch() error = %v", err)
		}
		want := byte(0xC3)
		if i == len(patchers)-1 {
			want = untouchedByte
		}
		if got := w.mem.at(w.exitAddr); got != want {
			t.Errorf("after %d Unpatch calls Exit starts with %#x, want %#x", i+1, got, want)
		}
	}
}

func TestExitPatchFailures(t *testing.T) {
	t.Parallel()

	t.Run("write refused", func(t *testing.T) {
		t.Parallel()
		w := newFakeWorld(runtimeV4)
		w.mem.setFail(errors.New("access denied"))
		env, err := Initialize(Default, "", w.opts()...)
		if err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		defer env.Close()

		err = NewExitPatcher().Patch(env)
		if !errors.Is(err, ErrExitPatchFailed) {
			t.Fatalf("Patch() error = %v, want ExitPatchFailed", err)
		}
		var pe *PatchError
		if !errors.As(err, &pe) || pe.Addr != w.exitAddr {
			t.Errorf("PatchError = %v", pe)
		}
		if exitPatches.refs(w.exitAddr) != 0 {
			t.Error("failed patch left a table entry")
		}
	})

	t.Run("narrow pointer", func(t *testing.T) {
		t.Parallel()
		w := newFakeWorld(runtimeV4)
		w.pointerWidth = 32
		env, err := Initialize(Default, "", w.opts()...)
		if err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		defer env.Close()

		err = NewExitPatcher().Patch(env)
		if bits.UintSize == 64 && !errors.Is(err, ErrExitPatchFailed) {
			t.Fatalf("Patch() error = %v, want ExitPatchFailed", err)
		}
		if w.liveObjects.Load() != 0 {
			t.Errorf("%d managed objects leaked", w.liveObjects.Load())
		}
	})
}

func TestPatchTableUnknownAddress(t *testing.T) {
	t.Parallel()

	table := &patchTable{entries: map[uintptr]*patchEntry{}}
	if err := table.release(0x1234); err == nil {
		t.Error("release of an unknown address succeeded")
	}
}
