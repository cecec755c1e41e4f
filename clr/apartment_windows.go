//go:build windows && amd64

package clr

import (
	"errors"
	"runtime"
	"sync"

	ole "github.com/go-ole/go-ole"
)

// apartment runs every COM call on one OS thread initialized for the
// multithreaded apartment. Functions passed to do must not call do.
type apartment struct {
	calls chan func()
}

var processApartment = sync.OnceValues(func() (*apartment, error) {
	a := &apartment{calls: make(chan func())}
	ready := make(chan error)
	go a.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return a, nil
})

func (a *apartment) loop(ready chan<- error) {
	runtime.LockOSThread()
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		// S_FALSE: COM was already initialized on this thread
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			runtime.UnlockOSThread()
			ready <- err
			return
		}
	}
	ready <- nil
	for f := range a.calls {
		f()
	}
}

// do runs f on the apartment thread and waits for it.
func (a *apartment) do(f func()) {
	done := make(chan struct{})
	a.calls <- func() {
		defer close(done)
		f()
	}
	<-done
}
