//go:build windows && amd64

package clr

import (
	"github.com/lesnuages/clrhost/internal/mscoree"
)

// nativeMemory patches code in the current process.
type nativeMemory struct{}

func (nativeMemory) Write(addr uintptr, b []byte) ([]byte, error) {
	orig, err := mscoree.WriteCode(addr, b)
	if err != nil {
		return nil, &PatchError{Op: "WriteCode", Addr: addr, Err: err}
	}
	return orig, nil
}
