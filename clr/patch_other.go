//go:build !(windows && amd64)

package clr

import (
	"errors"
)

var errNoCodePatching = errors.New("code patching is only supported on windows/amd64")

type nativeMemory struct{}

func (nativeMemory) Write(addr uintptr, _ []byte) ([]byte, error) {
	return nil, &PatchError{Op: "WriteCode", Addr: addr, Err: errNoCodePatching}
}
