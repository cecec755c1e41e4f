//go:build !(windows && amd64)

package clr

import (
	"runtime"
)

func newPlatformHost() (Host, error) {
	return nil, newError(HostingApiUnavailable, StageInitialize, "CLRCreateInstance",
		"CLR hosting is not available on "+runtime.GOOS+"/"+runtime.GOARCH)
}
