package clr

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// RuntimeVersion selects a CLR major version.
type RuntimeVersion int

const (
	// Default binds to the latest installed runtime.
	Default RuntimeVersion = iota
	V2
	V3
	V4
)

// Runtime version strings understood by ICLRMetaHost.GetRuntime.
const (
	runtimeV2 = "v2.0.50727"
	runtimeV4 = "v4.0.30319"
)

func (v RuntimeVersion) String() string {
	switch v {
	case Default:
		return "default"
	case V2:
		return "v2"
	case V3:
		return "v3"
	case V4:
		return "v4"
	default:
		return fmt.Sprintf("RuntimeVersion(%d)", int(v))
	}
}

// BindingString returns the runtime directory name the version binds to.
// The 3.x frameworks run on the 2.0 CLR, so V3 and V2 share a binding.
// Default has no fixed binding and returns "".
func (v RuntimeVersion) BindingString() string {
	switch v {
	case V2, V3:
		return runtimeV2
	case V4:
		return runtimeV4
	default:
		return ""
	}
}

// ParseRuntimeVersion parses "v2", "v3", "v4" or "default". Full runtime
// strings such as "v4.0.30319" are accepted too.
func ParseRuntimeVersion(s string) (RuntimeVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "latest":
		return Default, nil
	case "v2", "2", runtimeV2:
		return V2, nil
	case "v3", "3", "v3.0", "v3.5":
		return V3, nil
	case "v4", "4", runtimeV4:
		return V4, nil
	}
	return Default, fmt.Errorf("unknown runtime version %q (want v2, v3, v4 or default)", s)
}

// latestRuntime returns the highest version in installed.
func latestRuntime(installed []string) (string, bool) {
	valid := make([]string, 0, len(installed))
	for _, v := range installed {
		if semver.IsValid(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return "", false
	}
	semver.Sort(valid)
	return valid[len(valid)-1], true
}

// familyOf returns the major family ("v2", "v4") of a runtime string.
func familyOf(version string) string {
	return semver.Major(version)
}

func isInstalled(installed []string, version string) bool {
	return slices.ContainsFunc(installed, func(v string) bool {
		return strings.EqualFold(v, version)
	})
}
