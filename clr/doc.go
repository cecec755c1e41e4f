// Package clr hosts the .NET Common Language Runtime in the current process
// and runs assemblies supplied as in-memory byte buffers.
//
// Initialize binds a runtime and an application domain. The returned
// Environment loads assemblies, resolves types and members through
// reflection and invokes them with arguments marshaled as Variant values.
// Output redirects the managed console into a buffer and ExitPatcher keeps
// System.Environment.Exit from terminating the host. Runner chains these
// steps for the common case:
//
//	runner, err := clr.NewRunner(image)
//	if err != nil {
//		return err
//	}
//	text, err := runner.Runtime(clr.V4).Args("-h").Output().Exit().Run()
//
// Only one runtime version can be active in a process. The first successful
// Initialize pins it and the runtime stays started until the process exits.
//
// The COM backend is built for windows/amd64 only. On other platforms every
// entry point fails with HostingApiUnavailable unless a Host is supplied
// with WithHost.
package clr
