// Package mscoree binds the CLR hosting and reflection COM interfaces used
// to run managed code in-process: ICLRMetaHost, ICLRRuntimeInfo,
// ICorRuntimeHost, _AppDomain, _Assembly, _Type, _MethodInfo and
// _ConstructorInfo, plus the SAFEARRAY and error info helpers they need.
//
// Every interface is a pointer to a vtable, called with syscall.SyscallN.
// The bindings are built for windows/amd64 only. Values of type VARIANT are
// passed by value in several signatures; on amd64 the calling convention
// turns these into pointers to a caller copy, which is what the bindings do.
//
// Callers own the references returned by every method and must Release them.
// None of the methods are safe for concurrent use on the same object.
package mscoree
