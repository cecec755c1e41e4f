//go:build windows && amd64

package mscoree

import (
	"fmt"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// Exception is a managed exception thrown across a COM call.
type Exception struct {
	Op       string
	TypeName string
	Message  string
	HResult  uint32
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s: %s: %s (HRESULT 0x%08X)", e.Op, e.TypeName, e.Message, e.HResult)
}

const targetInvocationException = "System.Reflection.TargetInvocationException"

// maxInnerExceptions bounds the InnerException walk.
const maxInnerExceptions = 8

type errorInfoVtbl struct {
	ole.IUnknownVtbl
	GetGUID        uintptr
	GetSource      uintptr
	GetDescription uintptr
	GetHelpFile    uintptr
	GetHelpContext uintptr
}

type errorInfo struct {
	vtbl *errorInfoVtbl
}

// exceptionObject is System.Runtime.InteropServices._Exception, of which
// only the System.Object part is used.
type exceptionObject struct {
	vtbl *exceptionVtbl
}

type exceptionVtbl struct {
	ole.IDispatchVtbl
	get_ToString uintptr
	Equals       uintptr
	GetHashCode  uintptr
	GetType      uintptr
}

// checkManaged is check for calls that run managed code. A failure carrying
// a managed exception becomes an *Exception.
func checkManaged(op string, hr uintptr) error {
	if !failed(hr) {
		return nil
	}
	if ex := lastException(uint32(hr)); ex != nil {
		ex.Op = op
		return ex
	}
	return &Error{Op: op, HRESULT: uint32(hr)}
}

// lastException reads the thread's error info set by the failed call.
func lastException(hr uint32) *Exception {
	var info *errorInfo
	r, _, _ := procGetErrorInfo.Call(0, uintptr(unsafe.Pointer(&info)))
	if r != sOK || info == nil {
		return nil
	}
	u := asUnknown(info)
	defer u.Release()

	ex, err := queryAs[exceptionObject](u, IID_Exception)
	if err != nil {
		desc, err := getString("GetDescription", info.vtbl.GetDescription, unsafe.Pointer(info))
		if err != nil || desc == "" {
			return nil
		}
		return &Exception{Message: desc, HResult: hr}
	}
	defer asUnknown(ex).Release()
	return describe(ex, hr, 0)
}

// describe reads the type, message and HResult of a managed exception.
// TargetInvocationException is unwrapped to the exception thrown by the
// invoked code.
func describe(ex *exceptionObject, hr uint32, depth int) *Exception {
	out := &Exception{TypeName: "System.Exception", HResult: hr}

	var typ *Type
	r, _, _ := syscall.SyscallN(ex.vtbl.GetType,
		uintptr(unsafe.Pointer(ex)), uintptr(unsafe.Pointer(&typ)))
	if failed(r) || typ == nil {
		return out
	}
	defer typ.Release()
	if name, err := typ.FullName(); err == nil {
		out.TypeName = name
	}

	self := UnknownVariant(asUnknown(ex))
	property := func(name string, flags BindingFlags) (ole.VARIANT, bool) {
		v, err := typ.InvokeMember(name, BindingGetProperty|BindingInstance|flags, &self, nil)
		return v, err == nil
	}

	if out.TypeName == targetInvocationException && depth < maxInnerExceptions {
		if v, ok := property("InnerException", BindingPublic); ok {
			defer ole.VariantClear(&v)
			if inner := VariantUnknown(&v); inner != nil && (v.VT == ole.VT_UNKNOWN || v.VT == ole.VT_DISPATCH) {
				if innerEx, err := queryAs[exceptionObject](inner, IID_Exception); err == nil {
					defer asUnknown(innerEx).Release()
					return describe(innerEx, hr, depth+1)
				}
			}
		}
	}

	if v, ok := property("Message", BindingPublic); ok {
		if v.VT == ole.VT_BSTR {
			out.Message = VariantString(&v)
		}
		ole.VariantClear(&v)
	}
	// HResult is protected before .NET 4.5
	if v, ok := property("HResult", BindingPublic|BindingNonPublic); ok {
		if v.VT == ole.VT_I4 {
			out.HResult = uint32(int32(v.Val))
		}
		ole.VariantClear(&v)
	}
	return out
}
