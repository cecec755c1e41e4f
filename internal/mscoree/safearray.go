//go:build windows && amd64

package mscoree

import (
	"os"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

func safeArrayCreateVector(vt ole.VT, n int) (*ole.SafeArray, error) {
	sa, _, err := procSafeArrayCreateVector.Call(uintptr(vt), 0, uintptr(n))
	if sa == 0 {
		return nil, os.NewSyscallError("SafeArrayCreateVector", err)
	}
	return (*ole.SafeArray)(unsafe.Pointer(sa)), nil
}

func safeArrayPutElement(sa *ole.SafeArray, i int32, v unsafe.Pointer) error {
	hr, _, _ := procSafeArrayPutElement.Call(
		uintptr(unsafe.Pointer(sa)),
		uintptr(unsafe.Pointer(&i)),
		uintptr(v))
	return check("SafeArrayPutElement", hr)
}

func safeArrayGetElement(sa *ole.SafeArray, i int32, v unsafe.Pointer) error {
	hr, _, _ := procSafeArrayGetElement.Call(
		uintptr(unsafe.Pointer(sa)),
		uintptr(unsafe.Pointer(&i)),
		uintptr(v))
	return check("SafeArrayGetElement", hr)
}

func safeArrayBounds(sa *ole.SafeArray) (lo, hi int32, err error) {
	hr, _, _ := procSafeArrayGetLBound.Call(uintptr(unsafe.Pointer(sa)), 1, uintptr(unsafe.Pointer(&lo)))
	if err := check("SafeArrayGetLBound", hr); err != nil {
		return 0, 0, err
	}
	hr, _, _ = procSafeArrayGetUBound.Call(uintptr(unsafe.Pointer(sa)), 1, uintptr(unsafe.Pointer(&hi)))
	if err := check("SafeArrayGetUBound", hr); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// DestroySafeArray frees sa and everything it holds.
func DestroySafeArray(sa *ole.SafeArray) error {
	if sa == nil {
		return nil
	}
	hr, _, _ := procSafeArrayDestroy.Call(uintptr(unsafe.Pointer(sa)))
	return check("SafeArrayDestroy", hr)
}

// NewByteArray returns a SAFEARRAY of VT_UI1 holding a copy of b.
func NewByteArray(b []byte) (*ole.SafeArray, error) {
	sa, err := safeArrayCreateVector(ole.VT_UI1, len(b))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return sa, nil
	}
	var data unsafe.Pointer
	hr, _, _ := procSafeArrayAccessData.Call(uintptr(unsafe.Pointer(sa)), uintptr(unsafe.Pointer(&data)))
	if err := check("SafeArrayAccessData", hr); err != nil {
		DestroySafeArray(sa)
		return nil, err
	}
	copy(unsafe.Slice((*byte)(data), len(b)), b)
	hr, _, _ = procSafeArrayUnaccessData.Call(uintptr(unsafe.Pointer(sa)))
	if err := check("SafeArrayUnaccessData", hr); err != nil {
		DestroySafeArray(sa)
		return nil, err
	}
	return sa, nil
}

// NewStringArray returns a SAFEARRAY of VT_BSTR.
func NewStringArray(s []string) (*ole.SafeArray, error) {
	sa, err := safeArrayCreateVector(ole.VT_BSTR, len(s))
	if err != nil {
		return nil, err
	}
	for i, str := range s {
		b := bstr(str)
		// the array stores its own copy of the string
		err := safeArrayPutElement(sa, int32(i), unsafe.Pointer(b))
		freeBSTR(b)
		if err != nil {
			DestroySafeArray(sa)
			return nil, err
		}
	}
	return sa, nil
}

// NewVariantArray returns a SAFEARRAY of VT_VARIANT holding copies of vs,
// or nil when vs is empty.
func NewVariantArray(vs []ole.VARIANT) (*ole.SafeArray, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	sa, err := safeArrayCreateVector(ole.VT_VARIANT, len(vs))
	if err != nil {
		return nil, err
	}
	for i := range vs {
		if err := safeArrayPutElement(sa, int32(i), unsafe.Pointer(&vs[i])); err != nil {
			DestroySafeArray(sa)
			return nil, err
		}
	}
	return sa, nil
}

// unknownElements returns the interface pointers of a SAFEARRAY of
// VT_UNKNOWN or VT_DISPATCH. Each one carries its own reference.
func unknownElements(sa *ole.SafeArray) ([]*IUnknown, error) {
	if sa == nil {
		return nil, nil
	}
	lo, hi, err := safeArrayBounds(sa)
	if err != nil {
		return nil, err
	}
	var out []*IUnknown
	for i := lo; i <= hi; i++ {
		var u *IUnknown
		if err := safeArrayGetElement(sa, i, unsafe.Pointer(&u)); err != nil {
			releaseAll(out)
			return nil, err
		}
		if u != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func releaseAll(us []*IUnknown) {
	for _, u := range us {
		u.Release()
	}
}
