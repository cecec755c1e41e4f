//go:build windows && amd64

package mscoree

import (
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// StringVariant returns a VT_BSTR variant. VariantClear frees the string.
func StringVariant(s string) ole.VARIANT {
	return ole.NewVariant(ole.VT_BSTR, int64(bstr(s)))
}

// BytesVariant returns a VT_ARRAY|VT_UI1 variant holding a copy of b.
func BytesVariant(b []byte) (ole.VARIANT, error) {
	sa, err := NewByteArray(b)
	if err != nil {
		return ole.VARIANT{}, err
	}
	return ole.NewVariant(ole.VT_ARRAY|ole.VT_UI1, int64(uintptr(unsafe.Pointer(sa)))), nil
}

// StringsVariant returns a VT_ARRAY|VT_BSTR variant.
func StringsVariant(s []string) (ole.VARIANT, error) {
	sa, err := NewStringArray(s)
	if err != nil {
		return ole.VARIANT{}, err
	}
	return ole.NewVariant(ole.VT_ARRAY|ole.VT_BSTR, int64(uintptr(unsafe.Pointer(sa)))), nil
}

// UnknownVariant returns a VT_UNKNOWN variant borrowing u. It must not be
// cleared unless the caller added a reference for it.
func UnknownVariant(u *IUnknown) ole.VARIANT {
	return ole.NewVariant(ole.VT_UNKNOWN, int64(u.Raw()))
}

// VariantString decodes the BSTR held by a VT_BSTR variant. The variant
// keeps ownership of the string.
func VariantString(v *ole.VARIANT) string {
	if v.Val == 0 {
		return ""
	}
	return ole.BstrToString((*uint16)(unsafe.Pointer(uintptr(v.Val))))
}

// VariantBytes copies the elements of a VT_ARRAY|VT_UI1 variant.
func VariantBytes(v *ole.VARIANT) []byte {
	if v.Val == 0 {
		return []byte{}
	}
	return (&ole.SafeArrayConversion{Array: (*ole.SafeArray)(unsafe.Pointer(uintptr(v.Val)))}).ToByteArray()
}

// VariantStrings copies the elements of a VT_ARRAY|VT_BSTR variant.
func VariantStrings(v *ole.VARIANT) []string {
	if v.Val == 0 {
		return []string{}
	}
	return (&ole.SafeArrayConversion{Array: (*ole.SafeArray)(unsafe.Pointer(uintptr(v.Val)))}).ToStringArray()
}

// VariantUnknown returns the interface pointer held by a VT_UNKNOWN or
// VT_DISPATCH variant without adding a reference.
func VariantUnknown(v *ole.VARIANT) *IUnknown {
	return UnknownFromRaw(uintptr(v.Val))
}
