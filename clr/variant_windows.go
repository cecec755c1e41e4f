//go:build windows && amd64

package clr

import (
	"fmt"

	ole "github.com/go-ole/go-ole"

	"github.com/lesnuages/clrhost/internal/mscoree"
)

// toOLE converts v for a call. Object variants are borrowed from their
// comObject; owned reports whether the caller must clear the result.
// Must run on the apartment thread.
func toOLE(v Variant) (out ole.VARIANT, owned bool, err error) {
	switch v.kind {
	case KindEmpty:
		return ole.NewVariant(ole.VT_EMPTY, 0), false, nil
	case KindString:
		return mscoree.StringVariant(v.s), true, nil
	case KindBool:
		var b int64
		if v.b {
			b = 0xFFFF // VARIANT_TRUE
		}
		return ole.NewVariant(ole.VT_BOOL, b), false, nil
	case KindInt8:
		return ole.NewVariant(ole.VT_I1, v.i), false, nil
	case KindInt16:
		return ole.NewVariant(ole.VT_I2, v.i), false, nil
	case KindInt32:
		return ole.NewVariant(ole.VT_I4, v.i), false, nil
	case KindInt64:
		return ole.NewVariant(ole.VT_I8, v.i), false, nil
	case KindUint8:
		return ole.NewVariant(ole.VT_UI1, int64(v.u)), false, nil
	case KindUint16:
		return ole.NewVariant(ole.VT_UI2, int64(v.u)), false, nil
	case KindUint32:
		return ole.NewVariant(ole.VT_UI4, int64(v.u)), false, nil
	case KindUint64:
		return ole.NewVariant(ole.VT_UI8, int64(v.u)), false, nil
	case KindBytes:
		out, err = mscoree.BytesVariant(v.raw)
		return out, err == nil, err
	case KindStringArray:
		out, err = mscoree.StringsVariant(v.strs)
		return out, err == nil, err
	case KindObject:
		co, ok := v.obj.(*comObject)
		if !ok {
			return ole.VARIANT{}, false, newError(UnsupportedVariantKind, StageInvoke, "toOLE",
				"object does not belong to this host")
		}
		return co.v, false, nil
	}
	return ole.VARIANT{}, false, newError(UnsupportedVariantKind, StageInvoke, "toOLE", v.kind.String())
}

// fromOLE converts a returned VARIANT and takes ownership of it. Object
// references are kept alive in a comObject. Native sized integers are read
// as 64-bit values. Must run on the apartment thread.
func fromOLE(apt *apartment, v ole.VARIANT) (Variant, error) {
	switch v.VT {
	case ole.VT_EMPTY, ole.VT_NULL:
		return Empty(), nil
	case ole.VT_BSTR:
		s := mscoree.VariantString(&v)
		ole.VariantClear(&v)
		return String(s), nil
	case ole.VT_BOOL:
		return Bool(int16(v.Val) != 0), nil
	case ole.VT_I1:
		return Int8(int8(v.Val)), nil
	case ole.VT_I2:
		return Int16(int16(v.Val)), nil
	case ole.VT_I4:
		return Int32(int32(v.Val)), nil
	case ole.VT_I8, ole.VT_INT, ole.VT_INT_PTR:
		return Int64(v.Val), nil
	case ole.VT_UI1:
		return Uint8(uint8(v.Val)), nil
	case ole.VT_UI2:
		return Uint16(uint16(v.Val)), nil
	case ole.VT_UI4:
		return Uint32(uint32(v.Val)), nil
	case ole.VT_UI8, ole.VT_UINT, ole.VT_UINT_PTR:
		return Uint64(uint64(v.Val)), nil
	case ole.VT_ARRAY | ole.VT_UI1:
		b := mscoree.VariantBytes(&v)
		ole.VariantClear(&v)
		return Bytes(b), nil
	case ole.VT_ARRAY | ole.VT_BSTR:
		s := mscoree.VariantStrings(&v)
		ole.VariantClear(&v)
		return Strings(s), nil
	case ole.VT_UNKNOWN, ole.VT_DISPATCH:
		if v.Val == 0 {
			return Empty(), nil
		}
		return ObjectOf(&comObject{apt: apt, v: v}), nil
	case ole.VT_RECORD:
		return ObjectOf(&comObject{apt: apt, v: v}), nil
	}
	vt := v.VT
	ole.VariantClear(&v)
	return Variant{}, newError(UnsupportedVariantKind, StageInvoke, "fromOLE",
		fmt.Sprintf("unsupported VARIANT type %#04x", uint16(vt)))
}
