package clr

import (
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"
)

// VariantKind is the tag of a Variant.
type VariantKind uint8

const (
	KindEmpty VariantKind = iota
	KindString
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindBytes
	KindStringArray
	KindObject
)

var variantKindNames = [...]string{
	KindEmpty:       "Empty",
	KindString:      "String",
	KindBool:        "Bool",
	KindInt8:        "Int8",
	KindInt16:       "Int16",
	KindInt32:       "Int32",
	KindInt64:       "Int64",
	KindUint8:       "Uint8",
	KindUint16:      "Uint16",
	KindUint32:      "Uint32",
	KindUint64:      "Uint64",
	KindBytes:       "Bytes",
	KindStringArray: "StringArray",
	KindObject:      "Object",
}

func (k VariantKind) String() string {
	if int(k) < len(variantKindNames) {
		return variantKindNames[k]
	}
	return "VariantKind(" + strconv.Itoa(int(k)) + ")"
}

// managedTypeName is the fully qualified name of the managed type a value of
// kind k is marshaled to. Empty and Object have none.
func (k VariantKind) managedTypeName() string {
	switch k {
	case KindString:
		return "System.String"
	case KindBool:
		return "System.Boolean"
	case KindInt8:
		return "System.SByte"
	case KindInt16:
		return "System.Int16"
	case KindInt32:
		return "System.Int32"
	case KindInt64:
		return "System.Int64"
	case KindUint8:
		return "System.Byte"
	case KindUint16:
		return "System.UInt16"
	case KindUint32:
		return "System.UInt32"
	case KindUint64:
		return "System.UInt64"
	case KindBytes:
		return "System.Byte[]"
	case KindStringArray:
		return "System.String[]"
	default:
		return ""
	}
}

// Object is an opaque reference to a managed object owned by a host
// backend. Release drops the reference.
type Object interface {
	Release()
}

// Variant is the value representation crossing the managed boundary. The
// zero value is Empty.
type Variant struct {
	kind VariantKind
	s    string
	i    int64
	u    uint64
	b    bool
	raw  []byte
	strs []string
	obj  Object
}

// Empty returns the Empty variant.
func Empty() Variant { return Variant{} }

// String returns a String variant.
func String(s string) Variant { return Variant{kind: KindString, s: s} }

// Bool returns a Bool variant.
func Bool(b bool) Variant { return Variant{kind: KindBool, b: b} }

func Int8(v int8) Variant     { return Variant{kind: KindInt8, i: int64(v)} }
func Int16(v int16) Variant   { return Variant{kind: KindInt16, i: int64(v)} }
func Int32(v int32) Variant   { return Variant{kind: KindInt32, i: int64(v)} }
func Int64(v int64) Variant   { return Variant{kind: KindInt64, i: v} }
func Uint8(v uint8) Variant   { return Variant{kind: KindUint8, u: uint64(v)} }
func Uint16(v uint16) Variant { return Variant{kind: KindUint16, u: uint64(v)} }
func Uint32(v uint32) Variant { return Variant{kind: KindUint32, u: uint64(v)} }
func Uint64(v uint64) Variant { return Variant{kind: KindUint64, u: v} }

// Bytes returns a Bytes variant holding a copy of b.
func Bytes(b []byte) Variant {
	return Variant{kind: KindBytes, raw: slices.Clone(b)}
}

// Strings returns a StringArray variant holding a copy of s.
func Strings(s []string) Variant {
	return Variant{kind: KindStringArray, strs: slices.Clone(s)}
}

// ObjectOf wraps a managed object reference. A nil object yields Empty.
func ObjectOf(o Object) Variant {
	if o == nil {
		return Variant{}
	}
	return Variant{kind: KindObject, obj: o}
}

// ToVariant converts a Go value to a Variant. Only exact-width integer
// types are accepted; int and uint are rejected since their width depends on
// the platform. Strings must be valid UTF-8.
func ToVariant(v any) (Variant, error) {
	switch x := v.(type) {
	case nil:
		return Empty(), nil
	case Variant:
		return x, nil
	case string:
		if !utf8.ValidString(x) {
			return Variant{}, newError(UnsupportedVariantKind, "", "ToVariant", "string is not valid UTF-8")
		}
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int8:
		return Int8(x), nil
	case int16:
		return Int16(x), nil
	case int32:
		return Int32(x), nil
	case int64:
		return Int64(x), nil
	case uint8:
		return Uint8(x), nil
	case uint16:
		return Uint16(x), nil
	case uint32:
		return Uint32(x), nil
	case uint64:
		return Uint64(x), nil
	case []byte:
		return Bytes(x), nil
	case []string:
		for _, s := range x {
			if !utf8.ValidString(s) {
				return Variant{}, newError(UnsupportedVariantKind, "", "ToVariant", "string array element is not valid UTF-8")
			}
		}
		return Strings(x), nil
	case Object:
		return ObjectOf(x), nil
	default:
		return Variant{}, newError(UnsupportedVariantKind, "", "ToVariant", fmt.Sprintf("%T", v))
	}
}

// ToVariants converts every value with ToVariant.
func ToVariants(values ...any) ([]Variant, error) {
	out := make([]Variant, 0, len(values))
	for _, v := range values {
		vv, err := ToVariant(v)
		if err != nil {
			return nil, err
		}
		out = append(out, vv)
	}
	return out, nil
}

// Kind returns the variant's tag.
func (v Variant) Kind() VariantKind { return v.kind }

// IsEmpty reports whether v is Empty.
func (v Variant) IsEmpty() bool { return v.kind == KindEmpty }

// Native converts v back to the Go value it was built from. Empty yields
// nil; Object fails with UnsupportedVariantKind.
func (v Variant) Native() (any, error) {
	switch v.kind {
	case KindEmpty:
		return nil, nil
	case KindString:
		return v.s, nil
	case KindBool:
		return v.b, nil
	case KindInt8:
		return int8(v.i), nil
	case KindInt16:
		return int16(v.i), nil
	case KindInt32:
		return int32(v.i), nil
	case KindInt64:
		return v.i, nil
	case KindUint8:
		return uint8(v.u), nil
	case KindUint16:
		return uint16(v.u), nil
	case KindUint32:
		return uint32(v.u), nil
	case KindUint64:
		return v.u, nil
	case KindBytes:
		return slices.Clone(v.raw), nil
	case KindStringArray:
		return slices.Clone(v.strs), nil
	default:
		return nil, newError(UnsupportedVariantKind, "", "Native", "managed object has no native representation")
	}
}

// Text returns the string held by a String variant.
func (v Variant) Text() (string, bool) {
	return v.s, v.kind == KindString
}

// Object returns the managed object held by an Object variant.
func (v Variant) Object() (Object, bool) {
	return v.obj, v.kind == KindObject
}

// Int returns the value of any signed or unsigned integer variant widened to
// int64. Uint64 values above the int64 range are reported as not ok.
func (v Variant) Int() (int64, bool) {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i, true
	case KindUint8, KindUint16, KindUint32:
		return int64(v.u), true
	case KindUint64:
		if v.u > 1<<63-1 {
			return 0, false
		}
		return int64(v.u), true
	}
	return 0, false
}

// Clear drops the managed reference of an Object variant.
func (v Variant) Clear() {
	if v.kind == KindObject && v.obj != nil {
		v.obj.Release()
	}
}

func (v Variant) String() string {
	switch v.kind {
	case KindEmpty:
		return "Empty"
	case KindObject:
		return "Object"
	case KindString:
		return strconv.Quote(v.s)
	case KindBytes:
		return fmt.Sprintf("Bytes[%d]", len(v.raw))
	}
	n, _ := v.Native()
	return fmt.Sprintf("%s(%v)", v.kind, n)
}
