//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// BindingFlags is System.Reflection.BindingFlags.
type BindingFlags uint32

const (
	BindingInstance         BindingFlags = 0x4
	BindingStatic           BindingFlags = 0x8
	BindingPublic           BindingFlags = 0x10
	BindingNonPublic        BindingFlags = 0x20
	BindingFlattenHierarchy BindingFlags = 0x40
	BindingInvokeMethod     BindingFlags = 0x100
	BindingCreateInstance   BindingFlags = 0x200
	BindingGetField         BindingFlags = 0x400
	BindingGetProperty      BindingFlags = 0x1000
	BindingSetProperty      BindingFlags = 0x2000
)

// Type is System._Type.
type Type struct {
	vtbl *typeVtbl
}

type typeVtbl struct {
	ole.IDispatchVtbl
	get_ToString              uintptr
	Equals                    uintptr
	GetHashCode               uintptr
	GetType                   uintptr
	get_MemberType            uintptr
	get_name                  uintptr
	get_DeclaringType         uintptr
	get_ReflectedType         uintptr
	GetCustomAttributes       uintptr
	GetCustomAttributes_2     uintptr
	IsDefined                 uintptr
	get_Guid                  uintptr
	get_Module                uintptr
	get_Assembly              uintptr
	get_TypeHandle            uintptr
	get_FullName              uintptr
	get_Namespace             uintptr
	get_AssemblyQualifiedName uintptr
	GetArrayRank              uintptr
	get_BaseType              uintptr
	GetConstructors           uintptr
	GetInterface              uintptr
	GetInterfaces             uintptr
	FindInterfaces            uintptr
	GetEvent                  uintptr
	GetEvents                 uintptr
	GetEvents_2               uintptr
	GetNestedTypes            uintptr
	GetNestedType             uintptr
	GetMember                 uintptr
	GetDefaultMembers         uintptr
	FindMembers               uintptr
	GetElementType            uintptr
	IsSubclassOf              uintptr
	IsInstanceOfType          uintptr
	IsAssignableFrom          uintptr
	GetInterfaceMap           uintptr
	GetMethod                 uintptr
	GetMethod_2               uintptr
	GetMethods                uintptr
	GetField                  uintptr
	GetFields                 uintptr
	GetProperty               uintptr
	GetProperty_2             uintptr
	GetProperties             uintptr
	GetMember_2               uintptr
	GetMembers                uintptr
	InvokeMember              uintptr
	get_UnderlyingSystemType  uintptr
	InvokeMember_2            uintptr
	InvokeMember_3            uintptr
	GetConstructor            uintptr
	GetConstructor_2          uintptr
	GetConstructor_3          uintptr
	GetConstructors_2         uintptr
	get_TypeInitializer       uintptr
	GetMethod_3               uintptr
	GetMethod_4               uintptr
	GetMethod_5               uintptr
	GetMethod_6               uintptr
}

func (t *Type) Release() uint32 { return asUnknown(t).Release() }

// Unknown views t as an *IUnknown.
func (t *Type) Unknown() *IUnknown { return asUnknown(t) }

// TypeFromUnknown queries u for _Type.
func TypeFromUnknown(u *IUnknown) (*Type, error) {
	return queryAs[Type](u, IID_Type)
}

// FullName returns the namespace qualified type name.
func (t *Type) FullName() (string, error) {
	return getString("get_FullName", t.vtbl.get_FullName, unsafe.Pointer(t))
}

// GetMethods returns the methods selected by flags.
func (t *Type) GetMethods(flags BindingFlags) ([]*MethodInfo, error) {
	var sa *ole.SafeArray
	hr, _, _ := syscall.SyscallN(t.vtbl.GetMethods,
		uintptr(unsafe.Pointer(t)), uintptr(flags), uintptr(unsafe.Pointer(&sa)))
	if err := checkManaged("GetMethods", hr); err != nil {
		return nil, err
	}
	defer DestroySafeArray(sa)
	items, err := unknownElements(sa)
	if err != nil {
		return nil, err
	}
	return queryAll[MethodInfo](items, IID_MethodInfo)
}

// GetConstructors returns the constructors selected by flags.
func (t *Type) GetConstructors(flags BindingFlags) ([]*ConstructorInfo, error) {
	var sa *ole.SafeArray
	hr, _, _ := syscall.SyscallN(t.vtbl.GetConstructors,
		uintptr(unsafe.Pointer(t)), uintptr(flags), uintptr(unsafe.Pointer(&sa)))
	if err := checkManaged("GetConstructors", hr); err != nil {
		return nil, err
	}
	defer DestroySafeArray(sa)
	items, err := unknownElements(sa)
	if err != nil {
		return nil, err
	}
	return queryAll[ConstructorInfo](items, IID_ConstructorInfo)
}

// GetMethod returns the public method called name, or nil when there is
// none. It fails with an AmbiguousMatchException for overloaded names.
func (t *Type) GetMethod(name string) (*MethodInfo, error) {
	b := bstr(name)
	defer freeBSTR(b)
	var out *MethodInfo
	hr, _, _ := syscall.SyscallN(t.vtbl.GetMethod_6,
		uintptr(unsafe.Pointer(t)), b, uintptr(unsafe.Pointer(&out)))
	if err := checkManaged("GetMethod_6", hr); err != nil {
		return nil, err
	}
	return out, nil
}

// InvokeMember calls Type.InvokeMember(name, flags, null, target, args).
// The caller clears the returned variant.
func (t *Type) InvokeMember(name string, flags BindingFlags, target *ole.VARIANT, args []ole.VARIANT) (ole.VARIANT, error) {
	sa, err := NewVariantArray(args)
	if err != nil {
		return ole.VARIANT{}, err
	}
	defer DestroySafeArray(sa)

	b := bstr(name)
	defer freeBSTR(b)

	var self ole.VARIANT
	if target != nil {
		self = *target
	}
	var ret ole.VARIANT
	hr, _, _ := syscall.SyscallN(t.vtbl.InvokeMember_3,
		uintptr(unsafe.Pointer(t)),
		b,
		uintptr(flags),
		0,
		uintptr(unsafe.Pointer(&self)),
		uintptr(unsafe.Pointer(sa)),
		uintptr(unsafe.Pointer(&ret)))
	if err := checkManaged("InvokeMember_3", hr); err != nil {
		return ole.VARIANT{}, err
	}
	return ret, nil
}

// IsInstanceOfType reports whether the object held by v is an instance of
// t.
func (t *Type) IsInstanceOfType(v *ole.VARIANT) (bool, error) {
	arg := *v
	var out int16
	hr, _, _ := syscall.SyscallN(t.vtbl.IsInstanceOfType,
		uintptr(unsafe.Pointer(t)),
		uintptr(unsafe.Pointer(&arg)),
		uintptr(unsafe.Pointer(&out)))
	if err := checkManaged("IsInstanceOfType", hr); err != nil {
		return false, err
	}
	return out != 0, nil
}
