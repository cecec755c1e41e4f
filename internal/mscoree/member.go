//go:build windows && amd64

package mscoree

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// MethodInfo is System.Reflection._MethodInfo.
type MethodInfo struct {
	vtbl *methodInfoVtbl
}

// methodBaseVtbl is the layout shared by _MethodInfo and _ConstructorInfo up
// to Invoke_3.
type methodBaseVtbl struct {
	ole.IDispatchVtbl
	get_ToString                 uintptr
	Equals                       uintptr
	GetHashCode                  uintptr
	GetType                      uintptr
	get_MemberType               uintptr
	get_name                     uintptr
	get_DeclaringType            uintptr
	get_ReflectedType            uintptr
	GetCustomAttributes          uintptr
	GetCustomAttributes_2        uintptr
	IsDefined                    uintptr
	GetParameters                uintptr
	GetMethodImplementationFlags uintptr
	get_MethodHandle             uintptr
	get_Attributes               uintptr
	get_CallingConvention        uintptr
	Invoke_2                     uintptr
	get_IsPublic                 uintptr
	get_IsPrivate                uintptr
	get_IsFamily                 uintptr
	get_IsAssembly               uintptr
	get_IsFamilyAndAssembly      uintptr
	get_IsFamilyOrAssembly       uintptr
	get_IsStatic                 uintptr
	get_IsFinal                  uintptr
	get_IsVirtual                uintptr
	get_IsHideBySig              uintptr
	get_IsAbstract               uintptr
	get_IsSpecialName            uintptr
	get_IsConstructor            uintptr
	Invoke_3                     uintptr
}

type methodInfoVtbl struct {
	methodBaseVtbl
	get_returnType                 uintptr
	get_ReturnTypeCustomAttributes uintptr
	GetBaseDefinition              uintptr
}

func (m *MethodInfo) Release() uint32 { return asUnknown(m).Release() }

// Unknown views m as an *IUnknown.
func (m *MethodInfo) Unknown() *IUnknown { return asUnknown(m) }

// ToString returns the reflection signature, for example
// "Void Main(System.String[])".
func (m *MethodInfo) ToString() (string, error) {
	return getString("get_ToString", m.vtbl.get_ToString, unsafe.Pointer(m))
}

// IsStatic reports whether the method is static.
func (m *MethodInfo) IsStatic() (bool, error) {
	return getBool("get_IsStatic", m.vtbl.get_IsStatic, unsafe.Pointer(m))
}

// Invoke calls MethodBase.Invoke(target, args). The caller clears the
// returned variant.
func (m *MethodInfo) Invoke(target *ole.VARIANT, args []ole.VARIANT) (ole.VARIANT, error) {
	sa, err := NewVariantArray(args)
	if err != nil {
		return ole.VARIANT{}, err
	}
	defer DestroySafeArray(sa)

	var self ole.VARIANT
	if target != nil {
		self = *target
	}
	var ret ole.VARIANT
	hr, _, _ := syscall.SyscallN(m.vtbl.Invoke_3,
		uintptr(unsafe.Pointer(m)),
		uintptr(unsafe.Pointer(&self)),
		uintptr(unsafe.Pointer(sa)),
		uintptr(unsafe.Pointer(&ret)))
	if err := checkManaged("Invoke_3", hr); err != nil {
		return ole.VARIANT{}, err
	}
	return ret, nil
}

// ConstructorInfo is System.Reflection._ConstructorInfo.
type ConstructorInfo struct {
	vtbl *methodBaseVtbl
}

func (c *ConstructorInfo) Release() uint32 { return asUnknown(c).Release() }

// Unknown views c as an *IUnknown.
func (c *ConstructorInfo) Unknown() *IUnknown { return asUnknown(c) }

// ToString returns the reflection signature, for example
// "Void .ctor(System.String)".
func (c *ConstructorInfo) ToString() (string, error) {
	return getString("get_ToString", c.vtbl.get_ToString, unsafe.Pointer(c))
}
