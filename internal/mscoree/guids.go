//go:build windows && amd64

package mscoree

import (
	ole "github.com/go-ole/go-ole"
)

var (
	CLSID_CLRMetaHost    = ole.NewGUID("{9280188D-0E8E-4867-B30C-7FA83884E8DE}")
	IID_ICLRMetaHost     = ole.NewGUID("{D332DB9E-B9B3-4125-8207-A14884F53216}")
	IID_ICLRRuntimeInfo  = ole.NewGUID("{BD39D1D2-BA2F-486A-89B0-B4B0CB466891}")
	CLSID_CorRuntimeHost = ole.NewGUID("{CB2F6723-AB3A-11D2-9C40-00C04FA30A3E}")
	IID_ICorRuntimeHost  = ole.NewGUID("{CB2F6722-AB3A-11D2-9C40-00C04FA30A3E}")
	IID_IEnumUnknown     = ole.NewGUID("{00000100-0000-0000-C000-000000000046}")
	IID_AppDomain        = ole.NewGUID("{05F696DC-2B29-3663-AD8B-C4389CF2A713}")
	IID_Assembly         = ole.NewGUID("{17156360-2F1A-384A-BC52-FDE93C215C5B}")
	IID_Type             = ole.NewGUID("{BCA8B44D-AAD6-3A86-8AB7-03349F4F2DA2}")
	IID_MethodInfo       = ole.NewGUID("{FFCC1B5D-ECB8-38DD-9B01-3DC8ABC2AA5F}")
	IID_ConstructorInfo  = ole.NewGUID("{E9A19478-9646-3679-9B10-8411AE1FD57D}")
	IID_Exception        = ole.NewGUID("{B36B5C63-42EF-38BC-A07E-0B34C98F164A}")
	IID_IErrorInfo       = ole.NewGUID("{1CF2B120-547D-101B-8E65-08002B2BD119}")

	CLSID_CLRRuntimeHost            = ole.NewGUID("{90F1A06E-7712-4762-86B5-7A5EBA6BDB02}")
	IID_ICLRRuntimeHost             = ole.NewGUID("{90F1A06C-7712-4762-86B5-7A5EBA6BDB02}")
	IID_ICLRAssemblyIdentityManager = ole.NewGUID("{15F0A9DA-3FF6-4393-9DA9-FDFD284E6972}")
	IID_IHostControl                = ole.NewGUID("{02CA073C-7079-4860-880A-C2F7A449C991}")
	IID_IHostAssemblyManager        = ole.NewGUID("{613DABD7-62B2-493E-9E65-C1E32A1E0C5E}")
	IID_IHostAssemblyStore          = ole.NewGUID("{7B102A88-3F7F-496D-8FA2-C35374E01AF3}")
)
