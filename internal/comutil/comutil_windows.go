//go:build windows

// Package comutil provides the hand-rolled COM vtable dispatch shared by the
// DXGI desktop-duplication capturer and the Media Foundation encoder. This
// codebase talks to both native frameworks directly through their vtables
// via golang.org/x/sys/windows rather than through a cgo binding.
package comutil

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// GUID mirrors the native GUID layout for COM/DirectX/Media Foundation
// identifiers.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// MustGUID parses a "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" string into a
// GUID, panicking on malformed input (used only for package-level constant
// initialization).
func MustGUID(s string) GUID {
	var d1 uint32
	var d2, d3 uint16
	var d4 [8]byte
	_, err := fmt.Sscanf(s, "%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		&d1, &d2, &d3, &d4[0], &d4[1], &d4[2], &d4[3], &d4[4], &d4[5], &d4[6], &d4[7])
	if err != nil {
		panic("comutil: malformed GUID " + s + ": " + err.Error())
	}
	return GUID{d1, d2, d3, d4}
}

// vtableOf returns the vtable slice for a COM object pointer: *obj is a
// pointer to the vtable pointer.
func vtableOf(obj uintptr) *[1 << 16]uintptr {
	return (*[1 << 16]uintptr)(unsafe.Pointer(*(*uintptr)(unsafe.Pointer(obj))))
}

// Call dispatches a COM vtable method by index, in the style of every
// IUnknown-derived interface in DXGI/D3D11/Media Foundation: slot 0-2 are
// QueryInterface/AddRef/Release, slots 3+ are interface-specific.
func Call(obj uintptr, vtableIdx int, args ...uintptr) (uintptr, error) {
	if obj == 0 {
		return 0, fmt.Errorf("comutil: nil COM object")
	}
	fn := vtableOf(obj)[vtableIdx]
	allArgs := append([]uintptr{obj}, args...)
	ret, _, _ := syscallN(fn, allArgs...)
	if int32(ret) < 0 {
		return ret, fmt.Errorf("comutil: HRESULT 0x%08X", uint32(ret))
	}
	return ret, nil
}

func syscallN(trap uintptr, args ...uintptr) (r1, r2 uintptr, lastErr error) {
	return windows.SyscallN(trap, args...)
}

// Release invokes IUnknown::Release (vtable index 2).
func Release(obj uintptr) {
	if obj == 0 {
		return
	}
	windows.SyscallN(vtableOf(obj)[2], obj)
}

// Pack64 packs two uint32 halves into the "(high<<32)|low" media-type
// attribute encoding Media Foundation uses for frame size and frame rate.
func Pack64(high, low uint32) uint64 {
	return (uint64(high) << 32) | uint64(low)
}

// HRESULT well-known values relevant to desktop duplication dispatch.
// Media Foundation error codes live with the encoder backend that
// dispatches on them.
const (
	HResultOK              = 0x00000000
	DXGIErrorWaitTimeout   = 0x887A0027
	DXGIErrorAccessLost    = 0x887A0026
	DXGIErrorDeviceRemoved = 0x887A0005
	DXGIErrorDeviceReset   = 0x887A0007
)
