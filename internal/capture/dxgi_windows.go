//go:build windows

package capture

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/lanternops/duplexrecorder/internal/comutil"
)

// Vtable slot indices for the DXGI/D3D11 interfaces this file drives.
// Offsets follow the published COM ABI: IUnknown occupies slots 0-2, each
// derived interface appends its own methods after its base's slots.
const (
	vtblDeviceGetAdapter     = 7  // IDXGIDevice::GetAdapter
	vtblOutput1DuplicateOut  = 22 // IDXGIOutput1::DuplicateOutput
	vtblDuplAcquireNextFrame = 8  // IDXGIOutputDuplication::AcquireNextFrame
	vtblDuplReleaseFrame     = 14 // IDXGIOutputDuplication::ReleaseFrame
	vtblD3D11CreateTexture2D = 5  // ID3D11Device::CreateTexture2D
	vtblCtxMap               = 14 // ID3D11DeviceContext::Map
	vtblCtxUnmap             = 15 // ID3D11DeviceContext::Unmap
	vtblCtxCopyResource      = 47 // ID3D11DeviceContext::CopyResource
)

var (
	modD3D11              = windows.NewLazySystemDLL("d3d11.dll")
	procD3D11CreateDevice = modD3D11.NewProc("D3D11CreateDevice")
)

const (
	d3dDriverTypeHardware        = 1
	d3dFeatureLevel11_0          = 0xb000
	d3d11CreateDeviceBGRASupport = 0x20
)

var (
	iidIDXGIDevice     = comutil.MustGUID("54ec77fa-1377-44e6-8c32-88fd5f44c84c")
	iidID3D11Texture2D = comutil.MustGUID("6f15aaf2-d208-4e89-9ab4-489535d34f9c")
	iidIDXGIOutput1    = comutil.MustGUID("00cddea8-939b-4b83-a340-a685226666cc")
)

type d3d11Texture2DDesc struct {
	Width, Height                    uint32
	MipLevels, ArraySize             uint32
	FormatDXGI                       uint32
	SampleCount, SampleQuality       uint32
	Usage                            uint32
	BindFlags                        uint32
	CPUAccessFlags, MiscFlags        uint32
}

type d3d11MappedSubresource struct {
	PData      uintptr
	RowPitch   uint32
	DepthPitch uint32
}

// dxgiCapturer implements capture.Capturer atop IDXGIOutputDuplication:
// device/context/duplication/staging COM handles, width/height, and a
// consecutive-failure counter. It skips zero-copy GPU sample delivery,
// since the Encoder Worker always wants a CPU-resident BGRA buffer to feed
// into NV12 conversion.
type dxgiCapturer struct {
	device       uintptr
	context      uintptr
	duplication  uintptr
	staging      uintptr
	width, height int

	consecutiveFailures int
}

func init() {
	NewPlatformCapturer = newDXGICapturer
}

func newDXGICapturer(cfg Config) (Capturer, error) {
	c := &dxgiCapturer{}
	if err := c.initDXGI(cfg.DisplayIndex); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *dxgiCapturer) initDXGI(displayIndex int) error {
	var device, context uintptr
	ret, _, _ := procD3D11CreateDevice.Call(
		0, // default adapter; multi-monitor composition beyond the primary output is a non-goal
		d3dDriverTypeHardware,
		0,
		d3d11CreateDeviceBGRASupport,
		0, 0,
		7, // D3D11_SDK_VERSION
		uintptr(unsafe.Pointer(&device)),
		0,
		uintptr(unsafe.Pointer(&context)),
	)
	if int32(ret) < 0 || device == 0 {
		return fmt.Errorf("capture: D3D11CreateDevice failed: 0x%08X", uint32(ret))
	}
	c.device = device
	c.context = context

	// QueryInterface IDXGIDevice -> GetAdapter -> EnumOutputs -> QueryInterface
	// IDXGIOutput1 -> DuplicateOutput. Each step mirrors the native
	// duplication-session bring-up sequence; failures here are session
	// construction failures, not acquisition failures, so they bubble up to
	// the Capture Worker's initialize() retry loop rather than being
	// classified as ErrAccessLost.
	dxgiDevice, err := queryInterface(c.device, iidIDXGIDevice)
	if err != nil {
		return fmt.Errorf("capture: QueryInterface IDXGIDevice: %w", err)
	}
	defer comutil.Release(dxgiDevice)

	var adapter uintptr
	if _, err := comutil.Call(dxgiDevice, vtblDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter))); err != nil {
		return fmt.Errorf("capture: IDXGIDevice::GetAdapter: %w", err)
	}
	defer comutil.Release(adapter)

	output, err := enumOutput(adapter, displayIndex)
	if err != nil {
		return err
	}
	defer comutil.Release(output)

	output1, err := queryInterface(output, iidIDXGIOutput1)
	if err != nil {
		return fmt.Errorf("capture: QueryInterface IDXGIOutput1: %w", err)
	}
	defer comutil.Release(output1)

	var dup uintptr
	if _, err := comutil.Call(output1, vtblOutput1DuplicateOut, c.device, uintptr(unsafe.Pointer(&dup))); err != nil {
		return fmt.Errorf("capture: IDXGIOutput1::DuplicateOutput: %w", err)
	}
	c.duplication = dup

	w, h, err := c.queryOutputDesc(output1)
	if err != nil {
		return err
	}
	c.width, c.height = w, h

	return c.createStagingTexture()
}

// queryInterface and enumOutput are small helpers kept file-local; a larger
// implementation would centralize them in comutil, but they need
// DXGI-specific vtable offsets this package alone uses.
func queryInterface(obj uintptr, iid comutil.GUID) (uintptr, error) {
	var out uintptr
	if _, err := comutil.Call(obj, 0, uintptr(unsafe.Pointer(&iid)), uintptr(unsafe.Pointer(&out))); err != nil {
		return 0, err
	}
	return out, nil
}

func enumOutput(adapter uintptr, index int) (uintptr, error) {
	const vtblAdapterEnumOutputs = 7
	var output uintptr
	if _, err := comutil.Call(adapter, vtblAdapterEnumOutputs, uintptr(index), uintptr(unsafe.Pointer(&output))); err != nil {
		return 0, fmt.Errorf("capture: IDXGIAdapter::EnumOutputs(%d): %w", index, err)
	}
	return output, nil
}

func (c *dxgiCapturer) queryOutputDesc(output1 uintptr) (width, height int, err error) {
	const vtblOutput1GetDesc = 7
	var desc [32]uint32 // oversized scratch buffer for DXGI_OUTPUT_DESC
	if _, err := comutil.Call(output1, vtblOutput1GetDesc, uintptr(unsafe.Pointer(&desc[0]))); err != nil {
		return 0, 0, err
	}
	// DesktopCoordinates is a RECT that follows the 32-WCHAR DeviceName
	// (16 uint32 words) in DXGI_OUTPUT_DESC; right/bottom give the dimensions
	// since left/top are 0 for the primary output in the common case.
	right := int32(desc[18])
	bottom := int32(desc[19])
	if right <= 0 || bottom <= 0 {
		return 1920, 1080, nil // defensive fallback; never observed in practice
	}
	return int(right), int(bottom), nil
}

func (c *dxgiCapturer) createStagingTexture() error {
	desc := d3d11Texture2DDesc{
		Width: uint32(c.width), Height: uint32(c.height),
		MipLevels: 1, ArraySize: 1,
		FormatDXGI:  87, // DXGI_FORMAT_B8G8R8A8_UNORM
		SampleCount: 1,
		Usage:       3, // D3D11_USAGE_STAGING
		CPUAccessFlags: 0x20000, // D3D11_CPU_ACCESS_READ
	}
	var staging uintptr
	if _, err := comutil.Call(c.device, vtblD3D11CreateTexture2D,
		uintptr(unsafe.Pointer(&desc)), 0, uintptr(unsafe.Pointer(&staging))); err != nil {
		return fmt.Errorf("capture: CreateTexture2D(staging): %w", err)
	}
	c.staging = staging
	return nil
}

// Acquire implements Capturer. It mirrors the native dispatch on HRESULT:
// DXGI_ERROR_WAIT_TIMEOUT -> ErrWaitTimeout, DXGI_ERROR_ACCESS_LOST ->
// ErrAccessLost, DXGI_ERROR_DEVICE_REMOVED/RESET -> ErrDeviceRemoved.
func (c *dxgiCapturer) Acquire(timeout time.Duration) (Frame, error) {
	var frameInfo [32]byte
	var resource uintptr

	ret, _ := comutil.Call(c.duplication, vtblDuplAcquireNextFrame,
		uintptr(timeout.Milliseconds()), uintptr(unsafe.Pointer(&frameInfo[0])), uintptr(unsafe.Pointer(&resource)))

	switch uint32(ret) {
	case comutil.HResultOK:
		// fallthrough to copy path below
	case comutil.DXGIErrorWaitTimeout:
		return Frame{}, ErrWaitTimeout
	case comutil.DXGIErrorAccessLost:
		return Frame{}, ErrAccessLost
	case comutil.DXGIErrorDeviceRemoved, comutil.DXGIErrorDeviceReset:
		return Frame{}, ErrDeviceRemoved
	default:
		c.consecutiveFailures++
		return Frame{}, fmt.Errorf("capture: AcquireNextFrame: HRESULT 0x%08X", uint32(ret))
	}
	defer comutil.Call(c.duplication, vtblDuplReleaseFrame)

	texture, err := queryInterface(resource, iidID3D11Texture2D)
	comutil.Release(resource)
	if err != nil {
		return Frame{}, fmt.Errorf("capture: QueryInterface ID3D11Texture2D: %w", err)
	}
	defer comutil.Release(texture)

	if _, err := comutil.Call(c.context, vtblCtxCopyResource, c.staging, texture); err != nil {
		return Frame{}, fmt.Errorf("capture: CopyResource: %w", err)
	}

	var mapped d3d11MappedSubresource
	if _, err := comutil.Call(c.context, vtblCtxMap, c.staging, 0, 1 /* D3D11_MAP_READ */, 0, uintptr(unsafe.Pointer(&mapped))); err != nil {
		return Frame{}, fmt.Errorf("capture: Map staging texture: %w", err)
	}
	defer comutil.Call(c.context, vtblCtxUnmap, c.staging, 0)

	stride := int(mapped.RowPitch)
	pixels := make([]byte, stride*c.height)
	src := unsafe.Slice((*byte)(unsafe.Pointer(mapped.PData)), stride*c.height)
	copy(pixels, src)

	c.consecutiveFailures = 0
	return Frame{Pixels: pixels, Width: c.width, Height: c.height, Stride: stride, Format: FormatBGRA8}, nil
}

func (c *dxgiCapturer) Bounds() (int, int, error) {
	return c.width, c.height, nil
}

func (c *dxgiCapturer) Close() error {
	comutil.Release(c.duplication)
	comutil.Release(c.staging)
	comutil.Release(c.context)
	comutil.Release(c.device)
	c.duplication, c.staging, c.context, c.device = 0, 0, 0, 0
	return nil
}
