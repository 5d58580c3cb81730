//go:build windows

package encode

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/lanternops/duplexrecorder/internal/comutil"
)

// Media Foundation GUIDs and vtable offsets this backend drives. These are
// additive to internal/comutil's shared COM dispatch helper: the capture
// package's DXGI bindings and this package's MFT bindings both route their
// vtable calls through comutil.Call/Release, but each owns the
// interface-specific GUID/offset tables only it needs.
var (
	mftCategoryVideoEncoder = comutil.MustGUID("f79eac7d-e545-4387-bdee-d647d7bde42a")
	iidIMFTransform         = comutil.MustGUID("bf94c121-5b05-4e6f-8000-ba598961414d")

	mfMediaTypeVideo  = comutil.MustGUID("73646976-0000-0010-8000-00aa00389b71")
	mfVideoFormatH264 = comutil.MustGUID("34363248-0000-0010-8000-00aa00389b71")
	mfVideoFormatNV12 = comutil.MustGUID("3231564e-0000-0010-8000-00aa00389b71")

	mfMTMajorType        = comutil.MustGUID("48eba18e-f8c9-4687-bf11-0a74c9f96a8f")
	mfMTSubtype          = comutil.MustGUID("f7e34c9a-42e8-4714-b74b-cb29d72c35e5")
	mfMTAvgBitrate       = comutil.MustGUID("20332624-fb0d-4d9e-bd0d-cbf6786c102e")
	mfMTInterlaceMode    = comutil.MustGUID("e2724bb8-e676-4806-b4b2-a8d6efb44ccd")
	mfMTFrameSize        = comutil.MustGUID("1652c33d-d6b2-4012-b834-72030849a37d")
	mfMTFrameRate        = comutil.MustGUID("c459a2e8-3d2c-4e44-b132-fee5156c7bb0")
	mfMTPixelAspectRatio = comutil.MustGUID("c6376a1e-8d0a-4027-be45-6d9a0ad39bb6")
	mfLowLatency         = comutil.MustGUID("9c27891a-ed7a-40e1-88e8-b22727a024ee")
	mfMTDefaultStride    = comutil.MustGUID("644b4e48-1e02-4516-b0eb-c01ca9d49ac6")
	mfTransformAsyncUnlock = comutil.MustGUID("e5666d6b-3422-4eb6-a421-da7db1f8e207")

	iidICodecAPI                   = comutil.MustGUID("901db4c7-31ce-41a2-85dc-8fa0bf41b8da")
	codecAPIAVEncCommonMeanBitRate = comutil.MustGUID("f7222374-2144-4815-b550-a37f8e12ee52")
	codecAPIAVEncMPVGOPSize        = comutil.MustGUID("95f31b26-95a4-41d0-a3c4-99d7e2b7ebe7")
)

const (
	coinitMultithreaded = 0x0
	mfVersion           = 0x00020070
	mfStartupFull       = 0

	mftEnumFlagSyncMFT       = 0x00000001
	mftEnumFlagHardware      = 0x00000004
	mftEnumFlagSortAndFilter = 0x00000040

	mftMessageCommandFlush         = 0x00000000
	mftMessageNotifyBeginStreaming = 0x10000000
	mftMessageNotifyEndStreaming   = 0x10000001
	mftMessageNotifyStartOfStream  = 0x10000003

	mfVideoInterlaceProgressive = 2

	mfENotAccepting          = 0xC00D36B5
	mfEBufferTooSmall        = 0xC00D36B1
	mfETransformNeedInput    = 0xC00D6D72
	mfETransformStreamChange = 0xC00D6D61
	eUnexpected              = 0x8000FFFF

	mftOutputDataBufferIncomplete  = 0x01000000
	mftOutputStreamProvidesSamples = 0x00000100

	vtUI4 = 19

	vtblSetUINT32 = 21
	vtblSetUINT64 = 22
	vtblSetGUID   = 24

	vtblGetOutputStreamInfo = 7
	vtblGetAttributes       = 8
	vtblSetInputType        = 15
	vtblSetOutputType       = 16
	vtblProcessMessage      = 23
	vtblProcessInput        = 24
	vtblProcessOutput       = 25

	vtblSetSampleTime       = 36
	vtblSetSampleDuration   = 38
	vtblConvertToContiguous = 41
	vtblAddBuffer           = 42

	vtblBufLock             = 3
	vtblBufUnlock           = 4
	vtblBufSetCurrentLength = 6

	vtblActivateObject   = 33
	vtblQueryInterface   = 0
	vtblCodecAPISetValue = 9
)

var (
	ole32DLL  = windows.NewLazySystemDLL("ole32.dll")
	mfplatDLL = windows.NewLazySystemDLL("mfplat.dll")

	procCoInitializeEx = ole32DLL.NewProc("CoInitializeEx")
	procCoUninitialize = ole32DLL.NewProc("CoUninitialize")
	procCoTaskMemFree  = ole32DLL.NewProc("CoTaskMemFree")

	procMFStartup            = mfplatDLL.NewProc("MFStartup")
	procMFShutdown           = mfplatDLL.NewProc("MFShutdown")
	procMFTEnumEx            = mfplatDLL.NewProc("MFTEnumEx")
	procMFCreateMediaType    = mfplatDLL.NewProc("MFCreateMediaType")
	procMFCreateSample       = mfplatDLL.NewProc("MFCreateSample")
	procMFCreateMemoryBuffer = mfplatDLL.NewProc("MFCreateMemoryBuffer")
)

type mftRegisterTypeInfo struct {
	guidMajorType comutil.GUID
	guidSubtype   comutil.GUID
}

type mftOutputDataBuffer struct {
	dwStreamID uint32
	pSample    uintptr
	dwStatus   uint32
	pEvents    uintptr
}

type mftOutputStreamInfo struct {
	dwFlags     uint32
	cbSize      uint32
	cbAlignment uint32
}

type comVariant struct {
	vt       uint16
	reserved [6]byte
	val      uint64
}

func init() {
	registerHardware("MFT H264 (NVIDIA/Intel/AMD)", newMFTBackend)
}

// mftBackend drives an IMFTransform H.264 encoder found via MFTEnumEx,
// hardware-first with an automatic fall back to the sync software MFT when
// no hardware encoder enumerates or the hardware transform's async unlock
// fails. It never writes a
// container itself: output is handed back as AVCC-framed access units for
// internal/mp4mux to mux.
type mftBackend struct {
	mu sync.Mutex

	params Params

	transform       uintptr
	codecAPI        uintptr
	isHW            bool
	providesSamples bool
	outputBufSize   int

	frameIdx     uint64
	threadLocked bool
}

func newMFTBackend(params Params) (Backend, error) {
	b := &mftBackend{params: params}
	if err := b.initialize(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *mftBackend) initialize() error {
	if !b.threadLocked {
		runtime.LockOSThread()
		b.threadLocked = true
	}

	hr, _, _ := procCoInitializeEx.Call(0, coinitMultithreaded)
	if int32(hr) < 0 && uint32(hr) != 0x80010106 {
		return fmt.Errorf("encode: CoInitializeEx: 0x%08X", uint32(hr))
	}
	hr, _, _ = procMFStartup.Call(mfVersion, mfStartupFull)
	if int32(hr) < 0 {
		return fmt.Errorf("encode: MFStartup: 0x%08X", uint32(hr))
	}

	transform, isHW, err := b.findEncoder()
	if err != nil {
		procMFShutdown.Call()
		return fmt.Errorf("encode: no H264 MFT found: %w", err)
	}

	if isHW {
		if err := b.unlockAsync(transform); err != nil {
			comutil.Release(transform)
			transform, err = b.enumAndActivate(mftEnumFlagSyncMFT | mftEnumFlagSortAndFilter)
			if err != nil {
				procMFShutdown.Call()
				return fmt.Errorf("encode: software MFT fallback after async unlock failure: %w", err)
			}
			isHW = false
		}
	}

	if err := b.setOutputType(transform); err != nil {
		comutil.Release(transform)
		procMFShutdown.Call()
		return fmt.Errorf("encode: SetOutputType: %w", err)
	}
	if err := b.setInputType(transform); err != nil {
		comutil.Release(transform)
		procMFShutdown.Call()
		return fmt.Errorf("encode: SetInputType: %w", err)
	}
	b.setLowLatency(transform)

	comutil.Call(transform, vtblProcessMessage, mftMessageNotifyBeginStreaming, 0)
	comutil.Call(transform, vtblProcessMessage, mftMessageNotifyStartOfStream, 0)

	b.transform = transform
	b.isHW = isHW

	var streamInfo mftOutputStreamInfo
	if hr, err := comutil.Call(transform, vtblGetOutputStreamInfo, 0, uintptr(unsafe.Pointer(&streamInfo))); err == nil && int32(hr) >= 0 {
		b.providesSamples = streamInfo.dwFlags&mftOutputStreamProvidesSamples != 0
		b.outputBufSize = int(streamInfo.cbSize)
	}
	if b.outputBufSize <= 0 {
		b.outputBufSize = b.params.Width * b.params.Height * 3 / 2
	}

	var codecAPI uintptr
	if _, err := comutil.Call(transform, vtblQueryInterface, uintptr(unsafe.Pointer(&iidICodecAPI)), uintptr(unsafe.Pointer(&codecAPI))); err == nil && codecAPI != 0 {
		b.codecAPI = codecAPI
		fps := b.params.FPS
		if fps <= 0 {
			fps = 30
		}
		gopSize := uint32(fps * 2)
		if gopSize < 20 {
			gopSize = 20
		}
		gv := comVariant{vt: vtUI4, val: uint64(gopSize)}
		comutil.Call(codecAPI, vtblCodecAPISetValue, uintptr(unsafe.Pointer(&codecAPIAVEncMPVGOPSize)), uintptr(unsafe.Pointer(&gv)))
	}

	return nil
}

func (b *mftBackend) findEncoder() (uintptr, bool, error) {
	if t, err := b.enumAndActivate(mftEnumFlagHardware | mftEnumFlagSortAndFilter); err == nil {
		return t, true, nil
	}
	if t, err := b.enumAndActivate(mftEnumFlagSyncMFT | mftEnumFlagSortAndFilter); err == nil {
		return t, false, nil
	}
	return 0, false, fmt.Errorf("no H264 encoder available")
}

func (b *mftBackend) enumAndActivate(flags uint32) (uintptr, error) {
	input := mftRegisterTypeInfo{guidMajorType: mfMediaTypeVideo, guidSubtype: mfVideoFormatNV12}
	output := mftRegisterTypeInfo{guidMajorType: mfMediaTypeVideo, guidSubtype: mfVideoFormatH264}

	var ppActivate uintptr
	var count uint32
	hr, _, _ := procMFTEnumEx.Call(
		uintptr(unsafe.Pointer(&mftCategoryVideoEncoder)),
		uintptr(flags),
		uintptr(unsafe.Pointer(&input)),
		uintptr(unsafe.Pointer(&output)),
		uintptr(unsafe.Pointer(&ppActivate)),
		uintptr(unsafe.Pointer(&count)),
	)
	if int32(hr) < 0 || count == 0 {
		return 0, fmt.Errorf("MFTEnumEx found 0 encoders (flags=0x%X)", flags)
	}

	activatePtr := *(*uintptr)(unsafe.Pointer(ppActivate))
	var transform uintptr
	_, err := comutil.Call(activatePtr, vtblActivateObject, uintptr(unsafe.Pointer(&iidIMFTransform)), uintptr(unsafe.Pointer(&transform)))

	activateArray := unsafe.Slice((*uintptr)(unsafe.Pointer(ppActivate)), count)
	for _, a := range activateArray {
		comutil.Release(a)
	}
	procCoTaskMemFree.Call(ppActivate)

	if err != nil {
		return 0, fmt.Errorf("ActivateObject: %w", err)
	}
	return transform, nil
}

func (b *mftBackend) setOutputType(transform uintptr) error {
	var mt uintptr
	if hr, _, _ := procMFCreateMediaType.Call(uintptr(unsafe.Pointer(&mt))); int32(hr) < 0 {
		return fmt.Errorf("MFCreateMediaType: 0x%08X", uint32(hr))
	}
	defer comutil.Release(mt)

	comutil.Call(mt, vtblSetGUID, uintptr(unsafe.Pointer(&mfMTMajorType)), uintptr(unsafe.Pointer(&mfMediaTypeVideo)))
	comutil.Call(mt, vtblSetGUID, uintptr(unsafe.Pointer(&mfMTSubtype)), uintptr(unsafe.Pointer(&mfVideoFormatH264)))
	comutil.Call(mt, vtblSetUINT32, uintptr(unsafe.Pointer(&mfMTAvgBitrate)), uintptr(uint32(b.params.BitrateBPS)))
	comutil.Call(mt, vtblSetUINT32, uintptr(unsafe.Pointer(&mfMTInterlaceMode)), uintptr(uint32(mfVideoInterlaceProgressive)))
	comutil.Call(mt, vtblSetUINT64, uintptr(unsafe.Pointer(&mfMTFrameSize)), uintptr(comutil.Pack64(uint32(b.params.Width), uint32(b.params.Height))))
	fps := b.params.FPS
	if fps <= 0 {
		fps = 30
	}
	comutil.Call(mt, vtblSetUINT64, uintptr(unsafe.Pointer(&mfMTFrameRate)), uintptr(comutil.Pack64(uint32(fps), 1)))
	comutil.Call(mt, vtblSetUINT64, uintptr(unsafe.Pointer(&mfMTPixelAspectRatio)), uintptr(comutil.Pack64(1, 1)))

	if _, err := comutil.Call(transform, vtblSetOutputType, 0, mt, 0); err != nil {
		return err
	}
	return nil
}

func (b *mftBackend) setInputType(transform uintptr) error {
	var mt uintptr
	if hr, _, _ := procMFCreateMediaType.Call(uintptr(unsafe.Pointer(&mt))); int32(hr) < 0 {
		return fmt.Errorf("MFCreateMediaType: 0x%08X", uint32(hr))
	}
	defer comutil.Release(mt)

	comutil.Call(mt, vtblSetGUID, uintptr(unsafe.Pointer(&mfMTMajorType)), uintptr(unsafe.Pointer(&mfMediaTypeVideo)))
	comutil.Call(mt, vtblSetGUID, uintptr(unsafe.Pointer(&mfMTSubtype)), uintptr(unsafe.Pointer(&mfVideoFormatNV12)))
	comutil.Call(mt, vtblSetUINT32, uintptr(unsafe.Pointer(&mfMTInterlaceMode)), uintptr(uint32(mfVideoInterlaceProgressive)))
	comutil.Call(mt, vtblSetUINT64, uintptr(unsafe.Pointer(&mfMTFrameSize)), uintptr(comutil.Pack64(uint32(b.params.Width), uint32(b.params.Height))))
	fps := b.params.FPS
	if fps <= 0 {
		fps = 30
	}
	comutil.Call(mt, vtblSetUINT64, uintptr(unsafe.Pointer(&mfMTFrameRate)), uintptr(comutil.Pack64(uint32(fps), 1)))
	comutil.Call(mt, vtblSetUINT64, uintptr(unsafe.Pointer(&mfMTPixelAspectRatio)), uintptr(comutil.Pack64(1, 1)))
	comutil.Call(mt, vtblSetUINT32, uintptr(unsafe.Pointer(&mfMTDefaultStride)), uintptr(uint32(b.params.Width)))

	if _, err := comutil.Call(transform, vtblSetInputType, 0, mt, 0); err != nil {
		return err
	}
	return nil
}

func (b *mftBackend) setLowLatency(transform uintptr) {
	var attrs uintptr
	if _, err := comutil.Call(transform, vtblGetAttributes, uintptr(unsafe.Pointer(&attrs))); err != nil || attrs == 0 {
		return
	}
	defer comutil.Release(attrs)
	comutil.Call(attrs, vtblSetUINT32, uintptr(unsafe.Pointer(&mfLowLatency)), uintptr(uint32(1)))
}

func (b *mftBackend) unlockAsync(transform uintptr) error {
	var attrs uintptr
	if _, err := comutil.Call(transform, vtblGetAttributes, uintptr(unsafe.Pointer(&attrs))); err != nil || attrs == 0 {
		return fmt.Errorf("GetAttributes for async unlock: %w", err)
	}
	defer comutil.Release(attrs)
	_, err := comutil.Call(attrs, vtblSetUINT32, uintptr(unsafe.Pointer(&mfTransformAsyncUnlock)), uintptr(uint32(1)))
	return err
}

// Encode feeds one NV12 frame to the transform and returns any access units
// the transform has completed encoding. An empty, nil-error result means the
// transform is still buffering.
func (b *mftBackend) Encode(nv12 []byte) ([]Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sample, err := b.createSample(nv12)
	if err != nil {
		return nil, fmt.Errorf("encode: create sample: %w", err)
	}
	defer comutil.Release(sample)

	ret, _, _ := syscall.SyscallN(b.vtblFn(vtblProcessInput), b.transform, 0, sample, 0)
	if uint32(ret) == mfENotAccepting {
		out, err := b.drainOutput()
		if err != nil {
			return nil, err
		}
		ret, _, _ = syscall.SyscallN(b.vtblFn(vtblProcessInput), b.transform, 0, sample, 0)
		if int32(ret) < 0 {
			return out, nil
		}
	} else if int32(ret) < 0 {
		return nil, fmt.Errorf("encode: ProcessInput: 0x%08X", uint32(ret))
	}

	return b.drainOutput()
}

func (b *mftBackend) vtblFn(idx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(b.transform))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

func (b *mftBackend) createSample(nv12 []byte) (uintptr, error) {
	var pBuffer uintptr
	hr, _, _ := procMFCreateMemoryBuffer.Call(uintptr(uint32(len(nv12))), uintptr(unsafe.Pointer(&pBuffer)))
	if int32(hr) < 0 {
		return 0, fmt.Errorf("MFCreateMemoryBuffer: 0x%08X", uint32(hr))
	}

	var pData uintptr
	if _, err := comutil.Call(pBuffer, vtblBufLock, uintptr(unsafe.Pointer(&pData)), 0, 0); err != nil {
		comutil.Release(pBuffer)
		return 0, fmt.Errorf("buffer Lock: %w", err)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(pData)), len(nv12))
	copy(dst, nv12)
	comutil.Call(pBuffer, vtblBufUnlock)
	comutil.Call(pBuffer, vtblBufSetCurrentLength, uintptr(uint32(len(nv12))))

	var pSample uintptr
	hr, _, _ = procMFCreateSample.Call(uintptr(unsafe.Pointer(&pSample)))
	if int32(hr) < 0 {
		comutil.Release(pBuffer)
		return 0, fmt.Errorf("MFCreateSample: 0x%08X", uint32(hr))
	}

	_, err := comutil.Call(pSample, vtblAddBuffer, pBuffer)
	comutil.Release(pBuffer)
	if err != nil {
		comutil.Release(pSample)
		return 0, fmt.Errorf("AddBuffer: %w", err)
	}

	fps := b.params.FPS
	if fps <= 0 {
		fps = 30
	}
	dur := uint64(10_000_000 / fps)
	comutil.Call(pSample, vtblSetSampleTime, uintptr(b.frameIdx*dur))
	comutil.Call(pSample, vtblSetSampleDuration, uintptr(dur))
	b.frameIdx++

	return pSample, nil
}

func (b *mftBackend) drainOutput() ([]Sample, error) {
	var samples []Sample
	for {
		var callerSample uintptr
		outputData := mftOutputDataBuffer{dwStreamID: 0}

		if !b.providesSamples {
			var pOutputBuffer uintptr
			hr, _, _ := procMFCreateMemoryBuffer.Call(uintptr(uint32(b.outputBufSize)), uintptr(unsafe.Pointer(&pOutputBuffer)))
			if int32(hr) < 0 {
				return samples, fmt.Errorf("MFCreateMemoryBuffer (output): 0x%08X", uint32(hr))
			}
			hr, _, _ = procMFCreateSample.Call(uintptr(unsafe.Pointer(&callerSample)))
			if int32(hr) < 0 {
				comutil.Release(pOutputBuffer)
				return samples, fmt.Errorf("MFCreateSample (output): 0x%08X", uint32(hr))
			}
			comutil.Call(callerSample, vtblAddBuffer, pOutputBuffer)
			comutil.Release(pOutputBuffer)
			outputData.pSample = callerSample
		}

		var status uint32
		ret, _, _ := syscall.SyscallN(b.vtblFn(vtblProcessOutput), b.transform, 0, 1, uintptr(unsafe.Pointer(&outputData)), uintptr(unsafe.Pointer(&status)))

		resultSample := outputData.pSample
		callerOwned := !b.providesSamples

		if uint32(ret) == mfETransformNeedInput || uint32(ret) == eUnexpected {
			if callerOwned && callerSample != 0 {
				comutil.Release(callerSample)
			}
			return samples, nil
		}
		if uint32(ret) == mfEBufferTooSmall {
			if callerOwned && callerSample != 0 {
				comutil.Release(callerSample)
			}
			b.outputBufSize *= 2
			continue
		}
		if int32(ret) < 0 {
			if callerOwned && callerSample != 0 {
				comutil.Release(callerSample)
			}
			return samples, fmt.Errorf("encode: ProcessOutput: 0x%08X", uint32(ret))
		}

		data, keyframe, err := b.extractSampleData(resultSample)
		if b.providesSamples {
			comutil.Release(resultSample)
		} else if callerSample != 0 {
			comutil.Release(callerSample)
		}
		if err != nil {
			return samples, err
		}
		samples = append(samples, Sample{Data: data, Keyframe: keyframe})

		if outputData.dwStatus&mftOutputDataBufferIncomplete == 0 {
			break
		}
	}
	return samples, nil
}

// extractSampleData reads raw bytes out of the MFT's output sample and
// AVCC-frames them (4-byte big-endian length prefix per NAL unit) for
// internal/mp4mux. A NAL is treated as a keyframe carrier if it contains an
// IDR slice (type 5) or SPS (type 7), matching how H.264 encoders emit the
// parameter sets immediately before each IDR.
func (b *mftBackend) extractSampleData(pSample uintptr) (data []byte, keyframe bool, err error) {
	var pContiguous uintptr
	if _, err := comutil.Call(pSample, vtblConvertToContiguous, uintptr(unsafe.Pointer(&pContiguous))); err != nil {
		return nil, false, fmt.Errorf("ConvertToContiguousBuffer: %w", err)
	}
	defer comutil.Release(pContiguous)

	var pData uintptr
	var dataLen uint32
	if _, err := comutil.Call(pContiguous, vtblBufLock, uintptr(unsafe.Pointer(&pData)), 0, uintptr(unsafe.Pointer(&dataLen))); err != nil {
		return nil, false, fmt.Errorf("output buffer Lock: %w", err)
	}
	annexB := make([]byte, dataLen)
	src := unsafe.Slice((*byte)(unsafe.Pointer(pData)), dataLen)
	copy(annexB, src)
	comutil.Call(pContiguous, vtblBufUnlock)

	return annexBToAVCC(annexB)
}

// annexBToAVCC reassembles Annex-B start-code-delimited NAL units (the MFT's
// native output framing) into AVCC length-prefixed units.
func annexBToAVCC(annexB []byte) (data []byte, keyframe bool, err error) {
	var out []byte
	nals := splitAnnexB(annexB)
	for _, nal := range nals {
		if len(nal) == 0 {
			continue
		}
		nalType := nal[0] & 0x1F
		if nalType == 5 || nalType == 7 {
			keyframe = true
		}
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(nal)))
		out = append(out, lenPrefix[:]...)
		out = append(out, nal...)
	}
	return out, keyframe, nil
}

func splitAnnexB(data []byte) [][]byte {
	var nals [][]byte
	start := -1
	i := 0
	for i < len(data)-2 {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if start >= 0 {
				nals = append(nals, trimTrailingZeros(data[start:i]))
			}
			start = i + 3
			i += 3
			continue
		}
		i++
	}
	if start >= 0 && start < len(data) {
		nals = append(nals, trimTrailingZeros(data[start:]))
	}
	return nals
}

// trimTrailingZeros strips the zero bytes a 4-byte start code leaves on the
// tail of the preceding NAL when scanning for the 3-byte 00 00 01 form.
func trimTrailingZeros(nal []byte) []byte {
	for len(nal) > 0 && nal[len(nal)-1] == 0 {
		nal = nal[:len(nal)-1]
	}
	return nal
}

func (b *mftBackend) SetBitrate(bps int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params.BitrateBPS = bps
	if b.codecAPI == 0 {
		return nil
	}
	v := comVariant{vt: vtUI4, val: uint64(uint32(bps))}
	_, err := comutil.Call(b.codecAPI, vtblCodecAPISetValue, uintptr(unsafe.Pointer(&codecAPIAVEncCommonMeanBitRate)), uintptr(unsafe.Pointer(&v)))
	return err
}

func (b *mftBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transform == 0 {
		return nil
	}
	if b.codecAPI != 0 {
		comutil.Release(b.codecAPI)
		b.codecAPI = 0
	}
	comutil.Call(b.transform, vtblProcessMessage, mftMessageCommandFlush, 0)
	comutil.Call(b.transform, vtblProcessMessage, mftMessageNotifyEndStreaming, 0)
	comutil.Release(b.transform)
	b.transform = 0
	procMFShutdown.Call()
	procCoUninitialize.Call()
	return nil
}

func (b *mftBackend) Name() string {
	if b.isHW {
		return "mft-hardware"
	}
	return "mft-software"
}

func (b *mftBackend) IsHardware() bool { return b.isHW }
