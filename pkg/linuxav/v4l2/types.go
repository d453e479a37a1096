//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Flags       uint32
	Emulated    bool
}

// FrameSize describes one VIDIOC_ENUM_FRAMESIZES entry as reported by the driver.
// For stepwise and continuous ranges Width/Height hold the maximum size.
type FrameSize struct {
	Type   uint32
	Width  uint32
	Height uint32
}

// DeviceType represents the type of V4L2 device.
type DeviceType int

// Device types.
const (
	DeviceTypeWebcam  DeviceType = 0
	DeviceTypeHDMI    DeviceType = 1
	DeviceTypeUnknown DeviceType = -1
)

// SignalState represents the state of a video signal.
type SignalState int

// Signal states.
const (
	SignalStateNoDevice     SignalState = -1
	SignalStateNoLink       SignalState = 0 // No cable connected
	SignalStateNoSignal     SignalState = 1 // Cable connected, no signal
	SignalStateUnstable     SignalState = 2 // Signal present but unstable
	SignalStateLocked       SignalState = 3 // Signal locked and stable
	SignalStateOutOfRange   SignalState = 4 // Signal out of supported range
	SignalStateNotSupported SignalState = 5 // Device doesn't support DV timings
)

// SignalStatus contains detailed signal information.
type SignalStatus struct {
	State      SignalState
	Width      uint32
	Height     uint32
	FPS        float64
	Interlaced bool
}

// DeviceStatus contains combined device type and ready status.
type DeviceStatus struct {
	DeviceType DeviceType
	Ready      bool
}

// Capability flags.
const (
	v4l2CapVideoCapture = 0x00000001
	v4l2CapDeviceCaps   = 0x80000000
)

// v4l2FmtFlagEmulated marks formats converted in userspace by libv4l.
const v4l2FmtFlagEmulated = 0x0002

// PixelFormatMJPEG is the fourcc of motion-JPEG capture ('MJPG').
const PixelFormatMJPEG uint32 = 0x47504A4D

// Other fourccs seen in listings.
const (
	v4l2PixFmtYUYV = 0x56595559 // 'YUYV'
	v4l2PixFmtH264 = 0x34363248 // 'H264'
	v4l2PixFmtHEVC = 0x43564548 // 'HEVC'
	v4l2PixFmtNV12 = 0x3231564E // 'NV12'
)

// Frame size types.
const (
	v4l2FrmsizeTypeDiscrete   = 1
	v4l2FrmsizeTypeContinuous = 2
	v4l2FrmsizeTypeStepwise   = 3
)

// Buffer type.
const (
	v4l2BufTypeVideoCapture = 1
)

// Streaming I/O.
const (
	v4l2CapStreaming = 0x04000000
	v4l2MemoryMMAP   = 1
	v4l2FieldAny     = 0
)
