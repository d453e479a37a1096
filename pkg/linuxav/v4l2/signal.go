//go:build linux

package v4l2

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// readSignal queries the DV timings of an open device. The state is derived
// from the errno the driver answers with.
func readSignal(fd int) SignalStatus {
	var timings v4l2DVTimings
	err := ioctl(fd, vidiocGDVTimings, unsafe.Pointer(&timings))
	switch {
	case err == nil:
		bt := timings.timings()
		if bt.width == 0 || bt.height == 0 || bt.pixelclock == 0 {
			return SignalStatus{State: SignalStateNoSignal}
		}
		return SignalStatus{
			State:      SignalStateLocked,
			Width:      bt.width,
			Height:     bt.height,
			FPS:        calculateFPS(&bt),
			Interlaced: bt.interlaced != 0,
		}
	case errors.Is(err, unix.ENOLINK):
		return SignalStatus{State: SignalStateNoLink}
	case errors.Is(err, unix.ENOLCK):
		return SignalStatus{State: SignalStateUnstable}
	case errors.Is(err, unix.ERANGE):
		return SignalStatus{State: SignalStateOutOfRange}
	case errors.Is(err, unix.ENOTTY), errors.Is(err, unix.EINVAL):
		return SignalStatus{State: SignalStateNotSupported}
	default:
		return SignalStatus{State: SignalStateNoSignal}
	}
}

// GetDeviceStatus classifies a device and reports whether it can deliver
// frames now. A device answering DV timing queries, even with a link or lock
// error, is an HDMI receiver and is ready only with a locked signal.
func GetDeviceStatus(devicePath string) DeviceStatus {
	fd, err := open(devicePath)
	if err != nil {
		return DeviceStatus{DeviceType: DeviceTypeUnknown}
	}
	defer close(fd)

	var capability v4l2Capability
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&capability)); err != nil {
		return DeviceStatus{DeviceType: DeviceTypeUnknown}
	}

	switch readSignal(fd).State {
	case SignalStateLocked:
		return DeviceStatus{DeviceType: DeviceTypeHDMI, Ready: true}
	case SignalStateNoLink, SignalStateUnstable, SignalStateNoSignal:
		return DeviceStatus{DeviceType: DeviceTypeHDMI}
	}
	if cstr(capability.driver[:]) == "uvcvideo" {
		return DeviceStatus{DeviceType: DeviceTypeWebcam, Ready: true}
	}
	return DeviceStatus{DeviceType: DeviceTypeUnknown, Ready: true}
}

// GetDVTimings reports the input signal of an HDMI capture device.
func GetDVTimings(devicePath string) SignalStatus {
	fd, err := open(devicePath)
	if err != nil {
		return SignalStatus{State: SignalStateNoDevice}
	}
	defer close(fd)
	return readSignal(fd)
}

// calculateFPS derives the refresh rate from the pixel clock and the total
// frame size including blanking.
func calculateFPS(bt *v4l2BTTimings) float64 {
	width := uint64(bt.width + bt.hfrontporch + bt.hsync + bt.hbackporch)
	height := uint64(bt.height + bt.vfrontporch + bt.vsync + bt.vbackporch)
	if bt.interlaced != 0 {
		height /= 2
	}
	if bt.pixelclock == 0 || width == 0 || height == 0 {
		return 0
	}
	return float64(bt.pixelclock) / float64(width*height)
}

var signalStateNames = map[SignalState]string{
	SignalStateNoLink:       "no_link",
	SignalStateNoSignal:     "no_signal",
	SignalStateUnstable:     "unstable",
	SignalStateLocked:       "locked",
	SignalStateOutOfRange:   "out_of_range",
	SignalStateNotSupported: "not_supported",
}

func (s SignalState) String() string {
	if name, ok := signalStateNames[s]; ok {
		return name
	}
	return "no_device"
}

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeWebcam:
		return "webcam"
	case DeviceTypeHDMI:
		return "hdmi"
	}
	return "unknown"
}
