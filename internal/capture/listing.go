//go:build linux

package capture

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/smazurov/camrelay/pkg/linuxav/v4l2"
)

const (
	// maxListedDevices bounds enumeration of the device namespace.
	maxListedDevices = 64
	// videoCaptureType is V4L2_BUF_TYPE_VIDEO_CAPTURE, the only type enumerated.
	videoCaptureType = 1
)

// Size is one frame size entry; stepwise ranges report their maximum.
type Size struct {
	X uint32 `json:"x" doc:"Frame width"`
	Y uint32 `json:"y" doc:"Frame height"`
}

// Format is one pixel format a device offers.
type Format struct {
	Type        uint32 `json:"type" doc:"V4L2 buffer type"`
	Flags       uint32 `json:"flags" doc:"V4L2 format flags"`
	Description string `json:"description" example:"Motion-JPEG"`
	PixelFormat uint32 `json:"pixelformat" doc:"Fourcc as little-endian integer"`
	FourCC      string `json:"fourcc" example:"MJPG"`
	Sizes       []Size `json:"sizes"`
}

// DeviceListing describes one capture device.
type DeviceListing struct {
	Path    string   `json:"path" example:"/dev/video0"`
	Name    string   `json:"name" example:"HD Pro Webcam C920"`
	ID      string   `json:"id,omitempty" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable identifier"`
	Type    string   `json:"type" enum:"webcam,hdmi,unknown"`
	Ready   bool     `json:"ready"`
	Signal  string   `json:"signal,omitempty" doc:"HDMI signal state"`
	Formats []Format `json:"formats"`
}

// Listing is the capability listing of every device in the namespace, in
// index order. It marshals to a JSON object keyed by device path.
type Listing []DeviceListing

// MarshalJSON writes the devices as an object keyed by path, preserving index order.
func (l Listing) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, dev := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(dev.Path)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(dev)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Inspector queries device metadata.
type Inspector interface {
	Query(path string) (v4l2.DeviceInfo, error)
	Formats(path string) ([]v4l2.FormatInfo, error)
	FrameSizes(path string, pixelFormat uint32) ([]v4l2.FrameSize, error)
	Status(path string) v4l2.DeviceStatus
	Signal(path string) v4l2.SignalStatus
}

// V4L2Inspector reads metadata from real devices.
type V4L2Inspector struct{}

func (V4L2Inspector) Query(path string) (v4l2.DeviceInfo, error) { return v4l2.QueryDevice(path) }

func (V4L2Inspector) Formats(path string) ([]v4l2.FormatInfo, error) { return v4l2.GetFormats(path) }

func (V4L2Inspector) FrameSizes(path string, pixelFormat uint32) ([]v4l2.FrameSize, error) {
	return v4l2.GetFrameSizes(path, pixelFormat)
}

func (V4L2Inspector) Status(path string) v4l2.DeviceStatus { return v4l2.GetDeviceStatus(path) }

func (V4L2Inspector) Signal(path string) v4l2.SignalStatus { return v4l2.GetDVTimings(path) }

// BuildListing walks prefix0, prefix1, ... and stops at the first device that
// cannot be opened.
func BuildListing(insp Inspector, prefix string) Listing {
	listing := Listing{}
	for i := 0; i < maxListedDevices; i++ {
		path := prefix + strconv.Itoa(i)
		info, err := insp.Query(path)
		if err != nil {
			break
		}
		listing = append(listing, describe(insp, path, info))
	}
	return listing
}

func describe(insp Inspector, path string, info v4l2.DeviceInfo) DeviceListing {
	status := insp.Status(path)
	dev := DeviceListing{
		Path:    path,
		Name:    info.DeviceName,
		ID:      info.DeviceID,
		Type:    status.DeviceType.String(),
		Ready:   status.Ready,
		Formats: []Format{},
	}
	if status.DeviceType == v4l2.DeviceTypeHDMI {
		dev.Signal = insp.Signal(path).State.String()
	}

	formats, err := insp.Formats(path)
	if err != nil {
		return dev
	}
	for _, f := range formats {
		format := Format{
			Type:        videoCaptureType,
			Flags:       f.Flags,
			Description: f.FormatName,
			PixelFormat: f.PixelFormat,
			FourCC:      v4l2.FormatFourCC(f.PixelFormat),
			Sizes:       []Size{},
		}
		sizes, _ := insp.FrameSizes(path, f.PixelFormat)
		for _, s := range sizes {
			format.Sizes = append(format.Sizes, Size{X: s.Width, Y: s.Height})
		}
		dev.Formats = append(dev.Formats, format)
	}
	return dev
}
