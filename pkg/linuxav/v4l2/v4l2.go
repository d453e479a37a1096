//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format queries, signal detection, and mmap
// streaming capture.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Queries
//
// Devices are addressed by node path. QueryDevice reports the card name and
// a stable identifier; formats and frame sizes are enumerated per device:
//
//	info, err := v4l2.QueryDevice("/dev/video0")
//	formats, _ := v4l2.GetFormats(info.DevicePath)
//	for _, f := range formats {
//	    sizes, _ := v4l2.GetFrameSizes(info.DevicePath, f.PixelFormat)
//	}
//
// # HDMI Signal Detection
//
// For HDMI capture devices, check signal status:
//
//	status := v4l2.GetDVTimings("/dev/video0")
//	if status.State == v4l2.SignalStateLocked {
//	    fmt.Printf("Signal: %dx%d @ %.2f fps\n", status.Width, status.Height, status.FPS)
//	}
//
// # Streaming Capture
//
// OpenCapture negotiates MJPEG and starts mmap streaming. The descriptor is
// non-blocking; poll Fd for POLLIN and call NextFrame when it fires:
//
//	c, err := v4l2.OpenCapture("/dev/video0", 640, 480, v4l2.DefaultBufferCount)
//	defer c.Close()
//	err = c.NextFrame(func(frame []byte) error {
//	    _, err := w.Write(frame) // frame is only valid inside the callback
//	    return err
//	})
package v4l2
