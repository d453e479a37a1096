//go:build linux

// Package capture adapts V4L2 capture devices for the relay: opening them at
// a requested size and describing their capabilities.
package capture

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/pkg/linuxav/v4l2"
)

var (
	// ErrDevice marks a failure to open, configure or read a capture device.
	ErrDevice = errors.New("capture device error")
	// ErrNoFrame is returned by NextFrame when readiness fired without a filled buffer.
	ErrNoFrame = errors.New("no frame ready")
)

// Device is an open, streaming capture device.
type Device interface {
	// Path is the device identity, e.g. /dev/video0.
	Path() string
	// Fd is polled for POLLIN to learn that a frame is ready.
	Fd() int
	// Size is the negotiated frame size.
	Size() (width, height uint32)
	// NextFrame dequeues one frame, hands it to visit and gives the buffer back
	// to the driver. The slice is only valid during visit. visit's error is
	// returned as is; device failures wrap ErrDevice.
	NextFrame(visit func(frame []byte) error) error
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Opener opens path and starts streaming at roughly width x height.
type Opener func(path string, width, height uint32) (Device, error)

// NewV4L2Opener returns an Opener backed by mmap streaming with bufferCount buffers.
func NewV4L2Opener(bufferCount int) Opener {
	logger := logging.GetLogger("capture")
	return func(path string, width, height uint32) (Device, error) {
		c, err := v4l2.OpenCapture(path, width, height, bufferCount)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDevice, err)
		}
		if err := checkPixelFormat(path, c.PixelFormat()); err != nil {
			if cerr := c.Close(); cerr != nil {
				logger.Debug("Capture device close reported errors", "device", path, "error", cerr)
			}
			return nil, err
		}
		w, h := c.Size()
		logger.Info("Capture device opened",
			"device", path,
			"requested", fmt.Sprintf("%dx%d", width, height),
			"negotiated", fmt.Sprintf("%dx%d", w, h),
			"buffers", c.BufferCount())
		return &v4l2Device{capture: c, logger: logger}, nil
	}
}

// checkPixelFormat rejects a driver that substituted something other than
// MJPEG; its frames cannot be relayed as JPEG parts.
func checkPixelFormat(path string, pf uint32) error {
	if pf == v4l2.PixelFormatMJPEG {
		return nil
	}
	return fmt.Errorf("%w: %s: driver negotiated %q instead of MJPG", ErrDevice, path, v4l2.FormatFourCC(pf))
}

type v4l2Device struct {
	capture *v4l2.Capture
	logger  *slog.Logger
}

func (d *v4l2Device) Path() string { return d.capture.Path() }

func (d *v4l2Device) Fd() int { return d.capture.Fd() }

func (d *v4l2Device) Size() (uint32, uint32) { return d.capture.Size() }

func (d *v4l2Device) NextFrame(visit func(frame []byte) error) error {
	var visitErr error
	err := d.capture.NextFrame(func(frame []byte) error {
		visitErr = visit(frame)
		return nil
	})
	switch {
	case err == nil:
		return visitErr
	case errors.Is(err, v4l2.ErrNoFrame):
		return ErrNoFrame
	default:
		return fmt.Errorf("%w: %s: %w", ErrDevice, d.capture.Path(), err)
	}
}

func (d *v4l2Device) Close() error {
	if err := d.capture.Close(); err != nil {
		d.logger.Warn("Capture device close reported errors", "device", d.capture.Path(), "error", err)
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}
	d.logger.Debug("Capture device closed", "device", d.capture.Path())
	return nil
}
