//go:build linux

package capture

import (
	"errors"
	"strings"
	"testing"

	"github.com/smazurov/camrelay/pkg/linuxav/v4l2"
)

func TestCheckPixelFormat(t *testing.T) {
	if err := checkPixelFormat("/dev/video0", v4l2.PixelFormatMJPEG); err != nil {
		t.Errorf("MJPG rejected: %v", err)
	}

	yuyv := uint32('Y') | uint32('U')<<8 | uint32('Y')<<16 | uint32('V')<<24
	err := checkPixelFormat("/dev/video0", yuyv)
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("YUYV error = %v, want ErrDevice", err)
	}
	if !strings.Contains(err.Error(), `"YUYV"`) || !strings.Contains(err.Error(), "/dev/video0") {
		t.Errorf("error %q does not name the device and format", err)
	}
}

func TestV4L2OpenerMissingDevice(t *testing.T) {
	open := NewV4L2Opener(2)
	dev, err := open("/dev/camrelay-test-missing", 640, 480)
	if !errors.Is(err, ErrDevice) || dev != nil {
		t.Errorf("open missing device = %v, %v; want ErrDevice", dev, err)
	}
}
