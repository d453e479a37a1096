//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

// QueryDevice returns the card name, effective capabilities, and stable
// identifier of a single device node.
func QueryDevice(devicePath string) (DeviceInfo, error) {
	cap, err := getDeviceCapability(devicePath)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("failed to query %s: %w", devicePath, err)
	}
	caps := cap.capabilities
	if caps&v4l2CapDeviceCaps != 0 {
		caps = cap.deviceCaps
	}
	return DeviceInfo{
		DevicePath: devicePath,
		DeviceName: cstr(cap.card[:]),
		DeviceID:   stableID(devicePath, cstr(cap.busInfo[:])),
		Caps:       caps,
	}, nil
}

// stableID prefers the udev /dev/v4l/by-id/ link for the node and falls back
// to a synthetic id built from the bus info and sysfs index.
func stableID(devicePath, busInfo string) string {
	node := filepath.Base(devicePath)
	index := readSysfsInt(filepath.Join("/sys/class/video4linux", node, "index"))

	if id := findStableID(node, index); id != "" {
		return id
	}
	if strings.HasPrefix(busInfo, "usb-") {
		return fmt.Sprintf("%s-video-index%d", busInfo, index)
	}
	return fmt.Sprintf("platform-%s-video-index%d", busInfo, index)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	byIDDir := "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		linkPath := filepath.Join(byIDDir, entry.Name())
		target, err := os.Readlink(linkPath)
		if err != nil {
			continue
		}

		// Get the video device name from the target
		targetBase := filepath.Base(target)
		if targetBase == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// getDeviceCapability queries the device capabilities.
func getDeviceCapability(devicePath string) (*v4l2Capability, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, err
	}
	defer close(fd)

	cap := &v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(cap)); err != nil {
		return nil, err
	}

	return cap, nil
}
