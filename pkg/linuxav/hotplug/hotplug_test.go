//go:build linux

package hotplug

import (
	"reflect"
	"testing"
)

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Event
		ok   bool
	}{
		{name: "empty"},
		{name: "no separator", msg: "garbage"},
		{name: "no action", msg: "@/devices/foo\x00"},
		{name: "libudev header", msg: "libudev\x00\xfe\xed\xca\xfe\x00add@/devices/video0\x00"},
		{name: "only nulls", msg: "\x00\x00\x00"},
		{
			name: "video add",
			msg:  "add@/devices/pci0000:00/usb1/1-1/video4linux/video0\x00ACTION=add\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00SEQNUM=4521\x00",
			want: Event{
				Action:    ActionAdd,
				KObj:      "/devices/pci0000:00/usb1/1-1/video4linux/video0",
				Subsystem: SubsystemVideo4Linux,
				DevName:   "video0",
				Seqnum:    4521,
				Env: map[string]string{
					"ACTION":    "add",
					"SUBSYSTEM": "video4linux",
					"DEVNAME":   "video0",
					"SEQNUM":    "4521",
				},
			},
			ok: true,
		},
		{
			name: "usb remove without node",
			msg:  "remove@/devices/usb1/1-1\x00SUBSYSTEM=usb\x00SEQNUM=x\x00",
			want: Event{
				Action:    ActionRemove,
				KObj:      "/devices/usb1/1-1",
				Subsystem: "usb",
				Env:       map[string]string{"SUBSYSTEM": "usb", "SEQNUM": "x"},
			},
			ok: true,
		},
		{
			name: "odd fields",
			msg:  "change@/devices/x\x00\x00EMPTY=\x00=nokey\x00NOEQUALS\x00K=a=b\x00\x00",
			want: Event{
				Action: ActionChange,
				KObj:   "/devices/x",
				Env:    map[string]string{"EMPTY": "", "K": "a=b"},
			},
			ok: true,
		},
		{
			name: "header only",
			msg:  "add@",
			want: Event{Action: ActionAdd, Env: map[string]string{}},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseUEvent([]byte(tt.msg))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v (event %+v)", ok, tt.ok, got)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseUEvent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEventDeviceNode(t *testing.T) {
	tests := []struct {
		devName string
		want    string
	}{
		{"video0", "/dev/video0"},
		{"v4l/by-id/cam", "/dev/v4l/by-id/cam"},
		{"/dev/video2", "/dev/video2"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := (Event{DevName: tt.devName}).DeviceNode(); got != tt.want {
			t.Errorf("DeviceNode(%q) = %q, want %q", tt.devName, got, tt.want)
		}
	}
}

func TestEventRemoved(t *testing.T) {
	if !(Event{Action: ActionRemove}).Removed() {
		t.Error("remove event not reported as removed")
	}
	if (Event{Action: ActionAdd}).Removed() {
		t.Error("add event reported as removed")
	}
}

func TestMonitorFilter(t *testing.T) {
	m := &Monitor{subsystems: make(map[string]bool)}
	if !m.wants("usb") {
		t.Error("unfiltered monitor should want every subsystem")
	}

	m.AddSubsystemFilter(SubsystemVideo4Linux)
	if !m.wants(SubsystemVideo4Linux) {
		t.Error("video4linux filtered out")
	}
	if m.wants("usb") {
		t.Error("usb passed a video4linux filter")
	}
}

func TestMonitorSocket(t *testing.T) {
	m, err := NewMonitor()
	if err != nil {
		t.Skipf("netlink unavailable: %v", err)
	}

	if m.Fd() <= 0 {
		t.Errorf("Fd() = %d, want a valid descriptor", m.Fd())
	}

	m.AddSubsystemFilter("camrelay-test-none")
	evs, err := m.Receive()
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("Receive() = %d events, want none", len(evs))
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := m.Close(); err == nil {
		t.Error("second Close() succeeded, want EBADF")
	}
}
