//go:build linux

// Package hotplug reports kernel device add and remove events by reading
// uevents straight off a NETLINK_KOBJECT_UEVENT socket, without cgo or udev.
//
// A Monitor never blocks: callers put Fd in their own poll set and call
// Receive when it turns readable.
package hotplug

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Actions the relay reacts to.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// SubsystemVideo4Linux is the subsystem of V4L2 device nodes.
const SubsystemVideo4Linux = "video4linux"

const (
	netlinkKobjectUEvent = 15
	kernelGroup          = 1
	maxMessage           = 8192
)

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // sysfs path of the kernel object
	Subsystem string
	DevName   string // node name relative to /dev, e.g. "video0"
	Seqnum    uint64
	Env       map[string]string
}

// Removed reports whether the device went away.
func (e Event) Removed() bool {
	return e.Action == ActionRemove
}

// DeviceNode returns the /dev path of the event's device node, or "" when the
// event carries no DEVNAME.
func (e Event) DeviceNode() string {
	switch {
	case e.DevName == "":
		return ""
	case strings.HasPrefix(e.DevName, "/"):
		return e.DevName
	default:
		return "/dev/" + e.DevName
	}
}

// Monitor is a non-blocking uevent socket. It is owned by one goroutine.
type Monitor struct {
	fd         int
	subsystems map[string]bool
	buf        []byte
}

// NewMonitor opens a socket bound to the kernel's uevent broadcast group.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &Monitor{
		fd:         fd,
		subsystems: make(map[string]bool),
		buf:        make([]byte, maxMessage),
	}, nil
}

// Fd returns the socket to poll for POLLIN.
func (m *Monitor) Fd() int {
	return m.fd
}

// AddSubsystemFilter restricts Receive to the named subsystems. With no
// filter every event is returned.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.subsystems[subsystem] = true
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Receive drains the socket and returns the queued events that pass the
// filter. An empty result means nothing was pending. ENOBUFS, which the kernel
// reports after dropping messages, is not treated as an error.
func (m *Monitor) Receive() ([]Event, error) {
	var out []Event
	for {
		n, _, err := unix.Recvfrom(m.fd, m.buf, 0)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOBUFS):
			return out, nil
		case err != nil:
			return out, err
		}

		ev, ok := ParseUEvent(m.buf[:n])
		if !ok || !m.wants(ev.Subsystem) {
			continue
		}
		out = append(out, ev)
	}
}

func (m *Monitor) wants(subsystem string) bool {
	return len(m.subsystems) == 0 || m.subsystems[subsystem]
}

// ParseUEvent decodes a kernel message of the form
// "ACTION@KOBJ\x00KEY=VALUE\x00...". Messages relayed by udevd start with a
// "libudev" header and are rejected; only the kernel group is read.
func ParseUEvent(msg []byte) (Event, bool) {
	if bytes.HasPrefix(msg, []byte("libudev")) {
		return Event{}, false
	}

	header, rest, _ := bytes.Cut(msg, []byte{0})
	action, kobj, found := bytes.Cut(header, []byte("@"))
	if !found || len(action) == 0 {
		return Event{}, false
	}

	ev := Event{
		Action: string(action),
		KObj:   string(kobj),
		Env:    make(map[string]string),
	}
	for len(rest) > 0 {
		var field []byte
		field, rest, _ = bytes.Cut(rest, []byte{0})
		key, value, ok := bytes.Cut(field, []byte("="))
		if !ok || len(key) == 0 {
			continue
		}
		ev.Env[string(key)] = string(value)
	}

	ev.Subsystem = ev.Env["SUBSYSTEM"]
	ev.DevName = ev.Env["DEVNAME"]
	if seq, err := strconv.ParseUint(ev.Env["SEQNUM"], 10, 64); err == nil {
		ev.Seqnum = seq
	}
	return ev, true
}
