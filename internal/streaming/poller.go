//go:build linux

package streaming

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

const readable = unix.POLLIN | unix.POLLPRI

// pollSet is the wait set of one reactor iteration. It is rebuilt from
// scratch every iteration so closed descriptors never linger in it.
type pollSet struct {
	fds []unix.PollFd
}

func (p *pollSet) reset() {
	p.fds = p.fds[:0]
}

// add registers fd for POLLIN and returns its slot.
func (p *pollSet) add(fd int) int {
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	return len(p.fds) - 1
}

// addWrite registers fd for POLLOUT and returns its slot.
func (p *pollSet) addWrite(fd int) int {
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
	return len(p.fds) - 1
}

// fd returns the descriptor registered in slot.
func (p *pollSet) fd(slot int) int {
	return int(p.fds[slot].Fd)
}

// ready reports any readiness, including error and hangup conditions.
func (p *pollSet) ready(slot int) bool {
	return p.fds[slot].Revents != 0
}

// failed reports POLLERR, POLLHUP or POLLNVAL without readable data.
func (p *pollSet) failed(slot int) bool {
	r := p.fds[slot].Revents
	return r&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && r&readable == 0
}

// wait blocks until a descriptor is ready or timeout elapses. A negative
// timeout blocks indefinitely. EINTR is retried.
func (p *pollSet) wait(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	for {
		n, err := unix.Poll(p.fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}
