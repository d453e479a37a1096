//go:build linux

package request

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Fill reads whatever is available on the non-blocking descriptor fd and
// feeds it to h. It never waits: when the socket runs dry before the head is
// complete it returns done == false and the caller polls again. A peer that
// closes or resets first yields ErrClosed.
func (h *Head) Fill(fd int) (Request, bool, error) {
	var buf [4096]byte
	for {
		n, err := unix.Read(fd, buf[:])
		switch {
		case err == nil && n == 0:
			return Request{}, false, ErrClosed
		case err == nil:
			req, done, perr := h.Feed(buf[:n])
			if perr != nil || done {
				return req, done, perr
			}
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			return Request{}, false, nil
		case errors.Is(err, unix.ECONNRESET):
			return Request{}, false, ErrClosed
		default:
			return Request{}, false, fmt.Errorf("read request: %w", err)
		}
	}
}
