//go:build linux

package streaming

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/smazurov/camrelay/internal/metrics"
	"github.com/smazurov/camrelay/internal/request"
)

var (
	// ErrConnection marks a failure local to one client connection.
	ErrConnection = errors.New("connection error")
	// ErrWriteStalled marks a peer that stopped draining its socket.
	ErrWriteStalled = fmt.Errorf("%w: write stalled", ErrConnection)
)

// Mode selects continuous streaming or a single still frame.
type Mode int

// Client modes.
const (
	ModeStream Mode = iota
	ModeStill
)

func (m Mode) String() string {
	if m == ModeStill {
		return "still"
	}
	return "stream"
}

// Detach reasons reported in events and metrics.
const (
	reasonStillDelivered = "still_delivered"
	reasonWriteFailed    = "write_failed"
	reasonWriteStalled   = "write_stalled"
	reasonSessionClosed  = "session_closed"
	reasonRequestTimeout = "request_timeout"
	reasonRequestClosed  = "request_closed"
	reasonPendingExpired = "pending_expired"
	reasonNotFound       = "not_found"
	reasonInfoServed     = "info_served"
	reasonDeviceError    = "device_error"
	reasonShutdown       = "shutdown"
)

// Client is one accepted connection, first pending and later attached to a session.
type Client struct {
	ID       string
	Remote   string
	Mode     Mode
	Accepted time.Time

	fd     int
	head   *request.Head
	device string
	frames uint64
	logger *slog.Logger

	// backlog is an owned copy of the bytes a write left unsent. While it is
	// non-empty the client gets no new frames.
	backlog      []byte
	backlogFrame bool
	progress     time.Time
	// lingerReason is set once the client has left its session but still
	// has a backlog to drain.
	lingerReason string
}

func newClient(fd int, remote string, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		Remote:   remote,
		Accepted: time.Now(),
		fd:       fd,
		logger:   logger.With("client_id", id, "remote", remote),
	}
}

func (c *Client) close() {
	if c.fd < 0 {
		return
	}
	if err := unix.Close(c.fd); err != nil {
		c.logger.Debug("Close failed", "error", err)
	}
	c.fd = -1
	c.backlog = nil
}

// busy reports unsent bytes from an earlier write.
func (c *Client) busy() bool {
	return len(c.backlog) > 0
}

// stallDeadline is when a busy client that makes no further progress counts
// as stalled.
func (c *Client) stallDeadline(timeout time.Duration) time.Time {
	return c.progress.Add(timeout)
}

// checkStall returns ErrWriteStalled when the backlog has not moved for
// timeout.
func (c *Client) checkStall(now time.Time, timeout time.Duration) error {
	if c.busy() && !now.Before(c.stallDeadline(timeout)) {
		return fmt.Errorf("%w: %d bytes unsent for %v", ErrWriteStalled, len(c.backlog), now.Sub(c.progress).Round(time.Millisecond))
	}
	return nil
}

// send writes bufs in order without ever waiting. Whatever the socket does
// not take is copied into the backlog, so the caller may reuse bufs as soon
// as send returns. frame marks bufs as one whole frame, counted when its last
// byte is written. send must not be called on a busy client.
func (c *Client) send(now time.Time, frame bool, bufs ...[]byte) (int, error) {
	if c.fd < 0 {
		return 0, fmt.Errorf("%w: closed", ErrConnection)
	}
	bufs = dropEmpty(bufs)
	total := 0
	defer func() { c.sent(total) }()
	for len(bufs) > 0 {
		n, err := unix.Writev(c.fd, bufs)
		if n > 0 {
			total += n
			bufs = advance(bufs, n)
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			c.queue(now, frame, bufs)
			return total, nil
		default:
			return total, fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}
	if frame {
		c.frameDone()
	}
	return total, nil
}

func (c *Client) queue(now time.Time, frame bool, bufs [][]byte) {
	size := 0
	for _, b := range bufs {
		size += len(b)
	}
	c.backlog = make([]byte, 0, size)
	for _, b := range bufs {
		c.backlog = append(c.backlog, b...)
	}
	c.backlogFrame = frame
	c.progress = now
}

// flush writes as much of the backlog as the socket takes and reports
// whether it is now empty.
func (c *Client) flush(now time.Time) (bool, error) {
	if c.fd < 0 {
		return false, fmt.Errorf("%w: closed", ErrConnection)
	}
	total := 0
	defer func() { c.sent(total) }()
	for len(c.backlog) > 0 {
		n, err := unix.Write(c.fd, c.backlog)
		if n > 0 {
			total += n
			c.backlog = c.backlog[n:]
			c.progress = now
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}
	c.backlog = nil
	if c.backlogFrame {
		c.backlogFrame = false
		c.frameDone()
	}
	return true, nil
}

func (c *Client) sent(n int) {
	if n > 0 && c.device != "" {
		metrics.BytesSent(c.device, n)
	}
}

func (c *Client) frameDone() {
	c.frames++
	if c.device != "" {
		metrics.FrameDelivered(c.device)
	}
}

// advance drops the first n written bytes from bufs.
func advance(bufs [][]byte, n int) [][]byte {
	for n > 0 && len(bufs) > 0 {
		if n < len(bufs[0]) {
			bufs[0] = bufs[0][n:]
			return bufs
		}
		n -= len(bufs[0])
		bufs = bufs[1:]
	}
	return dropEmpty(bufs)
}

func dropEmpty(bufs [][]byte) [][]byte {
	for len(bufs) > 0 && len(bufs[0]) == 0 {
		bufs = bufs[1:]
	}
	return bufs
}

func detachReason(err error) string {
	if errors.Is(err, ErrWriteStalled) {
		return reasonWriteStalled
	}
	return reasonWriteFailed
}
