//go:build linux

package streaming

import (
	"errors"
	"log/slog"
	"time"

	"github.com/smazurov/camrelay/internal/capture"
	"github.com/smazurov/camrelay/internal/metrics"
	"github.com/smazurov/camrelay/internal/mjpeg"
)

var trailer = []byte(mjpeg.FrameTrailer)

// Session binds one open capture device to the clients receiving its frames.
// A session is only ever touched from the reactor goroutine.
type Session struct {
	device  capture.Device
	clients []*Client
	opened  time.Time
	frames  uint64

	requestedWidth  uint32
	requestedHeight uint32

	header []byte
	logger *slog.Logger
}

// detached is a client removed from a session during delivery.
type detached struct {
	client *Client
	reason string
}

func newSession(dev capture.Device, width, height uint32, logger *slog.Logger) *Session {
	return &Session{
		device:          dev,
		opened:          time.Now(),
		requestedWidth:  width,
		requestedHeight: height,
		header:          make([]byte, 0, 128),
		logger:          logger.With("device", dev.Path()),
	}
}

// Path is the device path identifying the session.
func (s *Session) Path() string { return s.device.Path() }

// Len returns the number of attached clients.
func (s *Session) Len() int { return len(s.clients) }

// Attach appends c to the client set.
func (s *Session) Attach(c *Client) {
	c.device = s.Path()
	s.clients = append(s.clients, c)
	metrics.SetClientsAttached(s.Path(), len(s.clients))
}

// remove takes c out of the client set. It reports false if c was not attached.
func (s *Session) remove(c *Client) bool {
	for i, cur := range s.clients {
		if cur == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			metrics.SetClientsAttached(s.Path(), len(s.clients))
			return true
		}
	}
	return false
}

// deliverOneFrame dequeues one frame and offers it to every attached client
// in attach order. No write waits: a client the socket cannot take whole
// keeps the rest as its backlog, and a client with a backlog skips the frame.
// Clients whose write fails, and still clients, are removed and returned;
// they are not closed. A device failure is returned wrapped in
// capture.ErrDevice and leaves the client set untouched.
func (s *Session) deliverOneFrame(now time.Time) ([]detached, error) {
	var gone []detached
	err := s.device.NextFrame(func(frame []byte) error {
		s.frames++
		metrics.FrameCaptured(s.Path())
		s.header = mjpeg.AppendFrameHeader(s.header[:0], len(frame))

		survivors := make([]*Client, 0, len(s.clients))
		for _, c := range s.clients {
			if c.busy() {
				metrics.FrameSkipped(s.Path())
				survivors = append(survivors, c)
				continue
			}
			if _, err := c.send(now, true, s.header, frame, trailer); err != nil {
				c.logger.Debug("Frame write failed", "error", err)
				gone = append(gone, detached{client: c, reason: detachReason(err)})
				continue
			}
			if c.Mode == ModeStill {
				gone = append(gone, detached{client: c, reason: reasonStillDelivered})
				continue
			}
			survivors = append(survivors, c)
		}
		s.clients = survivors
		return nil
	})
	if errors.Is(err, capture.ErrNoFrame) {
		err = nil
	}
	if len(gone) > 0 {
		metrics.SetClientsAttached(s.Path(), len(s.clients))
	}
	return gone, err
}

// drain removes and returns every attached client.
func (s *Session) drain() []*Client {
	clients := s.clients
	s.clients = nil
	metrics.SetClientsAttached(s.Path(), 0)
	return clients
}
