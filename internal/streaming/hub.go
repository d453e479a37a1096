//go:build linux

package streaming

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/smazurov/camrelay/internal/capture"
	"github.com/smazurov/camrelay/internal/metrics"
)

// Hub is the reactor-owned registry of camera sessions, keyed by device path
// and by the device's readiness descriptor.
type Hub struct {
	sessions map[string]*Session
	byFd     map[int]*Session
	open     capture.Opener
	logger   *slog.Logger
}

// NewHub creates an empty registry that opens devices with open.
func NewHub(open capture.Opener, logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		byFd:     make(map[int]*Session),
		open:     open,
		logger:   logger,
	}
}

// GetOrCreate returns the session for path, opening the device at width x
// height if none exists. The size of later requests is ignored. On open
// failure no session is retained.
func (h *Hub) GetOrCreate(path string, width, height uint32) (*Session, bool, error) {
	if s, ok := h.sessions[path]; ok {
		return s, false, nil
	}
	dev, err := h.open(path, width, height)
	if err != nil {
		return nil, false, err
	}
	if _, dup := h.byFd[dev.Fd()]; dup {
		_ = dev.Close()
		return nil, false, fmt.Errorf("%w: %s: descriptor %d already registered", capture.ErrDevice, path, dev.Fd())
	}
	s := newSession(dev, width, height, h.logger)
	h.sessions[path] = s
	h.byFd[dev.Fd()] = s
	metrics.SessionOpened(path)
	return s, true, nil
}

// Lookup returns the session for path, if any.
func (h *Hub) Lookup(path string) (*Session, bool) {
	s, ok := h.sessions[path]
	return s, ok
}

// ByFd returns the session whose device is polled on fd.
func (h *Hub) ByFd(fd int) (*Session, bool) {
	s, ok := h.byFd[fd]
	return s, ok
}

// Remove unregisters s and closes its device. Clients still attached are
// returned for the caller to close.
func (h *Hub) Remove(s *Session) []*Client {
	if cur, ok := h.sessions[s.Path()]; !ok || cur != s {
		return nil
	}
	fd := s.device.Fd()
	delete(h.sessions, s.Path())
	delete(h.byFd, fd)
	clients := s.drain()
	if err := s.device.Close(); err != nil {
		h.logger.Warn("Device close failed", "device", s.Path(), "error", err)
	}
	metrics.SessionClosed(s.Path())
	return clients
}

// Sessions returns the live sessions ordered by device path.
func (h *Hub) Sessions() []*Session {
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	return len(h.sessions)
}
