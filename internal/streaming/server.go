//go:build linux

// Package streaming is the relay's reactor: one goroutine multiplexes the
// listening socket, pending connections and capture devices with poll(2) and
// fans every captured frame out to the clients of its device.
package streaming

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camrelay/internal/capture"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/metrics"
	"github.com/smazurov/camrelay/internal/mjpeg"
	"github.com/smazurov/camrelay/internal/request"
	"github.com/smazurov/camrelay/pkg/linuxav/hotplug"
)

// Session teardown reasons.
const (
	reasonNoClients = "no_clients"
	reasonUnplugged = "unplugged"
)

// Config holds the reactor settings.
type Config struct {
	Host string
	Port int

	Router request.Router

	// RequestTimeout is how long after accept a connection has to deliver
	// its complete request head.
	RequestTimeout time.Duration
	// WriteTimeout is how long a client's unsent backlog may go without
	// progress before the client is dropped.
	WriteTimeout time.Duration

	// Hotplug tears sessions down when their device node is removed.
	Hotplug bool
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		Router:         request.DefaultRouter(),
		RequestTimeout: 3 * time.Second,
		WriteTimeout:   250 * time.Millisecond,
		Hotplug:        true,
	}
}

// EventPublisher receives relay lifecycle events. *events.Bus satisfies it.
type EventPublisher interface {
	Publish(ev events.Event)
}

// ListingFunc produces the /info capability listing.
type ListingFunc func() capture.Listing

// Server is the single-threaded relay reactor. Serve owns all session and
// client state; only Stop may be called from another goroutine.
type Server struct {
	cfg     Config
	hub     *Hub
	bus     EventPublisher
	listing ListingFunc
	logger  *slog.Logger

	listenFd int
	wakeFd   int
	port     int
	monitor  *hotplug.Monitor

	pending   []*Client
	lingering []*Client
	writers   []*Client
	poll      pollSet
	stopped   atomic.Bool
}

// NewServer creates a reactor that opens devices with open. bus and listing
// may be nil.
func NewServer(cfg Config, open capture.Opener, bus EventPublisher, listing ListingFunc) *Server {
	logger := logging.GetLogger("streaming")
	return &Server{
		cfg:      cfg,
		hub:      NewHub(open, logger),
		bus:      bus,
		listing:  listing,
		logger:   logger,
		listenFd: -1,
		wakeFd:   -1,
	}
}

// Listen binds the listening socket and creates the wake descriptor. Port 0
// picks a free port; Port reports it afterwards.
func (s *Server) Listen() error {
	addr, err := listenAddr(s.cfg.Host, s.cfg.Port)
	if err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("bind %s: %w", s.Addr(), err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}
	if sa, err := unix.Getsockname(fd); err == nil {
		if in4, ok := sa.(*unix.SockaddrInet4); ok {
			s.port = in4.Port
		}
	}

	wake, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("eventfd: %w", err)
	}
	s.listenFd = fd
	s.wakeFd = wake

	if s.cfg.Hotplug {
		m, err := hotplug.NewMonitor()
		if err != nil {
			s.logger.Warn("Hotplug monitor unavailable, unplugged devices are detected by read errors only", "error", err)
		} else {
			m.AddSubsystemFilter(hotplug.SubsystemVideo4Linux)
			s.monitor = m
		}
	}

	s.logger.Info("Relay listening", "addr", s.Addr())
	return nil
}

func listenAddr(host string, port int) (*unix.SockaddrInet4, error) {
	sa := &unix.SockaddrInet4{Port: port}
	if host == "" {
		return sa, nil
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return nil, fmt.Errorf("listen host %q is not an IPv4 address", host)
	}
	sa.Addr = ip.As4()
	return sa, nil
}

// Port returns the bound port, valid after Listen.
func (s *Server) Port() int {
	if s.port != 0 {
		return s.port
	}
	return s.cfg.Port
}

// Addr returns host:port of the listener.
func (s *Server) Addr() string {
	host := s.cfg.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port()))
}

// Stop makes Serve close every session and connection and return. It is safe
// to call from any goroutine and more than once.
func (s *Server) Stop() {
	if s.stopped.Swap(true) || s.wakeFd < 0 {
		return
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(s.wakeFd, one[:]); err != nil {
		s.logger.Warn("Failed to wake reactor", "error", err)
	}
}

// Serve runs the reactor until Stop is called or polling fails. Per-client
// and per-device failures never end it.
func (s *Server) Serve() error {
	if s.listenFd < 0 {
		return errors.New("streaming: Serve called before Listen")
	}
	defer s.shutdown()

	for !s.stopped.Load() {
		s.poll.reset()
		listenSlot := s.poll.add(s.listenFd)
		wakeSlot := s.poll.add(s.wakeFd)
		hotplugSlot := -1
		if s.monitor != nil {
			hotplugSlot = s.poll.add(s.monitor.Fd())
		}
		pendingBase := len(s.poll.fds)
		for _, c := range s.pending {
			s.poll.add(c.fd)
		}
		writers := s.collectWriters()
		writerBase := len(s.poll.fds)
		for _, c := range writers {
			s.poll.addWrite(c.fd)
		}
		deviceBase := len(s.poll.fds)
		for _, sess := range s.hub.Sessions() {
			s.poll.add(sess.device.Fd())
		}

		if _, err := s.poll.wait(s.pollTimeout(time.Now(), writers)); err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if s.poll.ready(wakeSlot) {
			return nil
		}
		now := time.Now()

		s.servePending(pendingBase, now)
		if s.poll.ready(listenSlot) {
			s.acceptOne()
		}
		s.serveWriters(writers, writerBase, now)
		for slot := deviceBase; slot < len(s.poll.fds); slot++ {
			if !s.poll.ready(slot) {
				continue
			}
			// A descriptor may have been closed and reused by a session
			// opened after poll returned.
			sess, ok := s.hub.ByFd(s.poll.fd(slot))
			if !ok || sess.opened.After(now) {
				continue
			}
			s.serveDevice(sess, s.poll.failed(slot))
		}
		if hotplugSlot >= 0 && s.poll.ready(hotplugSlot) {
			s.handleHotplug()
		}
	}
	return nil
}

// pendingTimeout is the time until the oldest pending connection expires, or
// -1 when nothing is pending.
func (s *Server) pendingTimeout(now time.Time) time.Duration {
	if len(s.pending) == 0 {
		return -1
	}
	oldest := s.pending[0].Accepted
	for _, c := range s.pending[1:] {
		if c.Accepted.Before(oldest) {
			oldest = c.Accepted
		}
	}
	return max(oldest.Add(s.cfg.RequestTimeout).Sub(now), 0)
}

// pollTimeout also wakes the reactor when the first backlog would stall.
func (s *Server) pollTimeout(now time.Time, writers []*Client) time.Duration {
	timeout := s.pendingTimeout(now)
	for _, c := range writers {
		d := max(c.stallDeadline(s.cfg.WriteTimeout).Sub(now), 0)
		if timeout < 0 || d < timeout {
			timeout = d
		}
	}
	return timeout
}

// collectWriters returns every client with a backlog: lingering ones first,
// then attached ones by session.
func (s *Server) collectWriters() []*Client {
	s.writers = append(s.writers[:0], s.lingering...)
	for _, sess := range s.hub.Sessions() {
		for _, c := range sess.clients {
			if c.busy() {
				s.writers = append(s.writers, c)
			}
		}
	}
	return s.writers
}

// serveWriters flushes the backlogs whose sockets drained and drops the
// clients whose backlog stalled. Slots start at base.
func (s *Server) serveWriters(writers []*Client, base int, now time.Time) {
	for i, c := range writers {
		if c.fd < 0 {
			continue
		}
		var err error
		if s.poll.ready(base + i) {
			var done bool
			done, err = c.flush(now)
			if err == nil && done {
				if c.lingerReason != "" {
					s.finish(c, c.lingerReason)
				}
				continue
			}
		}
		if err == nil {
			err = c.checkStall(now, s.cfg.WriteTimeout)
		}
		if err != nil {
			c.logger.Debug("Backlog write failed", "error", err)
			s.writerFailed(c, detachReason(err))
		}
	}
	s.lingering = slices.DeleteFunc(s.lingering, func(c *Client) bool { return c.fd < 0 })
}

// writerFailed closes a client whose backlog could not be delivered. An
// attached client leaves its session, which closes if it was the last one.
func (s *Server) writerFailed(c *Client, reason string) {
	if c.lingerReason != "" {
		s.finish(c, reason)
		return
	}
	sess, ok := s.hub.Lookup(c.device)
	if !ok || !sess.remove(c) {
		s.finish(c, reason)
		return
	}
	s.finish(c, reason)
	if sess.Len() == 0 {
		s.teardown(sess, reasonNoClients)
	}
}

func (s *Server) acceptOne() {
	fd, sa, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
			s.logger.Warn("Accept failed", "error", err)
		}
		return
	}
	c := newClient(fd, remoteAddr(sa), s.logger)
	c.head = request.NewHead(c.Accepted.Add(s.cfg.RequestTimeout))
	s.pending = append(s.pending, c)
	c.logger.Debug("Connection accepted", "pending", len(s.pending))
}

func remoteAddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	default:
		return "unknown"
	}
}

// servePending feeds every readable pending connection into its request
// head and expires the ones whose head is not complete RequestTimeout after
// accept. Reading never waits. Slots start at base.
func (s *Server) servePending(base int, now time.Time) {
	waiting := make([]*Client, 0, len(s.pending))
	for i, c := range s.pending {
		if s.poll.ready(base+i) && s.serveRequest(c) {
			continue
		}
		if err := c.head.Expired(now); err != nil {
			reason := reasonPendingExpired
			if c.head.Received() > 0 {
				reason = reasonRequestTimeout
			}
			c.logger.Debug("Request incomplete, dropping", "error", err)
			s.finish(c, reason)
			continue
		}
		waiting = append(waiting, c)
	}
	s.pending = waiting
}

// serveRequest reads what c has sent so far. Once the head is complete the
// request is routed and c is either attached to a session or released, and
// serveRequest reports true.
func (s *Server) serveRequest(c *Client) bool {
	req, done, err := c.head.Fill(c.fd)
	if err != nil {
		if errors.Is(err, request.ErrParse) {
			c.logger.Debug("Malformed request", "error", err)
			metrics.RequestRouted(request.KindNotFound.String())
			s.notFound(c)
		} else {
			c.logger.Debug("Request read failed", "error", err)
			s.finish(c, reasonRequestClosed)
		}
		return true
	}
	if !done {
		return false
	}

	route := s.cfg.Router.Resolve(req)
	metrics.RequestRouted(route.Kind.String())
	c.logger.Debug("Request routed", "method", req.Method, "target", req.Target, "route", route.Kind.String())

	switch route.Kind {
	case request.KindInfo:
		s.serveInfo(c)
	case request.KindStream, request.KindStill:
		c.Mode = ModeStream
		if route.Kind == request.KindStill {
			c.Mode = ModeStill
		}
		s.attach(c, route)
	default:
		s.notFound(c)
	}
	return true
}

func (s *Server) notFound(c *Client) {
	if _, err := c.send(time.Now(), false, []byte(mjpeg.NotFoundResponse)); err != nil {
		c.logger.Debug("Failed to write 404", "error", err)
	}
	s.release(c, reasonNotFound)
}

func (s *Server) serveInfo(c *Client) {
	var listing capture.Listing
	if s.listing != nil {
		listing = s.listing()
	}
	body, err := json.Marshal(listing)
	if err != nil {
		c.logger.Warn("Failed to encode device listing", "error", err)
		s.notFound(c)
		return
	}
	if _, err := c.send(time.Now(), false, []byte(mjpeg.InfoHeader), body); err != nil {
		c.logger.Debug("Failed to write listing", "error", err)
	}
	s.release(c, reasonInfoServed)
}

// attach opens or reuses the device for route, sends the multipart preamble
// and adds c to the session. The preamble goes out only once the device is
// known to be streaming; an open failure is answered with a 404.
func (s *Server) attach(c *Client, route request.Route) {
	sess, created, err := s.hub.GetOrCreate(route.DevicePath, route.Width, route.Height)
	if err != nil {
		c.logger.Warn("Device open failed", "device", route.DevicePath, "error", err)
		metrics.DeviceError(route.DevicePath)
		s.publish(events.DeviceErrorEvent{
			DevicePath: route.DevicePath,
			Error:      err.Error(),
			Timestamp:  timestamp(),
		})
		s.notFound(c)
		return
	}
	if created {
		w, h := sess.device.Size()
		sess.logger.Info("Session opened", "width", w, "height", h,
			"requested_width", route.Width, "requested_height", route.Height, "sessions", s.hub.Len())
		s.publish(events.SessionOpenedEvent{
			DevicePath:      sess.Path(),
			Width:           w,
			Height:          h,
			RequestedWidth:  route.Width,
			RequestedHeight: route.Height,
			Timestamp:       timestamp(),
		})
	}

	if _, err := c.send(time.Now(), false, []byte(mjpeg.StreamPreamble)); err != nil {
		c.logger.Debug("Failed to write preamble", "error", err)
		s.finish(c, detachReason(err))
		if sess.Len() == 0 {
			s.teardown(sess, reasonNoClients)
		}
		return
	}

	sess.Attach(c)
	c.logger.Info("Client attached", "device", sess.Path(), "mode", c.Mode.String(), "clients", sess.Len())
	s.publish(events.ClientAttachedEvent{
		ClientID:   c.ID,
		DevicePath: sess.Path(),
		Remote:     c.Remote,
		Mode:       c.Mode.String(),
		Timestamp:  timestamp(),
	})
}

// serveDevice delivers one frame of sess. failed reports an error or hangup
// condition on the device descriptor.
func (s *Server) serveDevice(sess *Session, failed bool) {
	if failed {
		s.deviceFailed(sess, errors.New("device descriptor reported an error condition"))
		return
	}

	gone, err := sess.deliverOneFrame(time.Now())
	for _, d := range gone {
		s.release(d.client, d.reason)
	}
	if err != nil {
		s.deviceFailed(sess, err)
		return
	}
	if sess.Len() == 0 {
		s.teardown(sess, reasonNoClients)
	}
}

func (s *Server) deviceFailed(sess *Session, err error) {
	sess.logger.Error("Capture device failed", "error", err)
	metrics.DeviceError(sess.Path())
	s.publish(events.DeviceErrorEvent{
		DevicePath: sess.Path(),
		Error:      err.Error(),
		Timestamp:  timestamp(),
	})
	s.teardown(sess, reasonDeviceError)
}

func (s *Server) handleHotplug() {
	evs, err := s.monitor.Receive()
	if err != nil {
		s.logger.Warn("Hotplug receive failed", "error", err)
	}
	for _, ev := range evs {
		node := ev.DeviceNode()
		if node == "" {
			continue
		}
		s.logger.Debug("Device hotplug", "action", ev.Action, "device", node)
		s.publish(events.DeviceHotplugEvent{
			DevicePath: node,
			Action:     ev.Action,
			Timestamp:  timestamp(),
		})
		if !ev.Removed() {
			continue
		}
		if sess, ok := s.hub.Lookup(node); ok {
			sess.logger.Warn("Device removed while streaming")
			s.teardown(sess, reasonUnplugged)
		}
	}
}

// teardown closes sess's device and every client still attached to it,
// backlog or not.
func (s *Server) teardown(sess *Session, reason string) {
	for _, c := range s.hub.Remove(sess) {
		s.finish(c, reasonSessionClosed)
	}
	sess.logger.Info("Session closed", "reason", reason, "frames", sess.frames)
	s.publish(events.SessionClosedEvent{
		DevicePath: sess.Path(),
		Reason:     reason,
		Frames:     sess.frames,
		Timestamp:  timestamp(),
	})
}

// release closes a client that is done. A client whose last bytes are still
// queued lingers until they drain or stall.
func (s *Server) release(c *Client, reason string) {
	if c.busy() {
		c.lingerReason = reason
		s.lingering = append(s.lingering, c)
		c.logger.Debug("Client lingering", "reason", reason, "unsent", len(c.backlog))
		return
	}
	s.finish(c, reason)
}

// finish closes c now. Clients that were attached to a session are reported
// as detached.
func (s *Server) finish(c *Client, reason string) {
	if c.device != "" {
		c.logger.Debug("Client detached", "device", c.device, "reason", reason, "frames", c.frames)
		s.publish(events.ClientDetachedEvent{
			ClientID:   c.ID,
			DevicePath: c.device,
			Reason:     reason,
			Frames:     c.frames,
			Timestamp:  timestamp(),
		})
	}
	metrics.ClientDropped(reason)
	c.close()
}

func (s *Server) shutdown() {
	for _, c := range s.pending {
		s.finish(c, reasonShutdown)
	}
	s.pending = nil
	for _, c := range s.lingering {
		s.finish(c, reasonShutdown)
	}
	s.lingering = nil
	for _, sess := range s.hub.Sessions() {
		s.teardown(sess, reasonShutdown)
	}
	if s.monitor != nil {
		_ = s.monitor.Close()
		s.monitor = nil
	}
	_ = unix.Close(s.listenFd)
	s.listenFd = -1
	s.logger.Info("Relay stopped")
}

func (s *Server) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
