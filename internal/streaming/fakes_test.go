//go:build linux

package streaming

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/textproto"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camrelay/internal/capture"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/mjpeg"
)

// fakeDevice is a capture device whose readiness is an eventfd. Every
// trigger makes exactly one frame available.
type fakeDevice struct {
	path          string
	width, height uint32
	frame         []byte

	mu     sync.Mutex
	fd     int
	closes int
	err    error
}

func newFakeDevice(t testing.TB, path string, width, height uint32, frame []byte) *fakeDevice {
	t.Helper()
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC|unix.EFD_SEMAPHORE)
	if err != nil {
		t.Fatalf("eventfd: %v", err)
	}
	d := &fakeDevice{path: path, width: width, height: height, frame: frame, fd: fd}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func (d *fakeDevice) Path() string { return d.path }

func (d *fakeDevice) Fd() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fd
}

func (d *fakeDevice) Size() (uint32, uint32) { return d.width, d.height }

func (d *fakeDevice) NextFrame(visit func([]byte) error) error {
	d.mu.Lock()
	fd, failure := d.fd, d.err
	d.mu.Unlock()
	if fd < 0 {
		return fmt.Errorf("%w: closed", capture.ErrDevice)
	}
	var b [8]byte
	if _, err := unix.Read(fd, b[:]); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return capture.ErrNoFrame
		}
		return fmt.Errorf("%w: %w", capture.ErrDevice, err)
	}
	if failure != nil {
		return failure
	}
	return visit(d.frame)
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	if d.fd >= 0 {
		_ = unix.Close(d.fd)
		d.fd = -1
	}
	return nil
}

// trigger makes one more frame available. It is a no-op once closed.
func (d *fakeDevice) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(d.fd, one[:])
}

func (d *fakeDevice) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// fakeOpener opens fakeDevices for a fixed set of paths. negotiate, when
// set, stands in for a driver that picks its own size.
type fakeOpener struct {
	t         testing.TB
	frame     []byte
	paths     map[string]bool
	negotiate func(width, height uint32) (uint32, uint32)

	mu      sync.Mutex
	devices []*fakeDevice
}

func newFakeOpener(t testing.TB, frame []byte, paths ...string) *fakeOpener {
	o := &fakeOpener{t: t, frame: frame, paths: make(map[string]bool)}
	for _, p := range paths {
		o.paths[p] = true
	}
	return o
}

func (o *fakeOpener) open(path string, width, height uint32) (capture.Device, error) {
	if !o.paths[path] {
		return nil, fmt.Errorf("%w: open %s: no such file or directory", capture.ErrDevice, path)
	}
	if o.negotiate != nil {
		width, height = o.negotiate(width, height)
	}
	d := newFakeDevice(o.t, path, width, height, o.frame)
	o.mu.Lock()
	o.devices = append(o.devices, d)
	o.mu.Unlock()
	return d, nil
}

func (o *fakeOpener) opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.devices)
}

func (o *fakeOpener) device(i int) *fakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= len(o.devices) {
		return nil
	}
	return o.devices[i]
}

// pump triggers a frame on every opened device each interval until the
// test ends.
func (o *fakeOpener) pump(interval time.Duration) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				o.mu.Lock()
				devices := append([]*fakeDevice(nil), o.devices...)
				o.mu.Unlock()
				for _, d := range devices {
					d.trigger()
				}
			}
		}
	}()
	o.t.Cleanup(func() {
		close(done)
		<-stopped
	})
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) find(match func(events.Event) bool) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			return ev, true
		}
	}
	return nil, false
}

// peer is the remote end of a client socketpair.
type peer struct {
	file *os.File
	r    *bufio.Reader
}

func (p *peer) close() {
	_ = p.file.Close()
}

// readChunk parses one multipart frame chunk from the peer.
func (p *peer) readChunk(t *testing.T) []byte {
	t.Helper()
	_ = p.file.SetReadDeadline(time.Now().Add(2 * time.Second))
	return readChunk(t, p.r)
}

func readChunk(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		t.Fatalf("reading boundary: %v", err)
	}
	if line != "--"+mjpeg.Boundary {
		t.Fatalf("boundary line = %q", line)
	}
	hdr, err := tp.ReadMIMEHeader()
	if err != nil {
		t.Fatalf("reading part header: %v", err)
	}
	if ct := hdr.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("part Content-Type = %q, want image/jpeg", ct)
	}
	n, err := strconv.Atoi(hdr.Get("Content-Length"))
	if err != nil {
		t.Fatalf("part Content-Length %q: %v", hdr.Get("Content-Length"), err)
	}
	body := make([]byte, n+len(mjpeg.FrameTrailer))
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("reading part body: %v", err)
	}
	if got := string(body[n:]); got != mjpeg.FrameTrailer {
		t.Errorf("frame trailer = %q", got)
	}
	return body[:n]
}

// clientPair returns a non-blocking client and its peer.
func clientPair(t *testing.T, mode Mode) (*Client, *peer) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	c := newClient(fds[0], "socketpair", logging.GetLogger("streaming"))
	c.Mode = mode
	f := os.NewFile(uintptr(fds[1]), "peer")
	p := &peer{file: f, r: bufio.NewReader(f)}
	t.Cleanup(func() {
		c.close()
		p.close()
	})
	return c, p
}

func setSendBuffer(t *testing.T, c *Client, size int) {
	t.Helper()
	if err := unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, size); err != nil {
		t.Fatalf("SO_SNDBUF: %v", err)
	}
}

func flushUntilIdle(c *Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for c.busy() {
		if time.Now().After(deadline) {
			return fmt.Errorf("backlog of %d bytes did not drain", len(c.backlog))
		}
		if _, err := c.flush(time.Now()); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func flushAll(t *testing.T, c *Client) {
	t.Helper()
	if err := flushUntilIdle(c, 3*time.Second); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// drainPeer flushes c's backlog while the peer reads one frame chunk.
func drainPeer(t *testing.T, c *Client, p *peer) []byte {
	t.Helper()
	flushed := make(chan error, 1)
	go func() { flushed <- flushUntilIdle(c, 3*time.Second) }()
	chunk := p.readChunk(t)
	if err := <-flushed; err != nil {
		t.Fatalf("flush: %v", err)
	}
	return chunk
}

func testJPEG(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
