//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultBufferCount is the number of mmap buffers requested from the driver.
const DefaultBufferCount = 2

// ErrNoFrame is returned by NextFrame when no filled buffer is ready yet.
var ErrNoFrame = errors.New("no frame ready")

// Capture is an open V4L2 device streaming motion-JPEG frames into a pool of
// memory-mapped buffers. It is not safe for concurrent use.
type Capture struct {
	path        string
	fd          int
	width       uint32
	height      uint32
	pixelFormat uint32
	pool        *bufferPool
	streaming   bool
	closed      bool
}

// OpenCapture opens devicePath, negotiates MJPEG at width x height, maps
// bufferCount buffers, queues them all and starts streaming. The driver may
// pick a different size; Size reports the negotiated one. Anything acquired
// before a failing step is released before the error is returned.
func OpenCapture(devicePath string, width, height uint32, bufferCount int) (*Capture, error) {
	if bufferCount <= 0 {
		bufferCount = DefaultBufferCount
	}

	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devicePath, err)
	}
	c := &Capture{path: devicePath, fd: fd}

	if err := c.configure(width, height, uint32(bufferCount)); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Capture) configure(width, height, bufferCount uint32) error {
	cap := v4l2Capability{}
	if err := xioctl(c.fd, vidiocQuerycap, unsafe.Pointer(&cap)); err != nil {
		return fmt.Errorf("VIDIOC_QUERYCAP: %w", err)
	}
	caps := cap.capabilities
	if caps&v4l2CapDeviceCaps != 0 {
		caps = cap.deviceCaps
	}
	if caps&v4l2CapVideoCapture == 0 {
		return fmt.Errorf("%s is not a video capture device", c.path)
	}
	if caps&v4l2CapStreaming == 0 {
		return fmt.Errorf("%s does not support streaming I/O", c.path)
	}

	format := v4l2Format{typ: v4l2BufTypeVideoCapture}
	format.pix.width = width
	format.pix.height = height
	format.pix.pixelformat = PixelFormatMJPEG
	format.pix.field = v4l2FieldAny
	if err := xioctl(c.fd, vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		return fmt.Errorf("VIDIOC_S_FMT %dx%d: %w", width, height, err)
	}

	// the driver may adjust the request; the read-back values are authoritative
	format = v4l2Format{typ: v4l2BufTypeVideoCapture}
	if err := xioctl(c.fd, vidiocGFmt, unsafe.Pointer(&format)); err != nil {
		return fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}
	c.width = format.pix.width
	c.height = format.pix.height
	c.pixelFormat = format.pix.pixelformat

	req := v4l2RequestBuffers{
		count:  bufferCount,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
	}
	if err := xioctl(c.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("VIDIOC_REQBUFS: %w", err)
	}
	if req.count == 0 {
		return fmt.Errorf("VIDIOC_REQBUFS: driver granted no buffers")
	}

	regions := make([][]byte, 0, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{index: i, typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMMAP}
		if err := xioctl(c.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			c.pool = newBufferPool(regions)
			return fmt.Errorf("VIDIOC_QUERYBUF %d: %w", i, err)
		}
		data, err := unix.Mmap(c.fd, int64(buf.offset), int(buf.length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			c.pool = newBufferPool(regions)
			return fmt.Errorf("mmap buffer %d: %w", i, err)
		}
		regions = append(regions, data)
	}
	c.pool = newBufferPool(regions)

	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{index: i, typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMMAP}
		if err := xioctl(c.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			return fmt.Errorf("VIDIOC_QBUF %d: %w", i, err)
		}
	}

	typ := uint32(v4l2BufTypeVideoCapture)
	if err := xioctl(c.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}
	c.streaming = true
	return nil
}

// Path returns the device node this capture was opened from.
func (c *Capture) Path() string { return c.path }

// Fd returns the descriptor to poll for frame readiness (POLLIN).
func (c *Capture) Fd() int { return c.fd }

// Size returns the negotiated frame size.
func (c *Capture) Size() (width, height uint32) { return c.width, c.height }

// PixelFormat returns the negotiated fourcc.
func (c *Capture) PixelFormat() uint32 { return c.pixelFormat }

// BufferCount returns the number of mapped buffers granted by the driver.
func (c *Capture) BufferCount() int {
	if c.pool == nil {
		return 0
	}
	return c.pool.count()
}

// NextFrame dequeues one filled buffer, passes its contents to visit and
// re-queues it, whether or not visit fails. The slice passed to visit aliases
// driver memory and must not be retained after visit returns.
//
// ErrNoFrame is returned when the device has nothing ready. The error from
// visit is returned when the re-queue succeeded.
func (c *Capture) NextFrame(visit func(frame []byte) error) error {
	if c.closed || !c.streaming {
		return fmt.Errorf("%s: capture not streaming", c.path)
	}

	buf := v4l2Buffer{typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMMAP}
	if err := xioctl(c.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return ErrNoFrame
		}
		return fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}

	frame, err := c.pool.lend(buf.index, buf.bytesused)
	if err != nil {
		return errors.Join(err, c.requeue(&buf))
	}
	visitErr := visit(frame)

	if err := c.pool.reclaim(buf.index); err != nil {
		return err
	}
	if err := c.requeue(&buf); err != nil {
		return err
	}
	return visitErr
}

func (c *Capture) requeue(buf *v4l2Buffer) error {
	if err := xioctl(c.fd, vidiocQbuf, unsafe.Pointer(buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF %d: %w", buf.index, err)
	}
	return nil
}

// Close stops streaming, unmaps all buffers and closes the descriptor.
// Calling Close more than once is a no-op.
func (c *Capture) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.streaming {
		typ := uint32(v4l2BufTypeVideoCapture)
		if err := xioctl(c.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
			errs = append(errs, fmt.Errorf("VIDIOC_STREAMOFF: %w", err))
		}
		c.streaming = false
	}
	if c.pool != nil {
		for i, region := range c.pool.regions() {
			if err := unix.Munmap(region); err != nil {
				errs = append(errs, fmt.Errorf("munmap buffer %d: %w", i, err))
			}
		}
		c.pool = nil
	}
	if err := close(c.fd); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", c.path, err))
	}
	c.fd = -1
	return errors.Join(errs...)
}
