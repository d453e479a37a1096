//go:build linux

package v4l2

import (
	"errors"
	"fmt"
)

// bufferOwner records which side currently holds a mapped buffer.
type bufferOwner uint8

const (
	ownerKernel bufferOwner = iota // queued, may be written by the driver
	ownerApp                       // dequeued, readable until re-queued
)

func (o bufferOwner) String() string {
	if o == ownerApp {
		return "app"
	}
	return "kernel"
}

var (
	errBufferIndex = errors.New("buffer index out of range")
	errBufferOwner = errors.New("buffer ownership violation")
)

// mappedBuffer is one memory-mapped slot of the capture pool.
type mappedBuffer struct {
	data  []byte
	owner bufferOwner
}

// bufferPool tracks ownership of the mapped capture buffers. At most one
// buffer is lent to the application at a time.
type bufferPool struct {
	bufs []mappedBuffer
	lent int // index of the app-owned buffer, -1 when none
}

func newBufferPool(regions [][]byte) *bufferPool {
	p := &bufferPool{bufs: make([]mappedBuffer, len(regions)), lent: -1}
	for i, r := range regions {
		p.bufs[i] = mappedBuffer{data: r, owner: ownerKernel}
	}
	return p
}

// lend moves a buffer dequeued by the driver to the application and returns
// the filled part of it.
func (p *bufferPool) lend(index, bytesUsed uint32) ([]byte, error) {
	if int(index) >= len(p.bufs) {
		return nil, fmt.Errorf("%w: %d of %d", errBufferIndex, index, len(p.bufs))
	}
	if p.lent >= 0 {
		return nil, fmt.Errorf("%w: buffer %d still lent", errBufferOwner, p.lent)
	}
	b := &p.bufs[index]
	if b.owner != ownerKernel {
		return nil, fmt.Errorf("%w: buffer %d is %s-owned", errBufferOwner, index, b.owner)
	}
	used := int(bytesUsed)
	if used > len(b.data) {
		used = len(b.data)
	}
	b.owner = ownerApp
	p.lent = int(index)
	return b.data[:used:used], nil
}

// reclaim returns the lent buffer to the kernel side.
func (p *bufferPool) reclaim(index uint32) error {
	if int(index) >= len(p.bufs) {
		return fmt.Errorf("%w: %d of %d", errBufferIndex, index, len(p.bufs))
	}
	b := &p.bufs[index]
	if b.owner != ownerApp {
		return fmt.Errorf("%w: buffer %d is %s-owned", errBufferOwner, index, b.owner)
	}
	b.owner = ownerKernel
	p.lent = -1
	return nil
}

// regions returns the mapped memory of every slot for unmapping.
func (p *bufferPool) regions() [][]byte {
	out := make([][]byte, len(p.bufs))
	for i := range p.bufs {
		out[i] = p.bufs[i].data
	}
	return out
}

func (p *bufferPool) count() int {
	return len(p.bufs)
}
