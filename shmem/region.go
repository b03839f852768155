package shmem

import (
	"sync"
)

// Region is the coherent flavor of Memory: a flat byte buffer guarded
// by a mutex, copied into and out of with the builtin copy(), with no
// cache maintenance around transfers.
//
// Grounded on dma.Region from the teacher pack, which backs its DMA
// buffers with a single flat, mutex-guarded address range; this Region
// drops the first-fit allocator (the transport owns slot layout, not
// Region) but keeps the same "one lock around every access" shape.
type Region struct {
	mu   sync.Mutex
	buf  []byte
	base uintptr
}

// NewRegion wraps buf as a Memory region. base is an opaque,
// embedder-supplied address reported by Base(); pass 0 if the embedder
// has no use for it (e.g. pure in-process tests).
func NewRegion(buf []byte, base uintptr) *Region {
	return &Region{buf: buf, base: base}
}

// NewZeroedRegion allocates a fresh, zero-filled region of size bytes,
// matching the "shared memory is zero-filled at creation" construction
// constraint (§4.2).
func NewZeroedRegion(size uint32) *Region {
	return NewRegion(make([]byte, size), 0)
}

func (r *Region) Read(offset uint32, dst []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkBounds(offset, uint32(len(dst)), uint32(len(r.buf))); err != nil {
		return err
	}

	copy(dst, r.buf[offset:])

	return nil
}

func (r *Region) Write(offset uint32, src []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkBounds(offset, uint32(len(src)), uint32(len(r.buf))); err != nil {
		return err
	}

	copy(r.buf[offset:], src)

	return nil
}

func (r *Region) Fill(offset uint32, b byte, n uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkBounds(offset, n, uint32(len(r.buf))); err != nil {
		return err
	}

	region := r.buf[offset : offset+n]

	for i := range region {
		region[i] = b
	}

	return nil
}

func (r *Region) Size() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return uint32(len(r.buf))
}

func (r *Region) Base() uintptr {
	return r.base
}
