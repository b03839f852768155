//go:build unix

// RPMI shared-memory transport
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shmem

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/riscv-mgmt/rpmi"
)

// MappedRegion is a Memory backed by a real POSIX shared memory
// mapping (§4.1: "the storage itself... is the embedder's to
// provide"). It is the hosted-Go stand-in for the inter-processor
// shared-memory window a firmware embedder would instead get from a
// platform-specific reservation: two processes mmap-ing the same
// backing file (or /dev/shm object) see the same transport state,
// letting tests and tools exercise this module across real process
// boundaries rather than only in-process.
type MappedRegion struct {
	mu   sync.Mutex
	data []byte
	base uintptr
	f    *os.File
}

// OpenMapped mmaps size bytes of f (already opened read/write, and
// already truncated to at least size) starting at offset 0 and returns
// a MappedRegion over the mapping. The caller owns f's lifetime; Close
// unmaps but does not close f.
func OpenMapped(f *os.File, size int) (*MappedRegion, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, rpmi.NewError("shmem.OpenMapped", rpmi.StatusHwfault, fmt.Errorf("mmap: %w", err))
	}

	var base uintptr
	if len(data) > 0 {
		base = uintptr(unsafe.Pointer(&data[0]))
	}

	return &MappedRegion{data: data, base: base, f: f}, nil
}

// Close unmaps the region. It is not safe to call concurrently with
// any other MappedRegion method.
func (m *MappedRegion) Close() error {
	if m.data == nil {
		return nil
	}

	err := unix.Munmap(m.data)
	m.data = nil

	return err
}

func (m *MappedRegion) Read(offset uint32, dst []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkBounds(offset, uint32(len(dst)), uint32(len(m.data))); err != nil {
		return err
	}

	copy(dst, m.data[offset:])

	return nil
}

func (m *MappedRegion) Write(offset uint32, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkBounds(offset, uint32(len(src)), uint32(len(m.data))); err != nil {
		return err
	}

	copy(m.data[offset:], src)

	return nil
}

func (m *MappedRegion) Fill(offset uint32, b byte, n uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkBounds(offset, n, uint32(len(m.data))); err != nil {
		return err
	}

	region := m.data[offset : offset+n]
	for i := range region {
		region[i] = b
	}

	return nil
}

func (m *MappedRegion) Size() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return uint32(len(m.data))
}

func (m *MappedRegion) Base() uintptr {
	return m.base
}
