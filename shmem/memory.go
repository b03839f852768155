// Shared-memory backing for the RPMI transport
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package shmem defines the embedder-supplied shared-memory collaborator
// (§4.1): a byte-addressable region with read/write/fill primitives.
// This package specifies the interface and ships one coherent, in-process
// implementation (Region); the storage itself — e.g. a real inter-processor
// shared-memory window — is the embedder's to provide.
package shmem

import (
	"errors"
	"fmt"

	"github.com/riscv-mgmt/rpmi"
)

// ErrOutOfRange is returned whenever offset+len exceeds Size() (§4.1).
var ErrOutOfRange = errors.New("shmem: out of range")

// Memory is the shared-memory collaborator interface consumed by
// package transport. Implementations must be safe for the access
// pattern the embedder actually uses; this module serializes all
// Memory access through the transport lock (§5), so a Memory
// implementation itself need not be internally synchronized unless it
// is shared with something outside this module's control.
type Memory interface {
	// Read copies len(dst) bytes starting at offset into dst.
	Read(offset uint32, dst []byte) error
	// Write copies src into the region starting at offset.
	Write(offset uint32, src []byte) error
	// Fill sets n bytes starting at offset to b.
	Fill(offset uint32, b byte, n uint32) error
	// Size returns the total addressable size of the region.
	Size() uint32
	// Base returns the region's base address, for embedders that need
	// to hand the raw address to hardware (e.g. a doorbell target).
	// Pure in-process implementations may return 0.
	Base() uintptr
}

func checkBounds(offset uint32, n uint32, size uint32) error {
	if n == 0 {
		return nil
	}

	end := uint64(offset) + uint64(n)

	if end > uint64(size) {
		return rpmi.NewError("shmem.bounds", rpmi.StatusOutofrange,
			fmt.Errorf("%w: offset=%d len=%d size=%d", ErrOutOfRange, offset, n, size))
	}

	return nil
}
