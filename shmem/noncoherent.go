package shmem

// CacheOps are the embedder-supplied cache maintenance hooks a
// non-coherent interconnect requires around a shared-memory transfer.
// Both callbacks take the byte range being touched.
//
// Grounded on internal/reg.Get/Set from the teacher pack, which wraps
// every register access with an architecture CacheFlushData() call;
// here the equivalent clean/invalidate calls are parameterized rather
// than hard-wired to one architecture, since the policy is a
// construction-time choice per §4.1/§9 ("Cache coherency... is
// construction-time configuration, not runtime branching").
type CacheOps struct {
	// Clean flushes dirty cache lines covering [offset, offset+n) to
	// memory; called before a Read and after a Write.
	Clean func(offset, n uint32)
	// Invalidate discards cache lines covering [offset, offset+n)
	// without writeback; called before a Write (to avoid a stale
	// line being written back over fresh data later) and after a
	// Read (so a subsequent peer write is not masked by a cached
	// copy).
	Invalidate func(offset, n uint32)
}

// NonCoherent decorates a Memory with cache maintenance calls around
// each transfer, for embedders on a non-coherent interconnect between
// the AP and the PuC. This is a construction-time wrapper: callers
// needing the non-coherent policy wrap their Region once at setup, the
// rest of the transport is unaware of the distinction.
type NonCoherent struct {
	inner Memory
	ops   CacheOps
}

// NewNonCoherent wraps inner with the given cache maintenance hooks.
func NewNonCoherent(inner Memory, ops CacheOps) *NonCoherent {
	return &NonCoherent{inner: inner, ops: ops}
}

func (n *NonCoherent) Read(offset uint32, dst []byte) error {
	ln := uint32(len(dst))

	if n.ops.Clean != nil {
		n.ops.Clean(offset, ln)
	}

	if err := n.inner.Read(offset, dst); err != nil {
		return err
	}

	if n.ops.Invalidate != nil {
		n.ops.Invalidate(offset, ln)
	}

	return nil
}

func (n *NonCoherent) Write(offset uint32, src []byte) error {
	ln := uint32(len(src))

	if n.ops.Invalidate != nil {
		n.ops.Invalidate(offset, ln)
	}

	if err := n.inner.Write(offset, src); err != nil {
		return err
	}

	if n.ops.Clean != nil {
		n.ops.Clean(offset, ln)
	}

	return nil
}

func (n *NonCoherent) Fill(offset uint32, b byte, ln uint32) error {
	if n.ops.Invalidate != nil {
		n.ops.Invalidate(offset, ln)
	}

	if err := n.inner.Fill(offset, b, ln); err != nil {
		return err
	}

	if n.ops.Clean != nil {
		n.ops.Clean(offset, ln)
	}

	return nil
}

func (n *NonCoherent) Size() uint32 {
	return n.inner.Size()
}

func (n *NonCoherent) Base() uintptr {
	return n.inner.Base()
}
