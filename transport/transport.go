// RPMI shared-memory transport
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package transport implements the four logical FIFO queues laid out in
// shared memory (§4.2): A2P-request, P2A-ack, and optionally P2A-request
// and A2P-ack for embedders that support server-initiated requests.
//
// Grounded on the teacher pack's ring-buffer queues (virtio/queue,
// kvm/virtio descriptor rings), which encode fixed-size ring entries
// directly into byte slices with encoding/binary rather than a
// self-describing format; this package does the same for message
// slots, and on dma.Region for the "one lock around every queue
// operation" discipline.
package transport

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/riscv-mgmt/rpmi"
	"github.com/riscv-mgmt/rpmi/shmem"
)

// Config describes the static layout of a Transport (§4.2).
type Config struct {
	// SlotSize is the fixed size, in bytes, of every slot in every
	// queue. Must be a power of two and >= rpmi.MinSlotSize.
	SlotSize uint32

	// A2PRequestSize and P2AAckSize are the sizes, in bytes, of the
	// mandatory A2P-request and P2A-ack queue regions. Each must be a
	// multiple of SlotSize and span at least rpmi.MinQueueSlots slots.
	A2PRequestSize uint32
	P2AAckSize     uint32

	// P2ARequestSize and A2PAckSize configure the optional P2A channel
	// (server-initiated requests). Leave both zero to build a
	// two-queue, AP-request-only transport.
	P2ARequestSize uint32
	A2PAckSize     uint32

	// BigEndian selects the A2P wire byte order for multi-byte header
	// fields (§3). Queue head/tail indices are always little-endian
	// regardless of this flag (§3, §6).
	BigEndian bool

	// Locker guards every queue operation (§5). A nil Locker defaults
	// to a fresh sync.Mutex.
	Locker Locker
}

type queueLayout struct {
	offset    uint32
	size      uint32
	dataSlots uint32
}

// Transport owns a shared-memory region and the queue regions laid out
// within it.
type Transport struct {
	mem       shmem.Memory
	slotSize  uint32
	bigEndian bool
	lock      Locker

	layouts [4]queueLayout
	has4    bool
}

// New validates cfg against the construction constraints of §4.2 and
// lays out the configured queues over mem, zero-filling the whole
// region. It returns an *rpmi.Error (never a partially built Transport)
// on any validation failure, matching §7: "Construction failures free
// all partial allocations and return null; there is no partial
// context."
func New(mem shmem.Memory, cfg Config) (*Transport, error) {
	if mem == nil {
		return nil, rpmi.NewError("transport.New", rpmi.StatusInval, fmt.Errorf("nil memory"))
	}

	if cfg.SlotSize < rpmi.MinSlotSize || cfg.SlotSize&(cfg.SlotSize-1) != 0 {
		return nil, rpmi.NewError("transport.New", rpmi.StatusInval,
			fmt.Errorf("slot size %d must be a power of two >= %d", cfg.SlotSize, rpmi.MinSlotSize))
	}

	has4 := cfg.P2ARequestSize != 0 || cfg.A2PAckSize != 0

	if has4 && (cfg.P2ARequestSize == 0 || cfg.A2PAckSize == 0) {
		return nil, rpmi.NewError("transport.New", rpmi.StatusInval,
			fmt.Errorf("P2A channel requires both P2ARequestSize and A2PAckSize"))
	}

	sizes := [4]uint32{cfg.A2PRequestSize, cfg.P2AAckSize, cfg.P2ARequestSize, cfg.A2PAckSize}

	t := &Transport{
		mem:       mem,
		slotSize:  cfg.SlotSize,
		bigEndian: cfg.BigEndian,
		lock:      cfg.Locker,
		has4:      has4,
	}

	if t.lock == nil {
		t.lock = &sync.Mutex{}
	}

	var offset uint32

	n := 2
	if has4 {
		n = 4
	}

	for i := 0; i < n; i++ {
		size := sizes[i]
		minSize := cfg.SlotSize * rpmi.MinQueueSlots

		if size < minSize || size%cfg.SlotSize != 0 {
			return nil, rpmi.NewError("transport.New", rpmi.StatusInval,
				fmt.Errorf("queue %s size %d must be a multiple of slot size %d and >= %d slots",
					QueueType(i), size, cfg.SlotSize, rpmi.MinQueueSlots))
		}

		t.layouts[i] = queueLayout{
			offset:    offset,
			size:      size,
			dataSlots: size/cfg.SlotSize - queueHeaderSlots,
		}

		offset += size
	}

	if offset > mem.Size() {
		return nil, rpmi.NewError("transport.New", rpmi.StatusOutofrange,
			fmt.Errorf("shared memory size %d smaller than configured queues %d", mem.Size(), offset))
	}

	if err := mem.Fill(0, 0, mem.Size()); err != nil {
		return nil, rpmi.NewError("transport.New", rpmi.StatusFailed, err)
	}

	return t, nil
}

const queueHeaderSlots = 2

// QueueType re-exports rpmi.QueueType for callers that only import
// package transport.
type QueueType = rpmi.QueueType

const (
	QueueA2PRequest = rpmi.QueueA2PRequest
	QueueP2AAck     = rpmi.QueueP2AAck
	QueueP2ARequest = rpmi.QueueP2ARequest
	QueueA2PAck     = rpmi.QueueA2PAck
)

// HasP2A reports whether the optional P2A-request/A2P-ack channel was
// configured.
func (t *Transport) HasP2A() bool {
	return t.has4
}

// SlotSize returns the transport's fixed slot size.
func (t *Transport) SlotSize() uint32 {
	return t.slotSize
}

// BigEndian reports the A2P wire byte order configured for this
// transport.
func (t *Transport) BigEndian() bool {
	return t.bigEndian
}

func (t *Transport) layout(q QueueType) (queueLayout, error) {
	if q < QueueA2PRequest || q > QueueA2PAck {
		return queueLayout{}, rpmi.NewError("transport.layout", rpmi.StatusInval, fmt.Errorf("invalid queue type %d", q))
	}

	if (q == QueueP2ARequest || q == QueueA2PAck) && !t.has4 {
		return queueLayout{}, rpmi.NewError("transport.layout", rpmi.StatusInval,
			fmt.Errorf("%s not available: P2A channel not configured", q))
	}

	return t.layouts[q], nil
}

func (t *Transport) readIndex(off uint32) (uint32, error) {
	var b [4]byte

	if err := t.mem.Read(off, b[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b[:]), nil
}

func (t *Transport) writeIndex(off uint32, v uint32) error {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], v)

	return t.mem.Write(off, b[:])
}

func (t *Transport) head(l queueLayout) (uint32, error) {
	return t.readIndex(l.offset)
}

func (t *Transport) tail(l queueLayout) (uint32, error) {
	return t.readIndex(l.offset + t.slotSize)
}

func (t *Transport) setHead(l queueLayout, v uint32) error {
	return t.writeIndex(l.offset, v)
}

func (t *Transport) setTail(l queueLayout, v uint32) error {
	return t.writeIndex(l.offset+t.slotSize, v)
}

func (t *Transport) slotOffset(l queueLayout, i uint32) uint32 {
	return l.offset + (i+queueHeaderSlots)*t.slotSize
}

// IsEmpty reports whether q has no pending messages (§3, §4.2).
func (t *Transport) IsEmpty(q QueueType) (bool, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	l, err := t.layout(q)
	if err != nil {
		return false, err
	}

	h, err := t.head(l)
	if err != nil {
		return false, err
	}

	tl, err := t.tail(l)
	if err != nil {
		return false, err
	}

	return h == tl, nil
}

// IsFull reports whether q has no room for another message (§3, §4.2).
func (t *Transport) IsFull(q QueueType) (bool, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	l, err := t.layout(q)
	if err != nil {
		return false, err
	}

	h, err := t.head(l)
	if err != nil {
		return false, err
	}

	tl, err := t.tail(l)
	if err != nil {
		return false, err
	}

	return (tl+1)%l.dataSlots == h, nil
}

// Enqueue writes msg onto the tail of q, advancing the tail index.
// Multi-byte header fields are converted to the transport's wire byte
// order before the write; msg itself is left in native/host order
// (§4.2: "reverted on the caller-visible buffer after writing").
func (t *Transport) Enqueue(q QueueType, msg rpmi.Message) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	l, err := t.layout(q)
	if err != nil {
		return err
	}

	h, err := t.head(l)
	if err != nil {
		return err
	}

	tl, err := t.tail(l)
	if err != nil {
		return err
	}

	if (tl+1)%l.dataSlots == h {
		return rpmi.NewError("transport.Enqueue", rpmi.StatusBusy, fmt.Errorf("%s full", q))
	}

	if len(msg.Payload) > int(t.slotSize)-rpmi.HeaderSize {
		return rpmi.NewError("transport.Enqueue", rpmi.StatusInval,
			fmt.Errorf("payload of %d bytes exceeds slot capacity %d", len(msg.Payload), t.slotSize-rpmi.HeaderSize))
	}

	buf := make([]byte, t.slotSize)
	rpmi.PutHeader(buf, msg.Header, t.bigEndian)
	copy(buf[rpmi.HeaderSize:], msg.Payload)

	off := t.slotOffset(l, tl)

	if err := t.mem.Write(off, buf); err != nil {
		return rpmi.NewError("transport.Enqueue", rpmi.StatusComms, err)
	}

	return t.setTail(l, (tl+1)%l.dataSlots)
}

// Dequeue reads the message at the head of q into a fresh Message,
// advancing the head index. Multi-byte header fields are converted
// from the transport's wire byte order to native order.
func (t *Transport) Dequeue(q QueueType) (rpmi.Message, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	l, err := t.layout(q)
	if err != nil {
		return rpmi.Message{}, err
	}

	h, err := t.head(l)
	if err != nil {
		return rpmi.Message{}, err
	}

	tl, err := t.tail(l)
	if err != nil {
		return rpmi.Message{}, err
	}

	if h == tl {
		return rpmi.Message{}, rpmi.NewError("transport.Dequeue", rpmi.StatusBusy, fmt.Errorf("%s empty", q))
	}

	off := t.slotOffset(l, h)
	buf := make([]byte, t.slotSize)

	if err := t.mem.Read(off, buf); err != nil {
		return rpmi.Message{}, rpmi.NewError("transport.Dequeue", rpmi.StatusComms, err)
	}

	hdr := rpmi.GetHeader(buf, t.bigEndian)

	datalen := int(hdr.Datalen)
	maxPayload := int(t.slotSize) - rpmi.HeaderSize

	if datalen > maxPayload {
		datalen = maxPayload
	}

	payload := make([]byte, datalen)
	copy(payload, buf[rpmi.HeaderSize:rpmi.HeaderSize+datalen])

	if err := t.setHead(l, (h+1)%l.dataSlots); err != nil {
		return rpmi.Message{}, err
	}

	return rpmi.Message{Header: hdr, Payload: payload}, nil
}
