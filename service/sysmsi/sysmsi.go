// RPMI system MSI service group
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sysmsi implements the system-MSI service group (§4.8): an
// array of MSI descriptors, the services that enumerate/arm/configure
// them, and the doorbell injection path the dispatcher uses when an
// A2P request carries the doorbell-on-ack flag (§4.3 step 7, §9
// doorbell mechanism decision).
//
// Grounded on the teacher's gvnic notify-register idiom (a fixed array
// of hardware doorbell slots, each armed/fired independently under one
// lock) even though this module's "hardware write" is an
// embedder-supplied function rather than an actual MMIO store.
package sysmsi

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/riscv-mgmt/rpmi"
	ctxpkg "github.com/riscv-mgmt/rpmi/context"
)

// WriteMSI performs the platform-specific 32-bit write of data to
// address that actually raises the interrupt.
type WriteMSI func(address uint64, data uint32) error

// ValidateAddr approves or rejects a proposed MSI target address
// (§4.8: "validate_msi_addr(address) must approve the address").
type ValidateAddr func(address uint64) bool

type descriptor struct {
	enable  bool
	pending bool
	valid   bool
	address uint64
	data    uint32
}

type state struct {
	mu       sync.Mutex
	desc     []descriptor
	doorbell int
	write    WriteMSI
	validate ValidateAddr
	mmode    bool
}

// New builds the system-MSI service group with n MSI descriptors, one
// of which (doorbellIndex) is pre-assigned as the P2A acknowledgment
// doorbell target (§3, §4.3 step 7). write performs the actual 32-bit
// MMIO write; validate approves proposed target addresses (a nil
// validate approves everything).
func New(n int, doorbellIndex int, write WriteMSI, validate ValidateAddr) (*ctxpkg.Group, error) {
	if write == nil {
		return nil, rpmi.NewError("sysmsi.New", rpmi.StatusInval, fmt.Errorf("nil write callback"))
	}

	if n <= 0 || doorbellIndex < 0 || doorbellIndex >= n {
		return nil, rpmi.NewError("sysmsi.New", rpmi.StatusInval, fmt.Errorf("invalid msi count %d / doorbell index %d", n, doorbellIndex))
	}

	if validate == nil {
		validate = func(uint64) bool { return true }
	}

	s := &state{
		desc:     make([]descriptor, n),
		doorbell: doorbellIndex,
		write:    write,
		validate: validate,
		mmode:    true,
	}
	s.desc[doorbellIndex].valid = true

	services := []*ctxpkg.Service{
		{ID: rpmi.SysMSIGetNumMSI, Handler: s.getNumMSI},
		{ID: rpmi.SysMSIGetAttrs, MinRequestDatalen: 4, Handler: s.getAttrs},
		{ID: rpmi.SysMSISetState, MinRequestDatalen: 8, Handler: s.setState},
		{ID: rpmi.SysMSIGetState, MinRequestDatalen: 4, Handler: s.getState},
		{ID: rpmi.SysMSISetTarget, MinRequestDatalen: 16, Handler: s.setTarget},
		{ID: rpmi.SysMSIGetTarget, MinRequestDatalen: 4, Handler: s.getTarget},
	}

	return ctxpkg.NewGroup("sysmsi", rpmi.GroupIDSystemMSI, 1, rpmi.PrivilegeMMode, rpmi.SysMSIGetTarget, services, s.processEvents, nil, s)
}

func statusWord(order binary.ByteOrder, status rpmi.Status, extra ...uint32) []byte {
	buf := make([]byte, 4+4*len(extra))
	order.PutUint32(buf, uint32(int32(status)))

	for i, w := range extra {
		order.PutUint32(buf[4+4*i:], w)
	}

	return buf
}

// processEvents fires every MSI that is enable && pending && valid,
// clearing pending on success (§4.8).
func (s *state) processEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.desc {
		d := &s.desc[i]

		if !(d.enable && d.pending && d.valid) {
			continue
		}

		if err := s.write(d.address, d.data); err != nil {
			return rpmi.NewError("sysmsi.processEvents", rpmi.StatusHwfault, err)
		}

		d.pending = false
	}

	return nil
}

// Inject marks index pending and fires process_events under lock.
func (s *state) Inject(index int) error {
	s.mu.Lock()

	if index < 0 || index >= len(s.desc) {
		s.mu.Unlock()
		return rpmi.NewError("sysmsi.Inject", rpmi.StatusInval, fmt.Errorf("invalid msi index %d", index))
	}

	s.desc[index].pending = true
	s.mu.Unlock()

	return s.processEvents()
}

// InjectP2ADoorbell is the shorthand the dispatcher calls when an A2P
// request carries the doorbell-on-ack flag (§4.3 step 7, §4.8).
func (s *state) InjectP2ADoorbell() error {
	return s.Inject(s.doorbell)
}

// ConfigureDoorbell sets the pre-assigned doorbell MSI's target
// address/data pair, the path base.SetMsi forwards into (§9 doorbell
// mechanism decision).
func (s *state) ConfigureDoorbell(address uint64, data uint32) rpmi.Status {
	if !s.validate(address) {
		return rpmi.StatusInval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.desc[s.doorbell].address = address
	s.desc[s.doorbell].data = data
	s.desc[s.doorbell].enable = true

	return rpmi.StatusSuccess
}

func (s *state) getNumMSI(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	return statusWord(order, rpmi.StatusSuccess, uint32(len(s.desc))), rpmi.StatusSuccess, nil
}

func (s *state) getAttrs(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	idx := int(order.Uint32(req.Payload[0:4]))

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.desc) {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	var flags uint32
	if s.mmode {
		flags |= 1
	}

	if idx == s.doorbell {
		flags |= 1 << 1
	}

	return statusWord(order, rpmi.StatusSuccess, flags), rpmi.StatusSuccess, nil
}

func (s *state) setState(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	idx := int(order.Uint32(req.Payload[0:4]))
	enable := order.Uint32(req.Payload[4:8]) != 0

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.desc) {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	s.desc[idx].enable = enable

	return statusWord(order, rpmi.StatusSuccess), rpmi.StatusSuccess, nil
}

func (s *state) getState(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	idx := int(order.Uint32(req.Payload[0:4]))

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.desc) {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	var v uint32
	if s.desc[idx].enable {
		v = 1
	}

	return statusWord(order, rpmi.StatusSuccess, v), rpmi.StatusSuccess, nil
}

// setTarget configures a non-doorbell descriptor's MSI target and, once
// the address clears validation, marks it valid so a subsequent
// SetState(enable=true) plus Inject can actually fire it (§4.8: the
// doorbell descriptor is pre-validated at construction, every other
// descriptor becomes valid only once a client has supplied and
// validated a real target).
func (s *state) setTarget(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	idx := int(order.Uint32(req.Payload[0:4]))
	address := uint64(order.Uint32(req.Payload[4:8])) | uint64(order.Uint32(req.Payload[8:12]))<<32
	data := order.Uint32(req.Payload[12:16])

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.desc) {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	if !s.validate(address) {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	s.desc[idx].address = address
	s.desc[idx].data = data
	s.desc[idx].valid = true

	return statusWord(order, rpmi.StatusSuccess), rpmi.StatusSuccess, nil
}

func (s *state) getTarget(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	idx := int(order.Uint32(req.Payload[0:4]))

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.desc) {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	d := s.desc[idx]

	buf := statusWord(order, rpmi.StatusSuccess)
	tail := make([]byte, 12)
	order.PutUint32(tail[0:4], uint32(d.address))
	order.PutUint32(tail[4:8], uint32(d.address>>32))
	order.PutUint32(tail[8:12], d.data)

	return append(buf, tail...), rpmi.StatusSuccess, nil
}
