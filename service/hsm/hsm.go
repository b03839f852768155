// RPMI HSM service group
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hsm implements the HSM service group (§4.7): the wire-facing
// wrapper around the hart state machine core in package hsm, including
// the paginated hart-list and suspend-type-list services.
//
// Grounded on the teacher pack's virtio descriptor-ring iteration
// (virtio/queue.go), which walks a bounded window of a larger table and
// reports a remaining count the same way GetHartList/GetSuspendTypes
// do here.
package hsm

import (
	"encoding/binary"
	"fmt"

	"github.com/riscv-mgmt/rpmi"
	ctxpkg "github.com/riscv-mgmt/rpmi/context"
	hsmcore "github.com/riscv-mgmt/rpmi/hsm"
)

type state struct {
	core        hsmcore.HSM
	slotPayload int
}

// New builds the HSM service group, restricted to M-mode (§4.7: "Only
// permitted under M-mode"). slotPayload is the transport's actual
// negotiated per-slot payload capacity (typically
// int(tr.SlotSize())-rpmi.HeaderSize), used to size the
// GetHartList/GetSuspendTypes pagination window (§4.7) instead of a
// fixed minimum; an embedder with a larger slot size gets more ids per
// page rather than leaving headroom unused.
func New(core hsmcore.HSM, slotPayload int) (*ctxpkg.Group, error) {
	if slotPayload < rpmi.MinSlotSize-rpmi.HeaderSize {
		return nil, rpmi.NewError("hsm.New", rpmi.StatusInval, fmt.Errorf("slotPayload %d below the minimum guaranteed %d", slotPayload, rpmi.MinSlotSize-rpmi.HeaderSize))
	}

	s := &state{core: core, slotPayload: slotPayload}

	services := []*ctxpkg.Service{
		{ID: rpmi.HSMEnableNotification, Handler: s.enableNotification},
		{ID: rpmi.HSMHartStart, MinRequestDatalen: 12, Handler: s.hartStart},
		{ID: rpmi.HSMHartStop, MinRequestDatalen: 4, Handler: s.hartStop},
		{ID: rpmi.HSMHartSuspend, MinRequestDatalen: 16, Handler: s.hartSuspend},
		{ID: rpmi.HSMGetHartStatus, MinRequestDatalen: 4, Handler: s.getHartStatus},
		{ID: rpmi.HSMGetHartList, MinRequestDatalen: 4, Handler: s.getHartList},
		{ID: rpmi.HSMGetSuspendTypes, MinRequestDatalen: 4, Handler: s.getSuspendTypes},
		{ID: rpmi.HSMGetSuspendInfo, MinRequestDatalen: 4, Handler: s.getSuspendInfo},
	}

	return ctxpkg.NewGroup("hsm", rpmi.GroupIDHSM, 1, rpmi.PrivilegeMMode, rpmi.HSMGetSuspendInfo, services, s.processEvents, nil, s)
}

func (s *state) processEvents() error {
	return s.core.ProcessStateChanges()
}

func (s *state) enableNotification(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	return statusWord(order, rpmi.StatusNotsupp), rpmi.StatusNotsupp, nil
}

func statusWord(order binary.ByteOrder, status rpmi.Status, extra ...uint32) []byte {
	buf := make([]byte, 4+4*len(extra))
	order.PutUint32(buf, uint32(int32(status)))

	for i, w := range extra {
		order.PutUint32(buf[4+4*i:], w)
	}

	return buf
}

func (s *state) hartStart(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	hartID := order.Uint32(req.Payload[0:4])
	entryAddr := uint64(order.Uint32(req.Payload[4:8])) | uint64(order.Uint32(req.Payload[8:12]))<<32

	status, err := s.core.Start(hartID, entryAddr)
	if err != nil {
		return nil, rpmi.StatusFailed, err
	}

	return statusWord(order, status), status, nil
}

func (s *state) hartStop(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	hartID := order.Uint32(req.Payload[0:4])

	status, err := s.core.Stop(hartID)
	if err != nil {
		return nil, rpmi.StatusFailed, err
	}

	return statusWord(order, status), status, nil
}

func (s *state) hartSuspend(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	hartID := order.Uint32(req.Payload[0:4])
	suspendType := order.Uint32(req.Payload[4:8])
	resumeAddr := uint64(order.Uint32(req.Payload[8:12])) | uint64(order.Uint32(req.Payload[12:16]))<<32

	status, err := s.core.Suspend(hartID, suspendType, resumeAddr)
	if err != nil {
		return nil, rpmi.StatusFailed, err
	}

	return statusWord(order, status), status, nil
}

func (s *state) getHartStatus(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	hartID := order.Uint32(req.Payload[0:4])

	st, status := s.core.GetState(hartID)
	if status != rpmi.StatusSuccess {
		return statusWord(order, status), status, nil
	}

	return statusWord(order, rpmi.StatusSuccess, uint32(int32(st))), rpmi.StatusSuccess, nil
}

// maxIDsPerSlot is the pagination window per §4.7: floor((slot_payload
// − 3·4)/4), i.e. after the 3 leading 32-bit words (status, remaining,
// returned) every remaining 4 bytes of the response slot holds one id.
func maxIDsPerSlot(slotPayload int) int {
	n := (slotPayload - 3*4) / 4
	if n < 0 {
		return 0
	}

	return n
}

func (s *state) getHartList(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	start := int(order.Uint32(req.Payload[0:4]))
	total := s.core.HartCount()

	if start < 0 || start > total {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	maxN := maxIDsPerSlot(s.slotPayload)

	remaining := total - start
	n := remaining
	if n > maxN {
		n = maxN
	}

	ids := make([]uint32, n)

	for i := 0; i < n; i++ {
		id, status := s.core.IndexToID(start + i)
		if status != rpmi.StatusSuccess {
			return statusWord(order, status), status, nil
		}

		ids[i] = id
	}

	buf := statusWord(order, rpmi.StatusSuccess, uint32(remaining-n), uint32(n))
	out := append(buf, make([]byte, 4*n)...)

	for i, id := range ids {
		order.PutUint32(out[12+4*i:], id)
	}

	return out, rpmi.StatusSuccess, nil
}

func (s *state) getSuspendTypes(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	start := int(order.Uint32(req.Payload[0:4]))

	types := s.core.SuspendTypes()
	total := len(types)

	if start < 0 || start > total {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	maxN := maxIDsPerSlot(s.slotPayload)

	remaining := total - start
	n := remaining
	if n > maxN {
		n = maxN
	}

	out := statusWord(order, rpmi.StatusSuccess, uint32(remaining-n), uint32(n))
	out = append(out, make([]byte, 4*n)...)

	for i := 0; i < n; i++ {
		order.PutUint32(out[12+4*i:], types[start+i].Type)
	}

	return out, rpmi.StatusSuccess, nil
}

func (s *state) getSuspendInfo(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	idx := int(order.Uint32(req.Payload[0:4]))

	types := s.core.SuspendTypes()
	if idx < 0 || idx >= len(types) {
		return statusWord(order, rpmi.StatusInval), rpmi.StatusInval, nil
	}

	t := types[idx]

	return statusWord(order, rpmi.StatusSuccess, t.Flags, t.EntryLatency, t.ExitLatency, t.WakeupLatency, t.MinResidency), rpmi.StatusSuccess, nil
}
