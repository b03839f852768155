// RPMI system reset service group
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sysreset implements the system reset service group (§4.5):
// reports which reset types a platform supports and invokes the
// platform's non-returning reset callback.
package sysreset

import (
	"encoding/binary"
	"fmt"

	"github.com/riscv-mgmt/rpmi"
	ctxpkg "github.com/riscv-mgmt/rpmi/context"
)

// DoSystemReset performs a platform reset of the given type and does
// not return on success.
type DoSystemReset func(t rpmi.ResetType)

type state struct {
	supported map[rpmi.ResetType]bool
	doReset   DoSystemReset
}

// New builds the system reset service group, restricted to M-mode
// (§4.5: "Only allowed under M-mode privilege").
func New(supported []rpmi.ResetType, doReset DoSystemReset) (*ctxpkg.Group, error) {
	if doReset == nil {
		return nil, rpmi.NewError("sysreset.New", rpmi.StatusInval, fmt.Errorf("nil reset callback"))
	}

	set := make(map[rpmi.ResetType]bool, len(supported))
	for _, t := range supported {
		set[t] = true
	}

	s := &state{supported: set, doReset: doReset}

	services := []*ctxpkg.Service{
		{ID: rpmi.SysResetGetAttributes, MinRequestDatalen: 4, Handler: s.getAttributes},
		{ID: rpmi.SysResetSystemReset, MinRequestDatalen: 4, Handler: s.systemReset},
	}

	return ctxpkg.NewGroup("sysreset", rpmi.GroupIDSystemReset, 1, rpmi.PrivilegeMMode, rpmi.SysResetSystemReset, services, nil, nil, s)
}

func (s *state) getAttributes(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	t := rpmi.ResetType(order.Uint32(req.Payload[0:4]))

	var flags uint32
	if s.supported[t] {
		flags = 1 << 31
	}

	buf := make([]byte, 8)
	order.PutUint32(buf, uint32(int32(rpmi.StatusSuccess)))
	order.PutUint32(buf[4:], flags)

	return buf, rpmi.StatusSuccess, nil
}

// systemReset invokes the platform callback for a supported type
// (§4.5: "does not return"); if it does return (the fake/test
// callback case, or a platform that chooses to), SystemReset reports
// SUCCESS since the reset was at least dispatched. An unsupported type
// acks INVAL without calling the platform at all.
func (s *state) systemReset(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	t := rpmi.ResetType(order.Uint32(req.Payload[0:4]))

	if !s.supported[t] {
		buf := make([]byte, 4)
		order.PutUint32(buf, uint32(int32(rpmi.StatusInval)))

		return buf, rpmi.StatusInval, nil
	}

	s.doReset(t)

	buf := make([]byte, 4)
	order.PutUint32(buf, uint32(int32(rpmi.StatusSuccess)))

	return buf, rpmi.StatusSuccess, nil
}
