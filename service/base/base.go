// RPMI base service group
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package base implements the built-in, always-present base service
// group (§4.4): implementation/spec version queries, the platform
// information blob, service-group probing, attribute reporting, and the
// optional legacy doorbell-target setter.
//
// Grounded on riscv64.CPU's split between an always-present core
// identification surface (Init) and an optional supervisor-mode extra
// (InitSupervisor): the base group is the protocol's equivalent
// always-there identification surface, while SetMsi is the optional
// extra gated on whether a system-MSI group happens to be registered.
package base

import (
	"encoding/binary"
	"fmt"

	"github.com/riscv-mgmt/rpmi"
	ctxpkg "github.com/riscv-mgmt/rpmi/context"
)

// ContextHandle is the slice of *context.Context the base group needs.
// Defined here (not in package context) so context need not import
// service/base; *context.Context satisfies this structurally.
type ContextHandle interface {
	Privilege() rpmi.Privilege
	ProbeGroup(id uint16) (version uint32, found bool)
	Attributes() uint32
	ConfigureDoorbell(address uint64, data uint32) rpmi.Status
}

// PlatformInfo is the embedder-supplied platform identification blob
// returned by GetPlatformInfo/GetHwInfo (§4.4).
type PlatformInfo struct {
	Blob []byte
}

// MaxPlatformInfoLen bounds PlatformInfo.Blob to the base group's ack
// payload capacity on a minimum-sized slot (4-byte status + 4-byte
// length + blob), conservatively matching rpmi.MinSlotSize.
const MaxPlatformInfoLen = rpmi.MinSlotSize - rpmi.HeaderSize - 8

type state struct {
	ctx  ContextHandle
	info PlatformInfo
}

// New builds the base service group. info.Blob longer than
// MaxPlatformInfoLen is rejected (§4.4: "constructor rejects over-long
// blobs"). Every handler is given the transport's configured wire byte
// order by the dispatcher at call time (§4.4), so response payload
// words always match the transport's negotiated endianness.
func New(ctx ContextHandle, info PlatformInfo) (*ctxpkg.Group, error) {
	if ctx == nil {
		return nil, rpmi.NewError("base.New", rpmi.StatusInval, fmt.Errorf("nil context handle"))
	}

	if len(info.Blob) > MaxPlatformInfoLen {
		return nil, rpmi.NewError("base.New", rpmi.StatusInval,
			fmt.Errorf("platform info blob %d bytes exceeds maximum %d", len(info.Blob), MaxPlatformInfoLen))
	}

	s := &state{ctx: ctx, info: info}

	services := []*ctxpkg.Service{
		{ID: rpmi.BaseEnableNotification, Handler: s.enableNotification},
		{ID: rpmi.BaseGetImplementationVersion, Handler: s.getImplementationVersion},
		{ID: rpmi.BaseGetImplementationIdn, Handler: s.getImplementationIdn},
		{ID: rpmi.BaseGetSpecVersion, Handler: s.getSpecVersion},
		{ID: rpmi.BaseGetPlatformInfo, Handler: s.getPlatformInfo},
		{ID: rpmi.BaseGetHwInfo, Handler: s.getPlatformInfo},
		{ID: rpmi.BaseProbeServiceGroup, MinRequestDatalen: 4, Handler: s.probeServiceGroup},
		{ID: rpmi.BaseGetAttributes, Handler: s.getAttributes},
		{ID: rpmi.BaseSetMsi, MinRequestDatalen: 12, Handler: s.setMsi},
	}

	return ctxpkg.NewGroup("base", rpmi.GroupIDBase, 1, rpmi.PrivilegeSMode|rpmi.PrivilegeMMode, rpmi.BaseSetMsi, services, nil, nil, s)
}

func statusWord(order binary.ByteOrder, status rpmi.Status, extra ...uint32) []byte {
	buf := make([]byte, 4+4*len(extra))
	order.PutUint32(buf, uint32(int32(status)))

	for i, w := range extra {
		order.PutUint32(buf[4+4*i:], w)
	}

	return buf
}

func (s *state) enableNotification(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	return statusWord(order, rpmi.StatusNotsupp), rpmi.StatusNotsupp, nil
}

func (s *state) getImplementationVersion(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	v := uint32(rpmi.ImplementationVersionMajor)<<16 | uint32(rpmi.ImplementationVersionMinor)
	return statusWord(order, rpmi.StatusSuccess, v), rpmi.StatusSuccess, nil
}

func (s *state) getImplementationIdn(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	return statusWord(order, rpmi.StatusSuccess, uint32(rpmi.ImplementationID)), rpmi.StatusSuccess, nil
}

func (s *state) getSpecVersion(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	v := uint32(rpmi.SpecVersionMajor)<<16 | uint32(rpmi.SpecVersionMinor)
	return statusWord(order, rpmi.StatusSuccess, v), rpmi.StatusSuccess, nil
}

func (s *state) getPlatformInfo(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	buf := make([]byte, 8+len(s.info.Blob))
	order.PutUint32(buf, uint32(int32(rpmi.StatusSuccess)))
	order.PutUint32(buf[4:], uint32(len(s.info.Blob)))
	copy(buf[8:], s.info.Blob)

	return buf, rpmi.StatusSuccess, nil
}

// probeServiceGroup reports a registered group's version encoded as
// the wire-format (major<<16)|minor word (§8 S2); ProbeGroup itself
// returns the plain group version number (major only, minor implied
// zero), so the encoding happens here, once, for every caller.
func (s *state) probeServiceGroup(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	gid := uint16(order.Uint32(req.Payload[0:4]))

	version, found := s.ctx.ProbeGroup(gid)
	if !found {
		version = 0
	}

	return statusWord(order, rpmi.StatusSuccess, version<<16), rpmi.StatusSuccess, nil
}

func (s *state) getAttributes(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	return statusWord(order, rpmi.StatusSuccess, s.ctx.Attributes(), 0, 0, 0), rpmi.StatusSuccess, nil
}

func (s *state) setMsi(g *ctxpkg.Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
	address := uint64(order.Uint32(req.Payload[0:4])) | uint64(order.Uint32(req.Payload[4:8]))<<32
	data := order.Uint32(req.Payload[8:12])

	status := s.ctx.ConfigureDoorbell(address, data)

	return statusWord(order, status), status, nil
}
