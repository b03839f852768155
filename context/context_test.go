package context

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riscv-mgmt/rpmi"
	"github.com/riscv-mgmt/rpmi/shmem"
	"github.com/riscv-mgmt/rpmi/transport"
)

func newTestContext(t *testing.T, maxGroups int) *Context {
	t.Helper()

	mem := shmem.NewZeroedRegion(64 * 64)

	tr, err := transport.New(mem, transport.Config{
		SlotSize:       64,
		A2PRequestSize: 64 * 16,
		P2AAckSize:     64 * 16,
	})
	require.NoError(t, err)

	ctx, err := New("test", tr, rpmi.PrivilegeSMode|rpmi.PrivilegeMMode, maxGroups)
	require.NoError(t, err)

	return ctx
}

func echoGroup(t *testing.T, id uint16) *Group {
	t.Helper()

	svc := &Service{
		ID:                0x01,
		MinRequestDatalen: 4,
		Handler: func(g *Group, req rpmi.Message, order binary.ByteOrder) ([]byte, rpmi.Status, error) {
			return append([]byte(nil), req.Payload...), rpmi.StatusSuccess, nil
		},
	}

	g, err := NewGroup("echo", id, 1, rpmi.PrivilegeSMode|rpmi.PrivilegeMMode, 0x01, []*Service{svc}, nil, nil, nil)
	require.NoError(t, err)

	return g
}

// TestProcessA2PRequestNormalAcks implements invariant 3: a NORMAL
// request with a satisfied min-datalen produces exactly one matching
// ack on P2A-ACK.
func TestProcessA2PRequestNormalAcks(t *testing.T) {
	ctx := newTestContext(t, 4)
	g := echoGroup(t, 0x0100)
	require.NoError(t, ctx.Register(g))

	req := rpmi.Header{ServiceID: 0x01, ServiceGroupID: 0x0100, Datalen: 4, Token: 0x2a}
	req.SetType(rpmi.MessageNormalRequest)

	require.NoError(t, ctx.transport.Enqueue(transport.QueueA2PRequest, rpmi.Message{Header: req, Payload: []byte{1, 2, 3, 4}}))
	require.NoError(t, ctx.ProcessA2PRequest())

	ack, err := ctx.transport.Dequeue(transport.QueueP2AAck)
	require.NoError(t, err)
	require.Equal(t, rpmi.MessageAck, ack.Header.Type())
	require.Equal(t, uint8(0x01), ack.Header.ServiceID)
	require.Equal(t, uint16(0x0100), ack.Header.ServiceGroupID)
	require.Equal(t, uint16(0x2a), ack.Header.Token)
	require.Equal(t, []byte{1, 2, 3, 4}, ack.Payload)
}

// TestProcessA2PRequestPostedNoAck implements invariant 4.
func TestProcessA2PRequestPostedNoAck(t *testing.T) {
	ctx := newTestContext(t, 4)
	g := echoGroup(t, 0x0100)
	require.NoError(t, ctx.Register(g))

	req := rpmi.Header{ServiceID: 0x01, ServiceGroupID: 0x0100, Datalen: 4, Token: 0x1}
	req.SetType(rpmi.MessagePostedRequest)

	require.NoError(t, ctx.transport.Enqueue(transport.QueueA2PRequest, rpmi.Message{Header: req, Payload: []byte{9, 9, 9, 9}}))
	require.NoError(t, ctx.ProcessA2PRequest())

	_, err := ctx.transport.Dequeue(transport.QueueP2AAck)
	require.Error(t, err)

	status, ok := statusOf(err)
	require.True(t, ok)
	require.Equal(t, rpmi.StatusBusy, status)
}

// TestProcessA2PRequestUnknownGroupDropped implements invariant 5: for
// any unknown servicegroup_id, no ack appears at all and the
// dispatcher continues (not even a NOTSUPP ack).
func TestProcessA2PRequestUnknownGroupDropped(t *testing.T) {
	ctx := newTestContext(t, 4)

	req := rpmi.Header{ServiceID: 0x01, ServiceGroupID: 0xdead, Datalen: 0, Token: 0x1}
	req.SetType(rpmi.MessageNormalRequest)

	require.NoError(t, ctx.transport.Enqueue(transport.QueueA2PRequest, rpmi.Message{Header: req}))
	require.NoError(t, ctx.ProcessA2PRequest())

	_, err := ctx.transport.Dequeue(transport.QueueP2AAck)
	require.Error(t, err)

	status, ok := statusOf(err)
	require.True(t, ok)
	require.Equal(t, rpmi.StatusBusy, status)
}

// TestProcessA2PRequestUnhandledServiceNotsupp implements invariant 6.
func TestProcessA2PRequestUnhandledServiceNotsupp(t *testing.T) {
	ctx := newTestContext(t, 4)
	g := echoGroup(t, 0x0100)
	require.NoError(t, ctx.Register(g))

	req := rpmi.Header{ServiceID: 0x7f, ServiceGroupID: 0x0100, Datalen: 0, Token: 0x1}
	req.SetType(rpmi.MessageNormalRequest)

	require.NoError(t, ctx.transport.Enqueue(transport.QueueA2PRequest, rpmi.Message{Header: req}))
	require.NoError(t, ctx.ProcessA2PRequest())

	ack, err := ctx.transport.Dequeue(transport.QueueP2AAck)
	require.NoError(t, err)
	require.Len(t, ack.Payload, 4)
}

func TestRegisterBaseOnlyOnce(t *testing.T) {
	ctx := newTestContext(t, 4)
	base := echoGroup(t, rpmi.GroupIDBase)

	require.NoError(t, ctx.RegisterBase(base))

	again := echoGroup(t, rpmi.GroupIDBase)
	err := ctx.RegisterBase(again)
	require.Error(t, err)

	status, ok := statusOf(err)
	require.True(t, ok)
	require.Equal(t, rpmi.StatusAlready, status)

	require.Error(t, ctx.Unregister(rpmi.GroupIDBase))
}

func TestRegisterPrivilegeDenied(t *testing.T) {
	ctx := newTestContext(t, 4)
	ctx.privilege = rpmi.PrivilegeSMode

	mmodeOnly, err := NewGroup("mmode", 0x0200, 1, rpmi.PrivilegeMMode, 0, nil, nil, nil, nil)
	require.NoError(t, err)

	err = ctx.Register(mmodeOnly)
	require.Error(t, err)

	status, ok := statusOf(err)
	require.True(t, ok)
	require.Equal(t, rpmi.StatusDenied, status)
}

// fakeSysMSI is a minimal SysMSI double for exercising the doorbell
// wiring without pulling in package service/sysmsi.
type fakeSysMSI struct {
	injected int
}

func (f *fakeSysMSI) InjectP2ADoorbell() error             { f.injected++; return nil }
func (f *fakeSysMSI) ConfigureDoorbell(uint64, uint32) rpmi.Status { return rpmi.StatusSuccess }

func sysmsiGroup(t *testing.T, msi *fakeSysMSI) *Group {
	t.Helper()

	g, err := NewGroup("sysmsi", rpmi.GroupIDSystemMSI, 1, rpmi.PrivilegeSMode|rpmi.PrivilegeMMode, 0, nil, nil, nil, msi)
	require.NoError(t, err)

	return g
}

// TestProcessA2PRequestPostedDoorbellNeverRings implements invariant
// 10: the doorbell fires once per emitted ack, so a POSTED_REQUEST
// (which is never acknowledged) must not ring it even with the
// doorbell-on-ack bit set.
func TestProcessA2PRequestPostedDoorbellNeverRings(t *testing.T) {
	ctx := newTestContext(t, 4)
	msi := &fakeSysMSI{}
	require.NoError(t, ctx.Register(sysmsiGroup(t, msi)))

	g := echoGroup(t, 0x0100)
	require.NoError(t, ctx.Register(g))

	req := rpmi.Header{ServiceID: 0x01, ServiceGroupID: 0x0100, Datalen: 4, Token: 0x1}
	req.SetType(rpmi.MessagePostedRequest)
	req.SetDoorbell(true)

	require.NoError(t, ctx.transport.Enqueue(transport.QueueA2PRequest, rpmi.Message{Header: req, Payload: []byte{1, 2, 3, 4}}))
	require.NoError(t, ctx.ProcessA2PRequest())

	require.Equal(t, 0, msi.injected)
}

// TestProcessA2PRequestNormalDoorbellRings is the positive
// counterpart: a NORMAL_REQUEST with the doorbell-on-ack bit set rings
// exactly once per emitted ack.
func TestProcessA2PRequestNormalDoorbellRings(t *testing.T) {
	ctx := newTestContext(t, 4)
	msi := &fakeSysMSI{}
	require.NoError(t, ctx.Register(sysmsiGroup(t, msi)))

	g := echoGroup(t, 0x0100)
	require.NoError(t, ctx.Register(g))

	req := rpmi.Header{ServiceID: 0x01, ServiceGroupID: 0x0100, Datalen: 4, Token: 0x1}
	req.SetType(rpmi.MessageNormalRequest)
	req.SetDoorbell(true)

	require.NoError(t, ctx.transport.Enqueue(transport.QueueA2PRequest, rpmi.Message{Header: req, Payload: []byte{1, 2, 3, 4}}))
	require.NoError(t, ctx.ProcessA2PRequest())

	require.Equal(t, 1, msi.injected)
}

// TestProcessA2PRequestServiceIDAboveMaxNotsupp implements §4.3 step 2:
// a service_id above the group's max_service_id is rejected with
// NOTSUPP without ever reaching the service map.
func TestProcessA2PRequestServiceIDAboveMaxNotsupp(t *testing.T) {
	ctx := newTestContext(t, 4)
	g := echoGroup(t, 0x0100)
	require.NoError(t, ctx.Register(g))

	req := rpmi.Header{ServiceID: 0x02, ServiceGroupID: 0x0100, Datalen: 0, Token: 0x1}
	req.SetType(rpmi.MessageNormalRequest)

	require.NoError(t, ctx.transport.Enqueue(transport.QueueA2PRequest, rpmi.Message{Header: req}))
	require.NoError(t, ctx.ProcessA2PRequest())

	ack, err := ctx.transport.Dequeue(transport.QueueP2AAck)
	require.NoError(t, err)
	require.Len(t, ack.Payload, 4)
	require.Equal(t, uint32(int32(rpmi.StatusNotsupp)), binary.LittleEndian.Uint32(ack.Payload))
}

func TestProbeGroup(t *testing.T) {
	ctx := newTestContext(t, 4)
	g := echoGroup(t, 0x0100)
	require.NoError(t, ctx.Register(g))

	version, found := ctx.ProbeGroup(0x0100)
	require.True(t, found)
	require.Equal(t, uint32(1), version)

	_, found = ctx.ProbeGroup(0x9999)
	require.False(t, found)
}
