package sysreset

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riscv-mgmt/rpmi"
)

func payload32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)

	return buf
}

// TestGetAttributesColdReboot implements S6.
func TestGetAttributesColdReboot(t *testing.T) {
	g, err := New([]rpmi.ResetType{rpmi.ResetShutdown, rpmi.ResetColdReboot}, func(rpmi.ResetType) {})
	require.NoError(t, err)

	svc, _ := g.Service(rpmi.SysResetGetAttributes)
	req := rpmi.Message{Header: rpmi.Header{Datalen: 4}, Payload: payload32(uint32(rpmi.ResetColdReboot))}

	data, status, err := svc.Handler(g, req, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusSuccess, status)
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[0:4]))
	require.Equal(t, uint32(0x80000000), binary.LittleEndian.Uint32(data[4:8]))
}

// TestSystemResetInvokesCallbackExactlyOnce implements invariant 9.
func TestSystemResetInvokesCallbackExactlyOnce(t *testing.T) {
	calls := 0

	g, err := New([]rpmi.ResetType{rpmi.ResetWarmReboot}, func(rpmi.ResetType) { calls++ })
	require.NoError(t, err)

	svc, _ := g.Service(rpmi.SysResetSystemReset)
	req := rpmi.Message{Header: rpmi.Header{Datalen: 4}, Payload: payload32(uint32(rpmi.ResetWarmReboot))}

	_, status, err := svc.Handler(g, req, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusSuccess, status)
	require.Equal(t, 1, calls)
}

func TestSystemResetUnsupportedIsInval(t *testing.T) {
	calls := 0

	g, err := New([]rpmi.ResetType{rpmi.ResetWarmReboot}, func(rpmi.ResetType) { calls++ })
	require.NoError(t, err)

	svc, _ := g.Service(rpmi.SysResetSystemReset)
	req := rpmi.Message{Header: rpmi.Header{Datalen: 4}, Payload: payload32(uint32(rpmi.ResetColdReboot))}

	_, status, err := svc.Handler(g, req, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusInval, status)
	require.Equal(t, 0, calls)
}
