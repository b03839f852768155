package rpmi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderTypeAndDoorbellBits(t *testing.T) {
	var h Header

	h.SetType(MessagePostedRequest)
	require.Equal(t, MessagePostedRequest, h.Type())

	h.SetDoorbell(true)
	require.True(t, h.Doorbell())
	require.Equal(t, MessagePostedRequest, h.Type())

	h.SetType(MessageAck)
	require.Equal(t, MessageAck, h.Type())
	require.True(t, h.Doorbell())

	h.SetDoorbell(false)
	require.False(t, h.Doorbell())
}

func TestPutGetHeaderRoundtripLittleEndian(t *testing.T) {
	h := Header{ServiceID: 0x05, ServiceGroupID: 0x0100, Datalen: 12, Token: 0xbeef}
	h.SetType(MessageNormalRequest)

	buf := make([]byte, HeaderSize)
	PutHeader(buf, h, false)

	got := GetHeader(buf, false)
	require.Equal(t, h, got)
}

func TestPutGetHeaderRoundtripBigEndian(t *testing.T) {
	h := Header{ServiceID: 0x05, ServiceGroupID: 0x0100, Datalen: 12, Token: 0xbeef}
	h.SetType(MessagePostedRequest)

	buf := make([]byte, HeaderSize)
	PutHeader(buf, h, true)

	got := GetHeader(buf, true)
	require.Equal(t, h, got)

	// Confirm big-endian actually changes the wire bytes vs little-endian.
	littleBuf := make([]byte, HeaderSize)
	PutHeader(littleBuf, h, false)
	require.NotEqual(t, buf, littleBuf)
}

func TestPutUint32Status(t *testing.T) {
	buf := make([]byte, 4)
	PutUint32Status(buf, StatusAlready, false)
	require.Equal(t, []byte{0xf4, 0xff, 0xff, 0xff}, buf)
}
