package rpmi

import "encoding/binary"

// Header is the fixed 8-byte message header (§3, §6):
//
//	byte 0:    flags (low 2 bits = type; bit 3 = doorbell-on-ack)
//	byte 1:    service_id
//	bytes 2-3: servicegroup_id (transport byte order)
//	bytes 4-5: datalen         (transport byte order)
//	bytes 6-7: token           (transport byte order)
type Header struct {
	Flags          uint8
	ServiceID      uint8
	ServiceGroupID uint16
	Datalen        uint16
	Token          uint16
}

// Type returns the message type encoded in the low two bits of Flags.
func (h Header) Type() MessageType {
	return MessageType(h.Flags & FlagsTypeMask)
}

// SetType overwrites the message type bits of Flags, leaving the other
// bits untouched.
func (h *Header) SetType(t MessageType) {
	h.Flags = (h.Flags &^ FlagsTypeMask) | uint8(t)&FlagsTypeMask
}

// Doorbell reports whether the doorbell-on-ack bit is set.
func (h Header) Doorbell() bool {
	return h.Flags&FlagDoorbellOnAck != 0
}

// SetDoorbell sets or clears the doorbell-on-ack bit.
func (h *Header) SetDoorbell(on bool) {
	if on {
		h.Flags |= FlagDoorbellOnAck
	} else {
		h.Flags &^= FlagDoorbellOnAck
	}
}

// byteOrder picks the transport's wire byte order for the header's
// multi-byte fields (§9 Endianness: "the transport carries one flag;
// all multi-byte fields ... are normalized on each boundary crossing").
func byteOrder(be bool) binary.ByteOrder {
	if be {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// ByteOrder is the exported form of byteOrder, used by the dispatcher
// to hand each service handler the transport's configured wire byte
// order (§4.4: "All multi-byte fields in both request and response
// payloads are serialized in the transport's byte order").
func ByteOrder(be bool) binary.ByteOrder {
	return byteOrder(be)
}

// PutHeader serializes h into buf[0:HeaderSize] using the transport
// byte order selected by be. buf must have length >= HeaderSize.
func PutHeader(buf []byte, h Header, be bool) {
	order := byteOrder(be)

	buf[0] = h.Flags
	buf[1] = h.ServiceID
	order.PutUint16(buf[2:4], h.ServiceGroupID)
	order.PutUint16(buf[4:6], h.Datalen)
	order.PutUint16(buf[6:8], h.Token)
}

// GetHeader deserializes a Header from buf[0:HeaderSize] using the
// transport byte order selected by be. buf must have length >=
// HeaderSize.
func GetHeader(buf []byte, be bool) Header {
	order := byteOrder(be)

	return Header{
		Flags:          buf[0],
		ServiceID:      buf[1],
		ServiceGroupID: order.Uint16(buf[2:4]),
		Datalen:        order.Uint16(buf[4:6]),
		Token:          order.Uint16(buf[6:8]),
	}
}

// Message is a header plus its variable-length payload, scratch state
// for the duration of a single dispatch (§3 Lifecycle).
type Message struct {
	Header  Header
	Payload []byte
}

// PutUint32Status writes status as the first 32-bit word of a response
// payload, the convention every service handler uses to report its
// result (§4.4-§4.8, §7: "Handler errors are serialized into the
// response payload's first 32-bit word").
func PutUint32Status(buf []byte, status Status, be bool) {
	byteOrder(be).PutUint32(buf, uint32(int32(status)))
}
