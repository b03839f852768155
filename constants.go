package rpmi

// MessageType is the low two bits of the header flags byte (§3, §6).
type MessageType uint8

const (
	MessageNormalRequest MessageType = 0
	MessagePostedRequest MessageType = 1
	MessageAck           MessageType = 2
	MessageNotification  MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case MessageNormalRequest:
		return "NORMAL_REQUEST"
	case MessagePostedRequest:
		return "POSTED_REQUEST"
	case MessageAck:
		return "ACK"
	case MessageNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// Flag bits within the header flags byte (§3).
const (
	FlagsTypeMask    = 0x03
	FlagDoorbellOnAck = 1 << 3
)

// QueueType identifies one of the four logical FIFOs a transport may
// carry (§6).
type QueueType int

const (
	QueueA2PRequest QueueType = iota
	QueueP2AAck
	QueueP2ARequest
	QueueA2PAck
)

func (q QueueType) String() string {
	switch q {
	case QueueA2PRequest:
		return "A2P-REQ"
	case QueueP2AAck:
		return "P2A-ACK"
	case QueueP2ARequest:
		return "P2A-REQ"
	case QueueA2PAck:
		return "A2P-ACK"
	default:
		return "UNKNOWN"
	}
}

// Privilege is the execution privilege level a context (or a service
// group's allowed set) is declared at (§6).
type Privilege uint32

const (
	PrivilegeSMode Privilege = 1 << iota
	PrivilegeMMode
)

// ResetType enumerates the system-reset types named in §6. Platform
// implementations may register additional, platform-specific types.
type ResetType uint32

const (
	ResetShutdown    ResetType = 0
	ResetColdReboot  ResetType = 1
	ResetWarmReboot  ResetType = 2
)

// Well-known service group ids (§6). Probing an id not in this list, or
// not registered with a given context, is not an error: ProbeServiceGroup
// returns version 0.
const (
	GroupIDBase          uint16 = 0x0001
	GroupIDSystemReset   uint16 = 0x0002
	GroupIDSystemSuspend uint16 = 0x0003
	GroupIDHSM           uint16 = 0x0004
	GroupIDCPPC          uint16 = 0x0005
	GroupIDVoltage       uint16 = 0x0006
	GroupIDClock         uint16 = 0x0007
	GroupIDPerformance   uint16 = 0x0008
	GroupIDDevicePower   uint16 = 0x0009
	GroupIDSystemMSI     uint16 = 0x000a
	GroupIDMM            uint16 = 0x000b
)

// Base service group service ids (§4.4, §6).
const (
	BaseEnableNotification     uint8 = 0x01
	BaseGetImplementationVersion uint8 = 0x02
	BaseGetImplementationIdn   uint8 = 0x03
	BaseGetSpecVersion         uint8 = 0x04
	BaseGetPlatformInfo        uint8 = 0x05
	BaseGetHwInfo              uint8 = 0x06
	BaseProbeServiceGroup      uint8 = 0x07
	BaseGetAttributes          uint8 = 0x08
	BaseSetMsi                 uint8 = 0x09
)

// System reset service group service ids (§4.5).
const (
	SysResetGetAttributes uint8 = 0x01
	SysResetSystemReset   uint8 = 0x02
)

// HSM service group service ids (§4.7).
const (
	HSMEnableNotification uint8 = 0x01
	HSMHartStart          uint8 = 0x02
	HSMHartStop           uint8 = 0x03
	HSMHartSuspend        uint8 = 0x04
	HSMGetHartStatus      uint8 = 0x05
	HSMGetHartList        uint8 = 0x06
	HSMGetSuspendTypes    uint8 = 0x07
	HSMGetSuspendInfo     uint8 = 0x08
)

// System MSI service group service ids (§4.8).
const (
	SysMSIGetNumMSI   uint8 = 0x01
	SysMSIGetAttrs    uint8 = 0x02
	SysMSISetState    uint8 = 0x03
	SysMSIGetState    uint8 = 0x04
	SysMSISetTarget   uint8 = 0x05
	SysMSIGetTarget   uint8 = 0x06
)

// Wire/layout constants (§4.2, §6).
const (
	// MinSlotSize is the smallest permitted slot size; slot sizes must
	// additionally be a power of two.
	MinSlotSize = 64
	// MinQueueSlots is the smallest permitted queue capacity in slots,
	// including the two header slots.
	MinQueueSlots = 16
	// HeaderSize is the fixed wire size, in bytes, of a message header.
	HeaderSize = 8
	// queueHeaderSlots is the number of slots at the front of every
	// queue region reserved for the head/tail indices (§3, §4.2).
	queueHeaderSlots = 2
)

// This library's own implementation/spec version numbers (§4.4).
const (
	ImplementationVersionMajor = 1
	ImplementationVersionMinor = 0
	ImplementationID           = 1

	SpecVersionMajor = 1
	SpecVersionMinor = 0
)

// Attribute flag bits returned by base GetAttributes (§4.4).
const (
	AttrPrivilegeMMode    uint32 = 1 << 0
	AttrDoorbellMSI       uint32 = 1 << 1
)
