// Hart State Manager core
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hsm implements the hart state machine core (§4.6): a per-hart
// state machine with pending and terminal states that polls platform
// hardware state to finalize transitions, exposed either directly (a
// leaf instance owning a hart table and platform callbacks) or composed
// of child instances (a composite forwarding by hart-index offset).
//
// Grounded structurally on the teacher pack's per-resource,
// mutex-guarded state tracking (soc/imx6/usb's per-endpoint state) and
// on the poll/dispatch/log loop shape of soc/imx6/usb's
// endpointHandler; the RISC-V hart vocabulary itself comes from
// riscv64.CPU's machine/supervisor-mode split, generalized here from one
// core to an arbitrary hart table.
package hsm

import (
	"fmt"

	"github.com/riscv-mgmt/rpmi"
)

// State is a hart's cached lifecycle state (§3, §4.6).
type State int32

const (
	StateUninit         State = -1
	StateStarted        State = 0
	StateStopped        State = 1
	StateSuspended      State = 2
	StateStartPending   State = 3
	StateStopPending    State = 4
	StateSuspendPending State = 5
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "UNINIT"
	case StateStarted:
		return "STARTED"
	case StateStopped:
		return "STOPPED"
	case StateSuspended:
		return "SUSPENDED"
	case StateStartPending:
		return "START_PENDING"
	case StateStopPending:
		return "STOP_PENDING"
	case StateSuspendPending:
		return "SUSPEND_PENDING"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// HwState is the hardware-reported state a platform callback returns
// when polled (§4.6 table).
type HwState int

const (
	HwStarted HwState = iota
	HwStopped
	HwSuspended
)

// SuspendType describes one hart suspend mode (§4.6, §4.7
// GetSuspendInfo). Composite construction requires every child to
// report the same suspend types, matched field-by-field against child
// 0 (§3, §4.6).
type SuspendType struct {
	Type           uint32
	Flags          uint32
	EntryLatency   uint32
	ExitLatency    uint32
	WakeupLatency  uint32
	MinResidency   uint32
}

// Equal reports whether two suspend type descriptors match on every
// field the composite-construction check compares (§4.6).
func (s SuspendType) Equal(o SuspendType) bool {
	return s.Type == o.Type &&
		s.Flags == o.Flags &&
		s.EntryLatency == o.EntryLatency &&
		s.ExitLatency == o.ExitLatency &&
		s.WakeupLatency == o.WakeupLatency &&
		s.MinResidency == o.MinResidency
}

// Callbacks are the platform-supplied hardware driver hooks a leaf HSM
// instance invokes (§1 "out of scope... platform driver callbacks";
// §4.6). Each is independently optional: invoking an operation whose
// required callback is nil reports rpmi.StatusNotsupp rather than
// panicking, matching §4.6 "missing required platform callback ⇒
// NOTSUPP".
//
// Finalize callbacks fire exactly once, when a hardware poll moves a
// hart out of the corresponding pending state into its terminal state;
// that poll is either ProcessStateChanges or the immediate poll that
// Start, Stop and Suspend make after a successful prepare (§4.6, §8
// property 7).
type Callbacks struct {
	HartStartPrepare     func(hartID uint32, startAddr uint64) error
	HartStopPrepare      func(hartID uint32) error
	HartSuspendPrepare   func(hartID uint32, suspendType uint32, resumeAddr uint64) error
	HartGetHwState       func(hartID uint32) (HwState, error)
	HartStartFinalize    func(hartID uint32)
	HartStopFinalize     func(hartID uint32)
	HartSuspendFinalize  func(hartID uint32)
}

// HSM is the abstract hart state manager every operation dispatches
// against, regardless of whether the concrete instance is a Leaf or a
// Composite (§4.6, §9 "leaf/composite duality").
type HSM interface {
	// HartCount returns the number of harts managed by this instance.
	HartCount() int
	// IndexToID maps a library-assigned hart index to its
	// platform-assigned hart id.
	IndexToID(index int) (uint32, rpmi.Status)
	// IDToIndex maps a hart id back to its index.
	IDToIndex(id uint32) (int, rpmi.Status)
	// Start requests hart id transition from STOPPED to STARTED at
	// entry_addr.
	Start(id uint32, entryAddr uint64) (rpmi.Status, error)
	// Stop requests hart id transition from STARTED to STOPPED.
	Stop(id uint32) (rpmi.Status, error)
	// Suspend requests hart id transition from STARTED to SUSPENDED.
	Suspend(id uint32, suspendType uint32, resumeAddr uint64) (rpmi.Status, error)
	// GetState returns the cached state of hart id.
	GetState(id uint32) (State, rpmi.Status)
	// SuspendTypes returns the suspend types supported by this
	// instance (identical across every leaf of a composite, §4.6).
	SuspendTypes() []SuspendType
	// ProcessStateChanges polls every managed hart's hardware state
	// and advances its cached state per the transition table in §4.6.
	ProcessStateChanges() error
}

func hwStateToState(hw HwState) State {
	switch hw {
	case HwStarted:
		return StateStarted
	case HwStopped:
		return StateStopped
	case HwSuspended:
		return StateSuspended
	default:
		return StateUninit
	}
}
