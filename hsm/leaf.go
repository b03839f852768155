package hsm

import (
	"fmt"
	"sync"

	"github.com/riscv-mgmt/rpmi"
)

type hart struct {
	mu          sync.Mutex
	state       State
	startAddr   uint64
	suspendType uint32
	resumeAddr  uint64
}

// Leaf is a concrete HSM instance owning a hart-id table, the
// corresponding per-hart records, a suspend-type table and the
// platform callbacks that drive hardware (§3, §4.6).
type Leaf struct {
	ids          []uint32
	index        map[uint32]int
	harts        []*hart
	suspendTypes []SuspendType
	cb           Callbacks
}

// NewLeaf constructs a leaf HSM instance for the given hart ids. Every
// hart starts in StateUninit ("not yet polled from hardware", §3);
// ProcessStateChanges performs the first poll.
func NewLeaf(hartIDs []uint32, suspendTypes []SuspendType, cb Callbacks) (*Leaf, error) {
	if len(hartIDs) == 0 {
		return nil, rpmi.NewError("hsm.NewLeaf", rpmi.StatusInval, fmt.Errorf("at least one hart id required"))
	}

	l := &Leaf{
		ids:          append([]uint32(nil), hartIDs...),
		index:        make(map[uint32]int, len(hartIDs)),
		harts:        make([]*hart, len(hartIDs)),
		suspendTypes: append([]SuspendType(nil), suspendTypes...),
		cb:           cb,
	}

	for i, id := range l.ids {
		if _, dup := l.index[id]; dup {
			return nil, rpmi.NewError("hsm.NewLeaf", rpmi.StatusInval, fmt.Errorf("duplicate hart id %d", id))
		}

		l.index[id] = i
		l.harts[i] = &hart{state: StateUninit}
	}

	return l, nil
}

func (l *Leaf) HartCount() int {
	return len(l.ids)
}

func (l *Leaf) IndexToID(index int) (uint32, rpmi.Status) {
	if index < 0 || index >= len(l.ids) {
		return 0, rpmi.StatusInval
	}

	return l.ids[index], rpmi.StatusSuccess
}

func (l *Leaf) IDToIndex(id uint32) (int, rpmi.Status) {
	idx, ok := l.index[id]
	if !ok {
		return 0, rpmi.StatusInval
	}

	return idx, rpmi.StatusSuccess
}

func (l *Leaf) SuspendTypes() []SuspendType {
	return l.suspendTypes
}

func (l *Leaf) hartByID(id uint32) (*hart, rpmi.Status) {
	idx, ok := l.index[id]
	if !ok {
		return nil, rpmi.StatusInval
	}

	return l.harts[idx], rpmi.StatusSuccess
}

func (l *Leaf) GetState(id uint32) (State, rpmi.Status) {
	h, status := l.hartByID(id)
	if status != rpmi.StatusSuccess {
		return StateUninit, status
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state, rpmi.StatusSuccess
}

// Start implements §4.6: allowed only from STOPPED.
func (l *Leaf) Start(id uint32, entryAddr uint64) (rpmi.Status, error) {
	h, status := l.hartByID(id)
	if status != rpmi.StatusSuccess {
		return status, nil
	}

	if l.cb.HartStartPrepare == nil || l.cb.HartGetHwState == nil {
		return rpmi.StatusNotsupp, nil
	}

	h.mu.Lock()

	switch h.state {
	case StateStopped:
		// allowed, fall through below
	case StateStarted, StateStartPending:
		h.mu.Unlock()
		return rpmi.StatusAlready, nil
	default:
		h.mu.Unlock()
		return rpmi.StatusDenied, nil
	}

	if err := l.cb.HartStartPrepare(id, entryAddr); err != nil {
		h.mu.Unlock()
		return rpmi.StatusFailed, err
	}

	h.startAddr = entryAddr
	h.state = StateStartPending
	h.mu.Unlock()

	l.pollHart(id, h)

	return rpmi.StatusSuccess, nil
}

// Stop implements §4.6: allowed only from STARTED.
func (l *Leaf) Stop(id uint32) (rpmi.Status, error) {
	h, status := l.hartByID(id)
	if status != rpmi.StatusSuccess {
		return status, nil
	}

	if l.cb.HartStopPrepare == nil || l.cb.HartGetHwState == nil {
		return rpmi.StatusNotsupp, nil
	}

	h.mu.Lock()

	switch h.state {
	case StateStarted:
		// allowed
	case StateStopped, StateStopPending:
		h.mu.Unlock()
		return rpmi.StatusAlready, nil
	default:
		h.mu.Unlock()
		return rpmi.StatusDenied, nil
	}

	if err := l.cb.HartStopPrepare(id); err != nil {
		h.mu.Unlock()
		return rpmi.StatusFailed, err
	}

	h.state = StateStopPending
	h.mu.Unlock()

	l.pollHart(id, h)

	return rpmi.StatusSuccess, nil
}

// Suspend implements §4.6: allowed only from STARTED.
func (l *Leaf) Suspend(id uint32, suspendType uint32, resumeAddr uint64) (rpmi.Status, error) {
	h, status := l.hartByID(id)
	if status != rpmi.StatusSuccess {
		return status, nil
	}

	if l.cb.HartSuspendPrepare == nil || l.cb.HartGetHwState == nil {
		return rpmi.StatusNotsupp, nil
	}

	h.mu.Lock()

	switch h.state {
	case StateStarted:
		// allowed
	case StateSuspended, StateSuspendPending:
		h.mu.Unlock()
		return rpmi.StatusAlready, nil
	default:
		h.mu.Unlock()
		return rpmi.StatusDenied, nil
	}

	if err := l.cb.HartSuspendPrepare(id, suspendType, resumeAddr); err != nil {
		h.mu.Unlock()
		return rpmi.StatusFailed, err
	}

	h.suspendType = suspendType
	h.resumeAddr = resumeAddr
	h.state = StateSuspendPending
	h.mu.Unlock()

	l.pollHart(id, h)

	return rpmi.StatusSuccess, nil
}

// ProcessStateChanges polls every hart's hardware state and advances
// the state machine per §4.6's transition table.
func (l *Leaf) ProcessStateChanges() error {
	if l.cb.HartGetHwState == nil {
		return nil
	}

	for i, id := range l.ids {
		l.pollHart(id, l.harts[i])
	}

	return nil
}

// pollHart polls hardware state for a single hart and applies the
// transition table under that hart's lock, invoking the platform
// callbacks with the lock held (§5: "platform callbacks are invoked
// with the per-hart lock held, as documented").
func (l *Leaf) pollHart(id uint32, h *hart) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hw, err := l.cb.HartGetHwState(id)
	if err != nil {
		return
	}

	switch h.state {
	case StateUninit:
		h.state = hwStateToState(hw)
	case StateStartPending:
		if hw == HwStarted {
			h.state = StateStarted

			if l.cb.HartStartFinalize != nil {
				l.cb.HartStartFinalize(id)
			}
		}
	case StateStopPending:
		if hw == HwStopped || hw == HwSuspended {
			h.state = StateStopped

			if l.cb.HartStopFinalize != nil {
				l.cb.HartStopFinalize(id)
			}
		}
	case StateSuspendPending:
		if hw == HwSuspended {
			h.state = StateSuspended

			if l.cb.HartSuspendFinalize != nil {
				l.cb.HartSuspendFinalize(id)
			}
		}
	case StateSuspended:
		if hw == HwStarted {
			h.state = StateStarted
		}
	}
}
