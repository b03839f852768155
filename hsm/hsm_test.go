package hsm

import (
	"testing"

	"github.com/riscv-mgmt/rpmi"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	hw map[uint32]HwState
}

func newFakePlatform(ids []uint32, initial HwState) *fakePlatform {
	hw := make(map[uint32]HwState, len(ids))
	for _, id := range ids {
		hw[id] = initial
	}

	return &fakePlatform{hw: hw}
}

func (f *fakePlatform) callbacks() Callbacks {
	return Callbacks{
		HartStartPrepare:   func(id uint32, addr uint64) error { return nil },
		HartStopPrepare:    func(id uint32) error { return nil },
		HartSuspendPrepare: func(id uint32, t uint32, addr uint64) error { return nil },
		HartGetHwState: func(id uint32) (HwState, error) {
			return f.hw[id], nil
		},
	}
}

func TestLeafStartFromStopped(t *testing.T) {
	ids := []uint32{0, 1, 2, 3}
	p := newFakePlatform(ids, HwStopped)

	l, err := NewLeaf(ids, nil, p.callbacks())
	require.NoError(t, err)

	require.NoError(t, l.ProcessStateChanges())

	st, status := l.GetState(0)
	require.Equal(t, rpmi.StatusSuccess, status)
	require.Equal(t, StateStopped, st)

	p.hw[0] = HwStarted
	status2, err := l.Start(0, 0x1000)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusSuccess, status2)

	st, _ = l.GetState(0)
	require.Equal(t, StateStarted, st)
}

// TestHartStartAlreadyStarted implements S4: HartStart on hart 0 already
// STARTED returns ALREADY.
func TestHartStartAlreadyStarted(t *testing.T) {
	ids := []uint32{0}
	p := newFakePlatform(ids, HwStarted)

	l, err := NewLeaf(ids, nil, p.callbacks())
	require.NoError(t, err)
	require.NoError(t, l.ProcessStateChanges())

	status, err := l.Start(0, 0)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusAlready, status)
}

// TestHartStopThenStopAlready implements S5: HartStop then HartStop on
// hart 0 (hw reports STOPPED after first) -> SUCCESS then ALREADY.
func TestHartStopThenStopAlready(t *testing.T) {
	ids := []uint32{0}
	p := newFakePlatform(ids, HwStarted)

	l, err := NewLeaf(ids, nil, p.callbacks())
	require.NoError(t, err)
	require.NoError(t, l.ProcessStateChanges())

	p.hw[0] = HwStopped

	status, err := l.Stop(0)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusSuccess, status)

	st, _ := l.GetState(0)
	require.Equal(t, StateStopped, st)

	status, err = l.Stop(0)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusAlready, status)
}

func TestHartStartDeniedFromSuspended(t *testing.T) {
	ids := []uint32{0}
	p := newFakePlatform(ids, HwSuspended)

	l, err := NewLeaf(ids, nil, p.callbacks())
	require.NoError(t, err)
	require.NoError(t, l.ProcessStateChanges())

	status, err := l.Start(0, 0)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusDenied, status)
}

func TestMissingCallbackIsNotsupp(t *testing.T) {
	ids := []uint32{0}
	l, err := NewLeaf(ids, nil, Callbacks{})
	require.NoError(t, err)

	status, err := l.Start(0, 0)
	require.NoError(t, err)
	require.Equal(t, rpmi.StatusNotsupp, status)
}

func TestUnknownHartIDIsInval(t *testing.T) {
	l, err := NewLeaf([]uint32{0, 1}, nil, Callbacks{})
	require.NoError(t, err)

	_, status := l.GetState(42)
	require.Equal(t, rpmi.StatusInval, status)
}

func suspendTypes() []SuspendType {
	return []SuspendType{{Type: 0, Flags: 0, EntryLatency: 1, ExitLatency: 1, WakeupLatency: 1, MinResidency: 1}}
}

// TestCompositeHartCountAndIndexMapping implements §8 property 8.
func TestCompositeHartCountAndIndexMapping(t *testing.T) {
	p0 := newFakePlatform([]uint32{0, 1}, HwStopped)
	p1 := newFakePlatform([]uint32{10, 11, 12}, HwStopped)

	child0, err := NewLeaf([]uint32{0, 1}, suspendTypes(), p0.callbacks())
	require.NoError(t, err)

	child1, err := NewLeaf([]uint32{10, 11, 12}, suspendTypes(), p1.callbacks())
	require.NoError(t, err)

	comp, err := NewComposite([]HSM{child0, child1})
	require.NoError(t, err)

	require.Equal(t, 5, comp.HartCount())

	for i := 0; i < 2; i++ {
		id, status := comp.IndexToID(i)
		require.Equal(t, rpmi.StatusSuccess, status)

		wantID, _ := child0.IndexToID(i)
		require.Equal(t, wantID, id)
	}

	for i := 0; i < 3; i++ {
		id, status := comp.IndexToID(2 + i)
		require.Equal(t, rpmi.StatusSuccess, status)

		wantID, _ := child1.IndexToID(i)
		require.Equal(t, wantID, id)
	}

	idx, status := comp.IDToIndex(12)
	require.Equal(t, rpmi.StatusSuccess, status)
	require.Equal(t, 4, idx)
}

func TestCompositeRejectsMismatchedSuspendTypes(t *testing.T) {
	p0 := newFakePlatform([]uint32{0}, HwStopped)
	p1 := newFakePlatform([]uint32{1}, HwStopped)

	child0, err := NewLeaf([]uint32{0}, suspendTypes(), p0.callbacks())
	require.NoError(t, err)

	mismatched := []SuspendType{{Type: 1}}
	child1, err := NewLeaf([]uint32{1}, mismatched, p1.callbacks())
	require.NoError(t, err)

	_, err = NewComposite([]HSM{child0, child1})
	require.Error(t, err)
}
