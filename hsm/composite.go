package hsm

import (
	"fmt"

	"github.com/riscv-mgmt/rpmi"
)

// Composite is an HSM instance forwarding to an ordered array of child
// HSM instances (§3, §4.6, §8 property 8): hart count is the sum of the
// children's hart counts, and a hart index maps into the single child
// owning it by running offset.
type Composite struct {
	children []HSM
	offsets  []int
	total    int
	owner    map[uint32]HSM
	suspend  []SuspendType
}

// NewComposite builds a composite HSM over children, in order.
// Construction validates that every child reports the same
// suspend-type count and that each suspend type matches child 0's
// across {type, flags, entry_latency, exit_latency, wakeup_latency,
// min_residency}; a mismatch fails construction (§4.6).
func NewComposite(children []HSM) (*Composite, error) {
	if len(children) == 0 {
		return nil, rpmi.NewError("hsm.NewComposite", rpmi.StatusInval, fmt.Errorf("at least one child required"))
	}

	want := children[0].SuspendTypes()

	for i, c := range children {
		got := c.SuspendTypes()

		if len(got) != len(want) {
			return nil, rpmi.NewError("hsm.NewComposite", rpmi.StatusInval,
				fmt.Errorf("child %d suspend type count %d != child 0 count %d", i, len(got), len(want)))
		}

		for j := range want {
			if !got[j].Equal(want[j]) {
				return nil, rpmi.NewError("hsm.NewComposite", rpmi.StatusInval,
					fmt.Errorf("child %d suspend type %d does not match child 0", i, j))
			}
		}
	}

	comp := &Composite{
		children: children,
		offsets:  make([]int, len(children)),
		owner:    make(map[uint32]HSM),
		suspend:  want,
	}

	offset := 0

	for i, c := range children {
		comp.offsets[i] = offset
		n := c.HartCount()

		for idx := 0; idx < n; idx++ {
			id, status := c.IndexToID(idx)
			if status != rpmi.StatusSuccess {
				continue
			}

			if _, dup := comp.owner[id]; dup {
				return nil, rpmi.NewError("hsm.NewComposite", rpmi.StatusInval,
					fmt.Errorf("hart id %d owned by more than one child", id))
			}

			comp.owner[id] = c
		}

		offset += n
	}

	comp.total = offset

	return comp, nil
}

func (c *Composite) HartCount() int {
	return c.total
}

func (c *Composite) childFor(index int) (HSM, int, rpmi.Status) {
	if index < 0 || index >= c.total {
		return nil, 0, rpmi.StatusInval
	}

	for i := len(c.children) - 1; i >= 0; i-- {
		if index >= c.offsets[i] {
			return c.children[i], c.offsets[i], rpmi.StatusSuccess
		}
	}

	return nil, 0, rpmi.StatusInval
}

func (c *Composite) IndexToID(index int) (uint32, rpmi.Status) {
	child, offset, status := c.childFor(index)
	if status != rpmi.StatusSuccess {
		return 0, status
	}

	return child.IndexToID(index - offset)
}

func (c *Composite) IDToIndex(id uint32) (int, rpmi.Status) {
	for i, child := range c.children {
		if _, ok := c.owner[id]; !ok {
			continue
		}

		if c.owner[id] != child {
			continue
		}

		local, status := child.IDToIndex(id)
		if status != rpmi.StatusSuccess {
			return 0, status
		}

		return c.offsets[i] + local, rpmi.StatusSuccess
	}

	return 0, rpmi.StatusInval
}

func (c *Composite) SuspendTypes() []SuspendType {
	return c.suspend
}

func (c *Composite) Start(id uint32, entryAddr uint64) (rpmi.Status, error) {
	child, ok := c.owner[id]
	if !ok {
		return rpmi.StatusInval, nil
	}

	return child.Start(id, entryAddr)
}

func (c *Composite) Stop(id uint32) (rpmi.Status, error) {
	child, ok := c.owner[id]
	if !ok {
		return rpmi.StatusInval, nil
	}

	return child.Stop(id)
}

func (c *Composite) Suspend(id uint32, suspendType uint32, resumeAddr uint64) (rpmi.Status, error) {
	child, ok := c.owner[id]
	if !ok {
		return rpmi.StatusInval, nil
	}

	return child.Suspend(id, suspendType, resumeAddr)
}

func (c *Composite) GetState(id uint32) (State, rpmi.Status) {
	child, ok := c.owner[id]
	if !ok {
		return StateUninit, rpmi.StatusInval
	}

	return child.GetState(id)
}

func (c *Composite) ProcessStateChanges() error {
	var firstErr error

	for _, child := range c.children {
		if err := child.ProcessStateChanges(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
