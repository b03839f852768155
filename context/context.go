// RPMI context dispatcher
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package context implements the context/dispatcher (§4.3): it owns a
// transport, a registered set of service groups (including a built-in
// base group), a reusable request/ack buffer pair, and the main pump
// that demultiplexes A2P requests to groups and services and emits
// acknowledgments.
//
// Grounded on soc/imx6/usb's setup-request dispatch (switch on request
// code, synthesize a stall/NOTSUPP response for anything unhandled,
// log.Printf soft failures rather than propagate them) and on
// dma.Region's single up-front construction validation.
package context

import (
	"fmt"
	"sync"

	"github.com/riscv-mgmt/rpmi"
	"github.com/riscv-mgmt/rpmi/transport"
)

// DoorbellInjector is the back-reference the dispatcher uses to ring
// the P2A doorbell MSI when an A2P request carries the doorbell-on-ack
// flag (§4.3 step 7). It is satisfied by the state that sysmsi.New
// stores in the returned group's Private field, without this package
// importing package service/sysmsi (§9 "explicit handle passed
// at construction, not a cyclic owning pointer").
type DoorbellInjector interface {
	InjectP2ADoorbell() error
}

// DoorbellConfigurer lets the base group's (optional) SetMsi service
// configure the system-MSI group's doorbell target without a direct
// import either.
type DoorbellConfigurer interface {
	ConfigureDoorbell(address uint64, data uint32) rpmi.Status
}

// SysMSI is what a registered system-MSI group must implement for the
// dispatcher and the base group to use it.
type SysMSI interface {
	DoorbellInjector
	DoorbellConfigurer
}

// ContextOption configures optional Context behavior at construction.
type ContextOption func(*Context)

// WithLogger overrides the default stdlib logger.
func WithLogger(l Logger) ContextOption {
	return func(c *Context) { c.logger = l }
}

// WithConcurrentEvents enables fanning ProcessAllEvents' per-group
// process_events calls out concurrently (§4.3: "release the
// groups-registry lock around each per-group call"); default is
// sequential, matching the single-threaded-cooperative default model
// of §5.
func WithConcurrentEvents(on bool) ContextOption {
	return func(c *Context) { c.concurrentEvents = on }
}

// WithRegistryLock overrides the registry lock (default sync.Mutex);
// pass transport.NoLock{} for a single-threaded embedder (§5).
func WithRegistryLock(l transport.Locker) ContextOption {
	return func(c *Context) { c.registryLock = l }
}

// Context owns a transport, the registered service groups, and the
// dispatcher's reusable request/ack buffers (§3).
type Context struct {
	name      string
	transport *transport.Transport
	privilege rpmi.Privilege
	maxGroups int

	registryLock transport.Locker
	groups       map[uint16]*Group
	order        []uint16
	baseID       uint16
	sysmsi       SysMSI

	reqBuf []byte
	ackBuf []byte

	logger           Logger
	concurrentEvents bool
}

// New constructs a Context over tr. No groups are registered yet; the
// base group must be registered with RegisterBase immediately after
// (§3 "the base group is always present... owned by the context").
func New(name string, tr *transport.Transport, privilege rpmi.Privilege, maxGroups int, opts ...ContextOption) (*Context, error) {
	if tr == nil {
		return nil, rpmi.NewError("context.New", rpmi.StatusInval, fmt.Errorf("nil transport"))
	}

	if maxGroups <= 0 {
		return nil, rpmi.NewError("context.New", rpmi.StatusInval, fmt.Errorf("maxGroups must be positive"))
	}

	c := &Context{
		name:      name,
		transport: tr,
		privilege: privilege,
		maxGroups: maxGroups,
		groups:    make(map[uint16]*Group, maxGroups),
		reqBuf:    make([]byte, tr.SlotSize()),
		ackBuf:    make([]byte, tr.SlotSize()),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = defaultLogger()
	}

	if c.registryLock == nil {
		c.registryLock = &sync.Mutex{}
	}

	return c, nil
}

// Name returns the context's diagnostic name.
func (c *Context) Name() string {
	return c.name
}

// Transport returns the underlying transport.
func (c *Context) Transport() *transport.Transport {
	return c.transport
}

// Privilege returns the context's declared privilege level (§6,
// satisfies service/base.ContextHandle).
func (c *Context) Privilege() rpmi.Privilege {
	return c.privilege
}

// Register adds group to the context's registry. Registration fails
// with StatusDenied if the group's privilege bitmap excludes the
// context's privilege level (§6), with StatusAlready if the group id
// is already registered, and with StatusOutofres if maxGroups would be
// exceeded.
func (c *Context) Register(g *Group) error {
	if g == nil {
		return rpmi.NewError("context.Register", rpmi.StatusInval, fmt.Errorf("nil group"))
	}

	c.registryLock.Lock()
	defer c.registryLock.Unlock()

	if g.PrivilegeBitmap&c.privilege == 0 {
		return rpmi.NewError("context.Register", rpmi.StatusDenied,
			fmt.Errorf("group %q privilege bitmap %#x excludes context privilege %#x", g.Name, g.PrivilegeBitmap, c.privilege))
	}

	if _, dup := c.groups[g.GroupID]; dup {
		return rpmi.NewError("context.Register", rpmi.StatusAlready, fmt.Errorf("group id %#x already registered", g.GroupID))
	}

	if len(c.groups) >= c.maxGroups {
		return rpmi.NewError("context.Register", rpmi.StatusOutofres, fmt.Errorf("maxGroups %d exceeded", c.maxGroups))
	}

	c.groups[g.GroupID] = g
	c.order = append(c.order, g.GroupID)

	if sysmsi, ok := g.Private.(SysMSI); ok && g.GroupID == rpmi.GroupIDSystemMSI {
		c.sysmsi = sysmsi
	}

	return nil
}

// RegisterBase registers g as the context's base group (§3, §4.4). It
// may be called only once, and the resulting group can never be
// removed with Unregister.
func (c *Context) RegisterBase(g *Group) error {
	if g.GroupID != rpmi.GroupIDBase {
		return rpmi.NewError("context.RegisterBase", rpmi.StatusInval, fmt.Errorf("group id %#x is not the base group id", g.GroupID))
	}

	c.registryLock.Lock()
	if c.baseID != 0 {
		c.registryLock.Unlock()
		return rpmi.NewError("context.RegisterBase", rpmi.StatusAlready, fmt.Errorf("base group already registered"))
	}
	c.registryLock.Unlock()

	if err := c.Register(g); err != nil {
		return err
	}

	c.registryLock.Lock()
	c.baseID = g.GroupID
	c.registryLock.Unlock()

	return nil
}

// Unregister removes a non-base group from the registry (§3
// "must be removed before context destruction").
func (c *Context) Unregister(groupID uint16) error {
	c.registryLock.Lock()
	defer c.registryLock.Unlock()

	if groupID == c.baseID {
		return rpmi.NewError("context.Unregister", rpmi.StatusDenied, fmt.Errorf("base group cannot be unregistered"))
	}

	if _, ok := c.groups[groupID]; !ok {
		return rpmi.NewError("context.Unregister", rpmi.StatusNotfound, fmt.Errorf("group id %#x not registered", groupID))
	}

	delete(c.groups, groupID)

	for i, id := range c.order {
		if id == groupID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	if c.sysmsi != nil && groupID == rpmi.GroupIDSystemMSI {
		c.sysmsi = nil
	}

	return nil
}

// ProbeGroup reports whether a group id is registered and, if so, its
// version (§4.4 ProbeServiceGroup; satisfies service/base.ContextHandle).
func (c *Context) ProbeGroup(id uint16) (version uint32, found bool) {
	c.registryLock.Lock()
	defer c.registryLock.Unlock()

	g, ok := c.groups[id]
	if !ok {
		return 0, false
	}

	return g.Version, true
}

// Attributes returns the context-level attribute flags consumed by
// base.GetAttributes (§4.4): the privilege level plus whether a
// doorbell-capable system-MSI group is registered.
func (c *Context) Attributes() uint32 {
	c.registryLock.Lock()
	hasDoorbell := c.sysmsi != nil
	c.registryLock.Unlock()

	var attrs uint32

	if c.privilege&rpmi.PrivilegeMMode != 0 {
		attrs |= rpmi.AttrPrivilegeMMode
	}

	if hasDoorbell {
		attrs |= rpmi.AttrDoorbellMSI
	}

	return attrs
}

// ConfigureDoorbell forwards to the registered system-MSI group's
// doorbell configuration, or reports StatusNotsupp if none is
// registered (§4.4 SetMsi, §9 doorbell mechanism decision).
func (c *Context) ConfigureDoorbell(address uint64, data uint32) rpmi.Status {
	c.registryLock.Lock()
	sysmsi := c.sysmsi
	c.registryLock.Unlock()

	if sysmsi == nil {
		return rpmi.StatusNotsupp
	}

	return sysmsi.ConfigureDoorbell(address, data)
}

func (c *Context) group(id uint16) (*Group, bool) {
	c.registryLock.Lock()
	defer c.registryLock.Unlock()

	g, ok := c.groups[id]

	return g, ok
}

func (c *Context) groupOrder() []uint16 {
	c.registryLock.Lock()
	defer c.registryLock.Unlock()

	return append([]uint16(nil), c.order...)
}
