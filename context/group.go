package context

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/riscv-mgmt/rpmi"
	"github.com/riscv-mgmt/rpmi/transport"
)

// ServiceHandler implements one service's request processing (§3, §9
// "model a service as a value carrying a function pointer or a
// closure plus metadata; avoid classical inheritance"). It is invoked
// with the owning group's lock held (§5) and only when the request's
// datalen meets the service's minimum (§3, §4.3 step 5). order is the
// transport's configured wire byte order (§4.4): every multi-byte
// field the handler reads from req.Payload or writes into ackData must
// go through it, not a hardcoded endianness.
type ServiceHandler func(g *Group, req rpmi.Message, order binary.ByteOrder) (ackData []byte, status rpmi.Status, err error)

// Service is a single addressable operation inside a group (§3).
type Service struct {
	ID                uint8
	MinRequestDatalen uint16
	Handler           ServiceHandler
}

// ProcessEventsFunc advances a group's internal state machines by
// polling platform hardware (§3, §4.3); it must never block
// indefinitely (§4.3 invariant).
type ProcessEventsFunc func() error

// Group is a named collection of related services, identified by a
// 16-bit group id (§3, §9 "model a group as a tagged record with an
// optional event-processing operation, not a class hierarchy").
type Group struct {
	Name            string
	GroupID         uint16
	Version         uint32
	PrivilegeBitmap rpmi.Privilege
	MaxServiceID    uint8

	services      map[uint8]*Service
	processEvents ProcessEventsFunc
	lock          transport.Locker

	// Private is scratch storage for the group implementation's own
	// state (e.g. the HSM core instance, or the system-MSI descriptor
	// table), set at construction by the group's factory.
	Private any
}

// NewGroup constructs a Group. lock defaults to a private sync.Mutex if
// nil; two services with the same ID are rejected.
func NewGroup(name string, groupID uint16, version uint32, privilege rpmi.Privilege, maxServiceID uint8, services []*Service, processEvents ProcessEventsFunc, lock transport.Locker, private any) (*Group, error) {
	if lock == nil {
		lock = &sync.Mutex{}
	}

	g := &Group{
		Name:            name,
		GroupID:         groupID,
		Version:         version,
		PrivilegeBitmap: privilege,
		MaxServiceID:    maxServiceID,
		services:        make(map[uint8]*Service, len(services)),
		processEvents:   processEvents,
		lock:            lock,
		Private:         private,
	}

	for _, s := range services {
		if s == nil {
			continue
		}

		if _, dup := g.services[s.ID]; dup {
			return nil, rpmi.NewError("context.NewGroup", rpmi.StatusInval,
				fmt.Errorf("duplicate service id %d in group %q", s.ID, name))
		}

		g.services[s.ID] = s
	}

	return g, nil
}

// Service looks up a service by id, returning ok=false if it does not
// exist (§4.3 step 5: treated identically to an existing-but-unhandled
// service — both fall back to the NOTSUPP response).
func (g *Group) Service(id uint8) (*Service, bool) {
	s, ok := g.services[id]
	return s, ok
}

// Lock/Unlock expose the group's lock to callers that need to hold it
// across more than one Group method call (e.g. a service handler that
// reads Private state alongside calling another method).
func (g *Group) Lock()   { g.lock.Lock() }
func (g *Group) Unlock() { g.lock.Unlock() }

// HasEvents reports whether this group advances internal state via
// ProcessEvents.
func (g *Group) HasEvents() bool {
	return g.processEvents != nil
}
