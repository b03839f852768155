package context

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/riscv-mgmt/rpmi"
	"github.com/riscv-mgmt/rpmi/transport"
)

// busyRetryLimit paces the retry-forever-on-BUSY ack enqueue (§4.3 step
// 6) so a stuck P2A-ACK queue cannot spin a hosted goroutine at full
// CPU; the C original never needs this since it runs with no
// scheduler to protect, but a Go build calling ProcessA2PRequest from a
// regular OS thread does.
var busyRetryLimit = rate.NewLimiter(rate.Limit(1000), 1)

func statusOf(err error) (rpmi.Status, bool) {
	var e *rpmi.Error
	if errors.As(err, &e) {
		return e.Status, true
	}

	return 0, false
}

// ProcessA2PRequest drains A2P-REQ until empty, dispatching each
// request to its group/service and acknowledging onto P2A-ACK as
// required (§4.3).
func (c *Context) ProcessA2PRequest() error {
	for {
		msg, err := c.transport.Dequeue(transport.QueueA2PRequest)
		if err != nil {
			if status, ok := statusOf(err); ok && status == rpmi.StatusBusy {
				return nil
			}

			return err
		}

		c.dispatchOne(msg)
	}
}

func (c *Context) dispatchOne(req rpmi.Message) {
	mtype := req.Header.Type()

	if mtype == rpmi.MessageAck || mtype == rpmi.MessageNotification {
		c.logger.Printf("dropping invalid message type %s on A2P-REQ from group %#x service %d", mtype, req.Header.ServiceGroupID, req.Header.ServiceID)
		return
	}

	// An unknown servicegroup_id is dropped outright: no ack is built
	// or enqueued, and no doorbell rings (§4.3 step 1, §8 invariant 5).
	// NOTSUPP stays reserved for a known group with an unhandled
	// service_id.
	g, ok := c.group(req.Header.ServiceGroupID)
	if !ok {
		c.logger.Printf("dropping request for unknown group %#x", req.Header.ServiceGroupID)
		return
	}

	ackData := c.handle(g, req)

	// The doorbell fires once per emitted ack (§8 invariant 10), so a
	// POSTED_REQUEST — which is processed but never acknowledged — must
	// never ring it even if the doorbell-on-ack bit is set.
	if mtype == rpmi.MessageNormalRequest {
		ack := rpmi.Header{
			ServiceID:      req.Header.ServiceID,
			ServiceGroupID: req.Header.ServiceGroupID,
			Token:          req.Header.Token,
			Datalen:        uint16(len(ackData)),
		}
		ack.SetType(rpmi.MessageAck)
		c.enqueueAck(rpmi.Message{Header: ack, Payload: ackData})

		if req.Header.Doorbell() {
			c.ringDoorbell()
		}
	}
}

// handle resolves the service by id, bounds-checked against
// max_service_id (§4.3 step 2), then invokes its matching handler under
// g's lock (§4.3 step 5), returning the ack payload. An out-of-range,
// unknown, or handler-less service, or a too-short request, falls back
// to the synthesized NOTSUPP response. The handler is given the
// transport's configured wire byte order so its payload words match
// the transport regardless of whether it was built little- or
// big-endian (§4.4).
func (c *Context) handle(g *Group, req rpmi.Message) []byte {
	be := c.transport.BigEndian()

	g.Lock()
	defer g.Unlock()

	if req.Header.ServiceID > g.MaxServiceID {
		return notsuppPayload(be)
	}

	svc, ok := g.Service(req.Header.ServiceID)
	if !ok || svc.Handler == nil || req.Header.Datalen < svc.MinRequestDatalen {
		return notsuppPayload(be)
	}

	data, _, err := svc.Handler(g, req, rpmi.ByteOrder(be))
	if err != nil {
		c.logger.Printf("group %q service %d handler error: %v", g.Name, svc.ID, err)
		return notsuppPayload(be)
	}

	return data
}

func notsuppPayload(bigEndian bool) []byte {
	buf := make([]byte, 4)
	rpmi.PutUint32Status(buf, rpmi.StatusNotsupp, bigEndian)

	return buf
}

// enqueueAck places ack onto P2A-ACK, retrying indefinitely while the
// enqueue reports BUSY (queue full) or COMMS (shared-memory write
// failure) (§4.3 step 6); any other error is logged and dropped.
func (c *Context) enqueueAck(ack rpmi.Message) {
	for {
		err := c.transport.Enqueue(transport.QueueP2AAck, ack)
		if err == nil {
			return
		}

		status, ok := statusOf(err)
		if !ok {
			c.logger.Printf("p2a-ack enqueue error: %v", err)
			return
		}

		switch status {
		case rpmi.StatusBusy, rpmi.StatusComms:
			_ = busyRetryLimit.Wait(context.Background())
			continue
		default:
			c.logger.Printf("p2a-ack enqueue error: %v", err)
			return
		}
	}
}

func (c *Context) ringDoorbell() {
	c.registryLock.Lock()
	sysmsi := c.sysmsi
	c.registryLock.Unlock()

	if sysmsi == nil {
		return
	}

	if err := sysmsi.InjectP2ADoorbell(); err != nil {
		c.logger.Printf("doorbell injection failed: %v", err)
	}
}

// ProcessGroupEvents locates a single registered group and, under its
// lock, calls its process_events function if present (§4.3).
func (c *Context) ProcessGroupEvents(groupID uint16) error {
	g, ok := c.group(groupID)
	if !ok {
		return rpmi.NewError("context.ProcessGroupEvents", rpmi.StatusNotfound, nil)
	}

	c.processOneGroup(g)

	return nil
}

func (c *Context) processOneGroup(g *Group) {
	if !g.HasEvents() {
		return
	}

	g.Lock()
	err := g.processEvents()
	g.Unlock()

	if err == nil {
		return
	}

	if status, ok := statusOf(err); ok && status == rpmi.StatusBusy {
		return
	}

	c.logger.Printf("group %q process_events error: %v", g.Name, err)
}

// ProcessAllEvents iterates every registered group, releasing the
// groups-registry lock around each per-group call (§4.3: "avoid
// holding two locks across callbacks"). When the context was
// constructed with WithConcurrentEvents(true) the per-group calls are
// fanned out concurrently via errgroup.
func (c *Context) ProcessAllEvents() error {
	ids := c.groupOrder()

	if !c.concurrentEvents {
		for _, id := range ids {
			if g, ok := c.group(id); ok {
				c.processOneGroup(g)
			}
		}

		return nil
	}

	return c.processAllConcurrent(ids)
}
