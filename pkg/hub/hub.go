// Package hub implements the N-port, one-Cell rendezvous router: a fixed
// trivial routing policy (Cell→Port(0), Port(*)→Cell) plus
// the idempotent try-everyone dispatch loop that re-attempts every pending
// route after each mutation.
package hub

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/ether/internal/actor"
	"github.com/datawire/ether/pkg/frame"
	"github.com/datawire/ether/pkg/link"
	"github.com/datawire/ether/pkg/port"
)

// CellCap is the capability a Hub uses to talk to the one Cell plugged
// into it. It is an interface, owned here rather than in a pkg/cell
// package, since the Cell's own implementation lives outside this module;
// this is only the boundary Hub needs.
type CellCap interface {
	HubToCellWrite(payload frame.Payload)
	HubToCellRead()
	fmt.Stringer
}

// route names a rendezvous target: the Cell, or one of the hub's ports by
// index.
type route struct {
	isCell bool
	port   int
}

func routeToCell() route      { return route{isCell: true} }
func routeToPort(n int) route { return route{port: n} }

// Event is the tagged union a Hub accepts from its Ports and its Cell.
type Event struct {
	kind    eventKind
	port    port.Cap
	cell    CellCap
	state   port.State
	payload frame.Payload
}

type eventKind byte

const (
	evPortStatus eventKind = iota
	evPortToHubWrite
	evPortToHubRead
	evCellToHubWrite
	evCellToHubRead
)

// NewCellToHubWrite offers payload for routing on behalf of the Cell.
func NewCellToHubWrite(cell CellCap, payload frame.Payload) Event {
	return Event{kind: evCellToHubWrite, cell: cell, payload: payload}
}

// NewCellToHubRead declares the Cell ready to receive one routed payload.
func NewCellToHubRead(cell CellCap) Event {
	return Event{kind: evCellToHubRead, cell: cell}
}

// Cap is the capability other actors hold to send a Hub events.
type Cap = actor.Cap[Event]

type portIn struct {
	writer  port.Cap
	payload *frame.Payload
	sendTo  []route
}

type portOut struct {
	reader port.Cap // non-zero (IsZero()==false) once ready to receive
}

type cellIn struct {
	reader CellCap
}

type cellOut struct {
	writer  CellCap
	payload *frame.Payload
	sendTo  []route
}

// Hub is the Multi-Port rendezvous router.
type Hub struct {
	self    Cap
	ports   []port.Cap
	portIn  []portIn
	portOut []portOut
	cellIn  cellIn
	cellOut cellOut
	metrics *metrics
}

// Create builds a Hub with len(links) ports, one per Link, spawns a Port
// mediator in front of each Link, and starts the liveness Pollster.
// Port and Hub are mutually dependent (Port needs a HubCap, Hub needs each
// Port's Cap), so construction uses the forward-reference pattern: a
// forwardingHubCap pointing at a zero-value Hub Cap is handed to each Port,
// and that Cap is reassigned once the real Hub is spawned.
func Create(ctx context.Context, grp *dgroup.Group, name string, links []link.Cap) Cap {
	var hubCap Cap
	forward := &forwardingHubCap{target: &hubCap}

	ports := make([]port.Cap, len(links))
	portCaps := make([]link.PortCap, len(links))
	for i, l := range links {
		ports[i], portCaps[i] = port.Spawn(ctx, grp, fmt.Sprintf("%s.port%d", name, i), l, forward)
	}

	h := &Hub{
		ports:   ports,
		portIn:  make([]portIn, len(ports)),
		portOut: make([]portOut, len(ports)),
		metrics: newMetrics(name),
	}
	for i, p := range ports {
		h.portOut[i] = portOut{reader: p} // Every port starts ready to receive from the Hub.
	}
	hubCap = actor.Spawn[Event](ctx, grp, name, h)
	h.self = hubCap

	newPollster(ctx, grp, name+".pollster", links, portCaps)

	return hubCap
}

// forwardingHubCap lets a Port hold a stable port.HubCap before the real
// Hub exists yet. target is filled in by Create once Hub is spawned; by
// the time any Port actually calls through it, construction has finished
// and every Send below is just an ordinary asynchronous mailbox push.
type forwardingHubCap struct {
	target *Cap
}

func (f *forwardingHubCap) PortStatus(p port.Cap, state port.State) {
	f.target.Send(newPortStatus(p, state))
}

func (f *forwardingHubCap) PortToHubWrite(p port.Cap, payload frame.Payload) {
	f.target.Send(newPortToHubWrite(p, payload))
}

func (f *forwardingHubCap) PortToHubRead(p port.Cap) {
	f.target.Send(newPortToHubRead(p))
}

func (f *forwardingHubCap) String() string { return "hub" }

func newPortStatus(p port.Cap, state port.State) Event {
	return Event{kind: evPortStatus, port: p, state: state}
}

func newPortToHubWrite(p port.Cap, payload frame.Payload) Event {
	return Event{kind: evPortToHubWrite, port: p, payload: payload}
}

func newPortToHubRead(p port.Cap) Event {
	return Event{kind: evPortToHubRead, port: p}
}

// OnEvent implements actor.Actor[Event].
func (h *Hub) OnEvent(ctx context.Context, event Event) {
	switch event.kind {
	case evPortStatus:
		h.onPortStatus(ctx, event.port, event.state)
	case evPortToHubWrite:
		h.onPortToHubWrite(event.port, event.payload)
	case evPortToHubRead:
		h.onPortToHubRead(event.port)
	case evCellToHubWrite:
		h.onCellToHubWrite(event.cell, event.payload)
	case evCellToHubRead:
		h.onCellToHubRead(event.cell)
	default:
		panic(fmt.Sprintf("hub: unknown event kind %d", event.kind))
	}
}

func (h *Hub) portNum(p port.Cap) int {
	for i, candidate := range h.ports {
		if candidate.Equal(p) {
			return i
		}
	}
	panic("hub: unknown port")
}

func (h *Hub) onPortStatus(ctx context.Context, p port.Cap, state port.State) {
	dlog.Debugf(ctx, "hub: port[%d] status=%s", h.portNum(p), state)
}

func (h *Hub) onPortToHubWrite(p port.Cap, payload frame.Payload) {
	n := h.portNum(p)
	in := &h.portIn[n]
	if !in.writer.IsZero() {
		panic("hub: only one Port-to-Hub writer allowed")
	}
	in.writer = p
	cp := payload.Clone()
	in.payload = &cp
	h.findRoutes(routeToPort(n), &cp)
	h.tryEveryone()
}

func (h *Hub) onPortToHubRead(p port.Cap) {
	n := h.portNum(p)
	out := &h.portOut[n]
	if !out.reader.IsZero() {
		panic("hub: only one Port-to-Hub reader allowed")
	}
	out.reader = p
	h.tryEveryone()
}

func (h *Hub) onCellToHubWrite(cell CellCap, payload frame.Payload) {
	if h.cellOut.writer != nil {
		panic("hub: only one Cell-to-Hub writer allowed")
	}
	h.cellOut.writer = cell
	cp := payload.Clone()
	h.cellOut.payload = &cp
	h.findRoutes(routeToCell(), &cp)
	h.tryEveryone()
}

func (h *Hub) onCellToHubRead(cell CellCap) {
	if h.cellIn.reader != nil {
		panic("hub: only one Cell-to-Hub reader allowed")
	}
	h.cellIn.reader = cell
	h.tryEveryone()
}

// findRoutes computes the routes a just-arrived payload must take. The
// policy is fixed and trivial: every Cell token routes to
// Port(0); every Port token routes to the Cell.
//
// FIXME: this is a completely bogus "routing table" lookup — the TreeId in
// the payload should determine the routes, excluding `from`.
func (h *Hub) findRoutes(from route, payload *frame.Payload) {
	_ = payload.ID
	if from.isCell {
		if len(h.cellOut.sendTo) != 0 {
			panic("hub: leftover Cell routes")
		}
		h.cellOut.sendTo = append(h.cellOut.sendTo, routeToPort(0))
		return
	}
	in := &h.portIn[from.port]
	if len(in.sendTo) != 0 {
		panic("hub: leftover Port routes")
	}
	in.sendTo = append(in.sendTo, routeToCell())
}

// sendToRoutes attempts every still-pending route for one payload, removing
// each route as soon as its destination is ready. Unready routes are left
// in place for the next tryEveryone pass.
func (h *Hub) sendToRoutes(payload *frame.Payload, routes *[]route) {
	rs := *routes
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case r.isCell:
			if h.cellIn.reader != nil {
				h.cellIn.reader.HubToCellWrite(*payload)
				h.cellIn.reader = nil
				h.metrics.routedToCell.Inc()
				rs = append(rs[:i], rs[i+1:]...)
			} else {
				i++
			}
		default:
			out := &h.portOut[r.port]
			if !out.reader.IsZero() {
				out.reader.Send(port.NewHubToPortWrite(*payload))
				out.reader = port.Cap{}
				h.metrics.routedToPorts.Inc()
				rs = append(rs[:i], rs[i+1:]...)
			} else {
				i++
			}
		}
	}
	*routes = rs
}

// tryEveryone re-attempts every pending route, for the Cell and for every
// Port, and acks each writer exactly once its routes have all drained.
// It is idempotent and safe to call after any mutation.
func (h *Hub) tryEveryone() {
	if h.cellOut.writer != nil && h.cellOut.payload != nil {
		if len(h.cellOut.sendTo) != 0 {
			h.sendToRoutes(h.cellOut.payload, &h.cellOut.sendTo)
		} else {
			h.cellOut.writer.HubToCellRead() // ack writer
			h.cellOut.writer = nil
			h.cellOut.payload = nil
		}
	}
	for n := range h.ports {
		in := &h.portIn[n]
		if in.writer.IsZero() || in.payload == nil {
			continue
		}
		if len(in.sendTo) != 0 {
			h.sendToRoutes(in.payload, &in.sendTo)
		} else {
			in.writer.Send(port.NewHubToPortRead()) // ack writer
			in.writer = port.Cap{}
			in.payload = nil
		}
	}
}
