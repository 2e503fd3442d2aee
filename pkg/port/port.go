// Package port implements the half-duplex mediator between a Link and the
// Hub it is plugged into. A Port holds at most one
// in-flight payload in each direction and retries by reposting the event
// to its own mailbox when the other side isn't ready yet — the only
// legitimate form of "waiting" an actor can do.
package port

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/ether/internal/actor"
	"github.com/datawire/ether/pkg/frame"
	"github.com/datawire/ether/pkg/link"
)

// HubCap is the capability a Port uses to talk back to its Hub. It is an
// interface so this package never imports pkg/hub — pkg/hub's
// forwardingHubCap satisfies it.
type HubCap interface {
	PortStatus(port Cap, state State)
	PortToHubWrite(port Cap, payload frame.Payload)
	PortToHubRead(port Cap)
	fmt.Stringer
}

// State mirrors the Link's (state, balance) pair as reported to the Hub.
type State struct {
	LinkState link.State
	Balance   int
}

func (s State) String() string {
	return fmt.Sprintf("{%s, balance=%d}", s.LinkState, s.Balance)
}

// Event is the tagged union a Port accepts from its Link and its Hub.
type Event struct {
	kind    eventKind
	state   State
	payload frame.Payload
}

type eventKind byte

const (
	evLinkStatus eventKind = iota
	evLinkToPortWrite
	evLinkToPortRead
	evHubToPortWrite
	evHubToPortRead
)

func newLinkStatus(state State) Event { return Event{kind: evLinkStatus, state: state} }
func newLinkToPortWrite(payload frame.Payload) Event {
	return Event{kind: evLinkToPortWrite, payload: payload}
}
func newLinkToPortRead() Event { return Event{kind: evLinkToPortRead} }

// NewHubToPortWrite delivers a payload the Hub routed to this Port.
func NewHubToPortWrite(payload frame.Payload) Event {
	return Event{kind: evHubToPortWrite, payload: payload}
}

// NewHubToPortRead credits this Port to accept one more outbound payload.
func NewHubToPortRead() Event {
	return Event{kind: evHubToPortRead}
}

// Cap is the capability other actors hold to send a Port events. It does
// not satisfy link.PortCap; only *Port does (see Spawn).
type Cap = actor.Cap[Event]

// Port mediates one Link's traffic onto its Hub.
type Port struct {
	self Cap
	link link.Cap
	hub  HubCap

	writeCredit    bool
	pendingFromHub *frame.Payload
}

// Spawn starts a Port actor bound to l, forwarding to hub, and drives l's
// own Start so every Link always has exactly one Port bringing it up. hub
// is typically a forward-referenced pointer assigned after the surrounding
// Hub finishes construction, since Hub and its Ports are mutually dependent.
//
// Spawn returns both the Port's own Cap (for Hub to address it with) and
// the *Port itself as a link.PortCap, since only *Port — not its Cap, a
// plain struct with no domain methods — implements the interface Link
// needs to call back through. A liveness Pollster polling this Link needs
// the latter too.
//
// p.self is assigned here, before the actor goroutine can possibly read
// it, rather than via a self-addressed Init event: unlike the actor
// runtime this protocol was designed against, Spawn already returns the
// capability synchronously, so there's no "don't yet know my own address"
// problem left to solve with an extra message.
func Spawn(ctx context.Context, grp *dgroup.Group, name string, l link.Cap, hub HubCap) (Cap, link.PortCap) {
	// writeCredit starts true: the Hub starts with no writer registered for
	// this port (portIn is zero-valued at construction), so it is ready to
	// accept this Port's first write the same way Hub pre-credits every
	// port's outbound reader in hub.Create.
	p := &Port{link: l, hub: hub, writeCredit: true}
	self := actor.Spawn[Event](ctx, grp, name, p)
	p.self = self
	l.Send(link.NewStart(p))       // bring the Link up
	l.Send(link.NewRead(p))        // register as the Link's first reader
	self.Send(newLinkToPortRead()) // start trying to drain Hub payloads to Link
	return self, p
}

// OnEvent implements actor.Actor[Event].
func (p *Port) OnEvent(ctx context.Context, event Event) {
	switch event.kind {
	case evLinkStatus:
		p.onLinkStatus(ctx, event.state)
	case evLinkToPortWrite:
		p.onLinkToPortWrite(ctx, event.payload)
	case evLinkToPortRead:
		p.onLinkToPortRead(ctx)
	case evHubToPortWrite:
		p.onHubToPortWrite(event.payload)
	case evHubToPortRead:
		p.onHubToPortRead()
	default:
		panic(fmt.Sprintf("port: unknown event kind %d", event.kind))
	}
}

func (p *Port) onLinkStatus(ctx context.Context, state State) {
	dlog.Debugf(ctx, "port: link status=%s", state)
	p.hub.PortStatus(p.self, state)
}

// LinkToPortWrite implements link.PortCap: the Link delivered a payload it
// received for us to forward to the Hub.
func (p *Port) LinkToPortWrite(payload frame.Payload) {
	p.self.Send(newLinkToPortWrite(payload))
}

func (p *Port) onLinkToPortWrite(_ context.Context, payload frame.Payload) {
	if !p.writeCredit {
		p.self.Send(newLinkToPortWrite(payload)) // retry once Hub credits us
		return
	}
	p.writeCredit = false
	p.hub.PortToHubWrite(p.self, payload)
	p.link.Send(link.NewRead(p)) // re-arm Link's reader
}

// LinkToPortRead implements link.PortCap: the Link accepted our last
// outbound payload and is ready for another.
func (p *Port) LinkToPortRead() {
	p.self.Send(newLinkToPortRead())
}

func (p *Port) onLinkToPortRead(_ context.Context) {
	if p.pendingFromHub == nil {
		p.self.Send(newLinkToPortRead()) // retry once Hub hands us a payload
		return
	}
	payload := *p.pendingFromHub
	p.pendingFromHub = nil
	p.link.Send(link.NewWrite(p, payload))
	p.hub.PortToHubRead(p.self)
}

// LinkStatus implements link.PortCap.
func (p *Port) LinkStatus(state link.State, balance int) {
	p.self.Send(newLinkStatus(State{LinkState: state, Balance: balance}))
}

func (p *Port) String() string {
	return p.self.String()
}

func (p *Port) onHubToPortWrite(payload frame.Payload) {
	if p.pendingFromHub != nil {
		panic("port: Hub routed a second payload before the first was drained")
	}
	cp := payload.Clone()
	p.pendingFromHub = &cp
}

func (p *Port) onHubToPortRead() {
	p.writeCredit = true
}
