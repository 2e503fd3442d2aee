// Package link implements the per-wire protocol state machine: the Reset
// handshake that entangles two peers, and the four-phase Atomic Information
// Transfer (AIT) exchange layered on top of it.
package link

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/ether/internal/actor"
	"github.com/datawire/ether/pkg/frame"
)

// State is the link's coarse liveness state.
type State byte

const (
	Stop State = iota // inert
	Init               // reset sent, awaiting peer
	Run                // entangled, idle
	Live               // entangled with activity observed since last Poll
)

func (s State) String() string {
	switch s {
	case Stop:
		return "Stop"
	case Init:
		return "Init"
	case Run:
		return "Run"
	case Live:
		return "Live"
	default:
		return "State(?)"
	}
}

// PortCap is the capability a Link uses to talk back to whichever Port is
// currently its reader or writer. It is an interface, not a concrete
// port.Cap, so this package never has to import pkg/port — Port satisfies
// it by forwarding to its own mailbox.
type PortCap interface {
	// LinkToPortWrite delivers a payload the Link received via AIT to the
	// reader Port.
	LinkToPortWrite(payload frame.Payload)
	// LinkToPortRead tells the writer Port that its outbound payload was
	// accepted and a new one may be offered.
	LinkToPortRead()
	// LinkStatus reports this Link's (state, balance) to the Port.
	LinkStatus(state State, balance int)
	fmt.Stringer
}

// Wire is the capability a Link uses to transmit frames. The physical
// transport behind it is external to this package; pkg/wire supplies a
// loopback test double.
type Wire interface {
	Send(f frame.Frame)
}

// Event is the tagged union of everything a Link accepts, unified into one
// struct tagging a kind with the fields that variant needs.
type Event struct {
	kind    eventKind
	frame   frame.Frame
	port    PortCap
	payload frame.Payload
}

type eventKind byte

const (
	evFrame eventKind = iota
	evStart
	evPoll
	evStop
	evRead
	evWrite
)

// NewFrame wraps an inbound frame received off the wire.
func NewFrame(f frame.Frame) Event { return Event{kind: evFrame, frame: f} }

// NewStart enables the link: it transmits Reset and enters Init.
func NewStart(port PortCap) Event { return Event{kind: evStart, port: port} }

// NewPoll asks the link to report its status, demoting Live to Run.
func NewPoll(port PortCap) Event { return Event{kind: evPoll, port: port} }

// NewStop disables the link.
func NewStop(port PortCap) Event { return Event{kind: evStop, port: port} }

// NewRead declares port ready to receive one payload.
func NewRead(port PortCap) Event { return Event{kind: evRead, port: port} }

// NewWrite offers payload for transmission on behalf of port.
func NewWrite(port PortCap, payload frame.Payload) Event {
	return Event{kind: evWrite, port: port, payload: payload}
}

// Cap is the capability other actors hold to send a Link events.
type Cap = actor.Cap[Event]

// Link owns one Wire handle and one local nonce.
type Link struct {
	name    string
	wire    Wire
	nonce   uint32
	state   State
	balance int
	reader  PortCap
	inbound *frame.Payload
	writer  PortCap
	outbound *frame.Payload
	metrics *metrics
}

// Spawn starts a Link actor bound to wire, using nonce as its local
// identity for collision resolution.
func Spawn(ctx context.Context, grp *dgroup.Group, name string, wire Wire, nonce uint32) Cap {
	l := &Link{name: name, wire: wire, nonce: nonce, state: Stop, metrics: newMetrics(name)}
	return actor.Spawn[Event](ctx, grp, name, l)
}

func (l *Link) treeID() frame.TreeId {
	return frame.NewTreeID(l.nonce)
}

func (l *Link) send(ctx context.Context, f frame.Frame) {
	l.metrics.framesSent.Inc()
	dlog.Debugf(ctx, "%s: -> %s", l.name, f)
	l.wire.Send(f)
}

// OnEvent implements actor.Actor[Event].
func (l *Link) OnEvent(ctx context.Context, event Event) {
	switch event.kind {
	case evFrame:
		l.onFrame(ctx, event.frame)
	case evStart:
		l.onStart(ctx, event.port)
	case evPoll:
		l.onPoll(ctx, event.port)
	case evStop:
		l.onStop(ctx, event.port)
	case evRead:
		l.onRead(ctx, event.port)
	case evWrite:
		l.onWrite(ctx, event.port, event.payload)
	default:
		panic(fmt.Sprintf("link %s: unknown event kind %d", l.name, event.kind))
	}
}

func (l *Link) onStart(ctx context.Context, port PortCap) {
	l.send(ctx, frame.NewReset(l.nonce))
	l.state = Init
	l.reportStatus(port)
}

func (l *Link) onPoll(ctx context.Context, port PortCap) {
	l.reportStatus(port)
	if l.state == Live {
		l.state = Run
	}
}

func (l *Link) onStop(_ context.Context, port PortCap) {
	l.state = Stop
	l.reportStatus(port)
}

func (l *Link) reportStatus(port PortCap) {
	l.metrics.setBalance(float64(l.balance))
	port.LinkStatus(l.state, l.balance)
}

func (l *Link) onRead(_ context.Context, port PortCap) {
	if l.reader != nil {
		panic(fmt.Sprintf("link %s: only one Link-to-Port reader allowed", l.name))
	}
	l.reader = port
}

func (l *Link) onWrite(_ context.Context, port PortCap, payload frame.Payload) {
	if l.writer != nil {
		panic(fmt.Sprintf("link %s: only one Port-to-Link writer allowed", l.name))
	}
	cp := payload.Clone()
	l.outbound = &cp
	l.writer = port
}

func (l *Link) onFrame(ctx context.Context, f frame.Frame) {
	if l.state == Stop {
		return // dropped while Stop.
	}
	l.metrics.framesRecv.Inc()
	switch {
	case f.IsReset():
		l.onReset(ctx, f.GetNonce())
	case f.IsEntangled():
		l.onEntangled(ctx, f)
	default:
		panic(fmt.Sprintf("link %s: malformed frame %v", l.name, f))
	}
}

func (l *Link) onReset(ctx context.Context, peerNonce uint32) {
	l.state = Init
	dlog.Debugf(ctx, "%s: nonce=%08x, peer.nonce=%08x", l.name, l.nonce, peerNonce)
	switch {
	case l.nonce < peerNonce:
		dlog.Debugf(ctx, "%s: waiting for peer to drive entanglement", l.name)
	case l.nonce > peerNonce:
		dlog.Debugf(ctx, "%s: entangling", l.name)
		l.send(ctx, frame.NewEntangled(l.treeID(), frame.TICK, frame.TICK))
	default:
		dlog.Debugf(ctx, "%s: nonce collision, re-rolling", l.name)
		l.nonce = rand.Uint32()
		l.send(ctx, frame.NewReset(l.nonce))
	}
}

func (l *Link) onEntangled(ctx context.Context, f frame.Frame) {
	l.state = Live
	iState := f.GetIState()
	switch iState {
	case frame.TICK:
		l.onTick(ctx, iState)
	case frame.TECK:
		l.onTeck(ctx, f, iState)
	case frame.TACK:
		l.onTack(ctx, iState)
	case frame.RTECK:
		l.onRteck(ctx, iState)
	default:
		panic(fmt.Sprintf("link %s: bad protocol i-state %v", l.name, iState))
	}
}

func (l *Link) onTick(ctx context.Context, uState frame.IState) {
	if l.balance == 1 {
		// Inbound receive completed one step ago: deliver it now.
		if l.reader != nil && l.inbound != nil {
			l.reader.LinkToPortWrite(*l.inbound)
			l.reader = nil
			l.inbound = nil
			l.balance = 0
		}
	}
	if l.balance != 0 {
		panic(fmt.Sprintf("link %s: balance should be 0 on TICK, got %d", l.name, l.balance))
	}
	if l.outbound == nil {
		l.send(ctx, frame.NewEntangled(l.treeID(), frame.TICK, uState))
		return
	}
	reply := frame.NewEntangled(l.treeID(), frame.TECK, uState)
	reply.SetPayload(*l.outbound)
	l.send(ctx, reply)
	l.balance = -1
}

func (l *Link) onTeck(ctx context.Context, f frame.Frame, uState frame.IState) {
	if l.reader != nil {
		p := f.GetPayload()
		l.inbound = &p
		l.send(ctx, frame.NewEntangled(l.treeID(), frame.TACK, uState))
		l.balance = 1
		return
	}
	l.send(ctx, frame.NewEntangled(l.treeID(), frame.RTECK, uState))
	if l.balance != 0 {
		panic(fmt.Sprintf("link %s: balance should be 0 rejecting TECK, got %d", l.name, l.balance))
	}
}

func (l *Link) onTack(ctx context.Context, uState frame.IState) {
	if l.balance != -1 {
		panic(fmt.Sprintf("link %s: balance should be -1 on TACK, got %d", l.name, l.balance))
	}
	if l.writer == nil {
		return
	}
	l.writer.LinkToPortRead()
	l.writer = nil
	l.outbound = nil
	l.balance = 0
	l.send(ctx, frame.NewEntangled(l.treeID(), frame.TICK, uState))
}

func (l *Link) onRteck(ctx context.Context, uState frame.IState) {
	// Legitimate negative ack, not an error: outbound stays staged and is
	// retried on the next TICK.
	l.send(ctx, frame.NewEntangled(l.treeID(), frame.TICK, uState))
	l.balance = 0
}
