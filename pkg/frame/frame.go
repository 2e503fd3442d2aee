// Package frame defines the on-wire unit the Link state machine exchanges
// with its peer: Frame, Payload and TreeId. A Frame is a discriminated
// union (Reset or Entangled); any other shape is ill-formed and rejected by
// the Link.
package frame

import "fmt"

// IState is the "i-state" tag carried by an Entangled frame, naming which
// phase of the four-phase AIT handshake the sender is in.
type IState byte

const (
	TICK IState = iota
	TECK
	TACK
	RTECK
)

func (s IState) String() string {
	switch s {
	case TICK:
		return "TICK"
	case TECK:
		return "TECK"
	case TACK:
		return "TACK"
	case RTECK:
		return "RTECK"
	default:
		return fmt.Sprintf("IState(%d)", byte(s))
	}
}

// TreeId is a routing tag derived from a 32-bit nonce. It has equality-only
// semantics; nothing about its internal shape is otherwise meaningful.
type TreeId struct {
	nonce uint32
}

// NewTreeID derives a TreeId from the given nonce.
func NewTreeID(nonce uint32) TreeId {
	return TreeId{nonce: nonce}
}

// Nonce returns the nonce this TreeId was derived from.
func (t TreeId) Nonce() uint32 {
	return t.nonce
}

func (t TreeId) String() string {
	return fmt.Sprintf("tree-%08x", t.nonce)
}

// Payload is an opaque byte block tagged with a TreeId. It is cloneable by
// value; Clone never shares the backing array with its source.
type Payload struct {
	ID   TreeId
	Data []byte
}

// NewPayload copies data so the returned Payload shares no backing array
// with the caller.
func NewPayload(id TreeId, data []byte) Payload {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Payload{ID: id, Data: cp}
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	return NewPayload(p.ID, p.Data)
}

func (p Payload) String() string {
	return fmt.Sprintf("Payload{%s, %d bytes}", p.ID, len(p.Data))
}

type kind byte

const (
	kindReset kind = iota + 1 // zero kind is left for the malformed zero Frame
	kindEntangled
)

// Frame is the on-wire unit Link sends and receives. The zero Frame is not
// valid; construct one with NewReset or NewEntangled.
type Frame struct {
	kind    kind
	nonce   uint32
	treeID  TreeId
	iState  IState
	uState  IState
	payload *Payload
}

// NewReset builds a Reset frame carrying nonce.
func NewReset(nonce uint32) Frame {
	return Frame{kind: kindReset, nonce: nonce}
}

// NewEntangled builds an Entangled frame with no payload.
func NewEntangled(treeID TreeId, i, u IState) Frame {
	return Frame{kind: kindEntangled, treeID: treeID, iState: i, uState: u}
}

// IsReset reports whether f is a Reset frame.
func (f Frame) IsReset() bool {
	return f.kind == kindReset
}

// IsEntangled reports whether f is an Entangled frame.
func (f Frame) IsEntangled() bool {
	return f.kind == kindEntangled
}

// GetNonce returns the nonce of a Reset frame. Calling it on an Entangled
// frame returns zero.
func (f Frame) GetNonce() uint32 {
	return f.nonce
}

// GetTreeID returns the TreeId of an Entangled frame.
func (f Frame) GetTreeID() TreeId {
	return f.treeID
}

// GetIState returns the i-state of an Entangled frame.
func (f Frame) GetIState() IState {
	return f.iState
}

// GetUState returns the reciprocal u-state of an Entangled frame.
func (f Frame) GetUState() IState {
	return f.uState
}

// HasPayload reports whether this frame carries a payload.
func (f Frame) HasPayload() bool {
	return f.payload != nil
}

// GetPayload returns a clone of the frame's payload, or the zero Payload if
// none is present.
func (f Frame) GetPayload() Payload {
	if f.payload == nil {
		return Payload{}
	}
	return f.payload.Clone()
}

// SetPayload attaches a clone of p to f.
func (f *Frame) SetPayload(p Payload) {
	cp := p.Clone()
	f.payload = &cp
}

func (f Frame) String() string {
	if f.IsReset() {
		return fmt.Sprintf("Reset{nonce=%08x}", f.nonce)
	}
	if f.IsEntangled() {
		if f.payload != nil {
			return fmt.Sprintf("Entangled{%s, i=%s, u=%s, %s}", f.treeID, f.iState, f.uState, f.payload)
		}
		return fmt.Sprintf("Entangled{%s, i=%s, u=%s}", f.treeID, f.iState, f.uState)
	}
	return "Frame{malformed}"
}
