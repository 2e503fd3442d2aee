package wire

import "github.com/datawire/ether/pkg/frame"

// NewLoopbackPair returns two Caps that deliver into each other's peer via
// the given callbacks, in place of a real connection, collapsed to plain
// closures since the actor mailbox on the receiving end is already the
// asynchronous boundary.
func NewLoopbackPair(deliverToA, deliverToB func(frame.Frame)) (wireForA, wireForB Cap) {
	return New(deliverToB), New(deliverToA)
}
