// Package wire supplies the transmission boundary a Link sends frames
// through. The physical transport is external to this package; this package
// gives it the narrowest possible shape (a single closure) so production
// code can plug in a real socket and tests can plug in a loopback.
package wire

import "github.com/datawire/ether/pkg/frame"

// Cap is a send-only capability to a transport. It satisfies link.Wire.
type Cap struct {
	send func(frame.Frame)
}

// New wraps send as a Cap.
func New(send func(frame.Frame)) Cap {
	return Cap{send: send}
}

// Send transmits f.
func (c Cap) Send(f frame.Frame) {
	c.send(f)
}
