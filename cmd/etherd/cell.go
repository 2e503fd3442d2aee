package main

import (
	"context"
	"fmt"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"

	"github.com/datawire/ether/internal/actor"
	"github.com/datawire/ether/pkg/frame"
	"github.com/datawire/ether/pkg/hub"
)

// writePace keeps the demo's generated traffic at a human-readable rate
// instead of flooding the Hub as fast as the AIT handshake allows.
const writePace = 300 * time.Millisecond

// cell is a minimal demo endpoint satisfying hub.CellCap: the Cell's own
// implementation lives outside the router, but etherd needs something
// plugged into the Hub's Cell rendezvous slot to show traffic moving
// through a Hub at all. It sends a numbered payload every time the Hub
// credits it to write, and logs whatever the Hub routes back to it.
type cell struct {
	self  Cap
	hub   hub.Cap
	name  string
	nonce uint32
	sent  int
}

type Cap = actor.Cap[cellEvent]

type cellEvent struct {
	kind    cellEventKind
	payload frame.Payload
}

type cellEventKind byte

const (
	evHubToCellWrite cellEventKind = iota
	evHubToCellRead
)

// spawnCell starts a demo Cell plugged into h, identified by nonce for the
// payloads it originates.
func spawnCell(ctx context.Context, grp *dgroup.Group, name string, h hub.Cap, nonce uint32) Cap {
	c := &cell{hub: h, name: name, nonce: nonce}
	self := actor.Spawn[cellEvent](ctx, grp, name, c)
	c.self = self
	h.Send(hub.NewCellToHubRead(c))  // ready to receive the Hub's first routed payload
	h.Send(hub.NewCellToHubWrite(c, c.next())) // Hub starts ready to accept a Cell write
	return self
}

func (c *cell) next() frame.Payload {
	c.sent++
	data := []byte(fmt.Sprintf("%s#%d", c.name, c.sent))
	return frame.NewPayload(frame.NewTreeID(c.nonce), data)
}

// HubToCellWrite implements hub.CellCap.
func (c *cell) HubToCellWrite(payload frame.Payload) {
	c.self.Send(cellEvent{kind: evHubToCellWrite, payload: payload})
}

// HubToCellRead implements hub.CellCap.
func (c *cell) HubToCellRead() {
	c.self.Send(cellEvent{kind: evHubToCellRead})
}

func (c *cell) String() string { return c.self.String() }

// OnEvent implements actor.Actor[cellEvent].
func (c *cell) OnEvent(ctx context.Context, event cellEvent) {
	switch event.kind {
	case evHubToCellWrite:
		dlog.Infof(ctx, "%s: received %s", c.name, event.payload)
		c.hub.Send(hub.NewCellToHubRead(c)) // ready for the next routed payload
	case evHubToCellRead:
		dtime.SleepWithContext(ctx, writePace)
		c.hub.Send(hub.NewCellToHubWrite(c, c.next()))
	}
}
