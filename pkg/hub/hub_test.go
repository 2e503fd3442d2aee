package hub

import (
	"context"
	"testing"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/datawire/ether/pkg/frame"
	"github.com/datawire/ether/pkg/link"
)

type fakeWire struct {
	sent chan frame.Frame
}

func newFakeWire() *fakeWire { return &fakeWire{sent: make(chan frame.Frame, 32)} }

func (w *fakeWire) Send(f frame.Frame) { w.sent <- f }

func (w *fakeWire) expect(t *testing.T, timeout time.Duration) frame.Frame {
	t.Helper()
	select {
	case f := <-w.sent:
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for frame on wire")
		return frame.Frame{}
	}
}

type fakeCell struct {
	writes chan frame.Payload
	reads  chan struct{}
}

func newFakeCell() *fakeCell {
	return &fakeCell{writes: make(chan frame.Payload, 32), reads: make(chan struct{}, 32)}
}

func (c *fakeCell) HubToCellWrite(payload frame.Payload) { c.writes <- payload }
func (c *fakeCell) HubToCellRead()                       { c.reads <- struct{}{} }
func (c *fakeCell) String() string                       { return "fakeCell" }

func testGroup(t *testing.T) (context.Context, *dgroup.Group) {
	ctx, cancel := context.WithCancel(dlog.NewTestContext(t, false))
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	t.Cleanup(func() {
		cancel()
		_ = grp.Wait()
	})
	return ctx, grp
}

const timeout = time.Second

// entangleAgainstSimulatedPeer drives a freshly-spawned Link to Live against
// a hand-built higher-nonce peer, the same fixture pkg/link and pkg/port use
// since link.Event exposes no fields a fake peer actor could inspect or
// replay directly.
func entangleAgainstSimulatedPeer(t *testing.T, l link.Cap, wire *fakeWire, nonce, peerNonce uint32) {
	t.Helper()
	wire.expect(t, timeout) // our Reset
	l.Send(link.NewFrame(frame.NewReset(peerNonce)))
	l.Send(link.NewFrame(frame.NewEntangled(frame.NewTreeID(peerNonce), frame.TICK, frame.TICK)))
	wire.expect(t, timeout) // our reply TICK
}

// deliverInbound drives one full AIT round trip against the simulated peer,
// landing payload at whichever Port is currently the Link's reader.
func deliverInbound(t *testing.T, l link.Cap, wire *fakeWire, peerNonce uint32, payload frame.Payload) {
	t.Helper()
	teck := frame.NewEntangled(frame.NewTreeID(peerNonce), frame.TECK, frame.TICK)
	teck.SetPayload(payload)
	l.Send(link.NewFrame(teck))
	wire.expect(t, timeout) // our TACK
	l.Send(link.NewFrame(frame.NewEntangled(frame.NewTreeID(peerNonce), frame.TICK, frame.TICK)))
}

// TestHubBuffersPortPayloadUntilCellReady exercises the rendezvous ordering
// at the heart of the router: a payload arriving from a Port before the
// Cell has declared itself ready to read is held, not dropped, and is
// delivered as soon as the Cell does ask.
func TestHubBuffersPortPayloadUntilCellReady(t *testing.T) {
	ctx, grp := testGroup(t)
	wire := newFakeWire()
	l := link.Spawn(ctx, grp, "l", wire, 1)
	cell := newFakeCell()
	h := Create(ctx, grp, "hub", []link.Cap{l})

	entangleAgainstSimulatedPeer(t, l, wire, 1, 99)

	payload := frame.NewPayload(frame.NewTreeID(99), []byte("to-cell"))
	deliverInbound(t, l, wire, 99, payload)

	select {
	case <-cell.writes:
		t.Fatal("cell should not receive anything before it asks to read")
	case <-time.After(100 * time.Millisecond):
	}

	h.Send(NewCellToHubRead(cell))

	select {
	case got := <-cell.writes:
		require.Equal(t, payload.Data, got.Data)
	case <-time.After(timeout):
		t.Fatal("cell never received the buffered payload once it asked to read")
	}
}

// TestHubRoutesCellPayloadToPort0 verifies the fixed trivial routing policy
// in the Cell-to-Port direction: Hub starts every port pre-credited to
// receive (hub.Create), so a Cell write reaches the wire without the Port
// needing to ask first.
func TestHubRoutesCellPayloadToPort0(t *testing.T) {
	ctx, grp := testGroup(t)
	wire := newFakeWire()
	l := link.Spawn(ctx, grp, "l", wire, 1)
	cell := newFakeCell()
	h := Create(ctx, grp, "hub", []link.Cap{l})

	entangleAgainstSimulatedPeer(t, l, wire, 1, 99)

	payload := frame.NewPayload(frame.NewTreeID(42), []byte("to-port"))
	h.Send(NewCellToHubWrite(cell, payload))

	select {
	case <-cell.reads:
	case <-time.After(timeout):
		t.Fatal("cell was never acked for its write")
	}

	time.Sleep(50 * time.Millisecond) // let the Port's forward-to-Link retry converge
	l.Send(link.NewFrame(frame.NewEntangled(frame.NewTreeID(99), frame.TICK, frame.TICK)))

	teck := wire.expect(t, timeout)
	require.Equal(t, frame.TECK, teck.GetIState())
	require.Equal(t, payload.Data, teck.GetPayload().Data)
}

// TestHubRoundTripsBetweenTwoLinkedCells wires two Hubs back to back over a
// loopback pair of Links and drives a payload all the way from one Cell,
// through both routers and both Links, to the other Cell.
func TestHubRoundTripsBetweenTwoLinkedCells(t *testing.T) {
	ctx, grp := testGroup(t)

	var wireA, wireB link.Wire
	chA := make(chan frame.Frame, 32)
	chB := make(chan frame.Frame, 32)
	wireA = sendFunc(func(f frame.Frame) { chB <- f })
	wireB = sendFunc(func(f frame.Frame) { chA <- f })

	lA := link.Spawn(ctx, grp, "lA", wireA, 1)
	lB := link.Spawn(ctx, grp, "lB", wireB, 2)

	cellA := newFakeCell()
	cellB := newFakeCell()
	hubA := Create(ctx, grp, "hubA", []link.Cap{lA})
	hubB := Create(ctx, grp, "hubB", []link.Cap{lB})

	grp.Go("pump", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case f := <-chA:
				lA.Send(link.NewFrame(f))
			case f := <-chB:
				lB.Send(link.NewFrame(f))
			}
		}
	})

	hubB.Send(NewCellToHubRead(cellB))

	payload := frame.NewPayload(frame.NewTreeID(7), []byte("end-to-end"))
	hubA.Send(NewCellToHubWrite(cellA, payload))

	select {
	case <-cellA.reads:
	case <-time.After(timeout):
		t.Fatal("cellA was never acked for its write")
	}

	select {
	case got := <-cellB.writes:
		require.Equal(t, payload.Data, got.Data)
	case <-time.After(timeout):
		t.Fatal("cellB never received the end-to-end payload")
	}
}

type sendFunc func(frame.Frame)

func (f sendFunc) Send(frm frame.Frame) { f(frm) }
