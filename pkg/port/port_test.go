package port

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

type fakeHub struct {
	statuses chan State
	writes   chan frame.Payload
	reads    chan struct{}
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		statuses: make(chan State, 32),
		writes:   make(chan frame.Payload, 32),
		reads:    make(chan struct{}, 32),
	}
}

func (h *fakeHub) PortStatus(_ Cap, state State)                  { h.statuses <- state }
func (h *fakeHub) PortToHubWrite(_ Cap, payload frame.Payload)     { h.writes <- payload }
func (h *fakeHub) PortToHubRead(_ Cap)                             { h.reads <- struct{}{} }
func (h *fakeHub) String() string                                  { return "fakeHub" }

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
// a hand-built higher-nonce peer, mirroring pkg/link's own test fixture,
// since link.Event carries no exported fields for a fake peer actor to
// inspect or replay.
func entangleAgainstSimulatedPeer(t *testing.T, l link.Cap, wire *fakeWire, nonce, peerNonce uint32) {
	t.Helper()
	wire.expect(t, timeout) // our Reset
	l.Send(link.NewFrame(frame.NewReset(peerNonce)))
	l.Send(link.NewFrame(frame.NewEntangled(frame.NewTreeID(peerNonce), frame.TICK, frame.TICK)))
	wire.expect(t, timeout) // our reply TICK
}

// deliverInbound drives one full AIT round trip against the simulated peer,
// landing payload at the Link's current reader via LinkToPortWrite.
func deliverInbound(t *testing.T, l link.Cap, wire *fakeWire, payload frame.Payload) {
	t.Helper()
	teck := frame.NewEntangled(frame.NewTreeID(99), frame.TECK, frame.TICK)
	teck.SetPayload(payload)
	l.Send(link.NewFrame(teck))
	wire.expect(t, timeout) // our TACK
	l.Send(link.NewFrame(frame.NewEntangled(frame.NewTreeID(99), frame.TICK, frame.TICK)))
}

// TestPortWaitsForHubCreditBeforeForwarding verifies the single-slot back
// pressure on the inbound path: a Port starts credited (mirroring Hub's own
// portIn.writer starting empty), so a first payload forwards immediately,
// but a second must wait for the Hub to ack the first with HubToPortRead.
func TestPortWaitsForHubCreditBeforeForwarding(t *testing.T) {
	ctx, grp := testGroup(t)
	wire := newFakeWire()
	l := link.Spawn(ctx, grp, "l", wire, 1)
	hub := newFakeHub()
	p, _ := Spawn(ctx, grp, "p", l, hub)

	entangleAgainstSimulatedPeer(t, l, wire, 1, 99)

	first := frame.NewPayload(frame.NewTreeID(99), []byte("first"))
	deliverInbound(t, l, wire, first)

	select {
	case got := <-hub.writes:
		require.Equal(t, first.Data, got.Data)
	case <-time.After(timeout):
		t.Fatal("hub never received the first write")
	}

	second := frame.NewPayload(frame.NewTreeID(99), []byte("second"))
	deliverInbound(t, l, wire, second)

	select {
	case <-hub.writes:
		t.Fatal("hub should not receive a second write before being credited")
	case <-time.After(100 * time.Millisecond):
	}

	p.Send(NewHubToPortRead())

	select {
	case got := <-hub.writes:
		require.Equal(t, second.Data, got.Data)
	case <-time.After(timeout):
		t.Fatal("hub never received the forwarded write once credited")
	}
}

// TestPortDeliversHubPayloadToLink verifies the outbound path: a payload
// routed in by the Hub is staged, handed to the Link as a Write (after which
// the Port asks the Hub for the next one), and sent as a TECK on the Link's
// next TICK.
func TestPortDeliversHubPayloadToLink(t *testing.T) {
	ctx, grp := testGroup(t)
	wire := newFakeWire()
	l := link.Spawn(ctx, grp, "l", wire, 1)
	hub := newFakeHub()
	p, _ := Spawn(ctx, grp, "p", l, hub)

	entangleAgainstSimulatedPeer(t, l, wire, 1, 99)

	payload := frame.NewPayload(frame.NewTreeID(1), []byte("outbound"))
	p.Send(NewHubToPortWrite(payload))

	// The Port sends the Link its Write before asking the Hub for more, so
	// once the Hub is asked the Write is already queued ahead of the TICK.
	select {
	case <-hub.reads:
	case <-time.After(timeout):
		t.Fatal("hub was never asked for the next outbound payload")
	}

	l.Send(link.NewFrame(frame.NewEntangled(frame.NewTreeID(99), frame.TICK, frame.TICK)))
	teck := wire.expect(t, timeout)
	require.Equal(t, frame.TECK, teck.GetIState())
	require.Equal(t, payload.Data, teck.GetPayload().Data)
}
