package hub

import (
	"context"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dtime"

	"github.com/datawire/ether/pkg/link"
)

// pollInterval is the liveness tick period: every tick, the
// Pollster asks each Link to report its status, which also demotes a Live
// Link back to Run, so a Link that stays silent until the next tick reports
// Run and only fresh inbound traffic makes it Live again.
const pollInterval = 500 * time.Millisecond

// pollster is the link-failure detector driving periodic Link.Poll events.
// It holds parallel slices of link.Cap (the Poll target) and the matching
// link.PortCap (the reply-to identity Link reports status back through)
// rather than a Hub capability: Pollster only ever needs to name which
// Port a given Link's status belongs to, and it never sends anything to the
// Hub directly.
type pollster struct {
	links []link.Cap
	ports []link.PortCap
}

// newPollster spawns the Pollster's own polling goroutine, which fires
// immediately and then every pollInterval until ctx is cancelled.
func newPollster(ctx context.Context, grp *dgroup.Group, name string, links []link.Cap, ports []link.PortCap) *pollster {
	p := &pollster{links: links, ports: ports}
	grp.Go(name, func(ctx context.Context) error {
		return p.run(ctx)
	})
	return p
}

func (p *pollster) run(ctx context.Context) error {
	for {
		for i, l := range p.links {
			l.Send(link.NewPoll(p.ports[i]))
		}
		dtime.SleepWithContext(ctx, pollInterval)
		if ctx.Err() != nil {
			return nil
		}
	}
}
