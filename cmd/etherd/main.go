// Command etherd demonstrates the ether link-layer fabric end to end: two
// Hubs, each fronting one Link over a loopback Wire, each with a demo Cell
// plugged into its rendezvous slot. A payload written by one Cell is routed
// by its Hub onto the Link, carried across the wire by the AIT handshake,
// routed by the peer Hub, and delivered to the peer Cell — and back again.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/ether/pkg/frame"
	"github.com/datawire/ether/pkg/hub"
	"github.com/datawire/ether/pkg/link"
	"github.com/datawire/ether/pkg/wire"
)

type args struct {
	metricsAddr string
	nonceA      uint32
	nonceB      uint32
}

func main() {
	ctx := makeBaseLogger(context.Background())
	ctx = dgroup.WithGoroutineName(ctx, "/etherd")

	var a args
	cmd := &cobra.Command{
		Use:   "etherd",
		Short: "run a two-node ether demo fabric",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Main(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&a.metricsAddr, "metrics-addr", ":9090",
		"address to serve Prometheus-format metrics on")
	cmd.Flags().Uint32Var(&a.nonceA, "nonce-a", 1, "starting nonce for node A's Link")
	cmd.Flags().Uint32Var(&a.nonceB, "nonce-b", 2, "starting nonce for node B's Link")

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func Main(ctx context.Context, a args) error {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
	})

	grp.Go("metrics", func(ctx context.Context) error {
		return serveMetrics(ctx, a.metricsAddr)
	})

	grp.Go("fabric", func(ctx context.Context) error {
		runFabric(ctx, grp, a.nonceA, a.nonceB)
		return nil
	})

	return grp.Wait()
}

// runFabric wires up the two-Hub demo topology. lA and lB are forward
// referenced: wire.NewLoopbackPair needs delivery closures before either
// Link exists, and those closures only fire once a frame is actually sent,
// by which time both Link variables below have long since been assigned —
// the same forward-reference idiom hub.Create uses for its Hub capability.
func runFabric(ctx context.Context, grp *dgroup.Group, nonceA, nonceB uint32) {
	var lA, lB link.Cap
	wireA, wireB := wire.NewLoopbackPair(
		func(f frame.Frame) { lA.Send(link.NewFrame(f)) },
		func(f frame.Frame) { lB.Send(link.NewFrame(f)) },
	)
	lA = link.Spawn(ctx, grp, "linkA", wireA, nonceA)
	lB = link.Spawn(ctx, grp, "linkB", wireB, nonceB)

	hubA := hub.Create(ctx, grp, "hubA", []link.Cap{lA})
	hubB := hub.Create(ctx, grp, "hubB", []link.Cap{lB})

	spawnCell(ctx, grp, "cellA", hubA, nonceA)
	spawnCell(ctx, grp, "cellB", hubB, nonceB)
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		dlog.Infof(ctx, "serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return server.Close()
	case err := <-errCh:
		return err
	}
}
