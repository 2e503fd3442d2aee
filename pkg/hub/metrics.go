package hub

import "github.com/VictoriaMetrics/metrics"

// metrics holds the per-Hub instrumentation: route-level counters for the
// one component with an externally observable fan-in/fan-out.
type metrics struct {
	routedToCell  *metrics.Counter
	routedToPorts *metrics.Counter
}

func newMetrics(name string) *metrics {
	set := metrics.NewSet()
	m := &metrics{
		routedToCell:  set.NewCounter(`ether_hub_routed_to_cell_total{hub="` + name + `"}`),
		routedToPorts: set.NewCounter(`ether_hub_routed_to_ports_total{hub="` + name + `"}`),
	}
	metrics.RegisterSet(set)
	return m
}
