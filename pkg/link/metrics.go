package link

import (
	"math"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// metrics holds the per-Link instrumentation: one metrics.Set per Link
// instance. VictoriaMetrics gauges are pull-based, so balance is backed by
// an atomic word the registered callback reads.
type metrics struct {
	framesSent  *metrics.Counter
	framesRecv  *metrics.Counter
	balanceBits uint64
}

func newMetrics(name string) *metrics {
	set := metrics.NewSet()
	m := &metrics{
		framesSent: set.NewCounter(`ether_link_frames_sent_total{link="` + name + `"}`),
		framesRecv: set.NewCounter(`ether_link_frames_recv_total{link="` + name + `"}`),
	}
	set.NewGauge(`ether_link_balance{link="`+name+`"}`, func() float64 {
		return math.Float64frombits(atomic.LoadUint64(&m.balanceBits))
	})
	metrics.RegisterSet(set)
	return m
}

func (m *metrics) setBalance(v float64) {
	atomic.StoreUint64(&m.balanceBits, math.Float64bits(v))
}
