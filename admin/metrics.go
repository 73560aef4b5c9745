package admin

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"home2l/resource"
	"home2l/timerwheel"
)

// kernelCollector is a Prometheus Collector that reads the registry,
// timer wheel, and (if any) host table live on every scrape, rather
// than tracking duplicate counters imperatively — the registry/wheel
// already hold the authoritative counts. It exports resource count,
// orphan-pool occupancy, timer-wheel depth and per-host connection
// state; event-queue depth is not exported.
type kernelCollector struct {
	reg   *resource.Registry
	wheel *timerwheel.Wheel
	hosts HostLister

	resourceTotal   *prometheus.Desc
	resourceOrphans *prometheus.Desc
	timerPending    *prometheus.Desc
	hostConnected   *prometheus.Desc
}

func newKernelCollector(reg *resource.Registry, w *timerwheel.Wheel, hosts HostLister) *kernelCollector {
	return &kernelCollector{
		reg:   reg,
		wheel: w,
		hosts: hosts,
		resourceTotal: prometheus.NewDesc(
			"home2l_resources_total", "Total number of resources the registry has allocated.", nil, nil),
		resourceOrphans: prometheus.NewDesc(
			"home2l_resources_orphaned", "Number of resources currently in the orphan pool.", nil, nil),
		timerPending: prometheus.NewDesc(
			"home2l_timer_wheel_pending", "Number of pending timers in the timer wheel.", nil, nil),
		hostConnected: prometheus.NewDesc(
			"home2l_host_connection_state", "Connection state of each remote host proxy (0=idle,1=connecting,2=connected,3=lost).",
			[]string{"host"}, nil),
	}
}

func (c *kernelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.resourceTotal
	ch <- c.resourceOrphans
	ch <- c.timerPending
	ch <- c.hostConnected
}

func (c *kernelCollector) Collect(ch chan<- prometheus.Metric) {
	total, orphans := c.reg.Counts()
	ch <- prometheus.MustNewConstMetric(c.resourceTotal, prometheus.GaugeValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.resourceOrphans, prometheus.GaugeValue, float64(orphans))
	ch <- prometheus.MustNewConstMetric(c.timerPending, prometheus.GaugeValue, float64(c.wheel.Len()))

	if c.hosts == nil {
		return
	}
	for host, state := range c.hosts.HostStates() {
		ch <- prometheus.MustNewConstMetric(c.hostConnected, prometheus.GaugeValue, float64(state), host)
	}
}

var (
	registerMu sync.Mutex
	registered *kernelCollector
)

// registerCollectors registers reg/w/hosts' live state with the
// default Prometheus registry. Safe to call more than once per
// process (e.g. once per admin.New in tests that each build their own
// registry): the previous collector, if any, is unregistered first, so
// /metrics always reflects the most recently constructed Server rather
// than silently pinning to the first one built.
func registerCollectors(reg *resource.Registry, w *timerwheel.Wheel, hosts HostLister) {
	registerMu.Lock()
	defer registerMu.Unlock()
	if registered != nil {
		prometheus.Unregister(registered)
	}
	c := newKernelCollector(reg, w, hosts)
	prometheus.MustRegister(c)
	registered = c
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
