// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports dispatcher and pool statistics to Prometheus.
//
// Example:
//
//	d := reactor.New("orders").BuildRingBuffer()
//	obs := reactor.NewObservable(d)
//	c := metrics.NewCollector("app").Dispatcher(d).Pool("orders_events", obs.PoolStats)
//	prometheus.MustRegister(c)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/reactor"
)

// DispatcherSource is a dispatcher exposing its counters.
// *reactor.RingBufferDispatcher implements it.
type DispatcherSource interface {
	Name() string
	Stats() reactor.Stats
}

// Collector is a prometheus.Collector reading its sources on every scrape.
type Collector struct {
	mu          sync.RWMutex
	dispatchers []DispatcherSource
	pools       []poolSource

	published *prometheus.Desc
	executed  *prometheus.Desc
	failed    *prometheus.Desc
	rejected  *prometheus.Desc
	backlog   *prometheus.Desc
	capacity  *prometheus.Desc

	poolAllocated *prometheus.Desc
	poolReused    *prometheus.Desc
	poolRecycled  *prometheus.Desc
	poolDropped   *prometheus.Desc
	poolCapacity  *prometheus.Desc
}

type poolSource struct {
	name  string
	stats func() reactor.PoolStats
}

func newDesc(namespace, subsystem, name, help, label string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, name),
		help,
		[]string{label},
		nil,
	)
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		published: newDesc(namespace, "dispatcher", "published_total", "Total number of tasks and events accepted by the dispatcher", "dispatcher"),
		executed:  newDesc(namespace, "dispatcher", "executed_total", "Total number of tasks executed to completion", "dispatcher"),
		failed:    newDesc(namespace, "dispatcher", "failed_total", "Total number of tasks whose execution panicked", "dispatcher"),
		rejected:  newDesc(namespace, "dispatcher", "rejected_total", "Total number of submissions refused after shutdown or halt", "dispatcher"),
		backlog:   newDesc(namespace, "dispatcher", "backlog", "Number of published slots not yet consumed", "dispatcher"),
		capacity:  newDesc(namespace, "dispatcher", "capacity", "Ring buffer capacity", "dispatcher"),

		poolAllocated: newDesc(namespace, "pool", "allocated_total", "Total number of objects created by the pool factory", "pool"),
		poolReused:    newDesc(namespace, "pool", "reused_total", "Total number of allocations served from the free list", "pool"),
		poolRecycled:  newDesc(namespace, "pool", "recycled_total", "Total number of references returned to the free list", "pool"),
		poolDropped:   newDesc(namespace, "pool", "dropped_total", "Total number of references dropped because the free list was full", "pool"),
		poolCapacity:  newDesc(namespace, "pool", "capacity", "Free list capacity", "pool"),
	}
}

// Dispatcher adds a dispatcher source.
func (c *Collector) Dispatcher(d DispatcherSource) *Collector {
	c.mu.Lock()
	c.dispatchers = append(c.dispatchers, d)
	c.mu.Unlock()
	return c
}

// Pool adds a pool source labelled name, read through stats.
func (c *Collector) Pool(name string, stats func() reactor.PoolStats) *Collector {
	c.mu.Lock()
	c.pools = append(c.pools, poolSource{name: name, stats: stats})
	c.mu.Unlock()
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.published, c.executed, c.failed, c.rejected, c.backlog, c.capacity,
		c.poolAllocated, c.poolReused, c.poolRecycled, c.poolDropped, c.poolCapacity,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	dispatchers := c.dispatchers
	pools := c.pools
	c.mu.RUnlock()

	for _, d := range dispatchers {
		name := d.Name()
		s := d.Stats()
		ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published), name)
		ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue, float64(s.Executed), name)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed), name)
		ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected), name)
		ch <- prometheus.MustNewConstMetric(c.backlog, prometheus.GaugeValue, float64(s.Backlog), name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), name)
	}
	for _, p := range pools {
		s := p.stats()
		ch <- prometheus.MustNewConstMetric(c.poolAllocated, prometheus.CounterValue, float64(s.Allocated), p.name)
		ch <- prometheus.MustNewConstMetric(c.poolReused, prometheus.CounterValue, float64(s.Reused), p.name)
		ch <- prometheus.MustNewConstMetric(c.poolRecycled, prometheus.CounterValue, float64(s.Recycled), p.name)
		ch <- prometheus.MustNewConstMetric(c.poolDropped, prometheus.CounterValue, float64(s.Dropped), p.name)
		ch <- prometheus.MustNewConstMetric(c.poolCapacity, prometheus.GaugeValue, float64(s.Capacity), p.name)
	}
}
