// Package reactivemetrics exports a reactive.System's counters to Prometheus.
package reactivemetrics

import (
	"github.com/delaneyj/pumpkin/reactive"
	"github.com/prometheus/client_golang/prometheus"
)

type collector struct {
	sys *reactive.System

	effectsCreated  *prometheus.Desc
	effectRuns      *prometheus.Desc
	flushes         *prometheus.Desc
	effectErrors    *prometheus.Desc
	effectsDisposed *prometheus.Desc
	pending         *prometheus.Desc
}

// NewCollector returns a collector reading sys.Stats on every scrape. The
// System keeps running on its own goroutine; only atomic counters are read.
func NewCollector(namespace string, sys *reactive.System) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &collector{
		sys:             sys,
		effectsCreated:  desc("effects_created_total", "Effects created, including ones whose first run failed."),
		effectRuns:      desc("effect_runs_total", "Effect body executions."),
		flushes:         desc("flushes_total", "Flush passes over the pending queue."),
		effectErrors:    desc("effect_errors_total", "Errors and panics reported from scheduled effect runs."),
		effectsDisposed: desc("effects_disposed_total", "Effects disposed."),
		pending:         desc("pending_effects", "Effects waiting for the next flush."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.effectsCreated
	ch <- c.effectRuns
	ch <- c.flushes
	ch <- c.effectErrors
	ch <- c.effectsDisposed
	ch <- c.pending
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.sys.Stats()
	ch <- prometheus.MustNewConstMetric(c.effectsCreated, prometheus.CounterValue, float64(stats.EffectsCreated))
	ch <- prometheus.MustNewConstMetric(c.effectRuns, prometheus.CounterValue, float64(stats.EffectRuns))
	ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(stats.Flushes))
	ch <- prometheus.MustNewConstMetric(c.effectErrors, prometheus.CounterValue, float64(stats.EffectErrors))
	ch <- prometheus.MustNewConstMetric(c.effectsDisposed, prometheus.CounterValue, float64(stats.EffectsDisposed))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(stats.Pending))
}
