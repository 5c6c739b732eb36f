package monitor

import (
	"sidelinkmon/sidelink"
	"sidelinkmon/stats"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "sidelink"

// Collector exposes the latest observation of every role and the tracker
// counters. It reads views only and never triggers a poll.
type Collector struct {
	monitor *Monitor

	up          *prometheus.Desc
	frame       *prometheus.Desc
	slot        *prometheus.Desc
	channel     *prometheus.Desc
	qualityLvl  *prometheus.Desc
	successRate *prometheus.Desc
	throughput  *prometheus.Desc
	offset      *prometheus.Desc
	pollTotals  *prometheus.Desc
}

// NewCollector builds a collector for m; register it on a registry.
func NewCollector(m *Monitor) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricNamespace, "", name), help, labels, nil)
	}
	return &Collector{
		monitor:     m,
		up:          desc("source_up", "1 when the source log was readable on the last poll", "role", "status"),
		frame:       desc("frame", "Last reported radio frame", "role"),
		slot:        desc("slot", "Last reported radio slot", "role"),
		channel:     desc("channel_packets", "Latest cumulative channel counters", "role", "channel", "counter"),
		qualityLvl:  desc("quality_level", "Link quality level (40..100)", "role"),
		successRate: desc("success_rate_percent", "Decode success rate", "role", "channel"),
		throughput:  desc("throughput_mbps", "Estimated throughput", "role", "direction"),
		offset:      desc("log_offset_bytes", "Read cursor position", "role"),
		pollTotals:  desc("poll_events_total", "Poll cycle counters", "role", "counter"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.up, c.frame, c.slot, c.channel, c.qualityLvl, c.successRate, c.throughput, c.offset, c.pollTotals} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	tracker := c.monitor.Tracker()
	for role, obs := range c.monitor.Views() {
		r := string(role)
		snap := obs.Snapshot
		up := 0.0
		if snap.Status == sidelink.StatusRunning {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up, r, string(snap.Status))
		ch <- prometheus.MustNewConstMetric(c.frame, prometheus.GaugeValue, float64(snap.Frame), r)
		ch <- prometheus.MustNewConstMetric(c.slot, prometheus.GaugeValue, float64(snap.Slot), r)
		for _, chName := range sidelink.Channels {
			counters := snap.Counters(chName)
			ch <- prometheus.MustNewConstMetric(c.channel, prometheus.GaugeValue, float64(counters.TX), r, string(chName), "tx")
			ch <- prometheus.MustNewConstMetric(c.channel, prometheus.GaugeValue, float64(counters.RxOK), r, string(chName), "rx_ok")
			ch <- prometheus.MustNewConstMetric(c.channel, prometheus.GaugeValue, float64(counters.RxNotOK), r, string(chName), "rx_not_ok")
		}
		ch <- prometheus.MustNewConstMetric(c.qualityLvl, prometheus.GaugeValue, float64(obs.Quality.Level), r)
		ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue, obs.Quality.PSSCHSuccessRate, r, string(sidelink.ChannelPSSCH))
		ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue, obs.Quality.PSBCHSuccessRate, r, string(sidelink.ChannelPSBCH))
		ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, obs.Rates.TxMbps, r, "tx")
		ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, obs.Rates.RxMbps, r, "rx")
		ch <- prometheus.MustNewConstMetric(c.offset, prometheus.GaugeValue, float64(obs.Offset), r)
		for _, name := range stats.Counters {
			ch <- prometheus.MustNewConstMetric(c.pollTotals, prometheus.CounterValue, float64(tracker.Get(r, name)), r, name)
		}
	}
}
