package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UsageFunc reports storage bytes used and the quota (0 if unlimited).
type UsageFunc func(ctx context.Context) (used, quota int64, err error)

// Collector reports storage usage at scrape time.
type Collector struct {
	usage UsageFunc

	usedDesc  *prometheus.Desc
	quotaDesc *prometheus.Desc
}

// NewCollector creates a storage usage collector.
func NewCollector(usage UsageFunc) *Collector {
	return &Collector{
		usage: usage,
		usedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "used_bytes"),
			"Bytes stored in the snapshot backend.",
			nil, nil,
		),
		quotaDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "quota_bytes"),
			"Configured storage quota; 0 means unlimited.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usedDesc
	ch <- c.quotaDesc
}

// Collect implements prometheus.Collector. Failed reads are skipped.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	used, quota, err := c.usage(ctx)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.usedDesc, prometheus.GaugeValue, float64(used))
	ch <- prometheus.MustNewConstMetric(c.quotaDesc, prometheus.GaugeValue, float64(quota))
}
