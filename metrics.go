package limlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/distlimit/limlog/internal/appender"
)

// topicMetrics bundles the counters a Topic reports, registered under a
// per-topic "directory" label so multiple Topics can share one registerer.
type topicMetrics struct {
	recordsWritten   prometheus.Counter
	bytesWritten     prometheus.Counter
	segmentRollovers prometheus.Counter
	activeReaders    prometheus.Gauge
}

func newTopicMetrics(reg prometheus.Registerer, directory string) *topicMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"directory": directory}

	return &topicMetrics{
		recordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name:        "limlog_records_written_total",
			Help:        "Number of records committed to the active segment.",
			ConstLabels: labels,
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name:        "limlog_bytes_written_total",
			Help:        "Number of encoded record bytes committed.",
			ConstLabels: labels,
		}),
		segmentRollovers: factory.NewCounter(prometheus.CounterOpts{
			Name:        "limlog_segment_rollovers_total",
			Help:        "Number of times the active segment was rolled over.",
			ConstLabels: labels,
		}),
		activeReaders: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "limlog_active_readers",
			Help:        "Number of Reader handles currently open on this topic.",
			ConstLabels: labels,
		}),
	}
}

// appenderMetrics adapts topicMetrics to the callback shape internal/appender
// expects, keeping the appender package free of a prometheus dependency of
// its own.
func (m *topicMetrics) appenderMetrics() *appender.Metrics {
	if m == nil {
		return nil
	}
	return &appender.Metrics{
		RecordsWritten:   func() { m.recordsWritten.Inc() },
		BytesWritten:     func(n float64) { m.bytesWritten.Add(n) },
		SegmentRollovers: func() { m.segmentRollovers.Inc() },
	}
}
