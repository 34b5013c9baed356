package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking core: hold outcomes and
// batch-run results.
type BookingMetrics struct {
	holdsCreated   prometheus.Counter
	holdConflicts  prometheus.Counter
	blocksReleased prometheus.Counter
	seriesCreated  prometheus.Counter
	remindersSent  prometheus.Counter
	batchFailures  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		holdsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "homeserve",
			Subsystem: "booking",
			Name:      "holds_created_total",
			Help:      "Total time-block holds created",
		}),
		holdConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "homeserve",
			Subsystem: "booking",
			Name:      "hold_conflicts_total",
			Help:      "Total hold attempts rejected for availability conflicts",
		}),
		blocksReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "homeserve",
			Subsystem: "booking",
			Name:      "blocks_released_total",
			Help:      "Total time blocks removed by decline/cancel/release flows",
		}),
		seriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "homeserve",
			Subsystem: "booking",
			Name:      "series_members_created_total",
			Help:      "Total follow-on engagements materialized by the series generator",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "homeserve",
			Subsystem: "booking",
			Name:      "reminders_sent_total",
			Help:      "Total occurrence reminders delivered",
		}),
		batchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homeserve",
			Subsystem: "booking",
			Name:      "batch_item_failures_total",
			Help:      "Per-item failures accumulated by batch runs",
		}, []string{"job"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.holdsCreated, m.holdConflicts, m.blocksReleased, m.seriesCreated, m.remindersSent, m.batchFailures)
	return m
}

func (m *BookingMetrics) ObserveHoldsCreated(n int) {
	if m == nil {
		return
	}
	m.holdsCreated.Add(float64(n))
}

func (m *BookingMetrics) ObserveHoldConflict() {
	if m == nil {
		return
	}
	m.holdConflicts.Inc()
}

func (m *BookingMetrics) ObserveBlocksReleased(n int64) {
	if m == nil {
		return
	}
	m.blocksReleased.Add(float64(n))
}

func (m *BookingMetrics) ObserveSeriesCreated(n int) {
	if m == nil {
		return
	}
	m.seriesCreated.Add(float64(n))
}

func (m *BookingMetrics) ObserveRemindersSent(n int) {
	if m == nil {
		return
	}
	m.remindersSent.Add(float64(n))
}

func (m *BookingMetrics) ObserveBatchFailure(job string) {
	if m == nil {
		return
	}
	m.batchFailures.WithLabelValues(job).Inc()
}
