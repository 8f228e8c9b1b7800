package mapper

import "github.com/prometheus/client_golang/prometheus"

var (
	importsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bufmap_imports_total",
		Help: "Total number of successful buffer imports.",
	})
	importFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bufmap_import_failures_total",
		Help: "Total number of rejected buffer imports.",
	})
	freesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bufmap_frees_total",
		Help: "Total number of freed buffer handles.",
	})
	locksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bufmap_locks_total",
		Help: "Total number of successful CPU locks.",
	})
	lockContentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bufmap_lock_contention_total",
		Help: "Total number of lock attempts rejected due to an open session.",
	})
	metadataSetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bufmap_metadata_sets_total",
		Help: "Total number of metadata writes.",
	})
	liveBuffers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "bufmap_live_buffers",
		Help: "Number of currently imported buffer handles in the process.",
	}, func() float64 {
		return float64(handleStates.Count())
	})
)

func init() {
	prometheus.MustRegister(
		importsTotal,
		importFailuresTotal,
		freesTotal,
		locksTotal,
		lockContentionTotal,
		metadataSetsTotal,
		liveBuffers,
	)
}
