package store

import (
	"regexp"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics.go instruments every operation that runs through Store.withTx.
// Naming mirrors stats/target_stats.go's "<component>.<op>.n" counters and
// ".ns" latency convention, translated into Prometheus's label-based
// idiom: one counter/histogram pair, labeled by operation name and
// outcome, rather than one metric series per operation.
type Metrics struct {
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the store's metrics with reg. Callers that don't
// care about Prometheus exposition may pass prometheus.NewRegistry() and
// discard it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobmeta",
			Subsystem: "store",
			Name:      "ops_total",
			Help:      "Total number of store transactions, by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blobmeta",
			Subsystem: "store",
			Name:      "op_duration_seconds",
			Help:      "Store transaction latency, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.ops, m.latency)
	return m
}

func (m *Metrics) record(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

var methodNameRe = regexp.MustCompile(`^.*\)\.([A-Za-z0-9_]+)(?:-fm)?$`)

// callerOp derives the exported Store method name that called withTx, by
// walking one frame up the stack. Keeping this out of every call site
// avoids threading an extra "op" argument through 20-odd methods whose
// name already says what it is.
func callerOp(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if m := methodNameRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}
